// Package registry holds the declarative catalog of supported
// super-resolution models. The catalog is pure data: resolving an entry to
// a local file is the model store's job, loading it is the runtime's.
package registry

import (
	"errors"
	"fmt"
)

// ErrModelNotFound is returned by Find for unknown model ids.
var ErrModelNotFound = errors.New("model not found in registry")

// ModelKind classifies what a model does to an image.
type ModelKind string

const (
	KindUpscale ModelKind = "upscale"
	KindDenoise ModelKind = "denoise"
	KindEnhance ModelKind = "enhance"
)

// ModelDescriptor describes one supported model. Descriptors are immutable
// once the registry is built.
type ModelDescriptor struct {
	// ID uniquely identifies the model within the registry.
	ID string `yaml:"id"`

	// DisplayName is the human-readable name shown in pickers.
	DisplayName string `yaml:"display_name"`

	// Kind classifies the model (upscale, denoise, enhance).
	Kind ModelKind `yaml:"kind"`

	// ScaleFactor is the integer output/input size ratio. Denoisers use 1.
	ScaleFactor int `yaml:"scale"`

	// URL is the HTTP(S) source of the model weights.
	URL string `yaml:"url"`

	// SHA256 is the expected content hash of the weights file. Empty
	// means integrity is checked by presence and size only.
	SHA256 string `yaml:"sha256"`

	// Filename is the deterministic local cache filename.
	Filename string `yaml:"filename"`

	// WindowSize is the attention window of the architecture; tile edges
	// must be a multiple of it. 1 means no alignment constraint.
	WindowSize int `yaml:"window_size"`

	// MaxTileEdge is the largest tile edge the model accepts. Requesting
	// a larger tile fails before any inference runs.
	MaxTileEdge int `yaml:"max_tile_edge"`

	// SizeBytes is the approximate download size, used for disk space
	// prechecks and progress display. 0 means unknown.
	SizeBytes int64 `yaml:"size_bytes"`
}

// OutputSuffix returns the default suffix appended to output filenames,
// e.g. "_4x" for a 4x upscaler or "_denoised" for a denoiser.
func (d ModelDescriptor) OutputSuffix() string {
	switch {
	case d.Kind == KindDenoise:
		return "_denoised"
	case d.ScaleFactor > 1:
		return fmt.Sprintf("_%dx", d.ScaleFactor)
	default:
		return "_enhanced"
	}
}

// Validate checks descriptor invariants.
func (d ModelDescriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("model descriptor has empty id")
	}
	if d.ScaleFactor < 1 {
		return fmt.Errorf("model %q: scale factor must be >= 1, got %d", d.ID, d.ScaleFactor)
	}
	if d.URL == "" {
		return fmt.Errorf("model %q: empty download URL", d.ID)
	}
	if d.Filename == "" {
		return fmt.Errorf("model %q: empty local filename", d.ID)
	}
	if d.WindowSize < 1 {
		return fmt.Errorf("model %q: window size must be >= 1, got %d", d.ID, d.WindowSize)
	}
	if d.MaxTileEdge < 1 {
		return fmt.Errorf("model %q: max tile edge must be >= 1, got %d", d.ID, d.MaxTileEdge)
	}
	return nil
}

// Registry is an ordered, immutable collection of model descriptors.
type Registry struct {
	ordered []ModelDescriptor
	byID    map[string]ModelDescriptor
}

// New builds a registry from descriptors, preserving order.
// Duplicate ids and invalid descriptors are rejected.
func New(descriptors []ModelDescriptor) (*Registry, error) {
	r := &Registry{
		ordered: make([]ModelDescriptor, 0, len(descriptors)),
		byID:    make(map[string]ModelDescriptor, len(descriptors)),
	}
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate model id %q", d.ID)
		}
		r.byID[d.ID] = d
		r.ordered = append(r.ordered, d)
	}
	return r, nil
}

// Models returns the descriptors in catalog order. The returned slice is a
// copy; mutating it does not affect the registry.
func (r *Registry) Models() []ModelDescriptor {
	out := make([]ModelDescriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Find returns the descriptor with the given id, or ErrModelNotFound.
func (r *Registry) Find(id string) (ModelDescriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return ModelDescriptor{}, fmt.Errorf("%w: %q", ErrModelNotFound, id)
	}
	return d, nil
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	return len(r.ordered)
}
