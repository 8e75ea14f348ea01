package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// overlayFile is the YAML shape of a user catalog file:
//
//	models:
//	  - id: my-model-4x
//	    display_name: My model (4x)
//	    kind: upscale
//	    scale: 4
//	    url: https://example.com/model.onnx
//	    sha256: <hex>
//	    filename: my-model-4x.onnx
//	    window_size: 1
//	    max_tile_edge: 512
type overlayFile struct {
	Models []ModelDescriptor `yaml:"models"`
}

// Load builds the registry from the built-in catalog, optionally merged
// with a YAML overlay file. Overlay entries with an id that matches a
// built-in replace it in place; new ids are appended in file order.
//
// An empty path returns the built-in catalog unchanged.
func Load(overlayPath string) (*Registry, error) {
	if overlayPath == "" {
		return Builtin(), nil
	}

	data, err := os.ReadFile(overlayPath)
	if err != nil {
		return nil, fmt.Errorf("read models file %q: %w", overlayPath, err)
	}

	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse models file %q: %w", overlayPath, err)
	}

	merged := make([]ModelDescriptor, len(builtinCatalog))
	copy(merged, builtinCatalog)
	index := make(map[string]int, len(merged))
	for i, d := range merged {
		index[d.ID] = i
	}

	for _, d := range overlay.Models {
		applyOverlayDefaults(&d)
		if i, ok := index[d.ID]; ok {
			merged[i] = d
		} else {
			index[d.ID] = len(merged)
			merged = append(merged, d)
		}
	}

	return New(merged)
}

// applyOverlayDefaults fills optional overlay fields so short entries work.
func applyOverlayDefaults(d *ModelDescriptor) {
	if d.Kind == "" {
		d.Kind = KindUpscale
	}
	if d.ScaleFactor == 0 {
		d.ScaleFactor = 1
	}
	if d.WindowSize == 0 {
		d.WindowSize = 1
	}
	if d.MaxTileEdge == 0 {
		d.MaxTileEdge = defaultMaxTileEdge
	}
	if d.Filename == "" && d.ID != "" {
		d.Filename = d.ID + ".onnx"
	}
	if d.DisplayName == "" {
		d.DisplayName = d.ID
	}
}
