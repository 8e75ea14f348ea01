package inference

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"go_upscaler/tensor"
)

// FakeBackend is an in-memory Backend that upscales with nearest-neighbor
// interpolation instead of a neural network. It exists so the tiling
// engine, session manager and pipeline are testable without the native
// runtime, and it backs the CLI's --fake-backend mode.
type FakeBackend struct {
	// Scale is the factor applied by every session.
	Scale int

	// FailLoad, when set, makes Load return the given error.
	FailLoad error

	// FailInferAt makes the Nth Infer call (1-based, counted across all
	// sessions) fail with ErrInference. 0 disables.
	FailInferAt int64

	// RequireFile makes Load verify the model file exists, mirroring the
	// real backend's behavior.
	RequireFile bool

	loads   atomic.Int64
	infers  atomic.Int64
	mu      sync.Mutex
	open    int
	maxOpen int
}

// NewFakeBackend returns a fake backend with the given scale factor.
func NewFakeBackend(scale int) *FakeBackend {
	return &FakeBackend{Scale: scale}
}

// Name implements Backend.
func (b *FakeBackend) Name() string { return "fake" }

// Load implements Backend.
func (b *FakeBackend) Load(_ context.Context, path string) (Session, error) {
	if b.FailLoad != nil {
		return nil, b.FailLoad
	}
	if b.RequireFile {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
		}
	}
	b.loads.Add(1)
	b.mu.Lock()
	b.open++
	if b.open > b.maxOpen {
		b.maxOpen = b.open
	}
	b.mu.Unlock()
	return &fakeSession{backend: b, path: path}, nil
}

// Loads returns how many sessions were created.
func (b *FakeBackend) Loads() int64 { return b.loads.Load() }

// Infers returns how many forward passes ran.
func (b *FakeBackend) Infers() int64 { return b.infers.Load() }

// OpenSessions returns how many sessions are currently unclosed.
func (b *FakeBackend) OpenSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// MaxOpenSessions returns the peak number of simultaneously open sessions.
func (b *FakeBackend) MaxOpenSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxOpen
}

type fakeSession struct {
	backend *FakeBackend
	path    string
	closed  atomic.Bool
}

func (s *fakeSession) Infer(ctx context.Context, in tensor.Tensor) (tensor.Tensor, error) {
	if s.closed.Load() {
		return tensor.Tensor{}, ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return tensor.Tensor{}, err
	}
	n := s.backend.infers.Add(1)
	if at := s.backend.FailInferAt; at > 0 && n == at {
		return tensor.Tensor{}, fmt.Errorf("%w: injected failure", ErrInference)
	}
	if err := in.Validate(); err != nil {
		return tensor.Tensor{}, fmt.Errorf("%w: %v", ErrInference, err)
	}

	s2 := s.backend.Scale
	out := tensor.New(in.Width*s2, in.Height*s2)
	for c := 0; c < tensor.Channels; c++ {
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				out.Set(c, x, y, in.At(c, x/s2, y/s2))
			}
		}
	}
	return out, nil
}

func (s *fakeSession) Close() error {
	if s.closed.Swap(true) {
		return fmt.Errorf("double close of fake session")
	}
	s.backend.mu.Lock()
	s.backend.open--
	s.backend.mu.Unlock()
	return nil
}
