//go:build !ort || !cgo

// Stub implementation for builds without the ONNX Runtime library.
// Sessions can be created (the model path is validated) but forward passes
// fail, telling the user how to enable the real binding.

package ortruntime

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var stubSessionCounter atomic.Uint64

func runtimeDescription() string {
	return "stub (no onnxruntime library linked)"
}

func probeImpl(cfg Config) error {
	dir := cfg.LibraryDir
	if dir == "" {
		dir = "the system library path"
	}
	return fmt.Errorf("built without onnxruntime support; rebuild with CGO and -tags ort, with libonnxruntime in %s", dir)
}

type sessionHandle struct {
	id        uint64
	modelPath string
	valid     bool
}

func newSessionImpl(modelPath string, _ Config) (*sessionHandle, error) {
	return &sessionHandle{
		id:        stubSessionCounter.Add(1),
		modelPath: modelPath,
		valid:     true,
	}, nil
}

func runImpl(h *sessionHandle, _ []float32, _, _ int) ([]float32, int, int, error) {
	if h == nil || !h.valid {
		return nil, 0, 0, errors.New("session released")
	}
	return nil, 0, 0, errors.New("onnxruntime not available in this build; rebuild with CGO and -tags ort")
}

func closeImpl(h *sessionHandle) error {
	if h == nil {
		return nil
	}
	if !h.valid {
		return errors.New("session already released")
	}
	h.valid = false
	return nil
}
