// Package ortruntime binds the ONNX Runtime C API to the inference.Backend
// capability interface.
//
// Two implementations exist behind build tags:
//   - the real CGo binding (build with "-tags ort", CGo enabled), which
//     links against libonnxruntime
//   - a stub (default build) that validates model paths but cannot run a
//     forward pass
//
// The stub keeps the rest of the engine buildable and testable on machines
// without the native library; Probe reports which mode is active.
package ortruntime

import (
	"context"
	"fmt"
	"os"

	"go_upscaler/inference"
	"go_upscaler/logging"
	"go_upscaler/tensor"
)

// Config controls how sessions are created.
type Config struct {
	// LibraryDir is where libonnxruntime lives. Only advisory: the real
	// binding resolves the library at link time, but the path is surfaced
	// in diagnostics so users know where the loader looked.
	LibraryDir string

	// IntraOpThreads caps ONNX Runtime's intra-operator parallelism.
	// 0 lets the runtime decide.
	IntraOpThreads int
}

// Backend implements inference.Backend on top of ONNX Runtime.
type Backend struct {
	cfg Config
	log *logging.Logger
}

// NewBackend creates the backend. It does not touch the native runtime;
// call Probe to check availability before first use.
func NewBackend(cfg Config, log *logging.Logger) *Backend {
	if log == nil {
		log = logging.NewTestLogger()
	}
	return &Backend{cfg: cfg, log: log}
}

// Name implements inference.Backend.
func (b *Backend) Name() string { return "onnxruntime" }

// Runtime describes the linked runtime ("onnxruntime x.y" or the stub).
func (b *Backend) Runtime() string { return runtimeDescription() }

// Probe verifies the native runtime can be initialized. The stub build
// returns an error wrapping inference.ErrRuntimeLoad.
func (b *Backend) Probe() error {
	if err := probeImpl(b.cfg); err != nil {
		return fmt.Errorf("%w: %v", inference.ErrRuntimeLoad, err)
	}
	return nil
}

// Load implements inference.Backend.
func (b *Backend) Load(ctx context.Context, path string) (inference.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", inference.ErrModelLoad, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is not a model file", inference.ErrModelLoad, path)
	}

	h, err := newSessionImpl(path, b.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", inference.ErrModelLoad, err)
	}
	return &session{handle: h}, nil
}

// session wraps a native ONNX Runtime session. ONNX Runtime's Run is
// thread-safe, so Infer may be called from multiple tile workers at once.
type session struct {
	handle *sessionHandle
}

func (s *session) Infer(ctx context.Context, in tensor.Tensor) (tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return tensor.Tensor{}, err
	}
	if err := in.Validate(); err != nil {
		return tensor.Tensor{}, fmt.Errorf("%w: %v", inference.ErrInference, err)
	}

	out, w, h, err := runImpl(s.handle, in.Data, in.Width, in.Height)
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("%w: %v", inference.ErrInference, err)
	}
	result := tensor.Tensor{Data: out, Width: w, Height: h}
	if err := result.Validate(); err != nil {
		return tensor.Tensor{}, fmt.Errorf("%w: model produced malformed output: %v", inference.ErrInference, err)
	}
	return result, nil
}

func (s *session) Close() error {
	return closeImpl(s.handle)
}
