// Package inference defines the capability interface for a neural network
// inference backend and the session manager that owns session lifetimes.
//
// The engine never talks to the native runtime directly: it sees a Backend
// that loads model files and Sessions that run forward passes. The real
// implementation lives in the ortruntime package; tests use an in-memory
// fake.
package inference

import (
	"context"
	"errors"

	"go_upscaler/tensor"
)

// Sentinel errors, checked with errors.Is.
var (
	// ErrRuntimeLoad means the native inference runtime could not be
	// located or initialized. Reported at startup, not a crash.
	ErrRuntimeLoad = errors.New("inference runtime unavailable")

	// ErrModelLoad means the model file is missing or not valid for the
	// runtime.
	ErrModelLoad = errors.New("model load failed")

	// ErrInference means the runtime reported a failure during a forward
	// pass. It is returned to the caller and never silently retried:
	// retrying the same input reproduces the same failure.
	ErrInference = errors.New("inference failed")

	// ErrSessionClosed means the session was released before the call.
	ErrSessionClosed = errors.New("inference session closed")
)

// Backend loads model files into sessions. Implementations must be safe
// for use from a single goroutine; the SessionManager serializes access.
type Backend interface {
	// Name identifies the backend in logs ("onnxruntime", "fake", ...).
	Name() string

	// Load binds the model at path into a new session. Returns an error
	// wrapping ErrRuntimeLoad or ErrModelLoad.
	Load(ctx context.Context, path string) (Session, error)
}

// Session is one loaded model. Infer may be called concurrently by tile
// workers; Close must be called exactly once when the session is no longer
// needed, on every exit path.
type Session interface {
	// Infer runs one forward pass. The output tensor's dimensions are
	// the input's multiplied by the model's scale factor.
	Infer(ctx context.Context, in tensor.Tensor) (tensor.Tensor, error)

	// Close releases native resources. Safe to call on a session that
	// failed mid-use; not safe to call twice.
	Close() error
}
