package inference

import (
	"context"
	"errors"
	"testing"

	"go_upscaler/tensor"
)

func TestUseLoadsOnce(t *testing.T) {
	backend := NewFakeBackend(2)
	m := NewSessionManager(backend, nil)
	defer m.Close()

	ctx := context.Background()
	s1, err := m.Use(ctx, "model-a", "/models/a.onnx")
	if err != nil {
		t.Fatalf("Use() error: %v", err)
	}
	s2, err := m.Use(ctx, "model-a", "/models/a.onnx")
	if err != nil {
		t.Fatalf("Use() second call error: %v", err)
	}
	if s1 != s2 {
		t.Error("same model produced a new session")
	}
	if backend.Loads() != 1 {
		t.Errorf("Loads() = %d, want 1", backend.Loads())
	}
	if m.ActiveModel() != "model-a" {
		t.Errorf("ActiveModel() = %q, want model-a", m.ActiveModel())
	}
}

func TestUseSwitchReleasesPrevious(t *testing.T) {
	backend := NewFakeBackend(2)
	m := NewSessionManager(backend, nil)
	defer m.Close()

	ctx := context.Background()
	if _, err := m.Use(ctx, "model-a", "/models/a.onnx"); err != nil {
		t.Fatalf("Use(a) error: %v", err)
	}
	if _, err := m.Use(ctx, "model-b", "/models/b.onnx"); err != nil {
		t.Fatalf("Use(b) error: %v", err)
	}

	if backend.Loads() != 2 {
		t.Errorf("Loads() = %d, want 2", backend.Loads())
	}
	// The old session must be released before the new model is served:
	// never two live sessions.
	if backend.MaxOpenSessions() != 1 {
		t.Errorf("MaxOpenSessions() = %d, want 1", backend.MaxOpenSessions())
	}
	if backend.OpenSessions() != 1 {
		t.Errorf("OpenSessions() = %d, want 1", backend.OpenSessions())
	}
}

func TestUseLoadFailureKeepsManagerUsable(t *testing.T) {
	backend := NewFakeBackend(2)
	m := NewSessionManager(backend, nil)
	defer m.Close()

	ctx := context.Background()
	backend.FailLoad = errors.New("boom")
	if _, err := m.Use(ctx, "model-a", "/models/a.onnx"); err == nil {
		t.Fatal("expected load failure, got nil")
	}
	if m.ActiveModel() != "" {
		t.Errorf("ActiveModel() = %q after failed load, want empty", m.ActiveModel())
	}

	backend.FailLoad = nil
	if _, err := m.Use(ctx, "model-a", "/models/a.onnx"); err != nil {
		t.Fatalf("Use() after recovery error: %v", err)
	}
}

func TestCloseReleasesAndBlocksFurtherUse(t *testing.T) {
	backend := NewFakeBackend(2)
	m := NewSessionManager(backend, nil)

	ctx := context.Background()
	if _, err := m.Use(ctx, "model-a", "/models/a.onnx"); err != nil {
		t.Fatalf("Use() error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if backend.OpenSessions() != 0 {
		t.Errorf("OpenSessions() = %d after Close, want 0", backend.OpenSessions())
	}
	if _, err := m.Use(ctx, "model-b", "/models/b.onnx"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Use() after Close error = %v, want ErrSessionClosed", err)
	}
}

func TestFakeSessionInferScales(t *testing.T) {
	backend := NewFakeBackend(3)
	m := NewSessionManager(backend, nil)
	defer m.Close()

	sess, err := m.Use(context.Background(), "model-a", "/models/a.onnx")
	if err != nil {
		t.Fatalf("Use() error: %v", err)
	}

	in := tensor.New(8, 6)
	out, err := sess.Infer(context.Background(), in)
	if err != nil {
		t.Fatalf("Infer() error: %v", err)
	}
	if out.Width != 24 || out.Height != 18 {
		t.Errorf("output = %dx%d, want 24x18", out.Width, out.Height)
	}
}

func TestInferFailureIsNotRetried(t *testing.T) {
	backend := NewFakeBackend(2)
	backend.FailInferAt = 1
	m := NewSessionManager(backend, nil)
	defer m.Close()

	sess, err := m.Use(context.Background(), "model-a", "/models/a.onnx")
	if err != nil {
		t.Fatalf("Use() error: %v", err)
	}
	if _, err := sess.Infer(context.Background(), tensor.New(4, 4)); !errors.Is(err, ErrInference) {
		t.Fatalf("Infer() error = %v, want ErrInference", err)
	}
	// Exactly one forward pass ran: the failure was reported, not retried.
	if backend.Infers() != 1 {
		t.Errorf("Infers() = %d, want 1", backend.Infers())
	}
}
