package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinCatalogIsValid(t *testing.T) {
	r := Builtin()
	if r.Len() == 0 {
		t.Fatal("built-in catalog is empty")
	}

	seen := make(map[string]bool)
	for _, d := range r.Models() {
		if err := d.Validate(); err != nil {
			t.Errorf("descriptor %q invalid: %v", d.ID, err)
		}
		if seen[d.ID] {
			t.Errorf("duplicate model id %q", d.ID)
		}
		seen[d.ID] = true
		if d.WindowSize == 8 && d.MaxTileEdge%8 != 0 {
			t.Errorf("model %q: max tile edge %d not aligned to window size", d.ID, d.MaxTileEdge)
		}
	}
}

func TestModelsReturnsStableOrder(t *testing.T) {
	r := Builtin()
	first := r.Models()
	second := r.Models()
	if len(first) != len(second) {
		t.Fatalf("Models() length changed between calls: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("order changed at %d: %q vs %q", i, first[i].ID, second[i].ID)
		}
	}

	// Mutating the returned slice must not affect the registry.
	first[0].ID = "mutated"
	if r.Models()[0].ID == "mutated" {
		t.Error("Models() exposes internal state")
	}
}

func TestFind(t *testing.T) {
	r := Builtin()

	d, err := r.Find("realesrgan-4x")
	if err != nil {
		t.Fatalf("Find(realesrgan-4x) error: %v", err)
	}
	if d.ScaleFactor != 4 {
		t.Errorf("ScaleFactor = %d, want 4", d.ScaleFactor)
	}
	if d.Kind != KindEnhance {
		t.Errorf("Kind = %q, want %q", d.Kind, KindEnhance)
	}

	_, err = r.Find("no-such-model")
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Find(no-such-model) error = %v, want ErrModelNotFound", err)
	}
}

func TestNewRejectsDuplicatesAndInvalid(t *testing.T) {
	valid := ModelDescriptor{
		ID: "m1", DisplayName: "M1", Kind: KindUpscale, ScaleFactor: 2,
		URL: "https://example.com/m1.onnx", Filename: "m1.onnx",
		WindowSize: 1, MaxTileEdge: 512,
	}

	tests := []struct {
		name  string
		descs []ModelDescriptor
	}{
		{name: "duplicate id", descs: []ModelDescriptor{valid, valid}},
		{name: "zero scale", descs: []ModelDescriptor{{ID: "m2", URL: "u", Filename: "f", WindowSize: 1, MaxTileEdge: 1}}},
		{name: "empty id", descs: []ModelDescriptor{{ScaleFactor: 1, URL: "u", Filename: "f", WindowSize: 1, MaxTileEdge: 1}}},
		{name: "empty url", descs: []ModelDescriptor{{ID: "m3", ScaleFactor: 1, Filename: "f", WindowSize: 1, MaxTileEdge: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.descs); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestOutputSuffix(t *testing.T) {
	tests := []struct {
		name string
		desc ModelDescriptor
		want string
	}{
		{"4x upscaler", ModelDescriptor{Kind: KindUpscale, ScaleFactor: 4}, "_4x"},
		{"2x enhancer", ModelDescriptor{Kind: KindEnhance, ScaleFactor: 2}, "_2x"},
		{"denoiser", ModelDescriptor{Kind: KindDenoise, ScaleFactor: 1}, "_denoised"},
		{"1x enhancer", ModelDescriptor{Kind: KindEnhance, ScaleFactor: 1}, "_enhanced"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.desc.OutputSuffix(); got != tt.want {
				t.Errorf("OutputSuffix() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	overlayPath := filepath.Join(dir, "models.yaml")
	overlay := `
models:
  - id: realesrgan-4x
    display_name: Patched RealESRGAN (4x)
    kind: enhance
    scale: 4
    url: https://mirror.example.com/realesrgan-4x.onnx
    filename: realesrgan-4x.onnx
  - id: custom-anime-2x
    scale: 2
    url: https://example.com/custom-anime-2x.onnx
`
	if err := os.WriteFile(overlayPath, []byte(overlay), 0644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	r, err := Load(overlayPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Replaced entry keeps its position but takes the overlay values.
	patched, err := r.Find("realesrgan-4x")
	if err != nil {
		t.Fatalf("Find(realesrgan-4x) error: %v", err)
	}
	if patched.URL != "https://mirror.example.com/realesrgan-4x.onnx" {
		t.Errorf("URL not replaced, got %q", patched.URL)
	}

	// New entry is appended with defaults filled in.
	custom, err := r.Find("custom-anime-2x")
	if err != nil {
		t.Fatalf("Find(custom-anime-2x) error: %v", err)
	}
	if custom.Filename != "custom-anime-2x.onnx" {
		t.Errorf("Filename default = %q, want custom-anime-2x.onnx", custom.Filename)
	}
	if custom.WindowSize != 1 || custom.MaxTileEdge == 0 {
		t.Errorf("defaults not applied: window=%d maxTile=%d", custom.WindowSize, custom.MaxTileEdge)
	}
	if r.Len() != Builtin().Len()+1 {
		t.Errorf("Len() = %d, want %d", r.Len(), Builtin().Len()+1)
	}
}

func TestLoadEmptyPathReturnsBuiltin(t *testing.T) {
	r, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if r.Len() != Builtin().Len() {
		t.Errorf("Len() = %d, want %d", r.Len(), Builtin().Len())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/models.yaml"); err == nil {
		t.Error("expected error for missing overlay file, got nil")
	}
}
