package pipeline

import (
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go_upscaler/core"
	"go_upscaler/inference"
	"go_upscaler/modelstore"
	"go_upscaler/registry"
)

func testConfig(t *testing.T) core.Config {
	t.Helper()
	return core.Config{
		CacheDir:    t.TempDir(),
		OutputDir:   t.TempDir(),
		TileSize:    32,
		TileOverlap: 8,
		TileWorkers: 2,
	}
}

func fakeDescriptor(payload []byte, scale int) registry.ModelDescriptor {
	return registry.ModelDescriptor{
		ID:          "fake-model",
		DisplayName: "Fake Model",
		Kind:        registry.KindUpscale,
		ScaleFactor: scale,
		URL:         "https://example.invalid/fake.onnx",
		SHA256:      core.ComputeSHA256FromBytes(payload),
		Filename:    "fake.onnx",
		WindowSize:  1,
		MaxTileEdge: 512,
		SizeBytes:   int64(len(payload)),
	}
}

// seedCache places the model file in the store so no network I/O happens.
func seedCache(t *testing.T, store *modelstore.Store, desc registry.ModelDescriptor, payload []byte) {
	t.Helper()
	path := store.Path(desc)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, payload, 0644); err != nil {
		t.Fatal(err)
	}
}

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i+0] = uint8(x * 255 / w)
			img.Pix[i+1] = uint8(y * 255 / h)
			img.Pix[i+2] = uint8((x + y) % 256)
			img.Pix[i+3] = 255
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func decodeSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	return cfg.Width, cfg.Height
}

type testRig struct {
	runner  *Runner
	backend *inference.FakeBackend
	desc    registry.ModelDescriptor
	cfg     core.Config
}

func newTestRig(t *testing.T, scale int) *testRig {
	t.Helper()
	cfg := testConfig(t)
	payload := []byte("fake model weights")
	desc := fakeDescriptor(payload, scale)

	reg, err := registry.New([]registry.ModelDescriptor{desc})
	if err != nil {
		t.Fatal(err)
	}
	store := modelstore.New(cfg.CacheDir, nil)
	seedCache(t, store, desc, payload)

	backend := inference.NewFakeBackend(scale)
	runner := NewRunner(reg, store, backend, cfg, nil)
	t.Cleanup(func() { runner.Close() })

	return &testRig{runner: runner, backend: backend, desc: desc, cfg: cfg}
}

func TestRunBatchUpscalesEveryFile(t *testing.T) {
	rig := newTestRig(t, 2)
	inputDir := t.TempDir()
	files := []string{
		writePNG(t, inputDir, "a.png", 48, 40),
		writePNG(t, inputDir, "b.png", 20, 15), // smaller than a tile
		writePNG(t, inputDir, "c.png", 70, 70),
	}

	job := NewJob(rig.desc.ID, files)
	results, err := rig.runner.RunBatch(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("RunBatch() error: %v", err)
	}
	if len(results) != len(files) {
		t.Fatalf("got %d results, want %d", len(results), len(files))
	}

	wantSizes := [][2]int{{96, 80}, {40, 30}, {140, 140}}
	for i, res := range results {
		if res.Status != StatusDone {
			t.Fatalf("file %d status = %s (err: %v), want done", i, res.Status, res.Err)
		}
		if res.OutputPath == "" {
			t.Fatalf("file %d has no output path", i)
		}
		w, h := decodeSize(t, res.OutputPath)
		if w != wantSizes[i][0] || h != wantSizes[i][1] {
			t.Errorf("file %d output = %dx%d, want %dx%d", i, w, h, wantSizes[i][0], wantSizes[i][1])
		}
		if !strings.HasSuffix(res.OutputPath, "_2x.png") {
			t.Errorf("file %d output %q missing _2x suffix", i, res.OutputPath)
		}
	}

	// One session for the whole batch.
	if rig.backend.Loads() != 1 {
		t.Errorf("backend Loads() = %d, want 1", rig.backend.Loads())
	}
}

func TestBatchIsolatesFileFailures(t *testing.T) {
	rig := newTestRig(t, 2)
	inputDir := t.TempDir()

	garbage := filepath.Join(inputDir, "broken.png")
	if err := os.WriteFile(garbage, []byte("this is not a png"), 0644); err != nil {
		t.Fatal(err)
	}

	files := []string{
		writePNG(t, inputDir, "one.png", 40, 40),
		writePNG(t, inputDir, "two.png", 40, 40),
		garbage,
		writePNG(t, inputDir, "four.png", 40, 40),
		writePNG(t, inputDir, "five.png", 40, 40),
	}

	results, err := rig.runner.RunBatch(context.Background(), NewJob(rig.desc.ID, files), nil)
	if err != nil {
		t.Fatalf("RunBatch() error: %v", err)
	}

	for i, res := range results {
		if i == 2 {
			if res.Status != StatusFailed {
				t.Errorf("broken file status = %s, want failed", res.Status)
			}
			if res.Stage != StageTiling {
				t.Errorf("broken file stage = %s, want tiling", res.Stage)
			}
			var decErr *DecodeError
			if !errors.As(res.Err, &decErr) {
				t.Errorf("broken file error = %T, want *DecodeError", res.Err)
			}
			continue
		}
		if res.Status != StatusDone {
			t.Errorf("file %d status = %s (err: %v), want done", i, res.Status, res.Err)
		}
	}
}

func TestCancellationSkipsRemainingFiles(t *testing.T) {
	rig := newTestRig(t, 2)
	inputDir := t.TempDir()
	var files []string
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png", "e.png"} {
		files = append(files, writePNG(t, inputDir, name, 40, 40))
	}

	ctx, cancel := context.WithCancel(context.Background())
	doneFiles := 0
	var infersAtCancel int64
	onEvent := func(ev ProgressEvent) {
		if ev.Status == StatusDone {
			doneFiles++
			if doneFiles == 2 {
				infersAtCancel = rig.backend.Infers()
				cancel()
			}
		}
	}

	results, err := rig.runner.RunBatch(ctx, NewJob(rig.desc.ID, files), onEvent)
	if err != nil {
		t.Fatalf("RunBatch() error: %v", err)
	}

	if results[0].Status != StatusDone || results[1].Status != StatusDone {
		t.Errorf("first two files = %s, %s, want done, done", results[0].Status, results[1].Status)
	}
	for i := 2; i < 5; i++ {
		if results[i].Status != StatusCancelled {
			t.Errorf("file %d status = %s, want cancelled", i, results[i].Status)
		}
		if results[i].OutputPath != "" {
			t.Errorf("cancelled file %d has an output path", i)
		}
	}
	// No inference ran after cancellation.
	if got := rig.backend.Infers(); got != infersAtCancel {
		t.Errorf("Infers() advanced from %d to %d after cancel", infersAtCancel, got)
	}
}

func TestInferenceFailureFailsOnlyThatFile(t *testing.T) {
	rig := newTestRig(t, 2)
	rig.backend.FailInferAt = 1 // first tile of the first file
	inputDir := t.TempDir()
	files := []string{
		writePNG(t, inputDir, "first.png", 48, 40),
		writePNG(t, inputDir, "second.png", 48, 40),
	}

	results, err := rig.runner.RunBatch(context.Background(), NewJob(rig.desc.ID, files), nil)
	if err != nil {
		t.Fatalf("RunBatch() error: %v", err)
	}

	if results[0].Status != StatusFailed {
		t.Errorf("first file status = %s, want failed", results[0].Status)
	}
	if results[0].Stage != StageInferring {
		t.Errorf("first file stage = %s, want inferring", results[0].Stage)
	}
	if !errors.Is(results[0].Err, inference.ErrInference) {
		t.Errorf("first file error = %v, want ErrInference", results[0].Err)
	}
	if results[1].Status != StatusDone {
		t.Errorf("second file status = %s (err: %v), want done", results[1].Status, results[1].Err)
	}
}

func TestModelAcquisitionFailureFailsAllFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	desc := fakeDescriptor([]byte("never served"), 2)
	desc.URL = srv.URL

	reg, err := registry.New([]registry.ModelDescriptor{desc})
	if err != nil {
		t.Fatal(err)
	}
	// Empty cache: acquisition must go to the failing server.
	store := modelstore.New(cfg.CacheDir, nil, modelstore.WithMaxRetries(1))
	runner := NewRunner(reg, store, inference.NewFakeBackend(2), cfg, nil)
	defer runner.Close()

	inputDir := t.TempDir()
	files := []string{
		writePNG(t, inputDir, "a.png", 32, 32),
		writePNG(t, inputDir, "b.png", 32, 32),
	}

	results, err := runner.RunBatch(context.Background(), NewJob(desc.ID, files), nil)
	if err != nil {
		t.Fatalf("RunBatch() error: %v", err)
	}
	for i, res := range results {
		if res.Status != StatusFailed {
			t.Errorf("file %d status = %s, want failed", i, res.Status)
		}
		var dlErr *modelstore.DownloadError
		if !errors.As(res.Err, &dlErr) {
			t.Errorf("file %d error = %T, want *DownloadError", i, res.Err)
		}
	}
}

func TestUnknownModelIsAJobLevelError(t *testing.T) {
	rig := newTestRig(t, 2)
	file := writePNG(t, t.TempDir(), "a.png", 32, 32)

	_, err := rig.runner.RunBatch(context.Background(), NewJob("no-such-model", []string{file}), nil)
	if !errors.Is(err, registry.ErrModelNotFound) {
		t.Fatalf("RunBatch() error = %v, want ErrModelNotFound", err)
	}
}

func TestEventsForAFilePrecedeLaterFiles(t *testing.T) {
	rig := newTestRig(t, 2)
	inputDir := t.TempDir()
	files := []string{
		writePNG(t, inputDir, "a.png", 48, 48),
		writePNG(t, inputDir, "b.png", 48, 48),
		writePNG(t, inputDir, "c.png", 48, 48),
	}

	var events []ProgressEvent
	_, err := rig.runner.RunBatch(context.Background(), NewJob(rig.desc.ID, files), func(ev ProgressEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("RunBatch() error: %v", err)
	}

	highest := -1
	for _, ev := range events {
		if ev.FileIndex < 0 {
			continue // job-level
		}
		if ev.FileIndex < highest {
			t.Fatalf("event for file %d arrived after file %d started", ev.FileIndex, highest)
		}
		highest = ev.FileIndex
	}

	// Every file ends with exactly one terminal event.
	terminal := map[int]int{}
	for _, ev := range events {
		if ev.FileIndex >= 0 && ev.Status != StatusRunning {
			terminal[ev.FileIndex]++
		}
	}
	for i := range files {
		if terminal[i] != 1 {
			t.Errorf("file %d has %d terminal events, want 1", i, terminal[i])
		}
	}
}

func TestDenoiserKeepsDimensions(t *testing.T) {
	rig := newTestRig(t, 1)
	file := writePNG(t, t.TempDir(), "noisy.png", 50, 34)

	results, err := rig.runner.RunBatch(context.Background(), NewJob(rig.desc.ID, []string{file}), nil)
	if err != nil {
		t.Fatalf("RunBatch() error: %v", err)
	}
	if results[0].Status != StatusDone {
		t.Fatalf("status = %s (err: %v), want done", results[0].Status, results[0].Err)
	}
	w, h := decodeSize(t, results[0].OutputPath)
	if w != 50 || h != 34 {
		t.Errorf("output = %dx%d, want 50x34", w, h)
	}
}

func TestMaxInputEdgeClampsBeforeInference(t *testing.T) {
	rig := newTestRig(t, 2)
	rig.runner.cfg.MaxInputEdge = 32
	file := writePNG(t, t.TempDir(), "huge.png", 64, 48)

	results, err := rig.runner.RunBatch(context.Background(), NewJob(rig.desc.ID, []string{file}), nil)
	if err != nil {
		t.Fatalf("RunBatch() error: %v", err)
	}
	if results[0].Status != StatusDone {
		t.Fatalf("status = %s (err: %v), want done", results[0].Status, results[0].Err)
	}
	// Clamped to 32x24, then scaled 2x.
	w, h := decodeSize(t, results[0].OutputPath)
	if w != 64 || h != 48 {
		t.Errorf("output = %dx%d, want 64x48", w, h)
	}
}
