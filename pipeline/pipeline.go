// Package pipeline orchestrates batch upscaling: it resolves the model,
// establishes one inference session per batch, and drives every file
// through decode, tiling, tile inference, stitching and save, emitting
// progress events along the way.
//
// Files are isolated from each other: a failure is recorded and the batch
// moves on. Model-level failures (download, session load) are different —
// without a session no remaining file can proceed, so they all fail at once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go_upscaler/core"
	"go_upscaler/inference"
	"go_upscaler/logging"
	"go_upscaler/modelstore"
	"go_upscaler/registry"
	"go_upscaler/tensor"
	"go_upscaler/tile"
)

// Stage identifies where in its lifecycle a file currently is.
type Stage string

const (
	StageQueued    Stage = "queued"
	StageLoading   Stage = "loading"
	StageTiling    Stage = "tiling"
	StageInferring Stage = "inferring"
	StageStitching Stage = "stitching"
	StageSaving    Stage = "saving"
)

// Status is the disposition of a file (or of a non-terminal event).
type Status string

const (
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ProgressEvent is one observation of batch progress. FileIndex is -1 for
// job-level events (model download). Terminal events for file N are emitted
// before any event for file N+1.
type ProgressEvent struct {
	JobID     uuid.UUID
	FileIndex int
	Path      string
	Stage     Stage
	Status    Status
	// Fraction is stage progress in [0,1] where meaningful (model download,
	// tile inference); 0 otherwise.
	Fraction float64
	Err      error
}

// ProgressFunc receives events. It is called from a single goroutine.
type ProgressFunc func(ProgressEvent)

// BatchJob is one submitted unit of work: a model applied to files in order.
type BatchJob struct {
	ID      uuid.UUID
	ModelID string
	Files   []string

	// OutputDir receives results. Empty means the configured default.
	OutputDir string

	// Suffix overrides the model's output suffix ("_4x", "_denoised", ...).
	Suffix string
}

// FileResult is the terminal record for one file of a batch.
type FileResult struct {
	Path       string
	OutputPath string
	Status     Status
	// Stage is how far the file got; for failures, the stage that failed.
	Stage    Stage
	Err      error
	Duration time.Duration
}

// NewJob creates a BatchJob with a fresh id.
func NewJob(modelID string, files []string) BatchJob {
	return BatchJob{ID: uuid.New(), ModelID: modelID, Files: files}
}

// Runner executes batch jobs against a model registry, a model store and an
// inference backend.
type Runner struct {
	registry *registry.Registry
	store    *modelstore.Store
	sessions *inference.SessionManager
	cfg      core.Config
	log      *logging.Logger

	emitMu sync.Mutex
}

// NewRunner wires a runner. log may be nil.
func NewRunner(reg *registry.Registry, store *modelstore.Store, backend inference.Backend, cfg core.Config, log *logging.Logger) *Runner {
	if log == nil {
		log = logging.NewTestLogger()
	}
	return &Runner{
		registry: reg,
		store:    store,
		sessions: inference.NewSessionManager(backend, log),
		cfg:      cfg,
		log:      log,
	}
}

// Close releases the live inference session, if any.
func (r *Runner) Close() error {
	return r.sessions.Close()
}

func (r *Runner) emit(onEvent ProgressFunc, ev ProgressEvent) {
	if onEvent == nil {
		return
	}
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	onEvent(ev)
}

// RunBatch processes every file of the job in order and returns one result
// per file. The returned error reports job-level failures (unknown model,
// invalid tile configuration); per-file failures live in the results.
func (r *Runner) RunBatch(ctx context.Context, job BatchJob, onEvent ProgressFunc) ([]FileResult, error) {
	if len(job.Files) == 0 {
		return nil, fmt.Errorf("job %s has no files", job.ID)
	}
	desc, err := r.registry.Find(job.ModelID)
	if err != nil {
		return nil, err
	}

	tileCfg := tile.Config{TileSize: r.cfg.TileSize, Overlap: r.cfg.TileOverlap}
	if err := tileCfg.Validate(); err != nil {
		return nil, err
	}
	if err := tileCfg.ValidateForModel(desc.MaxTileEdge, desc.WindowSize); err != nil {
		return nil, err
	}

	r.log.Info("batch started",
		zap.String("job_id", job.ID.String()),
		zap.String("model_id", desc.ID),
		zap.Int("files", len(job.Files)))

	results := make([]FileResult, 0, len(job.Files))

	// The model is acquired once for the whole batch. Failure here means no
	// file can be processed.
	modelPath, err := r.store.EnsureAvailable(ctx, desc, func(p modelstore.ProgressInfo) {
		fraction := p.Percent / 100
		if p.Percent < 0 {
			fraction = 0
		}
		r.emit(onEvent, ProgressEvent{
			JobID: job.ID, FileIndex: -1, Stage: StageLoading,
			Status: StatusRunning, Fraction: fraction,
		})
	})
	if err != nil {
		return r.failAll(job, onEvent, results, err), nil
	}

	for i, path := range job.Files {
		if ctx.Err() != nil {
			return r.cancelRemaining(job, onEvent, results, i), nil
		}

		res, fatal := r.processFile(ctx, job, desc, modelPath, i, path, onEvent)
		results = append(results, res)
		r.emit(onEvent, ProgressEvent{
			JobID: job.ID, FileIndex: i, Path: path,
			Stage: res.Stage, Status: res.Status, Err: res.Err,
		})

		if fatal {
			// Session/model-level failure: every remaining file would hit
			// the same wall.
			return r.failAll(job, onEvent, results, res.Err), nil
		}
	}

	r.log.Info("batch finished", zap.String("job_id", job.ID.String()))
	return results, nil
}

// failAll appends Failed results for every not-yet-processed file.
func (r *Runner) failAll(job BatchJob, onEvent ProgressFunc, results []FileResult, cause error) []FileResult {
	for i := len(results); i < len(job.Files); i++ {
		res := FileResult{
			Path: job.Files[i], Status: StatusFailed, Stage: StageLoading, Err: cause,
		}
		results = append(results, res)
		r.emit(onEvent, ProgressEvent{
			JobID: job.ID, FileIndex: i, Path: res.Path,
			Stage: StageLoading, Status: StatusFailed, Err: cause,
		})
	}
	return results
}

// cancelRemaining appends Cancelled results from index from onward.
func (r *Runner) cancelRemaining(job BatchJob, onEvent ProgressFunc, results []FileResult, from int) []FileResult {
	for i := from; i < len(job.Files); i++ {
		res := FileResult{Path: job.Files[i], Status: StatusCancelled, Stage: StageQueued}
		results = append(results, res)
		r.emit(onEvent, ProgressEvent{
			JobID: job.ID, FileIndex: i, Path: res.Path,
			Stage: StageQueued, Status: StatusCancelled,
		})
	}
	return results
}

// processFile drives one file through the stage machine. The bool return is
// true when the failure dooms the rest of the batch (session-level errors).
func (r *Runner) processFile(ctx context.Context, job BatchJob, desc registry.ModelDescriptor, modelPath string, index int, path string, onEvent ProgressFunc) (FileResult, bool) {
	start := time.Now()
	stage := StageQueued

	running := func(s Stage, fraction float64) {
		stage = s
		r.emit(onEvent, ProgressEvent{
			JobID: job.ID, FileIndex: index, Path: path,
			Stage: s, Status: StatusRunning, Fraction: fraction,
		})
	}
	fail := func(err error) FileResult {
		r.log.Warn("file failed",
			zap.String("job_id", job.ID.String()),
			zap.String("path", path),
			zap.String("stage", string(stage)),
			zap.Error(err))
		return FileResult{Path: path, Status: StatusFailed, Stage: stage, Err: err, Duration: time.Since(start)}
	}
	cancelled := func() FileResult {
		return FileResult{Path: path, Status: StatusCancelled, Stage: stage, Duration: time.Since(start)}
	}

	// Loading: session for the batch model (a reuse after the first file).
	running(StageLoading, 0)
	sess, err := r.sessions.Use(ctx, desc.ID, modelPath)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return cancelled(), false
		}
		return fail(err), true
	}

	// Tiling: decode, clamp, tensorize, split.
	running(StageTiling, 0)
	img, format, err := decodeImage(path)
	if err != nil {
		return fail(err), false
	}
	img = clampLongEdge(img, r.cfg.MaxInputEdge)
	src := tensor.FromImage(img)

	tileCfg := tile.Config{TileSize: r.cfg.TileSize, Overlap: r.cfg.TileOverlap}
	tiles, err := tile.Split(src, tileCfg)
	if err != nil {
		return fail(err), false
	}

	// Inferring: bounded fan-out, results keyed by tile origin.
	running(StageInferring, 0)
	scaled := make([]tile.Tile, len(tiles))
	var completed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for i, t := range tiles {
		i, t := i, t
		g.Go(func() error {
			out, err := sess.Infer(gctx, t.Data)
			if err != nil {
				return fmt.Errorf("tile (%d,%d): %w", t.X, t.Y, err)
			}
			scaled[i] = tile.Tile{X: t.X, Y: t.Y, Data: out}
			done := completed.Add(1)
			r.emit(onEvent, ProgressEvent{
				JobID: job.ID, FileIndex: index, Path: path,
				Stage: StageInferring, Status: StatusRunning,
				Fraction: float64(done) / float64(len(tiles)),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return cancelled(), false
		}
		return fail(err), false
	}

	// Stitching.
	running(StageStitching, 0)
	result, err := tile.Stitch(scaled, tileCfg, src.Width, src.Height, desc.ScaleFactor)
	if err != nil {
		return fail(err), false
	}
	if ctx.Err() != nil {
		return cancelled(), false
	}

	// Saving.
	running(StageSaving, 0)
	out := clampLongEdge(result.ToImage(), r.cfg.PostResizeEdge)

	outPath, err := r.outputPath(job, desc, path, format)
	if err != nil {
		return fail(err), false
	}
	if err := encodeImage(outPath, out); err != nil {
		return fail(err), false
	}

	r.log.Info("file upscaled",
		zap.String("job_id", job.ID.String()),
		zap.String("path", path),
		zap.String("output", outPath),
		zap.Duration("took", time.Since(start)))

	return FileResult{
		Path: path, OutputPath: outPath, Status: StatusDone,
		Stage: StageSaving, Duration: time.Since(start),
	}, false
}

func (r *Runner) workers() int {
	if r.cfg.TileWorkers > 0 {
		return r.cfg.TileWorkers
	}
	return core.DefaultTileWorkers
}

// outputPath derives where the result is written: output dir, input stem,
// suffix, and an extension matching the input format's encoder. The source
// file is never overwritten.
func (r *Runner) outputPath(job BatchJob, desc registry.ModelDescriptor, inputPath, format string) (string, error) {
	dir := job.OutputDir
	if dir == "" {
		dir = r.cfg.OutputDir
	}
	// A relative output dir lands next to the input, the way the default
	// "processed" directory does.
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(inputPath), dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &EncodeError{Path: dir, Cause: err}
	}

	suffix := job.Suffix
	if suffix == "" {
		suffix = r.cfg.OutputSuffix
	}
	if suffix == "" {
		suffix = desc.OutputSuffix()
	}

	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	outPath := filepath.Join(dir, stem+suffix+encodeExt(format))

	absIn, err1 := filepath.Abs(inputPath)
	absOut, err2 := filepath.Abs(outPath)
	if err1 == nil && err2 == nil && absIn == absOut {
		return "", &EncodeError{Path: outPath, Cause: fmt.Errorf("output would overwrite the source file")}
	}
	return outPath, nil
}
