// Package modelstore downloads model weights on demand and maintains the
// local cache. A model is "available" when its file exists in the cache
// directory and its integrity is proven, either by the sidecar manifest or
// by a full SHA-256 pass.
//
// Downloads go to a ".part" file and are promoted into place with an atomic
// rename only after verification, so a crash or a failed checksum never
// leaves a plausible-looking but corrupt model in the cache. Interrupted
// downloads resume from the partial file using HTTP Range requests.
package modelstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"go_upscaler/core"
	"go_upscaler/logging"
	"go_upscaler/registry"
)

// ErrIntegrity means a file's SHA-256 did not match the registry entry.
// It is never retried: the bytes at the URL are wrong, not the transfer.
var ErrIntegrity = errors.New("model integrity check failed")

// DownloadError reports a failed acquisition with enough detail for the
// user to fetch the file manually.
type DownloadError struct {
	ModelID  string
	URL      string
	DestPath string
	Attempts int
	Cause    error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of model %q failed after %d attempt(s): %v (url: %s, dest: %s)",
		e.ModelID, e.Attempts, e.Cause, e.URL, e.DestPath)
}

func (e *DownloadError) Unwrap() error { return e.Cause }

// Store manages the on-disk model cache.
type Store struct {
	dir             string
	httpClient      *http.Client
	log             *logging.Logger
	maxRetries      int
	baseRetryDelay  time.Duration
	diskSpaceBuffer int

	group singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient replaces the default download client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithMaxRetries sets how many download attempts are made per model.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithBaseRetryDelay sets the initial backoff delay; it doubles per attempt.
func WithBaseRetryDelay(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.baseRetryDelay = d
		}
	}
}

// WithDiskSpaceBuffer sets the percentage of headroom required on top of
// the model's declared size before a download starts.
func WithDiskSpaceBuffer(percent int) Option {
	return func(s *Store) {
		if percent >= 0 {
			s.diskSpaceBuffer = percent
		}
	}
}

// New creates a store rooted at dir. log may be nil.
//
// Defaults: 3 attempts with exponential backoff starting at 2s, 10% disk
// space buffer, and an HTTP client with no overall timeout (multi-gigabyte
// downloads are bounded by the caller's context instead).
func New(dir string, log *logging.Logger, opts ...Option) *Store {
	if log == nil {
		log = logging.NewTestLogger()
	}
	s := &Store{
		dir:             dir,
		httpClient:      &http.Client{Timeout: 0},
		log:             log,
		maxRetries:      3,
		baseRetryDelay:  2 * time.Second,
		diskSpaceBuffer: 10,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// Path returns where the model's weights live (or will live) in the cache.
func (s *Store) Path(desc registry.ModelDescriptor) string {
	return filepath.Join(s.dir, desc.Filename)
}

// IsCached reports whether the model is already available without touching
// the network. A file whose manifest is missing is re-hashed.
func (s *Store) IsCached(desc registry.ModelDescriptor) (bool, error) {
	ok, _, err := s.checkCached(desc)
	return ok, err
}

// EnsureAvailable returns the local path of the model's weights, downloading
// them first if the cache has no verified copy. Concurrent calls for the
// same model id share one download. onProgress may be nil.
func (s *Store) EnsureAvailable(ctx context.Context, desc registry.ModelDescriptor, onProgress ProgressFunc) (string, error) {
	if err := desc.Validate(); err != nil {
		return "", err
	}

	v, err, _ := s.group.Do(desc.ID, func() (interface{}, error) {
		return s.ensure(ctx, desc, onProgress)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Evict removes a model and its manifest from the cache. Missing files are
// not an error.
func (s *Store) Evict(desc registry.ModelDescriptor) error {
	path := s.Path(desc)
	removeManifest(path)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("evict %s: %w", path, err)
	}
	_ = os.Remove(partPath(path))
	return nil
}

func partPath(modelPath string) string { return modelPath + ".part" }

func (s *Store) ensure(ctx context.Context, desc registry.ModelDescriptor, onProgress ProgressFunc) (string, error) {
	path := s.Path(desc)

	cached, corrupt, err := s.checkCached(desc)
	if err != nil {
		return "", err
	}
	if cached {
		s.log.Debug("model cache hit",
			zap.String("model_id", desc.ID), zap.String("path", path))
		return path, nil
	}
	if corrupt {
		s.log.Warn("cached model failed integrity check, re-downloading",
			zap.String("model_id", desc.ID), zap.String("path", path))
		removeManifest(path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("remove corrupt model %s: %w", path, err)
		}
	}

	if err := s.download(ctx, desc, path, onProgress); err != nil {
		return "", err
	}
	return path, nil
}

// checkCached reports (cached, corrupt, err). corrupt means a file exists
// but its content does not match the descriptor's hash.
func (s *Store) checkCached(desc registry.ModelDescriptor) (bool, bool, error) {
	path := s.Path(desc)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("stat model file: %w", err)
	}
	if info.IsDir() {
		return false, false, fmt.Errorf("model path is a directory: %s", path)
	}
	if info.Size() == 0 {
		return false, true, nil
	}

	// Fast path: a manifest matching the file size and the expected hash
	// proves a previous verification.
	if m, err := readManifest(path); err == nil {
		if m.Size == info.Size() &&
			(desc.SHA256 == "" || strings.EqualFold(m.SHA256, desc.SHA256)) {
			return true, false, nil
		}
	}

	// Slow path: hash the file.
	if desc.SHA256 == "" {
		computed, err := core.ComputeSHA256(path)
		if err != nil {
			return false, false, fmt.Errorf("hash model file: %w", err)
		}
		if err := writeManifest(path, manifest{
			SHA256: computed, Size: info.Size(), URL: desc.URL, VerifiedAt: time.Now(),
		}); err != nil {
			s.log.Warn("manifest write failed", zap.String("path", path), zap.Error(err))
		}
		return true, false, nil
	}

	valid, err := core.VerifyChecksum(path, desc.SHA256)
	if err != nil {
		return false, false, fmt.Errorf("verify model file: %w", err)
	}
	if !valid {
		return false, true, nil
	}
	if err := writeManifest(path, manifest{
		SHA256: strings.ToLower(desc.SHA256), Size: info.Size(), URL: desc.URL, VerifiedAt: time.Now(),
	}); err != nil {
		s.log.Warn("manifest write failed", zap.String("path", path), zap.Error(err))
	}
	return true, false, nil
}

func (s *Store) download(ctx context.Context, desc registry.ModelDescriptor, destPath string, onProgress ProgressFunc) error {
	if desc.SizeBytes > 0 {
		required := desc.SizeBytes + desc.SizeBytes*int64(s.diskSpaceBuffer)/100
		if err := checkDiskSpace(s.dir, required); err != nil {
			return &DownloadError{
				ModelID: desc.ID, URL: desc.URL, DestPath: destPath,
				Attempts: 0, Cause: err,
			}
		}
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	s.log.Info("downloading model",
		zap.String("model_id", desc.ID),
		zap.String("url", desc.URL),
		zap.String("size", core.FormatBytes(desc.SizeBytes)))

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 1 {
			delay := s.baseRetryDelay * time.Duration(1<<(attempt-2))
			s.log.Warn("retrying model download",
				zap.String("model_id", desc.ID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := s.attemptDownload(ctx, desc, destPath, onProgress)
		if err == nil {
			s.log.Info("model download complete",
				zap.String("model_id", desc.ID), zap.String("path", destPath))
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}

	return &DownloadError{
		ModelID: desc.ID, URL: desc.URL, DestPath: destPath,
		Attempts: s.maxRetries, Cause: lastErr,
	}
}

// attemptDownload performs one transfer into the ".part" file, verifies it,
// and promotes it with a rename.
func (s *Store) attemptDownload(ctx context.Context, desc registry.ModelDescriptor, destPath string, onProgress ProgressFunc) error {
	part := partPath(destPath)

	var resumeFrom int64
	if info, err := os.Stat(part); err == nil {
		resumeFrom = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var totalSize int64
	var file *os.File

	switch resp.StatusCode {
	case http.StatusOK:
		// Full content; any partial file is stale.
		totalSize = resp.ContentLength
		resumeFrom = 0
		file, err = os.Create(part)

	case http.StatusPartialContent:
		if _, _, total, parseErr := parseContentRange(resp.Header.Get("Content-Range")); parseErr == nil && total > 0 {
			totalSize = total
		} else if resp.ContentLength > 0 {
			totalSize = resumeFrom + resp.ContentLength
		}
		file, err = os.OpenFile(part, os.O_APPEND|os.O_WRONLY, 0644)

	case http.StatusRequestedRangeNotSatisfiable:
		// The partial file is at or past the server's size. Start over.
		_ = os.Remove(part)
		return fmt.Errorf("server rejected resume range, restarting download")

	default:
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	if err != nil {
		return fmt.Errorf("open partial file: %w", err)
	}

	tracker := newProgressTracker(desc.ID, totalSize, resumeFrom)
	reader := &progressReader{reader: resp.Body, tracker: tracker, onProgress: onProgress}

	_, copyErr := io.Copy(file, reader)
	if copyErr != nil {
		file.Close()
		return fmt.Errorf("transfer interrupted: %w", copyErr)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("sync partial file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close partial file: %w", err)
	}
	if onProgress != nil {
		onProgress(tracker.snapshot())
	}

	computed, err := core.ComputeSHA256(part)
	if err != nil {
		return fmt.Errorf("hash downloaded file: %w", err)
	}
	if desc.SHA256 != "" && computed != strings.ToLower(desc.SHA256) {
		// The bytes are wrong; resuming from them would reproduce the
		// mismatch.
		_ = os.Remove(part)
		return fmt.Errorf("%w: got %s, want %s", ErrIntegrity, computed, strings.ToLower(desc.SHA256))
	}

	info, err := os.Stat(part)
	if err != nil {
		return fmt.Errorf("stat downloaded file: %w", err)
	}
	if err := writeManifest(destPath, manifest{
		SHA256: computed, Size: info.Size(), URL: desc.URL, VerifiedAt: time.Now(),
	}); err != nil {
		return err
	}
	if err := os.Rename(part, destPath); err != nil {
		removeManifest(destPath)
		return fmt.Errorf("promote downloaded file: %w", err)
	}
	return nil
}

// isRetryable classifies download failures. Network and server errors are
// worth retrying; cancellation, integrity and disk space failures are not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrIntegrity) {
		return false
	}
	var dse *DiskSpaceError
	return !errors.As(err, &dse)
}

// parseContentRange extracts the byte range and total size from a
// Content-Range header ("bytes start-end/total", total may be "*").
func parseContentRange(header string) (start, end, total int64, err error) {
	if header == "" {
		return 0, 0, 0, fmt.Errorf("empty Content-Range header")
	}
	var totalStr string
	n, scanErr := fmt.Sscanf(header, "bytes %d-%d/%s", &start, &end, &totalStr)
	if scanErr != nil || n < 3 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range: %q", header)
	}
	if totalStr == "*" {
		total = -1
	} else if _, err := fmt.Sscanf(totalStr, "%d", &total); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid total in Content-Range: %q", totalStr)
	}
	return start, end, total, nil
}
