package modelstore

import (
	"io"
	"sync"
	"time"

	"go_upscaler/core"
)

// ProgressInfo is a snapshot of a running download, suitable for display.
type ProgressInfo struct {
	// ModelID is the model being downloaded.
	ModelID string
	// Total bytes to download (0 if the server did not say).
	Total int64
	// Downloaded bytes so far, including any resumed prefix.
	Downloaded int64
	// Percent complete (0-100), or -1 if total is unknown.
	Percent float64
	// SpeedBytesPerSec is a smoothed transfer rate.
	SpeedBytesPerSec float64
	// ETA is the estimated time remaining (0 if unknown).
	ETA time.Duration
	// Elapsed time since the download started.
	Elapsed time.Duration
}

// SpeedFormatted returns the transfer rate as e.g. "5.2 MB/s".
func (p ProgressInfo) SpeedFormatted() string {
	return core.FormatBytes(int64(p.SpeedBytesPerSec)) + "/s"
}

// ProgressFunc receives rate-limited progress snapshots during a download.
type ProgressFunc func(ProgressInfo)

// progressTracker accumulates byte counts and derives speed and ETA using
// an exponential moving average. Thread-safe.
type progressTracker struct {
	mu sync.Mutex

	modelID        string
	total          int64
	downloaded     int64
	startTime      time.Time
	lastUpdateTime time.Time
	lastDownloaded int64
	speedAvg       float64
}

// emaAlpha balances responsiveness against jitter in the speed estimate.
const emaAlpha = 0.3

func newProgressTracker(modelID string, total, resumedFrom int64) *progressTracker {
	now := time.Now()
	return &progressTracker{
		modelID:        modelID,
		total:          total,
		downloaded:     resumedFrom,
		startTime:      now,
		lastUpdateTime: now,
		lastDownloaded: resumedFrom,
	}
}

func (p *progressTracker) add(n int64) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.downloaded += n

	now := time.Now()
	elapsed := now.Sub(p.lastUpdateTime).Seconds()
	if elapsed < 0.1 {
		return
	}
	instant := float64(p.downloaded-p.lastDownloaded) / elapsed
	if p.speedAvg == 0 {
		p.speedAvg = instant
	} else {
		p.speedAvg = emaAlpha*instant + (1-emaAlpha)*p.speedAvg
	}
	p.lastUpdateTime = now
	p.lastDownloaded = p.downloaded
}

func (p *progressTracker) snapshot() ProgressInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	info := ProgressInfo{
		ModelID:          p.modelID,
		Total:            p.total,
		Downloaded:       p.downloaded,
		Percent:          -1,
		SpeedBytesPerSec: p.speedAvg,
		Elapsed:          time.Since(p.startTime),
	}
	if p.total > 0 {
		info.Percent = float64(p.downloaded) / float64(p.total) * 100
		if info.Percent > 100 {
			info.Percent = 100
		}
		if p.speedAvg > 0 && p.downloaded < p.total {
			remaining := float64(p.total - p.downloaded)
			info.ETA = time.Duration(remaining / p.speedAvg * float64(time.Second))
		}
	}
	return info
}

// progressReader wraps a response body and forwards byte counts to the
// tracker, invoking the callback at most every progressCallbackStride bytes.
type progressReader struct {
	reader       io.Reader
	tracker      *progressTracker
	onProgress   ProgressFunc
	lastCallback int64
}

const progressCallbackStride = 256 * 1024

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.tracker.add(int64(n))
		if r.onProgress != nil {
			downloaded := r.tracker.snapshot().Downloaded
			if downloaded-r.lastCallback >= progressCallbackStride {
				r.onProgress(r.tracker.snapshot())
				r.lastCallback = downloaded
			}
		}
	}
	return n, err
}
