// Package core provides configuration and small shared helpers for the
// upscale engine: environment parsing, checksums, data directories and
// byte formatting.
package core

import (
	"fmt"
	"path/filepath"
)

// Config holds the engine configuration loaded from the environment.
//
// All values have working defaults so the application runs with an empty
// environment; a .env file (loaded by the CLI before LoadConfig) or real
// environment variables override them.
type Config struct {
	// CacheDir is the model cache directory (UPSCALER_CACHE_DIR).
	// Defaults to <data dir>/models.
	CacheDir string

	// OutputDir is the default directory for upscaled images
	// (UPSCALER_OUTPUT_DIR). Relative paths are resolved against the
	// input file's directory by the pipeline.
	OutputDir string

	// OutputSuffix overrides the per-model output filename suffix
	// (UPSCALER_OUTPUT_SUFFIX). Empty means derive from the model
	// ("_4x", "_denoised", "_enhanced").
	OutputSuffix string

	// TileSize is the tile content edge in pixels (UPSCALER_TILE_SIZE).
	TileSize int

	// TileOverlap is the overlap between adjacent tiles in pixels
	// (UPSCALER_TILE_OVERLAP).
	TileOverlap int

	// TileWorkers is the number of concurrent tile inference workers
	// (UPSCALER_TILE_WORKERS).
	TileWorkers int

	// MaxInputEdge clamps oversized inputs before upscaling; 0 disables
	// the clamp (UPSCALER_MAX_INPUT_EDGE).
	MaxInputEdge int

	// PostResizeEdge resizes the stitched result so its long edge equals
	// this value; 0 disables post-resize (UPSCALER_POST_RESIZE_EDGE).
	PostResizeEdge int

	// ORTLibDir is the directory containing the ONNX Runtime shared
	// library (ORT_LIB_DIR). Empty means rely on the system loader path.
	ORTLibDir string

	// ModelsFile is an optional YAML catalog overlay
	// (UPSCALER_MODELS_FILE).
	ModelsFile string

	// HistoryDB is the path of the SQLite job history database
	// (UPSCALER_HISTORY_DB). Defaults to <data dir>/history.db.
	HistoryDB string

	// LogFile is the log file path (UPSCALER_LOG_FILE).
	LogFile string

	// DevMode enables debug logging and console colors (DEV_MODE).
	DevMode bool
}

// Default tuning values. Tile size and overlap are deliberately
// configurable: the ideal overlap depends on the model's receptive field,
// which varies per architecture.
const (
	DefaultTileSize     = 256
	DefaultTileOverlap  = 16
	DefaultTileWorkers  = 2
	DefaultMaxInputEdge = 0
	DefaultOutputDir    = "processed"
)

// LoadConfig reads the configuration from the environment and validates it.
func LoadConfig() (Config, error) {
	dataDir := GetDataDirectory()

	cfg := Config{
		CacheDir:       GetEnvOrDefault("UPSCALER_CACHE_DIR", filepath.Join(dataDir, "models")),
		OutputDir:      GetEnvOrDefault("UPSCALER_OUTPUT_DIR", DefaultOutputDir),
		OutputSuffix:   GetEnvOrDefault("UPSCALER_OUTPUT_SUFFIX", ""),
		TileSize:       ParseIntEnv("UPSCALER_TILE_SIZE", DefaultTileSize),
		TileOverlap:    ParseIntEnv("UPSCALER_TILE_OVERLAP", DefaultTileOverlap),
		TileWorkers:    ParseIntEnv("UPSCALER_TILE_WORKERS", DefaultTileWorkers),
		MaxInputEdge:   ParseIntEnv("UPSCALER_MAX_INPUT_EDGE", DefaultMaxInputEdge),
		PostResizeEdge: ParseIntEnv("UPSCALER_POST_RESIZE_EDGE", 0),
		ORTLibDir:      GetEnvOrDefault("ORT_LIB_DIR", ""),
		ModelsFile:     GetEnvOrDefault("UPSCALER_MODELS_FILE", ""),
		HistoryDB:      GetEnvOrDefault("UPSCALER_HISTORY_DB", filepath.Join(dataDir, "history.db")),
		LogFile:        GetEnvOrDefault("UPSCALER_LOG_FILE", "upscaler.log"),
		DevMode:        ParseBoolEnv("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot work with.
func (c Config) Validate() error {
	if c.TileSize <= 0 {
		return fmt.Errorf("UPSCALER_TILE_SIZE must be positive, got %d", c.TileSize)
	}
	if c.TileOverlap < 0 {
		return fmt.Errorf("UPSCALER_TILE_OVERLAP must not be negative, got %d", c.TileOverlap)
	}
	if c.TileOverlap >= c.TileSize {
		return fmt.Errorf("UPSCALER_TILE_OVERLAP (%d) must be smaller than UPSCALER_TILE_SIZE (%d)",
			c.TileOverlap, c.TileSize)
	}
	if c.TileWorkers <= 0 {
		return fmt.Errorf("UPSCALER_TILE_WORKERS must be positive, got %d", c.TileWorkers)
	}
	if c.MaxInputEdge < 0 {
		return fmt.Errorf("UPSCALER_MAX_INPUT_EDGE must not be negative, got %d", c.MaxInputEdge)
	}
	if c.PostResizeEdge < 0 {
		return fmt.Errorf("UPSCALER_POST_RESIZE_EDGE must not be negative, got %d", c.PostResizeEdge)
	}
	if c.CacheDir == "" {
		return fmt.Errorf("UPSCALER_CACHE_DIR must not be empty")
	}
	return nil
}
