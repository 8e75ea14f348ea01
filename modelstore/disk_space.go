package modelstore

import (
	"fmt"
	"os"
	"path/filepath"

	"go_upscaler/core"
)

// DiskSpaceError indicates the cache filesystem cannot hold a model.
type DiskSpaceError struct {
	// Path that was checked.
	Path string
	// Required space in bytes, including the safety buffer.
	Required int64
	// Available space in bytes.
	Available int64
}

func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space at %s: need %s, have %s free",
		e.Path, core.FormatBytes(e.Required), core.FormatBytes(e.Available))
}

// checkDiskSpace verifies the filesystem containing path has at least
// requiredBytes free. If path does not exist yet the nearest existing
// ancestor is checked instead.
func checkDiskSpace(path string, requiredBytes int64) error {
	probe := path
	for {
		if _, err := os.Stat(probe); err == nil {
			break
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return fmt.Errorf("no accessible ancestor for %s", path)
		}
		probe = parent
	}

	_, free, err := getDiskSpace(probe)
	if err != nil {
		return fmt.Errorf("query disk space for %s: %w", probe, err)
	}
	if free < requiredBytes {
		return &DiskSpaceError{Path: path, Required: requiredBytes, Available: free}
	}
	return nil
}
