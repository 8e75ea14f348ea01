package modelstore

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// manifest is the sidecar record written next to a verified model file.
// It lets later cache checks trust size + recorded hash instead of
// re-hashing multi-gigabyte weights on every startup.
type manifest struct {
	SHA256     string    `json:"sha256"`
	Size       int64     `json:"size"`
	URL        string    `json:"url"`
	VerifiedAt time.Time `json:"verified_at"`
}

func manifestPath(modelPath string) string {
	return modelPath + ".sha256.json"
}

func readManifest(modelPath string) (manifest, error) {
	var m manifest
	data, err := os.ReadFile(manifestPath(modelPath))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest for %s: %w", modelPath, err)
	}
	return m, nil
}

// writeManifest writes the sidecar atomically: temp file then rename.
func writeManifest(modelPath string, m manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp := manifestPath(modelPath) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, manifestPath(modelPath)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit manifest: %w", err)
	}
	return nil
}

func removeManifest(modelPath string) {
	_ = os.Remove(manifestPath(modelPath))
}
