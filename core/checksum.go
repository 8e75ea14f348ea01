package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// ComputeSHA256 computes the SHA-256 hash of a file and returns it as a
// lowercase hex string (64 characters).
func ComputeSHA256(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeSHA256FromBytes computes the SHA-256 hash of in-memory data.
func ComputeSHA256FromBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum compares a file's SHA-256 hash against an expected value.
// Comparison is case-insensitive. The expected hash must be 64 hex
// characters; anything else is an error rather than a mismatch.
func VerifyChecksum(path, expected string) (bool, error) {
	if expected == "" {
		return false, fmt.Errorf("expected hash cannot be empty")
	}
	if len(expected) != 64 {
		return false, fmt.Errorf("invalid SHA-256 length: expected 64 characters, got %d", len(expected))
	}
	if _, err := hex.DecodeString(expected); err != nil {
		return false, fmt.Errorf("invalid SHA-256 format: %w", err)
	}

	computed, err := ComputeSHA256(path)
	if err != nil {
		return false, err
	}
	return computed == strings.ToLower(expected), nil
}
