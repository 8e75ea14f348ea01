package core

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName is used to derive platform data directory paths.
const AppName = "upscaler"

// GetDataDirectory returns the platform data directory for the application:
//
//   - Windows: %APPDATA%\upscaler
//   - elsewhere: ~/.upscaler
//
// The directory is not created; see EnsureDataDirectory.
func GetDataDirectory() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppName)
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return AppName
		}
		return filepath.Join(home, "AppData", "Roaming", AppName)
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "." + AppName
		}
		return filepath.Join(home, "."+AppName)
	}
}

// EnsureDataDirectory creates the data directory if missing and returns it.
func EnsureDataDirectory() (string, error) {
	dir := GetDataDirectory()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
