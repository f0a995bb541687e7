package core

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the application name used in data directory paths.
const AppName = "waifu2x"

// DataDirEnv overrides the platform data directory.
const DataDirEnv = "W2X_DATA_DIR"

// GetDataDirectory returns where the job ledger, logs and downloaded
// models live when no explicit path is configured.
//
//   - W2X_DATA_DIR when set
//   - Windows: %APPDATA%\waifu2x
//   - Linux/macOS: ~/.waifu2x
//
// Does NOT create the directory; use EnsureDataDirectory for that.
func GetDataDirectory() string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return AppName
			}
			return filepath.Join(home, "AppData", "Roaming", AppName)
		}
		return filepath.Join(appData, AppName)
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "." + AppName
		}
		return filepath.Join(home, "."+AppName)
	}
}

// GetDataFilePath returns the full path for a file within the data directory.
// Example: GetDataFilePath("jobs.db") -> "/home/user/.waifu2x/jobs.db"
func GetDataFilePath(filename string) string {
	return filepath.Join(GetDataDirectory(), filename)
}

// EnsureDataDirectory creates the data directory if it doesn't exist.
func EnsureDataDirectory() (string, error) {
	dir := GetDataDirectory()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
