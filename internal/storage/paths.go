// Package storage provides persistent storage for run configuration, agent
// state and training statistics.
package storage

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "snakerl"

// platformDataHome returns the per-user data root for the current OS:
// Application Support on macOS, APPDATA on Windows, XDG_DATA_HOME or
// ~/.local/share elsewhere.
func platformDataHome() (string, error) {
	var env string
	var fallback []string
	switch runtime.GOOS {
	case "darwin":
		fallback = []string{"Library", "Application Support"}
	case "windows":
		env, fallback = "APPDATA", []string{"AppData", "Roaming"}
	default:
		env, fallback = "XDG_DATA_HOME", []string{".local", "share"}
	}

	if env != "" {
		if dir := os.Getenv(env); dir != "" {
			return dir, nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{home}, fallback...)...), nil
}

// subDir returns root/name, creating it if needed.
func subDir(root, name string) (string, error) {
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// GetDataDir returns the application data directory, creating it if needed.
func GetDataDir() (string, error) {
	home, err := platformDataHome()
	if err != nil {
		return "", err
	}
	return subDir(home, appName)
}

// GetCheckpointDir returns the directory for network and agent-state files
// under root.
func GetCheckpointDir(root string) (string, error) {
	return subDir(root, "checkpoints")
}

// GetDatabaseDir returns the directory for the BadgerDB database under root.
func GetDatabaseDir(root string) (string, error) {
	return subDir(root, "db")
}
