package util

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	AppConfigDir = ".config/microblog"
)

// GetConfigDir returns ~/.config/microblog, creating it when missing.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, AppConfigDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// ResolveFilePath resolves a relative file name, preferring the working
// directory, then the user config directory. When neither holds the file
// the config directory path is returned so the file can be created there.
// Absolute paths are returned unchanged.
func ResolveFilePath(filename string) string {
	return ResolveFilePathWithSubdir("", filename)
}

// ResolveFilePathWithSubdir is ResolveFilePath for a file below subdir. The
// subdirectory is created in the config directory when needed.
func ResolveFilePathWithSubdir(subdir, filename string) string {
	localPath := filepath.Join(subdir, filename)
	if filepath.IsAbs(localPath) {
		return localPath
	}
	if _, err := os.Stat(localPath); err == nil {
		return localPath
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return localPath
	}

	userPath := filepath.Join(configDir, localPath)
	if _, err := os.Stat(userPath); err == nil {
		return userPath
	}

	os.MkdirAll(filepath.Dir(userPath), 0755)
	return userPath
}
