package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	APP_DIR_NAME = "nitronimbus"
)

// DataDir is where the reading store lives.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ConfigDir is where settings.json lives.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

func xdgDir(envVar string, homeRelative string) string {
	if base := os.Getenv(envVar); base != "" {
		return filepath.Join(base, APP_DIR_NAME)
	}

	homeDir, err := os.UserHomeDir()
	// Without a home directory fall back to the working directory
	if err != nil {
		currentDir, err := os.Getwd()
		if err != nil {
			return "."
		}

		return currentDir
	}

	conventional := filepath.Join(homeDir, homeRelative)
	if _, err := os.Stat(conventional); err == nil {
		return filepath.Join(conventional, APP_DIR_NAME)
	}

	return filepath.Join(homeDir, fmt.Sprintf(".%s", APP_DIR_NAME))
}
