package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// DB_NAME is the reading store's file name inside DataDir.
	DB_NAME = "nitronimbus.sqlite"
	// DB_PATH_ENV overrides the reading store location entirely.
	DB_PATH_ENV = "NITRONIMBUS_DB_PATH"
)

// DBPath is the SQLite file holding readings and daily statistics.
// NITRONIMBUS_DB_PATH wins when set, with a leading "~/" expanded to the
// home directory. Otherwise the store is DB_NAME under DataDir, normally
// $XDG_DATA_HOME/nitronimbus/nitronimbus.sqlite.
func DBPath() string {
	if dbPath := os.Getenv(DB_PATH_ENV); dbPath != "" {
		return expandHome(dbPath)
	}

	return filepath.Join(DataDir(), DB_NAME)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(homeDir, path[2:])
}
