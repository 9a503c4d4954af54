package globals

import (
	"log/slog"
	"os"
	"sync"

	"github.com/lmittmann/tint"

	"github.com/nitronimbus/nitronimbus/internal/config"
	"github.com/nitronimbus/nitronimbus/internal/database"
)

var (
	Settings *config.Settings
	Logger   *slog.Logger
	Store    *database.Handle

	initOnce sync.Once
	dbOnce   sync.Once
	dbErr    error
)

// Initialize sets up the logger and settings exactly once
func Initialize(verbose bool) {
	initOnce.Do(func() {
		setupLogger(verbose)

		Logger.Debug("Initializing global instances")

		newSettings, settingsLoaded := config.LoadOrInitializeSettingsFromDefaultLocation()
		Settings = settingsLoaded
		if newSettings {
			Logger.Debug("Created new settings file", "path", config.DefaultSettingsPath())
			if err := Settings.Save(); err != nil {
				Logger.Error("Failed to save new settings", "error", err)
			}
		} else {
			Logger.Debug("Loaded existing settings")
		}

		Logger.Debug("Global initialization completed", "verbose", verbose)
	})
}

// OpenStore opens the reading store at config.DBPath once and returns the
// shared handle on every later call.
func OpenStore() (*database.Handle, error) {
	MustBeInitialized()

	dbOnce.Do(func() {
		Store, dbErr = database.Open(config.DBPath(), Logger)
		if dbErr == nil {
			Logger.Debug("Database initialized", "path", config.DBPath())
		}
	})

	return Store, dbErr
}

// Close releases the store handle if it was opened.
func Close() {
	if Store != nil {
		if err := Store.Close(); err != nil {
			Logger.Warn("Failed to close database", "error", err)
		}
	}
}

// Logs go to stderr so that command output on stdout stays parseable.
func setupLogger(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	Logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: level,
	}))

	slog.SetDefault(Logger)
}

// MustBeInitialized panics if globals haven't been initialized
func MustBeInitialized() {
	if Settings == nil || Logger == nil {
		panic("globals not initialized - call globals.Initialize() first")
	}
}
