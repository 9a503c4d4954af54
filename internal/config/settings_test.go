package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadOrInitializeSettingsWithoutFile(t *testing.T) {
	created, settings := LoadOrInitializeSettings(filepath.Join(t.TempDir(), "settings.json"))

	require.True(t, created)
	require.Equal(t, DefaultSettings(), settings)
}

func TestSettingsRoundTripThroughFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	settings := DefaultSettings()
	settings.SerialPort = "/dev/ttyUSB0"
	settings.PollInterval = Duration(500 * time.Millisecond)
	settings.Advertise = true
	require.NoError(t, settings.SaveTo(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"poll_interval": "500ms"`)

	created, loaded := LoadOrInitializeSettings(path)
	require.False(t, created)
	require.Equal(t, settings, loaded)
}

func TestPartialSettingsFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"baud_rate": 19200}`), 0644))

	settings, err := LoadSettings(path)
	require.NoError(t, err)
	require.Equal(t, 19200, settings.BaudRate)
	require.Equal(t, DefaultSerialPort, settings.SerialPort)
	require.Equal(t, Duration(DefaultPollInterval), settings.PollInterval)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("NITRONIMBUS_SERIAL_PORT", "/dev/ttyS1")
	t.Setenv("NITRONIMBUS_BAUD_RATE", "not-a-number")
	t.Setenv("NITRONIMBUS_LISTEN_ADDRESS", "127.0.0.1:9000")

	settings := DefaultSettings()
	settings.ApplyEnv()

	require.Equal(t, "/dev/ttyS1", settings.SerialPort)
	require.Equal(t, DefaultBaudRate, settings.BaudRate)
	require.Equal(t, "127.0.0.1:9000", settings.ListenAddress)
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())

	settings := DefaultSettings()
	settings.SerialPort = ""
	settings.BaudRate = 0
	settings.PollInterval = 0

	err := settings.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "serial_port")
	require.Contains(t, err.Error(), "baud_rate")
	require.Contains(t, err.Error(), "poll_interval")
}

func TestInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"poll_interval": 5}`), 0644))

	_, err := LoadSettings(path)
	require.Error(t, err)
}

func TestDBPathFromEnv(t *testing.T) {
	t.Setenv("NITRONIMBUS_DB_PATH", "/tmp/readings.sqlite")
	require.Equal(t, "/tmp/readings.sqlite", DBPath())
}

func TestDBPathExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(DB_PATH_ENV, "~/air/readings.sqlite")

	require.Equal(t, filepath.Join(home, "air", "readings.sqlite"), DBPath())
}

func TestDBPathDefaultsToDataDir(t *testing.T) {
	data := t.TempDir()
	t.Setenv(DB_PATH_ENV, "")
	t.Setenv("XDG_DATA_HOME", data)

	require.Equal(t, filepath.Join(data, "nitronimbus", "nitronimbus.sqlite"), DBPath())
}
