package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nitronimbus/nitronimbus/internal/config"
	"github.com/nitronimbus/nitronimbus/internal/globals"
)

func TestServeSettingsOnlyOverridesChangedFlags(t *testing.T) {
	loaded := config.DefaultSettings()
	loaded.SerialPort = "/dev/ttyUSB3"
	loaded.ListenAddress = ":7000"
	globals.Settings = loaded
	t.Cleanup(func() { globals.Settings = nil })

	require.NoError(t, serveCmd.Flags().Set("baud", "115200"))
	require.NoError(t, serveCmd.Flags().Set("poll-interval", "250ms"))
	require.NoError(t, serveCmd.Flags().Set("auto-connect", "true"))

	settings := serveSettings(serveCmd)
	require.Equal(t, "/dev/ttyUSB3", settings.SerialPort)
	require.Equal(t, ":7000", settings.ListenAddress)
	require.Equal(t, 115200, settings.BaudRate)
	require.Equal(t, config.Duration(250*time.Millisecond), settings.PollInterval)
	require.True(t, settings.AutoConnect)
	require.False(t, settings.DBus)

	require.Equal(t, config.DefaultBaudRate, loaded.BaudRate)
}

func TestLocalAddress(t *testing.T) {
	require.Equal(t, "127.0.0.1:5000", localAddress(":5000"))
	require.Equal(t, "monitor.lan:5000", localAddress("monitor.lan:5000"))
}
