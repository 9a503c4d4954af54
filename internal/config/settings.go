package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	DefaultSerialPort     = "/dev/ttyACM0"
	DefaultBaudRate       = 9600
	DefaultListenAddress  = ":5000"
	DefaultPollInterval   = time.Second
	DefaultMaxConnections = 64
)

// Duration is a time.Duration that reads and writes as a string ("1s") in
// settings.json.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}

	*d = Duration(parsed)
	return nil
}

type Settings struct {
	SerialPort     string   `json:"serial_port"`
	BaudRate       int      `json:"baud_rate"`
	ListenAddress  string   `json:"listen_address"`
	PollInterval   Duration `json:"poll_interval"`
	AutoConnect    bool     `json:"auto_connect"`
	Advertise      bool     `json:"advertise"`
	DBus           bool     `json:"dbus"`
	MaxConnections int      `json:"max_connections"`
}

func DefaultSettings() *Settings {
	return &Settings{
		SerialPort:     DefaultSerialPort,
		BaudRate:       DefaultBaudRate,
		ListenAddress:  DefaultListenAddress,
		PollInterval:   Duration(DefaultPollInterval),
		MaxConnections: DefaultMaxConnections,
	}
}

func DefaultSettingsPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

func LoadOrInitializeSettingsFromDefaultLocation() (bool, *Settings) {
	return LoadOrInitializeSettings(DefaultSettingsPath())
}

// LoadOrInitializeSettings reports true when no usable file existed and the
// defaults were returned instead. Environment overrides apply either way.
func LoadOrInitializeSettings(path string) (bool, *Settings) {
	if settings, err := LoadSettings(path); err == nil {
		settings.ApplyEnv()
		return false, settings
	}

	settings := DefaultSettings()
	settings.ApplyEnv()
	return true, settings
}

func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// ApplyEnv overrides the device and listener settings from NITRONIMBUS_*
// variables. Unparseable values are ignored.
func (s *Settings) ApplyEnv() {
	if port := os.Getenv("NITRONIMBUS_SERIAL_PORT"); port != "" {
		s.SerialPort = port
	}

	if raw := os.Getenv("NITRONIMBUS_BAUD_RATE"); raw != "" {
		if baud, err := strconv.Atoi(raw); err == nil {
			s.BaudRate = baud
		}
	}

	if addr := os.Getenv("NITRONIMBUS_LISTEN_ADDRESS"); addr != "" {
		s.ListenAddress = addr
	}
}

func (s *Settings) Validate() error {
	var errs []error

	if s.SerialPort == "" {
		errs = append(errs, errors.New("serial_port must not be empty"))
	}
	if s.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("baud_rate must be positive, got %d", s.BaudRate))
	}
	if s.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", time.Duration(s.PollInterval)))
	}
	if s.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("max_connections must not be negative, got %d", s.MaxConnections))
	}

	return errors.Join(errs...)
}

func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
