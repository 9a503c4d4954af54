// Package bus exposes the query service on the session D-Bus for desktop
// widgets. It only answers calls; it never emits signals.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/nitronimbus/nitronimbus/internal/models"
)

const (
	DBUS_NAME      = "io.nitronimbus.Monitor"
	DBUS_PATH      = "/io/nitronimbus/Monitor"
	DBUS_INTERFACE = "io.nitronimbus.Monitor"

	CALL_TIMEOUT = 5 * time.Second
)

var ErrNameTaken = errors.New("bus name already taken")

type Controller interface {
	IsConnected() bool
}

type ReadingSource interface {
	Latest(ctx context.Context, limit int) ([]models.SensorReading, error)
}

type StatisticsSource interface {
	GetToday(ctx context.Context) (*models.DailyStatistic, error)
}

// Monitor is the exported object. Its methods are callable directly, which
// is how the tests use it.
type Monitor struct {
	controller Controller
	readings   ReadingSource
	statistics StatisticsSource
	logger     *slog.Logger
}

func NewMonitor(controller Controller, readings ReadingSource, statistics StatisticsSource, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		controller: controller,
		readings:   readings,
		statistics: statistics,
		logger:     logger,
	}
}

// Status reports whether the device link is open.
func (m *Monitor) Status() (bool, *dbus.Error) {
	return m.controller.IsConnected(), nil
}

// Latest returns the newest reading, or an empty dict when there is none.
func (m *Monitor) Latest() (map[string]dbus.Variant, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), CALL_TIMEOUT)
	defer cancel()

	latest, err := m.readings.Latest(ctx, 1)
	if err != nil {
		m.logger.Error("D-Bus Latest failed", "error", err)
		return nil, dbus.MakeFailedError(err)
	}

	if len(latest) == 0 {
		return map[string]dbus.Variant{}, nil
	}

	return readingVariant(latest[0]), nil
}

// StatisticsToday returns today's summary, or an empty dict when there is none.
func (m *Monitor) StatisticsToday() (map[string]dbus.Variant, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), CALL_TIMEOUT)
	defer cancel()

	stat, err := m.statistics.GetToday(ctx)
	if err != nil {
		m.logger.Error("D-Bus StatisticsToday failed", "error", err)
		return nil, dbus.MakeFailedError(err)
	}

	if stat == nil {
		return map[string]dbus.Variant{}, nil
	}

	return statisticVariant(*stat), nil
}

func readingVariant(r models.SensorReading) map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"timestamp":     dbus.MakeVariant(r.Timestamp.Unix()),
		"co_before":     dbus.MakeVariant(r.COBefore),
		"nox_before":    dbus.MakeVariant(r.NOxBefore),
		"co_after":      dbus.MakeVariant(r.COAfter),
		"nox_after":     dbus.MakeVariant(r.NOxAfter),
		"co_reduction":  dbus.MakeVariant(r.COReduction),
		"nox_reduction": dbus.MakeVariant(r.NOxReduction),
	}
}

func statisticVariant(s models.DailyStatistic) map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"date":              dbus.MakeVariant(s.Date),
		"avg_co_before":     dbus.MakeVariant(s.AvgCOBefore),
		"avg_nox_before":    dbus.MakeVariant(s.AvgNOxBefore),
		"avg_co_after":      dbus.MakeVariant(s.AvgCOAfter),
		"avg_nox_after":     dbus.MakeVariant(s.AvgNOxAfter),
		"avg_co_reduction":  dbus.MakeVariant(s.AvgCOReduction),
		"avg_nox_reduction": dbus.MakeVariant(s.AvgNOxReduction),
		"max_co_before":     dbus.MakeVariant(s.MaxCOBefore),
		"max_nox_before":    dbus.MakeVariant(s.MaxNOxBefore),
		"min_co_before":     dbus.MakeVariant(s.MinCOBefore),
		"min_nox_before":    dbus.MakeVariant(s.MinNOxBefore),
		"reading_count":     dbus.MakeVariant(s.ReadingCount),
	}
}

var introspection = &introspect.Node{
	Name: DBUS_PATH,
	Interfaces: []introspect.Interface{
		introspect.IntrospectData,
		{
			Name: DBUS_INTERFACE,
			Methods: []introspect.Method{
				{
					Name: "Status",
					Args: []introspect.Arg{
						{Name: "connected", Direction: "out", Type: "b"},
					},
				},
				{
					Name: "Latest",
					Args: []introspect.Arg{
						{Name: "reading", Direction: "out", Type: "a{sv}"},
					},
				},
				{
					Name: "StatisticsToday",
					Args: []introspect.Arg{
						{Name: "statistic", Direction: "out", Type: "a{sv}"},
					},
				},
			},
		},
	},
}

// Service owns the bus connection the Monitor is exported on.
type Service struct {
	conn *dbus.Conn
}

// Export connects to the session bus, exports monitor and claims DBUS_NAME.
func Export(monitor *Monitor) (*Service, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	if err := ExportOn(conn, monitor); err != nil {
		conn.Close()
		return nil, err
	}

	return &Service{conn: conn}, nil
}

// ExportOn exports monitor on an existing connection.
func ExportOn(conn *dbus.Conn, monitor *Monitor) error {
	err := conn.Export(monitor, dbus.ObjectPath(DBUS_PATH), DBUS_INTERFACE)
	if err != nil {
		return fmt.Errorf("failed to export monitor: %w", err)
	}

	err = conn.Export(introspect.NewIntrospectable(introspection), dbus.ObjectPath(DBUS_PATH), "org.freedesktop.DBus.Introspectable")
	if err != nil {
		return fmt.Errorf("failed to export introspection: %w", err)
	}

	reply, err := conn.RequestName(DBUS_NAME, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request bus name: %w", err)
	}

	if reply != dbus.RequestNameReplyPrimaryOwner {
		return ErrNameTaken
	}

	return nil
}

func (s *Service) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
