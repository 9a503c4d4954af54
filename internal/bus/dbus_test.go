package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nitronimbus/nitronimbus/internal/models"
)

type stubController bool

func (c stubController) IsConnected() bool { return bool(c) }

type stubReadings struct {
	readings []models.SensorReading
	err      error
}

func (s stubReadings) Latest(_ context.Context, limit int) ([]models.SensorReading, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.readings) > limit {
		return s.readings[:limit], nil
	}
	return s.readings, nil
}

type stubStatistics struct {
	stat *models.DailyStatistic
	err  error
}

func (s stubStatistics) GetToday(context.Context) (*models.DailyStatistic, error) {
	return s.stat, s.err
}

func TestMonitorStatus(t *testing.T) {
	monitor := NewMonitor(stubController(true), stubReadings{}, stubStatistics{}, nil)

	connected, dbusErr := monitor.Status()
	require.Nil(t, dbusErr)
	require.True(t, connected)
}

func TestMonitorLatest(t *testing.T) {
	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	monitor := NewMonitor(stubController(false), stubReadings{readings: []models.SensorReading{
		{Timestamp: at, COBefore: 5, NOxBefore: 3, COAfter: 2, NOxAfter: 1, COReduction: 60, NOxReduction: 66.7},
		{Timestamp: at.Add(-time.Minute), COBefore: 1},
	}}, stubStatistics{}, nil)

	reading, dbusErr := monitor.Latest()
	require.Nil(t, dbusErr)
	require.Equal(t, at.Unix(), reading["timestamp"].Value())
	require.Equal(t, 5.0, reading["co_before"].Value())
	require.Equal(t, 66.7, reading["nox_reduction"].Value())
}

func TestMonitorNoData(t *testing.T) {
	monitor := NewMonitor(stubController(false), stubReadings{}, stubStatistics{}, nil)

	reading, dbusErr := monitor.Latest()
	require.Nil(t, dbusErr)
	require.Empty(t, reading)

	stat, dbusErr := monitor.StatisticsToday()
	require.Nil(t, dbusErr)
	require.Empty(t, stat)
}

func TestMonitorStatisticsToday(t *testing.T) {
	monitor := NewMonitor(stubController(false), stubReadings{}, stubStatistics{stat: &models.DailyStatistic{
		Date:         "2026-10-19",
		AvgCOBefore:  6,
		MaxCOBefore:  7,
		MinCOBefore:  5,
		ReadingCount: 2,
	}}, nil)

	stat, dbusErr := monitor.StatisticsToday()
	require.Nil(t, dbusErr)
	require.Equal(t, "2026-10-19", stat["date"].Value())
	require.Equal(t, 6.0, stat["avg_co_before"].Value())
	require.Equal(t, int64(2), stat["reading_count"].Value())
}

func TestMonitorStoreFailure(t *testing.T) {
	failure := errors.New("database is locked")
	monitor := NewMonitor(stubController(false), stubReadings{err: failure}, stubStatistics{err: failure}, nil)

	_, dbusErr := monitor.Latest()
	require.NotNil(t, dbusErr)
	require.Contains(t, dbusErr.Error(), "database is locked")

	_, dbusErr = monitor.StatisticsToday()
	require.NotNil(t, dbusErr)
}
