// Package statistics maintains the one-row-per-day summary table derived
// from the stored sensor readings.
package statistics

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nitronimbus/nitronimbus/internal/database"
	"github.com/nitronimbus/nitronimbus/internal/models"
)

const aggregateSelect = `COUNT(*) AS reading_count,
	COALESCE(AVG(co_before), 0) AS avg_co_before,
	COALESCE(AVG(nox_before), 0) AS avg_nox_before,
	COALESCE(AVG(co_after), 0) AS avg_co_after,
	COALESCE(AVG(nox_after), 0) AS avg_nox_after,
	COALESCE(AVG(co_reduction), 0) AS avg_co_reduction,
	COALESCE(AVG(nox_reduction), 0) AS avg_nox_reduction,
	COALESCE(MAX(co_before), 0) AS max_co_before,
	COALESCE(MAX(nox_before), 0) AS max_nox_before,
	COALESCE(MIN(co_before), 0) AS min_co_before,
	COALESCE(MIN(nox_before), 0) AS min_nox_before`

type Aggregator struct {
	handle   *database.Handle
	location *time.Location
	now      func() time.Time
}

type Option func(*Aggregator)

// WithLocation sets the time zone whose midnights delimit a day.
func WithLocation(location *time.Location) Option {
	return func(a *Aggregator) {
		a.location = location
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

func NewAggregator(handle *database.Handle, opts ...Option) *Aggregator {
	aggregator := &Aggregator{
		handle:   handle,
		location: time.Local,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(aggregator)
	}

	return aggregator
}

// Today is the current calendar date in the aggregator's time zone.
func (a *Aggregator) Today() time.Time {
	return a.Day(a.now())
}

// Day truncates t to local midnight of its calendar date.
func (a *Aggregator) Day(t time.Time) time.Time {
	local := t.In(a.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, a.location)
}

// ParseDate reads a YYYY-MM-DD date in the aggregator's time zone.
func (a *Aggregator) ParseDate(value string) (time.Time, error) {
	day, err := time.ParseInLocation(models.DateLayout, value, a.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", value, err)
	}

	return day, nil
}

// Recompute derives the statistic for the calendar date containing day from
// the readings currently stored and writes it, replacing any previous row
// for that date. It returns nil without writing when the date has no
// readings. Calling it repeatedly over unchanged readings is idempotent.
func (a *Aggregator) Recompute(ctx context.Context, day time.Time) (*models.DailyStatistic, error) {
	start := a.Day(day)
	end := start.AddDate(0, 0, 1)
	date := start.Format(models.DateLayout)

	var stat models.DailyStatistic
	written := false

	err := a.handle.Update(ctx, "recompute statistics", func(tx *gorm.DB) error {
		err := tx.
			Model(&models.SensorReading{}).
			Select(aggregateSelect).
			Where("timestamp >= ? AND timestamp < ?", start.UTC(), end.UTC()).
			Scan(&stat).Error
		if err != nil {
			return err
		}

		if stat.ReadingCount == 0 {
			return nil
		}

		stat.Date = date
		written = true

		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&stat).Error
	})
	if err != nil {
		return nil, err
	}

	if !written {
		return nil, nil
	}

	return &stat, nil
}

func (a *Aggregator) RecomputeToday(ctx context.Context) (*models.DailyStatistic, error) {
	return a.Recompute(ctx, a.Today())
}

// Get looks up the stored statistic for the date containing day. It returns
// nil when no row exists.
func (a *Aggregator) Get(ctx context.Context, day time.Time) (*models.DailyStatistic, error) {
	date := a.Day(day).Format(models.DateLayout)

	var stats []models.DailyStatistic
	err := a.handle.View(ctx, "get statistics", func(tx *gorm.DB) error {
		return tx.Where("date = ?", date).Limit(1).Find(&stats).Error
	})
	if err != nil {
		return nil, err
	}

	if len(stats) == 0 {
		return nil, nil
	}

	return &stats[0], nil
}

func (a *Aggregator) GetToday(ctx context.Context) (*models.DailyStatistic, error) {
	return a.Get(ctx, a.Today())
}
