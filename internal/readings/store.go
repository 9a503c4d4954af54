// Package readings is the durable, append-only table of sensor readings.
package readings

import (
	"context"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/nitronimbus/nitronimbus/internal/database"
	"github.com/nitronimbus/nitronimbus/internal/models"
)

const (
	DEFAULT_LIMIT = 10
	MAX_LIMIT     = 1000

	// MAX_WINDOW_HOURS is the largest window whose cutoff fits in a
	// time.Duration. Larger windows cover the whole store.
	MAX_WINDOW_HOURS = uint(math.MaxInt64 / int64(time.Hour))
)

type Store struct {
	handle *database.Handle
	now    func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now as the source of insert timestamps and
// window bounds.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(handle *database.Handle, opts ...Option) *Store {
	store := &Store{
		handle: handle,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Insert appends one reading and returns its row id. A reading without a
// timestamp is stamped with the current time. Timestamps are kept in UTC.
func (s *Store) Insert(ctx context.Context, reading models.SensorReading) (uint, error) {
	if reading.Timestamp.IsZero() {
		reading.Timestamp = s.now()
	}
	reading.ID = 0
	reading.Timestamp = reading.Timestamp.UTC()

	err := s.handle.Update(ctx, "insert reading", func(tx *gorm.DB) error {
		return tx.Create(&reading).Error
	})
	if err != nil {
		return 0, err
	}

	return reading.ID, nil
}

// Latest returns up to limit readings, newest first. An empty store yields an
// empty slice.
func (s *Store) Latest(ctx context.Context, limit int) ([]models.SensorReading, error) {
	readings := []models.SensorReading{}
	if limit <= 0 {
		return readings, nil
	}

	err := s.handle.View(ctx, "latest readings", func(tx *gorm.DB) error {
		return tx.
			Order("timestamp DESC").
			Order("id DESC").
			Limit(limit).
			Find(&readings).Error
	})
	if err != nil {
		return nil, err
	}

	return localize(readings), nil
}

// Within returns readings stamped no earlier than hours before now, newest
// first. A zero window is always empty.
func (s *Store) Within(ctx context.Context, hours uint) ([]models.SensorReading, error) {
	readings := []models.SensorReading{}
	if hours == 0 {
		return readings, nil
	}

	err := s.handle.View(ctx, "readings within window", func(tx *gorm.DB) error {
		if hours <= MAX_WINDOW_HOURS {
			since := s.now().Add(-time.Duration(hours) * time.Hour).UTC()
			tx = tx.Where("timestamp >= ?", since)
		}

		return tx.
			Order("timestamp DESC").
			Order("id DESC").
			Find(&readings).Error
	})
	if err != nil {
		return nil, err
	}

	return localize(readings), nil
}

// Between returns readings in [from, to), oldest first.
func (s *Store) Between(ctx context.Context, from time.Time, to time.Time) ([]models.SensorReading, error) {
	readings := []models.SensorReading{}

	err := s.handle.View(ctx, "readings between", func(tx *gorm.DB) error {
		return tx.
			Where("timestamp >= ? AND timestamp < ?", from.UTC(), to.UTC()).
			Order("timestamp ASC").
			Order("id ASC").
			Find(&readings).Error
	})
	if err != nil {
		return nil, err
	}

	return localize(readings), nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64

	err := s.handle.View(ctx, "count readings", func(tx *gorm.DB) error {
		return tx.Model(&models.SensorReading{}).Count(&count).Error
	})

	return count, err
}

func localize(readings []models.SensorReading) []models.SensorReading {
	for i := range readings {
		readings[i].Timestamp = readings[i].Timestamp.Local()
	}

	return readings
}
