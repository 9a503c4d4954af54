package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/nitronimbus/nitronimbus/internal/codec"
	"github.com/nitronimbus/nitronimbus/internal/device"
	"github.com/nitronimbus/nitronimbus/internal/models"
)

// ImportResult summarizes one import run.
type ImportResult struct {
	Stored     int
	Skipped    int
	Failed     int
	Recomputed []string
}

// Importer replays recorded device output (one frame per line) into the
// store. Unlike the live loop it recomputes every date it touched, once, at
// the end of the run.
type Importer struct {
	readings   ReadingWriter
	statistics StatisticsUpdater
	logger     *slog.Logger
	now        func() time.Time
}

func NewImporter(readings ReadingWriter, statistics StatisticsUpdater, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Importer{
		readings:   readings,
		statistics: statistics,
		logger:     logger,
		now:        time.Now,
	}
}

// Import stores every decodable frame in r. Lines longer than
// device.FRAME_BUFFER_SIZE are skipped like malformed frames. The dates that
// received readings are recomputed even when the run stops early on a read
// error or cancellation.
func (i *Importer) Import(ctx context.Context, r io.Reader) (result ImportResult, err error) {
	days := map[string]time.Time{}

	defer func() {
		recomputed, recomputeErr := i.recompute(context.WithoutCancel(ctx), days)
		result.Recomputed = recomputed
		err = errors.Join(err, recomputeErr)
	}()

	reader := bufio.NewReaderSize(r, device.FRAME_BUFFER_SIZE)
	overflow := false
	line := 0

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		raw, readErr := reader.ReadSlice('\n')
		if errors.Is(readErr, bufio.ErrBufferFull) {
			overflow = true
			continue
		}
		if readErr != nil && readErr != io.EOF {
			return result, fmt.Errorf("failed to read frames: %w", readErr)
		}

		if len(raw) > 0 || overflow {
			line++
		}

		switch frame := bytes.TrimSpace(raw); {
		case overflow:
			overflow = false
			i.logger.Warn("Skipping oversized frame", "line", line, "limit", device.FRAME_BUFFER_SIZE)
			result.Skipped++
		case len(frame) > 0:
			if date, day, ok := i.store(ctx, line, frame, &result); ok {
				days[date] = day
			}
		}

		if readErr == io.EOF {
			return result, nil
		}
	}
}

func (i *Importer) store(ctx context.Context, line int, frame []byte, result *ImportResult) (string, time.Time, bool) {
	reading, err := codec.Decode(frame)
	if err != nil {
		i.logger.Warn("Skipping malformed frame", "line", line, "error", err)
		result.Skipped++
		return "", time.Time{}, false
	}

	if reading.Timestamp.IsZero() {
		reading.Timestamp = i.now()
	}

	if _, err := i.readings.Insert(ctx, reading); err != nil {
		i.logger.Error("Failed to store reading", "line", line, "error", err)
		result.Failed++
		return "", time.Time{}, false
	}

	result.Stored++
	day := i.statistics.Day(reading.Timestamp)
	return day.Format(models.DateLayout), day, true
}

// recompute rebuilds each date once, oldest first, and keeps going past
// failures so one bad date does not leave the others stale.
func (i *Importer) recompute(ctx context.Context, days map[string]time.Time) ([]string, error) {
	dates := make([]string, 0, len(days))
	for date := range days {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	var recomputed []string
	var errs []error
	for _, date := range dates {
		if _, err := i.statistics.Recompute(ctx, days[date]); err != nil {
			errs = append(errs, fmt.Errorf("failed to recompute statistics for %s: %w", date, err))
			continue
		}
		recomputed = append(recomputed, date)
	}

	return recomputed, errors.Join(errs...)
}
