package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nitronimbus/nitronimbus/internal/database"
	"github.com/nitronimbus/nitronimbus/internal/models"
	"github.com/nitronimbus/nitronimbus/internal/readings"
	"github.com/nitronimbus/nitronimbus/internal/statistics"
)

func TestImportBackfillsEveryTouchedDay(t *testing.T) {
	handle, err := database.Open(filepath.Join(t.TempDir(), "import.sqlite"), quietLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })

	store := readings.NewStore(handle)
	aggregator := statistics.NewAggregator(handle, statistics.WithLocation(time.UTC))
	importer := NewImporter(store, aggregator, quietLogger)

	input := strings.Join([]string{
		`{"timestamp":"2026-10-17T08:00:00Z","co_before":5,"nox_before":3,"co_after":2,"nox_after":1,"co_reduction":60,"nox_reduction":66.7}`,
		`{"timestamp":"2026-10-17T20:00:00Z","co_before":7,"nox_before":5,"co_after":3,"nox_after":2,"co_reduction":57.1,"nox_reduction":60}`,
		``,
		`not json`,
		`{"timestamp":"2026-10-18T09:30:00Z","co_before":4,"nox_before":2,"co_after":1,"nox_after":1,"co_reduction":75,"nox_reduction":50}`,
		missingFrame,
	}, "\n")

	result, err := importer.Import(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 3, result.Stored)
	require.Equal(t, 2, result.Skipped)
	require.Equal(t, 0, result.Failed)
	require.Equal(t, []string{"2026-10-17", "2026-10-18"}, result.Recomputed)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	day, err := aggregator.ParseDate("2026-10-17")
	require.NoError(t, err)
	stat, err := aggregator.Get(context.Background(), day)
	require.NoError(t, err)
	require.NotNil(t, stat)
	require.EqualValues(t, 2, stat.ReadingCount)
	require.InDelta(t, 6.0, stat.AvgCOBefore, 1e-9)
	require.Equal(t, 7.0, stat.MaxCOBefore)
	require.Equal(t, 3.0, stat.MinNOxBefore)

	day, err = aggregator.ParseDate("2026-10-18")
	require.NoError(t, err)
	stat, err = aggregator.Get(context.Background(), day)
	require.NoError(t, err)
	require.NotNil(t, stat)
	require.EqualValues(t, 1, stat.ReadingCount)
	require.Equal(t, 75.0, stat.AvgCOReduction)
}

func TestImportStampsFramesWithoutTimestamp(t *testing.T) {
	writer := &memoryWriter{}
	updater := &countingUpdater{}
	importer := NewImporter(writer, updater, quietLogger)
	stamp := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	importer.now = func() time.Time { return stamp }

	result, err := importer.Import(context.Background(), strings.NewReader(goodFrame+"\n"+otherFrame+"\n"))
	require.NoError(t, err)
	require.Equal(t, 2, result.Stored)
	require.Equal(t, []string{"2026-10-19"}, result.Recomputed)
	require.Equal(t, 1, updater.calls)

	for _, reading := range writer.readings {
		require.True(t, reading.Timestamp.Equal(stamp))
	}
}

func TestImportSkipsOversizedLines(t *testing.T) {
	handle, err := database.Open(filepath.Join(t.TempDir(), "import.sqlite"), quietLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })

	store := readings.NewStore(handle)
	aggregator := statistics.NewAggregator(handle, statistics.WithLocation(time.UTC))
	importer := NewImporter(store, aggregator, quietLogger)
	importer.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	huge := strings.Repeat("x", 70000)
	input := goodFrame + "\n" + huge + "\n" + otherFrame + "\n" + huge

	result, err := importer.Import(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 2, result.Stored)
	require.Equal(t, 2, result.Skipped)
	require.Equal(t, []string{"2026-10-19"}, result.Recomputed)

	day, err := aggregator.ParseDate("2026-10-19")
	require.NoError(t, err)
	stat, err := aggregator.Get(context.Background(), day)
	require.NoError(t, err)
	require.NotNil(t, stat)
	require.EqualValues(t, 2, stat.ReadingCount)
	require.InDelta(t, 6.0, stat.AvgCOBefore, 1e-9)
}

func TestImportWithoutTrailingNewline(t *testing.T) {
	writer := &memoryWriter{}
	importer := NewImporter(writer, &countingUpdater{}, quietLogger)

	result, err := importer.Import(context.Background(), strings.NewReader(goodFrame+"\r\n"+otherFrame))
	require.NoError(t, err)
	require.Equal(t, 2, result.Stored)
	require.Equal(t, 7.0, writer.readings[1].COBefore)
}

// cancellingWriter cancels the import after its first stored reading.
type cancellingWriter struct {
	memoryWriter
	cancel context.CancelFunc
}

func (w *cancellingWriter) Insert(ctx context.Context, reading models.SensorReading) (uint, error) {
	id, err := w.memoryWriter.Insert(ctx, reading)
	w.cancel()
	return id, err
}

func TestImportCancelledMidRunStillRecomputes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writer := &cancellingWriter{cancel: cancel}
	updater := &countingUpdater{}
	importer := NewImporter(writer, updater, quietLogger)
	importer.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	result, err := importer.Import(ctx, strings.NewReader(goodFrame+"\n"+otherFrame+"\n"))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, result.Stored)
	require.Len(t, writer.readings, 1)
	require.Equal(t, 1, updater.calls)
	require.Equal(t, []string{"2026-10-19"}, result.Recomputed)
}

func TestImportReportsRecomputeFailure(t *testing.T) {
	updater := &countingUpdater{err: errors.New("database is locked")}
	importer := NewImporter(&memoryWriter{}, updater, quietLogger)

	result, err := importer.Import(context.Background(), strings.NewReader(goodFrame+"\n"))
	require.ErrorContains(t, err, "database is locked")
	require.Equal(t, 1, result.Stored)
	require.Empty(t, result.Recomputed)
}

func TestImportHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	importer := NewImporter(&memoryWriter{}, &countingUpdater{}, quietLogger)
	_, err := importer.Import(ctx, strings.NewReader(goodFrame+"\n"))
	require.ErrorIs(t, err, context.Canceled)
}
