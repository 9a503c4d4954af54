// Package ingest runs the device -> codec -> store -> statistics pipeline.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nitronimbus/nitronimbus/internal/codec"
	"github.com/nitronimbus/nitronimbus/internal/device"
	"github.com/nitronimbus/nitronimbus/internal/models"
)

const DEFAULT_POLL_INTERVAL = time.Second

// Link is the part of the connection manager the pipeline drives.
type Link interface {
	Connect(address string, baudRate int) (device.Session, error)
	Disconnect()
	IsConnected() bool
	ReadFrame(ctx context.Context, timeout time.Duration) ([]byte, error)
}

type ReadingWriter interface {
	Insert(ctx context.Context, reading models.SensorReading) (uint, error)
}

type StatisticsUpdater interface {
	Day(t time.Time) time.Time
	Recompute(ctx context.Context, day time.Time) (*models.DailyStatistic, error)
	RecomputeToday(ctx context.Context) (*models.DailyStatistic, error)
}

type Config struct {
	Address      string
	BaudRate     int
	PollInterval time.Duration
}

type LoopState int

const (
	Idle LoopState = iota
	Polling
)

func (s LoopState) String() string {
	if s == Polling {
		return "polling"
	}
	return "idle"
}

// Pipeline owns the ingestion loop. Connect opens the device link and starts
// polling in a background goroutine; Disconnect stops polling and closes the
// link. The loop also stops by itself when the link drops, and only resumes
// on the next Connect.
type Pipeline struct {
	link       Link
	readings   ReadingWriter
	statistics StatisticsUpdater
	metrics    *Metrics
	logger     *slog.Logger
	config     Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	polling atomic.Bool
}

func NewPipeline(
	link Link,
	readings ReadingWriter,
	statistics StatisticsUpdater,
	config Config,
	metrics *Metrics,
	logger *slog.Logger,
) *Pipeline {
	if config.PollInterval <= 0 {
		config.PollInterval = DEFAULT_POLL_INTERVAL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		link:       link,
		readings:   readings,
		statistics: statistics,
		metrics:    metrics,
		logger:     logger,
		config:     config,
	}
}

func (p *Pipeline) IsConnected() bool {
	return p.link.IsConnected()
}

func (p *Pipeline) State() LoopState {
	if p.polling.Load() {
		return Polling
	}
	return Idle
}

// Connect opens the link with the configured address and baud rate and
// makes sure the loop is polling. It is a no-op when both are already true.
func (p *Pipeline) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.connectLocked()
}

// Disconnect stops the loop, waiting for the current cycle to finish, then
// closes the link.
func (p *Pipeline) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.disconnectLocked()
}

// Toggle connects when disconnected and disconnects when connected. It
// returns the resulting connection state.
func (p *Pipeline) Toggle() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.link.IsConnected() {
		p.disconnectLocked()
		return false, nil
	}

	if err := p.connectLocked(); err != nil {
		return false, err
	}

	return true, nil
}

// Close is Disconnect for process shutdown.
func (p *Pipeline) Close() {
	p.Disconnect()
}

func (p *Pipeline) connectLocked() error {
	if !p.link.IsConnected() {
		// A loop that saw the link drop may still be winding down.
		p.stopLoop()
	}

	if _, err := p.link.Connect(p.config.Address, p.config.BaudRate); err != nil {
		p.metrics.SetConnected(false)
		return err
	}
	p.metrics.SetConnected(true)

	if p.running() {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.polling.Store(true)

	go p.loop(ctx, done)

	return nil
}

func (p *Pipeline) disconnectLocked() {
	p.stopLoop()
	p.link.Disconnect()
	p.metrics.SetConnected(false)
}

func (p *Pipeline) running() bool {
	if p.done == nil {
		return false
	}

	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *Pipeline) stopLoop() {
	if p.cancel == nil {
		return
	}

	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
}

func (p *Pipeline) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer p.polling.Store(false)

	p.logger.Info("Ingestion loop started", "poll_interval", p.config.PollInterval)
	defer p.logger.Info("Ingestion loop stopped")

	for ctx.Err() == nil {
		frame, err := p.link.ReadFrame(ctx, p.config.PollInterval)
		switch {
		case err == nil:
			// A cycle that already has a frame runs to completion.
			p.HandleFrame(context.WithoutCancel(ctx), frame)
		case ctx.Err() != nil:
			return
		case errors.Is(err, device.ErrTimeout):
			p.metrics.Timeout()
		case errors.Is(err, device.ErrLinkDown):
			p.logger.Warn("Device link down, stopping ingestion", "error", err)
			p.metrics.LinkDrop()
			p.link.Disconnect()
			p.metrics.SetConnected(false)
			return
		default:
			p.logger.Error("Unexpected error reading frame", "error", err)
		}
	}
}

// HandleFrame decodes, stores and aggregates one frame. Decode and store
// failures are logged and the frame is dropped; a stored frame is never
// retried. Statistics failures only leave today's summary stale.
func (p *Pipeline) HandleFrame(ctx context.Context, frame []byte) {
	reading, err := codec.Decode(frame)
	if err != nil {
		p.logger.Warn("Skipping malformed frame", "error", err, "frame", truncate(frame, 120))
		p.metrics.Frame(OutcomeDecodeError)
		return
	}

	id, err := p.readings.Insert(ctx, reading)
	if err != nil {
		p.logger.Error("Failed to store reading", "error", err)
		p.metrics.Frame(OutcomeStoreError)
		return
	}
	p.metrics.Stored(time.Now())
	p.logger.Debug("Stored reading", "id", id, "co_before", reading.COBefore, "nox_before", reading.NOxBefore)

	if _, err := p.statistics.RecomputeToday(ctx); err != nil {
		p.logger.Error("Failed to update daily statistics", "error", err)
		p.metrics.AggregateFailure()
	}
}

func truncate(frame []byte, limit int) string {
	if len(frame) <= limit {
		return string(frame)
	}
	return string(frame[:limit]) + "..."
}
