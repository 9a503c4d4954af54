// Package device owns the link to the measurement device.
package device

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	FRAME_BUFFER_SIZE = 4096
	FRAME_QUEUE_SIZE  = 16
	CLOSE_WAIT        = 2 * time.Second
)

type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Session describes the currently open link.
type Session struct {
	ID          uuid.UUID
	Address     string
	BaudRate    int
	ConnectedAt time.Time
}

type link struct {
	Session
	port    io.ReadCloser
	frames  chan []byte
	closing chan struct{}
	down    chan struct{}
	err     error
}

// Manager is the single owner of the device connection state. All methods
// are safe for concurrent use; a state read never observes a link that is
// half opened or half closed.
type Manager struct {
	opener Opener
	logger *slog.Logger

	mu   sync.RWMutex
	link *link
}

func NewManager(opener Opener, logger *slog.Logger) *Manager {
	if opener == nil {
		opener = SerialOpener
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		opener: opener,
		logger: logger,
	}
}

// Connect opens the link. When a link is already open it is returned as is
// without reopening. On failure the state stays Disconnected and the error
// is a *ConnectionError.
func (m *Manager) Connect(address string, baudRate int) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.link != nil {
		return m.link.Session, nil
	}

	port, err := m.opener(address, baudRate)
	if err != nil {
		connErr := &ConnectionError{
			Address: address,
			Reason:  describeOpenError(err),
			Err:     err,
		}
		m.logger.Warn("Failed to connect to device", "address", address, "baud", baudRate, "error", connErr)
		return Session{}, connErr
	}

	l := &link{
		Session: Session{
			ID:          uuid.New(),
			Address:     address,
			BaudRate:    baudRate,
			ConnectedAt: time.Now(),
		},
		port:    port,
		frames:  make(chan []byte, FRAME_QUEUE_SIZE),
		closing: make(chan struct{}),
		down:    make(chan struct{}),
	}
	go l.pump(m.logger)

	m.link = l
	m.logger.Info("Connected to device", "address", address, "baud", baudRate, "session", l.ID)

	return l.Session, nil
}

// Disconnect closes the link if one is open. It never fails.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	l := m.link
	m.link = nil
	m.mu.Unlock()

	if l == nil {
		return
	}

	close(l.closing)
	if err := l.port.Close(); err != nil {
		m.logger.Debug("Error closing device port", "session", l.ID, "error", err)
	}

	select {
	case <-l.down:
	case <-time.After(CLOSE_WAIT):
		m.logger.Warn("Device reader did not stop after close", "session", l.ID)
	}

	m.logger.Info("Disconnected from device", "address", l.Address, "session", l.ID)
}

func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.link != nil
}

func (m *Manager) State() State {
	if m.IsConnected() {
		return Connected
	}

	return Disconnected
}

// Session returns the open session, if any.
func (m *Manager) Session() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.link == nil {
		return Session{}, false
	}

	return m.link.Session, true
}

// ReadFrame waits up to timeout for one newline-delimited frame. It returns
// ErrTimeout when nothing arrived and ErrLinkDown when the link is closed or
// drops. The returned frame has its line terminator removed.
func (m *Manager) ReadFrame(ctx context.Context, timeout time.Duration) ([]byte, error) {
	m.mu.RLock()
	l := m.link
	m.mu.RUnlock()

	if l == nil {
		return nil, ErrLinkDown
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame := <-l.frames:
		return frame, nil
	case <-l.down:
		// Frames queued before the drop are still delivered.
		select {
		case frame := <-l.frames:
			return frame, nil
		default:
		}
		if l.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLinkDown, l.err)
		}
		return nil, ErrLinkDown
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pump splits the byte stream into frames until the port fails or is
// closed. Lines longer than the buffer are discarded whole.
func (l *link) pump(logger *slog.Logger) {
	defer close(l.down)

	reader := bufio.NewReaderSize(l.port, FRAME_BUFFER_SIZE)
	overflow := false

	for {
		line, err := reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			overflow = true
			continue
		}
		if err != nil {
			select {
			case <-l.closing:
			default:
				l.err = err
				logger.Warn("Device link dropped", "session", l.ID, "error", err)
			}
			return
		}

		if overflow {
			overflow = false
			logger.Warn("Discarding oversized frame", "session", l.ID, "limit", FRAME_BUFFER_SIZE)
			continue
		}

		frame := bytes.TrimRight(line, "\r\n")
		if len(bytes.TrimSpace(frame)) == 0 {
			continue
		}

		select {
		case l.frames <- bytes.Clone(frame):
		case <-l.closing:
			return
		}
	}
}
