package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	BUSY_TIMEOUT   = 5 * time.Second
	SLOW_THRESHOLD = 200 * time.Millisecond
)

// ErrStore matches every StoreError via errors.Is.
var ErrStore = errors.New("store failure")

// StoreError reports an underlying persistence failure (disk full, lock
// timeout, closed handle). Callers may retry the operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

// Handle is the single shared connection to the store. Every read and write
// runs while holding its lock, so the ingestion loop and concurrent queries
// never interleave on the underlying sqlite connection.
type Handle struct {
	mu sync.RWMutex
	db *gorm.DB
}

func Open(dbPath string, logger *slog.Logger) (*Handle, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn(dbPath)), &gorm.Config{
		Logger: gormlogger.New(slogWriter{logger: logger}, gormlogger.Config{
			SlowThreshold:             SLOW_THRESHOLD,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := EnsureSchema(db); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("Database opened", "path", dbPath)

	return &Handle{db: db}, nil
}

func dsn(dbPath string) string {
	separator := "?"
	if strings.Contains(dbPath, "?") {
		separator = "&"
	}

	return fmt.Sprintf("%s%s_busy_timeout=%d&_journal_mode=WAL", dbPath, separator, BUSY_TIMEOUT.Milliseconds())
}

// View runs fn under the shared lock. Concurrent views may overlap with each
// other but never with an Update.
func (h *Handle) View(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return wrap(op, fn(h.db.WithContext(ctx)))
}

// Update runs fn inside a transaction under the exclusive lock.
func (h *Handle) Update(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return wrap(op, h.db.WithContext(ctx).Transaction(fn))
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return err
	}

	return &StoreError{Op: op, Err: err}
}

type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn("gorm", "message", strings.TrimSpace(fmt.Sprintf(format, args...)))
}
