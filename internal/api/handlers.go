// Package api is the HTTP query service over the reading store, the daily
// statistics and the device connection.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/nitronimbus/nitronimbus/internal/models"
	"github.com/nitronimbus/nitronimbus/internal/readings"
)

// Controller toggles the device connection and reports its state.
type Controller interface {
	IsConnected() bool
	Toggle() (bool, error)
}

type ReadingSource interface {
	Latest(ctx context.Context, limit int) ([]models.SensorReading, error)
	Within(ctx context.Context, hours uint) ([]models.SensorReading, error)
}

type StatisticsSource interface {
	Today() time.Time
	ParseDate(value string) (time.Time, error)
	Get(ctx context.Context, day time.Time) (*models.DailyStatistic, error)
}

type Handlers struct {
	Log        *slog.Logger
	Controller Controller
	Readings   ReadingSource
	Statistics StatisticsSource
}

type StatusResponse struct {
	Connected bool `json:"connected"`
}

type ToggleResponse struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Connected bool      `json:"connected"`
	Time      time.Time `json:"time"`
}

var (
	errNoReadings   = errors.New("no data available")
	errNoStatistics = errors.New("no statistics available")
)

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Connected: h.Controller.IsConnected(),
		Time:      time.Now().UTC(),
	})
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Connected: h.Controller.IsConnected()})
}

func (h *Handlers) ToggleConnection(w http.ResponseWriter, r *http.Request) {
	connected, err := h.Controller.Toggle()
	if err != nil {
		h.Log.Warn("Toggle connection failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, ToggleResponse{
			Connected: false,
			Error:     err.Error(),
		})
		return
	}

	h.Log.Info("Connection toggled", "connected", connected)
	writeJSON(w, http.StatusOK, ToggleResponse{Connected: connected})
}

func (h *Handlers) Latest(w http.ResponseWriter, r *http.Request) {
	latest, err := h.Readings.Latest(r.Context(), 1)
	if err != nil {
		h.storeError(w, "latest", err)
		return
	}

	if len(latest) == 0 {
		writeError(w, http.StatusNotFound, errNoReadings.Error())
		return
	}

	writeJSON(w, http.StatusOK, latest[0])
}

func (h *Handlers) ListReadings(w http.ResponseWriter, r *http.Request) {
	limit := readings.DEFAULT_LIMIT
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if parsed > readings.MAX_LIMIT {
			writeError(w, http.StatusBadRequest, "limit must not exceed "+strconv.Itoa(readings.MAX_LIMIT))
			return
		}
		limit = parsed
	}

	list, err := h.Readings.Latest(r.Context(), limit)
	if err != nil {
		h.storeError(w, "readings", err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

func (h *Handlers) StatisticsToday(w http.ResponseWriter, r *http.Request) {
	h.writeStatistic(w, r, h.Statistics.Today())
}

func (h *Handlers) StatisticsForDate(w http.ResponseWriter, r *http.Request) {
	day, err := h.Statistics.ParseDate(mux.Vars(r)["date"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeStatistic(w, r, day)
}

func (h *Handlers) writeStatistic(w http.ResponseWriter, r *http.Request, day time.Time) {
	stat, err := h.Statistics.Get(r.Context(), day)
	if err != nil {
		h.storeError(w, "statistics", err)
		return
	}

	if stat == nil {
		writeError(w, http.StatusNotFound, errNoStatistics.Error())
		return
	}

	writeJSON(w, http.StatusOK, stat)
}

func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["hours"]
	hours, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "hours must be a non-negative integer")
		return
	}

	list, err := h.Readings.Within(r.Context(), uint(hours))
	if err != nil {
		h.storeError(w, "history", err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

func (h *Handlers) storeError(w http.ResponseWriter, endpoint string, err error) {
	h.Log.Error("Query failed", "endpoint", endpoint, "error", err)
	writeError(w, http.StatusInternalServerError, "failed to read from store")
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
