package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitronimbus/nitronimbus/internal/models"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(server.URL, nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestStatus(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/status", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "nitronimbus/"))
		writeJSON(w, http.StatusOK, map[string]bool{"connected": true})
	})

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	require.True(t, status.Connected)
}

func TestToggleFailure(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"connected": false,
			"error":     "failed to connect to /dev/ttyACM0 (device absent): no such file or directory",
		})
	})

	_, err := c.Toggle(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	require.Contains(t, apiErr.Message, "device absent")
}

func TestLatest(t *testing.T) {
	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.SensorReading{Timestamp: at, COBefore: 5, NOxAfter: 1})
	})

	reading, err := c.Latest(context.Background())
	require.NoError(t, err)
	require.True(t, reading.Timestamp.Equal(at))
	require.Equal(t, 5.0, reading.COBefore)
	require.Equal(t, 1.0, reading.NOxAfter)
}

func TestLatestNoData(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no data available"})
	})

	reading, err := c.Latest(context.Background())
	require.ErrorIs(t, err, ErrNoData)
	require.Nil(t, reading)

	stat, err := c.StatisticsToday(context.Background())
	require.ErrorIs(t, err, ErrNoData)
	require.Nil(t, stat)
}

func TestHistory(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history/6", r.URL.Path)
		writeJSON(w, http.StatusOK, []models.SensorReading{{COBefore: 2}, {COBefore: 1}})
	})

	list, err := c.History(context.Background(), 6)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, 2.0, list[0].COBefore)
}

func TestServerErrorWithoutBody(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Status(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "query service returned 502 Bad Gateway", apiErr.Error())
}

func TestNewClientNormalizesBaseURL(t *testing.T) {
	require.Equal(t, "http://localhost:5000", NewClient("localhost:5000/", nil).BaseURL())
	require.Equal(t, "https://monitor.lan", NewClient("https://monitor.lan", nil).BaseURL())
}
