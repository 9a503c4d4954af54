// Package client talks to a running query service over HTTP.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nitronimbus/nitronimbus/internal/models"
	"github.com/nitronimbus/nitronimbus/internal/version"
)

const REQUEST_TIMEOUT = 5 * time.Second

// ErrNoData is returned when the service answered that it has nothing to
// report yet.
var ErrNoData = errors.New("no data available")

// APIError is a non-2xx answer carrying the service's {"error": ...} body.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("query service returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("query service returned %d: %s", e.Status, e.Message)
}

type Status struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

type Client struct {
	baseURL    string
	httpClient http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: http.Client{
			Timeout: REQUEST_TIMEOUT,
		},
		logger: logger,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var status Status
	err := c.do(ctx, http.MethodGet, "/api/status", &status)
	return status, err
}

// Toggle flips the device connection. A connect failure comes back as an
// *APIError whose Message is the service's reason.
func (c *Client) Toggle(ctx context.Context) (Status, error) {
	var status Status
	err := c.do(ctx, http.MethodPost, "/api/toggle-connection", &status)
	return status, err
}

// Latest returns ErrNoData when the service has no readings.
func (c *Client) Latest(ctx context.Context) (*models.SensorReading, error) {
	var reading models.SensorReading
	if err := c.do(ctx, http.MethodGet, "/api/latest", &reading); err != nil {
		return nil, noData(err)
	}
	return &reading, nil
}

// StatisticsToday returns ErrNoData when today has no summary yet.
func (c *Client) StatisticsToday(ctx context.Context) (*models.DailyStatistic, error) {
	var stat models.DailyStatistic
	if err := c.do(ctx, http.MethodGet, "/api/statistics/today", &stat); err != nil {
		return nil, noData(err)
	}
	return &stat, nil
}

func (c *Client) History(ctx context.Context, hours uint) ([]models.SensorReading, error) {
	var list []models.SensorReading
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/history/%d", hours), &list)
	return list, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	request.Header.Set("User-Agent", "nitronimbus/"+version.GetVersion())
	request.Header.Set("Accept", "application/json")

	c.logger.Debug("Calling query service", "method", method, "url", request.URL.String())

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("failed to reach query service: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		apiErr := &APIError{Status: response.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// noData maps the service's 404 for an empty result to ErrNoData.
func noData(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNoData, apiErr.Message)
	}
	return err
}
