package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"machine-health-backend/config"
)

// FeedItem represents a single machine record from the upstream telemetry
// feed. Sensor fields are pointers because partial readings are normal.
type FeedItem struct {
	MachineID       string   `json:"machine_id"`
	MachineName     string   `json:"machine_name"`
	Timestamp       *string  `json:"timestamp"`
	Temperature     *float64 `json:"temperature"`
	VibrationX      *float64 `json:"vibration_x"`
	VibrationY      *float64 `json:"vibration_y"`
	Pressure        *float64 `json:"pressure"`
	RPM             *float64 `json:"rpm"`
	HealthScore     float64  `json:"health_score"`
	RULHours        *float64 `json:"rul_hours"`
	LastMaintenance *string  `json:"last_maintenance"`
}

// FeedResponse models the top-level structure of the upstream feed's
// response.
type FeedResponse struct {
	Code int `json:"code"`
	Data struct {
		Page     int        `json:"page"`
		PageSize int        `json:"pageSize"`
		Total    int        `json:"total"`
		Items    []FeedItem `json:"items"`
	} `json:"data"`
}

// Source supplies one full round of telemetry for the fleet.
type Source interface {
	Fetch(ctx context.Context) ([]FeedItem, error)
}

// HTTPSource fetches the paged telemetry feed over HTTP.
type HTTPSource struct {
	cfg    *config.IngestConfig
	client *http.Client
}

// NewHTTPSource creates a source for the configured feed endpoint.
func NewHTTPSource(cfg *config.IngestConfig) *HTTPSource {
	return &HTTPSource{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Fetch retrieves all pages of the feed. A mid-pagination failure returns
// an error rather than a partial fleet, so a bad cycle never clears state
// for machines that happened to land on a later page.
func (s *HTTPSource) Fetch(ctx context.Context) ([]FeedItem, error) {
	var allItems []FeedItem
	total := 1
	pageSize := s.cfg.Request.PageSize

	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("fetching feed page %d: %w", page, err)
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		allItems = append(allItems, resp.Data.Items...)
	}

	return allItems, nil
}

// fetchPage fetches a single page of telemetry from the upstream feed.
func (s *HTTPSource) fetchPage(ctx context.Context, page int) (*FeedResponse, error) {
	payload := make(map[string]any)
	for k, v := range s.cfg.Request.Payload {
		payload[k] = v
	}
	payload["page"] = page
	payload["pageSize"] = s.cfg.Request.PageSize

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Request.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range s.cfg.Request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var feedResp FeedResponse
	if err := json.Unmarshal(body, &feedResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feed response: %w", err)
	}

	if feedResp.Code != 0 {
		return nil, fmt.Errorf("feed returned non-zero application code: %d", feedResp.Code)
	}

	return &feedResp, nil
}
