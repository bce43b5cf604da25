package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"macropulse/internal/digest"
	"macropulse/internal/logging"
)

const defaultBaseURL = "https://api.tokenterminal.com/v2"

// currency metrics get a $ prefix when formatted
var currencyMetrics = map[string]bool{
	"fees":    true,
	"revenue": true,
	"tvl":     true,
}

// DataPoint is one day of project metrics.
type DataPoint struct {
	Timestamp time.Time
	Values    map[string]float64
}

// Client fetches protocol metrics from the Token Terminal API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logging.Logger
}

// NewClient constructs a metrics client with sane defaults.
func NewClient(apiKey string, logger logging.Logger, opts ...func(*Client)) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithBaseURL overrides the default API base URL (useful for tests).
func WithBaseURL(u string) func(*Client) {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient overrides the internal HTTP client.
func WithHTTPClient(hc *http.Client) func(*Client) {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// ProjectMetrics returns the project's daily datapoints since the given
// time, oldest first.
func (c *Client) ProjectMetrics(ctx context.Context, projectID string, since time.Time) ([]DataPoint, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("metrics: missing API key")
	}

	endpoint := fmt.Sprintf("%s/projects/%s/metrics?start=%s",
		c.baseURL, url.PathEscape(projectID), since.UTC().Format("2006-01-02"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("metrics: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metrics: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("metrics: api error %d: %s", resp.StatusCode, string(data))
	}

	var payload struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("metrics: decode response: %w", err)
	}

	points := make([]DataPoint, 0, len(payload.Data))
	for _, raw := range payload.Data {
		ts, ok := raw["timestamp"].(string)
		if !ok {
			continue
		}
		when, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			if when, err = time.Parse("2006-01-02", ts); err != nil {
				continue
			}
		}
		values := make(map[string]float64)
		for key, v := range raw {
			if key == "timestamp" {
				continue
			}
			if f, ok := v.(float64); ok {
				values[key] = f
			}
		}
		points = append(points, DataPoint{Timestamp: when.UTC(), Values: values})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points, nil
}

// BuildSnapshot turns daily datapoints into a week-over-week snapshot ending
// at end: each metric is summed over [end-7d, end) and compared against the
// preceding seven days.
func BuildSnapshot(points []DataPoint, end time.Time) digest.MetricsSnapshot {
	end = end.UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -7)
	prevStart := end.AddDate(0, 0, -14)

	current := make(map[string]float64)
	previous := make(map[string]float64)
	for _, p := range points {
		switch {
		case !p.Timestamp.Before(start) && p.Timestamp.Before(end):
			for k, v := range p.Values {
				current[k] += v
			}
		case !p.Timestamp.Before(prevStart) && p.Timestamp.Before(start):
			for k, v := range p.Values {
				previous[k] += v
			}
		}
	}

	metrics := make(map[string]digest.MetricValue, len(current))
	for name, cur := range current {
		prev := previous[name]
		metrics[name] = digest.MetricValue{
			Current:           cur,
			Previous:          prev,
			FormattedCurrent:  formatValue(name, cur),
			FormattedPrevious: formatValue(name, prev),
			FormattedDelta:    formatDelta(cur, prev),
		}
	}

	return digest.MetricsSnapshot{StartDate: start, EndDate: end, Metrics: metrics}
}

func formatValue(name string, v float64) string {
	formatted := formatNumber(v)
	if currencyMetrics[name] {
		if v < 0 {
			return "-$" + formatNumber(-v)
		}
		return "$" + formatted
	}
	return formatted
}

func formatNumber(v float64) string {
	abs := v
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.1fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.1fM", v/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

func formatDelta(current, previous float64) string {
	if previous == 0 {
		return "n/a"
	}
	pct := (current - previous) / previous * 100
	return fmt.Sprintf("%+.1f%%", pct)
}
