// Package apiclient talks to the third-party metrics API. The engine never
// parses the wire format beyond the profile payload; failures are converted
// into RawError at this boundary and classified immediately afterwards.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/vietddude/scraperd/internal/scraping/metrics"
)

// RawError is the tagged failure surface of the metrics API. It is the only
// error type FetchProfile returns, so the classifier never sees an untyped
// transport error.
type RawError struct {
	StatusCode int
	Message    string
	Timeout    bool
	Network    bool
	RetryAfter time.Duration
}

func (e *RawError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("metrics api: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("metrics api: %s", e.Message)
}

// ProfileData is the subset of the profile payload the engine cares about.
type ProfileData struct {
	Username  string `json:"username"`
	Followers int64  `json:"followers"`
	Following int64  `json:"following"`
	Posts     int64  `json:"posts"`
	Private   bool   `json:"private"`
}

// Client fetches account profiles. The int result is the billed request units.
type Client interface {
	FetchProfile(ctx context.Context, username string) (*ProfileData, int, error)
}

// Config holds metrics-API connection settings.
type Config struct {
	BaseURL     string        `yaml:"base_url"`
	Token       string        `yaml:"token"`
	Timeout     time.Duration `yaml:"timeout"`
	ReducedData bool          `yaml:"reduced_data"`
}

// HTTPClient is the production Client implementation.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewHTTPClient creates a metrics-API client.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// FetchProfile fetches one profile. A non-nil error is always *RawError.
func (c *HTTPClient) FetchProfile(
	ctx context.Context,
	username string,
) (*ProfileData, int, error) {
	start := time.Now()

	url := fmt.Sprintf("%s/v1/profiles/%s", c.cfg.BaseURL, username)
	if c.cfg.ReducedData {
		url += "?fields=counts"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, &RawError{Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, transportError(err)
	}
	defer resp.Body.Close()

	metrics.FetchLatency.Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, 0, &RawError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var payload struct {
		Profile      ProfileData `json:"profile"`
		RequestUnits int         `json:"request_units"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, &RawError{Message: fmt.Sprintf("decode response: %v", err)}
	}

	units := payload.RequestUnits
	if units == 0 {
		units = 1
	}
	return &payload.Profile, units, nil
}

func transportError(err error) *RawError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &RawError{Message: err.Error(), Timeout: true}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RawError{Message: err.Error(), Timeout: true}
	}
	return &RawError{Message: err.Error(), Network: true}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
