// Package boundary loads lake outlines as GeoJSON feature collections from a
// local file or an HTTP endpoint.
package boundary

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/lake-water-quality/internal/spatial"
	"github.com/paulmach/orb/geojson"
)

// maxBodyBytes bounds a downloaded boundary document.
const maxBodyBytes = 64 << 20

// NewSource picks an HTTP source for http(s) URLs and a file source otherwise.
func NewSource(location string, timeout time.Duration, logger *slog.Logger) spatial.BoundarySource {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return NewHTTPSource(location, timeout, logger)
	}
	return FileSource{Path: location}
}

// FileSource reads a GeoJSON FeatureCollection from disk.
type FileSource struct {
	Path string
}

// LoadBoundary implements spatial.BoundarySource.
func (f FileSource) LoadBoundary(ctx context.Context) (*geojson.FeatureCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read boundary: %w", err)
	}
	return decode(data)
}

// HTTPSource fetches a GeoJSON FeatureCollection, retrying transport errors and
// 5xx responses with exponential backoff.
type HTTPSource struct {
	url        string
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger
}

// NewHTTPSource creates an HTTP boundary source.
func NewHTTPSource(url string, timeout time.Duration, logger *slog.Logger) *HTTPSource {
	return &HTTPSource{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		attempts:   3,
		backoff:    200 * time.Millisecond,
		maxBackoff: 5 * time.Second,
		logger:     logger,
	}
}

// LoadBoundary implements spatial.BoundarySource.
func (h *HTTPSource) LoadBoundary(ctx context.Context) (*geojson.FeatureCollection, error) {
	backoff := h.backoff
	var lastErr error
	for attempt := 1; attempt <= h.attempts; attempt++ {
		fc, retryable, err := h.fetch(ctx)
		if err == nil {
			return fc, nil
		}
		lastErr = err
		if !retryable || attempt == h.attempts {
			break
		}
		h.logger.Warn("boundary fetch failed, retrying", "url", h.url, "attempt", attempt, "error", err)
		if !sleepWithContext(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff = nextBackoff(backoff, h.maxBackoff)
	}
	return nil, lastErr
}

func (h *HTTPSource) fetch(ctx context.Context) (*geojson.FeatureCollection, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("boundary request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode >= 500, fmt.Errorf("boundary endpoint error: status %d: %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}
	fc, err := decode(data)
	return fc, false, err
}

func decode(data []byte) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode boundary: %w", err)
	}
	return fc, nil
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
