package boundary

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/couchcryptid/lake-water-quality/internal/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lakesGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"Name": "Tana"},
     "geometry": {"type": "Polygon", "coordinates": [[[37.0,11.6],[37.6,11.6],[37.6,12.3],[37.0,12.3],[37.0,11.6]]]}},
    {"type": "Feature", "properties": {"Name": "Ziway"},
     "geometry": {"type": "Polygon", "coordinates": [[[38.7,7.8],[38.9,7.8],[38.9,8.1],[38.7,8.1],[38.7,7.8]]]}}
  ]
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSource(url string) *HTTPSource {
	return &HTTPSource{
		url:        url,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		attempts:   3,
		backoff:    time.Millisecond,
		maxBackoff: 2 * time.Millisecond,
		logger:     discardLogger(),
	}
}

func TestNewSource(t *testing.T) {
	assert.IsType(t, &HTTPSource{}, NewSource("https://example.org/lakes.geojson", time.Second, discardLogger()))
	assert.IsType(t, FileSource{}, NewSource("data/lake_tana.geojson", time.Second, discardLogger()))
}

func TestFileSource_LoadsNamedLake(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lakes.geojson")
	require.NoError(t, os.WriteFile(path, []byte(lakesGeoJSON), 0o600))

	lake, err := spatial.Load(context.Background(), FileSource{Path: path}, "Tana")
	require.NoError(t, err)
	assert.Equal(t, "Tana", lake.Name())
	assert.InDelta(t, 37.6, lake.Bound().Max.Lon(), 1e-12)

	_, err = spatial.Load(context.Background(), FileSource{Path: path}, "Victoria")
	require.ErrorIs(t, err, domain.ErrBoundaryNotFound)
}

func TestFileSource_Errors(t *testing.T) {
	_, err := FileSource{Path: filepath.Join(t.TempDir(), "missing.geojson")}.LoadBoundary(context.Background())
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.geojson")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = FileSource{Path: path}.LoadBoundary(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode boundary")
}

func TestHTTPSource_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept"), "geo+json")
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(lakesGeoJSON))
	}))
	defer srv.Close()

	fc, err := testSource(srv.URL).LoadBoundary(context.Background())
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)
}

func TestHTTPSource_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(lakesGeoJSON))
	}))
	defer srv.Close()

	fc, err := testSource(srv.URL).LoadBoundary(context.Background())
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPSource_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testSource(srv.URL).LoadBoundary(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPSource_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testSource(srv.URL).LoadBoundary(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 400*time.Millisecond, nextBackoff(200*time.Millisecond, 5*time.Second))
	assert.Equal(t, 5*time.Second, nextBackoff(4*time.Second, 5*time.Second))
}

func TestSleepWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepWithContext(ctx, time.Hour))
	assert.True(t, sleepWithContext(context.Background(), 0))
}
