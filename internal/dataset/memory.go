package dataset

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/paulmach/orb"
)

// MemorySource is an in-process scene catalog keyed by collection id.
type MemorySource struct {
	mu     sync.RWMutex
	scenes map[string][]domain.Raster
}

// NewMemorySource returns an empty catalog.
func NewMemorySource() *MemorySource {
	return &MemorySource{scenes: make(map[string][]domain.Raster)}
}

// Add registers scenes under a collection id.
func (m *MemorySource) Add(datasetID string, scenes ...domain.Raster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes[datasetID] = append(m.scenes[datasetID], scenes...)
}

// Scenes returns every scene of the collection; window filtering is left to the Selector.
func (m *MemorySource) Scenes(ctx context.Context, datasetID string, _, _ time.Time, _ orb.Bound) ([]domain.Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Raster, len(m.scenes[datasetID]))
	copy(out, m.scenes[datasetID])
	return out, nil
}
