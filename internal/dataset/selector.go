// Package dataset picks the MODIS collection for a period and assembles the
// ordered scene sequence a composite is built from.
package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/paulmach/orb"
)

const (
	// CollectionLegacy serves years before CollectionSwitchYear.
	CollectionLegacy = "MODIS/MOD09Q1"
	// CollectionV006 serves CollectionSwitchYear and later.
	CollectionV006       = "MODIS/006/MOD09Q1"
	CollectionSwitchYear = 2015

	// Raw band names as delivered by the provider.
	RedBand = "sur_refl_b01"
	NIRBand = "sur_refl_b02"
)

// IDFor returns the collection id that covers year.
func IDFor(year int) string {
	if year >= CollectionSwitchYear {
		return CollectionV006
	}
	return CollectionLegacy
}

// MonthRange returns the first and last calendar day of a month. Both are inclusive.
func MonthRange(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}

// YearRange returns January 1 and December 31 of year. Both are inclusive.
func YearRange(year int) (time.Time, time.Time) {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
}

// Source supplies scenes for a collection, date window and footprint.
// Implementations may return extra scenes; the Selector filters and orders them.
type Source interface {
	Scenes(ctx context.Context, datasetID string, start, end time.Time, bound orb.Bound) ([]domain.Raster, error)
}

// Selector narrows a Source to the scenes of one period.
type Selector struct {
	source Source
	logger *slog.Logger
}

// NewSelector creates a Selector over src.
func NewSelector(src Source, logger *slog.Logger) *Selector {
	return &Selector{source: src, logger: logger}
}

// SelectSequence returns the scenes dated within [start, end] (end covers the
// whole day) whose footprint intersects bound, ordered by timestamp. An empty
// sequence is not an error.
func (s *Selector) SelectSequence(ctx context.Context, datasetID string, start, end time.Time, bound orb.Bound) (domain.RasterSequence, error) {
	seq := domain.RasterSequence{DatasetID: datasetID, Start: start, End: end}

	scenes, err := s.source.Scenes(ctx, datasetID, start, end, bound)
	if err != nil {
		return seq, fmt.Errorf("select %s %s..%s: %w", datasetID, start.Format(time.DateOnly), end.Format(time.DateOnly), err)
	}

	endExclusive := end.AddDate(0, 0, 1)
	for _, r := range scenes {
		ts := r.Timestamp()
		if ts.Before(start) || !ts.Before(endExclusive) {
			continue
		}
		if !r.Bound().Intersects(bound) {
			continue
		}
		seq.Rasters = append(seq.Rasters, r)
	}
	slices.SortStableFunc(seq.Rasters, func(a, b domain.Raster) int {
		return a.Timestamp().Compare(b.Timestamp())
	})

	s.logger.Debug("scenes selected",
		"dataset", datasetID,
		"start", start.Format(time.DateOnly),
		"end", end.Format(time.DateOnly),
		"candidates", len(scenes),
		"images", seq.Size(),
	)
	return seq, nil
}
