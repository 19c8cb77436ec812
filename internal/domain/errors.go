package domain

import "errors"

var (
	// ErrBoundaryNotFound is returned when the boundary filter matches no polygon.
	ErrBoundaryNotFound = errors.New("boundary not found")

	// ErrEmptyRasterSequence is returned when compositing an empty sequence.
	ErrEmptyRasterSequence = errors.New("empty raster sequence")

	// ErrDivisionByZero is returned when a ratio statistic has a zero denominator.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrPixelBudgetExceeded is returned when a reduction would sample more
	// pixels than allowed and best-effort coarsening is disabled.
	ErrPixelBudgetExceeded = errors.New("pixel budget exceeded")

	// ErrInsufficientData is returned when a trend has fewer than two distinct x values.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrUnknownSeason signals a season id without calibration. Callers fall
	// back to the default coefficients and log it.
	ErrUnknownSeason = errors.New("unknown season")

	// ErrGridMismatch is returned when rasters combined pixel by pixel do not
	// share size and geotransform.
	ErrGridMismatch = errors.New("raster grids differ")

	// ErrMissingBand is returned when a raster lacks a band an operation reads.
	ErrMissingBand = errors.New("missing band")

	// ErrUnknownModel is returned for an index name not in the registry.
	ErrUnknownModel = errors.New("unknown index model")

	// ErrInvalidBoundaries is returned when class thresholds or ids are empty
	// or not strictly increasing.
	ErrInvalidBoundaries = errors.New("invalid class boundaries")
)
