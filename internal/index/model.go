// Package index evaluates the calibrated band-math models that turn red and
// NIR reflectance into water-quality parameters.
package index

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/couchcryptid/lake-water-quality/internal/composite"
	"github.com/couchcryptid/lake-water-quality/internal/domain"
)

// Model names.
const (
	Turbidity       = "turbidity"
	Chlorophyll     = "chlorophyll"
	WaterIndex      = "water_index"
	SuspendedSolids = "suspended_solids"
	SecchiDepth     = "secchi_depth"
)

// MaxSecchiDepth caps Secchi estimates in metres.
const MaxSecchiDepth = 5.0

// Model is a linear model f = Coefficient*combine(red, nir) + Intercept,
// clamped to [Min, Max]. Seasonal models take their coefficients from the
// calibration table instead.
type Model struct {
	Name        string
	Formula     string
	Coefficient float64
	Intercept   float64
	Min         float64
	Max         float64
	Seasonal    bool

	combine func(red, nir float64) float64
}

func (m Model) eval(red, nir, coef, intercept float64) float64 {
	x := m.combine(red, nir)
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return math.NaN()
	}
	v := coef*x + intercept
	return math.Min(math.Max(v, m.Min), m.Max)
}

func defaultModels() map[string]Model {
	unbounded := func(m Model) Model {
		m.Min, m.Max = math.Inf(-1), math.Inf(1)
		return m
	}
	return map[string]Model{
		Turbidity: unbounded(Model{
			Name: Turbidity, Formula: "coefficient * red + intercept",
			Coefficient: 0.85, Intercept: 15.6,
			combine: func(red, _ float64) float64 { return red },
		}),
		Chlorophyll: unbounded(Model{
			Name: Chlorophyll, Formula: "coefficient * (nir / red) + intercept",
			Coefficient: 23.4, Intercept: 1.8,
			combine: ratio,
		}),
		WaterIndex: {
			Name: WaterIndex, Formula: "(red - nir) / (red + nir)",
			Coefficient: 1, Intercept: 0, Min: -1, Max: 1,
			combine: normalizedDifference,
		},
		SuspendedSolids: unbounded(Model{
			Name: SuspendedSolids, Formula: "coefficient * (red + nir) + intercept",
			Coefficient: 0.67, Intercept: 12.3,
			combine: func(red, nir float64) float64 { return red + nir },
		}),
		SecchiDepth: {
			Name: SecchiDepth, Formula: "slope[season] * nir + intercept[season]",
			Min: 0, Max: MaxSecchiDepth, Seasonal: true,
			combine: func(_, nir float64) float64 { return nir },
		},
	}
}

func ratio(red, nir float64) float64 {
	if red == 0 {
		return math.NaN()
	}
	return nir / red
}

func normalizedDifference(red, nir float64) float64 {
	if red+nir == 0 {
		return math.NaN()
	}
	return (red - nir) / (red + nir)
}

// Option customizes a Registry.
type Option func(*Registry)

// WithCoefficients overrides the coefficient and intercept of a non-seasonal model.
func WithCoefficients(name string, coefficient, intercept float64) Option {
	return func(r *Registry) {
		m, ok := r.models[name]
		if !ok || m.Seasonal {
			return
		}
		m.Coefficient, m.Intercept = coefficient, intercept
		r.models[name] = m
	}
}

// WithCalibrations replaces the seasonal calibration table.
func WithCalibrations(table map[string]domain.Calibration) Option {
	return func(r *Registry) { r.calibrations = maps.Clone(table) }
}

// Registry holds the index models. It is read-only after construction.
type Registry struct {
	models       map[string]Model
	calibrations map[string]domain.Calibration
	logger       *slog.Logger
}

// NewRegistry returns a registry with the default models and calibration table.
func NewRegistry(logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		models:       defaultModels(),
		calibrations: maps.Clone(domain.SecchiCalibrations),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Names lists the registered models in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.models))
}

// Model returns the named model.
func (r *Registry) Model(name string) (Model, error) {
	m, ok := r.models[name]
	if !ok {
		return Model{}, fmt.Errorf("model %q: %w", name, domain.ErrUnknownModel)
	}
	return m, nil
}

// Calibration resolves a season id, falling back to the default coefficients
// with a warning when the id is unknown.
func (r *Registry) Calibration(season string) (domain.Calibration, bool) {
	if c, ok := r.calibrations[season]; ok {
		return c, true
	}
	r.logger.Warn("no calibration for season, using default coefficients",
		"season", season, "error", domain.ErrUnknownSeason)
	return domain.DefaultCalibration, false
}

// Compute evaluates a model over a reflectance raster carrying red and nir
// bands. The result has a single band named after the model plus provenance
// properties. season is ignored by non-seasonal models.
func (r *Registry) Compute(name string, raster domain.Raster, season string) (domain.Raster, error) {
	m, err := r.Model(name)
	if err != nil {
		return domain.Raster{}, err
	}
	red, err := raster.Band(composite.Red)
	if err != nil {
		return domain.Raster{}, fmt.Errorf("compute %s: %w", name, err)
	}
	nir, err := raster.Band(composite.NIR)
	if err != nil {
		return domain.Raster{}, fmt.Errorf("compute %s: %w", name, err)
	}

	coef, intercept := m.Coefficient, m.Intercept
	props := map[string]string{
		"index":   name,
		"formula": m.Formula,
	}
	if m.Seasonal {
		c, calibrated := r.Calibration(season)
		coef, intercept = c.Slope, c.Intercept
		props["season"] = season
		props["r2"] = formatFloat(c.R2)
		props["samples"] = strconv.Itoa(c.Samples)
		props["season_type"] = c.SeasonType
		props["calibrated"] = strconv.FormatBool(calibrated)
	}
	props["coefficient"] = formatFloat(coef)
	props["intercept"] = formatFloat(intercept)

	out := make([]float64, len(red))
	for i := range red {
		out[i] = m.eval(red[i], nir[i], coef, intercept)
	}

	res, err := raster.WithBands(name, domain.Band{Name: name, Data: out})
	if err != nil {
		return domain.Raster{}, err
	}
	return res.WithProperties(props), nil
}

// ComputeAll evaluates every non-seasonal model.
func (r *Registry) ComputeAll(raster domain.Raster) (map[string]domain.Raster, error) {
	out := make(map[string]domain.Raster)
	var errs []error
	for _, name := range r.Names() {
		if r.models[name].Seasonal {
			continue
		}
		res, err := r.Compute(name, raster, "")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[name] = res
	}
	return out, errors.Join(errs...)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
