package domain

// Calibration holds the linear Secchi-depth coefficients fitted against field
// samples for one campaign.
type Calibration struct {
	Slope      float64 `json:"slope"`
	Intercept  float64 `json:"intercept"`
	R2         float64 `json:"r2"`
	Samples    int     `json:"samples"`
	SeasonType string  `json:"season_type"`
}

// DefaultCalibration is used for season ids with no fitted coefficients.
var DefaultCalibration = Calibration{Slope: -5.0, Intercept: 1.0, R2: 0, Samples: 0, SeasonType: "General"}

// SecchiCalibrations maps campaign ids to their fitted coefficients.
// The table is read-only after init.
var SecchiCalibrations = map[string]Calibration{
	"aug2016": {Slope: -1.51, Intercept: 0.35, R2: 0.67, Samples: 100, SeasonType: "Rainy"},
	"dec2016": {Slope: -12.57, Intercept: 0.85, R2: 0.77, Samples: 100, SeasonType: "Dry"},
	"mar2017": {Slope: -3.93, Intercept: 1.05, R2: 0.73, Samples: 100, SeasonType: "Post-rainy"},
}

