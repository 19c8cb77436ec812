package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/lake-water-quality/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultSeasons are the three field campaigns with fitted Secchi calibrations.
const DefaultSeasons = "2016-08:aug2016:August 2016 (Rainy season)," +
	"2016-12:dec2016:December 2016 (Dry season)," +
	"2017-03:mar2017:March 2017 (Post-rainy)"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Study area.
	BoundarySource  string
	BoundaryName    string
	BoundaryTimeout time.Duration
	AreaToleranceM  float64
	BufferM         float64
	SceneDir        string
	SceneCacheSize  int
	Seasons         []domain.SeasonDef
	YearStart       int
	YearEnd         int

	// Zonal reduction settings.
	SeasonalScaleM    float64
	LakeScaleM        float64
	PixelBudgetFine   float64
	PixelBudgetCoarse float64

	// Execution.
	Workers       int
	PeriodTimeout time.Duration
	RunInterval   time.Duration

	// Export sinks. Kafka is disabled when KafkaBrokers is empty.
	OutputDir    string
	ExportScaleM float64
	KafkaBrokers []string
	KafkaTopic   string
}

// KafkaEnabled reports whether period records are published to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	seasons, err := ParseSeasons(sharedcfg.EnvOrDefault("SEASONS", DefaultSeasons))
	if err != nil {
		return nil, fmt.Errorf("invalid SEASONS: %w", err)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		BoundarySource: sharedcfg.EnvOrDefault("BOUNDARY_SOURCE", "data/lake_tana.geojson"),
		BoundaryName:   os.Getenv("BOUNDARY_NAME"),
		SceneDir:       sharedcfg.EnvOrDefault("SCENE_DIR", "data/scenes"),
		Seasons:        seasons,

		OutputDir:    sharedcfg.EnvOrDefault("OUTPUT_DIR", "output"),
		KafkaBrokers: sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "lake-water-quality"),
	}
	if _, set := os.LookupEnv("BOUNDARY_NAME"); !set {
		cfg.BoundaryName = "Tana"
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"YEAR_START", 2008, &cfg.YearStart},
		{"YEAR_END", 2018, &cfg.YearEnd},
		{"WORKERS", 4, &cfg.Workers},
		{"SCENE_CACHE_SIZE", 64, &cfg.SceneCacheSize},
	}
	for _, v := range ints {
		n, err := parseInt(v.key, v.def)
		if err != nil {
			return nil, err
		}
		*v.dst = n
	}

	floats := []struct {
		key string
		def float64
		dst *float64
	}{
		{"SEASONAL_SCALE_M", 250, &cfg.SeasonalScaleM},
		{"LAKE_SCALE_M", 500, &cfg.LakeScaleM},
		{"PIXEL_BUDGET_FINE", 1e9, &cfg.PixelBudgetFine},
		{"PIXEL_BUDGET_COARSE", 1e7, &cfg.PixelBudgetCoarse},
		{"AREA_TOLERANCE_M", 100, &cfg.AreaToleranceM},
		{"BUFFER_M", 1000, &cfg.BufferM},
		{"EXPORT_SCALE_M", 250, &cfg.ExportScaleM},
	}
	for _, v := range floats {
		f, err := parsePositiveFloat(v.key, v.def)
		if err != nil {
			return nil, err
		}
		*v.dst = f
	}

	if cfg.PeriodTimeout, err = parseDuration("PERIOD_TIMEOUT", "2m", false); err != nil {
		return nil, err
	}
	if cfg.RunInterval, err = parseDuration("RUN_INTERVAL", "0s", true); err != nil {
		return nil, err
	}
	if cfg.BoundaryTimeout, err = parseDuration("BOUNDARY_TIMEOUT", "30s", false); err != nil {
		return nil, err
	}

	if cfg.BoundarySource == "" {
		return nil, errors.New("BOUNDARY_SOURCE is required")
	}
	if cfg.YearEnd < cfg.YearStart {
		return nil, errors.New("YEAR_END must not be before YEAR_START")
	}
	if cfg.Workers < 1 {
		return nil, errors.New("WORKERS must be at least 1")
	}
	if cfg.SceneCacheSize < 1 {
		return nil, errors.New("SCENE_CACHE_SIZE must be at least 1")
	}
	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// ParseSeasons parses "YYYY-MM:id:label" entries separated by commas.
func ParseSeasons(s string) ([]domain.SeasonDef, error) {
	var out []domain.SeasonDef
	seen := map[string]bool{}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("entry %q: want YYYY-MM:id[:label]", entry)
		}
		month, err := time.Parse("2006-01", strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", entry, err)
		}
		def := domain.SeasonDef{
			ID:    strings.TrimSpace(parts[1]),
			Label: strings.TrimSpace(parts[1]),
			Year:  month.Year(),
			Month: month.Month(),
		}
		if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
			def.Label = strings.TrimSpace(parts[2])
		}
		if def.ID == "" {
			return nil, fmt.Errorf("entry %q: empty id", entry)
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("duplicate season %q", def.ID)
		}
		seen[def.ID] = true
		out = append(out, def)
	}
	return out, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parsePositiveFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive number", key)
	}
	return f, nil
}

func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}
