// Package app wires the analysis components from configuration. Both the
// long-running service and the one-shot CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/lake-water-quality/internal/adapter/boundary"
	"github.com/couchcryptid/lake-water-quality/internal/adapter/csvexport"
	"github.com/couchcryptid/lake-water-quality/internal/adapter/geotiff"
	kafkaadapter "github.com/couchcryptid/lake-water-quality/internal/adapter/kafka"
	"github.com/couchcryptid/lake-water-quality/internal/config"
	"github.com/couchcryptid/lake-water-quality/internal/dataset"
	"github.com/couchcryptid/lake-water-quality/internal/index"
	"github.com/couchcryptid/lake-water-quality/internal/observability"
	"github.com/couchcryptid/lake-water-quality/internal/pipeline"
	"github.com/couchcryptid/lake-water-quality/internal/series"
	"github.com/couchcryptid/lake-water-quality/internal/spatial"
	"github.com/couchcryptid/lake-water-quality/internal/zonal"
)

// App holds the wired components.
type App struct {
	Lake       *spatial.Domain
	Builder    *series.Builder
	Pipeline   *pipeline.Pipeline
	Dispatcher *pipeline.Dispatcher

	kafka  *kafkaadapter.Writer
	logger *slog.Logger
}

// New loads the lake boundary and wires scene access, the series builder, the
// export sinks and the pipeline.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	lake, err := spatial.Load(ctx, boundary.NewSource(cfg.BoundarySource, cfg.BoundaryTimeout, logger), cfg.BoundaryName)
	if err != nil {
		return nil, fmt.Errorf("load lake boundary: %w", err)
	}
	logger.Info("lake boundary loaded",
		"lake", lake.Name(),
		"area_km2", lake.Area(cfg.AreaToleranceM).SquareKilometers(),
		"source", cfg.BoundarySource,
	)

	scenes := dataset.NewCachedSource(
		geotiff.NewSceneSource(cfg.SceneDir, logger),
		cfg.SceneCacheSize,
		func(result string) { metrics.SceneCache.WithLabelValues(result).Inc() },
	)
	reducer := zonal.NewReducer(func(requested, effective float64) {
		metrics.ScaleCoarsened.Inc()
		logger.Info("zonal scale coarsened to fit pixel budget", "requested_m", requested, "effective_m", effective)
	})

	builder := series.NewBuilder(
		dataset.NewSelector(scenes, logger),
		index.NewRegistry(logger),
		reducer,
		lake,
		series.Settings{
			SeasonalScaleM:    cfg.SeasonalScaleM,
			LakeScaleM:        cfg.LakeScaleM,
			PixelBudgetFine:   cfg.PixelBudgetFine,
			PixelBudgetCoarse: cfg.PixelBudgetCoarse,
			BufferM:           cfg.BufferM,
			Workers:           cfg.Workers,
			PeriodTimeout:     cfg.PeriodTimeout,
		},
		logger, metrics,
	)

	csvSink, err := csvexport.NewSink(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	tiffSink, err := geotiff.NewSink(cfg.OutputDir, cfg.ExportScaleM)
	if err != nil {
		return nil, err
	}

	a := &App{Lake: lake, Builder: builder, logger: logger}
	records := []pipeline.RecordSink{csvSink}
	if cfg.KafkaEnabled() {
		a.kafka = kafkaadapter.NewWriter(cfg, logger)
		records = append(records, a.kafka)
		logger.Info("kafka export enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka export disabled")
	}
	a.Dispatcher = pipeline.NewDispatcher(cfg.Workers, records, []pipeline.RasterSink{tiffSink}, logger, metrics)

	a.Pipeline = pipeline.New(builder, lake, pipeline.Options{
		Seasons:        cfg.Seasons,
		YearStart:      cfg.YearStart,
		YearEnd:        cfg.YearEnd,
		AreaToleranceM: cfg.AreaToleranceM,
		RunInterval:    cfg.RunInterval,
	}, a.Dispatcher, logger, metrics)

	return a, nil
}

// Close drains queued exports and closes the Kafka writer.
func (a *App) Close() error {
	a.Dispatcher.Close()
	var errs []error
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka writer close: %w", err))
		}
	}
	return errors.Join(errs...)
}
