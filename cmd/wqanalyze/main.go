// Command wqanalyze runs one lake water quality analysis from the command line,
// prints a report and waits for all exports to finish.
//
// Usage:
//
//	go run ./cmd/wqanalyze -json output/summary.json
//
// Settings come from the environment (and .env), as for wqpipeline.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/lake-water-quality/internal/app"
	"github.com/couchcryptid/lake-water-quality/internal/config"
	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/couchcryptid/lake-water-quality/internal/observability"
	"github.com/couchcryptid/lake-water-quality/internal/pipeline"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "wqanalyze: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	jsonOut := flag.String("json", "", "write the run summary as JSON to this path")
	quiet := flag.Bool("quiet", false, "log to stderr instead of showing a progress bar")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cliLogger(observability.NewLogger(cfg), *quiet, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, observability.NewMetrics())
	if err != nil {
		return err
	}

	if !*quiet {
		total := len(cfg.Seasons) + cfg.YearEnd - cfg.YearStart + 1
		bar := progressbar.Default(int64(total), "Processing periods")
		a.Builder.OnPeriod(func(domain.PeriodRecord) { _ = bar.Add(1) })
	}

	s, err := a.Pipeline.RunOnce(ctx)
	closeErr := a.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}

	printReport(os.Stdout, s)

	if *jsonOut != "" {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
		if err := os.WriteFile(*jsonOut, data, 0o644); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}

// cliLogger returns base when quiet. Otherwise only errors reach stderr, which
// keeps routine log lines from tearing the progress bar.
func cliLogger(base *slog.Logger, quiet bool, stderr io.Writer) *slog.Logger {
	if quiet {
		return base
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func printReport(w io.Writer, s *pipeline.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "=== Lake %s water quality (run %s) ===\n", s.Lake.Name, s.RunID)
	fmt.Fprintf(w, "Area: %.1f km² (bounding box %.1f km², tolerance %.0f m)\n",
		s.Lake.AreaKm2, s.Lake.BoundingBoxKm2, s.Lake.ToleranceMeters)

	fmt.Fprintln(w, "\n-- Seasonal --")
	for _, rec := range s.Seasonal {
		fmt.Fprintf(w, "%-10s %-8s images=%-3d", rec.PeriodID, rec.Status, rec.ImageCount)
		for _, m := range []string{domain.MetricSecchiDepth, domain.MetricNIR, domain.MetricTurbidityMean, domain.MetricTurbidityCV} {
			fmt.Fprintf(w, " %s=%s", m, formatMetric(rec.Metric(m)))
		}
		fmt.Fprintln(w)
	}
	if c := s.SecchiChange; c != nil {
		fmt.Fprintf(w, "Secchi change %s -> %s: %+.3f m (%s%%)\n", c.From, c.To, c.Absolute, formatMetric(c.Percent))
	}

	fmt.Fprintln(w, "\n-- Annual --")
	for _, rec := range s.Annual {
		fmt.Fprintf(w, "%d %-8s images=%-3d", rec.Year, rec.Status, rec.ImageCount)
		for _, m := range pipeline.TrendMetrics {
			fmt.Fprintf(w, " %s=%s", m, formatMetric(rec.Metric(m)))
		}
		fmt.Fprintln(w)
	}
	for _, t := range s.Trends {
		fmt.Fprintln(w, t.String())
	}

	if c := s.Classification; c != nil {
		fmt.Fprintf(w, "\n-- Clarity classes (%s) --\n", c.Season)
		for _, cc := range c.Histogram {
			fmt.Fprintf(w, "%d %-12s %d px\n", cc.ClassID, cc.Label, cc.Pixels)
		}
	}
}

func formatMetric(v *float64) string {
	if v == nil {
		return "None"
	}
	return fmt.Sprintf("%.4f", *v)
}
