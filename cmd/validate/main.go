// Command validate checks the integrity of the CSV tables exported by an
// analysis run: row shape, status and gap consistency, physical value ranges,
// dataset selection per year, and the seasonal change against the seasonal
// table.
//
// Usage:
//
//	go run ./cmd/validate -dir output -lake Tana
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/lake-water-quality/internal/adapter/csvexport"
	"github.com/couchcryptid/lake-water-quality/internal/dataset"
	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/couchcryptid/lake-water-quality/internal/index"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// valueRange bounds a metric. Reflectance allows the MOD09Q1 valid range.
type valueRange struct{ min, max float64 }

var ranges = map[string]valueRange{
	domain.MetricRed:         {-0.01, 1.6},
	domain.MetricNIR:         {-0.01, 1.6},
	domain.MetricWaterIndex:  {-1, 1},
	domain.MetricSecchiDepth: {0, index.MaxSecchiDepth},
}

// tables holds the loaded exports keyed by kind.
type tables struct {
	seasonal []csvexport.Row
	annual   []csvexport.Row
	change   []csvexport.Row
}

func main() {
	dir := flag.String("dir", "output", "directory containing the exported CSV tables")
	lake := flag.String("lake", "Tana", "lake name used in the table file names")
	flag.Parse()

	os.Exit(run(*dir, *lake))
}

func run(dir, lake string) int {
	fmt.Println("=== Lake Water Quality Export Validation ===")
	fmt.Println()

	t, err := loadTables(dir, lake)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateRows(t),
		validateRanges(t),
		validateDatasetSelection(t.annual),
		validateSeasonalChange(t.seasonal, t.change),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d seasonal, %d annual, %d change\n", len(t.seasonal), len(t.annual), len(t.change))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadTables(dir, lake string) (tables, error) {
	prefix := "lake_" + strings.ToLower(strings.ReplaceAll(lake, " ", "_"))
	var t tables
	var err error

	if t.seasonal, err = csvexport.ReadRows(filepath.Join(dir, prefix+"_seasonal.csv")); err != nil {
		return t, fmt.Errorf("seasonal table: %w", err)
	}

	annual, err := filepath.Glob(filepath.Join(dir, prefix+"_annual_*.csv"))
	if err != nil {
		return t, err
	}
	if len(annual) != 1 {
		return t, fmt.Errorf("want one annual table in %s, found %d", dir, len(annual))
	}
	if t.annual, err = csvexport.ReadRows(annual[0]); err != nil {
		return t, fmt.Errorf("annual table: %w", err)
	}

	changePath := filepath.Join(dir, prefix+"_secchi_change.csv")
	if _, statErr := os.Stat(changePath); statErr == nil {
		if t.change, err = csvexport.ReadRows(changePath); err != nil {
			return t, fmt.Errorf("change table: %w", err)
		}
	}
	return t, nil
}

// ── Validation phases ──

func validateRows(t tables) *phase {
	p := &phase{name: "Phase 1: Row integrity"}
	runIDs := map[string]bool{}
	check := func(table string, rows []csvexport.Row, kind domain.PeriodKind) {
		for i, r := range rows {
			line := i + 2
			runIDs[r.RunID] = true
			if r.Kind != string(kind) {
				p.errorf("%s line %d: kind %q, want %q", table, line, r.Kind, kind)
			}
			switch domain.PeriodStatus(r.Status) {
			case domain.StatusOK:
				if r.Metric == "" {
					p.errorf("%s line %d: ok period %s without a metric", table, line, r.PeriodID)
				}
			case domain.StatusNoData, domain.StatusFailed:
				if r.Metric != "" || r.Value != "" {
					p.errorf("%s line %d: gap period %s carries metric %q", table, line, r.PeriodID, r.Metric)
				}
				if r.Reason == "" {
					p.errorf("%s line %d: gap period %s has no reason", table, line, r.PeriodID)
				}
			default:
				p.errorf("%s line %d: unknown status %q", table, line, r.Status)
			}
			if r.Metric != "" {
				if v, ok := r.Float(); !ok || math.IsNaN(v) || math.IsInf(v, 0) {
					p.errorf("%s line %d: %s=%q is not a finite number", table, line, r.Metric, r.Value)
				}
			}
		}
	}
	check("seasonal", t.seasonal, domain.KindSeason)
	check("annual", t.annual, domain.KindYear)
	check("change", t.change, domain.KindChange)

	if len(runIDs) != 1 {
		p.errorf("tables come from %d runs, want 1", len(runIDs))
	}
	return p
}

func validateRanges(t tables) *phase {
	p := &phase{name: "Phase 2: Physical value ranges"}
	for _, rows := range [][]csvexport.Row{t.seasonal, t.annual} {
		for _, r := range rows {
			rg, ok := ranges[r.Metric]
			if !ok {
				continue
			}
			v, ok := r.Float()
			if !ok {
				continue
			}
			if v < rg.min || v > rg.max {
				p.errorf("%s %s=%g outside [%g, %g]", r.PeriodID, r.Metric, v, rg.min, rg.max)
			}
		}
	}
	return p
}

func validateDatasetSelection(annual []csvexport.Row) *phase {
	p := &phase{name: "Phase 3: Dataset selection by year"}
	for _, r := range annual {
		if want := dataset.IDFor(r.Year); r.DatasetID != want {
			p.errorf("%d: dataset %q, want %q", r.Year, r.DatasetID, want)
		}
	}
	return p
}

func validateSeasonalChange(seasonal, change []csvexport.Row) *phase {
	p := &phase{name: "Phase 4: Seasonal change consistency"}

	var order []string
	secchi := map[string]float64{}
	for _, r := range seasonal {
		if r.Metric != domain.MetricSecchiDepth {
			continue
		}
		if v, ok := r.Float(); ok {
			order = append(order, r.PeriodID)
			secchi[r.PeriodID] = v
		}
	}

	if len(order) < 2 {
		if len(change) > 0 {
			p.errorf("change table present with %d valid seasons", len(order))
		}
		return p
	}
	if len(change) == 0 {
		p.errorf("no change table for %d valid seasons", len(order))
		return p
	}

	first, last := order[0], order[len(order)-1]
	wantID := first + ".." + last
	for _, r := range change {
		if r.PeriodID != wantID {
			p.errorf("change period %q, want %q", r.PeriodID, wantID)
		}
		v, ok := r.Float()
		if !ok {
			continue
		}
		var want float64
		switch r.Metric {
		case domain.MetricSecchiAbsolute:
			want = secchi[last] - secchi[first]
		case domain.MetricSecchiPercent:
			want = (secchi[last] - secchi[first]) / secchi[first] * 100
		default:
			p.errorf("unexpected change metric %q", r.Metric)
			continue
		}
		if !floatEq(v, want) {
			p.errorf("%s=%g, want %g", r.Metric, v, want)
		}
	}
	return p
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b))
}
