package main

import (
	"testing"

	"github.com/couchcryptid/lake-water-quality/internal/adapter/csvexport"
	"github.com/stretchr/testify/assert"
)

func okRow(period, kind, metric, value string) csvexport.Row {
	return csvexport.Row{RunID: "run-1", PeriodID: period, Kind: kind, Status: "ok", Metric: metric, Value: value}
}

func TestValidateRows(t *testing.T) {
	good := tables{
		seasonal: []csvexport.Row{
			okRow("aug2016", "season", "secchi_depth", "0.234"),
			{RunID: "run-1", PeriodID: "dec2016", Kind: "season", Status: "no_data", Reason: "empty raster sequence"},
		},
		annual: []csvexport.Row{okRow("2016", "year", "red", "0.07")},
	}
	assert.True(t, validateRows(good).passed())

	bad := tables{
		seasonal: []csvexport.Row{
			{RunID: "run-1", PeriodID: "dec2016", Kind: "season", Status: "no_data", Metric: "nir", Value: "0.1", Reason: "x"},
			okRow("mar2017", "season", "nir", "abc"),
		},
		annual: []csvexport.Row{{RunID: "run-2", PeriodID: "2016", Kind: "year", Status: "weird"}},
	}
	p := validateRows(bad)
	assert.False(t, p.passed())
	assert.Len(t, p.errors, 4)
}

func TestValidateRanges(t *testing.T) {
	p := validateRanges(tables{seasonal: []csvexport.Row{
		okRow("aug2016", "season", "secchi_depth", "5.5"),
		okRow("aug2016", "season", "turbidity_mean", "15.66"),
	}})
	assert.Len(t, p.errors, 1)
}

func TestValidateDatasetSelection(t *testing.T) {
	rows := []csvexport.Row{
		{Year: 2014, DatasetID: "MODIS/MOD09Q1"},
		{Year: 2015, DatasetID: "MODIS/006/MOD09Q1"},
		{Year: 2016, DatasetID: "MODIS/MOD09Q1"},
	}
	p := validateDatasetSelection(rows)
	assert.Len(t, p.errors, 1)
	assert.Contains(t, p.errors[0], "2016")
}

func TestValidateSeasonalChange(t *testing.T) {
	seasonal := []csvexport.Row{
		okRow("aug2016", "season", "secchi_depth", "0.25"),
		{PeriodID: "dec2016", Kind: "season", Status: "no_data"},
		okRow("mar2017", "season", "secchi_depth", "0.75"),
	}
	change := []csvexport.Row{
		okRow("aug2016..mar2017", "change", "secchi_change_m", "0.5"),
		okRow("aug2016..mar2017", "change", "secchi_change_pct", "200"),
	}
	assert.True(t, validateSeasonalChange(seasonal, change).passed())

	change[1].Value = "150"
	assert.False(t, validateSeasonalChange(seasonal, change).passed())

	assert.False(t, validateSeasonalChange(seasonal, nil).passed(), "missing change table")
	assert.True(t, validateSeasonalChange(seasonal[:1], nil).passed())
}
