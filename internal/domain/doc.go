// Package domain models lake water-quality rasters and the time series derived from them.
//
// # Data Source
//
// Scenes come from the MODIS Terra 8-day surface reflectance product (MOD09Q1,
// 250 m). Two collections cover the study window: "MODIS/MOD09Q1" for years
// before 2015 and "MODIS/006/MOD09Q1" from 2015 on. Each scene carries:
//
//	sur_refl_b01  red   620-670 nm
//	sur_refl_b02  NIR   841-876 nm
//
// Raw values are integer reflectance scaled by 10000. Preprocessing multiplies
// by 0.0001 and renames the bands to "red" and "nir".
//
// # Grids
//
// A [Raster] is a north-up EPSG:4326 grid described by a GDAL-style
// [GeoTransform]. All bands of a raster share the grid. NaN is the only
// no-data marker; reductions skip it and ratio models produce it for zero
// denominators.
//
// # Calibration
//
// Secchi depth is estimated as slope*nir + intercept, with coefficients fitted
// per campaign against field samples (see [SecchiCalibrations]):
//
//	aug2016  Rainy       -1.51 * nir + 0.35   R²=0.67
//	dec2016  Dry        -12.57 * nir + 0.85   R²=0.77
//	mar2017  Post-rainy  -3.93 * nir + 1.05   R²=0.73
//
// Campaigns without coefficients fall back to [DefaultCalibration].
//
// # Periods
//
// A [PeriodRecord] is produced for every requested season or year, including
// those with no imagery. Gaps keep their place in the series with status
// no_data or failed so downstream trend fitting sees the true time axis.
// Metrics absent from the record are "None" and are excluded from fits.
package domain
