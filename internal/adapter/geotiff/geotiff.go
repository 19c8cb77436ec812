// Package geotiff reads MOD09Q1 scenes from, and writes derived rasters to,
// GeoTIFF files through GDAL.
//
// Scenes are laid out one directory per dataset with one file per composite
// date:
//
//	<root>/MODIS_006_MOD09Q1/2016-08-04.tif
//
// Band descriptions carry the band names. Files without descriptions are read
// as sur_refl_b01, sur_refl_b02 in band order.
package geotiff

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/couchcryptid/lake-water-quality/internal/composite"
	"github.com/couchcryptid/lake-water-quality/internal/dataset"
	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/paulmach/orb"
)

// DateLayout names scene files.
const DateLayout = "2006-01-02"

var defaultBandNames = []string{dataset.RedBand, dataset.NIRBand}

var registerOnce sync.Once

// Register loads the GDAL drivers. It is safe to call more than once.
func Register() {
	registerOnce.Do(godal.RegisterAll)
}

// DirName maps a dataset id to its directory name.
func DirName(datasetID string) string {
	return strings.ReplaceAll(datasetID, "/", "_")
}

// ScenePath returns where the scene of datasetID for day lives under root.
func ScenePath(root, datasetID string, day time.Time) string {
	return filepath.Join(root, DirName(datasetID), day.Format(DateLayout)+".tif")
}

// SceneSource serves scenes from a directory tree. It implements dataset.Source.
type SceneSource struct {
	root   string
	logger *slog.Logger
}

// NewSceneSource registers GDAL drivers and returns a source rooted at root.
func NewSceneSource(root string, logger *slog.Logger) *SceneSource {
	Register()
	return &SceneSource{root: root, logger: logger}
}

// Scenes reads every scene of datasetID dated within [start, end]. A missing
// dataset directory yields no scenes. Footprint filtering is left to the
// selector.
func (s *SceneSource) Scenes(ctx context.Context, datasetID string, start, end time.Time, _ orb.Bound) ([]domain.Raster, error) {
	dir := filepath.Join(s.root, DirName(datasetID))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}

	var out []domain.Raster
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".tif" {
			continue
		}
		day, err := time.Parse(DateLayout, strings.TrimSuffix(name, ".tif"))
		if err != nil {
			s.logger.Debug("skipping scene with undated name", "file", name)
			continue
		}
		if day.Before(start) || day.After(end) {
			continue
		}
		r, err := Read(filepath.Join(dir, name), day)
		if err != nil {
			return nil, err
		}
		out = append(out, r.WithProperties(map[string]string{"dataset": datasetID}))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp().Before(out[j].Timestamp()) })
	return out, nil
}

// Read loads every band of a GeoTIFF as float64.
func Read(path string, timestamp time.Time) (domain.Raster, error) {
	Register()
	ds, err := godal.Open(path)
	if err != nil {
		return domain.Raster{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()

	gt, err := ds.GeoTransform()
	if err != nil {
		return domain.Raster{}, fmt.Errorf("geotransform %s: %w", path, err)
	}
	st := ds.Structure()
	width, height := st.SizeX, st.SizeY

	bands := make([]domain.Band, 0, len(ds.Bands()))
	for i, b := range ds.Bands() {
		name := b.Description()
		if name == "" {
			if i < len(defaultBandNames) {
				name = defaultBandNames[i]
			} else {
				name = fmt.Sprintf("band_%d", i+1)
			}
		}
		data := make([]float64, width*height)
		if err := b.Read(0, 0, data, width, height); err != nil {
			return domain.Raster{}, fmt.Errorf("read %s band %d: %w", path, i+1, err)
		}
		bands = append(bands, domain.Band{Name: name, Data: data})
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return domain.NewRaster(base, width, height, domain.GeoTransform(gt), timestamp, bands...)
}

// Write stores r as a Float64 GeoTIFF in EPSG:4326 with NaN as nodata. Raster
// properties become dataset metadata.
func Write(path string, r domain.Raster) error {
	Register()
	names := r.BandNames()
	ds, err := godal.Create(godal.GTiff, path, len(names), godal.Float64, r.Width(), r.Height())
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := writeDataset(ds, r, names); err != nil {
		ds.Close() //nolint:errcheck // already failing
		return fmt.Errorf("write %s: %w", path, err)
	}
	return ds.Close()
}

func writeDataset(ds *godal.Dataset, r domain.Raster, names []string) error {
	if err := ds.SetGeoTransform([6]float64(r.GeoTransform())); err != nil {
		return err
	}
	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return err
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return err
	}

	for k, v := range r.Properties() {
		if err := ds.SetMetadata(k, v); err != nil {
			return err
		}
	}

	bands := ds.Bands()
	for i, name := range names {
		data, err := r.Band(name)
		if err != nil {
			return err
		}
		b := bands[i]
		if err := b.SetDescription(name); err != nil {
			return err
		}
		if err := b.SetNoData(math.NaN()); err != nil {
			return err
		}
		if err := b.Write(0, 0, data, r.Width(), r.Height()); err != nil {
			return err
		}
	}
	return nil
}

// Sink writes <dir>/<name>.tif. It implements pipeline.RasterSink.
type Sink struct {
	dir         string
	scaleMeters float64
}

// NewSink registers GDAL drivers and creates the output directory if needed.
// Rasters are regridded to scaleMeters before writing; zero keeps the native
// grid.
func NewSink(dir string, scaleMeters float64) (*Sink, error) {
	Register()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Sink{dir: dir, scaleMeters: scaleMeters}, nil
}

// Name identifies the sink in logs and metrics.
func (s *Sink) Name() string { return "geotiff" }

// Path returns the file a raster name is written to.
func (s *Sink) Path(name string) string { return filepath.Join(s.dir, name+".tif") }

// ExportRaster writes r to the sink directory.
func (s *Sink) ExportRaster(ctx context.Context, name string, r domain.Raster) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.scaleMeters > 0 {
		resampled, err := composite.Resample(r, r.Bound(), s.scaleMeters)
		if err != nil {
			return fmt.Errorf("export %s: %w", name, err)
		}
		r = resampled
	}
	return Write(s.Path(name), r)
}
