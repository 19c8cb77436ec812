package composite

import (
	"fmt"
	"math"

	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/paulmach/orb"
)

const metersPerDegree = 111319.49

// Resample regrids r onto a north-up grid covering bound at scaleMeters per
// pixel using nearest-neighbour lookup. Cells outside r are NaN.
func Resample(r domain.Raster, bound orb.Bound, scaleMeters float64) (domain.Raster, error) {
	if scaleMeters <= 0 {
		return domain.Raster{}, fmt.Errorf("resample: invalid scale %v", scaleMeters)
	}
	step := scaleMeters / metersPerDegree
	width := max(1, int(math.Ceil((bound.Max[0]-bound.Min[0])/step-1e-9)))
	height := max(1, int(math.Ceil((bound.Max[1]-bound.Min[1])/step-1e-9)))
	gt := domain.NewGeoTransform(bound.Min[0], bound.Max[1], step)

	names := r.BandNames()
	src := make(map[string][]float64, len(names))
	for _, name := range names {
		data, err := r.Band(name)
		if err != nil {
			return domain.Raster{}, err
		}
		src[name] = data
	}

	bands := make([]domain.Band, len(names))
	for i, name := range names {
		bands[i] = domain.Band{Name: name, Data: make([]float64, width*height)}
	}

	for row := range height {
		for col := range width {
			p := orb.Point{
				gt[0] + (float64(col)+0.5)*gt[1],
				gt[3] + (float64(row)+0.5)*gt[5],
			}
			sc, sr, ok := r.PixelAt(p)
			for i, name := range names {
				v := math.NaN()
				if ok {
					v = src[name][sr*r.Width()+sc]
				}
				bands[i].Data[row*width+col] = v
			}
		}
	}

	out, err := domain.NewRaster(r.Name(), width, height, gt, r.Timestamp(), bands...)
	if err != nil {
		return domain.Raster{}, err
	}
	return out.WithProperties(r.Properties()).WithProperties(map[string]string{
		"scale_m": fmt.Sprint(scaleMeters),
	}), nil
}
