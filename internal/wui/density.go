package wui

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wuimap/internal/raster"
	"github.com/sells-group/wuimap/internal/vector"
)

// ctxCheckEvery is how many points are scattered between context checks.
const ctxCheckEvery = 4096

// NeighborhoodSum returns, for every cell of geo, the total weight of points
// within distance n of the cell center. Cells no point reaches are nodata.
func NeighborhoodSum(ctx context.Context, points *vector.PointSet, geo raster.Geo, n float64) (*raster.Grid, error) {
	if n <= 0 {
		return nil, eris.Errorf("wui: window radius %g must be positive", n)
	}
	out := raster.NewNull(string(KindNeighborhoodSum), geo, raster.Float32)
	cs := geo.CellSize
	r2 := n * n

	for i, pt := range points.Points {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrap(err, "wui: neighborhood sum")
			}
		}
		// Cell centers sit at origin + (k + 0.5) * cs.
		c0 := max(0, int(math.Ceil((pt.X-n-geo.OriginX)/cs-0.5)))
		c1 := min(geo.Cols-1, int(math.Floor((pt.X+n-geo.OriginX)/cs-0.5)))
		r0 := max(0, int(math.Ceil((geo.OriginY-(pt.Y+n))/cs-0.5)))
		r1 := min(geo.Rows-1, int(math.Floor((geo.OriginY-(pt.Y-n))/cs-0.5)))
		for r := r0; r <= r1; r++ {
			for c := c0; c <= c1; c++ {
				x, y := geo.CellCenter(r, c)
				dx, dy := x-pt.X, y-pt.Y
				if dx*dx+dy*dy > r2 {
					continue
				}
				j := r*geo.Cols + c
				if math.IsNaN(out.Cells[j]) {
					out.Cells[j] = 0
				}
				out.Cells[j] += pt.Weight
			}
		}
	}
	return out, nil
}

// HousingDensity converts a neighborhood sum at radius n into units per square
// kilometer and thresholds it. dense is 1 where density exceeds
// p.DensityThreshold and 0 everywhere else, including cells with no sum.
func HousingDensity(sum *raster.Grid, n float64, p Params) (density, dense *raster.Grid) {
	windowArea := math.Pi * n * n
	density = raster.Map(string(KindDensity), sum, raster.Float32, func(v float64) float64 {
		return v / windowArea * 1e6
	})
	dense = raster.GreaterThan(string(KindDense), density, p.DensityThreshold)
	dense = raster.FillNull(string(KindDense), dense, 0)
	return density, dense
}
