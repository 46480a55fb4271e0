package wui

import (
	"github.com/sells-group/wuimap/internal/raster"
)

// WaterMask marks buildable surface: 0 where the land-cover code is the water
// code, 1 everywhere else. Land-cover nodata counts as buildable.
func WaterMask(landCover *raster.Grid, p Params) *raster.Grid {
	water := float64(p.WaterCode)
	return raster.Map(string(KindWater), landCover, raster.Uint8, func(v float64) float64 {
		if v == water {
			return 0
		}
		return 1
	})
}
