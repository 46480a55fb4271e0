package wui

import (
	"github.com/sells-group/wuimap/internal/raster"
)

// WildlandBaseMask marks flammable vegetation: 1 where the land-cover code is
// in p.FlammableCodes, 0 for any other code. Land-cover nodata stays nodata so
// cells outside the extracted extent never count toward cover fractions.
func WildlandBaseMask(landCover *raster.Grid, p Params) *raster.Grid {
	set := p.flammable()
	return raster.Con(string(KindWildlandBase), landCover, raster.Uint8, func(v float64) bool { return set[v] }, 1, 0)
}
