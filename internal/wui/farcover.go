package wui

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wuimap/internal/raster"
	"github.com/sells-group/wuimap/internal/vector"
)

// FarCover is the large-patch proximity mask with the intermediates it was
// derived from.
type FarCover struct {
	// Mask is 1 within PatchBuffer of a large flammable patch, 0 elsewhere.
	Mask *raster.Grid
	// WildlandAreas carries each polygon's area tag on its cells. It is never
	// consumed by the classification.
	WildlandAreas *raster.Grid
	Patches       *vector.Polygonization
	Selected      []*vector.Feature
}

// FarFromWildlandMask polygonizes the wildland base mask, selects flammable
// patches larger than p.LargePatchArea and marks every cell whose center lies
// within p.PatchBuffer of one of them. A base mask with no large patch yields
// an all-zero mask.
func FarFromWildlandMask(base *raster.Grid, p Params) (*FarCover, error) {
	log := zap.L().With(zap.String("component", "wui.farcover"))

	patches, err := vector.Polygonize(base, vector.PolygonizeOptions{})
	if err != nil {
		return nil, eris.Wrap(err, "wui: polygonize wildland base")
	}

	var tagged int
	for _, f := range patches.Features {
		f.Value = 0
		if f.Area > p.PatchTagArea && f.GridCode == 1 {
			f.Value = 1
			tagged++
		}
	}
	areas := patches.Rasterize(string(KindWildlandAreas), raster.Uint8, func(f *vector.Feature) float64 {
		return float64(f.Value)
	})

	selected := patches.Select(func(f *vector.Feature) bool {
		return f.Area > p.LargePatchArea && f.GridCode == 1
	})

	out := &FarCover{WildlandAreas: areas, Patches: patches, Selected: selected}
	if len(selected) == 0 {
		log.Info("no wildland patch exceeds the large-patch area, far-cover mask is empty",
			zap.Int("patches", len(patches.Features)),
			zap.Float64("large_patch_area", p.LargePatchArea),
		)
		out.Mask = raster.New(string(KindFarCover), base.Geo, raster.Uint8, 0)
		return out, nil
	}

	cells := patches.CellsOf(string(KindFarCover), selected)
	out.Mask = raster.Dilate(string(KindFarCover), cells, raster.SquareReach(p.PatchBuffer, base.CellSize))

	log.Debug("built far-cover mask",
		zap.Int("patches", len(patches.Features)),
		zap.Int("tagged", tagged),
		zap.Int("selected", len(selected)),
		zap.Int("cells", out.Mask.Count(1)),
	)
	return out, nil
}
