package wui

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wuimap/internal/raster"
)

// WildlandCover computes the flammable fraction of the circular window of
// radius n around every cell and thresholds it at p.CoverThreshold. Windows
// with no defined base cell have fraction 0.
func WildlandCover(ctx context.Context, base *raster.Grid, n float64, p Params) (fraction, mask *raster.Grid, err error) {
	k := raster.Circle(n, base.CellSize)

	coverSum, err := raster.FocalSum(ctx, "cover-sum", raster.EqualTo("cover", base, 1), k)
	if err != nil {
		return nil, nil, eris.Wrap(err, "wui: cover focal sum")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "wui: wildland cover")
	}
	zeroSum, err := raster.FocalSum(ctx, "zero-sum", raster.EqualTo("zero", base, 0), k)
	if err != nil {
		return nil, nil, eris.Wrap(err, "wui: zero focal sum")
	}

	fraction, err = raster.Zip(string(KindCoverFraction), coverSum, zeroSum, raster.Float32, func(cover, zero float64) float64 {
		total := cover + zero
		if math.IsNaN(total) || total == 0 {
			return 0
		}
		return cover / total
	})
	if err != nil {
		return nil, nil, err
	}
	mask = raster.GreaterThan(string(KindCover), fraction, p.CoverThreshold)
	return fraction, mask, nil
}
