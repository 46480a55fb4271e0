package wui

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wuimap/internal/raster"
)

func baseFrom(cs float64, rows [][]float64) *raster.Grid {
	g := raster.New("base", landCoverGeo(len(rows[0]), len(rows), cs), raster.Uint8, 0)
	for r, row := range rows {
		for c, v := range row {
			g.Set(r, c, v)
		}
	}
	return g
}

func TestWildlandCover(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name     string
		base     [][]float64
		fraction []float64
		mask     []float64
	}{
		{
			name:     "half cover is not majority",
			base:     [][]float64{{1, 0}},
			fraction: []float64{0.5, 0.5},
			mask:     []float64{0, 0},
		},
		{
			name: "single flammable cell",
			base: [][]float64{
				{0, 0, 0},
				{0, 1, 0},
				{0, 0, 0},
			},
			fraction: []float64{0, 0.25, 0, 0.25, 0.2, 0.25, 0, 0.25, 0},
			mask:     []float64{0, 0, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			name: "nodata cells are excluded from the window",
			base: [][]float64{
				{nan, 1},
				{1, 0},
			},
			fraction: []float64{1, 0.5, 0.5, 2.0 / 3},
			mask:     []float64{1, 0, 0, 1},
		},
		{
			name:     "window with no defined cell falls back to zero",
			base:     [][]float64{{nan, nan}, {nan, nan}},
			fraction: []float64{0, 0, 0, 0},
			mask:     []float64{0, 0, 0, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fraction, mask, err := WildlandCover(context.Background(), baseFrom(30, tt.base), 30, DefaultParams())
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.fraction, fraction.Cells, 1e-9)
			assert.Equal(t, tt.mask, mask.Cells)
			assert.True(t, raster.IsBinary(mask))
		})
	}
}

func TestWildlandCover_MajorityRegion(t *testing.T) {
	base := raster.New("base", landCoverGeo(9, 9, 30), raster.Uint8, 1)
	base.Set(0, 0, 0)

	_, mask, err := WildlandCover(context.Background(), base, 90, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 81, mask.Count(1))
}

func TestWildlandCover_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := WildlandCover(ctx, baseFrom(30, [][]float64{{1, 0}}), 30, DefaultParams())
	assert.ErrorIs(t, err, context.Canceled)
}
