package wui

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wuimap/internal/raster"
)

func landCoverGeo(cols, rows int, cellSize float64) raster.Geo {
	return raster.Geo{OriginX: 0, OriginY: float64(rows) * cellSize, CellSize: cellSize, Cols: cols, Rows: rows}
}

// ringLandCover is a 10x10 grid with a water border ring, a flammable 4x4
// core at rows/cols 3..6 and developed land elsewhere.
func ringLandCover() *raster.Grid {
	g := raster.New("nlcd", landCoverGeo(10, 10, 30), raster.Uint8, 21)
	for r := 0; r < 10; r++ {
		for c := 0; c < 10; c++ {
			switch {
			case r == 0 || c == 0 || r == 9 || c == 9:
				g.Set(r, c, 11)
			case r >= 3 && r <= 6 && c >= 3 && c <= 6:
				g.Set(r, c, 41)
			}
		}
	}
	return g
}

func TestWaterMask(t *testing.T) {
	lc := ringLandCover()
	lc.Set(4, 1, math.NaN())

	m := WaterMask(lc, DefaultParams())
	assert.True(t, raster.IsBinary(m))
	assert.Equal(t, raster.Uint8, m.Type)
	for i := 0; i < 10; i++ {
		assert.Equal(t, 0.0, m.At(0, i))
		assert.Equal(t, 0.0, m.At(9, i))
		assert.Equal(t, 0.0, m.At(i, 0))
		assert.Equal(t, 0.0, m.At(i, 9))
	}
	assert.Equal(t, 1.0, m.At(5, 5))
	assert.Equal(t, 1.0, m.At(2, 2))
	assert.Equal(t, 1.0, m.At(4, 1), "nodata is buildable")
	assert.Equal(t, 64, m.Count(1))
}

func TestWildlandBaseMask(t *testing.T) {
	lc := ringLandCover()
	lc.Set(1, 1, math.NaN())

	p := DefaultParams()
	m := WildlandBaseMask(lc, p)
	assert.Equal(t, 16, m.Count(1))
	assert.True(t, m.IsNull(1, 1))
	assert.Equal(t, 0.0, m.At(0, 0))
	assert.Equal(t, 1.0, m.At(3, 3))

	again := WildlandBaseMask(lc, p)
	assert.True(t, m.Equal(again), "same input and codes give an identical mask")

	p.FlammableCodes = []int{21}
	dev := WildlandBaseMask(lc, p)
	assert.Equal(t, 64-16-1, dev.Count(1))
}

func TestFarFromWildlandMask_SmallPatchIsEmpty(t *testing.T) {
	// 2x5 cells of 20x20 is a 4000 square-unit patch.
	base := raster.New("base", landCoverGeo(12, 12, 20), raster.Uint8, 0)
	for r := 5; r < 7; r++ {
		for c := 3; c < 8; c++ {
			base.Set(r, c, 1)
		}
	}

	fc, err := FarFromWildlandMask(base, DefaultParams())
	require.NoError(t, err)
	assert.Empty(t, fc.Selected)
	assert.Equal(t, base.Len(), fc.Mask.Count(0))
	assert.True(t, raster.IsBinary(fc.Mask))
	assert.Equal(t, base.Len(), fc.WildlandAreas.Count(0), "4000 is below the tag area")

	var patch float64
	for _, f := range fc.Patches.Features {
		if f.GridCode == 1 {
			patch = f.Area
		}
	}
	assert.InDelta(t, 4000, patch, 1e-6)
}

func TestFarFromWildlandMask_TagIsDiagnosticOnly(t *testing.T) {
	// 3x3 cells of 30x30: 8100 square units, above the tag area only.
	base := raster.New("base", landCoverGeo(8, 8, 30), raster.Uint8, 0)
	for r := 2; r < 5; r++ {
		for c := 2; c < 5; c++ {
			base.Set(r, c, 1)
		}
	}
	fc, err := FarFromWildlandMask(base, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 9, fc.WildlandAreas.Count(1))
	assert.Equal(t, 0, fc.Mask.Count(1))
}

func TestFarFromWildlandMask_LargePatchBuffered(t *testing.T) {
	// 60x50 cells of 100x100 is a 30,000,000 square-unit patch.
	const (
		cs      = 100.0
		margin  = 40
		patchW  = 60
		patchH  = 50
		buffer  = 2400.0
		cols    = patchW + 2*margin
		rows    = patchH + 2*margin
		originY = rows * cs
	)
	geo := landCoverGeo(cols, rows, cs)
	base := raster.New("base", geo, raster.Uint8, 0)
	for r := margin; r < margin+patchH; r++ {
		for c := margin; c < margin+patchW; c++ {
			base.Set(r, c, 1)
		}
	}
	minX, maxX := float64(margin)*cs, float64(margin+patchW)*cs
	maxY, minY := originY-float64(margin)*cs, originY-float64(margin+patchH)*cs

	fc, err := FarFromWildlandMask(base, DefaultParams())
	require.NoError(t, err)
	require.Len(t, fc.Selected, 1)
	assert.InDelta(t, 30_000_000, fc.Selected[0].Area, 1e-3)
	assert.True(t, raster.IsBinary(fc.Mask))

	var inside int
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x, y := geo.CellCenter(r, c)
			dx := math.Max(0, math.Max(minX-x, x-maxX))
			dy := math.Max(0, math.Max(minY-y, y-maxY))
			want := 0.0
			if math.Hypot(dx, dy) <= buffer {
				want = 1
				inside++
			}
			require.Equal(t, want, fc.Mask.At(r, c), "cell (%d, %d)", r, c)
		}
	}
	assert.Equal(t, inside, fc.Mask.Count(1))
	assert.Greater(t, inside, patchW*patchH)
}

func TestFarFromWildlandMask_NodataBaseBecomesZero(t *testing.T) {
	base := raster.NewNull("base", landCoverGeo(4, 4, 30), raster.Uint8)
	fc, err := FarFromWildlandMask(base, DefaultParams())
	require.NoError(t, err)
	assert.Empty(t, fc.Patches.Features)
	assert.Equal(t, 16, fc.Mask.Count(0))
}
