package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// Map applies fn to every cell and returns a new grid. fn receives NaN for
// nodata cells and may return NaN to emit nodata.
func Map(name string, in *Grid, typ PixelType, fn func(v float64) float64) *Grid {
	out := &Grid{Geo: in.Geo, Name: name, Type: typ, NoData: defaultNoData(typ), Cells: make([]float64, len(in.Cells))}
	for i, v := range in.Cells {
		out.Cells[i] = fn(v)
	}
	return out
}

// Zip combines two aligned grids cell by cell.
func Zip(name string, a, b *Grid, typ PixelType, fn func(a, b float64) float64) (*Grid, error) {
	if err := Align(a, b); err != nil {
		return nil, err
	}
	out := &Grid{Geo: a.Geo, Name: name, Type: typ, NoData: defaultNoData(typ), Cells: make([]float64, len(a.Cells))}
	for i := range a.Cells {
		out.Cells[i] = fn(a.Cells[i], b.Cells[i])
	}
	return out, nil
}

// Multiply returns a*b. Nodata in either input propagates.
func Multiply(name string, a, b *Grid) (*Grid, error) {
	return Zip(name, a, b, a.Type, func(x, y float64) float64 { return x * y })
}

// Con returns whenTrue where pred holds and whenFalse elsewhere. Nodata cells
// stay nodata, matching conditional evaluation on undefined input.
func Con(name string, in *Grid, typ PixelType, pred func(v float64) bool, whenTrue, whenFalse float64) *Grid {
	return Map(name, in, typ, func(v float64) float64 {
		if math.IsNaN(v) {
			return v
		}
		if pred(v) {
			return whenTrue
		}
		return whenFalse
	})
}

// FillNull replaces nodata cells with v.
func FillNull(name string, in *Grid, v float64) *Grid {
	return Map(name, in, in.Type, func(c float64) float64 {
		if math.IsNaN(c) {
			return v
		}
		return c
	})
}

// GreaterThan returns 1 where the cell exceeds threshold, 0 where it does not,
// and nodata where the input is nodata.
func GreaterThan(name string, in *Grid, threshold float64) *Grid {
	return Con(name, in, Uint8, func(v float64) bool { return v > threshold }, 1, 0)
}

// EqualTo returns 1 where the cell equals v, 0 elsewhere, nodata where nodata.
func EqualTo(name string, in *Grid, v float64) *Grid {
	return Con(name, in, Uint8, func(c float64) bool { return c == v }, 1, 0)
}

// ToUint8 casts a grid to uint8 storage, truncating toward zero and clamping
// to [0, 254]. 255 is reserved for nodata unless a sentinel is supplied.
func ToUint8(name string, in *Grid, noData float64) (*Grid, error) {
	if noData < 0 || noData > 255 {
		return nil, eris.Errorf("raster: uint8 nodata %g out of range", noData)
	}
	out := Map(name, in, Uint8, func(v float64) float64 {
		if math.IsNaN(v) {
			return v
		}
		v = math.Trunc(v)
		return math.Max(0, math.Min(254, v))
	})
	out.NoData = noData
	return out, nil
}

// ExtractByMask keeps cells of in where mask is 1 and sets every other cell to
// nodata.
func ExtractByMask(name string, in, mask *Grid) (*Grid, error) {
	return Zip(name, in, mask, in.Type, func(v, m float64) float64 {
		if m == 1 {
			return v
		}
		return math.NaN()
	})
}

// Values returns the set of distinct defined values, for diagnostics.
func Values(in *Grid) map[float64]int {
	out := make(map[float64]int)
	for _, v := range in.Cells {
		if math.IsNaN(v) {
			continue
		}
		out[v]++
	}
	return out
}

// IsBinary reports whether every cell is exactly 0 or 1.
func IsBinary(in *Grid) bool {
	for _, v := range in.Cells {
		if v != 0 && v != 1 {
			return false
		}
	}
	return true
}
