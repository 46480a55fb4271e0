// Package raster provides aligned in-memory grids and the raster algebra the
// WUI builders run on: elementwise ops, conditional selection, null handling,
// circular focal sums, dilation, and ESRI ASCII grid I/O.
package raster

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// DefaultCellSize is the NLCD cell size in map units.
const DefaultCellSize = 30.0

// ErrMisaligned is returned when grids in one expression do not share extent,
// cell size, or coordinate reference.
var ErrMisaligned = eris.New("raster: grids are not aligned")

// PixelType is the storage type a grid is exported as.
type PixelType int

// Pixel types.
const (
	Float32 PixelType = iota
	Int32
	Uint8
)

func (p PixelType) String() string {
	switch p {
	case Uint8:
		return "uint8"
	case Int32:
		return "int32"
	default:
		return "float32"
	}
}

// Geo is the georeferencing of a grid. OriginX/OriginY is the upper-left corner.
type Geo struct {
	OriginX  float64
	OriginY  float64
	CellSize float64
	Cols     int
	Rows     int
	CRS      string
}

// Len returns the number of cells.
func (g Geo) Len() int { return g.Cols * g.Rows }

// CellCenter returns the map coordinate of the center of cell (row, col).
func (g Geo) CellCenter(row, col int) (x, y float64) {
	x = g.OriginX + (float64(col)+0.5)*g.CellSize
	y = g.OriginY - (float64(row)+0.5)*g.CellSize
	return x, y
}

// CellAt returns the cell containing map coordinate (x, y). ok is false when
// the coordinate lies outside the grid.
func (g Geo) CellAt(x, y float64) (row, col int, ok bool) {
	col = int(math.Floor((x - g.OriginX) / g.CellSize))
	row = int(math.Floor((g.OriginY - y) / g.CellSize))
	if row < 0 || col < 0 || row >= g.Rows || col >= g.Cols {
		return row, col, false
	}
	return row, col, true
}

// CellArea returns the area of one cell in square map units.
func (g Geo) CellArea() float64 { return g.CellSize * g.CellSize }

// Bounds returns minX, minY, maxX, maxY of the grid extent.
func (g Geo) Bounds() (minX, minY, maxX, maxY float64) {
	return g.OriginX, g.OriginY - float64(g.Rows)*g.CellSize,
		g.OriginX + float64(g.Cols)*g.CellSize, g.OriginY
}

// mismatch describes how two Geos differ, or returns "" when they align.
func (g Geo) mismatch(o Geo) string {
	const eps = 1e-9
	switch {
	case g.Cols != o.Cols || g.Rows != o.Rows:
		return fmt.Sprintf("dimensions %dx%d vs %dx%d", g.Cols, g.Rows, o.Cols, o.Rows)
	case math.Abs(g.CellSize-o.CellSize) > eps:
		return fmt.Sprintf("cell size %g vs %g", g.CellSize, o.CellSize)
	case math.Abs(g.OriginX-o.OriginX) > eps || math.Abs(g.OriginY-o.OriginY) > eps:
		return fmt.Sprintf("origin (%g, %g) vs (%g, %g)", g.OriginX, g.OriginY, o.OriginX, o.OriginY)
	case g.CRS != "" && o.CRS != "" && g.CRS != o.CRS:
		return fmt.Sprintf("crs %q vs %q", g.CRS, o.CRS)
	}
	return ""
}

// Grid is a 2D raster held row-major. NaN marks nodata in memory; NoData is
// the sentinel written to and read from files.
type Grid struct {
	Geo
	Name   string
	Type   PixelType
	NoData float64
	Cells  []float64
}

// New returns a grid with every cell set to fill.
func New(name string, geo Geo, typ PixelType, fill float64) *Grid {
	cells := make([]float64, geo.Len())
	for i := range cells {
		cells[i] = fill
	}
	return &Grid{Geo: geo, Name: name, Type: typ, NoData: defaultNoData(typ), Cells: cells}
}

// NewNull returns a grid with every cell set to nodata.
func NewNull(name string, geo Geo, typ PixelType) *Grid {
	return New(name, geo, typ, math.NaN())
}

func defaultNoData(typ PixelType) float64 {
	switch typ {
	case Uint8:
		return 255
	case Int32:
		return -2147483648
	default:
		return -3.4028234663852886e+38
	}
}

// At returns the value at (row, col).
func (g *Grid) At(row, col int) float64 { return g.Cells[row*g.Cols+col] }

// Set stores v at (row, col).
func (g *Grid) Set(row, col int, v float64) { g.Cells[row*g.Cols+col] = v }

// IsNull reports whether the cell at (row, col) is nodata.
func (g *Grid) IsNull(row, col int) bool { return math.IsNaN(g.At(row, col)) }

// Clone returns a deep copy under a new name.
func (g *Grid) Clone(name string) *Grid {
	cells := make([]float64, len(g.Cells))
	copy(cells, g.Cells)
	return &Grid{Geo: g.Geo, Name: name, Type: g.Type, NoData: g.NoData, Cells: cells}
}

// NullCount returns the number of nodata cells.
func (g *Grid) NullCount() int {
	n := 0
	for _, v := range g.Cells {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Count returns the number of cells equal to v.
func (g *Grid) Count(v float64) int {
	n := 0
	for _, c := range g.Cells {
		if c == v {
			n++
		}
	}
	return n
}

// Equal reports whether two grids have identical georeferencing and cells,
// treating nodata cells as equal to each other.
func (g *Grid) Equal(o *Grid) bool {
	if g.mismatch(o.Geo) != "" || len(g.Cells) != len(o.Cells) {
		return false
	}
	for i, v := range g.Cells {
		w := o.Cells[i]
		if math.IsNaN(v) && math.IsNaN(w) {
			continue
		}
		if v != w {
			return false
		}
	}
	return true
}

// Align checks that every grid shares the first grid's georeferencing. The
// returned error names the first misaligned layer.
func Align(grids ...*Grid) error {
	if len(grids) < 2 {
		return nil
	}
	base := grids[0]
	for _, g := range grids[1:] {
		if reason := base.mismatch(g.Geo); reason != "" {
			return eris.Wrapf(ErrMisaligned, "layer %q does not align with %q: %s", g.Name, base.Name, reason)
		}
	}
	return nil
}
