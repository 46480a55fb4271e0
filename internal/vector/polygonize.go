// Package vector converts between grids and polygon features and reads and
// writes the point and polygon layers the WUI pipeline consumes.
package vector

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/wuimap/internal/raster"
)

// Feature is a polygon derived from contiguous equal-valued cells.
type Feature struct {
	ID        int
	GridCode  int
	Area      float64
	Value     int
	CellCount int
	Polygon   *geom.Polygon
}

// RadiusFeatures are the features classified at one window radius.
type RadiusFeatures struct {
	Radius   int
	Features []*Feature
}

// Polygonization holds the features traced from a grid and the per-cell
// feature labels, so features can be rasterized back onto the same cells.
type Polygonization struct {
	Geo      raster.Geo
	Features []*Feature
	labels   []int32
}

// Label returns the index into Features for the cell at i, or -1.
func (p *Polygonization) Label(i int) int { return int(p.labels[i]) }

// PolygonizeOptions restricts which cells become features.
type PolygonizeOptions struct {
	// Include filters cell values; nil includes every defined value.
	Include func(v float64) bool
	// Mask, when set, excludes cells where the mask is not 1.
	Mask *raster.Grid
}

// Polygonize groups 4-connected cells of equal value into polygons tagged with
// the cell value. Nodata cells never form features. Rings follow cell edges
// without simplification; holes are emitted as inner rings.
func Polygonize(g *raster.Grid, opts PolygonizeOptions) (*Polygonization, error) {
	if opts.Mask != nil {
		if err := raster.Align(g, opts.Mask); err != nil {
			return nil, err
		}
	}

	cols, rows := g.Cols, g.Rows
	labels := make([]int32, len(g.Cells))
	for i := range labels {
		labels[i] = -1
	}

	eligible := func(i int) bool {
		v := g.Cells[i]
		if math.IsNaN(v) {
			return false
		}
		if opts.Mask != nil && opts.Mask.Cells[i] != 1 {
			return false
		}
		return opts.Include == nil || opts.Include(v)
	}

	p := &Polygonization{Geo: g.Geo, labels: labels}
	var queue []int
	for start := range g.Cells {
		if labels[start] >= 0 || !eligible(start) {
			continue
		}
		id := int32(len(p.Features))
		v := g.Cells[start]
		labels[start] = id
		queue = append(queue[:0], start)
		var members []int
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			members = append(members, i)
			r, c := i/cols, i%cols
			for _, n := range [4][2]int{{r - 1, c}, {r + 1, c}, {r, c - 1}, {r, c + 1}} {
				if n[0] < 0 || n[1] < 0 || n[0] >= rows || n[1] >= cols {
					continue
				}
				j := n[0]*cols + n[1]
				if labels[j] >= 0 || g.Cells[j] != v || !eligible(j) {
					continue
				}
				labels[j] = id
				queue = append(queue, j)
			}
		}

		poly := tracePolygon(g.Geo, labels, id, members)
		p.Features = append(p.Features, &Feature{
			ID:        int(id),
			GridCode:  int(v),
			Area:      poly.Area(),
			CellCount: len(members),
			Polygon:   poly,
		})
	}
	return p, nil
}

// Rasterize writes value(f) onto every cell of each feature. Cells outside
// all features are nodata.
func (p *Polygonization) Rasterize(name string, typ raster.PixelType, value func(f *Feature) float64) *raster.Grid {
	out := raster.NewNull(name, p.Geo, typ)
	vals := make([]float64, len(p.Features))
	for i, f := range p.Features {
		vals[i] = value(f)
	}
	for i, l := range p.labels {
		if l >= 0 {
			out.Cells[i] = vals[l]
		}
	}
	return out
}

// Select returns the features satisfying pred.
func (p *Polygonization) Select(pred func(f *Feature) bool) []*Feature {
	var out []*Feature
	for _, f := range p.Features {
		if pred(f) {
			out = append(out, f)
		}
	}
	return out
}

// CellsOf returns a 0/1 grid marking the cells of the given features.
func (p *Polygonization) CellsOf(name string, features []*Feature) *raster.Grid {
	keep := make(map[int32]struct{}, len(features))
	for _, f := range features {
		keep[int32(f.ID)] = struct{}{}
	}
	out := raster.New(name, p.Geo, raster.Uint8, 0)
	for i, l := range p.labels {
		if _, ok := keep[l]; ok {
			out.Cells[i] = 1
		}
	}
	return out
}

// Edge directions in lattice coordinates (column right, row down).
type dir struct{ dc, dr int }

var (
	east  = dir{1, 0}
	south = dir{0, 1}
	west  = dir{-1, 0}
	north = dir{0, -1}
)

func (d dir) left() dir { return dir{d.dr, -d.dc} }

type vertex struct{ c, r int }

type edge struct {
	from vertex
	d    dir
	used bool
}

// tracePolygon walks the boundary edges of one labeled component. Edges keep
// the component on their right. At a vertex where two outside cells meet
// diagonally the walk turns left, keeping holes that touch the shell (or each
// other) as separate simple rings.
func tracePolygon(geo raster.Geo, labels []int32, id int32, members []int) *geom.Polygon {
	cols, rows := geo.Cols, geo.Rows
	same := func(r, c int) bool {
		return r >= 0 && c >= 0 && r < rows && c < cols && labels[r*cols+c] == id
	}

	var edges []*edge
	out := make(map[vertex][]*edge)
	add := func(v vertex, d dir) {
		e := &edge{from: v, d: d}
		edges = append(edges, e)
		out[v] = append(out[v], e)
	}
	for _, i := range members {
		r, c := i/cols, i%cols
		if !same(r-1, c) {
			add(vertex{c, r}, east)
		}
		if !same(r, c+1) {
			add(vertex{c + 1, r}, south)
		}
		if !same(r+1, c) {
			add(vertex{c + 1, r + 1}, west)
		}
		if !same(r, c-1) {
			add(vertex{c, r + 1}, north)
		}
	}

	var shell []float64
	var holes [][]float64
	var shellArea float64
	for _, start := range edges {
		if start.used {
			continue
		}
		// Walked rings are clockwise around the component: the shell has the
		// most negative area and holes come out counterclockwise.
		ring := walkRing(geo, out, start)
		a := signedArea(ring)
		switch {
		case a < 0 && (shell == nil || a < shellArea):
			if shell != nil {
				holes = append(holes, shell)
			}
			shell, shellArea = ring, a
		default:
			holes = append(holes, ring)
		}
	}

	// Store shells counterclockwise and holes clockwise.
	flat := reverseRing(shell)
	ends := []int{len(flat)}
	for _, h := range holes {
		flat = append(flat, reverseRing(h)...)
		ends = append(ends, len(flat))
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}

// reverseRing returns a copy of a flat XY ring with its vertex order reversed.
func reverseRing(flat []float64) []float64 {
	out := make([]float64, len(flat))
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		out[2*i], out[2*i+1] = flat[2*(n-1-i)], flat[2*(n-1-i)+1]
	}
	return out
}

func walkRing(geo raster.Geo, out map[vertex][]*edge, start *edge) []float64 {
	var verts []vertex
	var dirs []dir
	e := start
	for {
		e.used = true
		verts = append(verts, e.from)
		dirs = append(dirs, e.d)
		to := vertex{e.from.c + e.d.dc, e.from.r + e.d.dr}
		e = pickNext(out[to], e.d)
		if e == nil || e.used {
			break
		}
	}

	// Keep only corners where the walk changes direction.
	n := len(verts)
	var flat []float64
	for i := 0; i < n; i++ {
		if dirs[(i+n-1)%n] == dirs[i] {
			continue
		}
		v := verts[i]
		flat = append(flat, geo.OriginX+float64(v.c)*geo.CellSize, geo.OriginY-float64(v.r)*geo.CellSize)
	}
	return append(flat, flat[0], flat[1])
}

func pickNext(candidates []*edge, in dir) *edge {
	switch len(candidates) {
	case 0:
		return nil
	case 1:
		return candidates[0]
	}
	for _, c := range candidates {
		if c.d == in.left() {
			return c
		}
	}
	return candidates[0]
}

// signedArea returns the shoelace area of a closed flat XY ring; positive for
// counterclockwise rings.
func signedArea(flat []float64) float64 {
	var a float64
	for i := 0; i+3 < len(flat); i += 2 {
		a += flat[i]*flat[i+3] - flat[i+2]*flat[i+1]
	}
	return a / 2
}
