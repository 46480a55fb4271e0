package vector

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"

	"github.com/sells-group/wuimap/internal/raster"
)

// StudyArea is the boundary the final classification is clipped to.
type StudyArea struct {
	Name     string
	CRS      string
	Geometry orb.MultiPolygon
}

// ReadStudyArea reads a boundary shapefile and unions its records into one
// multipolygon.
func ReadStudyArea(path string) (*StudyArea, error) {
	layer, err := ReadPolygons(path)
	if err != nil {
		return nil, err
	}
	if len(layer.Records) == 0 {
		return nil, eris.Errorf("vector: study area %s has no polygons", path)
	}
	sa := &StudyArea{Name: layer.Name, CRS: layer.CRS}
	for _, rec := range layer.Records {
		sa.Geometry = append(sa.Geometry, rec.Geometry...)
	}
	return sa, nil
}

// Contains reports whether (x, y) lies inside the study area.
func (sa *StudyArea) Contains(x, y float64) bool {
	return planar.MultiPolygonContains(sa.Geometry, orb.Point{x, y})
}

// Area returns the planar area of the study area.
func (sa *StudyArea) Area() float64 {
	return planar.Area(sa.Geometry)
}

// Mask returns a 0/1 grid on geo marking cells whose center lies inside the
// study area, or within buffer of an inside cell center when buffer > 0.
func (sa *StudyArea) Mask(name string, geo raster.Geo, buffer float64) *raster.Grid {
	out := CellsInside(name, geo, sa.Geometry)
	if buffer > 0 {
		out = raster.Dilate(name, out, raster.Circle(buffer, geo.CellSize))
	}
	return out
}

// CellsInside returns a 0/1 grid marking cells whose centers fall inside mp.
// Only cells within the geometry's bounding box are tested.
func CellsInside(name string, geo raster.Geo, mp orb.MultiPolygon) *raster.Grid {
	out := raster.New(name, geo, raster.Uint8, 0)
	if len(mp) == 0 {
		return out
	}
	b := mp.Bound()
	r0, c0, r1, c1 := cellRange(geo, b)
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			x, y := geo.CellCenter(r, c)
			if planar.MultiPolygonContains(mp, orb.Point{x, y}) {
				out.Set(r, c, 1)
			}
		}
	}
	return out
}

// cellRange returns the inclusive row/column window covering b, clamped to
// the grid.
func cellRange(geo raster.Geo, b orb.Bound) (r0, c0, r1, c1 int) {
	clamp := func(v, hi int) int { return max(0, min(v, hi)) }
	c0 = clamp(int((b.Min[0]-geo.OriginX)/geo.CellSize), geo.Cols-1)
	c1 = clamp(int((b.Max[0]-geo.OriginX)/geo.CellSize), geo.Cols-1)
	r0 = clamp(int((geo.OriginY-b.Max[1])/geo.CellSize), geo.Rows-1)
	r1 = clamp(int((geo.OriginY-b.Min[1])/geo.CellSize), geo.Rows-1)
	return r0, c0, r1, c1
}
