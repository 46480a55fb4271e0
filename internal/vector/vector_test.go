package vector

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wuimap/internal/raster"
)

func gridFrom(rows [][]float64) *raster.Grid {
	geo := raster.Geo{OriginX: 0, OriginY: float64(len(rows)) * 30, CellSize: 30, Cols: len(rows[0]), Rows: len(rows)}
	g := raster.New("g", geo, raster.Uint8, 0)
	for r, row := range rows {
		for c, v := range row {
			g.Set(r, c, v)
		}
	}
	return g
}

func TestPolygonize_AreasMatchCellCounts(t *testing.T) {
	g := gridFrom([][]float64{
		{1, 1, 0, 0},
		{1, 1, 0, 1},
		{0, 0, 0, 1},
	})
	p, err := Polygonize(g, PolygonizeOptions{})
	require.NoError(t, err)
	require.Len(t, p.Features, 3)

	for _, f := range p.Features {
		assert.InDelta(t, float64(f.CellCount)*900, f.Area, 1e-6, "feature %d", f.ID)
	}
	assert.Equal(t, 1, p.Features[0].GridCode)
	assert.Equal(t, 4, p.Features[0].CellCount)
	assert.Equal(t, 0, p.Features[1].GridCode)
	assert.Equal(t, 6, p.Features[1].CellCount)

	// The 2x2 block collapses to a single rectangle ring.
	ring := p.Features[0].Polygon.LinearRing(0).FlatCoords()
	assert.Len(t, ring, 10)
	assert.Greater(t, signedArea(ring), 0.0)
}

func TestPolygonize_HoleAndPinch(t *testing.T) {
	g := gridFrom([][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 0},
	})
	p, err := Polygonize(g, PolygonizeOptions{})
	require.NoError(t, err)
	require.Len(t, p.Features, 3)

	zero := p.Features[1]
	assert.Equal(t, 0, zero.GridCode)
	assert.Equal(t, 7, zero.CellCount)
	assert.Equal(t, 2, zero.Polygon.NumLinearRings())
	assert.InDelta(t, 6300, zero.Area, 1e-6)
	assert.Less(t, signedArea(zero.Polygon.LinearRing(1).FlatCoords()), 0.0)
}

func TestPolygonize_SkipsNullAndMasked(t *testing.T) {
	g := gridFrom([][]float64{{1, 1, 1}})
	g.Cells[1] = 0
	g.Cells[2] = math.NaN()

	mask := raster.New("mask", g.Geo, raster.Uint8, 1)
	mask.Cells[0] = 0

	p, err := Polygonize(g, PolygonizeOptions{Mask: mask})
	require.NoError(t, err)
	require.Len(t, p.Features, 1)
	assert.Equal(t, 0, p.Features[0].GridCode)
	assert.Equal(t, -1, p.Label(0))
	assert.Equal(t, -1, p.Label(2))

	p, err = Polygonize(g, PolygonizeOptions{Include: func(v float64) bool { return v == 1 }})
	require.NoError(t, err)
	require.Len(t, p.Features, 1)
	assert.Equal(t, 1, p.Features[0].GridCode)
}

func TestPolygonize_MaskMisaligned(t *testing.T) {
	g := gridFrom([][]float64{{1, 1}})
	mask := gridFrom([][]float64{{1, 1, 1}})
	_, err := Polygonize(g, PolygonizeOptions{Mask: mask})
	require.Error(t, err)
	assert.True(t, eris.Is(err, raster.ErrMisaligned))
}

func TestPolygonization_RasterizeAndCellsOf(t *testing.T) {
	g := gridFrom([][]float64{
		{1, 0},
		{1, 0},
	})
	p, err := Polygonize(g, PolygonizeOptions{})
	require.NoError(t, err)

	tagged := p.Rasterize("tag", raster.Uint8, func(f *Feature) float64 { return float64(f.CellCount) })
	assert.Equal(t, []float64{2, 2, 2, 2}, tagged.Cells)

	ones := p.Select(func(f *Feature) bool { return f.GridCode == 1 })
	require.Len(t, ones, 1)
	cells := p.CellsOf("cells", ones)
	assert.Equal(t, []float64{1, 0, 1, 0}, cells.Cells)
}

func square(x0, y0, size float64) orb.MultiPolygon {
	return orb.MultiPolygon{{orb.Ring{
		{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}, {x0, y0},
	}}}
}

func TestWriteFeatures_ReadPolygons(t *testing.T) {
	g := gridFrom([][]float64{
		{1, 1, 0},
		{1, 0, 0},
	})
	p, err := Polygonize(g, PolygonizeOptions{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "polys.shp")
	require.NoError(t, WriteFeatures(path, "EPSG:6514", p.Features))

	layer, err := ReadPolygons(path)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:6514", layer.CRS)
	assert.Equal(t, []string{"gridcode", "area"}, layer.Fields)
	require.Len(t, layer.Records, 2)
	assert.Equal(t, "1", layer.Records[0].Attrs["gridcode"])
	assert.InDelta(t, 2700, planar.Area(layer.Records[0].Geometry), 1e-6)
	assert.InDelta(t, 2700, planar.Area(layer.Records[1].Geometry), 1e-6)
}

func TestStudyArea_Mask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boundary.shp")
	layer := &PolygonLayer{
		CRS:     "EPSG:6514",
		Records: []PolygonRecord{{Geometry: square(0, 0, 60), Attrs: map[string]string{"name": "county"}}},
	}
	require.NoError(t, WriteLayer(path, layer, []Column{{Name: "name", Kind: StringColumn}}))

	sa, err := ReadStudyArea(path)
	require.NoError(t, err)
	assert.InDelta(t, 3600, sa.Area(), 1e-6)
	assert.True(t, sa.Contains(30, 30))
	assert.False(t, sa.Contains(90, 30))

	geo := raster.Geo{OriginX: 0, OriginY: 120, CellSize: 30, Cols: 4, Rows: 4}
	mask := sa.Mask("clip", geo, 0)
	assert.Equal(t, 4, mask.Count(1))
	assert.Equal(t, 1.0, mask.At(3, 0))
	assert.Equal(t, 1.0, mask.At(2, 1))
	assert.Equal(t, 0.0, mask.At(1, 1))

	buffered := sa.Mask("clip", geo, 30)
	assert.Equal(t, 8, buffered.Count(1))
	assert.Equal(t, 1.0, buffered.At(1, 1))
	assert.Equal(t, 0.0, buffered.At(1, 2))
}

func TestReadPoints_FootprintCentroids(t *testing.T) {
	path := filepath.Join(t.TempDir(), "footprints.shp")
	layer := &PolygonLayer{Records: []PolygonRecord{
		{Geometry: square(0, 0, 10), Attrs: map[string]string{"value1": "1"}},
		{Geometry: square(100, 100, 20), Attrs: map[string]string{"value1": "1"}},
	}}
	require.NoError(t, WriteLayer(path, layer, []Column{{Name: "value1", Kind: NumberColumn}}))

	ps, err := ReadPoints(path, "")
	require.NoError(t, err)
	require.Len(t, ps.Points, 2)
	assert.InDelta(t, 5, ps.Points[0].X, 1e-9)
	assert.InDelta(t, 5, ps.Points[0].Y, 1e-9)
	assert.InDelta(t, 110, ps.Points[1].X, 1e-9)
	assert.Equal(t, 2.0, ps.TotalWeight())

	b := ps.Bound()
	assert.InDelta(t, 110, b.Max[0], 1e-9)
}

func writeUnweighted(t *testing.T, path string, pts [][2]float64) {
	t.Helper()
	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("addr", 20)}))
	for _, p := range pts {
		row := int(w.Write(&shp.Point{X: p[0], Y: p[1]}))
		require.NoError(t, w.WriteAttribute(row, 0, "house"))
	}
	w.Close()
}

func TestEnsureWeightField_ProvisionsOnce(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "houses.shp")
	writeUnweighted(t, src, [][2]float64{{1, 2}, {3, 4}, {5, 6}})

	_, err := ReadPoints(src, "value1")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMissingWeight))

	got, err := EnsureWeightField(src, "value1")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got, "houses_weighted.shp"))

	ps, err := ReadPoints(got, "value1")
	require.NoError(t, err)
	assert.Len(t, ps.Points, 3)
	assert.Equal(t, 3.0, ps.TotalWeight())

	again, err := EnsureWeightField(src, "value1")
	require.NoError(t, err)
	assert.Equal(t, got, again)

	// A layer that already carries the field is returned unchanged.
	same, err := EnsureWeightField(got, "value1")
	require.NoError(t, err)
	assert.Equal(t, got, same)
}

func TestEnsureWeightField_RejectsNonUnitWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "houses.shp")
	ps := &PointSet{Points: []Point{{X: 1, Y: 1, Weight: 1}, {X: 2, Y: 2, Weight: 2}}}
	require.NoError(t, WritePoints(path, ps, "value1"))

	_, err := EnsureWeightField(path, "value1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 1")
}

func TestEnsureWeightField_RebuildsStaleCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "houses.shp")
	writeUnweighted(t, src, [][2]float64{{1, 2}, {3, 4}, {5, 6}})

	// A copy left behind with fewer records than the source.
	stale := filepath.Join(dir, "houses_weighted.shp")
	require.NoError(t, WritePoints(stale, &PointSet{Points: []Point{{X: 1, Y: 2, Weight: 1}}}, "value1"))

	got, err := EnsureWeightField(src, "value1")
	require.NoError(t, err)
	assert.Equal(t, stale, got)

	ps, err := ReadPoints(got, "value1")
	require.NoError(t, err)
	assert.Len(t, ps.Points, 3)
}

func TestEnsureWeightField_RebuildsCopyWithoutAttributes(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "houses.shp")
	writeUnweighted(t, src, [][2]float64{{1, 2}, {3, 4}})

	// Raw go-shp output: the attribute table lands in houses_weighteddbf.
	broken := filepath.Join(dir, "houses_weighted.shp")
	writeUnweighted(t, broken, [][2]float64{{1, 2}, {3, 4}})

	got, err := EnsureWeightField(src, "value1")
	require.NoError(t, err)

	ps, err := ReadPoints(got, "value1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, ps.TotalWeight())
	assert.NoFileExists(t, filepath.Join(dir, "houses_weighteddbf"))
}

func TestWrittenLayersKeepAttributeTable(t *testing.T) {
	dir := t.TempDir()
	g := gridFrom([][]float64{{1, 0}})
	p, err := Polygonize(g, PolygonizeOptions{})
	require.NoError(t, err)

	layer := &PolygonLayer{Records: []PolygonRecord{
		{Geometry: square(0, 0, 10), Attrs: map[string]string{"countynumb": "7", "name": "Park"}},
	}}

	tests := []struct {
		name   string
		write  func(path string) error
		fields []string
	}{
		{
			name: "points",
			write: func(path string) error {
				return WritePoints(path, &PointSet{Points: []Point{{X: 1, Y: 1, Weight: 1}}}, "value1")
			},
			fields: []string{"value1"},
		},
		{
			name:   "features",
			write:  func(path string) error { return WriteFeatures(path, "EPSG:6514", p.Features) },
			fields: []string{"gridcode", "area"},
		},
		{
			name: "layer",
			write: func(path string) error {
				return WriteLayer(path, layer, []Column{
					{Name: "countynumb", Kind: NumberColumn},
					{Name: "name", Kind: StringColumn},
				})
			},
			fields: []string{"countynumb", "name"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".shp")
			require.NoError(t, tt.write(path))

			r, err := shp.Open(path)
			require.NoError(t, err)
			defer r.Close()
			assert.Equal(t, tt.fields, fieldNames(r))
			require.True(t, r.Next())

			assert.FileExists(t, filepath.Join(dir, tt.name+".dbf"))
			assert.NoFileExists(t, filepath.Join(dir, tt.name+"dbf"))
			assert.NoFileExists(t, filepath.Join(dir, tt.name+"_partial.shp"))
		})
	}
}

func TestWriteShapefile_FailureKeepsPreviousLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "houses.shp")
	ps := &PointSet{Points: []Point{{X: 1, Y: 1, Weight: 1}, {X: 2, Y: 2, Weight: 1}}}
	require.NoError(t, WritePoints(path, ps, "value1"))

	err := writeShapefile(path, shp.POINT, "", []shp.Field{shp.NumberField("value1", 4)}, func(w *shp.Writer) error {
		w.Write(&shp.Point{X: 9, Y: 9})
		return errors.New("disk full")
	})
	require.Error(t, err)

	got, err := ReadPoints(path, "value1")
	require.NoError(t, err)
	assert.Len(t, got.Points, 2)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(path), "houses_partial.shp"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCheckProjections(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		layers   []Layer
		wantErr  string
	}{
		{
			name:     "all match",
			expected: "EPSG:6514",
			layers:   []Layer{{Name: "houses", CRS: "epsg:6514"}, {Name: "boundary", CRS: "EPSG:6514"}},
		},
		{
			name:     "missing crs is skipped",
			expected: "EPSG:6514",
			layers:   []Layer{{Name: "houses", CRS: ""}},
		},
		{
			name:     "mismatch names layer",
			expected: "EPSG:6514",
			layers:   []Layer{{Name: "houses", CRS: "EPSG:26912"}},
			wantErr:  `"houses"`,
		},
		{
			name:     "first layer sets expectation",
			expected: "",
			layers:   []Layer{{Name: "landcover", CRS: "EPSG:6514"}, {Name: "boundary", CRS: "EPSG:4326"}},
			wantErr:  `"boundary"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckProjections(tt.expected, tt.layers...)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrCRSMismatch))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMarshalFeatures(t *testing.T) {
	p, err := Polygonize(gridFrom([][]float64{{2}}), PolygonizeOptions{})
	require.NoError(t, err)

	data, err := MarshalFeatures(p.Features)
	require.NoError(t, err)
	s := string(data)
	assert.Contains(t, s, `"FeatureCollection"`)
	assert.Contains(t, s, `"Polygon"`)
	assert.Contains(t, s, `"gridcode":2`)

	path := filepath.Join(t.TempDir(), "out", "wui.geojson")
	require.NoError(t, WriteGeoJSON(path, p.Features))
}
