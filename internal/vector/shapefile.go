package vector

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wuimap/internal/raster"
)

// PolygonRecord is one polygon shapefile row.
type PolygonRecord struct {
	Geometry orb.MultiPolygon
	Attrs    map[string]string
}

// PolygonLayer is a polygon shapefile read into memory.
type PolygonLayer struct {
	Name    string
	CRS     string
	Fields  []string
	Records []PolygonRecord
}

// ReadPolygons reads a polygon shapefile. Attribute names are lowercased.
func ReadPolygons(path string) (*PolygonLayer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	crs, err := raster.ReadPRJ(path)
	if err != nil {
		return nil, err
	}

	fields := fieldNames(reader)
	layer := &PolygonLayer{
		Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		CRS:    crs,
		Fields: fields,
	}

	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}
		mp := shpToMultiPolygon(poly)
		if len(mp) == 0 {
			skipped++
			continue
		}
		attrs := make(map[string]string, len(fields))
		for i, name := range fields {
			attrs[name] = cleanAttr(reader.Attribute(i))
		}
		layer.Records = append(layer.Records, PolygonRecord{Geometry: mp, Attrs: attrs})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "vector: read shapefile %s", path)
	}

	if skipped > 0 {
		zap.L().Debug("vector: skipped non-polygon records",
			zap.String("layer", layer.Name),
			zap.Int("skipped", skipped),
		)
	}
	return layer, nil
}

func fieldNames(reader *shp.Reader) []string {
	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}
	return names
}

func cleanAttr(v string) string {
	return strings.TrimSpace(strings.TrimRight(v, "\x00"))
}

// shpToMultiPolygon groups shapefile rings into polygons: clockwise rings
// start a polygon, counterclockwise rings are holes of the preceding one.
func shpToMultiPolygon(p *shp.Polygon) orb.MultiPolygon {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var mp orb.MultiPolygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, orb.Point{p.Points[j].X, p.Points[j].Y})
		}
		if ring.Orientation() == orb.CW || len(mp) == 0 {
			if ring.Orientation() != orb.CCW {
				ring.Reverse()
			}
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		ring.Reverse()
		mp[len(mp)-1] = append(mp[len(mp)-1], ring)
	}
	return mp
}

// ColumnKind is the DBF type of an output attribute.
type ColumnKind int

// Column kinds.
const (
	StringColumn ColumnKind = iota
	NumberColumn
	FloatColumn
)

// Column describes one output attribute.
type Column struct {
	Name string
	Kind ColumnKind
}

func (c Column) field() shp.Field {
	switch c.Kind {
	case NumberColumn:
		return shp.NumberField(c.Name, 10)
	case FloatColumn:
		return shp.FloatField(c.Name, 19, 4)
	default:
		return shp.StringField(c.Name, 50)
	}
}

// WriteFeatures writes polygon features with their gridcode and area.
func WriteFeatures(path, crs string, features []*Feature) error {
	cols := []Column{{Name: "gridcode", Kind: NumberColumn}, {Name: "area", Kind: FloatColumn}}
	parts := make([][][]shp.Point, len(features))
	attrs := make([][]any, len(features))
	for i, f := range features {
		parts[i] = geomToParts(f)
		attrs[i] = []any{f.GridCode, f.Area}
	}
	return writePolygons(path, crs, cols, parts, attrs)
}

// WriteLayer writes a polygon layer with the given attribute columns. Values
// are taken from each record's Attrs by column name.
func WriteLayer(path string, layer *PolygonLayer, cols []Column) error {
	parts := make([][][]shp.Point, len(layer.Records))
	attrs := make([][]any, len(layer.Records))
	for i, rec := range layer.Records {
		parts[i] = orbToParts(rec.Geometry)
		row := make([]any, len(cols))
		for j, c := range cols {
			v := rec.Attrs[strings.ToLower(c.Name)]
			switch c.Kind {
			case NumberColumn:
				n, _ := strconv.Atoi(v)
				row[j] = n
			case FloatColumn:
				f, _ := strconv.ParseFloat(v, 64)
				row[j] = f
			default:
				row[j] = v
			}
		}
		attrs[i] = row
	}
	return writePolygons(path, layer.CRS, cols, parts, attrs)
}

func writePolygons(path, crs string, cols []Column, parts [][][]shp.Point, attrs [][]any) error {
	fields := make([]shp.Field, len(cols))
	for i, c := range cols {
		fields[i] = c.field()
	}
	return writeShapefile(path, shp.POLYGON, crs, fields, func(w *shp.Writer) error {
		for i, p := range parts {
			if len(p) == 0 {
				continue
			}
			poly := shp.Polygon(*shp.NewPolyLine(p))
			row := int(w.Write(&poly))
			for j, v := range attrs[i] {
				if err := w.WriteAttribute(row, j, v); err != nil {
					return eris.Wrapf(err, "vector: write attribute %s row %d", cols[j].Name, row)
				}
			}
		}
		return nil
	})
}

// layerFiles are the sidecars of a written layer. The .shp goes last so its
// presence means the layer is complete.
var layerFiles = []string{".shx", ".dbf", ".prj", ".shp"}

// writeShapefile writes a layer under a partial basename next to path and
// renames its files into place once every record is written. A failed write
// leaves any previous layer at path untouched.
func writeShapefile(path string, typ shp.ShapeType, crs string, fields []shp.Field, fill func(w *shp.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "vector: mkdir for %s", path)
	}
	base := strings.TrimSuffix(path, filepath.Ext(path))
	partial := base + "_partial"
	removeLayer(partial)

	w, err := shp.Create(partial+".shp", typ)
	if err != nil {
		return eris.Wrapf(err, "vector: create shapefile %s", path)
	}
	if err := w.SetFields(fields); err != nil {
		w.Close()
		removeLayer(partial)
		return eris.Wrapf(err, "vector: set fields on %s", path)
	}
	if err := fill(w); err != nil {
		w.Close()
		removeLayer(partial)
		return err
	}
	w.Close()

	// go-shp names the attribute table <base>dbf, without the dot.
	if err := os.Rename(partial+"dbf", partial+".dbf"); err != nil {
		removeLayer(partial)
		return eris.Wrapf(err, "vector: finish attribute table of %s", path)
	}
	if crs != "" {
		if err := raster.WritePRJ(partial+".shp", crs); err != nil {
			removeLayer(partial)
			return err
		}
	}

	removeLayer(base)
	for _, ext := range layerFiles {
		if _, err := os.Stat(partial + ext); os.IsNotExist(err) {
			continue
		}
		if err := os.Rename(partial+ext, base+ext); err != nil {
			return eris.Wrapf(err, "vector: move %s into place", base+ext)
		}
	}
	return nil
}

// removeLayer deletes every file of the layer at base, ignoring missing ones.
func removeLayer(base string) {
	for _, ext := range append(layerFiles, "dbf") {
		_ = os.Remove(base + ext)
	}
}

// geomToParts converts a feature polygon to shapefile rings: shells clockwise,
// holes counterclockwise.
func geomToParts(f *Feature) [][]shp.Point {
	if f.Polygon == nil {
		return nil
	}
	n := f.Polygon.NumLinearRings()
	parts := make([][]shp.Point, 0, n)
	for i := 0; i < n; i++ {
		flat := reverseRing(f.Polygon.LinearRing(i).FlatCoords())
		pts := make([]shp.Point, 0, len(flat)/2)
		for j := 0; j+1 < len(flat); j += 2 {
			pts = append(pts, shp.Point{X: flat[j], Y: flat[j+1]})
		}
		parts = append(parts, pts)
	}
	return parts
}

func orbToParts(mp orb.MultiPolygon) [][]shp.Point {
	var parts [][]shp.Point
	for _, poly := range mp {
		for i, ring := range poly {
			r := append(orb.Ring(nil), ring...)
			want := orb.CW
			if i > 0 {
				want = orb.CCW
			}
			if r.Orientation() != want {
				r.Reverse()
			}
			pts := make([]shp.Point, len(r))
			for j, p := range r {
				pts[j] = shp.Point{X: p[0], Y: p[1]}
			}
			parts = append(parts, pts)
		}
	}
	return parts
}
