package vector

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wuimap/internal/raster"
)

// DefaultWeightField is the per-point mass attribute on housing layers.
const DefaultWeightField = "value1"

// ErrMissingWeight is returned when a housing layer lacks its weight field.
var ErrMissingWeight = eris.New("vector: housing layer has no weight field")

// Point is a weighted location.
type Point struct {
	X, Y   float64
	Weight float64
}

// PointSet is a housing layer reduced to weighted points.
type PointSet struct {
	Name   string
	CRS    string
	Points []Point
}

// TotalWeight returns the sum of point weights.
func (ps *PointSet) TotalWeight() float64 {
	var w float64
	for _, p := range ps.Points {
		w += p.Weight
	}
	return w
}

// ReadPoints reads a housing layer. Point shapefiles are used as-is; polygon
// shapefiles (building footprints) are reduced to their area centroids. The
// weight field must exist.
func ReadPoints(path, weightField string) (*PointSet, error) {
	if weightField == "" {
		weightField = DefaultWeightField
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	crs, err := raster.ReadPRJ(path)
	if err != nil {
		return nil, err
	}

	idx := fieldIndex(fieldNames(reader), weightField)
	if idx < 0 {
		return nil, eris.Wrapf(ErrMissingWeight, "field %q in %s", weightField, path)
	}

	ps := &PointSet{
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		CRS:  crs,
	}

	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		x, y, ok := shapeLocation(shape)
		if !ok {
			skipped++
			continue
		}
		w, err := strconv.ParseFloat(cleanAttr(reader.Attribute(idx)), 64)
		if err != nil {
			skipped++
			continue
		}
		ps.Points = append(ps.Points, Point{X: x, Y: y, Weight: w})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "vector: read shapefile %s", path)
	}

	if skipped > 0 {
		zap.L().Debug("vector: skipped housing records",
			zap.String("layer", ps.Name),
			zap.Int("skipped", skipped),
		)
	}
	return ps, nil
}

func fieldIndex(names []string, field string) int {
	field = strings.ToLower(field)
	for i, n := range names {
		if n == field {
			return i
		}
	}
	return -1
}

// shapeLocation returns the point for a point shape or the area centroid of a
// polygon footprint.
func shapeLocation(shape shp.Shape) (x, y float64, ok bool) {
	switch s := shape.(type) {
	case *shp.Point:
		return s.X, s.Y, true
	case *shp.Polygon:
		mp := shpToMultiPolygon(s)
		if len(mp) == 0 {
			return 0, 0, false
		}
		c, area := planar.CentroidArea(mp)
		if area == 0 {
			b := mp.Bound()
			c = b.Center()
		}
		return c[0], c[1], true
	}
	return 0, 0, false
}

// EnsureWeightField returns a housing layer path that carries weightField with
// every value equal to 1. A layer that already carries it is verified and
// returned unchanged. Otherwise a provisioned point copy is written next to the
// source as <name>_weighted.shp on first use. Later calls reuse the copy when
// it still holds one unit weight per source record and rebuild it otherwise.
func EnsureWeightField(path, weightField string) (string, error) {
	if weightField == "" {
		weightField = DefaultWeightField
	}
	log := zap.L().With(zap.String("component", "vector.weight"), zap.String("layer", path))

	ps, err := ReadPoints(path, weightField)
	switch {
	case err == nil:
		if err := verifyUnitWeights(ps, weightField); err != nil {
			return "", err
		}
		return path, nil
	case !eris.Is(err, ErrMissingWeight):
		return "", err
	}

	src, err := readUnweighted(path)
	if err != nil {
		return "", err
	}

	provisioned := strings.TrimSuffix(path, filepath.Ext(path)) + "_weighted.shp"
	if _, statErr := os.Stat(provisioned); statErr == nil {
		err := verifyProvisioned(provisioned, weightField, len(src.Points))
		if err == nil {
			log.Debug("reusing provisioned weight layer", zap.String("provisioned", provisioned))
			return provisioned, nil
		}
		log.Warn("rebuilding provisioned weight layer",
			zap.String("provisioned", provisioned),
			zap.Error(err),
		)
	}

	if err := WritePoints(provisioned, src, weightField); err != nil {
		return "", err
	}
	if err := verifyProvisioned(provisioned, weightField, len(src.Points)); err != nil {
		return "", err
	}
	log.Info("provisioned weight field",
		zap.String("field", weightField),
		zap.String("provisioned", provisioned),
		zap.Int("points", len(src.Points)),
	)
	return provisioned, nil
}

// verifyProvisioned checks that a provisioned copy reads back with want unit
// weights.
func verifyProvisioned(path, weightField string, want int) error {
	ps, err := ReadPoints(path, weightField)
	if err != nil {
		return eris.Wrapf(err, "vector: read provisioned layer %s", path)
	}
	if len(ps.Points) != want {
		return eris.Errorf("vector: provisioned layer %s has %d records, source has %d", path, len(ps.Points), want)
	}
	return verifyUnitWeights(ps, weightField)
}

func verifyUnitWeights(ps *PointSet, field string) error {
	for i, p := range ps.Points {
		if p.Weight != 1 {
			return eris.Errorf("vector: %s.%s must be 1 for every record, record %d has %g", ps.Name, field, i, p.Weight)
		}
	}
	return nil
}

func readUnweighted(path string) (*PointSet, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	crs, err := raster.ReadPRJ(path)
	if err != nil {
		return nil, err
	}
	ps := &PointSet{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), CRS: crs}
	for reader.Next() {
		_, shape := reader.Shape()
		if x, y, ok := shapeLocation(shape); ok {
			ps.Points = append(ps.Points, Point{X: x, Y: y, Weight: 1})
		}
	}
	return ps, eris.Wrapf(reader.Err(), "vector: read shapefile %s", path)
}

// WritePoints writes a point shapefile with a numeric weight field.
func WritePoints(path string, ps *PointSet, weightField string) error {
	fields := []shp.Field{shp.NumberField(weightField, 4)}
	return writeShapefile(path, shp.POINT, ps.CRS, fields, func(w *shp.Writer) error {
		for _, p := range ps.Points {
			row := int(w.Write(&shp.Point{X: p.X, Y: p.Y}))
			if err := w.WriteAttribute(row, 0, int(p.Weight)); err != nil {
				return eris.Wrapf(err, "vector: write weight row %d", row)
			}
		}
		return nil
	})
}

// Bound returns the bounding box of the point set.
func (ps *PointSet) Bound() orb.Bound {
	mp := make(orb.MultiPoint, len(ps.Points))
	for i, p := range ps.Points {
		mp[i] = orb.Point{p.X, p.Y}
	}
	return mp.Bound()
}
