package postgis

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/wuimap/internal/db"
	"github.com/sells-group/wuimap/internal/vector"
)

// Table names in the wui schema.
const (
	Schema       = "wui"
	PolygonTable = "classified_polygons"
	SummaryTable = "county_summary"
)

var (
	polygonTable = db.Table{Schema: Schema, Name: PolygonTable}
	summaryTable = db.Table{Schema: Schema, Name: SummaryTable}
)

var polygonColumns = []string{"scenario", "year", "radius", "feature_id", "gridcode", "area", "geom"}

// Sink writes pipeline outputs to PostGIS.
type Sink struct {
	pool db.Pool
	srid int
}

// NewSink returns a sink that tags geometries with srid.
func NewSink(pool db.Pool, srid int) *Sink {
	return &Sink{pool: pool, srid: srid}
}

// ExportScenario replaces the stored polygons of every radius of a scenario in
// one transaction. publish runs once the rows are written and before the
// commit; when it fails nothing is committed.
func (s *Sink) ExportScenario(ctx context.Context, scenario string, year int, layers []vector.RadiusFeatures, publish func() error) (int64, error) {
	log := zap.L().With(
		zap.String("component", "postgis.sink"),
		zap.String("scenario", scenario),
	)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "postgis: begin export of %s", scenario)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var total int64
	for _, layer := range layers {
		rows, err := s.polygonRows(scenario, year, layer)
		if err != nil {
			return 0, err
		}
		match := db.Match{Columns: []string{"scenario", "radius"}, Values: []any{scenario, layer.Radius}}
		replaced, n, err := db.Replace(ctx, tx, polygonTable, match, polygonColumns, rows)
		if err != nil {
			return 0, eris.Wrapf(err, "postgis: replace %s radius %d", scenario, layer.Radius)
		}
		log.Debug("staged classified polygons",
			zap.Int("radius", layer.Radius),
			zap.Int64("replaced", replaced),
			zap.Int64("rows", n),
		)
		total += n
	}

	if publish != nil {
		if err := publish(); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "postgis: commit export of %s", scenario)
	}
	log.Info("exported classified polygons",
		zap.Int("radii", len(layers)),
		zap.Int64("rows", total),
	)
	return total, nil
}

func (s *Sink) polygonRows(scenario string, year int, layer vector.RadiusFeatures) ([][]any, error) {
	rows := make([][]any, 0, len(layer.Features))
	for _, f := range layer.Features {
		wkb, err := EncodePolygon(f.Polygon, s.srid)
		if err != nil {
			return nil, eris.Wrapf(err, "postgis: encode feature %d at radius %d", f.ID, layer.Radius)
		}
		rows = append(rows, []any{scenario, year, layer.Radius, f.ID, f.GridCode, f.Area, wkb})
	}
	return rows, nil
}

// SummaryRow is one county-year tabulation.
type SummaryRow struct {
	CountyNumb    int
	Year          int
	IntermixArea  float64
	InterfaceArea float64
}

// WriteSummary upserts county summaries keyed by (countynumb, year).
func (s *Sink) WriteSummary(ctx context.Context, summaries []SummaryRow) (int64, error) {
	rows := make([][]any, len(summaries))
	for i, r := range summaries {
		rows[i] = []any{r.CountyNumb, r.Year, r.IntermixArea, r.InterfaceArea}
	}
	n, err := db.Upsert(ctx, s.pool, db.UpsertSpec{
		Table:   summaryTable,
		Columns: []string{"countynumb", "year", "intermix_area", "interface_area"},
		Keys:    []string{"countynumb", "year"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgis: write county summary")
	}
	return n, nil
}

// EncodePolygon encodes p as an EWKB MultiPolygon tagged with srid.
func EncodePolygon(p *geom.Polygon, srid int) ([]byte, error) {
	if p == nil {
		return nil, eris.New("postgis: nil polygon")
	}
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
	poly := geom.NewPolygonFlat(p.Layout(), p.FlatCoords(), p.Ends())
	if err := mp.Push(poly); err != nil {
		return nil, eris.Wrap(err, "postgis: build multipolygon")
	}
	data, err := ewkb.Marshal(mp, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgis: marshal ewkb")
	}
	return data, nil
}

// ParseSRID extracts the numeric code from an "EPSG:<code>" reference. Other
// references yield 0.
func ParseSRID(crs string) int {
	code, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(crs)), "EPSG:")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return 0
	}
	return n
}
