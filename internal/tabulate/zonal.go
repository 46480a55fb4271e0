// Package tabulate summarizes classified WUI rasters per county and year and
// exports the year-over-year tables.
package tabulate

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wuimap/internal/raster"
	"github.com/sells-group/wuimap/internal/vector"
	"github.com/sells-group/wuimap/internal/wui"
)

// DefaultZoneField is the county identifier attribute on county layers.
const DefaultZoneField = "countynumb"

// CountyArea is the intermix and interface area of one county in one year.
type CountyArea struct {
	CountyNumb    int     `json:"countynumb"`
	Year          int     `json:"year"`
	IntermixArea  float64 `json:"intermix_area"`
	InterfaceArea float64 `json:"interface_area"`
}

// TabulateArea sums the area of intermix and interface cells whose centers
// fall inside each zone polygon. Records sharing a zone value are combined.
// Results are ordered by zone. Zones and raster must share a CRS.
func TabulateArea(classified *raster.Grid, zones *vector.PolygonLayer, zoneField string, year int) ([]CountyArea, error) {
	if zoneField == "" {
		zoneField = DefaultZoneField
	}
	zoneField = strings.ToLower(zoneField)
	if !hasField(zones.Fields, zoneField) {
		return nil, eris.Errorf("tabulate: zone layer %s has no field %q", zones.Name, zoneField)
	}
	if err := vector.CheckProjections(zones.CRS, vector.Layer{Name: classified.Name, CRS: classified.CRS}); err != nil {
		return nil, eris.Wrapf(err, "tabulate: year %d", year)
	}

	log := zap.L().With(zap.String("component", "tabulate.zonal"), zap.Int("year", year))
	cellArea := classified.CellArea()
	byZone := make(map[int]*CountyArea)

	for i, rec := range zones.Records {
		zone, err := parseZone(rec.Attrs[zoneField])
		if err != nil {
			return nil, eris.Wrapf(err, "tabulate: record %d", i)
		}
		ca, ok := byZone[zone]
		if !ok {
			ca = &CountyArea{CountyNumb: zone, Year: year}
			byZone[zone] = ca
		}

		inside := vector.CellsInside("zone", classified.Geo, rec.Geometry)
		for j, m := range inside.Cells {
			if m != 1 {
				continue
			}
			switch classified.Cells[j] {
			case wui.ClassIntermix:
				ca.IntermixArea += cellArea
			case wui.ClassInterface:
				ca.InterfaceArea += cellArea
			}
		}
	}

	out := make([]CountyArea, 0, len(byZone))
	for _, ca := range byZone {
		out = append(out, *ca)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CountyNumb < out[j].CountyNumb })

	log.Debug("tabulated county areas", zap.Int("zones", len(out)))
	return out, nil
}

func hasField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// parseZone accepts integer identifiers written as integers or as whole
// floats ("35", "35.0").
func parseZone(v string) (int, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, eris.Errorf("tabulate: zone value %q is not an integer", v)
	}
	return int(f), nil
}
