package tabulate

import (
	"encoding/csv"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/wuimap/internal/vector"
)

var csvHeader = []string{"COUNTYNUMB", "Year", "imWUI", "ifWUI"}

// WriteCSV writes county areas in long form, one row per (county, year).
func WriteCSV(path string, areas []CountyArea) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "tabulate: mkdir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "tabulate: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return eris.Wrap(err, "tabulate: write csv header")
	}
	for _, a := range areas {
		if err := w.Write([]string{
			strconv.Itoa(a.CountyNumb),
			strconv.Itoa(a.Year),
			formatArea(a.IntermixArea),
			formatArea(a.InterfaceArea),
		}); err != nil {
			return eris.Wrap(err, "tabulate: write csv row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "tabulate: flush csv")
}

// ReadCSV reads a long-form table written by WriteCSV. Column names are
// matched case-insensitively and may appear in any order.
func ReadCSV(path string) ([]CountyArea, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabulate: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "tabulate: read %s", path)
	}
	if len(records) == 0 {
		return nil, eris.Errorf("tabulate: %s is empty", path)
	}

	idx := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cols := make([]int, len(csvHeader))
	for i, h := range csvHeader {
		j, ok := idx[strings.ToLower(h)]
		if !ok {
			return nil, eris.Errorf("tabulate: %s has no %s column", path, h)
		}
		cols[i] = j
	}

	out := make([]CountyArea, 0, len(records)-1)
	for n, rec := range records[1:] {
		field := func(i int) string {
			if cols[i] >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[cols[i]])
		}
		county, err := parseZone(field(0))
		if err != nil {
			return nil, eris.Wrapf(err, "tabulate: %s line %d", path, n+2)
		}
		year, err := strconv.Atoi(field(1))
		if err != nil {
			return nil, eris.Wrapf(err, "tabulate: %s line %d year", path, n+2)
		}
		im, err := parseArea(field(2))
		if err != nil {
			return nil, eris.Wrapf(err, "tabulate: %s line %d imWUI", path, n+2)
		}
		ifc, err := parseArea(field(3))
		if err != nil {
			return nil, eris.Wrapf(err, "tabulate: %s line %d ifWUI", path, n+2)
		}
		out = append(out, CountyArea{CountyNumb: county, Year: year, IntermixArea: im, InterfaceArea: ifc})
	}
	return out, nil
}

func parseArea(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(v, 64)
}

// WriteXLSX writes the wide year-over-year table to a "summary" sheet and the
// long form of each year to its own sheet.
func WriteXLSX(path string, s *Summary) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("summary")
	if err != nil {
		return eris.Wrap(err, "xlsx: add summary sheet")
	}
	addStringRow(sheet, s.Header())
	for _, c := range s.Counties {
		row := sheet.AddRow()
		row.AddCell().SetInt(c)
		for _, y := range s.Years {
			a, ok := s.Get(c, y)
			if !ok {
				row.AddCell()
				row.AddCell()
				continue
			}
			row.AddCell().SetFloat(a.IntermixArea)
			row.AddCell().SetFloat(a.InterfaceArea)
		}
	}

	for _, y := range s.Years {
		ys, err := f.AddSheet(strconv.Itoa(y))
		if err != nil {
			return eris.Wrapf(err, "xlsx: add sheet %d", y)
		}
		addStringRow(ys, csvHeader)
		for _, a := range s.Year(y) {
			row := ys.AddRow()
			row.AddCell().SetInt(a.CountyNumb)
			row.AddCell().SetInt(a.Year)
			row.AddCell().SetFloat(a.IntermixArea)
			row.AddCell().SetFloat(a.InterfaceArea)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "tabulate: mkdir for %s", path)
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// ExportYearShapefiles joins each year's county areas onto the county layer by
// zoneField and writes one shapefile per year as <dir>/wui_<year>.shp. The
// county attributes are carried over as text; imwui and ifwui hold the areas.
func ExportYearShapefiles(dir string, counties *vector.PolygonLayer, zoneField string, s *Summary, years []int) ([]string, error) {
	if zoneField == "" {
		zoneField = DefaultZoneField
	}
	zoneField = strings.ToLower(zoneField)
	if !hasField(counties.Fields, zoneField) {
		return nil, eris.Errorf("tabulate: county layer %s has no field %q", counties.Name, zoneField)
	}
	if len(years) == 0 {
		years = s.Years
	}
	log := zap.L().With(zap.String("component", "tabulate.export"))

	cols := []vector.Column{{Name: zoneField, Kind: vector.NumberColumn}}
	for _, f := range counties.Fields {
		if f != zoneField && f != "imwui" && f != "ifwui" {
			cols = append(cols, vector.Column{Name: f, Kind: vector.StringColumn})
		}
	}
	cols = append(cols,
		vector.Column{Name: "imwui", Kind: vector.FloatColumn},
		vector.Column{Name: "ifwui", Kind: vector.FloatColumn},
	)

	paths := make([]string, 0, len(years))
	for _, y := range years {
		layer := &vector.PolygonLayer{
			Name:    fmt.Sprintf("wui_%d", y),
			CRS:     counties.CRS,
			Fields:  counties.Fields,
			Records: make([]vector.PolygonRecord, len(counties.Records)),
		}
		var unmatched int
		for i, rec := range counties.Records {
			attrs := maps.Clone(rec.Attrs)
			if attrs == nil {
				attrs = make(map[string]string, 2)
			}
			attrs["imwui"], attrs["ifwui"] = "0", "0"
			if zone, err := parseZone(rec.Attrs[zoneField]); err == nil {
				if a, ok := s.Get(zone, y); ok {
					attrs["imwui"] = formatArea(a.IntermixArea)
					attrs["ifwui"] = formatArea(a.InterfaceArea)
				} else {
					unmatched++
				}
			} else {
				unmatched++
			}
			layer.Records[i] = vector.PolygonRecord{Geometry: rec.Geometry, Attrs: attrs}
		}

		path := filepath.Join(dir, layer.Name+".shp")
		if err := vector.WriteLayer(path, layer, cols); err != nil {
			return nil, eris.Wrapf(err, "tabulate: export year %d", y)
		}
		if unmatched > 0 {
			log.Warn("counties without a tabulation row", zap.Int("year", y), zap.Int("unmatched", unmatched))
		}
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths, nil
}
