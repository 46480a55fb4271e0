package main

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/wuimap/internal/model"
	"github.com/sells-group/wuimap/internal/postgis"
	"github.com/sells-group/wuimap/internal/raster"
	"github.com/sells-group/wuimap/internal/store"
	"github.com/sells-group/wuimap/internal/tabulate"
	"github.com/sells-group/wuimap/internal/vector"
	"github.com/sells-group/wuimap/internal/wui"
)

var (
	tabCounties string
	tabYears    string
	tabRadius   int
	tabOut      string
)

var tabulateCmd = &cobra.Command{
	Use:   "tabulate",
	Short: "Tabulate WUI area per county and year",
	Long:  "Sums intermix and interface area inside each county for the latest completed run of every year, then writes long-form CSV, a year-over-year workbook, and one county shapefile per year.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("component", "tabulate"))

		if tabRadius > 0 {
			cfg.Tabulate.Radius = tabRadius
		}
		if tabOut != "" {
			cfg.Tabulate.OutputDir = tabOut
		}
		if err := cfg.Validate("tabulate"); err != nil {
			return err
		}

		years, err := parseYears(tabYears)
		if err != nil {
			return err
		}
		counties, err := vector.ReadPolygons(tabCounties)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var areas []tabulate.CountyArea
		for _, y := range years {
			path, err := classifiedFor(ctx, st, y, cfg.Tabulate.Radius)
			if err != nil {
				return err
			}
			classified, err := raster.ReadASCIIGrid(path, raster.Uint8)
			if err != nil {
				return err
			}
			yearAreas, err := tabulate.TabulateArea(classified, counties, cfg.Tabulate.ZoneField, y)
			if err != nil {
				return err
			}
			log.Info("tabulated year", zap.Int("year", y), zap.String("raster", path), zap.Int("counties", len(yearAreas)))
			areas = append(areas, yearAreas...)
		}

		out := cfg.Tabulate.OutputDir
		summary := tabulate.Join(areas)
		if err := tabulate.WriteCSV(filepath.Join(out, "county_wui.csv"), areas); err != nil {
			return err
		}
		if err := tabulate.WriteXLSX(filepath.Join(out, "county_wui.xlsx"), summary); err != nil {
			return err
		}
		paths, err := tabulate.ExportYearShapefiles(filepath.Join(out, "shapefiles"), counties, cfg.Tabulate.ZoneField, summary, years)
		if err != nil {
			return err
		}

		sink, pool, err := initSink(ctx, postgis.ParseSRID(counties.CRS))
		if err != nil {
			return err
		}
		if pool != nil {
			defer pool.Close()
			rows := make([]postgis.SummaryRow, len(areas))
			for i, a := range areas {
				rows[i] = postgis.SummaryRow(a)
			}
			n, err := sink.WriteSummary(ctx, rows)
			if err != nil {
				return err
			}
			log.Info("county summary upserted", zap.Int64("rows", n))
		}

		log.Info("tabulation complete",
			zap.String("output_dir", out),
			zap.Int("years", len(years)),
			zap.Int("shapefiles", len(paths)),
		)
		return nil
	},
}

// classifiedFor locates the classified raster at radius from the latest
// completed run of year.
func classifiedFor(ctx context.Context, st store.Store, year, radius int) (string, error) {
	runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatusComplete, Limit: 1000})
	if err != nil {
		return "", eris.Wrap(err, "tabulate: list runs")
	}
	for _, r := range runs {
		if r.Year != year || r.Result == nil || r.Result.OutputDir == "" {
			continue
		}
		return filepath.Join(r.Result.OutputDir, wui.FileName(wui.AtRadius(wui.KindClassified, radius))), nil
	}
	return "", eris.Errorf("tabulate: no completed run for year %d", year)
}

// parseYears accepts a range ("2013-2024") or a comma list ("2013,2016").
func parseYears(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, eris.New("tabulate: --years is required")
	}
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		start, err1 := strconv.Atoi(strings.TrimSpace(lo))
		stop, err2 := strconv.Atoi(strings.TrimSpace(hi))
		if err1 != nil || err2 != nil || stop < start {
			return nil, eris.Errorf("tabulate: bad year range %q", s)
		}
		years := make([]int, 0, stop-start+1)
		for y := start; y <= stop; y++ {
			years = append(years, y)
		}
		return years, nil
	}
	var years []int
	for _, part := range strings.Split(s, ",") {
		y, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, eris.Errorf("tabulate: bad year %q", part)
		}
		years = append(years, y)
	}
	return years, nil
}

func init() {
	tabulateCmd.Flags().StringVar(&tabCounties, "counties", "", "county polygon shapefile (required)")
	tabulateCmd.Flags().StringVar(&tabYears, "years", "", "years to tabulate, as 2013-2024 or 2013,2016 (required)")
	tabulateCmd.Flags().IntVar(&tabRadius, "radius", 0, "window radius of the classified raster (default from config)")
	tabulateCmd.Flags().StringVar(&tabOut, "out", "", "output directory (default from config)")
	_ = tabulateCmd.MarkFlagRequired("counties")
	_ = tabulateCmd.MarkFlagRequired("years")
	rootCmd.AddCommand(tabulateCmd)
}
