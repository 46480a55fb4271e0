package raster

import (
	"bufio"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ReadASCIIGrid reads an ESRI ASCII grid. When a .prj sidecar exists its
// contents become the grid CRS.
func ReadASCIIGrid(path string, typ PixelType) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	defer func() { _ = f.Close() }()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	g, err := DecodeASCIIGrid(f, name, typ)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: decode %s", path)
	}

	crs, err := ReadPRJ(path)
	if err != nil {
		return nil, err
	}
	g.CRS = crs
	return g, nil
}

// DecodeASCIIGrid parses an ESRI ASCII grid stream.
func DecodeASCIIGrid(r io.Reader, name string, typ PixelType) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	header := make(map[string]float64, 6)
	var centerX, centerY bool
	var pending string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			pending = key
			break
		}
		if !sc.Scan() {
			return nil, eris.Errorf("raster: header %q has no value", key)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: header %q", key)
		}
		switch key {
		case "xllcenter":
			centerX = true
			key = "xllcorner"
		case "yllcenter":
			centerY = true
			key = "yllcorner"
		}
		header[key] = v
	}

	for _, k := range []string{"ncols", "nrows", "xllcorner", "yllcorner", "cellsize"} {
		if _, ok := header[k]; !ok {
			return nil, eris.Errorf("raster: missing header %q", k)
		}
	}

	cols, rows := int(header["ncols"]), int(header["nrows"])
	cell := header["cellsize"]
	if cols <= 0 || rows <= 0 || cell <= 0 {
		return nil, eris.Errorf("raster: invalid dimensions %dx%d cell %g", cols, rows, cell)
	}
	llx, lly := header["xllcorner"], header["yllcorner"]
	if centerX {
		llx -= cell / 2
	}
	if centerY {
		lly -= cell / 2
	}

	noData, hasNoData := header["nodata_value"]
	if !hasNoData {
		noData = defaultNoData(typ)
	}

	geo := Geo{OriginX: llx, OriginY: lly + float64(rows)*cell, CellSize: cell, Cols: cols, Rows: rows}
	g := &Grid{Geo: geo, Name: name, Type: typ, NoData: noData, Cells: make([]float64, geo.Len())}

	i := 0
	store := func(tok string) error {
		if i >= len(g.Cells) {
			return eris.Errorf("raster: more than %d cell values", len(g.Cells))
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return eris.Wrapf(err, "raster: cell %d", i)
		}
		if v == noData {
			v = math.NaN()
		}
		g.Cells[i] = v
		i++
		return nil
	}
	if pending != "" {
		if err := store(pending); err != nil {
			return nil, err
		}
	}
	for sc.Scan() {
		if err := store(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: scan")
	}
	if i != len(g.Cells) {
		return nil, eris.Errorf("raster: expected %d cell values, got %d", len(g.Cells), i)
	}
	return g, nil
}

// WriteASCIIGrid writes g as an ESRI ASCII grid, plus a .prj sidecar when the
// grid carries a CRS.
func WriteASCIIGrid(path string, g *Grid) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "raster: mkdir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "raster: create %s", path)
	}
	if err := EncodeASCIIGrid(f, g); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "raster: encode %s", path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "raster: close %s", path)
	}
	if g.CRS != "" {
		return WritePRJ(path, g.CRS)
	}
	return nil
}

// EncodeASCIIGrid writes the ESRI ASCII representation of g to w.
func EncodeASCIIGrid(w io.Writer, g *Grid) error {
	bw := bufio.NewWriter(w)
	_, minY, _, _ := g.Bounds()
	header := [][2]string{
		{"ncols", strconv.Itoa(g.Cols)},
		{"nrows", strconv.Itoa(g.Rows)},
		{"xllcorner", formatFloat(g.OriginX)},
		{"yllcorner", formatFloat(minY)},
		{"cellsize", formatFloat(g.CellSize)},
		{"NODATA_value", formatFloat(g.NoData)},
	}
	for _, h := range header {
		if _, err := bw.WriteString(h[0] + " " + h[1] + "\n"); err != nil {
			return err
		}
	}

	integral := g.Type != Float32
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			if c > 0 {
				if err := bw.WriteByte(' '); err != nil {
					return err
				}
			}
			v := g.Cells[r*g.Cols+c]
			var s string
			switch {
			case math.IsNaN(v):
				s = formatFloat(g.NoData)
			case integral:
				s = strconv.FormatInt(int64(v), 10)
			default:
				s = formatFloat(v)
			}
			if _, err := bw.WriteString(s); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadPRJ returns the trimmed contents of the .prj sidecar next to path, or ""
// when none exists.
func ReadPRJ(path string) (string, error) {
	prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	data, err := os.ReadFile(prj)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "raster: read %s", prj)
	}
	return strings.TrimSpace(string(data)), nil
}

// WritePRJ writes crs to the .prj sidecar next to path.
func WritePRJ(path, crs string) error {
	prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	if err := os.WriteFile(prj, []byte(crs+"\n"), 0o644); err != nil {
		return eris.Wrapf(err, "raster: write %s", prj)
	}
	return nil
}
