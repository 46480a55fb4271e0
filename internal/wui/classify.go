package wui

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/wuimap/internal/raster"
	"github.com/sells-group/wuimap/internal/vector"
)

// ClassifiedNoData is the file nodata value of the classified raster. Non-WUI
// cells are written as nodata.
const ClassifiedNoData = ClassNonWUI

// Classification holds the combined masks of one (scenario, radius) pair.
type Classification struct {
	DenseBuildable *raster.Grid
	Intermix       *raster.Grid
	Interface      *raster.Grid
	Classified     *raster.Grid
}

// Classify combines the housing, water, cover and far-cover masks. A cell is
// intermix when dense buildable housing sits in a majority wildland window, and
// interface when dense buildable housing is near a large patch. Intermix wins
// when both hold. Every input must be a 0/1 mask on the same grid.
func Classify(dense, water, cover, far *raster.Grid) (*Classification, error) {
	for _, g := range []*raster.Grid{dense, water, cover, far} {
		if !raster.IsBinary(g) {
			return nil, eris.Errorf("wui: %s is not a 0/1 mask", g.Name)
		}
	}
	if err := raster.Align(dense, water, cover, far); err != nil {
		return nil, err
	}

	denseBuildable, err := raster.Multiply(string(KindDenseBuildable), dense, water)
	if err != nil {
		return nil, err
	}

	intermix, err := raster.Zip(string(KindIntermix), denseBuildable, cover, raster.Uint8, func(d, c float64) float64 {
		if d == 1 && c == 1 {
			return 1
		}
		return 0
	})
	if err != nil {
		return nil, err
	}

	iface, err := raster.Multiply(string(KindInterface), denseBuildable, far)
	if err != nil {
		return nil, err
	}

	classified, err := raster.Zip(string(KindClassified), intermix, iface, raster.Uint8, func(im, in float64) float64 {
		switch {
		case im == 1:
			return ClassIntermix
		case in == 1:
			return ClassInterface
		}
		return ClassNonWUI
	})
	if err != nil {
		return nil, err
	}
	classified.NoData = ClassifiedNoData

	return &Classification{
		DenseBuildable: denseBuildable,
		Intermix:       intermix,
		Interface:      iface,
		Classified:     classified,
	}, nil
}

// Vectorize polygonizes the intermix and interface cells of classified.
// When area is set, only cells whose centers fall inside it are kept, so
// polygons along the boundary stay cell-aligned instead of following it.
func Vectorize(classified *raster.Grid, area *vector.StudyArea) (*vector.Polygonization, error) {
	opts := vector.PolygonizeOptions{
		Include: func(v float64) bool { return v == ClassIntermix || v == ClassInterface },
	}
	if area != nil {
		opts.Mask = area.Mask("study-area", classified.Geo, 0)
	}
	p, err := vector.Polygonize(classified, opts)
	if err != nil {
		return nil, eris.Wrap(err, "wui: vectorize classified")
	}
	return p, nil
}
