package pipeline

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wuimap/internal/model"
	"github.com/sells-group/wuimap/internal/raster"
	"github.com/sells-group/wuimap/internal/store"
	"github.com/sells-group/wuimap/internal/vector"
	"github.com/sells-group/wuimap/internal/wui"
)

// PolygonSink stores the clipped WUI polygons of a finished scenario. It must
// call publish before making the polygons visible and keep nothing when
// publish fails.
type PolygonSink interface {
	ExportScenario(ctx context.Context, scenario string, year int, layers []vector.RadiusFeatures, publish func() error) (int64, error)
}

// Driver runs scenario batches against a run ledger and a workspace.
type Driver struct {
	store  store.Store
	ws     *Workspace
	params wui.Params
	radii  []int
	sweep  []int
	cell   float64
	sink   PolygonSink
}

// Option configures a Driver.
type Option func(*Driver)

// WithParams sets the base parameters scenario overrides apply to.
func WithParams(p wui.Params) Option { return func(d *Driver) { d.params = p } }

// WithRadii forces the radius sweep of every scenario.
func WithRadii(radii []int) Option { return func(d *Driver) { d.radii = radii } }

// WithDefaultRadii sets the sweep of scenarios that name no radii.
func WithDefaultRadii(radii []int) Option { return func(d *Driver) { d.sweep = radii } }

// WithCellSize rejects land cover whose cell size differs from size.
func WithCellSize(size float64) Option { return func(d *Driver) { d.cell = size } }

// WithSink exports the polygons of every succeeded scenario to s.
func WithSink(s PolygonSink) Option { return func(d *Driver) { d.sink = s } }

// New creates a Driver with default parameters.
func New(st store.Store, ws *Workspace, opts ...Option) *Driver {
	d := &Driver{store: st, ws: ws, params: wui.DefaultParams()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// RunBatch runs scenarios sequentially. A failed scenario is recorded and the
// batch moves on; only a cancelled context or an unusable ledger stops it.
func (d *Driver) RunBatch(ctx context.Context, scenarios []Scenario) ([]*model.Run, error) {
	log := zap.L().With(zap.String("component", "pipeline"))
	runs := make([]*model.Run, 0, len(scenarios))
	var failed int
	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			return runs, eris.Wrap(err, "pipeline: batch cancelled")
		}
		run, err := d.RunScenario(ctx, sc)
		if run == nil {
			return runs, err
		}
		runs = append(runs, run)
		if err != nil {
			failed++
			if ctx.Err() != nil {
				return runs, eris.Wrap(ctx.Err(), "pipeline: batch cancelled")
			}
		}
	}
	log.Info("pipeline: batch complete",
		zap.Int("scenarios", len(scenarios)),
		zap.Int("failed", failed),
	)
	return runs, nil
}

// RunScenario classifies one scenario at every radius of its sweep. On failure
// the run is marked failed and staged outputs are discarded; the returned run
// is non-nil whenever the ledger row was created.
func (d *Driver) RunScenario(ctx context.Context, sc Scenario) (*model.Run, error) {
	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("scenario", sc.Name),
		zap.Int("year", sc.Year),
	)
	start := time.Now()

	run, err := d.store.CreateRun(ctx, sc.Name, sc.Year)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: scenario starting")

	result, err := d.execute(ctx, run, sc, log)
	result.Duration = time.Since(start).Milliseconds()
	run.Result = result

	if err != nil {
		result.Error = err.Error()
		run.Status = model.RunStatusFailed
		log.Error("pipeline: scenario failed", zap.Error(err))

		bg := context.WithoutCancel(ctx)
		if failErr := d.store.FailRun(bg, run.ID, result.Error); failErr != nil {
			log.Warn("pipeline: failed to record failure", zap.Error(failErr))
		}
		if discardErr := d.ws.Discard(sc.Name); discardErr != nil {
			log.Warn("pipeline: failed to discard workspace", zap.Error(discardErr))
		}
		return run, err
	}

	if err := d.store.UpdateRunResult(ctx, run.ID, result); err != nil {
		log.Warn("pipeline: failed to record result", zap.Error(err))
	}
	run.Status = model.RunStatusComplete
	log.Info("pipeline: scenario complete",
		zap.String("output_dir", result.OutputDir),
		zap.Int("radii", len(result.Radii)),
		zap.Int64("duration_ms", result.Duration),
	)
	return run, nil
}

func (d *Driver) execute(ctx context.Context, run *model.Run, sc Scenario, log *zap.Logger) (*model.RunResult, error) {
	result := &model.RunResult{}

	params := sc.Params.Apply(d.params)
	if err := params.Validate(); err != nil {
		return result, err
	}
	radii := d.radiiFor(sc)
	if len(radii) == 0 {
		return result, eris.Errorf("pipeline: scenario %q has no radii", sc.Name)
	}

	if err := d.ws.Prepare(sc.Name); err != nil {
		return result, err
	}
	reg := wui.NewRegistry(d.ws.ScratchDir(sc.Name))
	defer func() {
		reg.Drop()
		Release()
	}()

	in, err := loadInputs(sc)
	if err != nil {
		return result, err
	}
	if d.cell > 0 && math.Abs(in.landCover.CellSize-d.cell) > 1e-9 {
		return result, eris.Wrapf(raster.ErrMisaligned, "land cover %s has cell size %g, expected %g",
			sc.LandCover, in.landCover.CellSize, d.cell)
	}
	log.Info("pipeline: inputs loaded",
		zap.Int("points", len(in.points.Points)),
		zap.Int("cols", in.landCover.Cols),
		zap.Int("rows", in.landCover.Rows),
	)

	if err := ctx.Err(); err != nil {
		return result, eris.Wrap(err, "pipeline: cancelled")
	}
	d.setStatus(ctx, run.ID, model.RunStatusMasking, log)
	if err := buildScenarioMasks(reg, in.landCover, params); err != nil {
		return result, err
	}

	d.setStatus(ctx, run.ID, model.RunStatusSweeping, log)
	var layers []vector.RadiusFeatures
	for _, n := range radii {
		if err := ctx.Err(); err != nil {
			return result, eris.Wrap(err, "pipeline: cancelled")
		}
		rr, features, err := d.sweepRadius(ctx, run.ID, sc, reg, in, params, n, log)
		result.Radii = append(result.Radii, *rr)
		if err != nil {
			return result, eris.Wrapf(err, "pipeline: radius %d", n)
		}
		if d.sink != nil {
			layers = append(layers, vector.RadiusFeatures{Radius: n, Features: features})
		}
	}

	if err := ctx.Err(); err != nil {
		return result, eris.Wrap(err, "pipeline: cancelled")
	}
	d.setStatus(ctx, run.ID, model.RunStatusExporting, log)
	return result, d.publish(ctx, sc, layers, result)
}

// publish promotes the staged outputs and, with a sink configured, commits
// the polygons of every radius together with them. Promoted outputs are
// withdrawn again when the sink fails to commit.
func (d *Driver) publish(ctx context.Context, sc Scenario, layers []vector.RadiusFeatures, result *model.RunResult) error {
	promote := func() error {
		dir, err := d.ws.Promote(sc.Name)
		if err != nil {
			return err
		}
		result.OutputDir = dir
		return nil
	}
	if d.sink == nil {
		return promote()
	}

	n, err := d.sink.ExportScenario(ctx, sc.Name, sc.Year, layers, promote)
	if err != nil {
		if result.OutputDir != "" {
			if wErr := d.ws.Withdraw(sc.Name); wErr != nil {
				zap.L().Warn("pipeline: failed to withdraw outputs", zap.String("scenario", sc.Name), zap.Error(wErr))
			}
			result.OutputDir = ""
		}
		return eris.Wrap(err, "pipeline: export polygons")
	}
	result.Exported = n
	return nil
}

func (d *Driver) setStatus(ctx context.Context, runID string, status model.RunStatus, log *zap.Logger) {
	if err := d.store.UpdateRunStatus(ctx, runID, status); err != nil {
		log.Warn("pipeline: failed to update status", zap.String("status", string(status)), zap.Error(err))
	}
}

// radiiFor picks the forced sweep, then the scenario's own, then the driver
// default, then the default range.
func (d *Driver) radiiFor(sc Scenario) []int {
	switch {
	case len(d.radii) > 0:
		return d.radii
	case len(sc.Radii) > 0:
		return sc.Radii
	case len(d.sweep) > 0:
		return d.sweep
	}
	return DefaultRadiusRange.Radii()
}

type inputs struct {
	landCover *raster.Grid
	points    *vector.PointSet
	area      *vector.StudyArea
}

// loadInputs reads the scenario layers, checks they share a coordinate
// reference, and extracts land cover to the buffered study area.
func loadInputs(sc Scenario) (*inputs, error) {
	lc, err := raster.ReadASCIIGrid(sc.LandCover, raster.Int32)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read land cover")
	}

	housing, err := vector.EnsureWeightField(sc.Housing, sc.WeightField)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: housing weights")
	}
	points, err := vector.ReadPoints(housing, sc.WeightField)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read housing")
	}

	area, err := vector.ReadStudyArea(sc.Boundary)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read boundary")
	}

	if err := vector.CheckProjections(sc.CRS,
		vector.Layer{Name: sc.LandCover, CRS: lc.CRS},
		vector.Layer{Name: housing, CRS: points.CRS},
		vector.Layer{Name: sc.Boundary, CRS: area.CRS},
	); err != nil {
		return nil, err
	}

	var buffer float64
	if sc.ClipBuffer != nil {
		buffer = *sc.ClipBuffer
	}
	extent := area.Mask("extent", lc.Geo, buffer)
	lc, err = raster.ExtractByMask("land-cover", lc, extent)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: extract land cover")
	}
	return &inputs{landCover: lc, points: points, area: area}, nil
}

// buildScenarioMasks registers and persists the radius-independent masks.
func buildScenarioMasks(reg *wui.Registry, landCover *raster.Grid, p wui.Params) error {
	water := wui.WaterMask(landCover, p)
	base := wui.WildlandBaseMask(landCover, p)
	far, err := wui.FarFromWildlandMask(base, p)
	if err != nil {
		return eris.Wrap(err, "pipeline: far-from-wildland mask")
	}

	reg.Put(wui.Scenario(wui.KindWater), water)
	reg.Put(wui.Scenario(wui.KindWildlandBase), base)
	reg.Put(wui.Scenario(wui.KindWildlandAreas), far.WildlandAreas)
	reg.Put(wui.Scenario(wui.KindFarCover), far.Mask)
	for _, k := range reg.Keys() {
		if _, err := reg.Persist(k); err != nil {
			return err
		}
	}
	return nil
}

var finalKinds = []wui.ArtifactKind{wui.KindClassified, wui.KindIntermix, wui.KindInterface}

// sweepRadius classifies one radius and records it in the ledger.
func (d *Driver) sweepRadius(ctx context.Context, runID string, sc Scenario, reg *wui.Registry, in *inputs, p wui.Params, n int, log *zap.Logger) (*model.RadiusResult, []*vector.Feature, error) {
	log = log.With(zap.Int("radius", n))
	rad, err := d.store.CreateRadius(ctx, runID, n)
	if err != nil {
		log.Warn("pipeline: failed to create radius row", zap.Error(err))
	}

	start := time.Now()
	rr, features, err := d.classifyRadius(ctx, sc, reg, in, p, n)
	reg.DropRadius(n)
	rr.Radius = n
	rr.Duration = time.Since(start).Milliseconds()
	if err != nil {
		rr.Status = model.PhaseStatusFailed
		rr.Error = err.Error()
		log.Error("pipeline: radius failed", zap.Int64("duration_ms", rr.Duration), zap.Error(err))
	} else {
		rr.Status = model.PhaseStatusComplete
		log.Info("pipeline: radius complete",
			zap.Int64("duration_ms", rr.Duration),
			zap.Int("intermix_cells", rr.IntermixCells),
			zap.Int("interface_cells", rr.InterfaceCells),
			zap.Int("polygons", rr.Polygons),
		)
	}

	if rad != nil {
		if cErr := d.store.CompleteRadius(context.WithoutCancel(ctx), rad.ID, rr); cErr != nil {
			log.Warn("pipeline: failed to complete radius row", zap.Error(cErr))
		}
	}
	return rr, features, err
}

// classifyRadius stages the rasters and polygons of radius n and returns the
// clipped features.
func (d *Driver) classifyRadius(ctx context.Context, sc Scenario, reg *wui.Registry, in *inputs, p wui.Params, n int) (*model.RadiusResult, []*vector.Feature, error) {
	rr := &model.RadiusResult{}
	r := float64(n)

	water, err := reg.Grid(wui.Scenario(wui.KindWater))
	if err != nil {
		return rr, nil, err
	}
	base, err := reg.Grid(wui.Scenario(wui.KindWildlandBase))
	if err != nil {
		return rr, nil, err
	}
	far, err := reg.Grid(wui.Scenario(wui.KindFarCover))
	if err != nil {
		return rr, nil, err
	}

	sum, err := wui.NeighborhoodSum(ctx, in.points, in.landCover.Geo, r)
	if err != nil {
		return rr, nil, err
	}
	density, dense := wui.HousingDensity(sum, r, p)

	if err := ctx.Err(); err != nil {
		return rr, nil, eris.Wrap(err, "pipeline: cancelled")
	}
	fraction, cover, err := wui.WildlandCover(ctx, base, r, p)
	if err != nil {
		return rr, nil, err
	}

	cls, err := wui.Classify(dense, water, cover, far)
	if err != nil {
		return rr, nil, err
	}

	intermediates := map[wui.ArtifactKind]*raster.Grid{
		wui.KindNeighborhoodSum: sum,
		wui.KindDensity:         density,
		wui.KindDense:           dense,
		wui.KindDenseBuildable:  cls.DenseBuildable,
		wui.KindCoverFraction:   fraction,
		wui.KindCover:           cover,
	}
	for kind, g := range intermediates {
		reg.Put(wui.AtRadius(kind, n), g)
		if _, err := reg.Persist(wui.AtRadius(kind, n)); err != nil {
			return rr, nil, err
		}
	}

	stage := d.ws.StageDir(sc.Name)
	finals := map[wui.ArtifactKind]*raster.Grid{
		wui.KindClassified: cls.Classified,
		wui.KindIntermix:   cls.Intermix,
		wui.KindInterface:  cls.Interface,
	}
	for _, kind := range finalKinds {
		key := wui.AtRadius(kind, n)
		reg.Put(key, finals[kind])
		if err := raster.WriteASCIIGrid(filepath.Join(stage, wui.FileName(key)), finals[kind]); err != nil {
			return rr, nil, eris.Wrapf(err, "pipeline: write %s", key)
		}
	}

	if err := ctx.Err(); err != nil {
		return rr, nil, eris.Wrap(err, "pipeline: cancelled")
	}
	polys, err := wui.Vectorize(cls.Classified, in.area)
	if err != nil {
		return rr, nil, err
	}
	for _, f := range polys.Features {
		switch f.GridCode {
		case wui.ClassIntermix:
			rr.IntermixCells += f.CellCount
			rr.IntermixArea += f.Area
		case wui.ClassInterface:
			rr.InterfaceCells += f.CellCount
			rr.InterfaceArea += f.Area
		}
	}
	rr.Polygons = len(polys.Features)

	name := fmt.Sprintf("wui_%d", n)
	if err := vector.WriteFeatures(filepath.Join(stage, name+".shp"), cls.Classified.CRS, polys.Features); err != nil {
		return rr, nil, err
	}
	if err := vector.WriteGeoJSON(filepath.Join(stage, name+".geojson"), polys.Features); err != nil {
		return rr, nil, err
	}

	return rr, polys.Features, nil
}
