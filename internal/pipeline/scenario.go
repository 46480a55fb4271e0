// Package pipeline drives scenario batches: it loads the inputs of each
// scenario, builds the scenario masks once, sweeps the window radii, and
// promotes the outputs of scenarios that succeed.
package pipeline

import (
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/wuimap/internal/wui"
)

// RadiusRange is an inclusive arithmetic sequence of window radii.
type RadiusRange struct {
	Start int `yaml:"start" mapstructure:"start"`
	Stop  int `yaml:"stop" mapstructure:"stop"`
	Step  int `yaml:"step" mapstructure:"step"`
}

// DefaultRadiusRange is the 100..1000 step 100 sweep.
var DefaultRadiusRange = RadiusRange{Start: 100, Stop: 1000, Step: 100}

// Radii expands the range.
func (r RadiusRange) Radii() []int {
	if r.Step <= 0 || r.Start <= 0 || r.Stop < r.Start {
		return nil
	}
	var out []int
	for n := r.Start; n <= r.Stop; n += r.Step {
		out = append(out, n)
	}
	return out
}

// ParamOverrides are per-scenario deltas applied on top of the base
// parameters. Unset fields keep the base value.
type ParamOverrides struct {
	WaterCode        *int     `yaml:"water_code"`
	FlammableCodes   []int    `yaml:"flammable_codes"`
	PatchTagArea     *float64 `yaml:"patch_tag_area"`
	LargePatchArea   *float64 `yaml:"large_patch_area"`
	PatchBuffer      *float64 `yaml:"patch_buffer"`
	DensityThreshold *float64 `yaml:"density_threshold"`
	CoverThreshold   *float64 `yaml:"cover_threshold"`
}

// Apply returns base with the overrides set.
func (o ParamOverrides) Apply(base wui.Params) wui.Params {
	p := base
	p.FlammableCodes = slices.Clone(base.FlammableCodes)
	if o.WaterCode != nil {
		p.WaterCode = *o.WaterCode
	}
	if len(o.FlammableCodes) > 0 {
		p.FlammableCodes = slices.Clone(o.FlammableCodes)
	}
	if o.PatchTagArea != nil {
		p.PatchTagArea = *o.PatchTagArea
	}
	if o.LargePatchArea != nil {
		p.LargePatchArea = *o.LargePatchArea
	}
	if o.PatchBuffer != nil {
		p.PatchBuffer = *o.PatchBuffer
	}
	if o.DensityThreshold != nil {
		p.DensityThreshold = *o.DensityThreshold
	}
	if o.CoverThreshold != nil {
		p.CoverThreshold = *o.CoverThreshold
	}
	return p
}

// Scenario is one (region, land-cover year) configuration of the batch.
type Scenario struct {
	Name        string         `yaml:"name"`
	Year        int            `yaml:"year"`
	LandCover   string         `yaml:"land_cover"`
	Housing     string         `yaml:"housing"`
	Boundary    string         `yaml:"boundary"`
	WeightField string         `yaml:"weight_field"`
	CRS         string         `yaml:"crs"`
	ClipBuffer  *float64       `yaml:"clip_buffer"`
	Radii       []int          `yaml:"radii"`
	Params      ParamOverrides `yaml:"params"`
}

// ScenarioDefaults fill fields a scenario leaves unset.
type ScenarioDefaults struct {
	WeightField string         `yaml:"weight_field"`
	CRS         string         `yaml:"crs"`
	ClipBuffer  float64        `yaml:"clip_buffer"`
	Radii       []int          `yaml:"radii"`
	RadiusRange *RadiusRange   `yaml:"radius_range"`
	Params      ParamOverrides `yaml:"params"`
}

// Manifest is a scenario batch file.
type Manifest struct {
	Defaults  ScenarioDefaults `yaml:"defaults"`
	Scenarios []Scenario       `yaml:"scenarios"`
}

// LoadManifest reads a scenario manifest and applies its defaults to every
// scenario.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read manifest %s", path)
	}
	return ParseManifest(data)
}

// ParseManifest decodes manifest YAML and applies its defaults.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse manifest")
	}

	defRadii := m.Defaults.Radii
	if len(defRadii) == 0 && m.Defaults.RadiusRange != nil {
		defRadii = m.Defaults.RadiusRange.Radii()
	}

	seen := make(map[string]bool, len(m.Scenarios))
	for i := range m.Scenarios {
		sc := &m.Scenarios[i]
		if sc.Name == "" {
			return nil, eris.Errorf("pipeline: scenario %d has no name", i)
		}
		if seen[sc.Name] {
			return nil, eris.Errorf("pipeline: duplicate scenario %q", sc.Name)
		}
		seen[sc.Name] = true
		if sc.LandCover == "" || sc.Housing == "" || sc.Boundary == "" {
			return nil, eris.Errorf("pipeline: scenario %q needs land_cover, housing and boundary", sc.Name)
		}

		if sc.WeightField == "" {
			sc.WeightField = m.Defaults.WeightField
		}
		if sc.CRS == "" {
			sc.CRS = m.Defaults.CRS
		}
		if sc.ClipBuffer == nil {
			b := m.Defaults.ClipBuffer
			sc.ClipBuffer = &b
		}
		if len(sc.Radii) == 0 {
			sc.Radii = slices.Clone(defRadii)
		}
		sc.Params = mergeOverrides(m.Defaults.Params, sc.Params)
	}
	return &m, nil
}

// mergeOverrides layers the scenario overrides on the manifest defaults.
func mergeOverrides(def, sc ParamOverrides) ParamOverrides {
	out := def
	if sc.WaterCode != nil {
		out.WaterCode = sc.WaterCode
	}
	if len(sc.FlammableCodes) > 0 {
		out.FlammableCodes = sc.FlammableCodes
	}
	if sc.PatchTagArea != nil {
		out.PatchTagArea = sc.PatchTagArea
	}
	if sc.LargePatchArea != nil {
		out.LargePatchArea = sc.LargePatchArea
	}
	if sc.PatchBuffer != nil {
		out.PatchBuffer = sc.PatchBuffer
	}
	if sc.DensityThreshold != nil {
		out.DensityThreshold = sc.DensityThreshold
	}
	if sc.CoverThreshold != nil {
		out.CoverThreshold = sc.CoverThreshold
	}
	return out
}

// Select returns the named scenarios in manifest order. An empty list selects
// all of them.
func (m *Manifest) Select(names []string) ([]Scenario, error) {
	if len(names) == 0 {
		return m.Scenarios, nil
	}
	var out []Scenario
	for _, sc := range m.Scenarios {
		if slices.Contains(names, sc.Name) {
			out = append(out, sc)
		}
	}
	for _, n := range names {
		if !slices.ContainsFunc(out, func(sc Scenario) bool { return sc.Name == n }) {
			return nil, eris.Errorf("pipeline: scenario %q not in manifest", n)
		}
	}
	return out, nil
}
