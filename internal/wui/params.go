// Package wui builds the moving-window Wildland-Urban Interface masks and
// combines them into the three-class WUI map.
package wui

import (
	"slices"

	"github.com/rotisserie/eris"
)

// Classification codes.
const (
	ClassNonWUI    = 0
	ClassIntermix  = 1
	ClassInterface = 2
)

// Default method parameters.
const (
	DefaultWaterCode        = 11
	DefaultPatchTagArea     = 5000.0
	DefaultLargePatchArea   = 25_000_000.0
	DefaultPatchBuffer      = 2400.0
	DefaultDensityThreshold = 6.17
	DefaultCoverThreshold   = 0.5
)

// DefaultFlammableCodes is the NLCD flammable vegetation set.
var DefaultFlammableCodes = []int{41, 42, 43, 52, 71, 81}

// Params holds the named thresholds and class codes of the method. Regions and
// land-cover revisions differ only in these values.
type Params struct {
	WaterCode        int     `yaml:"water_code" mapstructure:"water_code"`
	FlammableCodes   []int   `yaml:"flammable_codes" mapstructure:"flammable_codes"`
	PatchTagArea     float64 `yaml:"patch_tag_area" mapstructure:"patch_tag_area"`
	LargePatchArea   float64 `yaml:"large_patch_area" mapstructure:"large_patch_area"`
	PatchBuffer      float64 `yaml:"patch_buffer" mapstructure:"patch_buffer"`
	DensityThreshold float64 `yaml:"density_threshold" mapstructure:"density_threshold"`
	CoverThreshold   float64 `yaml:"cover_threshold" mapstructure:"cover_threshold"`
}

// DefaultParams returns the calibrated parameters of the method.
func DefaultParams() Params {
	return Params{
		WaterCode:        DefaultWaterCode,
		FlammableCodes:   slices.Clone(DefaultFlammableCodes),
		PatchTagArea:     DefaultPatchTagArea,
		LargePatchArea:   DefaultLargePatchArea,
		PatchBuffer:      DefaultPatchBuffer,
		DensityThreshold: DefaultDensityThreshold,
		CoverThreshold:   DefaultCoverThreshold,
	}
}

// Validate rejects parameter sets the builders cannot use.
func (p Params) Validate() error {
	switch {
	case len(p.FlammableCodes) == 0:
		return eris.New("wui: flammable code set is empty")
	case slices.Contains(p.FlammableCodes, p.WaterCode):
		return eris.Errorf("wui: water code %d is also flammable", p.WaterCode)
	case p.PatchTagArea < 0 || p.LargePatchArea < 0:
		return eris.New("wui: patch area thresholds must be non-negative")
	case p.PatchBuffer < 0:
		return eris.Errorf("wui: patch buffer %g is negative", p.PatchBuffer)
	case p.DensityThreshold < 0:
		return eris.Errorf("wui: density threshold %g is negative", p.DensityThreshold)
	case p.CoverThreshold < 0 || p.CoverThreshold > 1:
		return eris.Errorf("wui: cover threshold %g outside [0, 1]", p.CoverThreshold)
	}
	return nil
}

func (p Params) flammable() map[float64]bool {
	set := make(map[float64]bool, len(p.FlammableCodes))
	for _, c := range p.FlammableCodes {
		set[float64(c)] = true
	}
	return set
}
