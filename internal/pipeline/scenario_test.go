package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wuimap/internal/wui"
)

const testManifest = `
defaults:
  weight_field: value1
  crs: EPSG:6514
  clip_buffer: 3000
  radius_range: {start: 100, stop: 300, step: 100}
  params:
    density_threshold: 6.17
scenarios:
  - name: boulder_2013
    year: 2013
    land_cover: nlcd_2013.asc
    housing: houses_2013.shp
    boundary: boulder.shp
  - name: boulder_2019
    year: 2019
    land_cover: nlcd_2019.asc
    housing: houses_2019.shp
    boundary: boulder.shp
    clip_buffer: 0
    radii: [500]
    params:
      flammable_codes: [41, 42, 43]
      cover_threshold: 0.6
`

func TestParseManifest_AppliesDefaults(t *testing.T) {
	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)
	require.Len(t, m.Scenarios, 2)

	a := m.Scenarios[0]
	assert.Equal(t, "value1", a.WeightField)
	assert.Equal(t, "EPSG:6514", a.CRS)
	require.NotNil(t, a.ClipBuffer)
	assert.Equal(t, 3000.0, *a.ClipBuffer)
	assert.Equal(t, []int{100, 200, 300}, a.Radii)

	b := m.Scenarios[1]
	require.NotNil(t, b.ClipBuffer)
	assert.Zero(t, *b.ClipBuffer)
	assert.Equal(t, []int{500}, b.Radii)

	p := b.Params.Apply(wui.DefaultParams())
	assert.Equal(t, []int{41, 42, 43}, p.FlammableCodes)
	assert.Equal(t, 0.6, p.CoverThreshold)
	assert.Equal(t, 6.17, p.DensityThreshold)
	assert.Equal(t, wui.DefaultWaterCode, p.WaterCode)
}

func TestParseManifest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "scenarios:\n  - land_cover: a.asc\n    housing: h.shp\n    boundary: b.shp\n",
			wantErr: "has no name",
		},
		{
			name: "duplicate",
			yaml: "scenarios:\n" +
				"  - {name: a, land_cover: a.asc, housing: h.shp, boundary: b.shp}\n" +
				"  - {name: a, land_cover: a.asc, housing: h.shp, boundary: b.shp}\n",
			wantErr: `duplicate scenario "a"`,
		},
		{
			name:    "missing inputs",
			yaml:    "scenarios:\n  - {name: a, land_cover: a.asc}\n",
			wantErr: "needs land_cover",
		},
		{
			name:    "bad yaml",
			yaml:    "scenarios: [",
			wantErr: "parse manifest",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Len(t, m.Scenarios, 2)

	_, err = LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestManifest_Select(t *testing.T) {
	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)

	all, err := m.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := m.Select([]string{"boulder_2019"})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, 2019, one[0].Year)

	_, err = m.Select([]string{"denver_2019"})
	assert.ErrorContains(t, err, `"denver_2019" not in manifest`)
}

func TestRadiusRange(t *testing.T) {
	assert.Equal(t, []int{100, 200, 300, 400, 500, 600, 700, 800, 900, 1000}, DefaultRadiusRange.Radii())
	assert.Equal(t, []int{250}, RadiusRange{Start: 250, Stop: 250, Step: 50}.Radii())
	assert.Nil(t, RadiusRange{Start: 100, Stop: 50, Step: 10}.Radii())
	assert.Nil(t, RadiusRange{Start: 100, Stop: 500}.Radii())
}

func TestParamOverrides_ApplyDoesNotAlias(t *testing.T) {
	base := wui.DefaultParams()
	p := ParamOverrides{}.Apply(base)
	p.FlammableCodes[0] = 99
	assert.Equal(t, 41, base.FlammableCodes[0])
}
