package vector

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCRSMismatch is returned when an input layer's coordinate reference does
// not match the scenario's.
var ErrCRSMismatch = eris.New("vector: coordinate reference mismatch")

// Layer names a CRS-carrying input for projection checks.
type Layer struct {
	Name string
	CRS  string
}

// CheckProjections verifies every layer carries the expected CRS. Layers with
// no CRS are logged and skipped; reprojection is never attempted.
func CheckProjections(expected string, layers ...Layer) error {
	log := zap.L().With(zap.String("component", "vector.crs"))
	want := normalizeCRS(expected)
	for _, l := range layers {
		got := normalizeCRS(l.CRS)
		switch {
		case got == "":
			log.Warn("layer has no coordinate reference", zap.String("layer", l.Name))
		case want == "":
			want = got
		case got != want:
			return eris.Wrapf(ErrCRSMismatch, "layer %q has %q, expected %q", l.Name, l.CRS, expected)
		}
	}
	return nil
}

func normalizeCRS(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}
