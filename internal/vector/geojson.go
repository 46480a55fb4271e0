package vector

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// MarshalFeatures encodes features as a GeoJSON FeatureCollection.
func MarshalFeatures(features []*Feature) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(features))}
	for _, f := range features {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry: f.Polygon,
			Properties: map[string]interface{}{
				"gridcode": f.GridCode,
				"area":     f.Area,
			},
		})
	}
	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "vector: marshal geojson")
	}
	return data, nil
}

// WriteGeoJSON writes features to path as a GeoJSON FeatureCollection.
func WriteGeoJSON(path string, features []*Feature) error {
	data, err := MarshalFeatures(features)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "vector: mkdir for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "vector: write %s", path)
	}
	return nil
}
