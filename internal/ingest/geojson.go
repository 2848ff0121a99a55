package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/reliefiq/reliefsim/internal/model"
)

// geoFeatureCollection matches just enough of the districts GeoJSON to
// extract a centroid per district. Geometry coordinates are decoded
// lazily because Polygon and MultiPolygon nest differently.
type geoFeatureCollection struct {
	Features []struct {
		Properties map[string]any `json:"properties"`
		Geometry   struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// LoadCoordinates reads district centroids from a GeoJSON file keyed by
// normalized district name. Coordinates only annotate movements, so
// callers typically log and continue when the file is missing.
func LoadCoordinates(path string) (map[string]model.LonLat, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geojson: %w", err)
	}
	defer f.Close()
	return ReadCoordinates(f)
}

// ReadCoordinates parses centroids from GeoJSON data.
func ReadCoordinates(r io.Reader) (map[string]model.LonLat, error) {
	var fc geoFeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	out := make(map[string]model.LonLat, len(fc.Features))
	for _, feat := range fc.Features {
		name := districtProperty(feat.Properties)
		if name == "" {
			continue
		}

		ring, ok := outerRing(feat.Geometry.Type, feat.Geometry.Coordinates)
		if !ok || len(ring) == 0 {
			continue
		}
		var lon, lat float64
		for _, pt := range ring {
			lon += pt[0]
			lat += pt[1]
		}
		n := float64(len(ring))
		out[NormalizeDistrict(name)] = model.LonLat{Lon: lon / n, Lat: lat / n}
	}
	return out, nil
}

// districtProperty finds the district name among the property spellings
// seen in the wild (NAME, DISTRICT, name, ...).
func districtProperty(props map[string]any) string {
	for _, key := range []string{"NAME", "DISTRICT", "name", "district"} {
		if v, ok := props[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	for key, v := range props {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "district") || strings.Contains(lower, "name") {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

// outerRing extracts the first ring of a Polygon or of the first
// polygon of a MultiPolygon.
func outerRing(geomType string, raw json.RawMessage) ([][2]float64, bool) {
	switch geomType {
	case "Polygon":
		var rings [][][2]float64
		if err := json.Unmarshal(raw, &rings); err != nil || len(rings) == 0 {
			return nil, false
		}
		return rings[0], true
	case "MultiPolygon":
		var polys [][][][2]float64
		if err := json.Unmarshal(raw, &polys); err != nil || len(polys) == 0 || len(polys[0]) == 0 {
			return nil, false
		}
		return polys[0][0], true
	default:
		return nil, false
	}
}
