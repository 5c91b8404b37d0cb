package lake

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// LoadBoundary reads the first polygonal geometry from a GeoJSON file
// (bare geometry, Feature or FeatureCollection) or an ESRI shapefile.
func LoadBoundary(path string) (geom.T, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return loadShapefile(path)
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "lake: read boundary %s", path)
		}
		g, err := ParseGeoJSON(data)
		if err != nil {
			return nil, eris.Wrapf(err, "lake: boundary %s", path)
		}
		return g, nil
	default:
		return nil, eris.Errorf("lake: unsupported boundary format %q", path)
	}
}

// ParseGeoJSON returns the first polygonal geometry in a GeoJSON document.
func ParseGeoJSON(data []byte) (geom.T, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, eris.Wrap(err, "lake: decode geojson")
	}

	var candidates []geom.T
	switch probe.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, eris.Wrap(err, "lake: decode feature collection")
		}
		for _, f := range fc.Features {
			candidates = append(candidates, f.Geometry)
		}
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrap(err, "lake: decode feature")
		}
		candidates = append(candidates, f.Geometry)
	default:
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, eris.Wrap(err, "lake: decode geometry")
		}
		candidates = append(candidates, g)
	}

	for _, g := range candidates {
		switch g.(type) {
		case *geom.Polygon, *geom.MultiPolygon:
			return g, nil
		}
	}
	return nil, eris.New("lake: no polygon in geojson")
}

func loadShapefile(path string) (geom.T, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "lake: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	for reader.Next() {
		n, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			zap.L().Debug("lake: skipping non-polygon shape", zap.Int("index", n), zap.String("path", path))
			continue
		}
		if g := polygonToMultiPolygon(poly); g != nil {
			return g, nil
		}
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "lake: read shapefile %s", path)
	}
	return nil, eris.Errorf("lake: no polygon in shapefile %s", path)
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon
// with one polygon per part.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("lake: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("lake: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
