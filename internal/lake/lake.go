// Package lake describes the lakes that can be analyzed and their
// boundaries.
package lake

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	ee "github.com/sells-group/lakewatch/pkg/earthengine"
)

// Poyang lake defaults.
const (
	PoyangKey   = "poyang"
	PoyangAsset = "users/public/poyang_lake_boundary"
)

// ErrNoBoundary is returned when a lake has no local boundary geometry.
var ErrNoBoundary = eris.New("lake: no local boundary")

// Center is the initial map center.
type Center struct {
	Lat float64 `yaml:"lat" json:"lat"`
	Lng float64 `yaml:"lng" json:"lng"`
}

// Lake is an analyzable water body. The boundary comes from an Earth Engine
// table asset or from a local GeoJSON or shapefile.
type Lake struct {
	Key           string `yaml:"key" json:"key"`
	Name          string `yaml:"name" json:"name"`
	Center        Center `yaml:"center" json:"center"`
	Zoom          int    `yaml:"zoom" json:"zoom"`
	BoundaryAsset string `yaml:"boundary_asset" json:"boundary_asset,omitempty"`
	BoundaryFile  string `yaml:"boundary_file" json:"boundary_file,omitempty"`

	boundary geom.T
}

// Poyang returns the built-in Poyang Lake definition.
func Poyang() Lake {
	return Lake{
		Key:           PoyangKey,
		Name:          "Poyang Lake",
		Center:        Center{Lat: 29.0, Lng: 116.3},
		Zoom:          8,
		BoundaryAsset: PoyangAsset,
	}
}

// WithBoundary returns a copy of l using g as its local boundary.
func (l Lake) WithBoundary(g geom.T) Lake {
	l.boundary = g
	return l
}

// Boundary returns the local boundary, or nil when the lake uses an asset.
func (l Lake) Boundary() geom.T {
	return l.boundary
}

// Geometry returns the boundary as an Earth Engine geometry expression.
// A local boundary takes precedence over the asset.
func (l Lake) Geometry() (ee.Expr, error) {
	switch g := l.boundary.(type) {
	case *geom.Polygon:
		return ee.Invoke("GeometryConstructors.Polygon", map[string]ee.Expr{
			"coordinates": ee.Constant(polygonCoords(g)),
			"geodesic":    ee.Constant(false),
		}), nil
	case *geom.MultiPolygon:
		coords := make([][][][]float64, 0, g.NumPolygons())
		for i := 0; i < g.NumPolygons(); i++ {
			coords = append(coords, polygonCoords(g.Polygon(i)))
		}
		return ee.Invoke("GeometryConstructors.MultiPolygon", map[string]ee.Expr{
			"coordinates": ee.Constant(coords),
			"geodesic":    ee.Constant(false),
		}), nil
	case nil:
	default:
		return ee.Expr{}, eris.Errorf("lake: %s: unsupported boundary type %T", l.Key, g)
	}

	if l.BoundaryAsset == "" {
		return ee.Expr{}, eris.Errorf("lake: %s has neither a boundary asset nor a boundary file", l.Key)
	}
	table := ee.Invoke("Collection.loadTable", map[string]ee.Expr{
		"tableId": ee.Constant(l.BoundaryAsset),
	})
	first := ee.Invoke("Collection.first", map[string]ee.Expr{"collection": table})
	return ee.Invoke("Feature.geometry", map[string]ee.Expr{"feature": first}), nil
}

// BoundaryGeoJSON encodes the local boundary as a GeoJSON geometry.
func (l Lake) BoundaryGeoJSON() ([]byte, error) {
	if l.boundary == nil {
		return nil, ErrNoBoundary
	}
	data, err := geojson.Marshal(l.boundary)
	if err != nil {
		return nil, eris.Wrapf(err, "lake: encode %s boundary", l.Key)
	}
	return data, nil
}

func polygonCoords(p *geom.Polygon) [][][]float64 {
	rings := make([][][]float64, 0, p.NumLinearRings())
	for _, ring := range p.Coords() {
		pts := make([][]float64, len(ring))
		for i, c := range ring {
			pts[i] = []float64{c.X(), c.Y()}
		}
		rings = append(rings, pts)
	}
	return rings
}
