package water

import (
	"time"

	"github.com/sells-group/lakewatch/internal/model"
	ee "github.com/sells-group/lakewatch/pkg/earthengine"
)

// Defaults for the Sentinel-2 surface reflectance composites.
const (
	DefaultCollection = "COPERNICUS/S2_SR_HARMONIZED"
	DefaultCloudMax   = 20
	DefaultScale      = 100
	DefaultMaxPixels  = 1e13
)

const mappingVar = "_MAPPING_VAR_0_0"

// Params controls how composites are built and reduced.
type Params struct {
	Collection string
	CloudMax   float64 // maximum CLOUDY_PIXEL_PERCENTAGE, exclusive
	Scale      float64 // reduction scale in meters
	MaxPixels  float64
}

// DefaultParams returns the parameters used for monthly area analysis.
func DefaultParams() Params {
	return Params{
		Collection: DefaultCollection,
		CloudMax:   DefaultCloudMax,
		Scale:      DefaultScale,
		MaxPixels:  DefaultMaxPixels,
	}
}

func (p Params) withDefaults() Params {
	def := DefaultParams()
	if p.Collection == "" {
		p.Collection = def.Collection
	}
	if p.CloudMax <= 0 {
		p.CloudMax = def.CloudMax
	}
	if p.Scale <= 0 {
		p.Scale = def.Scale
	}
	if p.MaxPixels <= 0 {
		p.MaxPixels = def.MaxPixels
	}
	return p
}

// YearMonths returns the twelve months of year.
func YearMonths(year int) []model.YearMonth {
	return model.YearRange{Start: year, End: year}.Months()
}

// Collection filters the image collection to the geometry, the [from, to)
// date window and the cloud threshold.
func Collection(geometry ee.Expr, from, to time.Time, p Params) ee.Expr {
	p = p.withDefaults()

	coll := ee.Invoke("ImageCollection.load", map[string]ee.Expr{
		"id": ee.Constant(p.Collection),
	})
	coll = filter(coll, ee.Invoke("Filter.intersects", map[string]ee.Expr{
		"leftField":  ee.Constant(".all"),
		"rightValue": geometry,
	}))
	coll = filter(coll, ee.Invoke("Filter.dateRangeContains", map[string]ee.Expr{
		"leftValue": ee.Invoke("DateRange", map[string]ee.Expr{
			"start": date(from),
			"end":   date(to),
		}),
		"rightField": ee.Constant("system:time_start"),
	}))
	return filter(coll, ee.Invoke("Filter.lessThan", map[string]ee.Expr{
		"leftField":  ee.Constant("CLOUDY_PIXEL_PERCENTAGE"),
		"rightValue": ee.Constant(p.CloudMax),
	}))
}

// Composite is the per-pixel median of the filtered collection with the
// index bands added to every image.
func Composite(geometry ee.Expr, from, to time.Time, p Params) ee.Expr {
	return median(Collection(geometry, from, to, p))
}

// MonthlyArea evaluates to the water area in square meters inside geometry
// for one month, or null when no image passed the filters.
func MonthlyArea(geometry ee.Expr, m model.YearMonth, p Params) ee.Expr {
	p = p.withDefaults()
	coll := Collection(geometry, m.Start(), m.End(), p)
	area := Area(Mask(median(coll)), geometry, p)

	return ee.Invoke("Algorithms.If", map[string]ee.Expr{
		"condition": ee.Invoke("Collection.size", map[string]ee.Expr{"collection": coll}),
		"trueCase":  area,
		"falseCase": ee.Null(),
	})
}

// Area sums the pixel area of a water mask over geometry.
func Area(mask, geometry ee.Expr, p Params) ee.Expr {
	p = p.withDefaults()
	weighted := binary("multiply", mask, ee.Invoke("Image.pixelArea", nil))
	stats := ee.Invoke("Image.reduceRegion", map[string]ee.Expr{
		"image":     weighted,
		"reducer":   ee.Invoke("Reducer.sum", nil),
		"geometry":  geometry,
		"scale":     ee.Constant(p.Scale),
		"maxPixels": ee.Constant(p.MaxPixels),
	})
	return ee.Invoke("Dictionary.get", map[string]ee.Expr{
		"dictionary": stats,
		"key":        ee.Constant(BandWater),
	})
}

// Areas evaluates to an array with the water area of each month, in order.
// Months without imagery evaluate to null.
func Areas(geometry ee.Expr, months []model.YearMonth, p Params) ee.Expr {
	items := make([]ee.Expr, len(months))
	for i, m := range months {
		items[i] = MonthlyArea(geometry, m, p)
	}
	return ee.Array(items...)
}

// LatestMask is the water mask of the composite over the lookback months
// before now, clipped to geometry. It feeds the map overlay.
func LatestMask(geometry ee.Expr, now time.Time, lookbackMonths int, p Params) ee.Expr {
	if lookbackMonths <= 0 {
		lookbackMonths = 3
	}
	from := now.AddDate(0, -lookbackMonths, 0)
	return ee.Invoke("Image.clip", map[string]ee.Expr{
		"input":    Mask(Composite(geometry, from, now, p)),
		"geometry": geometry,
	})
}

func filter(coll, f ee.Expr) ee.Expr {
	return ee.Invoke("Collection.filter", map[string]ee.Expr{
		"collection": coll,
		"filter":     f,
	})
}

func median(coll ee.Expr) ee.Expr {
	withIndices := ee.Invoke("Collection.map", map[string]ee.Expr{
		"collection":    coll,
		"baseAlgorithm": ee.Func([]string{mappingVar}, AddIndices(ee.ArgRef(mappingVar))),
	})
	return ee.Invoke("reduce.median", map[string]ee.Expr{"collection": withIndices})
}

func date(t time.Time) ee.Expr {
	return ee.Invoke("Date", map[string]ee.Expr{"value": ee.Constant(t.UnixMilli())})
}
