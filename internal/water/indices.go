// Package water builds the Earth Engine expressions that classify water
// pixels in Sentinel-2 imagery and measure the water-surface area of a lake.
package water

import (
	ee "github.com/sells-group/lakewatch/pkg/earthengine"
)

// Band names of the spectral indices added by AddIndices.
const (
	BandNDWI  = "NDWI"
	BandMNDWI = "mNDWI"
	BandNDVI  = "NDVI"
	BandEVI   = "EVI"
	BandWater = "water"
)

// Sentinel-2 bands used by the indices.
const (
	bandBlue  = "B2"
	bandGreen = "B3"
	bandRed   = "B4"
	bandNIR   = "B8"
	bandSWIR1 = "B11"
)

// EVIThreshold is the vegetation cutoff for water pixels.
const EVIThreshold = 0.1

// NDWI is the normalized difference of green and near infrared.
func NDWI(image ee.Expr) ee.Expr {
	return rename(normalizedDifference(image, bandGreen, bandNIR), BandNDWI)
}

// MNDWI is the normalized difference of green and shortwave infrared.
func MNDWI(image ee.Expr) ee.Expr {
	return rename(normalizedDifference(image, bandGreen, bandSWIR1), BandMNDWI)
}

// NDVI is the normalized difference of near infrared and red.
func NDVI(image ee.Expr) ee.Expr {
	return rename(normalizedDifference(image, bandNIR, bandRed), BandNDVI)
}

// EVI computes 2.5 * (NIR - RED) / (NIR + 6*RED - 7.5*BLUE + 1) on the raw
// surface reflectance bands.
func EVI(image ee.Expr) ee.Expr {
	nir := selectBand(image, bandNIR)
	red := selectBand(image, bandRed)
	blue := selectBand(image, bandBlue)

	numerator := binary("multiply", constantImage(2.5), binary("subtract", nir, red))
	denominator := binary("add",
		binary("subtract",
			binary("add", nir, binary("multiply", constantImage(6), red)),
			binary("multiply", constantImage(7.5), blue),
		),
		constantImage(1),
	)
	return rename(binary("divide", numerator, denominator), BandEVI)
}

// AddIndices appends the NDWI, mNDWI, NDVI and EVI bands to image.
func AddIndices(image ee.Expr) ee.Expr {
	out := image
	for _, band := range []ee.Expr{NDWI(image), MNDWI(image), NDVI(image), EVI(image)} {
		out = ee.Invoke("Image.addBands", map[string]ee.Expr{
			"dstImg": out,
			"srcImg": band,
		})
	}
	return out
}

// Mask classifies water pixels of an image carrying the index bands:
// mNDWI > EVI and mNDWI > NDVI and EVI < 0.1. The result is a single
// band named "water" holding 1 for water and 0 otherwise.
func Mask(image ee.Expr) ee.Expr {
	mndwi := selectBand(image, BandMNDWI)
	ndvi := selectBand(image, BandNDVI)
	evi := selectBand(image, BandEVI)

	water := binary("and",
		binary("and", binary("gt", mndwi, evi), binary("gt", mndwi, ndvi)),
		binary("lt", evi, constantImage(EVIThreshold)),
	)
	return rename(water, BandWater)
}

func normalizedDifference(image ee.Expr, a, b string) ee.Expr {
	return ee.Invoke("Image.normalizedDifference", map[string]ee.Expr{
		"input":     image,
		"bandNames": ee.Strings(a, b),
	})
}

func rename(image ee.Expr, name string) ee.Expr {
	return ee.Invoke("Image.rename", map[string]ee.Expr{
		"input": image,
		"names": ee.Strings(name),
	})
}

func selectBand(image ee.Expr, band string) ee.Expr {
	return ee.Invoke("Image.select", map[string]ee.Expr{
		"input":         image,
		"bandSelectors": ee.Strings(band),
	})
}

func constantImage(v float64) ee.Expr {
	return ee.Invoke("Image.constant", map[string]ee.Expr{"value": ee.Constant(v)})
}

// binary applies a per-pixel Image operator such as "add" or "gt".
func binary(op string, a, b ee.Expr) ee.Expr {
	return ee.Invoke("Image."+op, map[string]ee.Expr{
		"image1": a,
		"image2": b,
	})
}
