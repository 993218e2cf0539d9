package ccd

// A minimal gnomonic (TAN) world coordinate system, enough to carry
// pixel<->sky both ways for a flat CCD frame. The projection formulas
// are the standard FITS WCS Paper II ones; the pipeline treats this
// transform as a supplied, correct primitive.

import(
	"fmt"
	"math"
)

const degToRad = math.Pi / 180.0

// TanWCS maps pixel coordinates to sky coordinates via a linear CD
// matrix and a tangent-plane projection about (CRVAL1, CRVAL2).
// Pixel coordinates here are zero-based.
type TanWCS struct {
	CRVAL1, CRVAL2 float64    // tangent point, degrees
	CRPIX1, CRPIX2 float64    // reference pixel
	CD             [4]float64 // [cd11, cd12, cd21, cd22], degrees/pixel
}

// NewTanWCS builds a WCS with the tangent point at the given reference
// pixel, a square pixel scale in arcsec/pixel, and a rotation angle in
// degrees. RA increases toward -x, the usual sky orientation.
func NewTanWCS(raDeg, decDeg, crpix1, crpix2, pixScaleArcsec, rotDeg float64) *TanWCS {
	s := pixScaleArcsec / 3600.0
	cosr := math.Cos(rotDeg * degToRad)
	sinr := math.Sin(rotDeg * degToRad)
	return &TanWCS{
		CRVAL1: raDeg, CRVAL2: decDeg,
		CRPIX1: crpix1, CRPIX2: crpix2,
		CD: [4]float64{-s * cosr, s * sinr, s * sinr, s * cosr},
	}
}

// PixelScale returns the mean plate scale, in arcsec/pixel.
func (w *TanWCS)PixelScale() float64 {
	det := w.CD[0]*w.CD[3] - w.CD[1]*w.CD[2]
	return math.Sqrt(math.Abs(det)) * 3600.0
}

// PixToSky projects a pixel position onto the sky. Always defined: a
// TAN projection covers the whole tangent plane.
func (w *TanWCS)PixToSky(x, y float64) (raDeg, decDeg float64) {
	xi := (w.CD[0]*(x-w.CRPIX1) + w.CD[1]*(y-w.CRPIX2)) * degToRad
	eta := (w.CD[2]*(x-w.CRPIX1) + w.CD[3]*(y-w.CRPIX2)) * degToRad

	ra0 := w.CRVAL1 * degToRad
	dec0 := w.CRVAL2 * degToRad

	den := math.Cos(dec0) - eta*math.Sin(dec0)
	ra := ra0 + math.Atan2(xi, den)
	dec := math.Atan2(math.Sin(dec0)+eta*math.Cos(dec0), math.Hypot(xi, den))

	raDeg = math.Mod(ra/degToRad+360.0, 360.0)
	decDeg = dec / degToRad
	return
}

// SkyToPix projects a sky position into pixel coordinates. Returns an
// error for malformed input or positions on the far side of the
// tangent plane; callers must not silently carry NaNs into pixel sums.
func (w *TanWCS)SkyToPix(raDeg, decDeg float64) (x, y float64, err error) {
	if math.IsNaN(raDeg) || math.IsNaN(decDeg) || math.IsInf(raDeg, 0) || math.IsInf(decDeg, 0) {
		return 0, 0, fmt.Errorf("sky position (%f, %f) is not finite", raDeg, decDeg)
	}

	ra := raDeg * degToRad
	dec := decDeg * degToRad
	ra0 := w.CRVAL1 * degToRad
	dec0 := w.CRVAL2 * degToRad

	cosc := math.Sin(dec0)*math.Sin(dec) + math.Cos(dec0)*math.Cos(dec)*math.Cos(ra-ra0)
	if cosc <= 0 {
		return 0, 0, fmt.Errorf("sky position (%f, %f) does not project onto the image plane", raDeg, decDeg)
	}

	xi := math.Cos(dec) * math.Sin(ra-ra0) / cosc / degToRad
	eta := (math.Cos(dec0)*math.Sin(dec) - math.Sin(dec0)*math.Cos(dec)*math.Cos(ra-ra0)) / cosc / degToRad

	det := w.CD[0]*w.CD[3] - w.CD[1]*w.CD[2]
	if det == 0 {
		return 0, 0, fmt.Errorf("degenerate CD matrix")
	}

	x = w.CRPIX1 + (w.CD[3]*xi-w.CD[1]*eta)/det
	y = w.CRPIX2 + (-w.CD[2]*xi+w.CD[0]*eta)/det
	return x, y, nil
}

// Separation returns the angular distance between two sky positions,
// in arcsec, using the haversine form (stable at small separations).
func Separation(ra1, dec1, ra2, dec2 float64) float64 {
	p1 := dec1 * degToRad
	p2 := dec2 * degToRad
	dra := (ra2 - ra1) * degToRad
	ddec := p2 - p1

	a := math.Sin(ddec/2)*math.Sin(ddec/2) +
		math.Cos(p1)*math.Cos(p2)*math.Sin(dra/2)*math.Sin(dra/2)
	return 2 * math.Asin(math.Min(1, math.Sqrt(a))) / degToRad * 3600.0
}
