package ccd

import(
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTanWCSRoundTrip(t *testing.T) {
	w := NewTanWCS(150.0, 20.0, 512, 512, 0.3, 0)

	for _, pix := range [][2]float64{{512, 512}, {0, 0}, {1024, 1024}, {100, 900}, {717.3, 41.9}} {
		ra, dec := w.PixToSky(pix[0], pix[1])
		x, y, err := w.SkyToPix(ra, dec)
		require.NoError(t, err)
		assert.InDelta(t, pix[0], x, 1e-6, "x for pixel %v", pix)
		assert.InDelta(t, pix[1], y, 1e-6, "y for pixel %v", pix)
	}
}

func TestTanWCSRotatedRoundTrip(t *testing.T) {
	w := NewTanWCS(31.25, -45.0, 256, 256, 0.47, 33.0)

	ra, dec := w.PixToSky(100, 400)
	x, y, err := w.SkyToPix(ra, dec)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, x, 1e-6)
	assert.InDelta(t, 400.0, y, 1e-6)
}

func TestTanWCSPixelScale(t *testing.T) {
	w := NewTanWCS(150.0, 20.0, 512, 512, 0.3, 12.0)
	assert.InDelta(t, 0.3, w.PixelScale(), 1e-9)
}

func TestTanWCSScaleMatchesSky(t *testing.T) {
	// Two pixels 10 apart should be 10*scale arcsec apart on the sky.
	w := NewTanWCS(150.0, 20.0, 512, 512, 0.3, 0)
	ra1, dec1 := w.PixToSky(512, 512)
	ra2, dec2 := w.PixToSky(512, 522)
	assert.InDelta(t, 3.0, Separation(ra1, dec1, ra2, dec2), 0.001)
}

func TestSkyToPixRejectsBadInput(t *testing.T) {
	w := NewTanWCS(150.0, 20.0, 512, 512, 0.3, 0)

	_, _, err := w.SkyToPix(math.NaN(), 20.0)
	assert.Error(t, err)

	_, _, err = w.SkyToPix(150.0, math.Inf(1))
	assert.Error(t, err)

	// Antipode of the tangent point is behind the image plane.
	_, _, err = w.SkyToPix(330.0, -20.0)
	assert.Error(t, err)
}

func TestSeparation(t *testing.T) {
	// 1 degree of declination is 3600 arcsec anywhere.
	assert.InDelta(t, 3600.0, Separation(10, 20, 10, 21), 1e-6)

	// RA separations shrink with cos(dec).
	sep := Separation(10, 60, 11, 60)
	assert.InDelta(t, 3600.0*math.Cos(60*math.Pi/180), sep, 0.5)

	assert.InDelta(t, 0.0, Separation(123.4, -56.7, 123.4, -56.7), 1e-9)
}
