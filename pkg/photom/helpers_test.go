package photom

// Shared fixtures: a synthetic frame with a known WCS, Gaussian star
// injection, and a canned catalogue. All the numeric expectations in
// the tests derive from these few numbers: 0.3"/pixel, gain 1,
// 60 s exposures, and 2" seeing.

import(
	"io"
	"log"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obsworks/photocal/pkg/catalogue"
	"github.com/obsworks/photocal/pkg/ccd"
)

const(
	testPixScale = 0.3  // arcsec/pixel
	testExpTime  = 60.0 // seconds
	testFWHM     = 2.0  // arcsec
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := NewPipeline(t.TempDir(), testLogger())
	require.NoError(t, err)
	return p
}

// newTestImage builds a flat frame at the given background level, with
// the tangent point at the frame center.
func newTestImage(w, h int, background float64) *ccd.Image {
	pg := ccd.NewPixelGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pg.Set(x, y, background)
		}
	}

	hdr := ccd.Header{}
	hdr.Set(ccd.KeyFilter, "rp")
	hdr.Set(ccd.KeyObject, "testfield")
	hdr.Set(ccd.KeyDateObs, "2020-01-01T12:00:00")
	hdr.SetFloat(ccd.KeyPixScale, testPixScale)
	hdr.SetFloat(ccd.KeyGain, 1.0)
	hdr.SetFloat(ccd.KeyExpTime, testExpTime)
	hdr.SetFloat(ccd.KeyRA, 150.0)
	hdr.SetFloat(ccd.KeyDec, 20.0)

	return &ccd.Image{
		Pixels: pg,
		Header: hdr,
		WCS:    ccd.NewTanWCS(150.0, 20.0, float64(w)/2, float64(h)/2, testPixScale, 0),
	}
}

// drawStar adds a circular Gaussian with the given total counts and
// width (pixels) on top of whatever is already in the frame.
func drawStar(img *ccd.Image, cx, cy, totalCounts, sigma float64) {
	peak := totalCounts / (2 * math.Pi * sigma * sigma)
	rad := int(math.Ceil(8 * sigma))

	for y := int(cy) - rad; y <= int(cy)+rad; y++ {
		if y < 0 || y >= img.Pixels.Dy() {
			continue
		}
		for x := int(cx) - rad; x <= int(cx)+rad; x++ {
			if x < 0 || x >= img.Pixels.Dx() {
				continue
			}
			dx := float64(x) - cx
			dy := float64(y) - cy
			v := peak * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
			img.Pixels.Set(x, y, img.Pixels.Get(x, y)+v)
		}
	}
}

// seeingSigmaPix is the Gaussian width matching the nominal test seeing.
func seeingSigmaPix() float64 {
	return testFWHM / testPixScale / fwhmFactor
}

// starCounts returns the total counts putting a star at catalogue
// magnitude mag for a true zeropoint of 25: with gain 1,
// flux = counts/exptime and mag = -2.5 log10(flux) + 25.
func starCounts(mag float64) float64 {
	return testExpTime * math.Pow(10, -0.4*(mag-25.0))
}

// fakeQuerier is a canned catalogue; it records how often it is hit so
// tests can prove the on-disk cache short-circuits repeat queries.
type fakeQuerier struct {
	stars []catalogue.Star
	err   error
	calls int
}

func (f *fakeQuerier)Query(survey string, raDeg, decDeg, radiusDeg, minMag, maxMag float64) ([]catalogue.Star, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.stars, nil
}

// injectField draws nStars well-separated stars of descending
// brightness and returns the matching catalogue. Star j has r = 15+j/2
// and g = r + 0.1*(j+1), so the colours vary but stay inside the
// colour cut.
func injectField(img *ccd.Image, nStars int) []catalogue.Star {
	positions := [][2]float64{
		{100, 100}, {200, 150}, {300, 300}, {150, 350}, {350, 120},
		{420, 300}, {250, 430},
	}
	if nStars > len(positions) {
		panic("injectField: not enough canned positions")
	}

	stars := make([]catalogue.Star, nStars)
	for j := 0; j < nStars; j++ {
		x, y := positions[j][0], positions[j][1]
		rMag := 15.0 + float64(j)*0.5
		drawStar(img, x, y, starCounts(rMag), seeingSigmaPix())

		ra, dec := img.WCS.PixToSky(x, y)
		stars[j] = catalogue.Star{
			ID: int64(j + 1), RA: ra, Dec: dec,
			Mag: map[string]float64{"r": rMag, "g": rMag + 0.1*float64(j+1)},
			Err: map[string]float64{"r": 0.01},
		}
	}
	return stars
}
