package photom

import(
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsworks/photocal/pkg/ccd"
)

func flatGrid(w, h int, v float64) ccd.PixelGrid {
	pg := ccd.NewPixelGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pg.Set(x, y, v)
		}
	}
	return pg
}

func TestApertureSumFlatField(t *testing.T) {
	pg := flatGrid(120, 120, 3.0)

	// On a flat field the sum is the value times the aperture area.
	r := 10.0
	want := 3.0 * math.Pi * r * r
	got := apertureSum(&pg, 60.3, 59.7, r, 5)
	assert.InEpsilon(t, want, got, 0.005)

	// Same inputs, same answer.
	assert.Equal(t, got, apertureSum(&pg, 60.3, 59.7, r, 5))
}

func TestApertureSumSubPixelRefinement(t *testing.T) {
	pg := flatGrid(120, 120, 1.0)
	r := 8.3
	want := math.Pi * r * r

	// Whole-pixel decisions land within a few percent; sub-pixel
	// weighting tightens that by an order of magnitude.
	assert.InEpsilon(t, want, apertureSum(&pg, 60.37, 60.81, r, 1), 0.05)
	assert.InEpsilon(t, want, apertureSum(&pg, 60.37, 60.81, r, 5), 0.02)
	assert.InEpsilon(t, want, apertureSum(&pg, 60.37, 60.81, r, 10), 0.01)
}

func TestApertureSumGaussianStar(t *testing.T) {
	img := newTestImage(200, 200, 0)
	drawStar(img, 100, 100, 50000, seeingSigmaPix())

	// r = 4.7 sigma captures essentially all the flux.
	got := apertureSum(&img.Pixels, 100, 100, 13.33, 5)
	assert.InEpsilon(t, 50000, got, 0.01)
}

func TestAnnulusValues(t *testing.T) {
	pg := flatGrid(120, 120, 7.0)

	vals := annulusValues(&pg, 60, 60, 10, 20)
	wantN := 0
	for y := 0; y < 120; y++ {
		for x := 0; x < 120; x++ {
			d := math.Hypot(float64(x)-60, float64(y)-60)
			if d >= 10 && d <= 20 {
				wantN++
			}
		}
	}
	assert.Len(t, vals, wantN)
	for _, v := range vals {
		assert.Equal(t, 7.0, v)
	}
}

func TestMeasureRecoversInstrumentalMag(t *testing.T) {
	p := newTestPipeline(t)
	img := newTestImage(512, 512, 50)

	counts := starCounts(16.0)
	drawStar(img, 256, 256, counts, seeingSigmaPix())
	ra, dec := img.WCS.PixToSky(256, 256)

	ms, err := p.Measure(img, []float64{ra}, []float64{dec}, testFWHM)
	require.NoError(t, err)
	require.Len(t, ms, 1)

	m := ms[0]
	assert.False(t, m.Flagged)
	assert.InDelta(t, 256.0, m.X, 1e-6)
	assert.InDelta(t, 256.0, m.Y, 1e-6)
	assert.InDelta(t, 50.0, m.AnnulusMedian, 1e-6)
	assert.InEpsilon(t, counts, m.Counts, 0.01)

	wantInstMag := -2.5 * math.Log10(counts/testExpTime)
	assert.InDelta(t, wantInstMag, m.InstMag, 0.01)
	assert.Greater(t, m.MagErr, 0.0)
}

func TestMeasureFlagsNonPositiveFlux(t *testing.T) {
	p := newTestPipeline(t)
	img := newTestImage(512, 512, 100)

	// Dig a hole where the aperture lands so the background-subtracted
	// counts come out negative.
	for y := 240; y < 272; y++ {
		for x := 240; x < 272; x++ {
			img.Pixels.Set(x, y, 0)
		}
	}

	ra, dec := img.WCS.PixToSky(256, 256)
	ms, err := p.Measure(img, []float64{ra}, []float64{dec}, testFWHM)
	require.NoError(t, err)
	require.Len(t, ms, 1)

	assert.True(t, ms[0].Flagged)
	assert.True(t, math.IsNaN(ms[0].InstMag))
	assert.True(t, math.IsNaN(ms[0].MagErr))
}

func TestMeasureRejectsBadExposureTime(t *testing.T) {
	p := newTestPipeline(t)
	img := newTestImage(64, 64, 10)
	img.Header.SetFloat(ccd.KeyExpTime, 0)

	_, err := p.Measure(img, []float64{150}, []float64{20}, testFWHM)
	assert.Error(t, err)
}

func TestMeasureRejectsUnprojectablePosition(t *testing.T) {
	p := newTestPipeline(t)
	img := newTestImage(64, 64, 10)

	// Antipode of the tangent point.
	_, err := p.Measure(img, []float64{330}, []float64{-20}, testFWHM)
	assert.Error(t, err)
}

func TestMeasureLengthMismatch(t *testing.T) {
	p := newTestPipeline(t)
	img := newTestImage(64, 64, 10)

	_, err := p.Measure(img, []float64{150, 151}, []float64{20}, testFWHM)
	assert.Error(t, err)
}

func TestAppendPhotometry(t *testing.T) {
	p := newTestPipeline(t)
	img := newTestImage(64, 64, 10)
	img.Header.SetFloat(ccd.KeyZP, 25.0)
	img.Header.SetFloat(ccd.KeyZPErr, 0.02)
	img.Header.Set(ccd.KeyColor, "r-g")
	img.Header.SetFloat(ccd.KeyKCoef, 0.01)

	m := Measurement{InstMag: -9.0, MagErr: 0.015}
	require.NoError(t, p.AppendPhotometry(img, m))
	require.NoError(t, p.AppendPhotometry(img, m))

	raw, err := os.ReadFile(filepath.Join(p.PhotDir, "testfield.app.phot.txt"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3, "one header row plus two measurements")
	assert.Equal(t, "mjd filter instr_mag zp zperr color kcoef mag magerr", lines[0])

	fields := strings.Fields(lines[1])
	require.Len(t, fields, 9)
	assert.Equal(t, "58849.500", fields[0])
	assert.Equal(t, "rp", fields[1])
	assert.Equal(t, "-9.0000", fields[2])
	assert.Equal(t, "16.0000", fields[7], "calibrated mag applies the zeropoint")
}
