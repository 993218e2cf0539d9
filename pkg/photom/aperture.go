package photom

import(
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/obsworks/photocal/pkg/ccd"
)

// A Measurement is one aperture photometry result at a requested sky
// position. Flagged marks a non-positive background-subtracted flux,
// for which no magnitude is defined; InstMag is NaN in that case.
type Measurement struct {
	RA, Dec       float64
	X, Y          float64 // pixel position of the aperture center
	ApertureSum   float64 // sub-pixel weighted counts inside the aperture
	AnnulusMedian float64 // clipped per-pixel background level
	AnnulusStd    float64
	Background    float64 // annulus median scaled to the aperture area
	Counts        float64 // ApertureSum - Background
	Flux          float64 // gain * Counts / exptime
	InstMag       float64
	FluxErr       float64
	MagErr        float64
	Flagged       bool
}

// Measure runs aperture photometry at each sky position: a circular
// aperture of radius FWHMScale*fwhm with sub-pixel boundary
// weighting, and a surrounding annulus for the local background,
// sigma-clipped. A position that cannot be projected into pixels
// aborts the whole call - there is nothing meaningful to sum.
func (p *Pipeline)Measure(img *ccd.Image, ras, decs []float64, fwhmArcsec float64) ([]Measurement, error) {
	if len(ras) != len(decs) {
		return nil, fmt.Errorf("measure: %d RAs vs %d Decs", len(ras), len(decs))
	}

	pixScale, err := img.PixelScale()
	if err != nil {
		return nil, err
	}

	gain := img.Header.FloatOr(ccd.KeyGain, 1.0)
	expTime := img.Header.FloatOr(ccd.KeyExpTime, 1.0)
	if expTime <= 0 {
		return nil, fmt.Errorf("image %s %.3f is not a usable exposure time", ccd.KeyExpTime, expTime)
	}

	cfg := p.Settings.Aperture
	apRad := cfg.FWHMScale * fwhmArcsec / pixScale // pixels
	rIn := cfg.InnerScale * apRad
	rOut := cfg.OuterScale * apRad
	apArea := math.Pi * apRad * apRad

	out := make([]Measurement, 0, len(ras))
	for i := range ras {
		x, y, err := img.WCS.SkyToPix(ras[i], decs[i])
		if err != nil {
			p.Log.Printf("ERROR: the RA, DEC (%f, %f) could not be converted into pixels using the WCS: %v\n", ras[i], decs[i], err)
			return nil, fmt.Errorf("project (%f, %f): %v", ras[i], decs[i], err)
		}

		m := Measurement{RA: ras[i], Dec: decs[i], X: x, Y: y}
		m.ApertureSum = apertureSum(&img.Pixels, x, y, apRad, cfg.SubPixels)

		annulus := annulusValues(&img.Pixels, x, y, rIn, rOut)
		_, m.AnnulusMedian, m.AnnulusStd = sigmaClippedStats(annulus, p.Settings.Zeropoint.ClipSigma, p.Settings.Zeropoint.MaxClipIters)
		if math.IsNaN(m.AnnulusMedian) {
			m.AnnulusMedian, m.AnnulusStd = 0, 0
		}

		m.Background = m.AnnulusMedian * apArea
		m.Counts = m.ApertureSum - m.Background
		m.Flux = gain * m.Counts / expTime

		if m.Flux > 0 {
			m.InstMag = -2.5 * math.Log10(m.Flux)
		} else {
			// Undefined magnitude is a data condition, not a crash.
			m.InstMag = math.NaN()
			m.Flagged = true
		}

		// Poisson term from the source plus the background term over
		// the aperture area.
		m.FluxErr = math.Sqrt(math.Max(m.Flux, 0) + apArea*m.AnnulusStd*m.AnnulusStd)

		// Propagate to magnitudes by brightening the flux one noise
		// step and differencing; at low S/N this keeps the asymmetry a
		// linearized formula would flatten out.
		fluxUp := gain * (m.Counts + m.FluxErr) / expTime
		if fluxUp > 0 && !m.Flagged {
			m.MagErr = math.Abs(-2.5*math.Log10(fluxUp) - m.InstMag)
		} else {
			m.MagErr = math.NaN()
		}

		out = append(out, m)
	}
	return out, nil
}

// apertureSum adds up the counts inside a circle of radius r centered
// at (cx, cy). Boundary pixels are split into an n x n sub-grid and
// contribute their covered fraction, so the effective aperture area
// does not jump in whole-pixel steps.
func apertureSum(pg *ccd.PixelGrid, cx, cy, r float64, n int) float64 {
	x0 := int(math.Floor(cx - r - 1))
	x1 := int(math.Ceil(cx + r + 1))
	y0 := int(math.Floor(cy - r - 1))
	y1 := int(math.Ceil(cy + r + 1))

	// Any pixel whose center is within halfDiag of the rim straddles it.
	halfDiag := math.Sqrt2 / 2.0

	sum := 0.0
	for y := y0; y <= y1; y++ {
		if y < 0 || y >= pg.Dy() {
			continue
		}
		for x := x0; x <= x1; x++ {
			if x < 0 || x >= pg.Dx() {
				continue
			}

			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			switch {
			case d <= r-halfDiag:
				sum += pg.Get(x, y)
			case d >= r+halfDiag:
				// fully outside
			default:
				sum += pg.Get(x, y) * coveredFraction(float64(x), float64(y), cx, cy, r, n)
			}
		}
	}
	return sum
}

// coveredFraction samples an n x n sub-grid across the unit pixel
// centered at (px, py) and counts the sub-centers inside the circle.
func coveredFraction(px, py, cx, cy, r float64, n int) float64 {
	inside := 0
	step := 1.0 / float64(n)
	for j := 0; j < n; j++ {
		sy := py - 0.5 + (float64(j)+0.5)*step
		for i := 0; i < n; i++ {
			sx := px - 0.5 + (float64(i)+0.5)*step
			if math.Hypot(sx-cx, sy-cy) <= r {
				inside++
			}
		}
	}
	return float64(inside) / float64(n*n)
}

// annulusValues collects the pixel values whose centers fall inside
// the background ring [rIn, rOut] around (cx, cy).
func annulusValues(pg *ccd.PixelGrid, cx, cy, rIn, rOut float64) []float64 {
	x0 := int(math.Floor(cx - rOut - 1))
	x1 := int(math.Ceil(cx + rOut + 1))
	y0 := int(math.Floor(cy - rOut - 1))
	y1 := int(math.Ceil(cy + rOut + 1))

	vals := []float64{}
	for y := y0; y <= y1; y++ {
		if y < 0 || y >= pg.Dy() {
			continue
		}
		for x := x0; x <= x1; x++ {
			if x < 0 || x >= pg.Dx() {
				continue
			}
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			if d >= rIn && d <= rOut {
				vals = append(vals, pg.Get(x, y))
			}
		}
	}
	return vals
}

// AppendPhotometry appends one measurement to the per-object
// photometry log, creating it with a header row on first use. The
// calibrated magnitude column applies the header zeropoint.
func (p *Pipeline)AppendPhotometry(img *ccd.Image, m Measurement) error {
	object := img.Header.StringOr(ccd.KeyObject, "unknown")
	path := filepath.Join(p.PhotDir, object+".app.phot.txt")

	mjd, err := img.Header.MJD()
	if err != nil {
		p.Log.Printf("No usable %s; logging photometry with mjd=0: %v\n", ccd.KeyDateObs, err)
		mjd = 0
	}

	filter := img.Header.StringOr(ccd.KeyFilter, "?")
	zp := img.Header.FloatOr(ccd.KeyZP, 0)
	zpErr := img.Header.FloatOr(ccd.KeyZPErr, 0)
	colour := img.Header.StringOr(ccd.KeyColor, "none")
	kCoef := img.Header.FloatOr(ccd.KeyKCoef, 0)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		p.Log.Printf("Creating aperture photometry out file as %s\n", path)
		if err := os.WriteFile(path, []byte("mjd filter instr_mag zp zperr color kcoef mag magerr\n"), 0644); err != nil {
			return fmt.Errorf("open+w '%s': %v", path, err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open+a '%s': %v", path, err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%.3f %s %.4f %.4f %.4f %s %.4f %.4f %.4f\n",
		mjd, filter, m.InstMag, zp, zpErr, colour, kCoef, m.InstMag+zp, m.MagErr)
	return err
}
