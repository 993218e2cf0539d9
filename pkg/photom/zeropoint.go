package photom

import(
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/obsworks/photocal/pkg/catalogue"
	"github.com/obsworks/photocal/pkg/ccd"
)

// A Zeropoint converts instrumental magnitudes in one filter to
// catalogue magnitudes:
//   mag = instMag + ZP + ColourTerm * (mag_filter - mag_colourFilter)
// The zero value is the documented "no calibration possible" sentinel.
type Zeropoint struct {
	ZP           float64 // mag
	ZPErr        float64 // stdev of fit residuals over accepted stars
	ColourTerm   float64 // mag/mag
	Filter       string
	ColourFilter string
	NStars       int // stars in the final accepted set
}

// SolveZeropoint calibrates an image against a survey: it extracts
// the star sequence, measures every member, and fits zeropoint plus
// colour term with two clipped passes. On any total failure it
// returns the zero-valued sentinel together with the reason; it never
// fabricates a result from too few stars.
//
// On success ZP, ZPERR, KCOEF and COLOR are written to the header.
func (p *Pipeline)SolveZeropoint(img *ccd.Image, survey, filter, colourFilter string, minMag, maxMag float64) (Zeropoint, error) {
	cfg := p.Settings.Zeropoint

	band := catalogue.CanonicalBand(filter)
	if colourFilter == "" {
		c, err := catalogue.ColourCompanion(band)
		if err != nil {
			return Zeropoint{}, err
		}
		colourFilter = c
	}

	seq, err := p.ExtractSequence(img, survey, minMag, maxMag)
	if err != nil {
		return Zeropoint{}, fmt.Errorf("star sequence for %s: %w", survey, err)
	}

	ras := make([]float64, len(seq.Stars))
	decs := make([]float64, len(seq.Stars))
	for i, s := range seq.Stars {
		ras[i] = s.RA
		decs[i] = s.Dec
	}
	phot, err := p.Measure(img, ras, decs, seq.FWHMArcsec)
	if err != nil {
		return Zeropoint{}, fmt.Errorf("sequence photometry: %w", err)
	}

	// Assemble the fit columns, dropping stars without a usable colour
	// magnitude (catalogues flag those with huge placeholder values)
	// and stars whose instrumental magnitude is undefined.
	zpRaw, colour, weights := []float64{}, []float64{}, []float64{}
	for i, s := range seq.Stars {
		catMag, ok := s.MagIn(band)
		if !ok {
			continue
		}
		colMag, ok := s.MagIn(colourFilter)
		if !ok || math.Abs(colMag) >= cfg.ColourSentinelMag {
			continue
		}
		if math.IsNaN(phot[i].InstMag) || math.IsNaN(phot[i].MagErr) || phot[i].MagErr <= 0 {
			continue
		}

		zpRaw = append(zpRaw, catMag-phot[i].InstMag)
		colour = append(colour, catMag-colMag)

		if catErr, ok := s.ErrIn(band); ok {
			weights = append(weights, 1.0/math.Sqrt(catErr*catErr+phot[i].MagErr*phot[i].MagErr))
		} else {
			weights = append(weights, 1.0/phot[i].MagErr)
		}
	}

	// Pass 1: no colour term. Clip zp_raw about its robust median,
	// then drop extreme colours the linear model cannot be trusted on.
	_, med, std := sigmaClippedStats(zpRaw, cfg.ClipSigma, cfg.MaxClipIters)
	kz, kc, kw := []float64{}, []float64{}, []float64{}
	for i := range zpRaw {
		if std > 0 && math.Abs(zpRaw[i]-med) >= cfg.ClipSigma*std {
			continue
		}
		if math.Abs(colour[i]) >= cfg.ColourCut {
			continue
		}
		kz = append(kz, zpRaw[i])
		kc = append(kc, colour[i])
		kw = append(kw, weights[i])
	}

	if len(kz) < p.Settings.Sequence.MinStars {
		p.Log.Printf("ERROR: only %d stars left for the zeropoint fit\n", len(kz))
		return Zeropoint{}, TooFewStarsError{Count: len(kz), Need: p.Settings.Sequence.MinStars}
	}

	// Pass 2: weighted colour-term fit with one residual clip+refit.
	slope, intercept, keep, err := clippedLinearFit(kc, kz, kw, cfg.ClipSigma, cfg.MaxClipIters)
	if err != nil {
		return Zeropoint{}, fmt.Errorf("zeropoint fit: %v", err)
	}

	finalZP, finalColour := []float64{}, []float64{}
	for i := range kz {
		if keep[i] {
			finalZP = append(finalZP, kz[i])
			finalColour = append(finalColour, kc[i])
		}
	}
	if len(finalZP) == 0 {
		return Zeropoint{}, fmt.Errorf("zeropoint fit: residual clipping rejected every star")
	}

	residuals := make([]float64, len(finalZP))
	for i := range finalZP {
		residuals[i] = finalZP[i] - (intercept + slope*finalColour[i])
	}

	result := Zeropoint{
		ZP:           median(finalZP),
		ZPErr:        stat.StdDev(residuals, nil),
		ColourTerm:   slope,
		Filter:       band,
		ColourFilter: colourFilter,
		NStars:       len(finalZP),
	}
	if len(residuals) < 2 {
		result.ZPErr = 0
	}

	p.Log.Printf("ZP median: %.4f STD: %.4f\n", result.ZP, result.ZPErr)
	p.Log.Printf("ZP intercept: %.4f color coef: %.4f over %d stars\n", intercept, result.ColourTerm, result.NStars)

	img.Header.SetFloat(ccd.KeyZP, result.ZP)
	img.Header.SetFloat(ccd.KeyZPErr, result.ZPErr)
	img.Header.SetFloat(ccd.KeyKCoef, result.ColourTerm)
	img.Header.Set(ccd.KeyColor, fmt.Sprintf("%s-%s", band, colourFilter))

	if p.Plot {
		p.plotZeropoint(finalColour, finalZP, slope, intercept, band, colourFilter)
	}
	return result, nil
}
