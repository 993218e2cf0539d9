package photom

import(
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/obsworks/photocal/pkg/catalogue"
	"github.com/obsworks/photocal/pkg/ccd"
)

// ErrNoStarsLeft means the field/isolation/magnitude masks rejected
// every catalogue star before any PSF fitting happened.
var ErrNoStarsLeft = errors.New("no good stars left with current conditions")

// TooFewStarsError reports how many stars survived the PSF quality
// cut, for callers (and log readers) deciding what to do about it.
type TooFewStarsError struct {
	Count int
	Need  int
}

func (e TooFewStarsError)Error() string {
	return fmt.Sprintf("too few stars with a valid fwhm for estimation: %d of %d needed", e.Count, e.Need)
}

type MissingBandError struct {
	Band string
}

func (e MissingBandError)Error() string {
	return fmt.Sprintf("catalogue result carries no '%s' magnitudes", e.Band)
}

// A SequenceStar is a catalogue reference star that survived
// projection, masking and PSF fitting on this image.
type SequenceStar struct {
	catalogue.Star
	X, Y float64 // pixel position from the WCS projection
	Fit  ProfileFit
}

// A StarSequence is the calibration star set for one image, plus the
// field's representative FWHM (the median over members, arcsec).
type StarSequence struct {
	Stars      []SequenceStar
	Band       string
	FWHMArcsec float64
}

// ExtractSequence selects the reference stars usable for calibrating
// an image against a survey: it queries (or re-reads) the catalogue
// for the field, projects the stars to pixels, masks for
// in-field/isolated/right-magnitude, PSF-fits each survivor, and
// applies the fit quality cut. The representative FWHM is written to
// the image header, and the sequence is persisted for reuse.
func (p *Pipeline)ExtractSequence(img *ccd.Image, survey string, minMag, maxMag float64) (*StarSequence, error) {
	cfg := p.Settings.Sequence

	band := catalogue.CanonicalBand(img.Header.StringOr(ccd.KeyFilter, ""))
	if band == "" {
		return nil, fmt.Errorf("image has no %s header key", ccd.KeyFilter)
	}

	pixScale, err := img.PixelScale()
	if err != nil {
		return nil, err
	}

	w := img.Pixels.Dx()
	h := img.Pixels.Dy()
	raC, decC := img.WCS.PixToSky(float64(w)/2, float64(h)/2)
	_, decCorner := img.WCS.PixToSky(float64(w), float64(h))

	// A little over twice the center-to-corner declination span covers
	// the whole frame; beyond half a degree the services balk anyway.
	sr := 2.1 * math.Abs(decC-decCorner)
	sr = math.Min(sr, cfg.MaxSearchRadiusDeg)
	p.Log.Printf("Field center: (%.4f %.4f) and FoV: %.4f [arcmin]\n", raC, decC, sr*60)

	key := catalogue.CacheKey{Survey: survey, RA: raC, Dec: decC, Radius: sr, MinMag: minMag, MaxMag: maxMag}

	stars, err := catalogue.LoadStars(key.QueryPath(p.CacheDir))
	if err == nil {
		p.Log.Printf("File %s already exists. Loading it.\n", key.QueryPath(p.CacheDir))
	} else {
		if !os.IsNotExist(err) {
			p.Log.Printf("Ignoring unreadable cache %s: %v\n", key.QueryPath(p.CacheDir), err)
		}
		stars, err = p.Catalogue.Query(survey, raC, decC, sr/1.8, minMag, maxMag)
		if err != nil {
			p.Log.Printf("ERROR querying survey %s: %v\n", survey, err)
			return nil, fmt.Errorf("catalogue query %s: %w", survey, err)
		}
		if err := catalogue.StoreStars(key.QueryPath(p.CacheDir), stars); err != nil {
			p.Log.Printf("Could not cache query result: %v\n", err)
		}
	}
	p.Log.Printf("Catalogue has %d entries\n", len(stars))

	hasBand := false
	for _, s := range stars {
		if _, ok := s.MagIn(band); ok {
			hasBand = true
			break
		}
	}
	if !hasBand {
		p.Log.Printf("ERROR: no magnitudes for filter %s in the %s result\n", band, survey)
		return nil, MissingBandError{Band: band}
	}

	candidates := p.maskCandidates(img, stars, band, pixScale, minMag, maxMag)
	if len(candidates) == 0 {
		p.Log.Printf("No good stars left with current conditions.\n")
		return nil, ErrNoStarsLeft
	}
	p.Log.Printf("Catalog length after masking: %d\n", len(candidates))

	// Fit each candidate's profile; a failed fit is a skipped star.
	hrad := int(math.Ceil(math.Ceil(p.Settings.PSF.CutoutRadiusArcsec/pixScale) / 2.0))
	seq := &StarSequence{Band: band}
	for _, c := range candidates {
		cutout, ok := img.Pixels.Cutout(int(c.X), int(c.Y), hrad)
		if !ok {
			c.Fit = failedFit()
		} else {
			c.Fit = FitProfile(cutout, pixScale, p.Settings.PSF)
		}

		if c.Fit.Detected && c.Fit.Ellipticity > cfg.MinEllipticity &&
			!math.IsNaN(c.Fit.FWHMArcsec) && c.Fit.FWHMArcsec < cfg.MaxFWHMArcsec {
			seq.Stars = append(seq.Stars, c)
		}
	}

	p.Log.Printf("Left %d stars with valid fwhm.\n", len(seq.Stars))
	if len(seq.Stars) < cfg.MinStars {
		p.Log.Printf("ERROR with FWHM!! Too few points for a valid estimation (%d points)\n", len(seq.Stars))
		return nil, TooFewStarsError{Count: len(seq.Stars), Need: cfg.MinStars}
	}

	fwhms := make([]float64, len(seq.Stars))
	for i, s := range seq.Stars {
		fwhms[i] = s.Fit.FWHMArcsec
	}
	seq.FWHMArcsec = median(fwhms)
	img.Header.SetFloat(ccd.KeyFWHM, seq.FWHMArcsec)
	p.Log.Printf("Average FWHM %.1f pixels, %.3f arcsec\n", seq.FWHMArcsec/pixScale, seq.FWHMArcsec)

	rows := make([]catalogue.SequenceRow, len(seq.Stars))
	for i, s := range seq.Stars {
		rows[i] = catalogue.SequenceRow{X: s.X, Y: s.Y, FWHM: s.Fit.FWHMArcsec, Star: s.Star}
	}
	if err := catalogue.StoreSequence(key.SequencePath(p.CacheDir), rows); err != nil {
		p.Log.Printf("Could not persist detected sequence: %v\n", err)
	}

	if p.Plot {
		p.plotSequence(img, seq)
	}
	return seq, nil
}

// maskCandidates applies the three selection masks - in-field with a
// border margin, isolated on the sky, and inside the magnitude range.
// The masks are independent; their order does not matter.
func (p *Pipeline)maskCandidates(img *ccd.Image, stars []catalogue.Star, band string, pixScale, minMag, maxMag float64) []SequenceStar {
	cfg := p.Settings.Sequence
	margin := math.Ceil(cfg.BorderMarginArcsec / pixScale)

	out := []SequenceStar{}
	for i, s := range stars {
		x, y, err := img.WCS.SkyToPix(s.RA, s.Dec)
		if err != nil || !img.InBounds(x, y, margin) {
			continue
		}

		mag, ok := s.MagIn(band)
		if !ok || mag <= minMag || mag >= maxMag {
			continue
		}

		// Nearest neighbour over the whole query result, self excluded.
		nearest := math.MaxFloat64
		for j, o := range stars {
			if j == i {
				continue
			}
			if sep := ccd.Separation(s.RA, s.Dec, o.RA, o.Dec); sep < nearest {
				nearest = sep
			}
		}
		if nearest <= cfg.IsolationArcsec {
			continue
		}

		out = append(out, SequenceStar{Star: s, X: x, Y: y})
	}
	return out
}
