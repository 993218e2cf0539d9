package photom

import(
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

/* Example settings file ...

psf:
  defaultfwhmarcsec: 2.0
  cutoutradiusarcsec: 10
  maxfitevals: 5000

sequence:
  isolationarcsec: 10
  minellipticity: 0.6

zeropoint:
  clipsigma: 3.0
  colourcut: 0.8

*/

// PSFSettings controls cutout extraction and the 2D Gaussian fit.
type PSFSettings struct {
	DefaultFWHMArcsec	float64	// seed width when nothing better is known
	CutoutRadiusArcsec	float64	// angular radius of the fit cutout
	SeedAmplitude		float64	// floor for the data-derived amplitude seed
	MaxFitEvals		int	// optimizer budget; past this the star is "not detected"
	MinAmplitude		float64
	MinSignalToBackground	float64
	AxisRatioMin		float64	// fwhm_y/fwhm_x acceptance window
	AxisRatioMax		float64
}

// SequenceSettings controls reference-star selection. The defaults
// are empirical values tuned for ~arcsec seeing on a 0.3-0.5"/pixel
// instrument; override them in the settings file for anything else.
type SequenceSettings struct {
	BorderMarginArcsec	float64	// reject stars this close to the frame edge
	IsolationArcsec		float64	// nearest-neighbour separation floor
	MinEllipticity		float64	// minor/major axis ratio floor
	MaxFWHMArcsec		float64	// sanity cap against cosmic rays / saturation
	MinStars		int
	MaxSearchRadiusDeg	float64
}

// ApertureSettings controls aperture/annulus photometry.
type ApertureSettings struct {
	FWHMScale	float64	// aperture radius = FWHMScale * fwhm
	InnerScale	float64	// annulus inner radius, in aperture radii
	OuterScale	float64	// annulus outer radius, in aperture radii
	SubPixels	int	// sub-grid per boundary pixel
}

// ZeropointSettings controls the robust zeropoint fit.
type ZeropointSettings struct {
	ClipSigma		float64
	MaxClipIters		int
	ColourCut		float64	// drop |colour| beyond this, mag
	ColourSentinelMag	float64	// catalogue placeholder for "no magnitude"
}

type Settings struct {
	PSF		PSFSettings
	Sequence	SequenceSettings
	Aperture	ApertureSettings
	Zeropoint	ZeropointSettings
}

func NewSettings() Settings {
	return Settings{
		PSF: PSFSettings{
			DefaultFWHMArcsec:	2.0,
			CutoutRadiusArcsec:	10.0,
			SeedAmplitude:		100.0,
			MaxFitEvals:		5000,
			MinAmplitude:		1.0,
			MinSignalToBackground:	0.2,
			AxisRatioMin:		0.5,
			AxisRatioMax:		2.0,
		},
		Sequence: SequenceSettings{
			BorderMarginArcsec:	15.0,
			IsolationArcsec:	10.0,
			MinEllipticity:		0.6,
			MaxFWHMArcsec:		10.0,
			MinStars:		3,
			MaxSearchRadiusDeg:	0.5,
		},
		Aperture: ApertureSettings{
			FWHMScale:	2.0,
			InnerScale:	2.0,
			OuterScale:	4.0,
			SubPixels:	5,
		},
		Zeropoint: ZeropointSettings{
			ClipSigma:		3.0,
			MaxClipIters:		5,
			ColourCut:		0.8,
			ColourSentinelMag:	30.0,
		},
	}
}

func LoadSettings(filename string) (Settings, error) {
	s := NewSettings()

	contents, err := os.ReadFile(filename)
	if err != nil {
		return s, fmt.Errorf("settings read '%s': %v", filename, err)
	}
	if err := yaml.Unmarshal(contents, &s); err != nil {
		return s, fmt.Errorf("settings parse '%s': %v", filename, err)
	}

	return s, s.Finalize()
}

// Finalize does sanity checks on the settings before any pixels move.
func (s *Settings)Finalize() error {
	if s.PSF.CutoutRadiusArcsec <= 0 || s.PSF.DefaultFWHMArcsec <= 0 {
		return fmt.Errorf("psf radii must be positive")
	}
	if s.PSF.MaxFitEvals < 1 {
		return fmt.Errorf("psf fit budget must be at least 1 evaluation")
	}
	if s.PSF.AxisRatioMin >= s.PSF.AxisRatioMax {
		return fmt.Errorf("psf axis ratio window [%f, %f] is empty", s.PSF.AxisRatioMin, s.PSF.AxisRatioMax)
	}
	if s.Sequence.MinStars < 3 {
		return fmt.Errorf("a zeropoint fit needs at least 3 stars, not %d", s.Sequence.MinStars)
	}
	if s.Aperture.SubPixels < 1 {
		return fmt.Errorf("aperture subpixel grid must be at least 1")
	}
	if !(s.Aperture.InnerScale < s.Aperture.OuterScale) {
		return fmt.Errorf("annulus scales [%f, %f] do not form a ring", s.Aperture.InnerScale, s.Aperture.OuterScale)
	}
	if s.Zeropoint.ClipSigma <= 0 {
		return fmt.Errorf("clip sigma must be positive")
	}
	return nil
}
