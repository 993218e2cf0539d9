package catalogue

// Reference-star tables retrieved from sky survey catalogues, plus the
// fixed name translations between survey column headings and the
// canonical photometric bands the calibration works in.

import(
	"errors"
	"fmt"
)

// A Star is one reference object from a survey catalogue. Mag and Err
// are keyed by canonical band name; Err uses the plain band name, not
// the d-prefixed alias. Immutable once retrieved.
type Star struct {
	ID  int64
	RA  float64 // degrees
	Dec float64 // degrees
	Mag map[string]float64
	Err map[string]float64
}

// MagIn returns the star's magnitude in a band, if the catalogue
// carried that band at all.
func (s Star)MagIn(band string) (float64, bool) {
	m, ok := s.Mag[band]
	return m, ok
}

func (s Star)ErrIn(band string) (float64, bool) {
	e, ok := s.Err[band]
	return e, ok
}

// ErrNoSources is the typed "query succeeded but found nothing" value;
// callers choose their own fallback policy rather than us inventing one.
var ErrNoSources = errors.New("catalogue query returned no sources")

type UnknownSurveyError struct {
	Survey string
}

func (e UnknownSurveyError)Error() string {
	return fmt.Sprintf("unknown survey '%s'", e.Survey)
}

// canonicalBands is the closed set of band names the pipeline works
// in, plus their d-prefixed uncertainty variants.
var canonicalBands = map[string]bool{
	"u": true, "g": true, "r": true, "i": true, "z": true, "y": true,
	"U": true, "B": true, "V": true, "R": true, "I": true, "Y": true,
	"ra": true, "dec": true, "objid": true, "id": true,
}

// bandAliases maps the column names used by the queried surveys onto
// canonical band names. This is a fixed enumerated mapping, checked at
// package init; adding a new survey means extending it here.
var bandAliases = map[string]string{
	// LCO-style filter wheels
	"ip": "i", "rp": "r", "gp": "g", "up": "u", "zs": "z",

	// Positional columns
	"raj2000": "ra", "dej2000": "dec",
	"RAJ2000": "ra", "DEJ2000": "dec",
	"raMean": "ra", "decMean": "dec",
	"objID": "objid",

	// SkyMapper PSF columns
	"u_psf": "u", "g_psf": "g", "r_psf": "r", "i_psf": "i", "z_psf": "z",
	"e_u_psf": "du", "e_g_psf": "dg", "e_r_psf": "dr", "e_i_psf": "di", "e_z_psf": "dz",

	// Johnson-Cousins style
	"Vmag": "V", "e_Vmag": "dV", "Bmag": "B", "e_Bmag": "dB",
	"g_mag": "g", "e_g_mag": "dg", "r_mag": "r", "e_r_mag": "dr", "i_mag": "i", "e_i_mag": "di",

	// Pan-STARRS mean PSF columns
	"gMeanPSFMag": "g", "gMeanPSFMagErr": "dg",
	"rMeanPSFMag": "r", "rMeanPSFMagErr": "dr",
	"iMeanPSFMag": "i", "iMeanPSFMagErr": "di",
	"zMeanPSFMag": "z", "zMeanPSFMagErr": "dz",
	"yMeanPSFMag": "y", "yMeanPSFMagErr": "dy",

	// SDSS-style short columns
	"umag": "u", "gmag": "g", "rmag": "r", "imag": "i", "zmag": "z", "ymag": "y",
	"e_gmag": "dg", "e_rmag": "dr", "e_imag": "di", "e_zmag": "dz", "e_ymag": "dy",
	"Err_g": "dg", "Err_r": "dr", "Err_i": "di", "Err_z": "dz", "Err_y": "dy",
}

// colourCompanion names the second band used to form a star's colour
// when the caller does not pick one.
var colourCompanion = map[string]string{
	"U": "B",
	"B": "V",
	"V": "B",
	"R": "I",
	"I": "R",
	"Y": "I",
	"u": "r",
	"g": "r",
	"r": "g",
	"i": "r",
	"z": "i",
	"y": "z",
}

func init() {
	// The alias table is static configuration; a typo here should fail
	// loudly at startup, not surface as a missing band mid-pipeline.
	for alias, band := range bandAliases {
		stripped := band
		if len(band) == 2 && band[0] == 'd' {
			stripped = band[1:]
		}
		if !canonicalBands[stripped] {
			panic(fmt.Sprintf("catalogue: alias '%s' maps to non-canonical band '%s'", alias, band))
		}
	}
	for band, companion := range colourCompanion {
		if !canonicalBands[band] || !canonicalBands[companion] {
			panic(fmt.Sprintf("catalogue: colour pair %s-%s uses a non-canonical band", band, companion))
		}
	}
}

// CanonicalBand resolves an instrument or survey name for a band onto
// the canonical name, passing through anything already canonical.
func CanonicalBand(name string) string {
	if b, ok := bandAliases[name]; ok {
		return b
	}
	return name
}

// ColourCompanion returns the default colour filter paired with a
// band, or an error for bands with no sensible companion.
func ColourCompanion(band string) (string, error) {
	if c, ok := colourCompanion[band]; ok {
		return c, nil
	}
	return "", fmt.Errorf("no colour companion defined for band '%s'", band)
}
