package ccd

import(
	"fmt"
	"strconv"
	"time"
)

// Header keys the calibration pipeline reads or writes. The names
// follow the FITS conventions used by LCO-style instruments.
const(
	KeyFilter   = "FILTER"
	KeyPixScale = "PIXSCALE" // arcsec / pixel
	KeyGain     = "GAIN"     // e- / ADU
	KeyRdNoise  = "RDNOISE"
	KeyDateObs  = "DATE-OBS"
	KeyExpTime  = "EXPTIME"  // seconds
	KeyObject   = "OBJECT"
	KeyRA       = "RA"       // degrees
	KeyDec      = "DEC"      // degrees
	KeyRotation = "ROTANG"   // degrees, E of N
	KeyFWHM     = "FWHM"     // arcsec, written by sequence extraction
	KeyZP       = "ZP"       // mag, written by the zeropoint solver
	KeyZPErr    = "ZPERR"
	KeyColor    = "COLOR"    // "<filter>-<colour filter>"
	KeyKCoef    = "KCOEF"    // colour term, mag/mag
)

// A Header is the per-image metadata record: a flat key/value store,
// string-valued like a FITS header. It is the one mutable channel the
// pipeline writes results back through.
type Header map[string]string

func (h Header)Get(key string) (string, bool) {
	v, ok := h[key]
	return v, ok
}

func (h Header)Set(key, value string)       { h[key] = value }
func (h Header)SetFloat(key string, v float64) { h[key] = strconv.FormatFloat(v, 'f', -1, 64) }

func (h Header)Float(key string) (float64, error) {
	s, ok := h[key]
	if !ok {
		return 0, fmt.Errorf("header key '%s' not present", key)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("header key '%s': %v", key, err)
	}
	return v, nil
}

// FloatOr is for keys like ZP/ZPERR that may legitimately be absent
// before the first calibration pass.
func (h Header)FloatOr(key string, def float64) float64 {
	v, err := h.Float(key)
	if err != nil {
		return def
	}
	return v
}

func (h Header)StringOr(key, def string) string {
	if v, ok := h[key]; ok {
		return v
	}
	return def
}

// MJD returns the modified Julian date of the observation, derived
// from DATE-OBS. MJD 40587.0 is the unix epoch.
func (h Header)MJD() (float64, error) {
	s, ok := h[KeyDateObs]
	if !ok {
		return 0, fmt.Errorf("header key '%s' not present", KeyDateObs)
	}

	var t time.Time
	var err error
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.999", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err = time.Parse(layout, s); err == nil {
			break
		}
	}
	if err != nil {
		return 0, fmt.Errorf("header %s '%s': unparseable date", KeyDateObs, s)
	}

	return 40587.0 + float64(t.Unix())/86400.0, nil
}
