package ccd

import(
	"fmt"
)

// An Image is one CCD science frame: the pixel counts, the metadata
// record, and the transform between pixels and sky. The pipeline
// reads Pixels/WCS and writes calibration results into Header.
type Image struct {
	Pixels PixelGrid
	Header Header
	WCS    *TanWCS
}

// PixelScale prefers the header PIXSCALE value (what the instrument
// reports) and falls back to the plate scale implied by the WCS.
func (img *Image)PixelScale() (float64, error) {
	if v, err := img.Header.Float(KeyPixScale); err == nil {
		return v, nil
	}
	if img.WCS != nil {
		return img.WCS.PixelScale(), nil
	}
	return 0, fmt.Errorf("image carries neither %s nor a WCS", KeyPixScale)
}

// InBounds reports whether pixel (x, y) lies inside the frame with at
// least margin pixels to spare on every side.
func (img *Image)InBounds(x, y, margin float64) bool {
	return x > margin && x < float64(img.Pixels.Dx())-margin &&
		y > margin && y < float64(img.Pixels.Dy())-margin
}
