package ccd

import(
	"fmt"
	"image"
	"os"

	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v2"
)

// Load reads a science frame: pixel data from a grayscale TIFF, and
// the metadata record from a YAML sidecar file of header keys. The
// WCS is built from the header pointing keys.
func Load(imagePath, headerPath string) (*Image, error) {
	hdr, err := LoadHeader(headerPath)
	if err != nil {
		return nil, err
	}

	reader, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("open+r img '%s': %v", imagePath, err)
	}
	defer reader.Close()

	decoded, err := tiff.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("tiff loading '%s': %v", imagePath, err)
	}

	img := &Image{
		Pixels: GridFromImage(decoded),
		Header: hdr,
	}

	if wcs, err := wcsFromHeader(hdr, img.Pixels.Dx(), img.Pixels.Dy()); err != nil {
		return nil, fmt.Errorf("image '%s' WCS: %v", imagePath, err)
	} else {
		img.WCS = wcs
	}

	return img, nil
}

// GridFromImage flattens any decoded image into counts, using the
// 16-bit gray channel. Science frames are monochrome; for anything
// else this takes the luminance-free R==G==B gray value.
func GridFromImage(src image.Image) PixelGrid {
	bounds := src.Bounds()
	pg := NewPixelGrid(bounds.Dx(), bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray, _, _, _ := src.At(x, y).RGBA() // [0, 0xFFFF]
			pg.Set(x-bounds.Min.X, y-bounds.Min.Y, float64(gray))
		}
	}
	return pg
}

func LoadHeader(filename string) (Header, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("header read '%s': %v", filename, err)
	}

	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(contents, &raw); err != nil {
		return nil, fmt.Errorf("header parse '%s': %v", filename, err)
	}

	hdr := Header{}
	for k, v := range raw {
		hdr[k] = fmt.Sprint(v)
	}
	return hdr, nil
}

// SaveHeader writes the metadata record back to its sidecar file, so
// calibration results (FWHM, ZP, ...) survive the run.
func SaveHeader(hdr Header, filename string) error {
	contents, err := yaml.Marshal(map[string]string(hdr))
	if err != nil {
		return fmt.Errorf("header marshal '%s': %v", filename, err)
	}
	if err := os.WriteFile(filename, contents, 0644); err != nil {
		return fmt.Errorf("header write '%s': %v", filename, err)
	}
	return nil
}

func wcsFromHeader(hdr Header, w, h int) (*TanWCS, error) {
	ra, err := hdr.Float(KeyRA)
	if err != nil {
		return nil, err
	}
	dec, err := hdr.Float(KeyDec)
	if err != nil {
		return nil, err
	}
	scale, err := hdr.Float(KeyPixScale)
	if err != nil {
		return nil, err
	}

	rot := hdr.FloatOr(KeyRotation, 0)
	return NewTanWCS(ra, dec, float64(w)/2, float64(h)/2, scale, rot), nil
}
