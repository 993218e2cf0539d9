package photom

// Diagnostic images. These are glue for humans debugging a
// calibration; every failure here is logged and swallowed.

import(
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"github.com/fogleman/gg"

	"github.com/obsworks/photocal/pkg/ccd"
)

// plotSequence writes a percentile-scaled grayscale rendering of the
// frame with the accepted sequence stars circled.
func (p *Pipeline)plotSequence(img *ccd.Image, seq *StarSequence) {
	zmin := img.Pixels.Percentile(5)
	zmax := img.Pixels.Percentile(95)
	if zmax <= zmin {
		zmax = zmin + 1
	}

	w, h := img.Pixels.Dx(), img.Pixels.Dy()
	gray := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := (img.Pixels.Get(x, y) - zmin) / (zmax - zmin)
			if v < 0 { v = 0 }
			if v > 1 { v = 1 }
			// Inverted scale, faint sky white - easier to eyeball circles on
			g := uint8((1 - v) * 255)
			gray.Set(x, y, color.RGBA{g, g, g, 255})
		}
	}

	dc := gg.NewContextForImage(gray)
	dc.SetRGB(0, 0, 1)
	dc.SetLineWidth(2)
	for _, s := range seq.Stars {
		dc.DrawCircle(s.X, s.Y, 12)
		dc.Stroke()
	}
	dc.SetRGB(0, 0, 0)
	dc.DrawString(fmt.Sprintf("Selected stars for filter %s", seq.Band), 20, 30)

	path := filepath.Join(p.PlotDir, fmt.Sprintf("seqstars_%s.png", seq.Band))
	if err := dc.SavePNG(path); err != nil {
		p.Log.Printf("Could not save %s: %v\n", path, err)
		return
	}
	p.Log.Printf("Saved stars to %s\n", path)
}

// plotZeropoint writes a zp_raw vs colour scatter with the fitted
// colour-term line.
func (p *Pipeline)plotZeropoint(colour, zp []float64, slope, intercept float64, band, colourBand string) {
	if len(colour) == 0 {
		return
	}

	const W, H = 640, 480
	const margin = 60.0

	cmin, cmax := colour[0], colour[0]
	zmin, zmax := zp[0], zp[0]
	for i := range colour {
		if colour[i] < cmin { cmin = colour[i] }
		if colour[i] > cmax { cmax = colour[i] }
		if zp[i] < zmin { zmin = zp[i] }
		if zp[i] > zmax { zmax = zp[i] }
	}
	if cmax <= cmin { cmax = cmin + 0.1 }
	if zmax <= zmin { zmax = zmin + 0.1 }

	toX := func(c float64) float64 { return margin + (c-cmin)/(cmax-cmin)*(W-2*margin) }
	toY := func(z float64) float64 { return H - margin - (z-zmin)/(zmax-zmin)*(H-2*margin) }

	dc := gg.NewContext(W, H)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetRGB(0.2, 0.4, 0.8)
	for i := range colour {
		dc.DrawCircle(toX(colour[i]), toY(zp[i]), 3)
		dc.Fill()
	}

	dc.SetRGB(0.8, 0.2, 0.2)
	dc.SetLineWidth(1.5)
	dc.DrawLine(toX(cmin), toY(intercept+slope*cmin), toX(cmax), toY(intercept+slope*cmax))
	dc.Stroke()

	dc.SetRGB(0, 0, 0)
	dc.DrawString(fmt.Sprintf("ZP: %.2f color-term: %.2f (%s - %s)", intercept, slope, band, colourBand), 20, 30)

	path := filepath.Join(p.PlotDir, fmt.Sprintf("zp_colorterm_%s_%s.png", band, colourBand))
	if err := dc.SavePNG(path); err != nil {
		p.Log.Printf("Could not save %s: %v\n", path, err)
	}
}
