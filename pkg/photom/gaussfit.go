package photom

import(
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/obsworks/photocal/pkg/ccd"
)

// fwhmFactor converts a Gaussian sigma to a full width at half maximum.
var fwhmFactor = 2.0 * math.Sqrt(2.0*math.Ln2)

// A ProfileFit is the result of fitting a 2D elliptical Gaussian to a
// star cutout. When Detected is false the widths are zero and the
// background is floored at 0.001 so downstream ratios stay finite.
type ProfileFit struct {
	Detected    bool
	FWHMPix     float64 // mean of the two axis FWHMs, pixels
	FWHMArcsec  float64
	Ellipticity float64 // minor/major FWHM ratio, (0, 1]
	Amplitude   float64
	Background  float64
	CenterX     float64 // within the cutout
	CenterY     float64
}

func failedFit() ProfileFit {
	return ProfileFit{Detected: false, Background: 0.001}
}

// gauss2D evaluates the 7-parameter elliptical Gaussian
//   g(x,y) = offset + A*exp(-(a(x-x0)^2 + 2b(x-x0)(y-y0) + c(y-y0)^2))
// with p = [amplitude, x0, y0, sigmaX, sigmaY, theta, offset].
func gauss2D(p []float64, x, y float64) float64 {
	amp, x0, y0, sx, sy, theta, offset := p[0], p[1], p[2], p[3], p[4], p[5], p[6]

	cos := math.Cos(theta)
	sin := math.Sin(theta)
	a := cos*cos/(2*sx*sx) + sin*sin/(2*sy*sy)
	b := -math.Sin(2*theta)/(4*sx*sx) + math.Sin(2*theta)/(4*sy*sy)
	c := sin*sin/(2*sx*sx) + cos*cos/(2*sy*sy)

	dx := x - x0
	dy := y - y0
	return offset + amp*math.Exp(-(a*dx*dx + 2*b*dx*dy + c*dy*dy))
}

// FitProfile fits the elliptical Gaussian to a cutout and decides
// whether a star is actually there. Non-convergence within the
// evaluation budget is a recoverable condition, never an error: the
// star is simply reported not-detected.
func FitProfile(cutout ccd.PixelGrid, pixScaleArcsec float64, s PSFSettings) ProfileFit {
	w, h := cutout.Dx(), cutout.Dy()
	if w < 3 || h < 3 {
		return failedFit()
	}

	// Seed the center from the marginal sums: the brightest column
	// and row of the cutout.
	colSums := make([]float64, w)
	rowSums := make([]float64, h)
	peak := cutout.Get(0, 0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := cutout.Get(x, y)
			colSums[x] += v
			rowSums[y] += v
			if v > peak {
				peak = v
			}
		}
	}
	seedX := float64(floats.MaxIdx(colSums))
	seedY := float64(floats.MaxIdx(rowSums))

	offsetSeed := cutout.Percentile(40)

	// The amplitude seed comes from the data. Stars range from tens of
	// counts to full well; a fixed guess starts the simplex hopelessly
	// far from the bright ones and the search wanders off the cutout.
	ampSeed := peak - offsetSeed
	if ampSeed < s.SeedAmplitude {
		ampSeed = s.SeedAmplitude
	}

	seedWidth := s.DefaultFWHMArcsec / pixScaleArcsec
	seed := []float64{
		ampSeed,
		seedX, seedY,
		seedWidth, seedWidth,
		0,
		offsetSeed,
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			sse := 0.0
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					r := gauss2D(p, float64(x), float64(y)) - cutout.Get(x, y)
					sse += r * r
				}
			}
			return sse
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: s.MaxFitEvals,
		Converger: &optimize.FunctionConverge{
			// The sum of squares scales with the star's brightness, so
			// stalling is judged relative to the running best value; a
			// bare absolute tolerance would never fire on bright stars.
			Absolute:   1e-3,
			Relative:   1e-9,
			Iterations: 50,
		},
	}

	result, err := optimize.Minimize(problem, seed, settings, &optimize.NelderMead{})
	if err != nil || result == nil || result.Status != optimize.FunctionConvergence {
		return failedFit()
	}

	p := result.X
	fwhmX := math.Abs(p[3]) * fwhmFactor
	fwhmY := math.Abs(p[4]) * fwhmFactor
	amplitude := p[0]
	background := math.Max(0.001, p[6])

	fit := ProfileFit{
		FWHMPix:    (fwhmX + fwhmY) / 2.0,
		Amplitude:  amplitude,
		Background: background,
		CenterX:    p[1],
		CenterY:    p[2],
	}
	fit.FWHMArcsec = fit.FWHMPix * pixScaleArcsec
	fit.Ellipticity = math.Min(fwhmX, fwhmY) / math.Max(fwhmX, fwhmY)

	fit.Detected = !math.IsNaN(fwhmX) && !math.IsNaN(fwhmY) &&
		amplitude > s.MinAmplitude &&
		fwhmY/fwhmX > s.AxisRatioMin && fwhmY/fwhmX < s.AxisRatioMax &&
		amplitude/background > s.MinSignalToBackground

	if !fit.Detected {
		// Keep the acceptance contract: a non-detection carries no width.
		return failedFit()
	}
	return fit
}
