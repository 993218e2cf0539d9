package main

import(
	"flag"
	"log"
	"os"

	"github.com/obsworks/photocal/pkg/catalogue"
	"github.com/obsworks/photocal/pkg/ccd"
	"github.com/obsworks/photocal/pkg/photom"
)

var(
	Log *log.Logger

	fImage    string
	fHeader   string
	fSettings string
	fWorkDir  string
	fSurvey   string
	fFilter   string
	fColour   string
	fMinMag   float64
	fMaxMag   float64
	fRA       float64
	fDec      float64
	fPlot     bool
)

// Default calibration survey per filter, for when the caller does not
// pick one.
var surveyByFilter = map[string]string{
	"u": "PS1V3OBJECTS",
	"g": "PS1V3OBJECTS",
	"r": "PS1V3OBJECTS",
	"i": "PS1V3OBJECTS",
	"z": "PS1V3OBJECTS",
	"y": "PS1V3OBJECTS",
}

func init() {
	flag.StringVar(&fImage, "image", "", "science frame (grayscale TIFF)")
	flag.StringVar(&fHeader, "header", "", "YAML sidecar with the frame's header keys")
	flag.StringVar(&fSettings, "config", "", "optional settings YAML")
	flag.StringVar(&fWorkDir, "workdir", ".", "where tmp/, phot/ and plots/ live")
	flag.StringVar(&fSurvey, "survey", "", "catalogue survey to calibrate against (default: by filter)")
	flag.StringVar(&fFilter, "filter", "", "override the header FILTER")
	flag.StringVar(&fColour, "colour", "", "colour filter for the colour term (default: companion of filter)")
	flag.Float64Var(&fMinMag, "minmag", 14.0, "brightest catalogue magnitude to use")
	flag.Float64Var(&fMaxMag, "maxmag", 20.5, "faintest catalogue magnitude to use")
	flag.Float64Var(&fRA, "ra", -999, "target RA, degrees (default: header RA)")
	flag.Float64Var(&fDec, "dec", -999, "target Dec, degrees (default: header DEC)")
	flag.BoolVar(&fPlot, "plot", false, "write diagnostic plots")
	flag.Parse()

	Log = log.New(os.Stdout, "", log.Ldate|log.Ltime)
	Log.Printf("Starting\n")
}

func main() {
	if fImage == "" || fHeader == "" {
		Log.Fatal("need both -image and -header")
	}

	img, err := ccd.Load(fImage, fHeader)
	if err != nil {
		Log.Fatalf("Loading frame failed: %v\n", err)
	}
	img.Pixels.ClampNegatives()
	Log.Printf("Loaded %s\n", img.Pixels.Stats())

	p, err := photom.NewPipeline(fWorkDir, Log)
	if err != nil {
		Log.Fatal(err)
	}
	p.Plot = fPlot

	if fSettings != "" {
		if p.Settings, err = photom.LoadSettings(fSettings); err != nil {
			Log.Fatal(err)
		}
	}

	filter := fFilter
	if filter == "" {
		filter = img.Header.StringOr(ccd.KeyFilter, "")
	}
	band := catalogue.CanonicalBand(filter)
	if band == "" {
		Log.Fatal("no filter in the header and none given with -filter")
	}

	survey := fSurvey
	if survey == "" {
		if survey = surveyByFilter[band]; survey == "" {
			Log.Fatalf("no default survey for filter %s; give one with -survey\n", band)
		}
	}

	zp, err := p.SolveZeropoint(img, survey, band, fColour, fMinMag, fMaxMag)
	if err != nil {
		Log.Fatalf("No calibration possible: %v\n", err)
	}
	Log.Printf("Zeropoint %.4f +/- %.4f, colour term %.4f (%s-%s, %d stars)\n",
		zp.ZP, zp.ZPErr, zp.ColourTerm, zp.Filter, zp.ColourFilter, zp.NStars)

	// Now measure the target with the FWHM solved above.
	ra, dec := fRA, fDec
	if ra <= -999 || dec <= -999 {
		if ra, err = img.Header.Float(ccd.KeyRA); err != nil {
			Log.Fatal(err)
		}
		if dec, err = img.Header.Float(ccd.KeyDec); err != nil {
			Log.Fatal(err)
		}
		Log.Printf("RA, DEC %.5f, %.5f from the header.\n", ra, dec)
	}

	fwhm, err := img.Header.Float(ccd.KeyFWHM)
	if err != nil {
		Log.Fatal(err)
	}

	phot, err := p.Measure(img, []float64{ra}, []float64{dec}, fwhm)
	if err != nil {
		Log.Fatalf("Target photometry failed: %v\n", err)
	}

	m := phot[0]
	if m.Flagged {
		Log.Printf("Target flux is non-positive; no magnitude defined\n")
	} else {
		Log.Printf("App photometry for object: %.4f +/- %.4f\n", m.InstMag+zp.ZP, m.MagErr)
	}

	if err := p.AppendPhotometry(img, m); err != nil {
		Log.Printf("Could not append photometry record: %v\n", err)
	}
	if err := ccd.SaveHeader(img.Header, fHeader); err != nil {
		Log.Fatalf("Header writeback failed: %v\n", err)
	}
}
