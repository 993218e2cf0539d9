package photom

import(
	"fmt"
	"log"
	"os"

	"github.com/obsworks/photocal/pkg/catalogue"
)

// A Querier answers catalogue cone searches. catalogue.Client is the
// real one; tests substitute canned tables.
type Querier interface {
	Query(survey string, raDeg, decDeg, radiusDeg, minMag, maxMag float64) ([]catalogue.Star, error)
}

// A Pipeline carries everything one calibration run needs: where to
// log, where to cache, and how to reach the reference catalogues.
// There is no ambient global state; construct one per run.
type Pipeline struct {
	Log       *log.Logger
	Settings  Settings
	Catalogue Querier

	CacheDir string // catalogue query + sequence caches
	PhotDir  string // per-object photometry logs
	PlotDir  string // diagnostic images
	Plot     bool
}

// NewPipeline builds a Pipeline rooted at dir, creating the working
// subdirectories if they do not exist.
func NewPipeline(dir string, logger *log.Logger) (*Pipeline, error) {
	p := &Pipeline{
		Log:      logger,
		Settings: NewSettings(),
		CacheDir: dir + "/tmp",
		PhotDir:  dir + "/phot",
		PlotDir:  dir + "/plots",
	}
	p.Catalogue = catalogue.NewClient(logger)

	for _, d := range []string{p.CacheDir, p.PhotDir, p.PlotDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("mkdir '%s': %v", d, err)
		}
	}
	return p, nil
}
