package catalogue

import(
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// The VO cone-search services we know how to talk to. Both return
// plain CSV when asked.
const(
	DefaultBaseURL      = "http://gsss.stsci.edu/webservices/vo/CatalogSearch.aspx"
	DefaultSkyMapperURL = "http://skymapper.anu.edu.au/sm-cone/public/query"
)

// knownSurveys are the catalogue names the STScI search service
// accepts. Anything else (bar SKYMAPPER) is an UnknownSurveyError.
var knownSurveys = map[string]bool{
	"GSC23": true, "GSC11": true, "GSC12": true, "USNOB": true,
	"SDSS": true, "FIRST": true, "2MASS": true, "IRAS": true,
	"GALEX": true, "GAIA": true, "TGAS": true, "WISE": true,
	"CAOM_OBSCORE": true, "CAOM_OBSPOINTING": true,
	"PS1V3OBJECTS": true, "PS1V3DETECTIONS": true,
}

// A Client queries sky-survey cone-search services for reference
// stars. Zero-value endpoints fall back to the public services.
type Client struct {
	BaseURL      string
	SkyMapperURL string
	HTTP         *http.Client
	Log          *log.Logger
}

func NewClient(logger *log.Logger) *Client {
	return &Client{
		BaseURL:      DefaultBaseURL,
		SkyMapperURL: DefaultSkyMapperURL,
		HTTP:         &http.Client{Timeout: 60 * time.Second},
		Log:          logger,
	}
}

// Query runs a cone search against the named survey and returns the
// reference stars with columns remapped to canonical band names.
// Failure is explicit: UnknownSurveyError, a wrapped transport error,
// or ErrNoSources for a clean-but-empty result.
func (c *Client)Query(survey string, raDeg, decDeg, radiusDeg, minMag, maxMag float64) ([]Star, error) {
	survey = strings.ToUpper(survey)

	switch {
	case survey == "SKYMAPPER":
		return c.querySkyMapper(raDeg, decDeg, radiusDeg, minMag, maxMag)
	case knownSurveys[survey]:
		return c.queryVO(survey, raDeg, decDeg, radiusDeg, minMag, maxMag)
	default:
		return nil, UnknownSurveyError{Survey: survey}
	}
}

func (c *Client)queryVO(survey string, raDeg, decDeg, radiusDeg, minMag, maxMag float64) ([]Star, error) {
	url := fmt.Sprintf("%s?CAT=%s&RA=%.5f&DEC=%.5f&SR=%.5f&MAGRANGE=%.3f,%.3f&FORMAT=CSV",
		c.BaseURL, survey, raDeg, decDeg, radiusDeg, minMag, maxMag)
	c.Log.Printf("URL queried: %s\n", url)

	rows, err := c.fetchCSV(url)
	if err != nil {
		return nil, fmt.Errorf("query %s: %v", survey, err)
	}

	if survey == "PS1V3OBJECTS" {
		rows = filterPS1(rows)
	}

	stars := buildStars(rows)
	if len(stars) == 0 {
		return nil, ErrNoSources
	}
	return stars, nil
}

func (c *Client)querySkyMapper(raDeg, decDeg, radiusDeg, minMag, maxMag float64) ([]Star, error) {
	url := fmt.Sprintf("%s?RA=%.5f&DEC=%.5f&SR=%.4f&RESPONSEFORMAT=CSV",
		c.SkyMapperURL, raDeg, decDeg, radiusDeg)
	c.Log.Printf("URL queried: %s\n", url)

	rows, err := c.fetchCSV(url)
	if err != nil {
		return nil, fmt.Errorf("query SKYMAPPER: %v", err)
	}

	// Keep stellar, well-measured sources in the requested range.
	kept := rows[:0]
	for _, row := range rows {
		if row.float("class_star") > 0.7 && row.float("ngood") > 5 &&
			row.float("r_psf") > minMag && row.float("r_psf") < maxMag {
			kept = append(kept, row)
		}
	}

	stars := buildStars(kept)
	if len(stars) == 0 {
		return nil, ErrNoSources
	}
	return stars, nil
}

// filterPS1 drops spurious PS1 sources: objects seen in too few
// visits, poor-quality fits, or extended (Kron much brighter than PSF).
func filterPS1(rows []csvRow) []csvRow {
	kept := rows[:0]
	for _, row := range rows {
		if row.float("ng") > 3 && row.float("nr") > 3 && row.float("ni") > 3 &&
			row.float("gQfPerfect") >= 0.95 && row.float("rQfPerfect") >= 0.95 && row.float("iQfPerfect") >= 0.95 &&
			row.float("rMeanPSFMag")-row.float("rMeanKronMag") < 0.5 {
			kept = append(kept, row)
		}
	}
	return kept
}

type csvRow map[string]string

func (r csvRow)float(key string) float64 {
	v, err := strconv.ParseFloat(r[key], 64)
	if err != nil {
		return 0
	}
	return v
}

func (c *Client)fetchCSV(url string) ([]csvRow, error) {
	resp, err := c.HTTP.Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET: status %s", resp.Status)
	}
	return parseCSV(resp.Body)
}

func parseCSV(r io.Reader) ([]csvRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("csv header: %v", err)
	}

	rows := []csvRow{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv row: %v", err)
		}
		if len(record) < len(header) {
			continue
		}
		row := csvRow{}
		for i, name := range header {
			row[strings.TrimSpace(name)] = strings.TrimSpace(record[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// buildStars remaps raw survey columns through the alias table into
// canonical Star records. Columns we have no alias or band for are
// dropped; unparseable magnitudes are simply absent from the maps.
func buildStars(rows []csvRow) []Star {
	stars := make([]Star, 0, len(rows))

	for _, row := range rows {
		star := Star{Mag: map[string]float64{}, Err: map[string]float64{}}
		sawPos := 0

		for name, raw := range row {
			key := CanonicalBand(name)
			switch {
			case key == "ra":
				if v, err := strconv.ParseFloat(raw, 64); err == nil {
					star.RA = v
					sawPos++
				}
			case key == "dec":
				if v, err := strconv.ParseFloat(raw, 64); err == nil {
					star.Dec = v
					sawPos++
				}
			case key == "objid" || key == "id":
				if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
					star.ID = v
				}
			case len(key) == 2 && key[0] == 'd' && canonicalBands[key[1:]]:
				if v, err := strconv.ParseFloat(raw, 64); err == nil {
					star.Err[key[1:]] = v
				}
			case canonicalBands[key]:
				if v, err := strconv.ParseFloat(raw, 64); err == nil {
					star.Mag[key] = v
				}
			}
		}

		if sawPos == 2 {
			stars = append(stars, star)
		}
	}
	return stars
}
