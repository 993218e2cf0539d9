package catalogue

// On-disk caches for query results and detected-star sequences, so
// re-running a calibration with identical parameters reuses the
// earlier answer instead of hitting the network again. Plain
// whitespace-delimited tables with a header row, one file per key.
// Concurrent writers for the same key are last-writer-wins; the
// content is idempotent for identical inputs.

import(
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// A CacheKey identifies one catalogue query: the survey plus the
// exact field geometry and magnitude range.
type CacheKey struct {
	Survey         string
	RA, Dec        float64
	Radius         float64
	MinMag, MaxMag float64
}

func (k CacheKey)filename(prefix string) string {
	return fmt.Sprintf("%s_%s_%.6f_%.6f_%.5f_%.2f_%.2f.txt",
		prefix, k.Survey, k.RA, k.Dec, k.Radius, k.MinMag, k.MaxMag)
}

func (k CacheKey)QueryPath(dir string) string {
	return filepath.Join(dir, k.filename("query_result"))
}

func (k CacheKey)SequencePath(dir string) string {
	return filepath.Join(dir, k.filename("detected_result"))
}

// A SequenceRow is one detected star persisted alongside its pixel
// position and fitted FWHM (arcsec).
type SequenceRow struct {
	X, Y float64
	FWHM float64
	Star
}

// StoreStars writes a raw query result to path.
func StoreStars(path string, stars []Star) error {
	bands := collectBands(stars)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open+w '%s': %v", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "objid ra dec %s\n", strings.Join(bands, " "))
	for _, s := range stars {
		fmt.Fprintf(w, "%d %.6f %.6f", s.ID, s.RA, s.Dec)
		for _, b := range bands {
			fmt.Fprintf(w, " %s", formatBandValue(s, b))
		}
		fmt.Fprintf(w, "\n")
	}
	return w.Flush()
}

// LoadStars reads a raw query result back. A missing file is not an
// error condition worth wrapping; callers check os.IsNotExist.
func LoadStars(path string) ([]Star, error) {
	lines, header, err := readTable(path)
	if err != nil {
		return nil, err
	}

	stars := make([]Star, 0, len(lines))
	for _, fields := range lines {
		if len(fields) != len(header) {
			continue
		}
		star := Star{Mag: map[string]float64{}, Err: map[string]float64{}}
		for i, col := range header {
			applyColumn(&star, col, fields[i])
		}
		stars = append(stars, star)
	}
	return stars, nil
}

// StoreSequence persists the post-filter detected-star list.
func StoreSequence(path string, rows []SequenceRow) error {
	stars := make([]Star, len(rows))
	for i, r := range rows {
		stars[i] = r.Star
	}
	bands := collectBands(stars)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open+w '%s': %v", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "xpos ypos fwhm objid ra dec %s\n", strings.Join(bands, " "))
	for _, r := range rows {
		fmt.Fprintf(w, "%.3f %.3f %.4f %d %.6f %.6f", r.X, r.Y, r.FWHM, r.ID, r.RA, r.Dec)
		for _, b := range bands {
			fmt.Fprintf(w, " %s", formatBandValue(r.Star, b))
		}
		fmt.Fprintf(w, "\n")
	}
	return w.Flush()
}

func LoadSequence(path string) ([]SequenceRow, error) {
	lines, header, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if len(header) < 3 || header[0] != "xpos" || header[1] != "ypos" || header[2] != "fwhm" {
		return nil, fmt.Errorf("sequence file '%s': unexpected columns %v", path, header)
	}

	rows := make([]SequenceRow, 0, len(lines))
	for _, fields := range lines {
		if len(fields) != len(header) {
			continue
		}
		row := SequenceRow{Star: Star{Mag: map[string]float64{}, Err: map[string]float64{}}}
		row.X, _ = strconv.ParseFloat(fields[0], 64)
		row.Y, _ = strconv.ParseFloat(fields[1], 64)
		row.FWHM, _ = strconv.ParseFloat(fields[2], 64)
		for i := 3; i < len(header); i++ {
			applyColumn(&row.Star, header[i], fields[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// collectBands returns the sorted union of band and error-band
// columns present across the stars, so every row shares one schema.
func collectBands(stars []Star) []string {
	seen := map[string]bool{}
	for _, s := range stars {
		for b := range s.Mag {
			seen[b] = true
		}
		for b := range s.Err {
			seen["d"+b] = true
		}
	}

	bands := make([]string, 0, len(seen))
	for b := range seen {
		bands = append(bands, b)
	}
	sort.Strings(bands)
	return bands
}

func formatBandValue(s Star, column string) string {
	if len(column) == 2 && column[0] == 'd' {
		if v, ok := s.Err[column[1:]]; ok {
			return strconv.FormatFloat(v, 'f', 4, 64)
		}
		return "nan"
	}
	if v, ok := s.Mag[column]; ok {
		return strconv.FormatFloat(v, 'f', 4, 64)
	}
	return "nan"
}

func applyColumn(star *Star, col, raw string) {
	switch col {
	case "objid":
		star.ID, _ = strconv.ParseInt(raw, 10, 64)
	case "ra":
		star.RA, _ = strconv.ParseFloat(raw, 64)
	case "dec":
		star.Dec, _ = strconv.ParseFloat(raw, 64)
	default:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) {
			return
		}
		if len(col) == 2 && col[0] == 'd' {
			star.Err[col[1:]] = v
		} else {
			star.Mag[col] = v
		}
	}
}

func readTable(path string) ([][]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("table '%s': empty", path)
	}
	header := strings.Fields(scanner.Text())

	lines := [][]string{}
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		lines = append(lines, fields)
	}
	return lines, header, scanner.Err()
}
