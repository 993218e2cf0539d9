package ccd

import(
	"fmt"
	"math"
	"sort"
)

// A PixelGrid is a 2D grid of pixel counts, with some operations. The
// zero value is unusable; make one with NewPixelGrid.
type PixelGrid struct {
	stride int
	values []float64
}

func NewPixelGrid(w, h int) PixelGrid {
	return PixelGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

func (pg *PixelGrid)Set(x, y int, v float64) { pg.values[pg.stride*y + x] = v }
func (pg *PixelGrid)Get(x, y int) float64    { return pg.values[pg.stride*y + x] }
func (pg *PixelGrid)Dx() int                 { return pg.stride }
func (pg *PixelGrid)Dy() int                 { return len(pg.values) / pg.stride }

func (pg *PixelGrid)Copy() PixelGrid {
	pg2 := PixelGrid{stride: pg.stride, values: make([]float64, len(pg.values))}
	copy(pg2.values, pg.values)
	return pg2
}

// ClampNegatives floors every pixel at zero. Bias-subtracted frames can
// carry small negative counts which break flux sums and log-magnitudes.
func (pg *PixelGrid)ClampNegatives() {
	for i := 0; i < len(pg.values); i++ {
		if pg.values[i] < 0 {
			pg.values[i] = 0
		}
	}
}

// Cutout returns a square sub-grid of half-width hw centered on pixel
// (x, y). If any part of the window falls outside the grid, ok is
// false - callers treat stars that close to the border as lost rather
// than crashing on a ragged cutout.
func (pg *PixelGrid)Cutout(x, y, hw int) (PixelGrid, bool) {
	if hw < 1 || x-hw < 0 || y-hw < 0 || x+hw > pg.Dx() || y+hw > pg.Dy() {
		return PixelGrid{}, false
	}

	sub := NewPixelGrid(2*hw, 2*hw)
	for j := 0; j < 2*hw; j++ {
		for i := 0; i < 2*hw; i++ {
			sub.Set(i, j, pg.Get(x-hw+i, y-hw+j))
		}
	}
	return sub, true
}

// Percentile returns the value at percentile p (0-100), interpolating
// between neighbours the way numpy's percentile does.
func (pg *PixelGrid)Percentile(p float64) float64 {
	vals := make([]float64, len(pg.values))
	copy(vals, pg.values)
	sort.Float64s(vals)

	if len(vals) == 1 {
		return vals[0]
	}

	rank := p / 100.0 * float64(len(vals)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if hi >= len(vals) {
		hi = len(vals) - 1
	}
	frac := rank - float64(lo)
	return vals[lo]*(1-frac) + vals[hi]*frac
}

func (pg *PixelGrid)Stats() string {
	min, max := math.MaxFloat64, -math.MaxFloat64
	for i := 0; i < len(pg.values); i++ {
		if pg.values[i] > max { max = pg.values[i] }
		if pg.values[i] < min { min = pg.values[i] }
	}
	return fmt.Sprintf("grid[%dx%d, vals{%f,%f}]", pg.Dx(), pg.Dy(), min, max)
}
