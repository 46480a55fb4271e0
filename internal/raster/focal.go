package raster

import (
	"context"
	"math"
	"runtime"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

const epsilon = 1e-9

// Span is one row of a neighborhood: cells [ColMin, ColMax] at row offset DRow.
type Span struct {
	DRow   int
	ColMin int
	ColMax int
}

// Kernel is a neighborhood expressed as row spans relative to the focal cell.
type Kernel struct {
	Spans []Span
}

// Size returns the number of cells in the kernel.
func (k Kernel) Size() int {
	n := 0
	for _, s := range k.Spans {
		n += s.ColMax - s.ColMin + 1
	}
	return n
}

// Circle returns the circular neighborhood of radius r in map units. A cell is
// included when its center lies within r of the focal cell center.
func Circle(r, cellSize float64) Kernel {
	rc := r / cellSize
	maxRow := int(math.Floor(rc + epsilon))
	k := Kernel{Spans: make([]Span, 0, 2*maxRow+1)}
	for di := -maxRow; di <= maxRow; di++ {
		rem := rc*rc - float64(di*di)
		if rem < -epsilon {
			continue
		}
		w := int(math.Floor(math.Sqrt(math.Max(0, rem)) + epsilon))
		k.Spans = append(k.Spans, Span{DRow: di, ColMin: -w, ColMax: w})
	}
	return k
}

// SquareReach returns the cells whose centers lie within r of any point of the
// focal cell's square. Dilating a set of cells with it marks every cell center
// inside the round-capped buffer of their union.
func SquareReach(r, cellSize float64) Kernel {
	half := cellSize / 2
	maxRow := int(math.Floor((r+half)/cellSize + epsilon))
	k := Kernel{Spans: make([]Span, 0, 2*maxRow+1)}
	for di := -maxRow; di <= maxRow; di++ {
		dy := math.Max(0, math.Abs(float64(di))*cellSize-half)
		if dy > r+epsilon {
			continue
		}
		dx := math.Sqrt(math.Max(0, r*r-dy*dy))
		w := int(math.Floor((dx+half)/cellSize + epsilon))
		k.Spans = append(k.Spans, Span{DRow: di, ColMin: -w, ColMax: w})
	}
	return k
}

// FocalSum sums defined cells of in over the kernel centered on every cell.
// Nodata cells and cells beyond the grid edge are ignored; a window with no
// defined cell yields nodata. Row bands are summed in parallel.
func FocalSum(ctx context.Context, name string, in *Grid, k Kernel) (*Grid, error) {
	cols, rows := in.Cols, in.Rows
	stride := cols + 1

	sums := make([]float64, rows*stride)
	counts := make([]int32, rows*stride)
	for r := 0; r < rows; r++ {
		base := r * stride
		for c := 0; c < cols; c++ {
			v := in.Cells[r*cols+c]
			sums[base+c+1] = sums[base+c]
			counts[base+c+1] = counts[base+c]
			if !math.IsNaN(v) {
				sums[base+c+1] += v
				counts[base+c+1]++
			}
		}
	}

	out := NewNull(name, in.Geo, Float32)

	workers := runtime.GOMAXPROCS(0)
	band := (rows + workers - 1) / workers
	if band < 1 {
		band = 1
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < rows; start += band {
		r0, r1 := start, min(start+band, rows)
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return eris.Wrap(err, "raster: focal sum cancelled")
			}
			for r := r0; r < r1; r++ {
				for c := 0; c < cols; c++ {
					var sum float64
					var cnt int32
					for _, s := range k.Spans {
						rr := r + s.DRow
						if rr < 0 || rr >= rows {
							continue
						}
						lo, hi := c+s.ColMin, c+s.ColMax
						if lo < 0 {
							lo = 0
						}
						if hi >= cols {
							hi = cols - 1
						}
						if lo > hi {
							continue
						}
						base := rr * stride
						sum += sums[base+hi+1] - sums[base+lo]
						cnt += counts[base+hi+1] - counts[base+lo]
					}
					if cnt > 0 {
						out.Cells[r*cols+c] = sum
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Dilate returns a 0/1 grid marking every cell reachable through k from a
// seed. Seeds are cells of in equal to 1. Only seeds on the edge of the seed
// region are expanded, since an interior seed never reaches a cell its
// neighbors do not.
func Dilate(name string, in *Grid, k Kernel) *Grid {
	cols, rows := in.Cols, in.Rows
	stride := cols + 1
	diff := make([]int32, rows*stride)

	isSeed := func(r, c int) bool { return in.Cells[r*cols+c] == 1 }
	interior := func(r, c int) bool {
		for dr := -1; dr <= 1; dr++ {
			for dc := -1; dc <= 1; dc++ {
				rr, cc := r+dr, c+dc
				if rr < 0 || cc < 0 || rr >= rows || cc >= cols {
					continue
				}
				if !isSeed(rr, cc) {
					return false
				}
			}
		}
		return true
	}

	out := New(name, in.Geo, Uint8, 0)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if !isSeed(r, c) {
				continue
			}
			out.Cells[r*cols+c] = 1
			if interior(r, c) {
				continue
			}
			for _, s := range k.Spans {
				rr := r + s.DRow
				if rr < 0 || rr >= rows {
					continue
				}
				lo, hi := max(c+s.ColMin, 0), min(c+s.ColMax, cols-1)
				if lo > hi {
					continue
				}
				diff[rr*stride+lo]++
				diff[rr*stride+hi+1]--
			}
		}
	}

	for r := 0; r < rows; r++ {
		var run int32
		for c := 0; c < cols; c++ {
			run += diff[r*stride+c]
			if run > 0 {
				out.Cells[r*cols+c] = 1
			}
		}
	}
	return out
}
