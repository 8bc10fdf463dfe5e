package search

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// DirectSettings controls the DIRECT-L global search. Zero values select the
// defaults listed on each field.
type DirectSettings struct {
	MaxEvaluations  int     // default 1000 * dimension
	MaxIterations   int     // default 1000
	Epsilon         float64 // potential optimality margin, default 1e-4
	LengthTolerance float64 // stop when the best rectangle's normalized half side is below this, default 1e-6
	VolumeTolerance float64 // stop when the best rectangle's normalized volume is below this, default 1e-16
}

func (ds *DirectSettings) withDefaults(dim int) (s DirectSettings) {
	if ds != nil {
		s = *ds
	}
	if s.MaxEvaluations <= 0 {
		s.MaxEvaluations = 1000 * dim
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = 1000
	}
	if s.Epsilon <= 0 {
		s.Epsilon = 1.e-4
	}
	if s.LengthTolerance <= 0 {
		s.LengthTolerance = 1.e-6
	}
	if s.VolumeTolerance <= 0 {
		s.VolumeTolerance = 1.e-16
	}
	return
}

type Result struct {
	X           []float64
	F           float64
	Evaluations int
	Iterations  int
	Status      string
}

// rectangle in the unit hypercube. Side i has length 3^-levels[i].
type rectangle struct {
	center []float64
	levels []int
	f      float64
	size   float64 // half diagonal
}

type direct struct {
	f             func([]float64) float64
	lower, width  []float64
	dim           int
	rects         []*rectangle
	evaluations   int
	best          *rectangle
	x             []float64 // scratch for the unscaled point
	maxEvaluation int
}

// Direct minimizes f over the box [lower, upper] with the locally biased
// DIRECT algorithm of Gablonsky and Kelley. It is deterministic and derivative
// free. Dimensions with lower == upper are held fixed.
func Direct(f func([]float64) float64, lower, upper []float64, settings *DirectSettings) (res *Result, err error) {
	if len(lower) != len(upper) || len(lower) == 0 {
		err = errors.Errorf("bounds must be non-empty and of equal length, have %d and %d", len(lower), len(upper))
		return
	}
	var (
		dim = len(lower)
		s   = settings.withDefaults(dim)
		d   = &direct{
			f:             f,
			lower:         lower,
			width:         make([]float64, dim),
			dim:           dim,
			x:             make([]float64, dim),
			maxEvaluation: s.MaxEvaluations,
		}
	)
	for i := range lower {
		if lower[i] > upper[i] || math.IsNaN(lower[i]) || math.IsNaN(upper[i]) {
			err = errors.Errorf("bound %d is empty: [%g, %g]", i, lower[i], upper[i])
			return
		}
		d.width[i] = upper[i] - lower[i]
	}
	center := make([]float64, dim)
	for i := range center {
		center[i] = 0.5
	}
	first := &rectangle{center: center, levels: make([]int, dim)}
	first.f = d.eval(center)
	first.size = d.halfDiagonal(first.levels)
	d.rects = append(d.rects, first)
	d.best = first

	res = &Result{Status: "MaxIterations"}
	var iter int
	for iter = 0; iter < s.MaxIterations; iter++ {
		if d.evaluations >= s.MaxEvaluations {
			res.Status = "MaxEvaluations"
			break
		}
		if d.halfSide(d.best.levels) < s.LengthTolerance {
			res.Status = "LengthTolerance"
			break
		}
		if d.volume(d.best.levels) < s.VolumeTolerance {
			res.Status = "VolumeTolerance"
			break
		}
		selected := d.potentiallyOptimal(s.Epsilon)
		if len(selected) == 0 {
			res.Status = "NoCandidates"
			break
		}
		for _, r := range selected {
			if d.evaluations >= s.MaxEvaluations {
				break
			}
			d.divide(r)
		}
	}
	res.X = d.scale(d.best.center, make([]float64, dim))
	res.F = d.best.f
	res.Evaluations = d.evaluations
	res.Iterations = iter
	return
}

func (d *direct) scale(u, x []float64) []float64 {
	for i := range u {
		x[i] = d.lower[i] + u[i]*d.width[i]
	}
	return x
}

func (d *direct) eval(u []float64) (f float64) {
	d.evaluations++
	f = d.f(d.scale(u, d.x))
	if math.IsNaN(f) {
		f = math.Inf(1)
	}
	return
}

func sideLength(level int) float64 { return math.Pow(3, -float64(level)) }

func (d *direct) halfDiagonal(levels []int) float64 {
	var sum float64
	for _, l := range levels {
		s := sideLength(l)
		sum += s * s
	}
	return 0.5 * math.Sqrt(sum)
}

func (d *direct) halfSide(levels []int) float64 {
	minLevel := levels[0]
	for _, l := range levels {
		if l < minLevel {
			minLevel = l
		}
	}
	return 0.5 * sideLength(minLevel)
}

func (d *direct) volume(levels []int) float64 {
	v := 1.
	for _, l := range levels {
		v *= sideLength(l)
	}
	return v
}

// potentiallyOptimal picks the lowest valued rectangle of every size class
// on the lower right convex hull of (size, f) that passes the epsilon test.
func (d *direct) potentiallyOptimal(eps float64) (selected []*rectangle) {
	bySize := make(map[float64]*rectangle)
	for _, r := range d.rects {
		cur, ok := bySize[r.size]
		if !ok || r.f < cur.f {
			bySize[r.size] = r
		}
	}
	candidates := make([]*rectangle, 0, len(bySize))
	for _, r := range bySize {
		candidates = append(candidates, r)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].size < candidates[j].size })

	// Start the hull at the overall minimum, largest size on ties
	var (
		fMin  = d.best.f
		start int
	)
	for i, r := range candidates {
		if r.f <= candidates[start].f {
			start = i
		}
	}
	hull := []*rectangle{candidates[start]}
	for _, r := range candidates[start+1:] {
		for len(hull) >= 2 {
			a, b := hull[len(hull)-2], hull[len(hull)-1]
			// drop b if it lies on or above the segment a -> r
			if (b.f-a.f)*(r.size-a.size) >= (r.f-a.f)*(b.size-a.size) {
				hull = hull[:len(hull)-1]
				continue
			}
			break
		}
		if len(hull) == 1 && r.f <= hull[0].f {
			hull[0] = r
			continue
		}
		hull = append(hull, r)
	}
	threshold := fMin - eps*math.Abs(fMin)
	for i, r := range hull {
		if i == len(hull)-1 {
			selected = append(selected, r)
			continue
		}
		next := hull[i+1]
		K := (next.f - r.f) / (next.size - r.size)
		if r.f-K*r.size <= threshold {
			selected = append(selected, r)
		}
	}
	return
}

// divide trisects r along all of its longest sides, splitting first along
// the direction with the best sampled value.
func (d *direct) divide(r *rectangle) {
	var (
		minLevel = r.levels[0]
		dims     []int
	)
	for _, l := range r.levels {
		if l < minLevel {
			minLevel = l
		}
	}
	for i, l := range r.levels {
		if l == minLevel && d.width[i] > 0 {
			dims = append(dims, i)
		}
	}
	if len(dims) == 0 {
		// every longest side is a fixed dimension, shrink those instead
		for i, l := range r.levels {
			if l == minLevel {
				dims = append(dims, i)
			}
		}
	}
	type split struct {
		dim        int
		lo, hi     *rectangle
		bestOfPair float64
	}
	var (
		delta  = sideLength(minLevel) / 3
		splits = make([]split, 0, len(dims))
	)
	for _, i := range dims {
		if d.evaluations+2 > d.maxEvaluation && len(splits) > 0 {
			break
		}
		pr := split{dim: i}
		for _, sign := range []float64{-1, 1} {
			c := make([]float64, d.dim)
			copy(c, r.center)
			c[i] += sign * delta
			child := &rectangle{center: c}
			if d.width[i] == 0 {
				child.f = r.f
			} else {
				child.f = d.eval(c)
			}
			if sign < 0 {
				pr.lo = child
			} else {
				pr.hi = child
			}
		}
		pr.bestOfPair = math.Min(pr.lo.f, pr.hi.f)
		splits = append(splits, pr)
	}
	sort.SliceStable(splits, func(i, j int) bool { return splits[i].bestOfPair < splits[j].bestOfPair })
	levels := make([]int, d.dim)
	copy(levels, r.levels)
	for _, pr := range splits {
		levels[pr.dim]++
		for _, child := range []*rectangle{pr.lo, pr.hi} {
			child.levels = make([]int, d.dim)
			copy(child.levels, levels)
			child.size = d.halfDiagonal(child.levels)
			d.rects = append(d.rects, child)
			if child.f < d.best.f {
				d.best = child
			}
		}
	}
	r.levels = levels
	r.size = d.halfDiagonal(levels)
}
