package search

import (
	"math"

	"github.com/pkg/errors"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// LocalSettings controls the bounded quasi-Newton search
type LocalSettings struct {
	GradientStepEps    float64 // forward difference step, default 1e-3
	MaxLineSearchSteps int     // line search iterations per major iteration, default 100
	MaxIterations      int     // major iterations, default 15000
	MaxEvaluations     int     // function evaluations, default 15000
	GradientTolerance  float64 // projected gradient norm to stop at, default 1e-5
	BoundPenalty       float64 // weight of the squared distance outside the box, default 1
}

func (ls *LocalSettings) withDefaults() (s LocalSettings) {
	if ls != nil {
		s = *ls
	}
	if s.GradientStepEps <= 0 {
		s.GradientStepEps = 1.e-3
	}
	if s.MaxLineSearchSteps <= 0 {
		s.MaxLineSearchSteps = 100
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = 15000
	}
	if s.MaxEvaluations <= 0 {
		s.MaxEvaluations = 15000
	}
	if s.GradientTolerance <= 0 {
		s.GradientTolerance = 1.e-5
	}
	if s.BoundPenalty <= 0 {
		s.BoundPenalty = 1
	}
	return
}

var ErrLineSearchLimit = errors.New("line search step limit reached")

// cappedLinesearcher stops a line search after MaxSteps iterations
type cappedLinesearcher struct {
	optimize.Linesearcher
	MaxSteps int
	steps    int
}

func (cl *cappedLinesearcher) Init(value, derivative float64, step float64) optimize.Operation {
	cl.steps = 0
	return cl.Linesearcher.Init(value, derivative, step)
}

func (cl *cappedLinesearcher) Iterate(value, derivative float64) (optimize.Operation, float64, error) {
	cl.steps++
	if cl.steps > cl.MaxSteps {
		return optimize.NoOperation, 0, ErrLineSearchLimit
	}
	return cl.Linesearcher.Iterate(value, derivative)
}

// MinimizeBounded runs L-BFGS on f restricted to the box [lower, upper].
// f is only ever called at points inside the box: a trial point outside is
// scored at its projection plus BoundPenalty times the squared distance to
// the box, so the gradient out there points back in. Gradients are one
// sided differences taken toward the inside of the box at the upper bound.
// The result is the best point f was evaluated at. A non-nil error with a
// non-nil result means the search stopped early.
func MinimizeBounded(f func([]float64) float64, x0, lower, upper []float64, settings *LocalSettings) (res *Result, err error) {
	var (
		dim = len(x0)
		s   = settings.withDefaults()
	)
	if len(lower) != dim || len(upper) != dim || dim == 0 {
		err = errors.Errorf("start point and bounds must be non-empty and of equal length, have %d, %d, %d",
			dim, len(lower), len(upper))
		return
	}
	for i := range lower {
		if lower[i] > upper[i] {
			err = errors.Errorf("bound %d is empty: [%g, %g]", i, lower[i], upper[i])
			return
		}
	}
	var (
		evaluations int
		xc          = make([]float64, dim)
		work        = make([]float64, dim)
		bestX       = make([]float64, dim)
		bestF       = math.Inf(1)
		penalized   = func(x []float64) float64 {
			evaluations++
			Clamp(x, lower, upper, xc)
			fx := f(xc)
			if fx < bestF {
				bestF = fx
				copy(bestX, xc)
			}
			var outside float64
			for i := range x {
				outside += (x[i] - xc[i]) * (x[i] - xc[i])
			}
			return fx + s.BoundPenalty*outside
		}
		forward  = &fd.Settings{Formula: fd.Forward, Step: s.GradientStepEps}
		backward = &fd.Settings{Formula: fd.Backward, Step: s.GradientStepEps}
		problem  = optimize.Problem{
			Func: penalized,
			Grad: func(grad, x []float64) {
				for i := range x {
					copy(work, x)
					fs := forward
					if x[i]+s.GradientStepEps > upper[i] {
						fs = backward
					}
					k := i
					grad[i] = fd.Derivative(func(v float64) float64 {
						work[k] = v
						return penalized(work)
					}, x[i], fs)
				}
			},
		}
		optSettings = &optimize.Settings{
			MajorIterations:   s.MaxIterations,
			FuncEvaluations:   s.MaxEvaluations,
			GradientThreshold: s.GradientTolerance,
			Converger: &optimize.FunctionConverge{
				Absolute:   1.e-12,
				Relative:   1.e-12,
				Iterations: 20,
			},
		}
		method = &optimize.LBFGS{
			Linesearcher: &cappedLinesearcher{
				Linesearcher: &optimize.MoreThuente{},
				MaxSteps:     s.MaxLineSearchSteps,
			},
		}
		start = Clamp(x0, lower, upper, make([]float64, dim))
	)
	result, mErr := optimize.Minimize(problem, start, optSettings, method)
	res = &Result{
		X:           bestX,
		F:           bestF,
		Evaluations: evaluations,
	}
	if evaluations == 0 {
		res.X = start
	}
	if result != nil {
		res.Iterations = result.Stats.MajorIterations
		res.Status = result.Status.String()
	}
	if mErr != nil {
		err = errors.Wrap(mErr, "bounded local search stopped")
	}
	return
}

// Clamp writes x projected onto [lower, upper] into dst and returns it
func Clamp(x, lower, upper, dst []float64) []float64 {
	for i, v := range x {
		dst[i] = math.Min(math.Max(v, lower[i]), upper[i])
	}
	return dst
}
