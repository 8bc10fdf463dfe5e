package coil

import (
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/notargets/tmscoil/geometry"
	"github.com/notargets/tmscoil/search"
	"github.com/notargets/tmscoil/spatial"
)

// OptimizerSettings tunes the three search phases. Zero values fall back to
// the defaults of DefaultOptimizerSettings.
type OptimizerSettings struct {
	GradientStepEps        float64   `json:"GradientStepEps"`
	MaxLineSearchSteps     int       `json:"MaxLineSearchSteps"`
	DirectMaxEvaluations   int       `json:"DirectMaxEvaluations"` // 0: 1000 per deformation
	DirectMaxIterations    int       `json:"DirectMaxIterations"`
	DirectEpsilon          float64   `json:"DirectEpsilon"`
	DirectLengthTolerance  float64   `json:"DirectLengthTolerance"`
	DirectVolumeTolerance  float64   `json:"DirectVolumeTolerance"`
	LocalMaxIterations     int       `json:"LocalMaxIterations"`
	LocalGradientTolerance float64   `json:"LocalGradientTolerance"`
	Progress               io.Writer `json:"-"`
}

func DefaultOptimizerSettings() *OptimizerSettings {
	return &OptimizerSettings{
		GradientStepEps:        1.e-3,
		MaxLineSearchSteps:     100,
		DirectMaxIterations:    1000,
		DirectEpsilon:          1.e-4,
		DirectLengthTolerance:  1.e-6,
		DirectVolumeTolerance:  1.e-16,
		LocalMaxIterations:     15000,
		LocalGradientTolerance: 1.e-5,
	}
}

func (s *OptimizerSettings) direct() *search.DirectSettings {
	return &search.DirectSettings{
		MaxEvaluations:  s.DirectMaxEvaluations,
		MaxIterations:   s.DirectMaxIterations,
		Epsilon:         s.DirectEpsilon,
		LengthTolerance: s.DirectLengthTolerance,
		VolumeTolerance: s.DirectVolumeTolerance,
	}
}

func (s *OptimizerSettings) local() *search.LocalSettings {
	return &search.LocalSettings{
		GradientStepEps:    s.GradientStepEps,
		MaxLineSearchSteps: s.MaxLineSearchSteps,
		MaxIterations:      s.LocalMaxIterations,
		MaxEvaluations:     s.LocalMaxIterations,
		GradientTolerance:  s.LocalGradientTolerance,
	}
}

func (s *OptimizerSettings) logf(format string, args ...interface{}) {
	if s.Progress != nil {
		fmt.Fprintf(s.Progress, format, args...)
	}
}

// Scores places the casing with the current deformations and measures it
// against target. Empty min distance or intersect sets fall back to all
// casing points.
func (c *Coil) Scores(target spatial.Index, affine geometry.Affine) (intersecting bool, meanDistance float64) {
	points, minDistance, intersect := c.CasingCoordinates(affine, true)
	if len(minDistance) == 0 {
		minDistance = points
	}
	if len(intersect) == 0 {
		intersect = points
	}
	intersecting = spatial.AnyInside(target, intersect)
	meanDistance = stat.Mean(distances(target, minDistance), nil)
	return
}

func distances(target spatial.Index, points []r3.Vec) (dist []float64) {
	dist = target.MinSqDist(points)
	for i := range dist {
		dist[i] = math.Sqrt(dist[i])
	}
	return
}

// searchState is threaded through every cost evaluation of one optimization
// and holds the best non intersecting settings seen so far.
type searchState struct {
	coil            *Coil
	target          spatial.Index
	affine          geometry.Affine
	deformations    []*Deformation
	initialDistance float64
	bestSettings    []float64
	bestDistance    float64
	evaluations     int
}

func (ss *searchState) apply(x []float64) {
	for i, d := range ss.deformations {
		d.setClamped(x[i])
	}
}

func (ss *searchState) settings() (x []float64) {
	x = make([]float64, len(ss.deformations))
	for i, d := range ss.deformations {
		x[i] = d.current
	}
	return
}

// cost penalizes intersection by the initial distance, so any feasible
// point beats any intersecting one that is not much closer
func (ss *searchState) cost(x []float64) (f float64) {
	ss.evaluations++
	ss.apply(x)
	intersecting, distance := ss.coil.Scores(ss.target, ss.affine)
	f = distance
	if intersecting {
		f += ss.initialDistance
		return
	}
	if f < ss.bestDistance {
		ss.bestDistance = f
		for i, d := range ss.deformations {
			ss.bestSettings[i] = d.current
		}
	}
	return
}

func (ss *searchState) bounds() (lower, upper []float64) {
	lower, upper = make([]float64, len(ss.deformations)), make([]float64, len(ss.deformations))
	for i, d := range ss.deformations {
		lower[i], upper[i] = d.Min(), d.Max()
	}
	return
}

// OptimizeDeformations moves the coil's deformations to bring the casing as
// close to target as possible without any intersect point entering it. The
// search runs a global DIRECT phase, a joint bounded quasi-Newton phase and a
// per deformation refinement. The best non intersecting settings found in
// any phase are written back. It returns the mean casing distance before and
// after.
func (c *Coil) OptimizeDeformations(target spatial.Index, affine geometry.Affine,
	settings *OptimizerSettings) (initial, best float64, err error) {
	if settings == nil {
		settings = DefaultOptimizerSettings()
	}
	if target == nil {
		err = errors.Wrap(ErrValidation, "no optimization target")
		return
	}
	if len(c.deformations) == 0 {
		err = errors.Wrap(ErrValidation, "coil has no deformations to optimize")
		return
	}
	if err = c.Validate(); err != nil {
		return
	}
	points, minDistance, _ := c.CasingCoordinates(geometry.Identity(), true)
	if len(minDistance) == 0 && len(points) == 0 {
		err = errors.Wrap(ErrValidation, "coil has no min distance or casing points to measure")
		return
	}
	intersecting, distance := c.Scores(target, affine)
	if intersecting {
		err = errors.Wrap(ErrValidation, "initial intersection detected")
		return
	}

	ss := &searchState{
		coil:            c,
		target:          target,
		affine:          affine,
		deformations:    c.deformations,
		initialDistance: math.Abs(distance),
	}
	var (
		x0           = ss.settings()
		lower, upper = ss.bounds()
		n            = len(x0)
	)
	ss.bestSettings = append([]float64{}, x0...)
	ss.bestDistance = math.Inf(1)
	ss.cost(x0)
	initial = ss.initialDistance
	settings.logf("Optimizing %d deformations, initial mean distance %8.5f\n", n, initial)

	// Global phase in offsets from the start, so the origin is the start
	var (
		lo, hi = make([]float64, n), make([]float64, n)
		xs     = make([]float64, n)
	)
	for i := range x0 {
		lo[i], hi[i] = lower[i]-x0[i], upper[i]-x0[i]
	}
	offsetCost := func(dx []float64) float64 {
		for i := range xs {
			xs[i] = x0[i] + dx[i]
		}
		return ss.cost(xs)
	}
	res, derr := search.Direct(offsetCost, lo, hi, settings.direct())
	if derr != nil {
		settings.logf("Global search stopped: %v\n", derr)
	} else {
		settings.logf("Global search: %d evaluations, %s, best %8.5f\n", res.Evaluations, res.Status, ss.bestDistance)
	}

	// Joint refinement from the best feasible point
	start := append([]float64{}, ss.bestSettings...)
	if res, lerr := search.MinimizeBounded(ss.cost, start, lower, upper, settings.local()); lerr != nil {
		settings.logf("Joint local search stopped: %v\n", lerr)
	} else {
		settings.logf("Joint local search: %d evaluations, best %8.5f\n", res.Evaluations, ss.bestDistance)
	}

	// Refinement one deformation at a time around the running best
	trial := make([]float64, n)
	for i := 0; i < n; i++ {
		base := append([]float64{}, ss.bestSettings...)
		dim := i
		cost1 := func(xx []float64) float64 {
			copy(trial, base)
			trial[dim] = xx[0]
			return ss.cost(trial)
		}
		if _, lerr := search.MinimizeBounded(cost1, []float64{base[i]},
			[]float64{lower[i]}, []float64{upper[i]}, settings.local()); lerr != nil {
			settings.logf("Refinement of deformation %d stopped: %v\n", i, lerr)
		}
	}

	ss.apply(ss.bestSettings)
	best = ss.bestDistance
	settings.logf("Finished after %d evaluations, best mean distance %8.5f\n", ss.evaluations, best)
	return
}

// DeformationSettings returns the current value of every distinct deformation
func (c *Coil) DeformationSettings() (x []float64) {
	x = make([]float64, len(c.deformations))
	for i, d := range c.deformations {
		x[i] = d.current
	}
	return
}

// CasingDistances returns the distance of every min distance point (or
// casing point when there are none) to target
func (c *Coil) CasingDistances(target spatial.Index, affine geometry.Affine) (dist []float64) {
	points, minDistance, _ := c.CasingCoordinates(affine, true)
	if len(minDistance) == 0 {
		minDistance = points
	}
	return distances(target, minDistance)
}
