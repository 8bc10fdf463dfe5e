package coil

import (
	"bytes"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/tmscoil/geometry"
	"github.com/notargets/tmscoil/spatial"
)

// halfSpace is everything below the plane z = Level
type halfSpace struct {
	Level float64
}

func (h halfSpace) PointsInside(points []r3.Vec) (inside []bool) {
	inside = make([]bool, len(points))
	for i, p := range points {
		inside[i] = p.Z < h.Level
	}
	return
}

func (h halfSpace) MinSqDist(points []r3.Vec) (d []float64) {
	d = make([]float64, len(points))
	for i, p := range points {
		d[i] = (p.Z - h.Level) * (p.Z - h.Level)
	}
	return
}

func rotatingSquare(t *testing.T) (*Coil, *Deformation) {
	d, err := NewRotationDeformation(r3.Vec{}, r3.Vec{X: 1}, 0, [2]float64{-90, 90})
	require.NoError(t, err)
	el, err := NewDipoleElement("square", []r3.Vec{{}}, []r3.Vec{{Z: 1}}, NewCasing(square(0), nil, nil),
		[]*Deformation{d}, nil)
	require.NoError(t, err)
	return NewCoil(Metadata{Name: "square"}, nil, el), d
}

func TestOptimizeDeformationsPlane(t *testing.T) {
	{ // Rotating cannot bring a centered square closer to a parallel plane
		c, d := rotatingSquare(t)
		var buf bytes.Buffer
		settings := DefaultOptimizerSettings()
		settings.Progress = &buf
		initial, best, err := c.OptimizeDeformations(halfSpace{Level: -5}, geometry.Identity(), settings)
		require.NoError(t, err)
		assert.InDelta(t, 5., initial, 1.e-12)
		assert.InDelta(t, 5., best, 1.e-9)
		assert.True(t, best <= initial)
		assert.True(t, d.Current() >= -90 && d.Current() <= 90)
		intersecting, _ := c.Scores(halfSpace{Level: -5}, geometry.Identity())
		assert.False(t, intersecting)
		assert.Contains(t, buf.String(), "initial mean distance")
	}
	{ // Starting inside the target is refused before any search
		c, d := rotatingSquare(t)
		_, _, err := c.OptimizeDeformations(halfSpace{Level: 2}, geometry.Identity(), nil)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Equal(t, 0., d.Current())
	}
}

func TestOptimizeDeformationsPreconditions(t *testing.T) {
	{ // Nothing to optimize
		el, err := NewDipoleElement("", []r3.Vec{{}}, []r3.Vec{{Z: 1}}, NewCasing(square(0), nil, nil), nil, nil)
		require.NoError(t, err)
		c := NewCoil(Metadata{}, nil, el)
		_, _, err = c.OptimizeDeformations(halfSpace{Level: -5}, geometry.Identity(), nil)
		assert.True(t, errors.Is(err, ErrValidation))
	}
	{ // Nothing to score
		d, err := NewTranslationDeformation(r3.Vec{Z: 1}, 0, [2]float64{-1, 1})
		require.NoError(t, err)
		el, err := NewDipoleElement("", []r3.Vec{{}}, []r3.Vec{{Z: 1}}, nil, []*Deformation{d}, nil)
		require.NoError(t, err)
		c := NewCoil(Metadata{}, nil, el)
		_, _, err = c.OptimizeDeformations(halfSpace{Level: -5}, geometry.Identity(), nil)
		assert.True(t, errors.Is(err, ErrValidation))
	}
	{ // Intersect points alone leave nothing to measure
		d, err := NewTranslationDeformation(r3.Vec{Z: 1}, 0, [2]float64{-1, 1})
		require.NoError(t, err)
		el, err := NewDipoleElement("", []r3.Vec{{}}, []r3.Vec{{Z: 1}}, NewCasing(nil, nil, square(0)),
			[]*Deformation{d}, nil)
		require.NoError(t, err)
		c := NewCoil(Metadata{}, nil, el)
		initial, best, err := c.OptimizeDeformations(halfSpace{Level: -5}, geometry.Identity(), nil)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Equal(t, 0., initial)
		assert.Equal(t, 0., best)
		assert.Equal(t, 0., d.Current())
	}
	{
		c, _ := rotatingSquare(t)
		_, _, err := c.OptimizeDeformations(nil, geometry.Identity(), nil)
		assert.True(t, errors.Is(err, ErrValidation))
	}
	{ // Invalid models surface their own error kind
		bad := &Deformation{Kind: Translation, Axis: r3.Vec{Z: 1}, Range: [2]float64{1, 2}}
		el, err := NewDipoleElement("", []r3.Vec{{}}, []r3.Vec{{Z: 1}}, NewCasing(square(0), nil, nil),
			[]*Deformation{bad}, nil)
		require.NoError(t, err)
		c := NewCoil(Metadata{}, nil, el)
		_, _, err = c.OptimizeDeformations(halfSpace{Level: -5}, geometry.Identity(), nil)
		assert.True(t, errors.Is(err, ErrConfiguration))
	}
}

// liftedCoil hovers a square casing 10mm above the top face of a slab, free
// to move vertically and sideways
func liftedCoil(t *testing.T) (c *Coil, target *spatial.AABBTree) {
	var err error
	target, err = spatial.NewAABBTree(spatial.NewBoxMesh(r3.Vec{X: -50, Y: -50, Z: -20}, r3.Vec{X: 50, Y: 50}))
	require.NoError(t, err)
	up, err := NewTranslationDeformation(r3.Vec{Z: 1}, 0, [2]float64{-20, 5})
	require.NoError(t, err)
	side, err := NewTranslationDeformation(r3.Vec{X: 1}, 0, [2]float64{-10, 10})
	require.NoError(t, err)
	el, err := NewDipoleElement("lifted", []r3.Vec{{Z: 15}}, []r3.Vec{{Z: 1}},
		NewCasing(square(10), nil, nil), []*Deformation{up, side}, nil)
	require.NoError(t, err)
	c = NewCoil(Metadata{Name: "lifted"}, nil, el)
	return
}

func TestOptimizeDeformationsSlab(t *testing.T) {
	c, target := liftedCoil(t)
	settings := DefaultOptimizerSettings()
	settings.DirectMaxEvaluations = 400
	initial, best, err := c.OptimizeDeformations(target, geometry.Identity(), settings)
	require.NoError(t, err)
	assert.InDelta(t, 10., initial, 1.e-12)
	{ // The gap closes without entering the slab
		assert.True(t, best < 0.5, "best %g", best)
		assert.True(t, best <= initial)
		intersecting, distance := c.Scores(target, geometry.Identity())
		assert.False(t, intersecting)
		assert.InDelta(t, best, distance, 1.e-12)
		for _, d := range c.Deformations() {
			assert.True(t, d.Current() >= d.Min() && d.Current() <= d.Max())
		}
		assert.InDelta(t, -10., c.Deformations()[0].Current(), 0.5)
	}
	{ // A second run starts from the first result and does not lose ground
		again, best2, err := c.OptimizeDeformations(target, geometry.Identity(), settings)
		require.NoError(t, err)
		assert.InDelta(t, best, again, 1.e-12)
		assert.True(t, best2 <= best+1.e-12)
		intersecting, _ := c.Scores(target, geometry.Identity())
		assert.False(t, intersecting)
	}
	{
		dist := c.CasingDistances(target, geometry.Identity())
		require.Len(t, dist, 4)
		for _, d := range dist {
			assert.False(t, math.IsNaN(d))
			assert.True(t, d < 0.5)
		}
	}
}

func TestScores(t *testing.T) {
	d, err := NewTranslationDeformation(r3.Vec{Z: 1}, 0, [2]float64{-10, 10})
	require.NoError(t, err)
	cs := NewCasing(append(square(4), square(8)...), square(8), []r3.Vec{{Z: 1}})
	el, err := NewDipoleElement("", []r3.Vec{{}}, []r3.Vec{{Z: 1}}, cs, []*Deformation{d}, nil)
	require.NoError(t, err)
	c := NewCoil(Metadata{}, nil, el)
	{ // Only the selected subsets are scored
		intersecting, distance := c.Scores(halfSpace{}, geometry.Identity())
		assert.False(t, intersecting)
		assert.InDelta(t, 8., distance, 1.e-12)
	}
	{
		require.NoError(t, d.SetCurrent(-2))
		intersecting, distance := c.Scores(halfSpace{}, geometry.Identity())
		assert.True(t, intersecting)
		assert.InDelta(t, 6., distance, 1.e-12)
	}
	{ // Without subsets every casing point counts
		cs.MinDistancePoints, cs.IntersectPoints = nil, nil
		require.NoError(t, d.SetCurrent(-3))
		intersecting, distance := c.Scores(halfSpace{}, geometry.Identity())
		assert.False(t, intersecting)
		assert.InDelta(t, 3., distance, 1.e-12)
		require.NoError(t, d.SetCurrent(-5))
		intersecting, _ = c.Scores(halfSpace{}, geometry.Identity())
		assert.True(t, intersecting)
	}
}

// wall is the half space x > Level. The distance to it shrinks all the way
// through the wall, so every step toward a closer setting past Level is an
// intersecting one. Every distance query is recorded.
type wall struct {
	Level  float64
	queries []wallQuery
}

type wallQuery struct {
	X      float64
	Inside bool
}

func (w *wall) PointsInside(points []r3.Vec) (inside []bool) {
	inside = make([]bool, len(points))
	for i, p := range points {
		inside[i] = p.X > w.Level
	}
	return
}

func (w *wall) MinSqDist(points []r3.Vec) (d []float64) {
	d = make([]float64, len(points))
	for i, p := range points {
		w.queries = append(w.queries, wallQuery{X: p.X, Inside: p.X > w.Level})
		d[i] = (10 - p.X) * (10 - p.X)
	}
	return
}

func TestOptimizeDeformationsKeepsBestEver(t *testing.T) {
	slide, err := NewTranslationDeformation(r3.Vec{X: 1}, 0, [2]float64{-10, 10})
	require.NoError(t, err)
	el, err := NewDipoleElement("tip", []r3.Vec{{}}, []r3.Vec{{Z: 1}}, NewCasing([]r3.Vec{{}}, nil, nil),
		[]*Deformation{slide}, nil)
	require.NoError(t, err)
	c := NewCoil(Metadata{}, nil, el)
	target := &wall{Level: 5}

	initial, best, err := c.OptimizeDeformations(target, geometry.Identity(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 10., initial, 1.e-12)

	var (
		bestAt    = -1
		bestX     float64
		intersect bool
	)
	for i, p := range target.queries {
		intersect = intersect || p.Inside
		if !p.Inside && (bestAt < 0 || 10-p.X < 10-bestX) {
			bestAt, bestX = i, p.X
		}
	}
	require.True(t, bestAt >= 0)
	// The global phase already samples inside the wall
	assert.True(t, intersect)
	{ // Later candidates were worse or intersecting, yet the best one is kept
		var worseAfter bool
		for _, p := range target.queries[bestAt+1:] {
			worseAfter = worseAfter || p.Inside || 10-p.X > 10-bestX
		}
		assert.True(t, worseAfter)
	}
	assert.InDelta(t, bestX, slide.Current(), 1.e-12)
	assert.InDelta(t, 10-bestX, best, 1.e-12)
	assert.True(t, slide.Current() <= 5)
	assert.True(t, best < 5.1, "best %g", best)
	intersecting, distance := c.Scores(target, geometry.Identity())
	assert.False(t, intersecting)
	assert.InDelta(t, best, distance, 1.e-12)
}
