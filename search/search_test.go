package search

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/optimize"
)

func TestDirect(t *testing.T) {
	{ // Shifted quadratic in 2D
		f := func(x []float64) float64 {
			return (x[0]-0.7)*(x[0]-0.7) + (x[1]+1.3)*(x[1]+1.3) + 2
		}
		res, err := Direct(f, []float64{-5, -5}, []float64{5, 5}, nil)
		require.NoError(t, err)
		assert.InDelta(t, 0.7, res.X[0], 1.e-2)
		assert.InDelta(t, -1.3, res.X[1], 1.e-2)
		assert.InDelta(t, 2., res.F, 1.e-3)
		assert.True(t, res.Evaluations <= 2000+2)
	}
	{ // Branin has three global minima with value 0.397887
		branin := func(x []float64) float64 {
			var (
				a, b, c = 1., 5.1 / (4 * math.Pi * math.Pi), 5 / math.Pi
				r, s    = 6., 10.
				tt      = 1 / (8 * math.Pi)
			)
			y := x[1] - b*x[0]*x[0] + c*x[0] - r
			return a*y*y + s*(1-tt)*math.Cos(x[0]) + s
		}
		res, err := Direct(branin, []float64{-5, 0}, []float64{10, 15}, &DirectSettings{MaxEvaluations: 4000})
		require.NoError(t, err)
		assert.InDelta(t, 0.397887, res.F, 1.e-3)
	}
	{ // 1D with a deceptive local minimum
		f := func(x []float64) float64 {
			return math.Sin(3*x[0]) + 0.1*x[0]*x[0]
		}
		res, err := Direct(f, []float64{-4}, []float64{4}, nil)
		require.NoError(t, err)
		// global minimum near x = -0.5
		assert.InDelta(t, -0.51, res.X[0], 2.e-2)
		assert.NotEmpty(t, res.Status)
	}
	{ // Fixed dimension stays put
		f := func(x []float64) float64 { return (x[0]-1)*(x[0]-1) + x[1] }
		res, err := Direct(f, []float64{-2, 3}, []float64{2, 3}, nil)
		require.NoError(t, err)
		assert.Equal(t, 3., res.X[1])
		assert.InDelta(t, 1., res.X[0], 1.e-2)
	}
	{ // Evaluation budget is honored
		var count int
		f := func(x []float64) float64 { count++; return x[0] * x[1] }
		res, err := Direct(f, []float64{-1, -1}, []float64{1, 1}, &DirectSettings{MaxEvaluations: 50})
		require.NoError(t, err)
		assert.Equal(t, count, res.Evaluations)
		assert.True(t, count <= 52)
	}
	{
		_, err := Direct(func([]float64) float64 { return 0 }, []float64{1}, []float64{0}, nil)
		assert.Error(t, err)
		_, err = Direct(func([]float64) float64 { return 0 }, nil, nil, nil)
		assert.Error(t, err)
	}
}

func TestMinimizeBounded(t *testing.T) {
	{ // Interior minimum of a smooth bowl
		f := func(x []float64) float64 {
			return (x[0]-1)*(x[0]-1) + 10*(x[1]-2)*(x[1]-2)
		}
		res, _ := MinimizeBounded(f, []float64{0, 0}, []float64{-5, -5}, []float64{5, 5}, nil)
		require.NotNil(t, res)
		assert.InDelta(t, 1., res.X[0], 1.e-2)
		assert.InDelta(t, 2., res.X[1], 1.e-2)
		assert.InDelta(t, f(res.X), res.F, 1.e-15)
	}
	{ // Interior minimum of a tight box, reached from inside and from either bound
		f := func(x []float64) float64 { return (x[0] - 0.3) * (x[0] - 0.3) }
		for _, x0 := range []float64{0.6, 0.9, 0, 1} {
			var outside bool
			tracked := func(x []float64) float64 {
				outside = outside || x[0] < 0 || x[0] > 1
				return f(x)
			}
			res, _ := MinimizeBounded(tracked, []float64{x0}, []float64{0}, []float64{1}, nil)
			require.NotNil(t, res, "start %g", x0)
			assert.InDelta(t, 0.3, res.X[0], 1.e-2, "start %g", x0)
			assert.True(t, res.F < 1.e-4, "start %g reached f=%g", x0, res.F)
			assert.False(t, outside, "start %g", x0)
		}
	}
	{ // Two dimensions where the first steps overshoot the box
		f := func(x []float64) float64 { return (x[0]-0.5)*(x[0]-0.5) + 4*(x[1]-0.25)*(x[1]-0.25) }
		res, _ := MinimizeBounded(f, []float64{0, 1}, []float64{0, 0}, []float64{1, 1}, nil)
		require.NotNil(t, res)
		assert.InDelta(t, 0.5, res.X[0], 1.e-2)
		assert.InDelta(t, 0.25, res.X[1], 1.e-2)
		assert.True(t, res.F < f([]float64{0, 1}))
	}
	{ // Minimum outside the box lands on the boundary
		f := func(x []float64) float64 { return (x[0] - 10) * (x[0] - 10) }
		var seen []float64
		tracked := func(x []float64) float64 {
			seen = append(seen, x[0])
			return f(x)
		}
		res, _ := MinimizeBounded(tracked, []float64{0}, []float64{-1}, []float64{3}, nil)
		require.NotNil(t, res)
		assert.InDelta(t, 3., res.X[0], 1.e-3)
		for _, x := range seen {
			assert.True(t, x >= -1 && x <= 3)
		}
	}
	{ // Start outside the box is projected
		f := func(x []float64) float64 { return x[0] * x[0] }
		res, _ := MinimizeBounded(f, []float64{7}, []float64{1}, []float64{2}, nil)
		require.NotNil(t, res)
		assert.True(t, res.X[0] >= 1 && res.X[0] <= 2)
	}
	{
		_, err := MinimizeBounded(func([]float64) float64 { return 0 }, []float64{0}, []float64{1}, []float64{0}, nil)
		assert.Error(t, err)
		_, err = MinimizeBounded(func([]float64) float64 { return 0 }, []float64{0, 1}, []float64{1}, []float64{0}, nil)
		assert.Error(t, err)
	}
	{
		dst := make([]float64, 3)
		assert.Equal(t, []float64{0, 0.5, 1}, Clamp([]float64{-3, 0.5, 9}, []float64{0, 0, 0}, []float64{1, 1, 1}, dst))
	}
}

func TestCappedLinesearcher(t *testing.T) {
	cl := &cappedLinesearcher{Linesearcher: &stuckLinesearcher{}, MaxSteps: 3}
	cl.Init(1, -1, 1)
	for i := 0; i < 3; i++ {
		_, _, err := cl.Iterate(1, -1)
		require.NoError(t, err)
	}
	_, _, err := cl.Iterate(1, -1)
	assert.ErrorIs(t, err, ErrLineSearchLimit)
	cl.Init(1, -1, 1)
	_, _, err = cl.Iterate(1, -1)
	assert.NoError(t, err)
}

// stuckLinesearcher never accepts a step
type stuckLinesearcher struct{}

func (stuckLinesearcher) Init(value, derivative float64, step float64) optimize.Operation {
	return optimize.FuncEvaluation
}

func (stuckLinesearcher) Iterate(value, derivative float64) (optimize.Operation, float64, error) {
	return optimize.FuncEvaluation, 0.5, nil
}
