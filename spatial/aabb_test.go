package spatial

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/tmscoil/geometry"
)

// analytic squared distance from p to the surface of an axis aligned box
func boxSurfaceSqDist(min, max, p r3.Vec) float64 {
	b := r3.Box{Min: min, Max: max}
	if !boxContains(b, p) {
		return boxSqDist(b, p)
	}
	d := math.Min(math.Min(p.X-min.X, max.X-p.X), math.Min(p.Y-min.Y, max.Y-p.Y))
	d = math.Min(d, math.Min(p.Z-min.Z, max.Z-p.Z))
	return d * d
}

func TestAABBTree(t *testing.T) {
	var (
		min = r3.Vec{X: -1, Y: -2, Z: -3}
		max = r3.Vec{X: 2, Y: 1, Z: 0.5}
	)
	tree, err := NewAABBTree(NewBoxMesh(min, max))
	require.NoError(t, err)
	{ // Inside / outside on a box
		P := []r3.Vec{
			{X: 0.1, Y: -0.2, Z: 0.3},
			{X: 1.9, Y: 0.9, Z: -2.9},
			{X: 2.1, Y: 0, Z: 0},
			{X: 0.1, Y: -0.2, Z: 0.6},
			{X: -5, Y: 7, Z: 1},
		}
		assert.Equal(t, []bool{true, true, false, false, false}, tree.PointsInside(P))
		assert.True(t, AnyInside(tree, P))
		assert.False(t, AnyInside(tree, P[2:]))
	}
	{ // Squared distances against the analytic box distance
		rng := rand.New(rand.NewSource(1))
		P := make([]r3.Vec, 1000)
		for i := range P {
			P[i] = r3.Vec{X: 8*rng.Float64() - 4, Y: 8*rng.Float64() - 4, Z: 8*rng.Float64() - 4}
		}
		D := tree.MinSqDist(P)
		inside := tree.PointsInside(P)
		for i, p := range P {
			assert.InDelta(t, boxSurfaceSqDist(min, max, p), D[i], 1.e-10)
			assert.Equal(t, boxContains(r3.Box{Min: min, Max: max}, p), inside[i])
		}
	}
	{ // Transformed mesh moves with the transform
		mesh := NewBoxMesh(min, max).Transform(geometry.NewTranslation(r3.Vec{Z: 10}))
		moved, err := NewAABBTree(mesh)
		require.NoError(t, err)
		assert.Equal(t, []bool{false, true}, moved.PointsInside([]r3.Vec{{X: 0.1, Y: -0.2, Z: 0.3}, {X: 0.1, Y: -0.2, Z: 10.3}}))
		assert.InDelta(t, 0.25, moved.MinSqDist([]r3.Vec{{X: 0.1, Y: -0.2, Z: 6.5}})[0], 1.e-12)
	}
	{
		_, err := NewAABBTree(&TriMesh{})
		assert.Error(t, err)
		_, err = NewTriMesh([]r3.Vec{{}}, [][3]int{{0, 1, 2}})
		assert.Error(t, err)
	}
}

func TestClosestOnTriangle(t *testing.T) {
	var (
		a = r3.Vec{}
		b = r3.Vec{X: 1}
		c = r3.Vec{Y: 1}
	)
	// Face region projects straight down
	assert.Equal(t, r3.Vec{X: 0.25, Y: 0.25}, ClosestOnTriangle(r3.Vec{X: 0.25, Y: 0.25, Z: 3}, a, b, c))
	// Vertex regions
	assert.Equal(t, a, ClosestOnTriangle(r3.Vec{X: -1, Y: -1}, a, b, c))
	assert.Equal(t, b, ClosestOnTriangle(r3.Vec{X: 2, Y: -0.5}, a, b, c))
	assert.Equal(t, c, ClosestOnTriangle(r3.Vec{X: -0.5, Y: 2}, a, b, c))
	// Edge regions
	assert.Equal(t, r3.Vec{X: 0.5}, ClosestOnTriangle(r3.Vec{X: 0.5, Y: -1}, a, b, c))
	p := ClosestOnTriangle(r3.Vec{X: 1, Y: 1}, a, b, c)
	assert.InDelta(t, 0.5, p.X, 1.e-15)
	assert.InDelta(t, 0.5, p.Y, 1.e-15)
}

func TestTriMeshJoin(t *testing.T) {
	m1 := NewBoxMesh(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	m2 := NewBoxMesh(r3.Vec{X: 5}, r3.Vec{X: 6, Y: 1, Z: 1})
	j := m1.Join(m2)
	require.NoError(t, j.Validate())
	assert.Len(t, j.Vertices, 16)
	assert.Len(t, j.Triangles, 24)
	assert.Equal(t, [3]int{8, 10, 9}, j.Triangles[12])
	b := j.Bounds()
	assert.Equal(t, r3.Vec{}, b.Min)
	assert.Equal(t, r3.Vec{X: 6, Y: 1, Z: 1}, b.Max)
	tree, err := NewAABBTree(j)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, tree.PointsInside([]r3.Vec{
		{X: 0.3, Y: 0.4, Z: 0.45}, {X: 3, Y: 0.4, Z: 0.45}, {X: 5.3, Y: 0.4, Z: 0.45}}))
}

func TestRayThroughSharedEdge(t *testing.T) {
	var (
		a, b, c, d = r3.Vec{}, r3.Vec{X: 1}, r3.Vec{X: 1, Y: 1}, r3.Vec{Y: 1}
		up         = r3.Vec{Z: 1}
		crossings  = func(o r3.Vec, tris ...[3]r3.Vec) (n int) {
			for _, tri := range tris {
				if rayHitsTriangle(o, up, tri) {
					n++
				}
			}
			return
		}
	)
	// The unit square split along its diagonal, the ray meets the diagonal
	below := r3.Vec{X: 0.5, Y: 0.5, Z: -1}
	assert.Equal(t, 1, crossings(below, [3]r3.Vec{a, b, c}, [3]r3.Vec{a, c, d}))
	// Same with the second triangle wound the other way
	assert.Equal(t, 1, crossings(below, [3]r3.Vec{a, b, c}, [3]r3.Vec{a, d, c}))
	// Interior hit, miss, and a hit behind the origin
	assert.Equal(t, 1, crossings(r3.Vec{X: 0.7, Y: 0.2, Z: -1}, [3]r3.Vec{a, b, c}, [3]r3.Vec{a, c, d}))
	assert.Equal(t, 0, crossings(r3.Vec{X: 1.5, Y: 0.5, Z: -1}, [3]r3.Vec{a, b, c}, [3]r3.Vec{a, c, d}))
	assert.Equal(t, 0, crossings(r3.Vec{X: 0.5, Y: 0.5, Z: 1}, [3]r3.Vec{a, b, c}, [3]r3.Vec{a, c, d}))
	{ // A closed box pierced straight through its face diagonals counts two crossings
		box := NewBoxMesh(r3.Vec{X: -1, Y: -1, Z: -1}, r3.Vec{X: 1, Y: 1, Z: 1})
		var n int
		for k := range box.Triangles {
			if rayHitsTriangle(r3.Vec{Z: -5}, up, box.Triangle(k)) {
				n++
			}
		}
		assert.Equal(t, 2, n)
	}
}
