package spatial

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/tmscoil/utils"
)

// Index answers the two batch queries the deformation optimizer scores
// against. Implementations must be deterministic for a fixed surface and
// point set.
type Index interface {
	// PointsInside reports whether each point lies inside the closed surface
	PointsInside(points []r3.Vec) []bool
	// MinSqDist is the squared distance from each point to the surface
	MinSqDist(points []r3.Vec) []float64
}

func AnyInside(idx Index, points []r3.Vec) bool {
	for _, in := range idx.PointsInside(points) {
		if in {
			return true
		}
	}
	return false
}

const leafSize = 4

// The ray direction is deliberately skewed off every axis and diagonal so
// rays rarely graze shared edges of axis aligned meshes.
var insideRayDir = r3.Unit(r3.Vec{X: 0.5773, Y: 0.3127, Z: 0.7547})

type aabbNode struct {
	box         r3.Box
	left, right int // child node indices, -1 for leaves
	start, end  int // leaf triangle range in AABBTree.order
}

// AABBTree is a static bounding box hierarchy over the triangles of a mesh
type AABBTree struct {
	mesh  *TriMesh
	tris  [][3]r3.Vec
	boxes []r3.Box
	order []int
	nodes []aabbNode
}

func NewAABBTree(mesh *TriMesh) (tree *AABBTree, err error) {
	if mesh == nil || len(mesh.Triangles) == 0 {
		err = errors.New("cannot build an AABB tree from an empty surface")
		return
	}
	if err = mesh.Validate(); err != nil {
		return
	}
	var (
		Nt        = len(mesh.Triangles)
		centroids = make([]r3.Vec, Nt)
	)
	tree = &AABBTree{
		mesh:  mesh,
		tris:  make([][3]r3.Vec, Nt),
		boxes: make([]r3.Box, Nt),
		order: make([]int, Nt),
	}
	for k := 0; k < Nt; k++ {
		tri := mesh.Triangle(k)
		tree.tris[k] = tri
		tree.boxes[k] = boundsOf(tri[:])
		centroids[k] = r3.Scale(1./3., r3.Add(r3.Add(tri[0], tri[1]), tri[2]))
		tree.order[k] = k
	}
	tree.build(0, Nt, centroids)
	return
}

func (tree *AABBTree) build(start, end int, centroids []r3.Vec) (nodeIndex int) {
	var (
		box  = emptyBox()
		cbox = emptyBox()
	)
	for _, k := range tree.order[start:end] {
		box = unionBox(box, tree.boxes[k])
		cbox = growBox(cbox, centroids[k])
	}
	nodeIndex = len(tree.nodes)
	tree.nodes = append(tree.nodes, aabbNode{box: box, left: -1, right: -1, start: start, end: end})
	if end-start <= leafSize {
		return
	}
	// Median split along the longest extent of the centroids
	var (
		ext  = r3.Sub(cbox.Max, cbox.Min)
		axis = func(p r3.Vec) float64 { return p.X }
	)
	if ext.Y > ext.X && ext.Y >= ext.Z {
		axis = func(p r3.Vec) float64 { return p.Y }
	} else if ext.Z > ext.X && ext.Z > ext.Y {
		axis = func(p r3.Vec) float64 { return p.Z }
	}
	sub := tree.order[start:end]
	sort.SliceStable(sub, func(i, j int) bool {
		return axis(centroids[sub[i]]) < axis(centroids[sub[j]])
	})
	mid := (start + end) / 2
	left := tree.build(start, mid, centroids)
	right := tree.build(mid, end, centroids)
	tree.nodes[nodeIndex].left, tree.nodes[nodeIndex].right = left, right
	return
}

func (tree *AABBTree) Mesh() *TriMesh { return tree.mesh }

func (tree *AABBTree) Bounds() r3.Box { return tree.nodes[0].box }

func (tree *AABBTree) PointsInside(points []r3.Vec) (inside []bool) {
	inside = make([]bool, len(points))
	pm := utils.NewPointPartitionMap(len(points))
	pm.Run(func(np, kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			inside[k] = tree.PointInside(points[k])
		}
	})
	return
}

func (tree *AABBTree) MinSqDist(points []r3.Vec) (sqDist []float64) {
	sqDist = make([]float64, len(points))
	pm := utils.NewPointPartitionMap(len(points))
	pm.Run(func(np, kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			sqDist[k] = tree.PointSqDist(points[k])
		}
	})
	return
}

// PointInside counts ray crossings, an odd count is inside
func (tree *AABBTree) PointInside(p r3.Vec) bool {
	if !boxContains(tree.nodes[0].box, p) {
		return false
	}
	var (
		crossings int
		stack     = []int{0}
	)
	for len(stack) > 0 {
		n := tree.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if !rayHitsBox(p, insideRayDir, n.box) {
			continue
		}
		if n.left < 0 {
			for _, k := range tree.order[n.start:n.end] {
				if rayHitsTriangle(p, insideRayDir, tree.tris[k]) {
					crossings++
				}
			}
			continue
		}
		stack = append(stack, n.left, n.right)
	}
	return crossings%2 == 1
}

// PointSqDist descends nearer children first and prunes boxes farther than
// the best distance found so far.
func (tree *AABBTree) PointSqDist(p r3.Vec) (best float64) {
	best = math.Inf(1)
	var search func(ni int)
	search = func(ni int) {
		n := tree.nodes[ni]
		if n.left < 0 {
			for _, k := range tree.order[n.start:n.end] {
				tri := tree.tris[k]
				d := r3.Norm2(r3.Sub(p, ClosestOnTriangle(p, tri[0], tri[1], tri[2])))
				if d < best {
					best = d
				}
			}
			return
		}
		var (
			l, r   = n.left, n.right
			dl, dr = boxSqDist(tree.nodes[l].box, p), boxSqDist(tree.nodes[r].box, p)
		)
		if dr < dl {
			l, r = r, l
			dl, dr = dr, dl
		}
		if dl < best {
			search(l)
		}
		if dr < best {
			search(r)
		}
	}
	search(0)
	return
}

func boxContains(b r3.Box, p r3.Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

func boxSqDist(b r3.Box, p r3.Vec) (d float64) {
	axisDist := func(v, lo, hi float64) float64 {
		switch {
		case v < lo:
			return lo - v
		case v > hi:
			return v - hi
		}
		return 0
	}
	dx := axisDist(p.X, b.Min.X, b.Max.X)
	dy := axisDist(p.Y, b.Min.Y, b.Max.Y)
	dz := axisDist(p.Z, b.Min.Z, b.Max.Z)
	return dx*dx + dy*dy + dz*dz
}

// rayHitsBox is the slab test for the ray o + t*d, t >= 0
func rayHitsBox(o, d r3.Vec, b r3.Box) bool {
	var (
		tMin = 0.
		tMax = math.Inf(1)
		oa   = [3]float64{o.X, o.Y, o.Z}
		da   = [3]float64{d.X, d.Y, d.Z}
		lo   = [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
		hi   = [3]float64{b.Max.X, b.Max.Y, b.Max.Z}
	)
	for i := 0; i < 3; i++ {
		if da[i] == 0 {
			if oa[i] < lo[i] || oa[i] > hi[i] {
				return false
			}
			continue
		}
		inv := 1 / da[i]
		t0, t1 := (lo[i]-oa[i])*inv, (hi[i]-oa[i])*inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tMin = math.Max(tMin, t0)
		tMax = math.Min(tMax, t1)
		if tMax < tMin {
			return false
		}
	}
	return true
}

// rayHitsTriangle tests the ray against the three edge functions of the
// triangle, hits at t <= 0 don't count. A ray through an edge shared by two
// triangles hits exactly one of them: the edge function of a shared edge
// changes sign exactly with the edge direction, and a zero takes the sign of
// that direction.
func rayHitsTriangle(o, d r3.Vec, tri [3]r3.Vec) bool {
	const eps = 1.e-12
	s0 := edgeSign(o, d, tri[0], tri[1])
	if edgeSign(o, d, tri[1], tri[2]) != s0 || edgeSign(o, d, tri[2], tri[0]) != s0 {
		return false
	}
	var (
		n   = r3.Cross(r3.Sub(tri[1], tri[0]), r3.Sub(tri[2], tri[0]))
		den = r3.Dot(d, n)
	)
	if math.Abs(den) < eps {
		return false
	}
	return r3.Dot(r3.Sub(tri[0], o), n)/den > eps
}

// edgeSign is the side of edge ab the ray passes, ties broken by the
// lexicographic direction of the edge
func edgeSign(o, d, a, b r3.Vec) int {
	e := r3.Dot(d, r3.Cross(r3.Sub(a, o), r3.Sub(b, o)))
	switch {
	case e > 0:
		return 1
	case e < 0:
		return -1
	case lexLess(a, b):
		return 1
	}
	return -1
}

func lexLess(a, b r3.Vec) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

// ClosestOnTriangle returns the point of triangle abc nearest to p, found by
// classifying p against the vertex, edge and face Voronoi regions.
func ClosestOnTriangle(p, a, b, c r3.Vec) r3.Vec {
	var (
		ab = r3.Sub(b, a)
		ac = r3.Sub(c, a)
		ap = r3.Sub(p, a)
		d1 = r3.Dot(ab, ap)
		d2 = r3.Dot(ac, ap)
	)
	if d1 <= 0 && d2 <= 0 {
		return a
	}
	bp := r3.Sub(p, b)
	d3, d4 := r3.Dot(ab, bp), r3.Dot(ac, bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}
	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		return r3.Add(a, r3.Scale(d1/(d1-d3), ab))
	}
	cp := r3.Sub(p, c)
	d5, d6 := r3.Dot(ab, cp), r3.Dot(ac, cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		return r3.Add(a, r3.Scale(d2/(d2-d6), ac))
	}
	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return r3.Add(b, r3.Scale(w, r3.Sub(c, b)))
	}
	denom := 1 / (va + vb + vc)
	v, w := vb*denom, vc*denom
	return r3.Add(a, r3.Add(r3.Scale(v, ab), r3.Scale(w, ac)))
}
