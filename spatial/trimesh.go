package spatial

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/tmscoil/geometry"
)

// TriMesh is a triangulated surface. Closed surfaces are required for
// point-inside queries; nearest distance works on any triangle soup.
type TriMesh struct {
	Vertices  []r3.Vec
	Triangles [][3]int
}

func NewTriMesh(vertices []r3.Vec, triangles [][3]int) (tm *TriMesh, err error) {
	tm = &TriMesh{
		Vertices:  vertices,
		Triangles: triangles,
	}
	if err = tm.Validate(); err != nil {
		return nil, err
	}
	return
}

func (tm *TriMesh) Validate() (err error) {
	nv := len(tm.Vertices)
	for k, tri := range tm.Triangles {
		for _, v := range tri {
			if v < 0 || v >= nv {
				err = errors.Errorf("triangle %d references vertex %d, mesh has %d vertices", k, v, nv)
				return
			}
		}
	}
	return
}

func (tm *TriMesh) Triangle(k int) [3]r3.Vec {
	tri := tm.Triangles[k]
	return [3]r3.Vec{tm.Vertices[tri[0]], tm.Vertices[tri[1]], tm.Vertices[tri[2]]}
}

// Transform returns a copy of the mesh with A applied to every vertex
func (tm *TriMesh) Transform(A geometry.Affine) *TriMesh {
	tris := make([][3]int, len(tm.Triangles))
	copy(tris, tm.Triangles)
	return &TriMesh{
		Vertices:  A.TransformPoints(tm.Vertices),
		Triangles: tris,
	}
}

// Join appends other to a copy of the receiver, offsetting its indices
func (tm *TriMesh) Join(other *TriMesh) *TriMesh {
	var (
		nv    = len(tm.Vertices)
		verts = make([]r3.Vec, 0, nv+len(other.Vertices))
		tris  = make([][3]int, 0, len(tm.Triangles)+len(other.Triangles))
	)
	verts = append(verts, tm.Vertices...)
	verts = append(verts, other.Vertices...)
	tris = append(tris, tm.Triangles...)
	for _, tri := range other.Triangles {
		tris = append(tris, [3]int{tri[0] + nv, tri[1] + nv, tri[2] + nv})
	}
	return &TriMesh{Vertices: verts, Triangles: tris}
}

func (tm *TriMesh) Bounds() r3.Box {
	return boundsOf(tm.Vertices)
}

func boundsOf(P []r3.Vec) (b r3.Box) {
	b = emptyBox()
	for _, p := range P {
		b = growBox(b, p)
	}
	return
}

func emptyBox() r3.Box {
	inf := math.Inf(1)
	return r3.Box{
		Min: r3.Vec{X: inf, Y: inf, Z: inf},
		Max: r3.Vec{X: -inf, Y: -inf, Z: -inf},
	}
}

func growBox(b r3.Box, p r3.Vec) r3.Box {
	b.Min = r3.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)}
	b.Max = r3.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)}
	return b
}

func unionBox(a, b r3.Box) r3.Box {
	return growBox(growBox(a, b.Min), b.Max)
}

// NewBoxMesh is a closed, outward oriented, axis aligned box surface
func NewBoxMesh(min, max r3.Vec) *TriMesh {
	verts := []r3.Vec{
		{X: min.X, Y: min.Y, Z: min.Z},
		{X: max.X, Y: min.Y, Z: min.Z},
		{X: max.X, Y: max.Y, Z: min.Z},
		{X: min.X, Y: max.Y, Z: min.Z},
		{X: min.X, Y: min.Y, Z: max.Z},
		{X: max.X, Y: min.Y, Z: max.Z},
		{X: max.X, Y: max.Y, Z: max.Z},
		{X: min.X, Y: max.Y, Z: max.Z},
	}
	tris := [][3]int{
		{0, 2, 1}, {0, 3, 2}, // bottom
		{4, 5, 6}, {4, 6, 7}, // top
		{0, 1, 5}, {0, 5, 4}, // front
		{2, 3, 7}, {2, 7, 6}, // back
		{1, 2, 6}, {1, 6, 5}, // right
		{3, 0, 4}, {3, 4, 7}, // left
	}
	return &TriMesh{Vertices: verts, Triangles: tris}
}
