package coil

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/tmscoil/geometry"
	"github.com/notargets/tmscoil/spatial"
)

// Casing is the physical hull of the coil or of one element. The optional
// point subsets select which points score proximity (MinDistancePoints) and
// which must never enter the target (IntersectPoints).
type Casing struct {
	Mesh              *spatial.TriMesh
	Points            []r3.Vec
	MinDistancePoints []r3.Vec
	IntersectPoints   []r3.Vec
}

func NewCasing(points, minDistancePoints, intersectPoints []r3.Vec) *Casing {
	return &Casing{
		Points:            points,
		MinDistancePoints: minDistancePoints,
		IntersectPoints:   intersectPoints,
	}
}

// NewCasingFromMesh uses the mesh vertices as the casing points
func NewCasingFromMesh(mesh *spatial.TriMesh, minDistancePoints, intersectPoints []r3.Vec) *Casing {
	cs := NewCasing(mesh.Vertices, minDistancePoints, intersectPoints)
	cs.Mesh = mesh
	return cs
}

// Coordinates transforms all three point sets, absent subsets come back empty
func (cs *Casing) Coordinates(A geometry.Affine) (points, minDistance, intersect []r3.Vec) {
	return A.TransformPoints(cs.Points),
		A.TransformPoints(cs.MinDistancePoints),
		A.TransformPoints(cs.IntersectPoints)
}
