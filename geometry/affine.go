package geometry

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Affine is a 4x4 homogeneous transform in row major order. The upper left
// 3x3 block holds rotation and scale, the last column holds the translation.
type Affine [4][4]float64

func Identity() (A Affine) {
	for i := 0; i < 4; i++ {
		A[i][i] = 1
	}
	return
}

// NewAffine builds an Affine from 16 row major values
func NewAffine(data []float64) (A Affine, err error) {
	if len(data) != 16 {
		err = errors.Errorf("affine needs 16 values, have %d", len(data))
		return
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			A[i][j] = data[4*i+j]
		}
	}
	return
}

func NewTranslation(t r3.Vec) (A Affine) {
	A = Identity()
	A[0][3], A[1][3], A[2][3] = t.X, t.Y, t.Z
	return
}

// NewScaleTranslation is the voxel index to position map of a regular grid
func NewScaleTranslation(scale, t r3.Vec) (A Affine) {
	A = NewTranslation(t)
	A[0][0], A[1][1], A[2][2] = scale.X, scale.Y, scale.Z
	return
}

// NewRotation rotates by angleDeg degrees about the axis through p1 pointing
// towards p2, right handed.
func NewRotation(p1, p2 r3.Vec, angleDeg float64) (A Affine, err error) {
	var (
		axis = r3.Sub(p2, p1)
		n    = r3.Norm(axis)
	)
	if n == 0 {
		err = errors.Errorf("rotation axis is degenerate, both points at %v", p1)
		return
	}
	u := r3.Scale(1/n, axis)
	var (
		theta      = angleDeg * math.Pi / 180
		c, s       = math.Cos(theta), math.Sin(theta)
		omc        = 1 - c
		R          Affine
		x, y, z    = u.X, u.Y, u.Z
		toOrigin   = NewTranslation(r3.Scale(-1, p1))
		fromOrigin = NewTranslation(p1)
	)
	// Rodrigues: c*I + s*[u]x + (1-c)*u*u'
	R = Affine{
		{c + x*x*omc, x*y*omc - z*s, x*z*omc + y*s, 0},
		{y*x*omc + z*s, c + y*y*omc, y*z*omc - x*s, 0},
		{z*x*omc - y*s, z*y*omc + x*s, c + z*z*omc, 0},
		{0, 0, 0, 1},
	}
	A = Compose(toOrigin, R, fromOrigin)
	return
}

// Mul returns a·b, the transform applying b first, then a
func (a Affine) Mul(b Affine) (C Affine) {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a[i][k] * b[k][j]
			}
			C[i][j] = sum
		}
	}
	return
}

// Compose chains transforms in application order: chain[0] is applied first.
func Compose(chain ...Affine) (A Affine) {
	A = Identity()
	for _, B := range chain {
		A = B.Mul(A)
	}
	return
}

func (a Affine) Inverse() (Ainv Affine, err error) {
	var (
		M    = mat.NewDense(4, 4, a.Data())
		Minv mat.Dense
	)
	if err = Minv.Inverse(M); err != nil {
		err = errors.Wrap(err, "affine is not invertible")
		return
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			Ainv[i][j] = Minv.At(i, j)
		}
	}
	return
}

// Data returns the 16 row major values
func (a Affine) Data() (data []float64) {
	data = make([]float64, 16)
	for i := 0; i < 4; i++ {
		copy(data[4*i:], a[i][:])
	}
	return
}

func (a Affine) Translation() r3.Vec {
	return r3.Vec{X: a[0][3], Y: a[1][3], Z: a[2][3]}
}

func (a Affine) TransformVector(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: a[0][0]*v.X + a[0][1]*v.Y + a[0][2]*v.Z,
		Y: a[1][0]*v.X + a[1][1]*v.Y + a[1][2]*v.Z,
		Z: a[2][0]*v.X + a[2][1]*v.Y + a[2][2]*v.Z,
	}
}

func (a Affine) TransformPoint(p r3.Vec) r3.Vec {
	return r3.Add(a.TransformVector(p), a.Translation())
}

// TransformPoints applies rotation/scale and translation to every point
func (a Affine) TransformPoints(P []r3.Vec) (R []r3.Vec) {
	R = make([]r3.Vec, len(P))
	for i, p := range P {
		R[i] = a.TransformPoint(p)
	}
	return
}

// TransformVectors applies only the rotation/scale block, used for moments
// and field vectors.
func (a Affine) TransformVectors(V []r3.Vec) (R []r3.Vec) {
	R = make([]r3.Vec, len(V))
	for i, v := range V {
		R[i] = a.TransformVector(v)
	}
	return
}

// NearlyEqual compares element wise within tol
func (a Affine) NearlyEqual(b Affine, tol float64) bool {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(a[i][j]-b[i][j]) > tol {
				return false
			}
		}
	}
	return true
}
