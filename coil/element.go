package coil

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/tmscoil/geometry"
	"github.com/notargets/tmscoil/utils"
)

const (
	mu0Over4Pi = 1.e-7 // T·m/A
	mmToM      = 1.e-3
	// voxelTol admits grid nodes that round off puts just outside the grid
	voxelTol = 1.e-9
)

// FieldSource produces the magnetic vector potential of one element at
// points given in the element's own frame, per unit dI/dt. The set of
// implementations is closed: DipoleArray and SampledGrid.
type FieldSource interface {
	aField(local []r3.Vec) []r3.Vec
	validate() error
	Kind() string
}

// DipoleArray represents an element as a set of magnetic dipoles, positions
// in mm and moments in A·m²
type DipoleArray struct {
	Positions []r3.Vec
	Moments   []r3.Vec
}

func NewDipoleArray(positions, moments []r3.Vec) (da *DipoleArray, err error) {
	da = &DipoleArray{Positions: positions, Moments: moments}
	if err = da.validate(); err != nil {
		return nil, err
	}
	return
}

func (da *DipoleArray) Kind() string { return "dipole" }

func (da *DipoleArray) validate() error {
	if len(da.Positions) == 0 {
		return errors.Wrap(ErrStructural, "dipole element has no dipoles")
	}
	if len(da.Positions) != len(da.Moments) {
		return errors.Wrapf(ErrStructural, "dipole element has %d positions and %d moments",
			len(da.Positions), len(da.Moments))
	}
	if utils.IsNan(da.Positions) || utils.IsNan(da.Moments) {
		return errors.Wrap(ErrStructural, "dipole element holds NaN values")
	}
	return nil
}

func (da *DipoleArray) aField(local []r3.Vec) (A []r3.Vec) {
	A = make([]r3.Vec, len(local))
	pm := utils.NewPointPartitionMap(len(local))
	pm.Run(func(np, kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			var sum r3.Vec
			for i, pos := range da.Positions {
				r := r3.Scale(mmToM, r3.Sub(local[k], pos))
				n := r3.Norm(r)
				if n == 0 {
					continue
				}
				sum = r3.Add(sum, r3.Scale(1/(n*n*n), r3.Cross(da.Moments[i], r)))
			}
			A[k] = r3.Scale(mu0Over4Pi, sum)
		}
	})
	return
}

// SampledGrid represents an element by its A field tabulated on a regular
// grid. Values are ordered with the first index fastest:
// Values[i + Dims[0]*(j + Dims[1]*k)]. Affine maps voxel indices to mm.
type SampledGrid struct {
	Dims   [3]int
	Values []r3.Vec
	Affine geometry.Affine
}

func NewSampledGrid(dims [3]int, values []r3.Vec, affine geometry.Affine) (sg *SampledGrid, err error) {
	sg = &SampledGrid{Dims: dims, Values: values, Affine: affine}
	if err = sg.validate(); err != nil {
		return nil, err
	}
	return
}

func (sg *SampledGrid) Kind() string { return "sampled grid" }

func (sg *SampledGrid) validate() (err error) {
	n := 1
	for _, d := range sg.Dims {
		if d < 1 {
			return errors.Wrapf(ErrStructural, "sampled grid has dimensions %v", sg.Dims)
		}
		n *= d
	}
	if len(sg.Values) != n {
		return errors.Wrapf(ErrStructural, "sampled grid of dimensions %v holds %d values, want %d",
			sg.Dims, len(sg.Values), n)
	}
	if utils.IsNan(sg.Values) {
		return errors.Wrap(ErrStructural, "sampled grid holds NaN values")
	}
	if _, err = sg.Affine.Inverse(); err != nil {
		return errors.Wrap(ErrStructural, "sampled grid affine is singular")
	}
	return
}

func (sg *SampledGrid) at(i, j, k int) r3.Vec {
	return sg.Values[i+sg.Dims[0]*(j+sg.Dims[1]*k)]
}

// aField interpolates trilinearly; points outside the grid see no field.
// The grid must have passed validate.
func (sg *SampledGrid) aField(local []r3.Vec) (A []r3.Vec) {
	A = make([]r3.Vec, len(local))
	inverse, err := sg.Affine.Inverse()
	if err != nil {
		return
	}
	voxels := inverse.TransformPoints(local)
	pm := utils.NewPointPartitionMap(len(local))
	pm.Run(func(np, kMin, kMax int) {
		for kk := kMin; kk < kMax; kk++ {
			var (
				v      = voxels[kk]
				lo, hi [3]int
				w      [3]float64
				inside = true
			)
			for d, x := range [3]float64{v.X, v.Y, v.Z} {
				var i0, i1 int
				i0, i1, w[d], inside = voxelWeights(x, sg.Dims[d])
				if !inside {
					break
				}
				lo[d], hi[d] = i0, i1
			}
			if !inside {
				continue
			}
			var sum r3.Vec
			for c := 0; c < 8; c++ {
				var (
					idx    [3]int
					weight = 1.
				)
				for d := 0; d < 3; d++ {
					if c&(1<<d) != 0 {
						idx[d], weight = hi[d], weight*w[d]
					} else {
						idx[d], weight = lo[d], weight*(1-w[d])
					}
				}
				if weight == 0 {
					continue
				}
				sum = r3.Add(sum, r3.Scale(weight, sg.at(idx[0], idx[1], idx[2])))
			}
			A[kk] = sum
		}
	})
	return
}

// voxelWeights returns the bracketing node indices and the weight of the
// upper one for coordinate x on an axis of n nodes
func voxelWeights(x float64, n int) (i0, i1 int, w float64, inside bool) {
	if x < -voxelTol || x > float64(n-1)+voxelTol {
		return
	}
	inside = true
	if n == 1 {
		return
	}
	x = math.Max(0, math.Min(float64(n-1), x))
	i0 = int(math.Floor(x))
	if i0 > n-2 {
		i0 = n - 2
	}
	i1 = i0 + 1
	w = x - float64(i0)
	return
}

// Element is one field producing part of a coil
type Element struct {
	Name         string
	Source       FieldSource
	Casing       *Casing
	Deformations []*Deformation // applied in order, first one first
	Stimulator   *Stimulator
}

func NewDipoleElement(name string, positions, moments []r3.Vec, casing *Casing,
	deformations []*Deformation, stimulator *Stimulator) (el *Element, err error) {
	var da *DipoleArray
	if da, err = NewDipoleArray(positions, moments); err != nil {
		return nil, errors.WithMessagef(err, "element %q", name)
	}
	el = &Element{Name: name, Source: da, Casing: casing, Deformations: deformations, Stimulator: stimulator}
	return
}

func NewSampledGridElement(name string, dims [3]int, values []r3.Vec, affine geometry.Affine, casing *Casing,
	deformations []*Deformation, stimulator *Stimulator) (el *Element, err error) {
	var sg *SampledGrid
	if sg, err = NewSampledGrid(dims, values, affine); err != nil {
		return nil, errors.WithMessagef(err, "element %q", name)
	}
	el = &Element{Name: name, Source: sg, Casing: casing, Deformations: deformations, Stimulator: stimulator}
	return
}

func (el *Element) label() string {
	if el.Name != "" {
		return fmt.Sprintf("element %q", el.Name)
	}
	return "element"
}

// Affine maps element coordinates to world coordinates: global · D_n ··· D_1
func (el *Element) Affine(global geometry.Affine, applyDeformation bool) geometry.Affine {
	if !applyDeformation || len(el.Deformations) == 0 {
		return global
	}
	chain := make([]geometry.Affine, 0, len(el.Deformations)+1)
	for _, d := range el.Deformations {
		chain = append(chain, d.Affine())
	}
	return geometry.Compose(append(chain, global)...)
}

// AField is the element's vector potential at world points, per A/s of dI/dt.
// Points are taken to the element frame and the field rotated back.
func (el *Element) AField(points []r3.Vec, global geometry.Affine, applyDeformation bool) (A []r3.Vec, err error) {
	if el.Source == nil {
		return nil, errors.Wrapf(ErrStructural, "%s has no field source", el.label())
	}
	if err = el.Source.validate(); err != nil {
		return nil, errors.WithMessage(err, el.label())
	}
	var (
		M    = el.Affine(global, applyDeformation)
		Minv geometry.Affine
	)
	if Minv, err = M.Inverse(); err != nil {
		return nil, errors.Wrapf(ErrConfiguration, "%s: placement affine is singular", el.label())
	}
	A = M.TransformVectors(el.Source.aField(Minv.TransformPoints(points)))
	return
}

func (el *Element) DaDt(points []r3.Vec, global geometry.Affine, dIdt float64, applyDeformation bool) (A []r3.Vec, err error) {
	if A, err = el.AField(points, global, applyDeformation); err != nil {
		return
	}
	for i := range A {
		A[i] = r3.Scale(dIdt, A[i])
	}
	return
}

// CasingCoordinates returns empty sets for an element without a casing
func (el *Element) CasingCoordinates(global geometry.Affine, applyDeformation bool) (points, minDistance, intersect []r3.Vec) {
	if el.Casing == nil {
		return
	}
	return el.Casing.Coordinates(el.Affine(global, applyDeformation))
}
