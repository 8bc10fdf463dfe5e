package coil

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/tmscoil/geometry"
)

// FieldGrid is the coil field tabulated on a regular grid, ordered like
// SampledGrid.Values. Affine maps voxel indices to mm.
type FieldGrid struct {
	Dims   [3]int
	Affine geometry.Affine
	Values []r3.Vec
}

// FieldGrid samples the coil field, deformations applied, on the grid given
// by limits and resolution. Nil arguments fall back to the coil metadata.
func (c *Coil) FieldGrid(limits *[3][2]float64, resolution *[3]float64) (fg *FieldGrid, err error) {
	if limits == nil {
		limits = c.Limits
	}
	if resolution == nil {
		resolution = c.Resolution
	}
	if limits == nil || resolution == nil {
		err = errors.Wrap(ErrConfiguration, "field grid needs limits and resolution")
		return
	}
	var (
		dims  [3]int
		nodes [3][]float64
	)
	for d := 0; d < 3; d++ {
		lo, hi, res := limits[d][0], limits[d][1], resolution[d]
		if !(res > 0) {
			err = errors.Wrapf(ErrConfiguration, "resolution %g along axis %d must be positive", res, d)
			return
		}
		dims[d] = int(math.Floor((hi-lo)/res + voxelTol))
		if dims[d] < 1 {
			err = errors.Wrapf(ErrConfiguration, "limits [%g, %g] along axis %d hold no grid node at resolution %g",
				lo, hi, d, res)
			return
		}
		nodes[d] = make([]float64, dims[d])
		if dims[d] == 1 {
			nodes[d][0] = lo
		} else {
			floats.Span(nodes[d], lo, lo+float64(dims[d]-1)*res)
		}
	}
	points := make([]r3.Vec, 0, dims[0]*dims[1]*dims[2])
	for k := 0; k < dims[2]; k++ {
		for j := 0; j < dims[1]; j++ {
			for i := 0; i < dims[0]; i++ {
				points = append(points, r3.Vec{X: nodes[0][i], Y: nodes[1][j], Z: nodes[2][k]})
			}
		}
	}
	fg = &FieldGrid{
		Dims: dims,
		Affine: geometry.NewScaleTranslation(
			r3.Vec{X: resolution[0], Y: resolution[1], Z: resolution[2]},
			r3.Vec{X: limits[0][0], Y: limits[1][0], Z: limits[2][0]}),
	}
	if fg.Values, err = c.AField(points, geometry.Identity()); err != nil {
		return nil, err
	}
	return
}

// Limits spans the grid nodes
func (fg *FieldGrid) Limits() (limits [3][2]float64) {
	var (
		origin = fg.Affine.Translation()
		res    = fg.Resolution()
		o      = [3]float64{origin.X, origin.Y, origin.Z}
	)
	for d := 0; d < 3; d++ {
		limits[d] = [2]float64{o[d], o[d] + float64(fg.Dims[d])*res[d]}
	}
	return
}

func (fg *FieldGrid) Resolution() [3]float64 {
	return [3]float64{fg.Affine[0][0], fg.Affine[1][1], fg.Affine[2][2]}
}

// Element turns the grid into a sampled grid element
func (fg *FieldGrid) Element(name string) (*Element, error) {
	return NewSampledGridElement(name, fg.Dims, fg.Values, fg.Affine, nil, nil, nil)
}

// NewCoilFromFieldGrid builds a single element coil from a tabulated field.
// The grid spans the coil's limits at its resolution.
func NewCoilFromFieldGrid(meta Metadata, fg *FieldGrid) (c *Coil, err error) {
	var el *Element
	if el, err = fg.Element(meta.Name); err != nil {
		return
	}
	limits, res := fg.Limits(), fg.Resolution()
	meta.Limits, meta.Resolution = &limits, &res
	c = NewCoil(meta, nil, el)
	return
}
