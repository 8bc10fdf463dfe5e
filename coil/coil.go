package coil

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/tmscoil/geometry"
	"github.com/notargets/tmscoil/spatial"
)

// Metadata describes a coil model. Limits and Resolution, when set, are the
// default sampling grid used to tabulate the field.
type Metadata struct {
	Name       string         `json:"Name,omitempty"`
	Brand      string         `json:"Brand,omitempty"`
	Version    string         `json:"Version,omitempty"`
	Limits     *[3][2]float64 `json:"Limits,omitempty"`     // mm, per axis min and max
	Resolution *[3]float64    `json:"Resolution,omitempty"` // mm
}

// Coil is a TMS coil: field producing elements, an optional coil level
// casing and the deformations the elements share.
type Coil struct {
	Metadata
	Casing       *Casing
	Elements     []*Element
	deformations []*Deformation
}

// NewCoil collects the distinct deformations referenced by the elements, in
// order of first reference.
func NewCoil(meta Metadata, casing *Casing, elements ...*Element) (c *Coil) {
	c = &Coil{
		Metadata: meta,
		Casing:   casing,
		Elements: elements,
	}
	c.collectDeformations()
	return
}

func (c *Coil) collectDeformations() {
	var (
		seen = make(map[*Deformation]struct{})
	)
	c.deformations = c.deformations[:0]
	for _, el := range c.Elements {
		if el == nil {
			continue
		}
		for _, d := range el.Deformations {
			if _, ok := seen[d]; ok || d == nil {
				continue
			}
			seen[d] = struct{}{}
			c.deformations = append(c.deformations, d)
		}
	}
}

// Deformations lists each distinct deformation once
func (c *Coil) Deformations() []*Deformation { return c.deformations }

// Stimulators lists each distinct stimulator once, in element order
func (c *Coil) Stimulators() (stims []*Stimulator) {
	seen := make(map[*Stimulator]struct{})
	for _, el := range c.Elements {
		if el == nil || el.Stimulator == nil {
			continue
		}
		if _, ok := seen[el.Stimulator]; ok {
			continue
		}
		seen[el.Stimulator] = struct{}{}
		stims = append(stims, el.Stimulator)
	}
	return
}

// AField sums the element fields at points, mm in and T·m/A·s out per unit dI/dt
func (c *Coil) AField(points []r3.Vec, affine geometry.Affine) (A []r3.Vec, err error) {
	A = make([]r3.Vec, len(points))
	for _, el := range c.Elements {
		var Ae []r3.Vec
		if Ae, err = el.AField(points, affine, true); err != nil {
			return nil, err
		}
		for i := range A {
			A[i] = r3.Add(A[i], Ae[i])
		}
	}
	return
}

// DaDt scales the summed field by the rate of change of the coil current
func (c *Coil) DaDt(points []r3.Vec, affine geometry.Affine, dIdt float64) (A []r3.Vec, err error) {
	if A, err = c.AField(points, affine); err != nil {
		return
	}
	for i := range A {
		A[i] = r3.Scale(dIdt, A[i])
	}
	return
}

// CasingCoordinates concatenates the coil casing (placed by affine alone)
// with every element casing (placed by its deformations and affine).
func (c *Coil) CasingCoordinates(affine geometry.Affine, applyDeformation bool) (points, minDistance, intersect []r3.Vec) {
	if c.Casing != nil {
		points, minDistance, intersect = c.Casing.Coordinates(affine)
	}
	for _, el := range c.Elements {
		p, md, in := el.CasingCoordinates(affine, applyDeformation)
		points = append(points, p...)
		minDistance = append(minDistance, md...)
		intersect = append(intersect, in...)
	}
	return
}

// CasingMesh joins every casing mesh in its placed position, nil if no
// casing carries a mesh
func (c *Coil) CasingMesh(affine geometry.Affine, applyDeformation bool) (mesh *spatial.TriMesh) {
	join := func(m *spatial.TriMesh, A geometry.Affine) {
		placed := m.Transform(A)
		if mesh == nil {
			mesh = placed
			return
		}
		mesh = mesh.Join(placed)
	}
	if c.Casing != nil && c.Casing.Mesh != nil {
		join(c.Casing.Mesh, affine)
	}
	for _, el := range c.Elements {
		if el.Casing != nil && el.Casing.Mesh != nil {
			join(el.Casing.Mesh, el.Affine(affine, applyDeformation))
		}
	}
	return
}

// Validate reports every structural and configuration problem, not just the first
func (c *Coil) Validate() (err error) {
	if len(c.Elements) == 0 {
		err = multierr.Append(err, errors.Wrap(ErrStructural, "coil has no elements"))
	}
	for _, el := range c.Elements {
		if el == nil {
			err = multierr.Append(err, errors.Wrap(ErrStructural, "coil holds a nil element"))
			continue
		}
		if el.Source == nil {
			err = multierr.Append(err, errors.Wrapf(ErrStructural, "%s has no field source", el.label()))
		} else if verr := el.Source.validate(); verr != nil {
			err = multierr.Append(err, errors.WithMessage(verr, el.label()))
		}
		if el.Stimulator != nil {
			if serr := el.Stimulator.Validate(); serr != nil {
				err = multierr.Append(err, errors.WithMessage(serr, el.label()))
			}
		}
		for _, d := range el.Deformations {
			if d == nil {
				err = multierr.Append(err, errors.Wrapf(ErrStructural, "%s holds a nil deformation", el.label()))
			}
		}
	}
	for _, d := range c.deformations {
		if d == nil {
			continue
		}
		if derr := d.checkRange(d.current); derr != nil {
			err = multierr.Append(err, derr)
		}
	}
	for _, cs := range c.casings() {
		if cs.Mesh != nil {
			if merr := cs.Mesh.Validate(); merr != nil {
				err = multierr.Append(err, errors.Wrap(ErrStructural, merr.Error()))
			}
		}
	}
	return
}

func (c *Coil) casings() (cs []*Casing) {
	if c.Casing != nil {
		cs = append(cs, c.Casing)
	}
	for _, el := range c.Elements {
		if el != nil && el.Casing != nil {
			cs = append(cs, el.Casing)
		}
	}
	return
}
