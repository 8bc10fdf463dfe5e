package coil

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/tmscoil/geometry"
)

type DeformationKind uint8

const (
	// Rotation about the axis through Point1 and Point2, current in degrees
	Rotation DeformationKind = iota
	// Translation along Axis, current in mm
	Translation
)

func (k DeformationKind) String() string {
	switch k {
	case Rotation:
		return "rotation"
	case Translation:
		return "translation"
	}
	return fmt.Sprintf("DeformationKind(%d)", uint8(k))
}

// Deformation is one bounded scalar degree of freedom of the coil geometry.
// Elements share deformations by pointer: changing Current moves every
// element that references it.
type Deformation struct {
	Name           string
	Kind           DeformationKind
	Point1, Point2 r3.Vec // rotation axis
	Axis           r3.Vec // unit translation direction
	Range          [2]float64
	current        float64
}

func NewRotationDeformation(point1, point2 r3.Vec, current float64, rng [2]float64) (d *Deformation, err error) {
	if r3.Norm(r3.Sub(point2, point1)) == 0 {
		err = errors.Wrapf(ErrConfiguration, "rotation axis points coincide at %v", point1)
		return
	}
	d = &Deformation{
		Kind:   Rotation,
		Point1: point1,
		Point2: point2,
		Range:  rng,
	}
	if err = d.SetCurrent(current); err != nil {
		return nil, err
	}
	return
}

func NewTranslationDeformation(axis r3.Vec, current float64, rng [2]float64) (d *Deformation, err error) {
	n := r3.Norm(axis)
	if n == 0 {
		err = errors.Wrap(ErrConfiguration, "translation axis has zero length")
		return
	}
	d = &Deformation{
		Kind:  Translation,
		Axis:  r3.Scale(1/n, axis),
		Range: rng,
	}
	if err = d.SetCurrent(current); err != nil {
		return nil, err
	}
	return
}

// AxisVector maps the axis names x, y and z to unit vectors
func AxisVector(name string) (v r3.Vec, err error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "x":
		v = r3.Vec{X: 1}
	case "y":
		v = r3.Vec{Y: 1}
	case "z":
		v = r3.Vec{Z: 1}
	default:
		err = errors.Wrapf(ErrConfiguration, "unknown translation axis %q, want x, y or z", name)
	}
	return
}

func (d *Deformation) Current() float64 { return d.current }

func (d *Deformation) Min() float64 { return d.Range[0] }

func (d *Deformation) Max() float64 { return d.Range[1] }

// SetCurrent rejects values outside Range, it never clamps
func (d *Deformation) SetCurrent(value float64) error {
	if err := d.checkRange(value); err != nil {
		return err
	}
	d.current = value
	return nil
}

func (d *Deformation) checkRange(value float64) error {
	if d.Range[0] > d.Range[1] {
		return errors.Wrapf(ErrConfiguration, "%s range [%g, %g] is empty", d.label(), d.Range[0], d.Range[1])
	}
	if value < d.Range[0] || value > d.Range[1] {
		return errors.Wrapf(ErrConfiguration, "%s value %g is outside its range [%g, %g]",
			d.label(), value, d.Range[0], d.Range[1])
	}
	return nil
}

// setClamped is used inside the optimizer's box, where round off from the
// offset parametrization may land an ulp outside the range.
func (d *Deformation) setClamped(value float64) {
	if value < d.Range[0] {
		value = d.Range[0]
	} else if value > d.Range[1] {
		value = d.Range[1]
	}
	d.current = value
}

func (d *Deformation) label() string {
	if d.Name != "" {
		return fmt.Sprintf("%s deformation %q", d.Kind, d.Name)
	}
	return d.Kind.String() + " deformation"
}

// Affine is the rigid motion for the current value
func (d *Deformation) Affine() geometry.Affine {
	switch d.Kind {
	case Translation:
		return geometry.NewTranslation(r3.Scale(d.current, d.Axis))
	case Rotation:
		// Degenerate axes are refused by the constructor
		A, err := geometry.NewRotation(d.Point1, d.Point2, d.current)
		if err != nil {
			panic(err)
		}
		return A
	}
	panic(fmt.Sprintf("unknown deformation kind %v", d.Kind))
}
