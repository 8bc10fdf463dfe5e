package InputParameters

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/tmscoil/coil"
	"github.com/notargets/tmscoil/geometry"
	"github.com/notargets/tmscoil/readfiles"
	"github.com/notargets/tmscoil/spatial"
)

type DeformationParameters struct {
	Name      string      `json:"Name"`
	Type      string      `json:"Type"`                // rotation or translation
	Point1    [3]float64  `json:"Point1,omitempty"`    // rotation axis start
	Point2    [3]float64  `json:"Point2,omitempty"`    // rotation axis end
	Axis      string      `json:"Axis,omitempty"`      // translation along x, y or z
	Direction *[3]float64 `json:"Direction,omitempty"` // translation along an arbitrary direction
	Range     [2]float64  `json:"Range"`               // degrees for rotations, mm for translations
	Initial   float64     `json:"Initial"`
}

type CasingParameters struct {
	MeshFile          string       `json:"MeshFile,omitempty"` // Gmsh surface, replaces Points and Triangles
	Points            [][3]float64 `json:"Points,omitempty"`
	Triangles         [][3]int     `json:"Triangles,omitempty"`
	MinDistancePoints [][3]float64 `json:"MinDistancePoints,omitempty"`
	IntersectPoints   [][3]float64 `json:"IntersectPoints,omitempty"`
}

type ElementParameters struct {
	Name         string            `json:"Name"`
	Type         string            `json:"Type"` // dipole or grid
	Positions    [][3]float64      `json:"Positions,omitempty"`
	Moments      [][3]float64      `json:"Moments,omitempty"`
	Dims         [3]int            `json:"Dims,omitempty"`
	Values       [][3]float64      `json:"Values,omitempty"`
	GridAffine   []float64         `json:"GridAffine,omitempty"` // 16 values, row major
	Casing       *CasingParameters `json:"Casing,omitempty"`
	Deformations []string          `json:"Deformations,omitempty"` // names, shared between elements
	Stimulator   string            `json:"Stimulator,omitempty"`
}

// TargetParameters is an axis aligned box, a Gmsh surface file or a closed
// triangle mesh
type TargetParameters struct {
	Box       *[2][3]float64 `json:"Box,omitempty"`
	MeshFile  string         `json:"MeshFile,omitempty"`
	Vertices  [][3]float64   `json:"Vertices,omitempty"`
	Triangles [][3]int       `json:"Triangles,omitempty"`
}

// Parameters obtained from the YAML input file
type InputParameters struct {
	Title        string                  `json:"Title"`
	Coil         coil.Metadata           `json:"Coil"`
	Casing       *CasingParameters       `json:"Casing,omitempty"`
	Deformations []DeformationParameters `json:"Deformations"`
	Stimulators  []coil.Stimulator       `json:"Stimulators,omitempty"`
	Elements     []ElementParameters     `json:"Elements"`
	Target       TargetParameters        `json:"Target"`
	Affine       []float64               `json:"Affine,omitempty"` // coil placement, 16 values, row major
	Optimizer    *coil.OptimizerSettings `json:"Optimizer,omitempty"`
	FieldPoints  [][3]float64            `json:"FieldPoints,omitempty"`
	DIDt         float64                 `json:"DIDt,omitempty"` // A/s
}

func (ip *InputParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

func ReadFile(fileName string) (ip *InputParameters, err error) {
	var data []byte
	if data, err = os.ReadFile(fileName); err != nil {
		return
	}
	ip = &InputParameters{}
	if err = ip.Parse(data); err != nil {
		err = errors.Wrapf(err, "parsing %s", fileName)
		return nil, err
	}
	return
}

func (ip *InputParameters) Print() {
	ip.Fprint(os.Stdout)
}

func (ip *InputParameters) Fprint(w io.Writer) {
	fmt.Fprintf(w, "\"%s\"\t\t= Title\n", ip.Title)
	fmt.Fprintf(w, "\"%s\"\t\t= Coil\n", ip.Coil.Name)
	fmt.Fprintf(w, "[%d]\t\t\t\t= Elements\n", len(ip.Elements))
	for _, el := range ip.Elements {
		fmt.Fprintf(w, "Element[%s] = %s, deformations %v\n", el.Name, el.Type, el.Deformations)
	}
	for _, d := range ip.Deformations {
		fmt.Fprintf(w, "Deformation[%s] = %s %8.5f in [%g, %g]\n", d.Name, d.Type, d.Initial, d.Range[0], d.Range[1])
	}
	keys := make([]string, len(ip.Stimulators))
	for i, s := range ip.Stimulators {
		keys[i] = s.Name
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(w, "Stimulator[%s]\n", key)
	}
	if ip.Optimizer != nil {
		fmt.Fprintf(w, "%8.5f\t\t= GradientStepEps\n", ip.Optimizer.GradientStepEps)
		fmt.Fprintf(w, "[%d]\t\t\t\t= MaxLineSearchSteps\n", ip.Optimizer.MaxLineSearchSteps)
		fmt.Fprintf(w, "[%d]\t\t\t\t= DirectMaxEvaluations\n", ip.Optimizer.DirectMaxEvaluations)
	}
}

func toVec(p [3]float64) r3.Vec { return r3.Vec{X: p[0], Y: p[1], Z: p[2]} }

func toVecs(P [][3]float64) (V []r3.Vec) {
	if len(P) == 0 {
		return
	}
	V = make([]r3.Vec, len(P))
	for i, p := range P {
		V[i] = toVec(p)
	}
	return
}

func (cp *CasingParameters) build() (cs *coil.Casing, err error) {
	if cp == nil {
		return
	}
	if cp.MeshFile != "" {
		var mesh *spatial.TriMesh
		if mesh, err = readfiles.ReadSurface(cp.MeshFile); err != nil {
			return nil, errors.Wrap(coil.ErrConfiguration, err.Error())
		}
		return coil.NewCasingFromMesh(mesh, toVecs(cp.MinDistancePoints), toVecs(cp.IntersectPoints)), nil
	}
	if len(cp.Triangles) != 0 {
		var mesh *spatial.TriMesh
		if mesh, err = spatial.NewTriMesh(toVecs(cp.Points), cp.Triangles); err != nil {
			return nil, errors.Wrap(coil.ErrConfiguration, err.Error())
		}
		return coil.NewCasingFromMesh(mesh, toVecs(cp.MinDistancePoints), toVecs(cp.IntersectPoints)), nil
	}
	return coil.NewCasing(toVecs(cp.Points), toVecs(cp.MinDistancePoints), toVecs(cp.IntersectPoints)), nil
}

func (dp *DeformationParameters) build() (d *coil.Deformation, err error) {
	switch strings.ToLower(dp.Type) {
	case "rotation":
		d, err = coil.NewRotationDeformation(toVec(dp.Point1), toVec(dp.Point2), dp.Initial, dp.Range)
	case "translation":
		var axis r3.Vec
		if dp.Direction != nil {
			axis = toVec(*dp.Direction)
		} else if axis, err = coil.AxisVector(dp.Axis); err != nil {
			break
		}
		d, err = coil.NewTranslationDeformation(axis, dp.Initial, dp.Range)
	default:
		err = errors.Wrapf(coil.ErrConfiguration, "unknown deformation type %q", dp.Type)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "deformation %q", dp.Name)
	}
	d.Name = dp.Name
	return
}

func affineOrIdentity(data []float64) (A geometry.Affine, err error) {
	if len(data) == 0 {
		return geometry.Identity(), nil
	}
	if A, err = geometry.NewAffine(data); err != nil {
		err = errors.Wrap(coil.ErrConfiguration, err.Error())
	}
	return
}

// BuildCoil assembles the coil. Deformations and stimulators are created
// once and shared by every element that names them.
func (ip *InputParameters) BuildCoil() (c *coil.Coil, err error) {
	var (
		deformations = make(map[string]*coil.Deformation, len(ip.Deformations))
		stimulators  = make(map[string]*coil.Stimulator, len(ip.Stimulators))
		elements     = make([]*coil.Element, 0, len(ip.Elements))
		casing       *coil.Casing
	)
	for i := range ip.Deformations {
		dp := &ip.Deformations[i]
		if _, dup := deformations[dp.Name]; dup {
			return nil, errors.Wrapf(coil.ErrConfiguration, "deformation %q defined twice", dp.Name)
		}
		if deformations[dp.Name], err = dp.build(); err != nil {
			return
		}
	}
	for i := range ip.Stimulators {
		stimulators[ip.Stimulators[i].Name] = &ip.Stimulators[i]
	}
	if casing, err = ip.Casing.build(); err != nil {
		return
	}
	for _, ep := range ip.Elements {
		var (
			el    *coil.Element
			elCs  *coil.Casing
			defs  []*coil.Deformation
			stim  *coil.Stimulator
			found bool
		)
		for _, name := range ep.Deformations {
			d, ok := deformations[name]
			if !ok {
				return nil, errors.Wrapf(coil.ErrConfiguration, "element %q names unknown deformation %q", ep.Name, name)
			}
			defs = append(defs, d)
		}
		if ep.Stimulator != "" {
			if stim, found = stimulators[ep.Stimulator]; !found {
				return nil, errors.Wrapf(coil.ErrConfiguration, "element %q names unknown stimulator %q", ep.Name, ep.Stimulator)
			}
		}
		if elCs, err = ep.Casing.build(); err != nil {
			return
		}
		switch strings.ToLower(ep.Type) {
		case "dipole", "":
			el, err = coil.NewDipoleElement(ep.Name, toVecs(ep.Positions), toVecs(ep.Moments), elCs, defs, stim)
		case "grid":
			var G geometry.Affine
			if G, err = affineOrIdentity(ep.GridAffine); err != nil {
				return
			}
			el, err = coil.NewSampledGridElement(ep.Name, ep.Dims, toVecs(ep.Values), G, elCs, defs, stim)
		default:
			err = errors.Wrapf(coil.ErrConfiguration, "element %q has unknown type %q", ep.Name, ep.Type)
		}
		if err != nil {
			return
		}
		elements = append(elements, el)
	}
	c = coil.NewCoil(ip.Coil, casing, elements...)
	return
}

// BuildTarget builds the search structure over the target surface
func (ip *InputParameters) BuildTarget() (tree *spatial.AABBTree, err error) {
	var mesh *spatial.TriMesh
	switch {
	case ip.Target.Box != nil:
		b := ip.Target.Box
		mesh = spatial.NewBoxMesh(toVec(b[0]), toVec(b[1]))
	case ip.Target.MeshFile != "":
		if mesh, err = readfiles.ReadSurface(ip.Target.MeshFile); err != nil {
			return nil, errors.Wrap(coil.ErrConfiguration, err.Error())
		}
	case len(ip.Target.Triangles) != 0:
		if mesh, err = spatial.NewTriMesh(toVecs(ip.Target.Vertices), ip.Target.Triangles); err != nil {
			return nil, errors.Wrap(coil.ErrConfiguration, err.Error())
		}
	default:
		return nil, errors.Wrap(coil.ErrConfiguration, "target needs a Box, a MeshFile or Vertices and Triangles")
	}
	if tree, err = spatial.NewAABBTree(mesh); err != nil {
		err = errors.Wrap(coil.ErrConfiguration, err.Error())
	}
	return
}

// PlacementAffine is the coil placement, identity when unset
func (ip *InputParameters) PlacementAffine() (geometry.Affine, error) {
	return affineOrIdentity(ip.Affine)
}

// OptimizerSettings merges the deck's settings over the defaults
func (ip *InputParameters) OptimizerSettings() (s *coil.OptimizerSettings) {
	s = coil.DefaultOptimizerSettings()
	if ip.Optimizer == nil {
		return
	}
	o := ip.Optimizer
	if o.GradientStepEps > 0 {
		s.GradientStepEps = o.GradientStepEps
	}
	if o.MaxLineSearchSteps > 0 {
		s.MaxLineSearchSteps = o.MaxLineSearchSteps
	}
	if o.DirectMaxEvaluations > 0 {
		s.DirectMaxEvaluations = o.DirectMaxEvaluations
	}
	if o.DirectMaxIterations > 0 {
		s.DirectMaxIterations = o.DirectMaxIterations
	}
	if o.DirectEpsilon > 0 {
		s.DirectEpsilon = o.DirectEpsilon
	}
	if o.DirectLengthTolerance > 0 {
		s.DirectLengthTolerance = o.DirectLengthTolerance
	}
	if o.DirectVolumeTolerance > 0 {
		s.DirectVolumeTolerance = o.DirectVolumeTolerance
	}
	if o.LocalMaxIterations > 0 {
		s.LocalMaxIterations = o.LocalMaxIterations
	}
	if o.LocalGradientTolerance > 0 {
		s.LocalGradientTolerance = o.LocalGradientTolerance
	}
	return
}

func (ip *InputParameters) Points() []r3.Vec { return toVecs(ip.FieldPoints) }

// Example is a complete deck, printed when no input file is given
const Example = `
########################################
Title: "Figure of eight over a slab"
Coil:
  Name: Fig8
  Brand: Example
  Limits: [[-60, 60], [-40, 40], [-20, 20]]
  Resolution: [10, 10, 10]
Deformations:
  - Name: lift
    Type: translation
    Axis: z
    Range: [-20, 5]
    Initial: 0
  - Name: tilt
    Type: rotation
    Point1: [0, 0, 10]
    Point2: [0, 1, 10]
    Range: [-10, 10]
    Initial: 0
Elements:
  - Name: left
    Type: dipole
    Positions: [[-20, 0, 10]]
    Moments: [[0, 0, 1]]
    Casing:
      Points: [[-30, -10, 10], [-10, -10, 10], [-10, 10, 10], [-30, 10, 10]]
    Deformations: [lift, tilt]
  - Name: right
    Type: dipole
    Positions: [[20, 0, 10]]
    Moments: [[0, 0, -1]]
    Casing:
      Points: [[10, -10, 10], [30, -10, 10], [30, 10, 10], [10, 10, 10]]
    Deformations: [lift]
Target:
  Box: [[-100, -100, -50], [100, 100, 0]]
Optimizer:
  DirectMaxEvaluations: 500
FieldPoints: [[0, 0, -10], [0, 0, -20]]
DIDt: 1.e+8
########################################
`
