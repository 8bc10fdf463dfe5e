package readfiles

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/tmscoil/spatial"
)

// Gmsh v2.2 element type numbers kept as surface facets
const (
	gmshTriangle = 2
	gmshQuad     = 3
)

// ReadSurface reads a triangulated surface, choosing the reader from the
// file extension
func ReadSurface(filename string) (tm *spatial.TriMesh, err error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".msh":
		return ReadGmshSurface(filename)
	default:
		return nil, errors.Errorf("unsupported surface format: %s", ext)
	}
}

// ReadGmshSurface reads the triangles and quads of an ASCII Gmsh v2.2 file.
// Quads are split into two triangles; every other element type is skipped.
func ReadGmshSurface(filename string) (tm *spatial.TriMesh, err error) {
	var file *os.File
	if file, err = os.Open(filename); err != nil {
		return
	}
	defer file.Close()
	if tm, err = ParseGmshSurface(file); err != nil {
		err = errors.Wrapf(err, "reading %s", filename)
	}
	return
}

func ParseGmshSurface(r io.Reader) (tm *spatial.TriMesh, err error) {
	var (
		scanner   = bufio.NewScanner(r)
		vertices  []r3.Vec
		triangles [][3]int
		nodeIndex = make(map[int]int)
		gotFormat bool
	)
	for scanner.Scan() {
		switch section := strings.TrimSpace(scanner.Text()); section {
		case "$MeshFormat":
			if err = readMeshFormat22(scanner); err != nil {
				return
			}
			gotFormat = true
		case "$Nodes":
			if vertices, err = readNodes22(scanner, nodeIndex); err != nil {
				return
			}
		case "$Elements":
			if triangles, err = readFacets22(scanner, nodeIndex); err != nil {
				return
			}
		default:
			if strings.HasPrefix(section, "$") && !strings.HasPrefix(section, "$End") {
				skipSection(scanner, "$End"+section[1:])
			}
		}
	}
	if err = scanner.Err(); err != nil {
		return
	}
	if !gotFormat {
		return nil, errors.New("could not find $MeshFormat section")
	}
	if len(triangles) == 0 {
		return nil, errors.New("no surface elements found")
	}
	return spatial.NewTriMesh(vertices, triangles)
}

func readMeshFormat22(scanner *bufio.Scanner) error {
	if !scanner.Scan() {
		return errors.New("unexpected EOF in MeshFormat")
	}
	parts := strings.Fields(scanner.Text())
	if len(parts) < 2 {
		return errors.Errorf("invalid MeshFormat line: %q", scanner.Text())
	}
	if !strings.HasPrefix(parts[0], "2.") {
		return errors.Errorf("unsupported Gmsh format version: %s", parts[0])
	}
	if parts[1] != "0" {
		return errors.New("binary Gmsh files are not supported")
	}
	skipSection(scanner, "$EndMeshFormat")
	return nil
}

func readCount(scanner *bufio.Scanner, section string) (n int, err error) {
	if !scanner.Scan() {
		return 0, errors.Errorf("unexpected EOF in %s", section)
	}
	if n, err = strconv.Atoi(strings.TrimSpace(scanner.Text())); err != nil {
		err = errors.Wrapf(err, "invalid %s count", section)
	}
	return
}

func readNodes22(scanner *bufio.Scanner, nodeIndex map[int]int) (vertices []r3.Vec, err error) {
	var numNodes int
	if numNodes, err = readCount(scanner, "Nodes"); err != nil {
		return
	}
	vertices = make([]r3.Vec, numNodes)
	for i := 0; i < numNodes; i++ {
		if !scanner.Scan() {
			return nil, errors.Errorf("unexpected EOF reading node %d", i)
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) < 4 {
			return nil, errors.Errorf("invalid node line: %q", scanner.Text())
		}
		var (
			id    int
			coord [3]float64
		)
		if id, err = strconv.Atoi(parts[0]); err != nil {
			return nil, errors.Wrapf(err, "node %d", i)
		}
		for j := range coord {
			if coord[j], err = strconv.ParseFloat(parts[1+j], 64); err != nil {
				return nil, errors.Wrapf(err, "node %d", id)
			}
		}
		nodeIndex[id] = i
		vertices[i] = r3.Vec{X: coord[0], Y: coord[1], Z: coord[2]}
	}
	skipSection(scanner, "$EndNodes")
	return
}

func readFacets22(scanner *bufio.Scanner, nodeIndex map[int]int) (triangles [][3]int, err error) {
	var numElements int
	if numElements, err = readCount(scanner, "Elements"); err != nil {
		return
	}
	for i := 0; i < numElements; i++ {
		if !scanner.Scan() {
			return nil, errors.Errorf("unexpected EOF reading element %d", i)
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) < 3 {
			return nil, errors.Errorf("invalid element line: %q", scanner.Text())
		}
		var elemID, elemType, numTags int
		if elemID, err = strconv.Atoi(parts[0]); err != nil {
			return nil, errors.Wrapf(err, "element line %d", i)
		}
		if elemType, err = strconv.Atoi(parts[1]); err != nil {
			return nil, errors.Wrapf(err, "element %d type", elemID)
		}
		if numTags, err = strconv.Atoi(parts[2]); err != nil {
			return nil, errors.Wrapf(err, "element %d tag count", elemID)
		}
		if numTags < 0 {
			return nil, errors.Errorf("element %d has a negative tag count %d", elemID, numTags)
		}

		var numNodes int
		switch elemType {
		case gmshTriangle:
			numNodes = 3
		case gmshQuad:
			numNodes = 4
		default:
			continue
		}
		nodeStart := 3 + numTags
		if len(parts) < nodeStart+numNodes {
			return nil, errors.Errorf("element %d: expected %d nodes, got %d",
				elemID, numNodes, len(parts)-nodeStart)
		}
		var nodes [4]int
		for j := 0; j < numNodes; j++ {
			var nodeID int
			if nodeID, err = strconv.Atoi(parts[nodeStart+j]); err != nil {
				return nil, errors.Wrapf(err, "element %d node %d", elemID, j)
			}
			idx, ok := nodeIndex[nodeID]
			if !ok {
				return nil, errors.Errorf("element %d references unknown node %d", elemID, nodeID)
			}
			nodes[j] = idx
		}
		triangles = append(triangles, [3]int{nodes[0], nodes[1], nodes[2]})
		if numNodes == 4 {
			triangles = append(triangles, [3]int{nodes[0], nodes[2], nodes[3]})
		}
	}
	skipSection(scanner, "$EndElements")
	return
}

func skipSection(scanner *bufio.Scanner, end string) {
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == end {
			return
		}
	}
}
