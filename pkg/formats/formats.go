// Package formats provides parsers and writers for the mesh files the
// deformation engine consumes: OFF and OBJ surfaces (cages) and Medit .mesh
// tetrahedral volumes (targets).
package formats

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Common format errors.
var (
	ErrUnknownFormat    = errors.New("unknown mesh format")
	ErrTruncatedData    = errors.New("truncated mesh data")
	ErrInvalidIndex     = errors.New("face index out of range")
	ErrUnsupportedArity = errors.New("unsupported face arity")
)

// Surface is a triangulated surface as stored on disk.
type Surface struct {
	Vertices  []r3.Vec
	Triangles [][3]int
}

// Volume is a tetrahedral mesh as stored on disk. Refs are the Medit
// reference labels, one per element.
type Volume struct {
	Vertices   []r3.Vec
	VertexRefs []int
	Triangles  [][3]int
	Tetrahedra [][4]int
	TetRefs    []int
}

// ParseSurfaceFile parses an OFF or OBJ file, chosen by extension.
func ParseSurfaceFile(path string) (*Surface, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading surface file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".off":
		return ParseOFF(data)
	case ".obj":
		return ParseOBJ(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Ext(path))
	}
}

// tokenizer yields whitespace separated fields, skipping '#' comments.
type tokenizer struct {
	sc     *bufio.Scanner
	fields []string
}

func newTokenizer(data []byte) *tokenizer {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &tokenizer{sc: sc}
}

// next returns the next field, or false at end of input.
func (t *tokenizer) next() (string, bool) {
	for len(t.fields) == 0 {
		if !t.sc.Scan() {
			return "", false
		}
		line := t.sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		t.fields = strings.Fields(line)
	}
	f := t.fields[0]
	t.fields = t.fields[1:]
	return f, true
}

func (t *tokenizer) int(what string) (int, error) {
	s, ok := t.next()
	if !ok {
		return 0, fmt.Errorf("%w: reading %s", ErrTruncatedData, what)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s %q: %w", what, s, err)
	}
	return v, nil
}

func (t *tokenizer) float(what string) (float64, error) {
	s, ok := t.next()
	if !ok {
		return 0, fmt.Errorf("%w: reading %s", ErrTruncatedData, what)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s %q: %w", what, s, err)
	}
	return v, nil
}

func (t *tokenizer) vec(what string) (r3.Vec, error) {
	var c [3]float64
	for i := range c {
		v, err := t.float(what)
		if err != nil {
			return r3.Vec{}, err
		}
		c[i] = v
	}
	return r3.Vec{X: c[0], Y: c[1], Z: c[2]}, nil
}

func checkIndices(n int, idx ...int) error {
	for _, i := range idx {
		if i < 0 || i >= n {
			return fmt.Errorf("%w: %d (vertex count %d)", ErrInvalidIndex, i, n)
		}
	}
	return nil
}
