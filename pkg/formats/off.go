package formats

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidOFFMagic is returned when the header does not start with OFF.
var ErrInvalidOFFMagic = errors.New("invalid OFF magic: expected 'OFF'")

// ParseOFF parses an OFF file. Triangles are kept as is, quads (v1 v2 v3 v4)
// are split into (v1 v2 v3) and (v1 v3 v4).
func ParseOFF(data []byte) (*Surface, error) {
	tok := newTokenizer(data)

	magic, ok := tok.next()
	if !ok {
		return nil, fmt.Errorf("%w: reading header", ErrTruncatedData)
	}
	if magic != "OFF" {
		return nil, ErrInvalidOFFMagic
	}

	nVertices, err := tok.int("vertex count")
	if err != nil {
		return nil, err
	}
	nFaces, err := tok.int("face count")
	if err != nil {
		return nil, err
	}
	if _, err := tok.int("edge count"); err != nil {
		return nil, err
	}
	if nVertices < 0 || nFaces < 0 {
		return nil, fmt.Errorf("invalid OFF counts: %d vertices, %d faces", nVertices, nFaces)
	}

	s := &Surface{
		Vertices:  make([]r3.Vec, 0, nVertices),
		Triangles: make([][3]int, 0, nFaces),
	}

	for i := 0; i < nVertices; i++ {
		v, err := tok.vec("vertex")
		if err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		s.Vertices = append(s.Vertices, v)
	}

	for i := 0; i < nFaces; i++ {
		arity, err := tok.int("face arity")
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		if arity != 3 && arity != 4 {
			return nil, fmt.Errorf("face %d: %w: %d", i, ErrUnsupportedArity, arity)
		}
		var idx [4]int
		for j := 0; j < arity; j++ {
			if idx[j], err = tok.int("face index"); err != nil {
				return nil, fmt.Errorf("face %d: %w", i, err)
			}
		}
		if err := checkIndices(nVertices, idx[:arity]...); err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		s.Triangles = append(s.Triangles, [3]int{idx[0], idx[1], idx[2]})
		if arity == 4 {
			s.Triangles = append(s.Triangles, [3]int{idx[0], idx[2], idx[3]})
		}
	}

	return s, nil
}

// ParseOFFFile parses an OFF file from disk.
func ParseOFFFile(path string) (*Surface, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading OFF file: %w", err)
	}
	return ParseOFF(data)
}

// WriteOFF writes vertices and triangles in OFF format.
func WriteOFF(w io.Writer, vertices []r3.Vec, triangles [][3]int) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "OFF\n%d %d 0\n", len(vertices), len(triangles))
	for _, v := range vertices {
		writeVec(bw, v)
		bw.WriteByte('\n')
	}
	for _, t := range triangles {
		fmt.Fprintf(bw, "3 %d %d %d\n", t[0], t[1], t[2])
	}
	return bw.Flush()
}

func writeVec(w *bufio.Writer, v r3.Vec) {
	w.WriteString(strconv.FormatFloat(v.X, 'g', -1, 64))
	w.WriteByte(' ')
	w.WriteString(strconv.FormatFloat(v.Y, 'g', -1, 64))
	w.WriteByte(' ')
	w.WriteString(strconv.FormatFloat(v.Z, 'g', -1, 64))
}
