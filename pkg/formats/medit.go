package formats

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrUnsupportedDimension is returned for Medit files that are not 3D.
var ErrUnsupportedDimension = errors.New("unsupported Medit dimension")

// ParseMedit parses a Medit .mesh file (MeshVersionFormatted 1 or 2).
// Vertices, Triangles and Tetrahedra sections are read; indices are 1-based
// on disk and 0-based in the result. Other sections are skipped.
func ParseMedit(data []byte) (*Volume, error) {
	tok := newTokenizer(data)
	vol := &Volume{}

sections:
	for {
		kw, ok := tok.next()
		if !ok {
			break
		}

		switch strings.ToLower(kw) {
		case "meshversionformatted":
			if _, err := tok.int("version"); err != nil {
				return nil, err
			}

		case "dimension":
			d, err := tok.int("dimension")
			if err != nil {
				return nil, err
			}
			if d != 3 {
				return nil, fmt.Errorf("%w: %d", ErrUnsupportedDimension, d)
			}

		case "vertices":
			n, err := tok.int("vertex count")
			if err != nil {
				return nil, err
			}
			vol.Vertices = make([]r3.Vec, 0, n)
			vol.VertexRefs = make([]int, 0, n)
			for i := 0; i < n; i++ {
				v, err := tok.vec("vertex")
				if err != nil {
					return nil, fmt.Errorf("vertex %d: %w", i, err)
				}
				ref, err := tok.int("vertex ref")
				if err != nil {
					return nil, fmt.Errorf("vertex %d: %w", i, err)
				}
				vol.Vertices = append(vol.Vertices, v)
				vol.VertexRefs = append(vol.VertexRefs, ref)
			}

		case "triangles":
			n, err := tok.int("triangle count")
			if err != nil {
				return nil, err
			}
			vol.Triangles = make([][3]int, 0, n)
			for i := 0; i < n; i++ {
				var t [3]int
				if err := readElement(tok, t[:], len(vol.Vertices)); err != nil {
					return nil, fmt.Errorf("triangle %d: %w", i, err)
				}
				vol.Triangles = append(vol.Triangles, t)
			}

		case "tetrahedra":
			n, err := tok.int("tetrahedron count")
			if err != nil {
				return nil, err
			}
			vol.Tetrahedra = make([][4]int, 0, n)
			vol.TetRefs = make([]int, 0, n)
			for i := 0; i < n; i++ {
				var t [4]int
				if err := readElement(tok, t[:], len(vol.Vertices)); err != nil {
					return nil, fmt.Errorf("tetrahedron %d: %w", i, err)
				}
				ref, err := tok.int("tetrahedron ref")
				if err != nil {
					return nil, fmt.Errorf("tetrahedron %d: %w", i, err)
				}
				vol.Tetrahedra = append(vol.Tetrahedra, t)
				vol.TetRefs = append(vol.TetRefs, ref)
			}

		case "end":
			break sections
		}
	}

	if len(vol.Vertices) == 0 {
		return nil, fmt.Errorf("%w: no vertices", ErrTruncatedData)
	}
	return vol, nil
}

// readElement reads len(idx) 1-based indices into idx. Triangles carry a
// trailing reference which is consumed and dropped.
func readElement(tok *tokenizer, idx []int, nVertices int) error {
	for j := range idx {
		v, err := tok.int("element index")
		if err != nil {
			return err
		}
		idx[j] = v - 1
	}
	if err := checkIndices(nVertices, idx...); err != nil {
		return err
	}
	if len(idx) == 3 {
		if _, err := tok.int("triangle ref"); err != nil {
			return err
		}
	}
	return nil
}

// ParseMeditFile parses a Medit file from disk.
func ParseMeditFile(path string) (*Volume, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading Medit file: %w", err)
	}
	return ParseMedit(data)
}

// WriteMedit writes vol in Medit format. Missing refs are written as 1.
func WriteMedit(w io.Writer, vol *Volume) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "MeshVersionFormatted 2\nDimension 3\n\nVertices\n%d\n", len(vol.Vertices))
	for i, v := range vol.Vertices {
		writeVec(bw, v)
		fmt.Fprintf(bw, " %d\n", refAt(vol.VertexRefs, i))
	}

	if len(vol.Triangles) > 0 {
		fmt.Fprintf(bw, "\nTriangles\n%d\n", len(vol.Triangles))
		for _, t := range vol.Triangles {
			fmt.Fprintf(bw, "%d %d %d 1\n", t[0]+1, t[1]+1, t[2]+1)
		}
	}

	fmt.Fprintf(bw, "\nTetrahedra\n%d\n", len(vol.Tetrahedra))
	for i, t := range vol.Tetrahedra {
		fmt.Fprintf(bw, "%d %d %d %d %d\n", t[0]+1, t[1]+1, t[2]+1, t[3]+1, refAt(vol.TetRefs, i))
	}
	fmt.Fprint(bw, "\nEnd\n")
	return bw.Flush()
}

func refAt(refs []int, i int) int {
	if i < len(refs) {
		return refs[i]
	}
	return 1
}
