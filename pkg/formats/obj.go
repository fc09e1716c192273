package formats

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// ParseOBJ parses the geometry of a Wavefront OBJ file. Only "v" and "f"
// records are read; face tokens may carry texture and normal references
// ("a/b/c"), of which only the vertex index is kept. Negative indices count
// back from the last vertex read. Polygons with more than three vertices are
// fanned around their first vertex.
func ParseOBJ(data []byte) (*Surface, error) {
	s := &Surface{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: %w: vertex needs 3 coordinates", line, ErrTruncatedData)
			}
			var c [3]float64
			for i := range c {
				v, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: parsing coordinate: %w", line, err)
				}
				c[i] = v
			}
			s.Vertices = append(s.Vertices, r3.Vec{X: c[0], Y: c[1], Z: c[2]})

		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: %w: %d", line, ErrUnsupportedArity, len(fields)-1)
			}
			idx := make([]int, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				i, err := parseOBJIndex(tok, len(s.Vertices))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				idx = append(idx, i)
			}
			for k := 1; k+1 < len(idx); k++ {
				s.Triangles = append(s.Triangles, [3]int{idx[0], idx[k], idx[k+1]})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning OBJ: %w", err)
	}
	return s, nil
}

func parseOBJIndex(tok string, nVertices int) (int, error) {
	if slash := strings.IndexByte(tok, '/'); slash >= 0 {
		tok = tok[:slash]
	}
	i, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("parsing face index %q: %w", tok, err)
	}
	if i < 0 {
		i += nVertices
	} else {
		i--
	}
	if err := checkIndices(nVertices, i); err != nil {
		return 0, err
	}
	return i, nil
}

// ParseOBJFile parses an OBJ file from disk.
func ParseOBJFile(path string) (*Surface, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading OBJ file: %w", err)
	}
	return ParseOBJ(data)
}
