// Package report measures how far a deformation moved a mesh.
package report

import (
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

var (
	ErrSizeMismatch = errors.New("report: size mismatch")
	ErrEmpty        = errors.New("report: empty point set")
)

// Stats summarizes a sample of non-negative distances.
type Stats struct {
	Count    int     `yaml:"count"`
	Mean     float64 `yaml:"mean"`
	StdDev   float64 `yaml:"std_dev"`
	Min      float64 `yaml:"min"`
	Max      float64 `yaml:"max"`
	MaxIndex int     `yaml:"max_index"`
}

// Summarize computes population statistics of values. An empty sample gives
// zero stats with MaxIndex -1.
func Summarize(values []float64) Stats {
	if len(values) == 0 {
		return Stats{MaxIndex: -1}
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	idx := floats.MaxIdx(values)
	return Stats{
		Count:    len(values),
		Mean:     mean,
		StdDev:   std,
		Min:      floats.Min(values),
		Max:      values[idx],
		MaxIndex: idx,
	}
}

// Displacements returns |current[i] - rest[i]| per vertex.
func Displacements(rest, current []r3.Vec) ([]float64, error) {
	if len(rest) != len(current) {
		return nil, fmt.Errorf("%w: %d rest, %d current", ErrSizeMismatch, len(rest), len(current))
	}
	out := make([]float64, len(rest))
	for i := range rest {
		out[i] = r3.Norm(r3.Sub(current[i], rest[i]))
	}
	return out, nil
}

// NearestDistances returns, for each point of from, the distance to the
// closest point of to.
func NearestDistances(from, to []r3.Vec) ([]float64, error) {
	if len(to) == 0 {
		return nil, ErrEmpty
	}
	pts := make(kdtree.Points, len(to))
	for i, p := range to {
		pts[i] = kdtree.Point{p.X, p.Y, p.Z}
	}
	tree := kdtree.New(pts, false)

	out := make([]float64, len(from))
	for i, p := range from {
		_, d2 := tree.Nearest(kdtree.Point{p.X, p.Y, p.Z})
		out[i] = math.Sqrt(d2)
	}
	return out, nil
}

// Hausdorff returns the symmetric Hausdorff distance between two point sets.
func Hausdorff(a, b []r3.Vec) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmpty
	}
	ab, err := NearestDistances(a, b)
	if err != nil {
		return 0, err
	}
	ba, err := NearestDistances(b, a)
	if err != nil {
		return 0, err
	}
	return math.Max(floats.Max(ab), floats.Max(ba)), nil
}

// Report describes one deformation of a bound target.
type Report struct {
	Method       string `yaml:"method"`
	Vertices     int    `yaml:"vertices"`
	Outliers     int    `yaml:"outliers"`
	Displacement Stats  `yaml:"displacement"`
	// Hausdorff is the symmetric Hausdorff distance between the rest and
	// deformed vertex sets.
	Hausdorff float64 `yaml:"hausdorff"`
	// Outlier and inlier displacement are split when an outlier mask is
	// given.
	InlierDisplacement  *Stats `yaml:"inlier_displacement,omitempty"`
	OutlierDisplacement *Stats `yaml:"outlier_displacement,omitempty"`
}

// Build measures current against rest. outliers may be nil.
func Build(method string, rest, current []r3.Vec, outliers []bool) (*Report, error) {
	disp, err := Displacements(rest, current)
	if err != nil {
		return nil, err
	}
	r := &Report{
		Method:       method,
		Vertices:     len(rest),
		Displacement: Summarize(disp),
	}
	if len(rest) > 0 {
		if r.Hausdorff, err = Hausdorff(rest, current); err != nil {
			return nil, err
		}
	}
	if outliers == nil {
		return r, nil
	}
	if len(outliers) != len(rest) {
		return nil, fmt.Errorf("%w: %d outlier flags for %d vertices", ErrSizeMismatch, len(outliers), len(rest))
	}

	var in, out []float64
	for i, d := range disp {
		if outliers[i] {
			out = append(out, d)
		} else {
			in = append(in, d)
		}
	}
	inStats, outStats := Summarize(in), Summarize(out)
	r.Outliers = len(out)
	r.InlierDisplacement = &inStats
	r.OutlierDisplacement = &outStats
	return r, nil
}

// WriteYAML writes r as a YAML document.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}
