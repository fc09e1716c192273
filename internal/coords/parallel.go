package coords

import (
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagewarp/internal/logger"
)

// chunkSize is the number of points one worker task handles.
const chunkSize = 256

// Stats summarizes a batch computation.
type Stats struct {
	Points int
	// SkippedTriangles is the total Degeneracy over all points.
	SkippedTriangles int
	// EmptyPoints counts points that received no weight at all (MVC only).
	EmptyPoints int
}

// GreenRecord holds the Green coordinates of one point.
type GreenRecord struct {
	Phi []float64
	Psi []float64
}

// Workers normalizes a worker count: values below 1 mean GOMAXPROCS.
func Workers(n int) int {
	if n < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// ForChunks runs fn over [0, n) split in chunks on at most workers
// goroutines. fn must only write to its own index range.
func ForChunks(n, workers int, fn func(lo, hi int)) {
	var g errgroup.Group
	g.SetLimit(Workers(workers))
	for lo := 0; lo < n; lo += chunkSize {
		lo, hi := lo, min(lo+chunkSize, n)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}

// ComputeMVC computes the mean value coordinates of every point.
func ComputeMVC(points []r3.Vec, g Geometry, workers int) ([][]Weight, Stats) {
	start := time.Now()
	out := make([][]Weight, len(points))
	var skipped, empty atomic.Int64

	ForChunks(len(points), workers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			w, deg := MVC(points[i], g)
			out[i] = w
			skipped.Add(int64(deg))
			if len(w) == 0 {
				empty.Add(1)
			}
		}
	})

	stats := Stats{Points: len(points), SkippedTriangles: int(skipped.Load()), EmptyPoints: int(empty.Load())}
	logBatch("mvc", stats, time.Since(start))
	return out, stats
}

// ComputeGreen computes the Green coordinates of every point.
func ComputeGreen(points []r3.Vec, g Geometry, workers int) ([]GreenRecord, Stats) {
	start := time.Now()
	out := make([]GreenRecord, len(points))
	var skipped atomic.Int64

	ForChunks(len(points), workers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			rec := GreenRecord{
				Phi: make([]float64, len(g.Vertices)),
				Psi: make([]float64, len(g.Triangles)),
			}
			skipped.Add(int64(Green(points[i], g, rec.Phi, rec.Psi)))
			out[i] = rec
		}
	})

	stats := Stats{Points: len(points), SkippedTriangles: int(skipped.Load())}
	logBatch("green", stats, time.Since(start))
	return out, stats
}

func logBatch(method string, stats Stats, elapsed time.Duration) {
	log := logger.Named("coords")
	fields := []zap.Field{
		zap.String("method", method),
		zap.Int("points", stats.Points),
		zap.Duration("elapsed", elapsed),
	}
	if stats.SkippedTriangles > 0 || stats.EmptyPoints > 0 {
		log.Warn("degenerate cage triangles skipped",
			append(fields,
				zap.Int("skipped_triangles", stats.SkippedTriangles),
				zap.Int("empty_points", stats.EmptyPoints))...)
		return
	}
	log.Debug("coordinates computed", fields...)
}
