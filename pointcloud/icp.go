package pointcloud

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"

	"github.com/cpsk-bim/scanalign/spatialmath"
)

// Registration defaults. The cell size is a small constant in the cloud's
// linear unit (0.1 for clouds measured in meters).
const (
	DefaultMaxIterations = 50
	DefaultTolerance     = 1e-6
	DefaultCellSize      = 0.1
)

// ICPConfig holds the tunables of RegisterICP. The zero value selects a
// default for every field.
type ICPConfig struct {
	// MaxIterations bounds the number of correspondence/estimation passes.
	MaxIterations int

	// Tolerance is the RMS-change threshold below which the loop is
	// considered converged.
	Tolerance float64

	// MaxCorrespondenceDist discards nearest-neighbor pairs farther apart
	// than this distance. When zero it is derived from the target cloud as
	// half the maximum distance from the target centroid to any target point.
	MaxCorrespondenceDist float64

	// CellSize is the edge length of the spatial grid cells built over the
	// target cloud.
	CellSize float64

	// RotationMethod selects the rotation estimator for each increment.
	RotationMethod spatialmath.RotationMethod

	// OnProgress, if set, is invoked synchronously once per iteration with
	// the iteration index and the current RMS error. Nothing else proceeds
	// while it runs, so it must be fast and non-blocking.
	OnProgress func(iteration int, rms float64)

	Logger golog.Logger
}

func (cfg *ICPConfig) setDefaults(target *PointCloud) {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if cfg.CellSize <= 0 {
		cfg.CellSize = DefaultCellSize
	}
	if cfg.MaxCorrespondenceDist <= 0 {
		cfg.MaxCorrespondenceDist = 0.5 * RadiusFromCentroid(target)
	}
	if cfg.Logger == nil {
		cfg.Logger = golog.Global()
	}
}

// ICPResult reports the outcome of a registration.
type ICPResult struct {
	// Pose is the total accumulated transform taking the original source
	// cloud onto the target cloud.
	Pose spatialmath.Pose

	// RMSError is the root-mean-square nearest-neighbor distance measured
	// against the final transformed source cloud.
	RMSError float64

	// Iterations is the number of iterations run, including the final one
	// that detected convergence or insufficient correspondences.
	Iterations int

	// Correspondences is the number of point pairs that survived the
	// distance gate in the last completed search.
	Correspondences int
}

// correspondence pairs a source index with its nearest target index. It is
// valid only while its squared distance is within the configured gate.
type correspondence struct {
	source, target int
	distSq         float64
}

// RegisterICP refines the alignment of a roughly pre-aligned source cloud onto
// a target cloud with the iterative-closest-point algorithm: repeated
// nearest-neighbor correspondence search over a spatial grid, incremental
// rigid-transform estimation on the surviving pairs, and composition of the
// increments into a running total.
//
// The loop never fails on numerically degenerate input; it degrades to the
// identity pose or terminates early with the best transform found so far. The
// caller's clouds are not modified. The returned error is reserved for future
// contract violations and is always nil today.
func RegisterICP(source, target *PointCloud, cfg ICPConfig) (*ICPResult, error) {
	result := &ICPResult{Pose: spatialmath.NewZeroPose()}
	if source.Size() == 0 || target.Size() == 0 {
		return result, nil
	}
	cfg.setDefaults(target)

	grid := NewSpatialGrid(target, cfg.CellSize)
	working := source.Points()
	maxDistSq := cfg.MaxCorrespondenceDist * cfg.MaxCorrespondenceDist

	total := spatialmath.NewZeroPose()
	prevRMS := math.Inf(1)

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		result.Iterations = iter + 1

		corrs := findCorrespondences(working, target, grid, maxDistSq)
		result.Correspondences = len(corrs)
		if len(corrs) < 3 {
			// not enough data to estimate an increment; keep the best
			// transform accumulated so far.
			cfg.Logger.Debugf("icp iteration %d: only %d correspondences within %.4f, stopping",
				iter, len(corrs), cfg.MaxCorrespondenceDist)
			break
		}

		rms := rmsOf(corrs)
		if cfg.OnProgress != nil {
			cfg.OnProgress(iter, rms)
		}
		cfg.Logger.Debugf("icp iteration %d: %d correspondences, rms %.6f", iter, len(corrs), rms)

		if math.Abs(prevRMS-rms) < cfg.Tolerance {
			break
		}
		prevRMS = rms

		src := make([]r3.Vector, len(corrs))
		dst := make([]r3.Vector, len(corrs))
		for i, c := range corrs {
			src[i] = working[c.source]
			dst[i] = target.At(c.target)
		}
		delta, err := spatialmath.EstimateRigidTransform(src, dst, cfg.RotationMethod)
		if err != nil {
			// src and dst are same-length by construction
			return nil, err
		}

		for i, p := range working {
			working[i] = delta.TransformPoint(p)
		}
		total = spatialmath.Compose(delta, total)
	}

	result.Pose = total
	result.RMSError = finalRMS(working, grid)
	return result, nil
}

// findCorrespondences pairs every working source point with its nearest
// target point, keeping only pairs within the squared distance gate.
func findCorrespondences(working []r3.Vector, target *PointCloud, grid *SpatialGrid, maxDistSq float64) []correspondence {
	corrs := make([]correspondence, 0, len(working))
	for i, p := range working {
		idx, distSq := grid.ClosestPoint(p)
		if idx >= 0 && distSq <= maxDistSq {
			corrs = append(corrs, correspondence{source: i, target: idx, distSq: distSq})
		}
	}
	return corrs
}

// rmsOf returns the root-mean-square distance of the correspondences.
func rmsOf(corrs []correspondence) float64 {
	total := 0.0
	for _, c := range corrs {
		total += c.distSq
	}
	return math.Sqrt(total / float64(len(corrs)))
}

// finalRMS runs one more ungated nearest-neighbor pass against the final
// working source cloud to report the residual error.
func finalRMS(working []r3.Vector, grid *SpatialGrid) float64 {
	total := 0.0
	count := 0
	for _, p := range working {
		if idx, distSq := grid.ClosestPoint(p); idx >= 0 {
			total += distSq
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(total / float64(count))
}
