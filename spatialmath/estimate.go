package spatialmath

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// RotationMethod selects the algorithm used to extract the best-fit rotation
// from a cross-covariance matrix.
type RotationMethod int

const (
	// RotationMethodSVD solves for the rotation in closed form via singular
	// value decomposition (the Kabsch algorithm), correcting the sign of the
	// smallest singular direction so the result is a proper rotation and never
	// a reflection. This is the default.
	RotationMethodSVD RotationMethod = iota

	// RotationMethodIterative runs a fixed number of polar-decomposition
	// steps, orthogonalizing H*R^T by Gram-Schmidt at each step. The step
	// count is fixed rather than convergence driven, so the result is only an
	// approximation of the optimum; it is retained for parity with field
	// calibrations produced by the earlier tooling.
	RotationMethodIterative
)

// polarIterations is the fixed step count of the iterative estimator.
const polarIterations = 50

// normalizeEpsilon is the length floor below which normalization saturates to
// the zero vector instead of dividing by a near-zero length.
const normalizeEpsilon = 1e-10

// ErrPointSetSizeMismatch is returned when the source and target point sets
// handed to EstimateRigidTransform are not index-aligned.
var ErrPointSetSizeMismatch = errors.New("source and target point sets differ in length")

// Centroid returns the arithmetic mean position of the given points. The
// origin is returned for an empty set; callers needing to distinguish that
// degenerate case must check the length themselves.
func Centroid(pts []r3.Vector) r3.Vector {
	if len(pts) == 0 {
		return r3.Vector{}
	}
	sum := r3.Vector{}
	for _, p := range pts {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(pts)))
}

// SubtractCentroid returns a new slice with c subtracted from every point.
func SubtractCentroid(pts []r3.Vector, c r3.Vector) []r3.Vector {
	centered := make([]r3.Vector, len(pts))
	for i, p := range pts {
		centered[i] = p.Sub(c)
	}
	return centered
}

// CrossCovariance builds the 3x3 matrix H = sum(s_i * t_i^T) over the two
// centered, index-aligned point sets. H encodes the best-fit rotation taking
// src onto dst.
func CrossCovariance(src, dst []r3.Vector) *mat.Dense {
	h := mat.NewDense(3, 3, nil)
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		s := src[i]
		t := dst[i]
		h.Set(0, 0, h.At(0, 0)+s.X*t.X)
		h.Set(0, 1, h.At(0, 1)+s.X*t.Y)
		h.Set(0, 2, h.At(0, 2)+s.X*t.Z)
		h.Set(1, 0, h.At(1, 0)+s.Y*t.X)
		h.Set(1, 1, h.At(1, 1)+s.Y*t.Y)
		h.Set(1, 2, h.At(1, 2)+s.Y*t.Z)
		h.Set(2, 0, h.At(2, 0)+s.Z*t.X)
		h.Set(2, 1, h.At(2, 1)+s.Z*t.Y)
		h.Set(2, 2, h.At(2, 2)+s.Z*t.Z)
	}
	return h
}

// EstimateRotation produces the rotation matrix that approximately minimizes
// sum(|R*s_i - t_i|^2) for the point sets whose cross-covariance is h.
func EstimateRotation(h *mat.Dense, method RotationMethod) *RotationMatrix {
	if method == RotationMethodIterative {
		return estimateRotationIterative(h)
	}
	if r, ok := rotationFromSVD(h); ok {
		return r
	}
	// factorization failure on a 3x3 is essentially unreachable, but the
	// estimator contract is to degrade rather than fail.
	return estimateRotationIterative(h)
}

// rotationFromSVD computes the Kabsch solution R = V * diag(1,1,d) * U^T where
// H = U*S*V^T and d corrects a reflection into a proper rotation.
func rotationFromSVD(h *mat.Dense) (*RotationMatrix, bool) {
	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		return nil, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	d := 1.0
	if mat.Det(&u)*mat.Det(&v) < 0 {
		d = -1.0
	}
	s := mat.NewDiagDense(3, []float64{1, 1, d})

	var r mat.Dense
	r.Product(&v, s, u.T())
	rm, err := NewRotationMatrix(r.RawMatrix().Data)
	if err != nil {
		return nil, false
	}
	return rm, true
}

// estimateRotationIterative starts from the identity and repeatedly replaces R
// with the Gram-Schmidt orthogonalization of H*R^T.
func estimateRotationIterative(h *mat.Dense) *RotationMatrix {
	r := NewZeroRotationMatrix()
	for iter := 0; iter < polarIterations; iter++ {
		// m = H * R^T, assembled column by column. Orthogonalization rebuilds
		// the third column from a cross product, so only two are needed.
		var cols [2]r3.Vector
		for j := 0; j < 2; j++ {
			var c [3]float64
			for i := 0; i < 3; i++ {
				sum := 0.0
				for k := 0; k < 3; k++ {
					sum += h.At(i, k) * r.At(j, k)
				}
				c[i] = sum
			}
			cols[j] = r3.Vector{X: c[0], Y: c[1], Z: c[2]}
		}
		r = orthogonalizeColumns(cols[0], cols[1])
	}
	return r
}

// orthogonalizeColumns runs Gram-Schmidt over the leading matrix columns. The
// third column is built as the cross product of the first two, which keeps the
// determinant at +1 unless the inputs are degenerate (collinear or coincident
// points); that case saturates to zero columns and must be guarded upstream by
// the minimum point-count precondition.
func orthogonalizeColumns(c0, c1 r3.Vector) *RotationMatrix {
	u0 := normalizeOrZero(c0)
	u1 := normalizeOrZero(c1.Sub(u0.Mul(c1.Dot(u0))))
	u2 := normalizeOrZero(u0.Cross(u1))
	return newRotationMatrixFromCols(u0, u1, u2)
}

// normalizeOrZero returns the unit vector in the direction of v, or the zero
// vector when v is too short to normalize safely.
func normalizeOrZero(v r3.Vector) r3.Vector {
	n := v.Norm()
	if n < normalizeEpsilon {
		return r3.Vector{}
	}
	return v.Mul(1 / n)
}

// EstimateRigidTransform computes the pose (R, t) best mapping the source
// points onto the index-aligned target points, so that target ~= R*source + t.
//
// Mismatched lengths are a caller contract violation and return
// ErrPointSetSizeMismatch. Fewer than 3 pairs is an under-determined problem
// and returns the identity pose with no error.
func EstimateRigidTransform(src, dst []r3.Vector, method RotationMethod) (Pose, error) {
	if len(src) != len(dst) {
		return NewZeroPose(), errors.Wrapf(ErrPointSetSizeMismatch, "source has %d points, target has %d", len(src), len(dst))
	}
	if len(src) < 3 {
		return NewZeroPose(), nil
	}

	srcCentroid := Centroid(src)
	dstCentroid := Centroid(dst)

	h := CrossCovariance(
		SubtractCentroid(src, srcCentroid),
		SubtractCentroid(dst, dstCentroid),
	)
	r := EstimateRotation(h, method)
	t := dstCentroid.Sub(r.Mul(srcCentroid))
	return Pose{Rotation: r, Translation: t}, nil
}
