// Package spatialmath defines the rotation and rigid-transform math used to
// align point clouds: 3x3 rotation matrices, poses, and the estimators that
// recover a best-fit rotation from point correspondences.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// RotationMatrix is a 3x3 matrix in row major order.
// A proper rotation matrix has orthonormal rows/columns and determinant +1.
type RotationMatrix struct {
	mat [9]float64
}

// NewRotationMatrix creates the rotation matrix from a slice of floats in row major order.
func NewRotationMatrix(m []float64) (*RotationMatrix, error) {
	if len(m) != 9 {
		return nil, errors.Errorf("input slice has %d elements, need exactly 9", len(m))
	}
	mat := [9]float64{m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8]}
	return &RotationMatrix{mat}, nil
}

// NewZeroRotationMatrix returns the identity matrix, representing no rotation.
func NewZeroRotationMatrix() *RotationMatrix {
	return &RotationMatrix{[9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// newRotationMatrixFromCols assembles a matrix whose columns are the three given vectors.
func newRotationMatrixFromCols(c0, c1, c2 r3.Vector) *RotationMatrix {
	return &RotationMatrix{[9]float64{
		c0.X, c1.X, c2.X,
		c0.Y, c1.Y, c2.Y,
		c0.Z, c1.Z, c2.Z,
	}}
}

// At returns the float corresponding to the row and column of the matrix.
func (rm *RotationMatrix) At(row, col int) float64 {
	return rm.mat[3*row+col]
}

// Row returns the a 3 element vector corresponding to the specified row.
func (rm *RotationMatrix) Row(row int) r3.Vector {
	return r3.Vector{X: rm.mat[3*row], Y: rm.mat[3*row+1], Z: rm.mat[3*row+2]}
}

// Col returns the a 3 element vector corresponding to the specified col.
func (rm *RotationMatrix) Col(col int) r3.Vector {
	return r3.Vector{X: rm.mat[col], Y: rm.mat[3+col], Z: rm.mat[6+col]}
}

// Mul returns the product of the rotation matrix with an r3 vector.
func (rm *RotationMatrix) Mul(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm.mat[0]*v.X + rm.mat[1]*v.Y + rm.mat[2]*v.Z,
		Y: rm.mat[3]*v.X + rm.mat[4]*v.Y + rm.mat[5]*v.Z,
		Z: rm.mat[6]*v.X + rm.mat[7]*v.Y + rm.mat[8]*v.Z,
	}
}

// MatMul returns the product rm * o of two 3x3 matrices.
func (rm *RotationMatrix) MatMul(o *RotationMatrix) *RotationMatrix {
	var out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			sum := 0.0
			for k := 0; k < 3; k++ {
				sum += rm.mat[3*i+k] * o.mat[3*k+j]
			}
			out[3*i+j] = sum
		}
	}
	return &RotationMatrix{out}
}

// Transpose returns the transpose of the matrix. For a proper rotation matrix
// the transpose is also its inverse.
func (rm *RotationMatrix) Transpose() *RotationMatrix {
	return &RotationMatrix{[9]float64{
		rm.mat[0], rm.mat[3], rm.mat[6],
		rm.mat[1], rm.mat[4], rm.mat[7],
		rm.mat[2], rm.mat[5], rm.mat[8],
	}}
}

// Det returns the determinant of the matrix.
func (rm *RotationMatrix) Det() float64 {
	m := rm.mat
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Quaternion returns the quaternion representation of the rotation matrix.
func (rm *RotationMatrix) Quaternion() quat.Number {
	var q quat.Number
	m := rm.mat

	// converting to quaternion form involves taking square roots, and destroys
	// sign information, so whichever branch keeps the largest component is used.
	tr := m[0] + m[4] + m[8]
	switch {
	case tr > 0:
		s := 0.5 / math.Sqrt(tr+1.0)
		q.Real = 0.25 / s
		q.Imag = (m[7] - m[5]) * s
		q.Jmag = (m[2] - m[6]) * s
		q.Kmag = (m[3] - m[1]) * s
	case m[0] > m[4] && m[0] > m[8]:
		s := 2.0 * math.Sqrt(1.0+m[0]-m[4]-m[8])
		q.Real = (m[7] - m[5]) / s
		q.Imag = 0.25 * s
		q.Jmag = (m[1] + m[3]) / s
		q.Kmag = (m[2] + m[6]) / s
	case m[4] > m[8]:
		s := 2.0 * math.Sqrt(1.0+m[4]-m[0]-m[8])
		q.Real = (m[2] - m[6]) / s
		q.Imag = (m[1] + m[3]) / s
		q.Jmag = 0.25 * s
		q.Kmag = (m[5] + m[7]) / s
	default:
		s := 2.0 * math.Sqrt(1.0+m[8]-m[0]-m[4])
		q.Real = (m[3] - m[1]) / s
		q.Imag = (m[2] + m[6]) / s
		q.Jmag = (m[5] + m[7]) / s
		q.Kmag = 0.25 * s
	}
	return q
}

// AngleTo returns the magnitude in radians of the rotation taking rm to o.
func (rm *RotationMatrix) AngleTo(o *RotationMatrix) float64 {
	d := quat.Mul(rm.Quaternion(), quat.Conj(o.Quaternion()))
	w := math.Abs(d.Real)
	if w > 1 {
		w = 1
	}
	return 2 * math.Acos(w)
}

// IsRotation reports whether the matrix is a proper rotation within the given
// tolerance: orthonormal (R^T * R = I) with determinant +1.
func (rm *RotationMatrix) IsRotation(tol float64) bool {
	rtr := rm.Transpose().MatMul(rm)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(rtr.At(i, j)-want) > tol {
				return false
			}
		}
	}
	return math.Abs(rm.Det()-1) <= tol
}

// AlmostEqual reports whether all elements of the two matrices are within tol of each other.
func (rm *RotationMatrix) AlmostEqual(o *RotationMatrix, tol float64) bool {
	for i := 0; i < 9; i++ {
		if math.Abs(rm.mat[i]-o.mat[i]) > tol {
			return false
		}
	}
	return true
}
