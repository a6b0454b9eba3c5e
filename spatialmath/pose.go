package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// Pose is a rigid transform: a rotation followed by a translation, no scale or
// shear. Applying it to a point p yields R*p + t.
type Pose struct {
	Rotation    *RotationMatrix
	Translation r3.Vector
}

// NewPose creates a pose from a rotation matrix and a translation vector.
func NewPose(r *RotationMatrix, t r3.Vector) Pose {
	return Pose{Rotation: r, Translation: t}
}

// NewZeroPose returns the identity pose, which maps every point to itself.
func NewZeroPose() Pose {
	return Pose{Rotation: NewZeroRotationMatrix()}
}

// TransformPoint applies the pose to a point.
func (p Pose) TransformPoint(pt r3.Vector) r3.Vector {
	return p.Rotation.Mul(pt).Add(p.Translation)
}

// Invert returns the pose mapping transformed points back to their originals.
func (p Pose) Invert() Pose {
	rt := p.Rotation.Transpose()
	return Pose{Rotation: rt, Translation: rt.Mul(p.Translation).Mul(-1)}
}

// Compose returns the pose equivalent to applying b first and then a, so that
// Compose(a, b).TransformPoint(p) == a.TransformPoint(b.TransformPoint(p)).
func Compose(a, b Pose) Pose {
	return Pose{
		Rotation:    a.Rotation.MatMul(b.Rotation),
		Translation: a.Rotation.Mul(b.Translation).Add(a.Translation),
	}
}

// PoseAlmostEqual reports whether two poses agree elementwise within tol.
func PoseAlmostEqual(a, b Pose, tol float64) bool {
	if !a.Rotation.AlmostEqual(b.Rotation, tol) {
		return false
	}
	d := a.Translation.Sub(b.Translation)
	return math.Abs(d.X) <= tol && math.Abs(d.Y) <= tol && math.Abs(d.Z) <= tol
}
