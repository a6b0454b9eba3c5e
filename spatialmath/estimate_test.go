package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

// a non-collinear, asymmetric point set used throughout
func samplePoints() []r3.Vector {
	return []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 0, Y: 1, Z: 0},
		{X: 0, Y: 0, Z: 1},
		{X: 1, Y: 2, Z: 3},
		{X: 2, Y: 1, Z: 0},
		{X: 0.5, Y: 0.5, Z: 2.5},
	}
}

func transformAll(pts []r3.Vector, pose Pose) []r3.Vector {
	out := make([]r3.Vector, len(pts))
	for i, p := range pts {
		out[i] = pose.TransformPoint(p)
	}
	return out
}

func TestCentroid(t *testing.T) {
	test.That(t, Centroid(nil), test.ShouldResemble, r3.Vector{})
	test.That(t, Centroid([]r3.Vector{}), test.ShouldResemble, r3.Vector{})

	c := Centroid([]r3.Vector{{X: 1, Y: 2, Z: 3}, {X: 3, Y: 0, Z: -1}})
	test.That(t, c, test.ShouldResemble, r3.Vector{X: 2, Y: 1, Z: 1})
}

func TestSubtractCentroid(t *testing.T) {
	pts := []r3.Vector{{X: 1, Y: 1, Z: 1}, {X: 3, Y: 3, Z: 3}}
	centered := SubtractCentroid(pts, Centroid(pts))
	test.That(t, centered[0], test.ShouldResemble, r3.Vector{X: -1, Y: -1, Z: -1})
	test.That(t, centered[1], test.ShouldResemble, r3.Vector{X: 1, Y: 1, Z: 1})
	test.That(t, Centroid(centered).Norm(), test.ShouldAlmostEqual, 0, 1e-12)
}

func TestCrossCovariance(t *testing.T) {
	h := CrossCovariance(
		[]r3.Vector{{X: 1}, {Y: 2}},
		[]r3.Vector{{Y: 3}, {Z: 1}},
	)
	// (1,0,0)*(0,3,0)^T + (0,2,0)*(0,0,1)^T
	test.That(t, h.At(0, 1), test.ShouldEqual, 3)
	test.That(t, h.At(1, 2), test.ShouldEqual, 2)
	test.That(t, mat.Sum(h), test.ShouldEqual, 5)
}

func TestEstimateRotationInvariants(t *testing.T) {
	// arbitrary non-singular cross-covariance matrices; every estimator output
	// must be orthonormal with determinant +1 regardless of optimality
	hs := []*mat.Dense{
		mat.NewDense(3, 3, []float64{2, 1, 0, 0, 3, 1, 1, 0, 4}),
		mat.NewDense(3, 3, []float64{1, 2, 3, 4, 5, 6, 7, 8, 10}),
		mat.NewDense(3, 3, []float64{-1, 0.5, 0, 2, -3, 1, 0, 1, 2}),
		CrossCovariance(samplePoints(), transformAll(samplePoints(), NewPose(rotationAbout(t, r3.Vector{X: 1, Y: 1}, 1.3), r3.Vector{}))),
	}
	for _, h := range hs {
		for _, method := range []RotationMethod{RotationMethodSVD, RotationMethodIterative} {
			r := EstimateRotation(h, method)
			test.That(t, r.IsRotation(1e-9), test.ShouldBeTrue)
			test.That(t, r.Det(), test.ShouldAlmostEqual, 1, 1e-9)
		}
	}
}

func TestEstimateRigidTransformSizeMismatch(t *testing.T) {
	_, err := EstimateRigidTransform(samplePoints(), samplePoints()[:4], RotationMethodSVD)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrPointSetSizeMismatch), test.ShouldBeTrue)
}

func TestEstimateRigidTransformUnderDetermined(t *testing.T) {
	for _, method := range []RotationMethod{RotationMethodSVD, RotationMethodIterative} {
		for _, n := range []int{0, 1, 2} {
			pose, err := EstimateRigidTransform(samplePoints()[:n], samplePoints()[:n], method)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, PoseAlmostEqual(pose, NewZeroPose(), 1e-12), test.ShouldBeTrue)
		}
	}
}

func TestEstimateRigidTransformSelf(t *testing.T) {
	pts := samplePoints()
	pose, err := EstimateRigidTransform(pts, pts, RotationMethodSVD)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Rotation.AngleTo(NewZeroRotationMatrix()), test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, pose.Translation.Norm(), test.ShouldAlmostEqual, 0, 1e-9)
}

func TestEstimateRigidTransformTranslationOnly(t *testing.T) {
	// unit square in the XY plane, shifted by (1,2,3) with no rotation
	square := []r3.Vector{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}}
	shift := r3.Vector{X: 1, Y: 2, Z: 3}
	shifted := transformAll(square, NewPose(NewZeroRotationMatrix(), shift))

	for _, method := range []RotationMethod{RotationMethodSVD, RotationMethodIterative} {
		pose, err := EstimateRigidTransform(square, shifted, method)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pose.Rotation.AlmostEqual(NewZeroRotationMatrix(), 1e-9), test.ShouldBeTrue)
		test.That(t, pose.Translation.X, test.ShouldAlmostEqual, 1, 1e-9)
		test.That(t, pose.Translation.Y, test.ShouldAlmostEqual, 2, 1e-9)
		test.That(t, pose.Translation.Z, test.ShouldAlmostEqual, 3, 1e-9)
	}
}

func TestEstimateRigidTransformRoundTrip(t *testing.T) {
	pts := samplePoints()
	truths := []Pose{
		NewPose(rotationAbout(t, r3.Vector{Z: 1}, math.Pi/2), r3.Vector{X: 5}),
		NewPose(rotationAbout(t, r3.Vector{X: 1, Y: 2, Z: 2}, math.Pi/6), r3.Vector{X: 0.3, Y: -1.2, Z: 2.5}),
		NewPose(rotationAbout(t, r3.Vector{X: 1, Y: -1}, 2.7), r3.Vector{Y: 100}),
	}
	for _, truth := range truths {
		pose, err := EstimateRigidTransform(pts, transformAll(pts, truth), RotationMethodSVD)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pose.Rotation.AngleTo(truth.Rotation), test.ShouldAlmostEqual, 0, 1e-6)
		test.That(t, pose.Translation.Sub(truth.Translation).Norm(), test.ShouldAlmostEqual, 0, 1e-6)
	}
}

func TestEstimateRigidTransformCentroidContract(t *testing.T) {
	// whatever rotation comes out, the estimated pose must map the source
	// centroid onto the target centroid
	src := samplePoints()
	dst := transformAll(src, NewPose(rotationAbout(t, r3.Vector{Y: 1}, 0.9), r3.Vector{X: -2, Y: 1, Z: 4}))
	for _, method := range []RotationMethod{RotationMethodSVD, RotationMethodIterative} {
		pose, err := EstimateRigidTransform(src, dst, method)
		test.That(t, err, test.ShouldBeNil)
		got := pose.TransformPoint(Centroid(src))
		test.That(t, got.Sub(Centroid(dst)).Norm(), test.ShouldAlmostEqual, 0, 1e-9)
	}
}
