package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/cpsk-bim/scanalign/spatialmath"
)

// CalculateMean returns the arithmetic mean position of the cloud, or the
// origin for an empty cloud.
func CalculateMean(cloud *PointCloud) r3.Vector {
	if cloud.Size() == 0 {
		return r3.Vector{}
	}
	sum := r3.Vector{}
	cloud.Iterate(func(_ int, p r3.Vector) bool {
		sum = sum.Add(p)
		return true
	})
	return sum.Mul(1 / float64(cloud.Size()))
}

// ApplyPose returns a new cloud with the pose applied to every point,
// preserving order. The input cloud is not modified.
func ApplyPose(cloud *PointCloud, pose spatialmath.Pose) *PointCloud {
	out := NewWithPrealloc(cloud.Size())
	cloud.Iterate(func(_ int, p r3.Vector) bool {
		out.Append(pose.TransformPoint(p))
		return true
	})
	return out
}

// RadiusFromCentroid returns the maximum distance from the cloud's centroid to
// any of its points, or 0 for an empty cloud.
func RadiusFromCentroid(cloud *PointCloud) float64 {
	centroid := CalculateMean(cloud)
	maxSq := 0.0
	cloud.Iterate(func(_ int, p r3.Vector) bool {
		if d := p.Sub(centroid).Norm2(); d > maxSq {
			maxSq = d
		}
		return true
	})
	return math.Sqrt(maxSq)
}
