// Package pointcloud defines an ordered point cloud and the machinery used to
// align one cloud to another: a sparse spatial grid for nearest-neighbor
// queries and an iterative-closest-point registration loop.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// NewMetaData creates a new MetaData.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge updates the meta data with the new point.
func (meta *MetaData) Merge(v r3.Vector) {
	if v.X > meta.MaxX {
		meta.MaxX = v.X
	}
	if v.Y > meta.MaxY {
		meta.MaxY = v.Y
	}
	if v.Z > meta.MaxZ {
		meta.MaxZ = v.Z
	}
	if v.X < meta.MinX {
		meta.MinX = v.X
	}
	if v.Y < meta.MinY {
		meta.MinY = v.Y
	}
	if v.Z < meta.MinZ {
		meta.MinZ = v.Z
	}
}

// PointCloud is an ordered, finite sequence of points. Order matters only in
// that index i of a source cloud corresponds to index i of a same-length
// target cloud when explicit correspondences are supplied. It may be empty.
type PointCloud struct {
	points []r3.Vector
	meta   MetaData
}

// New returns an empty PointCloud.
func New() *PointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty PointCloud with the given capacity preallocated.
func NewWithPrealloc(size int) *PointCloud {
	return &PointCloud{
		points: make([]r3.Vector, 0, size),
		meta:   NewMetaData(),
	}
}

// NewFromVectors returns a PointCloud holding a copy of the given points in order.
func NewFromVectors(pts []r3.Vector) *PointCloud {
	cloud := NewWithPrealloc(len(pts))
	for _, p := range pts {
		cloud.Append(p)
	}
	return cloud
}

// NewVector convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Size returns the number of points in the cloud.
func (cloud *PointCloud) Size() int {
	return len(cloud.points)
}

// MetaData returns the meta data.
func (cloud *PointCloud) MetaData() MetaData {
	return cloud.meta
}

// At returns the point at index i.
func (cloud *PointCloud) At(i int) r3.Vector {
	return cloud.points[i]
}

// Append adds a point to the end of the cloud.
func (cloud *PointCloud) Append(p r3.Vector) {
	cloud.points = append(cloud.points, p)
	cloud.meta.Merge(p)
}

// Iterate iterates over all points in the cloud in order and calls the given
// function for each point. If the supplied function returns false, iteration
// will stop after the function returns.
func (cloud *PointCloud) Iterate(fn func(i int, p r3.Vector) bool) {
	for i, p := range cloud.points {
		if !fn(i, p) {
			return
		}
	}
}

// Points returns a copy of the points in order.
func (cloud *PointCloud) Points() []r3.Vector {
	out := make([]r3.Vector, len(cloud.points))
	copy(out, cloud.points)
	return out
}
