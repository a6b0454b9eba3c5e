package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// CellCoords stores the integer coordinates of a SpatialGrid cell.
type CellCoords struct {
	I, J, K int64
}

// DefaultSearchRing is the cell radius of the first closest-point pass: a ring
// of 2 scans the 5x5x5 block of cells around the query's cell.
const DefaultSearchRing = 2

// SpatialGrid buckets the indices of a point cloud into fixed-size cubic
// cells for approximate nearest-neighbor queries. Cells are sparse: only
// non-empty cells exist in the map. The grid is built once per target cloud
// and is read-only during the searches it serves.
type SpatialGrid struct {
	cloud    *PointCloud
	cellSize float64
	cells    map[CellCoords][]int

	// occupied extent, used to bound adaptive ring expansion
	minCell CellCoords
	maxCell CellCoords
}

// GetCellCoordinates returns the coordinates of the cell containing the point.
func GetCellCoordinates(p r3.Vector, cellSize float64) CellCoords {
	return CellCoords{
		I: int64(math.Floor(p.X / cellSize)),
		J: int64(math.Floor(p.Y / cellSize)),
		K: int64(math.Floor(p.Z / cellSize)),
	}
}

// NewSpatialGrid creates and fills a SpatialGrid from a point cloud, assigning
// every point index to exactly one cell keyed by the floor of its coordinates
// divided by cellSize.
func NewSpatialGrid(cloud *PointCloud, cellSize float64) *SpatialGrid {
	g := &SpatialGrid{
		cloud:    cloud,
		cellSize: cellSize,
		cells:    make(map[CellCoords][]int),
	}
	first := true
	cloud.Iterate(func(i int, p r3.Vector) bool {
		coords := GetCellCoordinates(p, cellSize)
		g.cells[coords] = append(g.cells[coords], i)
		if first {
			g.minCell, g.maxCell = coords, coords
			first = false
			return true
		}
		g.minCell = CellCoords{min(g.minCell.I, coords.I), min(g.minCell.J, coords.J), min(g.minCell.K, coords.K)}
		g.maxCell = CellCoords{max(g.maxCell.I, coords.I), max(g.maxCell.J, coords.J), max(g.maxCell.K, coords.K)}
		return true
	})
	return g
}

// CellSize returns the edge length of the grid's cells.
func (g *SpatialGrid) CellSize() float64 {
	return g.cellSize
}

// Cell returns the point indices bucketed in the given cell, or nil if the
// cell is empty.
func (g *SpatialGrid) Cell(coords CellCoords) []int {
	return g.cells[coords]
}

// ClosestPointWithin scans the (2*ring+1)^3 block of cells around the query
// point's cell and returns the index and squared distance of the closest
// bucketed point found. If the block holds no points it returns (-1, +Inf).
//
// This is a bounded approximate search: a true nearest neighbor lying just
// outside the scanned block is missed when the cell size is small relative to
// the actual nearest-neighbor distance.
func (g *SpatialGrid) ClosestPointWithin(p r3.Vector, ring int) (int, float64) {
	center := GetCellCoordinates(p, g.cellSize)
	minIdx := -1
	minDistSq := math.Inf(1)
	r := int64(ring)

	// for wide rings it is cheaper to walk the occupied cells than the block
	if blockCells := float64(2*r + 1); blockCells*blockCells*blockCells > float64(len(g.cells)) {
		for key, indices := range g.cells {
			if abs64(key.I-center.I) > r || abs64(key.J-center.J) > r || abs64(key.K-center.K) > r {
				continue
			}
			for _, idx := range indices {
				if distSq := p.Sub(g.cloud.At(idx)).Norm2(); distSq < minDistSq {
					minDistSq = distSq
					minIdx = idx
				}
			}
		}
		return minIdx, minDistSq
	}

	for di := -r; di <= r; di++ {
		for dj := -r; dj <= r; dj++ {
			for dk := -r; dk <= r; dk++ {
				key := CellCoords{center.I + di, center.J + dj, center.K + dk}
				for _, idx := range g.cells[key] {
					if distSq := p.Sub(g.cloud.At(idx)).Norm2(); distSq < minDistSq {
						minDistSq = distSq
						minIdx = idx
					}
				}
			}
		}
	}
	return minIdx, minDistSq
}

// ClosestPoint returns the index and squared distance of the closest bucketed
// point to p. The search starts with DefaultSearchRing and doubles the ring
// whenever a pass comes up empty, stopping once the block covers the grid's
// occupied extent, so a non-empty grid always yields a match. The first
// non-empty pass still carries the block-boundary approximation of
// ClosestPointWithin.
func (g *SpatialGrid) ClosestPoint(p r3.Vector) (int, float64) {
	if len(g.cells) == 0 {
		return -1, math.Inf(1)
	}
	maxRing := g.ringCovering(p)
	ring := DefaultSearchRing
	for {
		idx, distSq := g.ClosestPointWithin(p, ring)
		if idx >= 0 || ring >= maxRing {
			return idx, distSq
		}
		ring *= 2
		if ring > maxRing {
			ring = maxRing
		}
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// ringCovering returns the smallest ring whose block around p's cell contains
// every occupied cell of the grid.
func (g *SpatialGrid) ringCovering(p r3.Vector) int {
	center := GetCellCoordinates(p, g.cellSize)
	ring := int64(0)
	for _, d := range []int64{
		center.I - g.minCell.I, g.maxCell.I - center.I,
		center.J - g.minCell.J, g.maxCell.J - center.J,
		center.K - g.minCell.K, g.maxCell.K - center.K,
	} {
		if d > ring {
			ring = d
		}
	}
	return int(ring)
}
