package component

// Position is an entity's world position. Written by MotionSystem, read by the grid.
type Position struct {
	X, Y float64
}

// Velocity is in world units per second.
type Velocity struct {
	X, Y float64
}

// Boundary decides what happens when an entity crosses the world edge.
type Boundary uint8

const (
	// BoundaryWrap folds positions back into [0, extent).
	BoundaryWrap Boundary = iota
	// BoundaryFree lets entities roam outside the grid, where they are not indexed.
	BoundaryFree
	// BoundaryBounce reflects velocity at the edges.
	BoundaryBounce
)

func (b Boundary) String() string {
	switch b {
	case BoundaryWrap:
		return "wrap"
	case BoundaryFree:
		return "free"
	case BoundaryBounce:
		return "bounce"
	}
	return "unknown"
}

// Motion carries the per-entity movement settings from its spawn group.
type Motion struct {
	Group    int // index into the scenario's spawn groups
	Boundary Boundary
	TTL      int // remaining ticks, <= 0 means immortal
}
