package event

import (
	"github.com/l1jgo/gridsim/internal/core/ecs"
	"github.com/l1jgo/gridsim/internal/grid"
)

// CellChanged is emitted when an incrementally tracked entity changes bucket,
// including entering the grid from outside.
type CellChanged struct {
	Tick uint64
	ID   ecs.EntityID
	From grid.Membership
	To   grid.Membership
}

// LeftGrid is emitted when a tracked entity moves out of the indexed region and is
// dropped from its bucket.
type LeftGrid struct {
	Tick uint64
	ID   ecs.EntityID
	From grid.CellIndex
}

// StaleMembership is emitted when an entity's stored cell did not hold it.
type StaleMembership struct {
	Tick uint64
	ID   ecs.EntityID
	Cell grid.CellIndex
}
