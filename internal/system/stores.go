package system

import (
	"github.com/l1jgo/gridsim/internal/component"
	"github.com/l1jgo/gridsim/internal/core/ecs"
)

// Stores groups the component stores shared by the simulation systems.
type Stores struct {
	Positions  *ecs.PtrComponentStore[component.Position]
	Velocities *ecs.PtrComponentStore[component.Velocity]
	Motions    *ecs.PtrComponentStore[component.Motion]
}

// NewStores creates the stores and registers them with w so destroyed entities are
// dropped from all of them.
func NewStores(w *ecs.World) *Stores {
	s := &Stores{
		Positions:  ecs.NewPtrComponentStore[component.Position](),
		Velocities: ecs.NewPtrComponentStore[component.Velocity](),
		Motions:    ecs.NewPtrComponentStore[component.Motion](),
	}
	w.Registry().Register(s.Positions)
	w.Registry().Register(s.Velocities)
	w.Registry().Register(s.Motions)
	return s
}
