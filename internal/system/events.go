package system

import (
	"time"

	"github.com/l1jgo/gridsim/internal/core/event"
	coresys "github.com/l1jgo/gridsim/internal/core/system"
	"go.uber.org/zap"
)

// EventDispatchSystem delivers last tick's events at the start of the tick.
// Phase 0 (PreUpdate).
type EventDispatchSystem struct {
	bus *event.Bus
}

func NewEventDispatchSystem(bus *event.Bus) *EventDispatchSystem {
	return &EventDispatchSystem{bus: bus}
}

func (s *EventDispatchSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *EventDispatchSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}

// CrossingStats counts grid events as they are dispatched.
type CrossingStats struct {
	Crossings int // cell changes, including entering the grid
	Exits     int // left the indexed region
	Stale     int // stored cell did not hold the entity
}

// Subscribe wires the counters to bus. Exits and stale memberships are logged at
// debug level.
func (c *CrossingStats) Subscribe(bus *event.Bus, log *zap.Logger) {
	event.Subscribe(bus, func(ev event.CellChanged) {
		c.Crossings++
	})
	event.Subscribe(bus, func(ev event.LeftGrid) {
		c.Exits++
		log.Debug("entity left grid", zap.Uint64("tick", ev.Tick), zap.Stringer("entity", ev.ID), zap.Int("cell", int(ev.From)))
	})
	event.Subscribe(bus, func(ev event.StaleMembership) {
		c.Stale++
		log.Debug("stale membership repaired", zap.Uint64("tick", ev.Tick), zap.Stringer("entity", ev.ID), zap.Int("cell", int(ev.Cell)))
	})
}
