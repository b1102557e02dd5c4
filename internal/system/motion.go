package system

import (
	"time"

	"github.com/l1jgo/gridsim/internal/component"
	"github.com/l1jgo/gridsim/internal/core/ecs"
	coresys "github.com/l1jgo/gridsim/internal/core/system"
	"github.com/l1jgo/gridsim/internal/data"
	"github.com/l1jgo/gridsim/internal/grid"
	"github.com/l1jgo/gridsim/internal/scripting"
	"go.uber.org/zap"
)

// scriptErrorEvery limits how often a failing step_motion is logged.
const scriptErrorEvery = 600

// MotionSystem integrates velocities, applies each entity's boundary rule and counts
// down lifetimes. Entities are visited in id order so a seeded run is reproducible.
// When the Lua engine defines step_motion it computes the next position and velocity;
// errors fall back to plain integration for that entity.
// Phase 1 (Update).
type MotionSystem struct {
	world    *ecs.World
	stores   *Stores
	scenario *data.Scenario
	extent   float64
	lua      *scripting.Engine // nil = Go integration only
	grid     *grid.Grid        // for the neighbors count handed to scripts
	log      *zap.Logger

	tick       uint64
	ids        []ecs.EntityID
	near       []ecs.EntityID
	scriptErrs int
	expired    int
}

func NewMotionSystem(world *ecs.World, stores *Stores, scenario *data.Scenario, extent float64, lua *scripting.Engine, log *zap.Logger) *MotionSystem {
	if lua != nil && !lua.HasMotion() {
		lua = nil
	}
	return &MotionSystem{
		world:    world,
		stores:   stores,
		scenario: scenario,
		extent:   extent,
		lua:      lua,
		log:      log,
	}
}

// UseGrid lets scripts see how crowded an entity's neighbourhood was last tick.
func (s *MotionSystem) UseGrid(g *grid.Grid) { s.grid = g }

func (s *MotionSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *MotionSystem) Update(dt time.Duration) {
	s.tick++
	secs := dt.Seconds()
	s.ids = ecs.EachSorted2(s.stores.Positions, s.stores.Velocities, s.ids, func(id ecs.EntityID, p *component.Position, v *component.Velocity) {
		m, ok := s.stores.Motions.Get(id)
		if !ok {
			m = &component.Motion{Group: -1, Boundary: component.BoundaryFree}
		}
		s.step(id, m, p, v, secs)
		s.confine(m.Boundary, p, v)

		if m.TTL > 0 {
			m.TTL--
			if m.TTL == 0 {
				s.world.MarkForDestruction(id)
				s.expired++
			}
		}
	})
}

// Expired is the running total of entities whose lifetime ran out.
func (s *MotionSystem) Expired() int { return s.expired }

// ScriptErrors is the running total of failed step_motion calls.
func (s *MotionSystem) ScriptErrors() int { return s.scriptErrs }

func (s *MotionSystem) step(id ecs.EntityID, m *component.Motion, p *component.Position, v *component.Velocity, secs float64) {
	if s.lua != nil {
		res, err := s.lua.StepMotion(scripting.MotionContext{
			Group:     s.groupName(m.Group),
			Tick:      s.tick,
			DT:        secs,
			Extent:    s.extent,
			X:         p.X,
			Y:         p.Y,
			VX:        v.X,
			VY:        v.Y,
			Boundary:  m.Boundary.String(),
			Neighbors: s.neighbors(id, p),
		})
		if err == nil {
			p.X, p.Y = res.X, res.Y
			v.X, v.Y = res.VX, res.VY
			return
		}
		if s.scriptErrs%scriptErrorEvery == 0 {
			s.log.Warn("step_motion failed, using built-in motion",
				zap.Stringer("entity", id),
				zap.Int("errors", s.scriptErrs+1),
				zap.Error(err))
		}
		s.scriptErrs++
	}
	p.X += v.X * secs
	p.Y += v.Y * secs
}

// neighbors counts the other live ids around p. The grid still holds last tick's
// placement, and a rebuild grid can hold ids destroyed since, so those are skipped.
func (s *MotionSystem) neighbors(self ecs.EntityID, p *component.Position) int {
	if s.grid == nil {
		return -1
	}
	idx, ok := s.grid.CellIndexFor(p.X, p.Y)
	if !ok {
		return 0
	}
	s.near = s.grid.Neighbors(idx, s.near[:0])
	n := 0
	for _, id := range s.near {
		if id != self && s.world.Alive(id) {
			n++
		}
	}
	return n
}

func (s *MotionSystem) confine(b component.Boundary, p *component.Position, v *component.Velocity) {
	switch b {
	case component.BoundaryWrap:
		p.X = wrap(p.X, s.extent)
		p.Y = wrap(p.Y, s.extent)
	case component.BoundaryBounce:
		p.X, v.X = bounce(p.X, v.X, s.extent)
		p.Y, v.Y = bounce(p.Y, v.Y, s.extent)
	}
}

func (s *MotionSystem) groupName(gi int) string {
	if gi < 0 || gi >= len(s.scenario.Groups) {
		return ""
	}
	return s.scenario.Groups[gi].Name
}

// bounce reflects p back into [0, extent) and flips the velocity component when it
// points out of the region.
func bounce(p, v, extent float64) (float64, float64) {
	if p < 0 {
		p = -p
		if v < 0 {
			v = -v
		}
	}
	if p >= extent {
		p = 2*extent - p
		if v > 0 {
			v = -v
		}
	}
	// a step longer than the extent can still overshoot
	if p < 0 || p >= extent {
		p = wrap(p, extent)
	}
	return p, v
}
