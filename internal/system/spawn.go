package system

import (
	"math"
	"math/rand"
	"time"

	"github.com/l1jgo/gridsim/internal/component"
	"github.com/l1jgo/gridsim/internal/core/ecs"
	coresys "github.com/l1jgo/gridsim/internal/core/system"
	"github.com/l1jgo/gridsim/internal/data"
	"github.com/l1jgo/gridsim/internal/grid"
	"go.uber.org/zap"
)

// SpawnSystem keeps every scenario group at its target population. Groups without
// respawn are only filled once.
// Phase 0 (PreUpdate).
type SpawnSystem struct {
	world    *ecs.World
	stores   *Stores
	scenario *data.Scenario
	extent   float64
	tracker  *grid.Tracker // nil in rebuild mode
	rng      *rand.Rand
	log      *zap.Logger

	spawned []int // per group, lifetime total
	alive   []int // per group, scratch
}

func NewSpawnSystem(world *ecs.World, stores *Stores, scenario *data.Scenario, extent float64, tracker *grid.Tracker, seed int64, log *zap.Logger) *SpawnSystem {
	return &SpawnSystem{
		world:    world,
		stores:   stores,
		scenario: scenario,
		extent:   extent,
		tracker:  tracker,
		rng:      rand.New(rand.NewSource(seed)),
		log:      log,
		spawned:  make([]int, len(scenario.Groups)),
		alive:    make([]int, len(scenario.Groups)),
	}
}

func (s *SpawnSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *SpawnSystem) Update(_ time.Duration) {
	for i := range s.alive {
		s.alive[i] = 0
	}
	s.stores.Motions.Each(func(_ ecs.EntityID, m *component.Motion) {
		if m.Group >= 0 && m.Group < len(s.alive) {
			s.alive[m.Group]++
		}
	})

	for gi := range s.scenario.Groups {
		g := &s.scenario.Groups[gi]
		want := g.Count - s.alive[gi]
		if !g.Respawn {
			want = min(want, g.Count-s.spawned[gi])
		}
		if want <= 0 {
			continue
		}
		for i := 0; i < want; i++ {
			s.spawn(gi, g)
		}
		s.log.Debug("spawned", zap.String("group", g.Name), zap.Int("count", want), zap.Int("total", s.spawned[gi]))
	}
}

// Spawned is the lifetime spawn total for group gi.
func (s *SpawnSystem) Spawned(gi int) int { return s.spawned[gi] }

func (s *SpawnSystem) spawn(gi int, g *data.SpawnGroup) ecs.EntityID {
	id := s.world.CreateEntity()
	boundary := parseBoundary(g.Boundary)

	pos := component.Position{
		X: g.Origin.X + (s.rng.Float64()-0.5)*2*g.Spread,
		Y: g.Origin.Y + (s.rng.Float64()-0.5)*2*g.Spread,
	}
	if boundary != component.BoundaryFree {
		pos.X = wrap(pos.X, s.extent)
		pos.Y = wrap(pos.Y, s.extent)
	}
	s.stores.Positions.Set(id, &pos)
	s.stores.Velocities.Set(id, &component.Velocity{
		X: (s.rng.Float64() - 0.5) * 2 * g.Speed,
		Y: (s.rng.Float64() - 0.5) * 2 * g.Speed,
	})
	s.stores.Motions.Set(id, &component.Motion{
		Group:    gi,
		Boundary: boundary,
		TTL:      g.Lifetime,
	})
	if s.tracker != nil {
		s.tracker.Track(id)
	}
	s.spawned[gi]++
	return id
}

func parseBoundary(s string) component.Boundary {
	switch s {
	case "free":
		return component.BoundaryFree
	case "bounce":
		return component.BoundaryBounce
	}
	return component.BoundaryWrap
}

// wrap folds v into [0, extent).
func wrap(v, extent float64) float64 {
	v = math.Mod(v, extent)
	if v < 0 {
		v += extent
	}
	// -tiny + extent rounds to extent
	if v >= extent {
		v = 0
	}
	return v
}
