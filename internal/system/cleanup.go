package system

import (
	"time"

	"github.com/l1jgo/gridsim/internal/core/ecs"
	coresys "github.com/l1jgo/gridsim/internal/core/system"
	"go.uber.org/zap"
)

// CleanupSystem flushes the deferred destroy queue at tick end. With the incremental
// strategy the tracker is a registered store, so this is also where destroyed
// entities leave their buckets.
// Phase 5 (Cleanup).
type CleanupSystem struct {
	world     *ecs.World
	log       *zap.Logger
	destroyed int
}

func NewCleanupSystem(world *ecs.World, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{world: world, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	if s.world.Pending() == 0 {
		return
	}
	n := s.world.FlushDestroyQueue()
	s.destroyed += n
	s.log.Debug("destroyed entities", zap.Int("count", n), zap.Int("live", s.world.Pool().Live()))
}

// Destroyed is the running total of destroyed entities.
func (s *CleanupSystem) Destroyed() int { return s.destroyed }
