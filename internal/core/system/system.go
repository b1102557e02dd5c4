package system

import "time"

// Phase orders systems inside one tick. The grid is written in PhasePostUpdate and only
// read from PhaseOutput on, so every consumer sees the finished state of the tick.
type Phase int

const (
	PhasePreUpdate  Phase = iota // 0: spawn top-up, dispatch last tick's events
	PhaseUpdate                  // 1: motion
	PhasePostUpdate              // 2: spatial grid rebuild / incremental update
	PhaseOutput                  // 3: occupancy frames to observers and logs
	PhasePersist                 // 4: tick stats flush
	PhaseCleanup                 // 5: destroy queued entities, evict from the grid
)

var phaseNames = [...]string{"pre_update", "update", "post_update", "output", "persist", "cleanup"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// System is implemented by every per-tick system.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
