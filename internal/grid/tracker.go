package grid

import (
	"errors"

	"github.com/l1jgo/gridsim/internal/core/ecs"
	"go.uber.org/zap"
)

// Membership is the incremental strategy's per-entity state: the bucket the entity
// was last placed in, or unplaced. The zero value is unplaced.
type Membership struct {
	cell   CellIndex
	placed bool
}

// Placed returns a Membership for bucket idx.
func Placed(idx CellIndex) Membership { return Membership{cell: idx, placed: true} }

// Cell returns the bucket and whether the entity is placed at all.
func (m Membership) Cell() (CellIndex, bool) { return m.cell, m.placed }

func (m Membership) IsPlaced() bool { return m.placed }

// Move describes what one Tracker.Update did.
type Move struct {
	ID      ecs.EntityID
	From    Membership
	To      Membership
	Changed bool // bucket membership changed
	Stale   bool // From claimed a bucket that did not hold the id
}

// Tracker runs the incremental strategy: it keeps a Membership per tracked entity and
// only touches the grid when an entity's computed cell differs from its stored one.
//
// Tracker is an ecs.Removable. Registered with the world's registry, destroying an
// entity evicts it from its bucket in the same cleanup pass.
type Tracker struct {
	grid    *Grid
	members *ecs.PtrComponentStore[Membership]
	log     *zap.Logger
	stale   int
}

func NewTracker(g *Grid, log *zap.Logger) *Tracker {
	return &Tracker{
		grid:    g,
		members: ecs.NewPtrComponentStore[Membership](),
		log:     log,
	}
}

func (t *Tracker) Grid() *Grid { return t.grid }

// Track starts tracking id as unplaced. Tracking an already tracked id is a no-op.
func (t *Tracker) Track(id ecs.EntityID) {
	if !t.members.Has(id) {
		t.members.Set(id, &Membership{})
	}
}

// Tracked reports whether id has a Membership.
func (t *Tracker) Tracked(id ecs.EntityID) bool { return t.members.Has(id) }

// Membership returns the stored state for id.
func (t *Tracker) Membership(id ecs.EntityID) (Membership, bool) {
	m, ok := t.members.Get(id)
	if !ok {
		return Membership{}, false
	}
	return *m, true
}

// Len is the number of tracked entities.
func (t *Tracker) Len() int { return t.members.Len() }

// StaleRemovals counts removals that missed since the tracker was created.
func (t *Tracker) StaleRemovals() int { return t.stale }

// Update moves id to the bucket for (x, y) if that differs from its stored bucket.
// An untracked id is tracked first. Leaving the grid removes id from its old bucket
// and makes it unplaced. A remove that misses is logged and the update still completes.
func (t *Tracker) Update(id ecs.EntityID, x, y float64) Move {
	m, ok := t.members.Get(id)
	if !ok {
		m = &Membership{}
		t.members.Set(id, m)
	}

	var next Membership
	if idx, in := t.grid.CellIndexFor(x, y); in {
		next = Placed(idx)
	}
	mv := Move{ID: id, From: *m, To: next}
	if *m == next {
		return mv
	}
	mv.Changed = true

	if m.placed {
		if err := t.grid.Remove(id, m.cell); err != nil {
			mv.Stale = t.miss(id, m.cell, err)
		}
	}
	if next.placed {
		if err := t.grid.insertAt(id, next.cell); err != nil {
			// strict grid already holds id somewhere else; keep state in step with the grid
			t.log.Warn("tracked entity already bucketed",
				zap.Stringer("entity", id),
				zap.Int("cell", int(next.cell)),
				zap.Error(err))
			next = Membership{}
			mv.To = next
		}
	}
	*m = next
	return mv
}

// Evict removes id from its bucket and marks it unplaced, keeping it tracked.
func (t *Tracker) Evict(id ecs.EntityID) bool {
	m, ok := t.members.Get(id)
	if !ok || !m.placed {
		return false
	}
	if err := t.grid.Remove(id, m.cell); err != nil {
		t.miss(id, m.cell, err)
	}
	*m = Membership{}
	return true
}

// Remove evicts id and forgets it. Called by the ecs registry on destroy.
func (t *Tracker) Remove(id ecs.EntityID) {
	t.Evict(id)
	t.members.Remove(id)
}

// Reset unplaces every tracked entity without touching the grid. Pair it with
// Grid.Clear; the next Update of each entity then only inserts.
func (t *Tracker) Reset() {
	t.members.Each(func(_ ecs.EntityID, m *Membership) {
		*m = Membership{}
	})
}

func (t *Tracker) miss(id ecs.EntityID, cell CellIndex, err error) bool {
	if !errors.Is(err, ErrNotFound) {
		t.log.Error("bucket remove failed",
			zap.Stringer("entity", id),
			zap.Int("cell", int(cell)),
			zap.Error(err))
		return false
	}
	t.stale++
	t.log.Warn("stale membership, entity missing from its bucket",
		zap.Stringer("entity", id),
		zap.Int("cell", int(cell)))
	return true
}
