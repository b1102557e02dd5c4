package grid

import (
	"errors"

	"github.com/l1jgo/gridsim/internal/core/ecs"
)

// Entry is one entity's position in a rebuild snapshot.
type Entry struct {
	ID ecs.EntityID
	X  float64
	Y  float64
}

// Rebuild clears g and inserts every entry, so afterwards the buckets hold exactly the
// in-range part of entries and nothing from earlier ticks. It returns how many entries
// landed in a bucket. The error is only ever set on a strict grid and joins the
// duplicate failures; every other entry is still indexed.
func Rebuild(g *Grid, entries []Entry) (int, error) {
	g.Clear()
	var errs []error
	for _, e := range entries {
		if err := g.Insert(e.ID, e.X, e.Y); err != nil {
			errs = append(errs, err)
		}
	}
	indexed := g.Len()
	return indexed, errors.Join(errs...)
}
