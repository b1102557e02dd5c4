package ecs

import "sort"

// Removable is implemented by everything that holds per-entity state, so the Registry
// can drop an entity from all of them when it is destroyed. The spatial tracker is a
// Removable too: removing an id from it evicts the id from its grid bucket.
type Removable interface {
	Remove(id EntityID)
}

// PtrComponentStore is a typed map store for one component kind.
type PtrComponentStore[T any] struct {
	data map[EntityID]*T
}

func NewPtrComponentStore[T any]() *PtrComponentStore[T] {
	return &PtrComponentStore[T]{
		data: make(map[EntityID]*T, 256),
	}
}

func (s *PtrComponentStore[T]) Set(id EntityID, c *T) {
	s.data[id] = c
}

func (s *PtrComponentStore[T]) Get(id EntityID) (*T, bool) {
	c, ok := s.data[id]
	return c, ok
}

func (s *PtrComponentStore[T]) Remove(id EntityID) {
	delete(s.data, id)
}

func (s *PtrComponentStore[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *PtrComponentStore[T]) Len() int {
	return len(s.data)
}

// Each visits components in map order.
func (s *PtrComponentStore[T]) Each(fn func(EntityID, *T)) {
	for id, c := range s.data {
		fn(id, c)
	}
}

// SortedIDs appends every id in ascending order to dst[:0]. Used where a tick must
// be reproducible (seeded motion, snapshot building).
func (s *PtrComponentStore[T]) SortedIDs(dst []EntityID) []EntityID {
	dst = dst[:0]
	for id := range s.data {
		dst = append(dst, id)
	}
	sort.Slice(dst, func(i, j int) bool { return dst[i] < dst[j] })
	return dst
}
