package ecs

// EachSorted2 visits, in ascending id order, every entity that has both A and B.
// ids is scratch space and is returned so callers can keep reusing it across ticks.
func EachSorted2[A, B any](sa *PtrComponentStore[A], sb *PtrComponentStore[B], ids []EntityID, fn func(EntityID, *A, *B)) []EntityID {
	small := sa.SortedIDs(ids)
	for _, id := range small {
		if b, ok := sb.data[id]; ok {
			fn(id, sa.data[id], b)
		}
	}
	return small
}
