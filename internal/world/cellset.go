package world

import "github.com/talgya/crowdforce/internal/geom"

// CellSet is a set of cells with deterministic iteration and O(1) random
// access. Removal swaps the last element into the hole, so the order after
// removals is a pure function of the operation sequence.
type CellSet struct {
	items []geom.Point
	index map[geom.Point]int
}

// NewCellSet creates an empty set with room for n cells.
func NewCellSet(n int) *CellSet {
	return &CellSet{
		items: make([]geom.Point, 0, n),
		index: make(map[geom.Point]int, n),
	}
}

// Add inserts p if absent.
func (s *CellSet) Add(p geom.Point) {
	if _, ok := s.index[p]; ok {
		return
	}
	s.index[p] = len(s.items)
	s.items = append(s.items, p)
}

// Remove deletes p if present.
func (s *CellSet) Remove(p geom.Point) {
	i, ok := s.index[p]
	if !ok {
		return
	}
	last := len(s.items) - 1
	if i != last {
		moved := s.items[last]
		s.items[i] = moved
		s.index[moved] = i
	}
	s.items = s.items[:last]
	delete(s.index, p)
}

// Contains reports membership.
func (s *CellSet) Contains(p geom.Point) bool {
	_, ok := s.index[p]
	return ok
}

// Len returns the number of cells.
func (s *CellSet) Len() int { return len(s.items) }

// At returns the i-th cell in iteration order.
func (s *CellSet) At(i int) geom.Point { return s.items[i] }

// Items returns the backing slice. Do not modify it.
func (s *CellSet) Items() []geom.Point { return s.items }
