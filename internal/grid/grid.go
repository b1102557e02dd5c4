// Package grid buckets 2D point entities into a uniform grid of square cells.
//
// The grid covers the half-open square [0, extent)². Buckets are laid out row-major,
// index = col + row*columns. A Grid is accessed only from the game loop goroutine and
// takes no locks; other goroutines get immutable Frames.
package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/l1jgo/gridsim/internal/core/ecs"
)

var (
	// ErrInvalidConfig is returned by New for a non-positive or non-finite extent or cell size.
	ErrInvalidConfig = errors.New("grid: invalid config")
	// ErrNotFound means an id was not in the bucket it was expected in.
	ErrNotFound = errors.New("grid: entity not in bucket")
	// ErrDuplicate is returned by Insert in strict mode for an id that is already bucketed.
	ErrDuplicate = errors.New("grid: entity already bucketed")
	// ErrOutOfRange means a cell index outside [0, TotalCells).
	ErrOutOfRange = errors.New("grid: cell index out of range")
)

// maxCells caps the bucket array; a grid this size is already a misconfiguration.
const maxCells = 1 << 26

// CellIndex is a row-major bucket index.
type CellIndex int

// Cell is a (column, row) coordinate.
type Cell struct {
	Col int
	Row int
}

type Grid struct {
	extent     float64
	cellSize   float64
	columns    int
	rows       int
	totalCells int
	buckets    [][]ecs.EntityID
	entries    int

	// strict mode only: id -> bucket it currently sits in
	owner map[ecs.EntityID]CellIndex
}

// Option configures a Grid at construction.
type Option func(*Grid)

// WithStrictInsert makes Insert reject ids that are already bucketed, at the cost of
// a map lookup per Insert/Remove/Clear.
func WithStrictInsert() Option {
	return func(g *Grid) {
		g.owner = make(map[ecs.EntityID]CellIndex)
	}
}

func New(extent, cellSize float64, opts ...Option) (*Grid, error) {
	if !(extent > 0) || math.IsInf(extent, 0) {
		return nil, fmt.Errorf("%w: extent %v must be positive", ErrInvalidConfig, extent)
	}
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return nil, fmt.Errorf("%w: cell size %v must be positive", ErrInvalidConfig, cellSize)
	}
	perAxis := math.Ceil(extent / cellSize)
	if perAxis*perAxis > maxCells {
		return nil, fmt.Errorf("%w: %v cells per axis is too many", ErrInvalidConfig, perAxis)
	}
	columns := int(perAxis)
	g := &Grid{
		extent:     extent,
		cellSize:   cellSize,
		columns:    columns,
		rows:       columns,
		totalCells: columns * columns,
	}
	g.buckets = make([][]ecs.EntityID, g.totalCells)
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Grid) Extent() float64   { return g.extent }
func (g *Grid) CellSize() float64 { return g.cellSize }
func (g *Grid) Columns() int      { return g.columns }
func (g *Grid) Rows() int         { return g.rows }
func (g *Grid) TotalCells() int   { return g.totalCells }
func (g *Grid) Strict() bool      { return g.owner != nil }

// Len is the number of bucket entries across the grid.
func (g *Grid) Len() int { return g.entries }

// Clear empties every bucket but keeps the backing arrays.
func (g *Grid) Clear() {
	for i := range g.buckets {
		g.buckets[i] = g.buckets[i][:0]
	}
	g.entries = 0
	if g.owner != nil {
		clear(g.owner)
	}
}

// CellIndexFor maps a world position to its bucket. It reports false for anything
// outside [0, extent) on either axis, NaN included. Leaving the region is normal
// for a roaming entity and is not an error.
func (g *Grid) CellIndexFor(x, y float64) (CellIndex, bool) {
	if !(x >= 0 && x < g.extent) || !(y >= 0 && y < g.extent) {
		return 0, false
	}
	col := int(math.Floor(x / g.cellSize))
	row := int(math.Floor(y / g.cellSize))
	// x/cellSize can round up to columns for x just below extent
	if col >= g.columns || row >= g.rows {
		return 0, false
	}
	return CellIndex(col + row*g.columns), true
}

// CellAt converts a bucket index to its (column, row).
func (g *Grid) CellAt(idx CellIndex) Cell {
	return Cell{Col: int(idx) % g.columns, Row: int(idx) / g.columns}
}

// IndexOf converts a (column, row) to its bucket index.
func (g *Grid) IndexOf(c Cell) (CellIndex, bool) {
	if c.Col < 0 || c.Col >= g.columns || c.Row < 0 || c.Row >= g.rows {
		return 0, false
	}
	return CellIndex(c.Col + c.Row*g.columns), true
}

func (g *Grid) valid(idx CellIndex) bool {
	return idx >= 0 && int(idx) < g.totalCells
}

// Insert appends id to the bucket for (x, y). Positions outside the grid are dropped
// and return nil. Without strict mode the caller must not insert an id twice without
// removing it first; the duplicate would simply be stored twice.
func (g *Grid) Insert(id ecs.EntityID, x, y float64) error {
	idx, ok := g.CellIndexFor(x, y)
	if !ok {
		return nil
	}
	return g.insertAt(id, idx)
}

func (g *Grid) insertAt(id ecs.EntityID, idx CellIndex) error {
	if g.owner != nil {
		if cur, dup := g.owner[id]; dup {
			return fmt.Errorf("%w: %v in cell %d", ErrDuplicate, id, cur)
		}
		g.owner[id] = idx
	}
	g.buckets[idx] = append(g.buckets[idx], id)
	g.entries++
	return nil
}

// Remove deletes the first occurrence of id from bucket idx. O(k) in the bucket size;
// the last entry is swapped into the hole, so bucket order is not stable.
func (g *Grid) Remove(id ecs.EntityID, idx CellIndex) error {
	if !g.valid(idx) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, idx)
	}
	b := g.buckets[idx]
	for i, e := range b {
		if e != id {
			continue
		}
		last := len(b) - 1
		b[i] = b[last]
		b[last] = 0
		g.buckets[idx] = b[:last]
		g.entries--
		if g.owner != nil {
			delete(g.owner, id)
		}
		return nil
	}
	return fmt.Errorf("%w: %v in cell %d", ErrNotFound, id, idx)
}

// Bucket returns a copy of the ids in bucket idx, or nil for an invalid index.
func (g *Grid) Bucket(idx CellIndex) []ecs.EntityID {
	if !g.valid(idx) || len(g.buckets[idx]) == 0 {
		return nil
	}
	out := make([]ecs.EntityID, len(g.buckets[idx]))
	copy(out, g.buckets[idx])
	return out
}

// BucketLen is the population of bucket idx, 0 for an invalid index.
func (g *Grid) BucketLen(idx CellIndex) int {
	if !g.valid(idx) {
		return 0
	}
	return len(g.buckets[idx])
}

// Counts writes every bucket population into dst, growing it as needed.
func (g *Grid) Counts(dst []int) []int {
	if cap(dst) < g.totalCells {
		dst = make([]int, g.totalCells)
	}
	dst = dst[:g.totalCells]
	for i, b := range g.buckets {
		dst[i] = len(b)
	}
	return dst
}
