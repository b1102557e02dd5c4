package grid

import (
	"math"

	"github.com/l1jgo/gridsim/internal/core/ecs"
)

// Nearby appends to dst every id whose bucket overlaps the square of half-width radius
// centred on (x, y). Results are cell-granular; the caller does exact distance filtering.
func (g *Grid) Nearby(x, y, radius float64, dst []ecs.EntityID) []ecs.EntityID {
	if radius < 0 {
		radius = 0
	}
	minX, maxX := x-radius, x+radius
	minY, maxY := y-radius, y+radius
	if !(maxX >= 0 && minX < g.extent) || !(maxY >= 0 && minY < g.extent) {
		return dst
	}
	c0, c1 := g.span(minX, maxX, g.columns)
	r0, r1 := g.span(minY, maxY, g.rows)
	for row := r0; row <= r1; row++ {
		base := row * g.columns
		for col := c0; col <= c1; col++ {
			dst = append(dst, g.buckets[base+col]...)
		}
	}
	return dst
}

// Neighbors appends the ids in the 3x3 block of cells around idx, clipped at the edges.
func (g *Grid) Neighbors(idx CellIndex, dst []ecs.EntityID) []ecs.EntityID {
	if !g.valid(idx) {
		return dst
	}
	c := g.CellAt(idx)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if n, ok := g.IndexOf(Cell{Col: c.Col + dx, Row: c.Row + dy}); ok {
				dst = append(dst, g.buckets[n]...)
			}
		}
	}
	return dst
}

func (g *Grid) span(lo, hi float64, n int) (int, int) {
	return clampCell(math.Floor(lo/g.cellSize), n), clampCell(math.Floor(hi/g.cellSize), n)
}

func clampCell(v float64, n int) int {
	if v < 0 {
		return 0
	}
	if v >= float64(n) {
		return n - 1
	}
	return int(v)
}
