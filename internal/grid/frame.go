package grid

import (
	"encoding/binary"
	"encoding/hex"
	"slices"

	"github.com/l1jgo/gridsim/internal/core/ecs"
	"golang.org/x/crypto/blake2b"
)

// Opacity maps a bucket population to a display intensity in [0, 1]:
// clamp((count+1)/10, 0, 1). An empty cell is faintly visible, ten or more is opaque.
func Opacity(count int) float64 {
	a := float64(count+1) / 10
	if a < 0 {
		return 0
	}
	if a > 1 {
		return 1
	}
	return a
}

// Frame is an immutable snapshot of grid occupancy after one tick's update pass.
// Safe to hand to other goroutines.
type Frame struct {
	Tick     uint64    `json:"tick"`
	Mode     string    `json:"mode"`
	Columns  int       `json:"columns"`
	Rows     int       `json:"rows"`
	CellSize float64   `json:"cell_size"`
	Counts   []int     `json:"counts"`
	Opacity  []float64 `json:"opacity"`
	Tracked  int       `json:"tracked"`
	Indexed  int       `json:"indexed"`
	Dropped  int       `json:"dropped"`
	Moved    int       `json:"moved"`
	Stale    int       `json:"stale"`
	UpdateUS int64     `json:"update_us"` // grid update pass, microseconds
	MaxCount int       `json:"max_count"`
	Digest   string    `json:"digest"`
}

// Snapshot builds a Frame from the current bucket contents. Tick, mode and the
// per-tick counters are filled in by the caller.
func Snapshot(g *Grid) Frame {
	f := Frame{
		Columns:  g.columns,
		Rows:     g.rows,
		CellSize: g.cellSize,
		Counts:   g.Counts(nil),
		Indexed:  g.entries,
		Digest:   Digest(g),
	}
	f.Opacity = make([]float64, len(f.Counts))
	for i, c := range f.Counts {
		f.Opacity[i] = Opacity(c)
		if c > f.MaxCount {
			f.MaxCount = c
		}
	}
	return f
}

// Digest is a blake2b-256 hash of bucket membership. Ids are sorted inside each bucket
// first, so two grids holding the same ids in the same cells hash equal no matter which
// strategy filled them or in what order.
func Digest(g *Grid) string {
	h, _ := blake2b.New256(nil)
	var (
		tmp [8]byte
		ids []ecs.EntityID
	)
	binary.LittleEndian.PutUint64(tmp[:], uint64(g.columns))
	h.Write(tmp[:])
	for i, b := range g.buckets {
		if len(b) == 0 {
			continue
		}
		ids = append(ids[:0], b...)
		slices.Sort(ids)
		binary.LittleEndian.PutUint64(tmp[:], uint64(i))
		h.Write(tmp[:])
		binary.LittleEndian.PutUint64(tmp[:], uint64(len(ids)))
		h.Write(tmp[:])
		for _, id := range ids {
			binary.LittleEndian.PutUint64(tmp[:], uint64(id))
			h.Write(tmp[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
