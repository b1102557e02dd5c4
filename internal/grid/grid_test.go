package grid

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/l1jgo/gridsim/internal/core/ecs"
)

func mustGrid(t *testing.T, extent, cellSize float64, opts ...Option) *Grid {
	t.Helper()
	g, err := New(extent, cellSize, opts...)
	if err != nil {
		t.Fatalf("New(%v, %v): %v", extent, cellSize, err)
	}
	return g
}

func TestNew_Dimensions(t *testing.T) {
	g := mustGrid(t, 100, 25)
	if g.Columns() != 4 || g.Rows() != 4 || g.TotalCells() != 16 {
		t.Fatalf("got %dx%d (%d cells), want 4x4 (16)", g.Columns(), g.Rows(), g.TotalCells())
	}
	if g.Strict() {
		t.Errorf("Strict() = true without WithStrictInsert")
	}

	g = mustGrid(t, 300, 7)
	if g.Columns() != 43 {
		t.Errorf("ceil(300/7) columns = %d, want 43", g.Columns())
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cases := []struct {
		name             string
		extent, cellSize float64
	}{
		{"zero extent", 0, 1},
		{"negative extent", -10, 1},
		{"zero cell", 100, 0},
		{"negative cell", 100, -5},
		{"nan extent", math.NaN(), 1},
		{"inf cell", 100, math.Inf(1)},
		{"too many cells", 1e9, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.extent, tc.cellSize); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("New(%v, %v) err = %v, want ErrInvalidConfig", tc.extent, tc.cellSize, err)
			}
		})
	}
}

func TestCellIndexFor_MatchesRowMajorFormula(t *testing.T) {
	g := mustGrid(t, 300, 7.5)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		x, y := rng.Float64()*300, rng.Float64()*300
		idx, ok := g.CellIndexFor(x, y)
		if !ok {
			t.Fatalf("(%v, %v) reported out of range", x, y)
		}
		want := int(math.Floor(x/7.5)) + int(math.Floor(y/7.5))*g.Columns()
		if int(idx) != want {
			t.Fatalf("CellIndexFor(%v, %v) = %d, want %d", x, y, idx, want)
		}
		if int(idx) >= g.TotalCells() {
			t.Fatalf("index %d >= total cells %d", idx, g.TotalCells())
		}
	}
}

func TestCellIndexFor_OutOfRange(t *testing.T) {
	g := mustGrid(t, 100, 25)
	cases := [][2]float64{
		{-0.001, 10},
		{10, -0.001},
		{100, 50},
		{50, 100},
		{100, 100},
		{1e9, 0},
		{math.NaN(), 10},
		{10, math.Inf(-1)},
		{math.Nextafter(-0, -1), 0},
	}
	for _, p := range cases {
		if idx, ok := g.CellIndexFor(p[0], p[1]); ok {
			t.Errorf("CellIndexFor(%v, %v) = %d, want out of range", p[0], p[1], idx)
		}
	}
	if _, ok := g.CellIndexFor(math.Nextafter(100, 0), math.Nextafter(100, 0)); !ok {
		t.Errorf("largest position below extent should be indexed")
	}
}

func TestCellIndexFor_ExtentNotMultipleOfCell(t *testing.T) {
	// 4 columns cover [0, 100) but the region stops at 90
	g := mustGrid(t, 90, 25)
	if g.Columns() != 4 {
		t.Fatalf("Columns() = %d, want 4", g.Columns())
	}
	if _, ok := g.CellIndexFor(95, 10); ok {
		t.Errorf("x=95 is beyond the extent and must not be indexed")
	}
	if idx, ok := g.CellIndexFor(89, 89); !ok || idx != 15 {
		t.Errorf("CellIndexFor(89, 89) = %d, %v, want 15, true", idx, ok)
	}
}

func TestInsertExample(t *testing.T) {
	g := mustGrid(t, 100, 25)
	id := ecs.NewEntityID(1, 0)
	if err := g.Insert(id, 0, 99); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if c := g.CellAt(12); c != (Cell{Col: 0, Row: 3}) {
		t.Errorf("CellAt(12) = %+v, want {0 3}", c)
	}
	for i := 0; i < g.TotalCells(); i++ {
		want := 0
		if i == 12 {
			want = 1
		}
		if got := g.BucketLen(CellIndex(i)); got != want {
			t.Errorf("bucket %d len = %d, want %d", i, got, want)
		}
	}
}

func TestInsert_OutOfRangeIsSilent(t *testing.T) {
	g := mustGrid(t, 100, 25)
	if err := g.Insert(ecs.NewEntityID(1, 0), 100, 50); err != nil {
		t.Fatalf("Insert out of range returned %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("Len() = %d, want 0", g.Len())
	}
}

func TestInsert_DuplicateToleratedByDefault(t *testing.T) {
	g := mustGrid(t, 100, 25)
	id := ecs.NewEntityID(1, 0)
	_ = g.Insert(id, 10, 10)
	_ = g.Insert(id, 10, 10)
	if got := g.BucketLen(0); got != 2 {
		t.Errorf("BucketLen(0) = %d, want 2 duplicate entries", got)
	}
}

func TestInsert_StrictRejectsDuplicate(t *testing.T) {
	g := mustGrid(t, 100, 25, WithStrictInsert())
	if !g.Strict() {
		t.Fatalf("Strict() = false")
	}
	id := ecs.NewEntityID(1, 0)
	if err := g.Insert(id, 10, 10); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	if err := g.Insert(id, 60, 60); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second Insert err = %v, want ErrDuplicate", err)
	}
	if err := g.Remove(id, 0); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := g.Insert(id, 60, 60); err != nil {
		t.Fatalf("Insert after Remove: %v", err)
	}
	g.Clear()
	if err := g.Insert(id, 60, 60); err != nil {
		t.Fatalf("Insert after Clear: %v", err)
	}
}

func TestRemove(t *testing.T) {
	g := mustGrid(t, 100, 25)
	a, b, c := ecs.NewEntityID(1, 0), ecs.NewEntityID(2, 0), ecs.NewEntityID(3, 0)
	for _, id := range []ecs.EntityID{a, b, c} {
		_ = g.Insert(id, 5, 5)
	}
	if err := g.Remove(a, 0); err != nil {
		t.Fatalf("Remove(a): %v", err)
	}
	got := g.Bucket(0)
	if len(got) != 2 {
		t.Fatalf("bucket after remove = %v", got)
	}
	for _, id := range got {
		if id == a {
			t.Fatalf("a still in bucket: %v", got)
		}
	}
	if err := g.Remove(a, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove err = %v, want ErrNotFound", err)
	}
	if err := g.Remove(b, 16); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Remove with bad cell err = %v, want ErrOutOfRange", err)
	}
	if err := g.Remove(b, -1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Remove with negative cell err = %v, want ErrOutOfRange", err)
	}
	if g.Len() != 2 {
		t.Errorf("Len() = %d, want 2", g.Len())
	}
}

func TestBucket_ReturnsCopy(t *testing.T) {
	g := mustGrid(t, 100, 25)
	_ = g.Insert(ecs.NewEntityID(1, 0), 5, 5)
	b := g.Bucket(0)
	b[0] = ecs.NewEntityID(99, 0)
	if g.Bucket(0)[0] != ecs.NewEntityID(1, 0) {
		t.Errorf("mutating the returned bucket changed the grid")
	}
	if g.Bucket(42) != nil || g.BucketLen(42) != 0 {
		t.Errorf("invalid index should read as empty")
	}
}

func TestClear(t *testing.T) {
	g := mustGrid(t, 100, 25)
	for i := 0; i < 10; i++ {
		_ = g.Insert(ecs.NewEntityID(uint32(i), 0), float64(i*10), float64(i*10))
	}
	g.Clear()
	if g.Len() != 0 {
		t.Fatalf("Len() = %d after Clear", g.Len())
	}
	for _, c := range g.Counts(nil) {
		if c != 0 {
			t.Fatalf("non-empty bucket after Clear: %v", g.Counts(nil))
		}
	}
}

func TestIndexOf(t *testing.T) {
	g := mustGrid(t, 100, 25)
	if idx, ok := g.IndexOf(Cell{Col: 3, Row: 3}); !ok || idx != 15 {
		t.Errorf("IndexOf({3 3}) = %d, %v, want 15, true", idx, ok)
	}
	if _, ok := g.IndexOf(Cell{Col: 4, Row: 0}); ok {
		t.Errorf("IndexOf({4 0}) should be out of range")
	}
	for i := 0; i < g.TotalCells(); i++ {
		if idx, _ := g.IndexOf(g.CellAt(CellIndex(i))); int(idx) != i {
			t.Fatalf("IndexOf(CellAt(%d)) = %d", i, idx)
		}
	}
}
