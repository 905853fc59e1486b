package grid

import (
	"image"
	"testing"
)

func TestGridCounts(t *testing.T) {
	tests := []struct {
		name       string
		w, h, size int
		cols, rows int
	}{
		{"exact", 4096, 4096, 1024, 4, 4},
		{"remainder", 1000, 700, 256, 4, 3},
		{"smaller than tile", 100, 50, 512, 1, 1},
		{"empty", 0, 0, 64, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(tt.w, tt.h, tt.size)
			if err != nil {
				t.Fatal(err)
			}
			if g.Cols() != tt.cols || g.Rows() != tt.rows {
				t.Fatalf("got %dx%d, want %dx%d", g.Cols(), g.Rows(), tt.cols, tt.rows)
			}
		})
	}
}

func TestGridCellClipsTrailingEdge(t *testing.T) {
	g, _ := New(1000, 700, 256)

	if got, want := g.Cell(0, 0), image.Rect(0, 0, 256, 256); got != want {
		t.Errorf("Cell(0,0) = %v, want %v", got, want)
	}
	if got, want := g.Cell(3, 2), image.Rect(768, 512, 1000, 700); got != want {
		t.Errorf("Cell(3,2) = %v, want %v", got, want)
	}
	if !g.Cell(4, 0).Empty() {
		t.Error("Cell beyond the last column must be empty")
	}
	if g.IsFull(3, 0) {
		t.Error("trailing column is not a full tile")
	}
	if !g.IsFull(2, 1) {
		t.Error("interior cell should be full")
	}
}

func TestNewRejectsBadTileSize(t *testing.T) {
	if _, err := New(10, 10, 0); err == nil {
		t.Fatal("expected error for zero tile size")
	}
}

func TestShared(t *testing.T) {
	full, _ := New(10*64, 7*64, 64)
	maskGrid, _ := New(9*8, 7*8, 8)

	bound, agree := Shared(full, maskGrid)
	if agree {
		t.Fatal("grids should disagree")
	}
	if bound.Cols != 9 || bound.Rows != 7 {
		t.Fatalf("bound = %+v, want 9x7", bound)
	}
	if bound.Count() != 63 {
		t.Fatalf("Count = %d, want 63", bound.Count())
	}

	if _, agree := Shared(full, full); !agree {
		t.Fatal("identical grids should agree")
	}
}
