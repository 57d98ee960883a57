package main

import (
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/Jdcabreradev/gridclash/client"
	"github.com/Jdcabreradev/gridclash/grid"
)

func TestCellAt(t *testing.T) {
	tests := []struct {
		x, y int
		want grid.Coord
		ok   bool
	}{
		{originX, originY, grid.Coord{Row: 0, Col: 0}, true},
		{originX + cellW*7 + 1, originY + cellH*7 + 1, grid.Coord{Row: 7, Col: 7}, true},
		{originX + cellW, originY, grid.Coord{Row: 0, Col: 1}, true},
		{originX - 1, originY, grid.Coord{}, false},
		{originX, originY + cellH*8, grid.Coord{}, false},
	}
	for _, tt := range tests {
		got, ok := cellAt(tt.x, tt.y)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("cellAt(%d, %d) = %v, %v; want %v, %v", tt.x, tt.y, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCellStyleFadesToward(t *testing.T) {
	bg := func(pc client.PresentedCell) tcell.Color {
		_, b, _ := cellStyle(pc).Decompose()
		return b
	}
	empty := tcell.NewRGBColor(playerRGB[0][0], playerRGB[0][1], playerRGB[0][2])
	full := tcell.NewRGBColor(playerRGB[1][0], playerRGB[1][1], playerRGB[1][2])

	if got := bg(client.PresentedCell{Owner: grid.Empty, Level: 1}); got != empty {
		t.Errorf("empty cell background = %v", got)
	}
	if got := bg(client.PresentedCell{Owner: 1, Level: 0}); got != empty {
		t.Errorf("hidden owner background = %v", got)
	}
	if got := bg(client.PresentedCell{Owner: 1, Level: 1}); got != full {
		t.Errorf("shown owner background = %v", got)
	}
}
