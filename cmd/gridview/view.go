package main

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/l1jgo/gridsim/internal/grid"
)

// shade maps a cell opacity to a grey level, black for 0 and white for 1.
func shade(opacity float64) tcell.Color {
	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}
	v := int32(opacity*255 + 0.5)
	return tcell.NewRGBColor(v, v, v)
}

// draw renders f as a heatmap, one terminal cell per grid cell, clipped to the
// screen. The bottom line is a status bar.
func draw(screen tcell.Screen, f grid.Frame, name string) {
	screen.Clear()
	w, h := screen.Size()
	rows := min(f.Rows, h-1)
	cols := min(f.Columns, w)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := c + r*f.Columns
			if i >= len(f.Opacity) {
				continue
			}
			screen.SetContent(c, r, '█', nil, tcell.StyleDefault.Foreground(shade(f.Opacity[i])))
		}
	}
	status := fmt.Sprintf(" %s  tick %d  %s  indexed %d  dropped %d  max %d  %dus ",
		name, f.Tick, f.Mode, f.Indexed, f.Dropped, f.MaxCount, f.UpdateUS)
	style := tcell.StyleDefault.Reverse(true)
	for i, r := range []rune(status) {
		if i >= w {
			break
		}
		screen.SetContent(i, h-1, r, nil, style)
	}
	screen.Show()
}
