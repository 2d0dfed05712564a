package main

import (
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/nicoplay/nicoplay/internal/danmaku"
)

// cellWidth is the pixel width assigned to one terminal column.
const cellWidth = 10.0

// terminalSurface prints comments as they are mounted instead of drawing them.
type terminalSurface struct {
	mu      sync.Mutex
	out     io.Writer
	columns int
	lanes   int
}

func newTerminalSurface(out io.Writer, columns, lanes int) *terminalSurface {
	if columns < 1 {
		columns = 80
	}
	if lanes < 1 {
		lanes = 10
	}
	return &terminalSurface{out: out, columns: columns, lanes: lanes}
}

func (s *terminalSurface) Bounds() (width, height float64) {
	return float64(s.columns) * cellWidth, float64(s.lanes) * danmaku.DefaultLaneHeight
}

func (s *terminalSurface) MeasureWidth(c danmaku.Comment) float64 {
	return float64(utf8.RuneCountInString(c.Text)) * cellWidth
}

func (s *terminalSurface) Mount(inst *danmaku.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "[%s] %-6s lane %-2d %s %s\n",
		formatVpos(inst.Comment.Vpos), inst.Comment.DisplayMode, inst.Lane, inst.Comment.Color, inst.Comment.Text)
}

func (s *terminalSurface) Unmount(*danmaku.Instance) {}

func formatVpos(vpos float64) string {
	tenths := int(vpos*10 + 0.5)
	return fmt.Sprintf("%02d:%02d.%d", tenths/600, (tenths/10)%60, tenths%10)
}
