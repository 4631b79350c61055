package main

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"

	"chronogrid.ai/internal/protocol"
	"chronogrid.ai/internal/sim/catalogs"
	"chronogrid.ai/internal/sim/engine"
)

const (
	cellW   = 3
	originX = 2
	originY = 3
)

var (
	styleText    = tcell.StyleDefault
	styleDim     = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleTitle   = tcell.StyleDefault.Foreground(tcell.ColorAqua).Bold(true)
	styleWarn    = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleWin     = tcell.StyleDefault.Foreground(tcell.ColorGold).Bold(true)
	styleReverse = tcell.StyleDefault.Foreground(tcell.ColorFuchsia).Bold(true)

	cellGlyphs = []rune{'·', '░', '▒', '▓', '█'}
	cellColors = []tcell.Color{tcell.ColorGray, tcell.ColorTeal, tcell.ColorGreen, tcell.ColorYellow, tcell.ColorOrangeRed}
)

// ui is the terminal collaborator: it turns keys into commands and draws
// the latest Frame. It never touches the engine directly.
type ui struct {
	screen tcell.Screen
	cat    *catalogs.Catalog

	frame    engine.Frame
	cx, cy   int
	selected int
}

func newUI(screen tcell.Screen, cat *catalogs.Catalog) *ui {
	return &ui{screen: screen, cat: cat}
}

// handleKey maps a key to an engine command. quit reports Esc/q/Ctrl-C.
func (u *ui) handleKey(ev *tcell.EventKey) (cmds []protocol.Command, quit bool) {
	s := u.frame.Session
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return nil, true
	case tcell.KeyUp:
		u.move(0, -1)
	case tcell.KeyDown:
		u.move(0, 1)
	case tcell.KeyLeft:
		u.move(-1, 0)
	case tcell.KeyRight:
		u.move(1, 0)
	case tcell.KeyEnter:
		if s.Status == engine.StatusIdle {
			return []protocol.Command{protocol.Start(u.cat.Levels[u.selected].ID)}, false
		}
		return []protocol.Command{protocol.Interact(u.cx, u.cy)}, false
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return nil, true
		case 'k':
			u.move(0, -1)
		case 'j':
			u.move(0, 1)
		case 'h':
			u.move(-1, 0)
		case 'l':
			u.move(1, 0)
		case ' ':
			if s.Status == engine.StatusIdle {
				return []protocol.Command{protocol.Start(u.cat.Levels[u.selected].ID)}, false
			}
			return []protocol.Command{protocol.Interact(u.cx, u.cy)}, false
		case 'p':
			if s.IsPaused() {
				return []protocol.Command{protocol.Simple(protocol.TypeResume)}, false
			}
			return []protocol.Command{protocol.Simple(protocol.TypePause)}, false
		case '[':
			return []protocol.Command{protocol.Simple(protocol.TypeReverse)}, false
		case ']':
			return []protocol.Command{protocol.Simple(protocol.TypeForward)}, false
		case '0':
			return []protocol.Command{protocol.Seek(0)}, false
		case '$':
			return []protocol.Command{protocol.Seek(u.frame.Len)}, false
		case 'r':
			return []protocol.Command{protocol.Simple(protocol.TypeReset)}, false
		case 'x':
			return []protocol.Command{protocol.Simple(protocol.TypeLeave)}, false
		case 'n':
			return []protocol.Command{protocol.Start(u.cat.Next(u.currentLevel()))}, false
		case 'N':
			return []protocol.Command{protocol.Start(u.cat.Prev(u.currentLevel()))}, false
		}
	}
	return nil, false
}

func (u *ui) currentLevel() string {
	if id := u.frame.Session.LevelID; id != "" {
		return id
	}
	return u.cat.Levels[u.selected].ID
}

// move steps the grid selector while playing, or the level list while idle.
func (u *ui) move(dx, dy int) {
	if u.frame.Session.Status == engine.StatusIdle {
		n := len(u.cat.Levels)
		u.selected = ((u.selected+dy+dx)%n + n) % n
		return
	}
	g := u.frame.Grid
	u.cx = clampInt(u.cx+dx, 0, g.W-1)
	u.cy = clampInt(u.cy+dy, 0, g.H-1)
}

func (u *ui) setFrame(f engine.Frame) {
	u.frame = f
	if g := f.Grid; g.W > 0 {
		u.cx = clampInt(u.cx, 0, g.W-1)
		u.cy = clampInt(u.cy, 0, g.H-1)
	}
}

func (u *ui) draw() {
	u.screen.Clear()
	f := u.frame
	puts(u.screen, 0, 0, styleTitle, "chronogrid")
	puts(u.screen, 12, 0, styleDim, fmt.Sprintf("score %d", f.Score))

	if f.Session.Status == engine.StatusIdle {
		u.drawLevels()
	} else {
		u.drawSession()
	}
	u.screen.Show()
}

func (u *ui) drawLevels() {
	puts(u.screen, 0, 2, styleText, "select a level (up/down, enter)")
	for i, ls := range u.frame.Levels {
		st := styleText
		marker := "  "
		if i == u.selected {
			st = st.Reverse(true)
			marker = "> "
		}
		line := fmt.Sprintf("%s%-4s %-16s %s", marker, ls.Def.ID, ls.Def.Name, starString(ls.Progress.Stars))
		puts(u.screen, 0, originY+i, st, line)
	}
	puts(u.screen, 0, originY+len(u.frame.Levels)+1, styleDim, "q quit")
}

func (u *ui) drawSession() {
	f := u.frame
	s := f.Session
	puts(u.screen, 0, 1, styleText, fmt.Sprintf("%s %s  [%s]  moves %d", f.Level.ID, f.Level.Name, s.Status, s.Moves))
	puts(u.screen, 0, 2, styleDim, "goal: "+f.Level.Goal.Describe())

	g := f.Grid
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			v := int(g.Cells[y*g.W+x])
			idx := clampInt(v, 0, len(cellGlyphs)-1)
			st := tcell.StyleDefault.Foreground(cellColors[idx])
			if x == u.cx && y == u.cy {
				st = st.Reverse(true)
			}
			sx := originX + x*cellW
			sy := originY + y
			u.screen.SetContent(sx, sy, ' ', nil, st)
			u.screen.SetContent(sx+1, sy, cellGlyphs[idx], nil, st)
			u.screen.SetContent(sx+2, sy, ' ', nil, st)
		}
	}

	row := originY + g.H + 1
	puts(u.screen, 0, row, styleText, timelineBar(f.Cursor, f.Len, 40))
	if s.Reversing {
		puts(u.screen, 44, row, styleReverse, "<< rewinding")
	}
	puts(u.screen, 0, row+1, styleDim, fmt.Sprintf("t=%d/%d  pending=%d", f.Cursor, f.Len, f.Pending))

	switch {
	case s.Status == engine.StatusCompleted:
		puts(u.screen, 0, row+3, styleWin, fmt.Sprintf("level complete %s  n: next  r: retry", starString(u.progressStars(f.Level.ID))))
	case f.LastCode != "" && f.LastCode != protocol.ErrNoOp:
		puts(u.screen, 0, row+3, styleWarn, fmt.Sprintf("%s: %s", f.LastCmd, f.LastCode))
	}
	puts(u.screen, 0, row+5, styleDim, "hjkl/arrows move  space bump  [ ] time  p pause  r reset  n/N level  x leave  q quit")
}

func (u *ui) progressStars(id string) int {
	for _, ls := range u.frame.Levels {
		if ls.Def.ID == id {
			return ls.Progress.Stars
		}
	}
	return 0
}

// timelineBar draws the log as a bar of width w with the applied prefix filled.
func timelineBar(cursor, length, w int) string {
	if length == 0 {
		return "[" + strings.Repeat("-", w) + "]"
	}
	filled := cursor * w / length
	return "[" + strings.Repeat("=", filled) + strings.Repeat("-", w-filled) + "]"
}

func starString(n int) string {
	n = clampInt(n, 0, 3)
	return strings.Repeat("★", n) + strings.Repeat("☆", 3-n)
}

func puts(s tcell.Screen, x, y int, st tcell.Style, text string) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, st)
		x++
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
