package engine

import (
	"github.com/google/uuid"

	"chronogrid.ai/internal/protocol"
	"chronogrid.ai/internal/sim/cascade"
	"chronogrid.ai/internal/sim/catalogs"
	"chronogrid.ai/internal/sim/grid"
	"chronogrid.ai/internal/sim/timeline"
)

// StartLevel begins a fresh session on the given level.
func (e *Engine) StartLevel(id string) Result {
	def, ok := e.cat.Get(id)
	if !ok {
		return rejected(protocol.ErrLevelNotFound)
	}
	e.begin(def)
	e.logger.Printf("start level=%s session=%s", def.ID, e.session.ID)
	return Result{}
}

// ResetLevel discards the current attempt and restarts the same level.
// Pending cascade tasks die with the old timeline.
func (e *Engine) ResetLevel() Result {
	if !e.active() {
		return rejected(protocol.ErrNotPlaying)
	}
	dropped := e.queue.Len()
	e.begin(e.level)
	e.logger.Printf("reset level=%s session=%s dropped_tasks=%d", e.level.ID, e.session.ID, dropped)
	return Result{}
}

// LeaveLevel returns to IDLE, discarding the session.
func (e *Engine) LeaveLevel() Result {
	if !e.active() {
		return rejected(protocol.ErrNotPlaying)
	}
	e.logger.Printf("leave level=%s session=%s", e.level.ID, e.session.ID)
	e.session = nil
	e.level = catalogs.LevelDef{}
	e.tl = timeline.New()
	e.queue.Clear()
	e.grid = grid.State{}
	e.gameNow = 0
	return Result{}
}

func (e *Engine) begin(def catalogs.LevelDef) {
	w, h := e.dims(def)
	e.level = def
	e.tl = timeline.New()
	e.queue = cascade.NewQueue()
	e.grid = grid.New(w, h)
	e.gameNow = 0
	e.reversingUntil = 0
	e.session = &Session{
		ID:      uuid.NewString(),
		LevelID: def.ID,
		Status:  StatusPlaying,
	}
	e.notifySeek(false)
}

func (e *Engine) Pause() Result {
	if !e.active() || e.session.Status == StatusCompleted {
		return rejected(protocol.ErrNotPlaying)
	}
	if e.session.Status == StatusPaused {
		return rejected(protocol.ErrNoOp)
	}
	e.session.Status = StatusPaused
	return Result{}
}

func (e *Engine) Resume() Result {
	if !e.active() || e.session.Status == StatusCompleted {
		return rejected(protocol.ErrNotPlaying)
	}
	if e.session.Status != StatusPaused {
		return rejected(protocol.ErrNoOp)
	}
	e.session.Status = StatusPlaying
	e.checkWin()
	return Result{}
}

// Interact raises the cell at (x, y) by one and schedules a cascade when it
// crosses the threshold.
func (e *Engine) Interact(x, y int) Result {
	if !e.active() || e.session.Status == StatusCompleted {
		return rejected(protocol.ErrNotPlaying)
	}
	if e.session.Status == StatusPaused {
		return rejected(protocol.ErrPaused)
	}
	pos := timeline.Pos{X: x, Y: y}
	if !e.grid.InBounds(pos) {
		return rejected(protocol.ErrOutOfBounds)
	}
	if e.tune.EnforceStepBudget && e.level.MaxTimeSteps > 0 && e.tl.Cursor() >= e.level.MaxTimeSteps {
		return rejected(protocol.ErrBudget)
	}
	prev := e.grid.At(pos)
	if prev >= e.tune.MaxCellValue {
		return rejected(protocol.ErrSaturated)
	}

	truncating := !e.atHead()
	ev := e.tl.Append(pos, timeline.Interact{Prev: prev, Next: prev + 1})
	e.session.Moves++
	if truncating {
		e.pruneOrphans()
	}
	e.rebuild()
	e.notifyAppend(ev)
	if prev < e.tune.CascadeThreshold && prev+1 >= e.tune.CascadeThreshold {
		e.spill(pos, ev.ID, e.gameNow)
	}
	e.checkWin()
	return Result{Event: &ev}
}

// Reverse steps the cursor back one event and raises the Reversing flag for
// the feedback window.
func (e *Engine) Reverse() Result {
	if !e.active() {
		return rejected(protocol.ErrNotPlaying)
	}
	if !e.tl.Reverse() {
		return rejected(protocol.ErrNoOp)
	}
	e.session.Reversing = true
	e.reversingUntil = e.realNow + e.tune.ReverseFeedback()
	e.afterSeek(true)
	return Result{}
}

func (e *Engine) Forward() Result {
	if !e.active() {
		return rejected(protocol.ErrNotPlaying)
	}
	if !e.tl.Forward() {
		return rejected(protocol.ErrNoOp)
	}
	e.afterSeek(false)
	return Result{}
}

// SetPosition moves the cursor (clamped to [0, Len]).
func (e *Engine) SetPosition(p int) Result {
	if !e.active() {
		return rejected(protocol.ErrNotPlaying)
	}
	before := e.tl.Cursor()
	if e.tl.SetPosition(p) == before {
		return rejected(protocol.ErrNoOp)
	}
	e.afterSeek(false)
	return Result{}
}

func (e *Engine) afterSeek(reversed bool) {
	e.rebuild()
	e.notifySeek(reversed)
	e.checkWin()
}

// Dispatch applies a wire command. ADVANCE is included so scripted runs and
// journals can drive time.
func (e *Engine) Dispatch(cmd protocol.Command) Result {
	switch cmd.Type {
	case protocol.TypeInteract:
		return e.Interact(cmd.X, cmd.Y)
	case protocol.TypePause:
		return e.Pause()
	case protocol.TypeResume:
		return e.Resume()
	case protocol.TypeReverse:
		return e.Reverse()
	case protocol.TypeForward:
		return e.Forward()
	case protocol.TypeSeek:
		return e.SetPosition(cmd.Position)
	case protocol.TypeReset:
		return e.ResetLevel()
	case protocol.TypeStart:
		return e.StartLevel(cmd.LevelID)
	case protocol.TypeLeave:
		return e.LeaveLevel()
	case protocol.TypeAdvance:
		if cmd.Ms < 0 {
			return rejected(protocol.ErrBadRequest)
		}
		e.Advance(cmd.Duration())
		return Result{}
	default:
		return rejected(protocol.ErrBadRequest)
	}
}
