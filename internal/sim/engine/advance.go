package engine

import (
	"time"

	"chronogrid.ai/internal/sim/cascade"
	"chronogrid.ai/internal/sim/timeline"
)

// Advance moves the clocks forward by dt and fires every cascade task that
// falls due, in (Due, Seq) order. Game time only moves while PLAYING, so a
// paused session keeps its pending tasks frozen. While the cursor is rewound
// due tasks stay queued; they fire once the cursor is back at the head.
func (e *Engine) Advance(dt time.Duration) {
	if dt < 0 {
		dt = 0
	}
	e.realNow += dt
	if e.session != nil && e.session.Reversing && e.realNow >= e.reversingUntil {
		e.session.Reversing = false
	}
	if !e.playing() {
		return
	}
	e.gameNow += dt
	for e.playing() && e.atHead() {
		t, ok := e.queue.PopDue(e.gameNow)
		if !ok {
			break
		}
		e.fire(t)
	}
}

func (e *Engine) atHead() bool {
	return e.tl.Cursor() == e.tl.Len()
}

// pruneOrphans drops tasks whose cause was truncated out of the log.
func (e *Engine) pruneOrphans() {
	n := e.queue.Prune(func(t cascade.Task) bool {
		_, ok := e.tl.Lookup(t.CauseID)
		return ok
	})
	if n > 0 {
		e.logger.Printf("cascade drop tasks=%d reason=cause_truncated", n)
	}
}

// spill schedules one task per in-bounds neighbor of from that is still below
// the threshold. Neighbors are visited left, right, up, down.
func (e *Engine) spill(from timeline.Pos, causeID string, base time.Duration) {
	due := base + e.tune.PropagationDelay()
	for _, n := range cascade.Neighbors(from, e.grid.W, e.grid.H) {
		if e.grid.At(n) >= e.tune.CascadeThreshold {
			continue
		}
		e.queue.Schedule(due, n, from, causeID)
	}
}

// fire turns a due task into a Trigger event. It runs only at the head of
// the log, where every recorded event is applied. A task whose cause is gone
// from the log is dropped; so is one whose target has reached the threshold
// since it was scheduled.
func (e *Engine) fire(t cascade.Task) {
	if !e.tl.AppliedByID(t.CauseID) {
		e.logger.Printf("cascade drop target=%s cause=%s reason=cause_truncated", t.Target, t.CauseID)
		return
	}
	prev := e.grid.At(t.Target)
	if prev >= e.tune.CascadeThreshold {
		return
	}
	next := prev + 1
	ev := e.tl.Append(t.Target, timeline.Trigger{Prev: prev, Next: next, From: t.From, CauseID: t.CauseID})
	e.rebuild()
	e.notifyAppend(ev)
	if next >= e.tune.CascadeThreshold {
		// Chained steps are timed from the parent's due time, not from when
		// Advance happened to observe it.
		e.spill(t.Target, ev.ID, t.Due)
	}
	e.checkWin()
}
