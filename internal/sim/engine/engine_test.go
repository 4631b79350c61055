package engine

import (
	"testing"
	"time"

	"chronogrid.ai/internal/protocol"
	"chronogrid.ai/internal/sim/catalogs"
	"chronogrid.ai/internal/sim/grid"
	"chronogrid.ai/internal/sim/timeline"
	"chronogrid.ai/internal/sim/tuning"
)

func testCatalog(t *testing.T, levels string) *catalogs.Catalog {
	t.Helper()
	c, err := catalogs.Parse([]byte(`{"levels":[` + levels + `]}`))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func newTestEngine(t *testing.T, cat *catalogs.Catalog) *Engine {
	t.Helper()
	if cat == nil {
		var err error
		cat, err = catalogs.Default()
		if err != nil {
			t.Fatalf("default catalog: %v", err)
		}
	}
	e, err := New(Config{Tuning: tuning.Defaults(), Catalog: cat})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func mustOK(t *testing.T, r Result) {
	t.Helper()
	if !r.OK() {
		t.Fatalf("unexpected rejection: %s", r.Code)
	}
}

// fillDistinct performs n interactions on distinct cells of an 8-wide grid,
// so no cell ever reaches the cascade threshold.
func fillDistinct(t *testing.T, e *Engine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		mustOK(t, e.Interact(i%8, i/8))
	}
}

type recordingListener struct {
	appends   []timeline.Event
	reversed  []bool
	completes []int
}

func (l *recordingListener) OnAppend(ev timeline.Event) { l.appends = append(l.appends, ev) }
func (l *recordingListener) OnSeek(_, _ int, reversed bool) {
	l.reversed = append(l.reversed, reversed)
}
func (l *recordingListener) OnComplete(_ string, stars, _ int) {
	l.completes = append(l.completes, stars)
}

func TestCascade_ThresholdSpillsToFourNeighbors(t *testing.T) {
	e := newTestEngine(t, nil)
	mustOK(t, e.StartLevel("L01"))
	for i := 0; i < 3; i++ {
		mustOK(t, e.Interact(3, 3))
	}
	if got := len(e.Pending()); got != 4 {
		t.Fatalf("pending=%d want 4", got)
	}

	e.Advance(199 * time.Millisecond)
	if e.Len() != 3 {
		t.Fatalf("triggers fired early: len=%d", e.Len())
	}
	e.Advance(1 * time.Millisecond)
	if e.Len() != 7 {
		t.Fatalf("len=%d want 7", e.Len())
	}

	want := []timeline.Pos{{X: 2, Y: 3}, {X: 4, Y: 3}, {X: 3, Y: 2}, {X: 3, Y: 4}}
	evs := e.Events()
	cause := evs[2].ID
	for i, pos := range want {
		ev := evs[3+i]
		tr, ok := ev.Payload.(timeline.Trigger)
		if !ok {
			t.Fatalf("event %d kind=%s want TRIGGER", 3+i, ev.Kind())
		}
		if ev.Pos != pos || tr.Prev != 0 || tr.Next != 1 || tr.CauseID != cause || tr.From != (timeline.Pos{X: 3, Y: 3}) {
			t.Fatalf("trigger %d = %+v %+v", i, ev, tr)
		}
	}
	g := e.Grid()
	for _, pos := range want {
		if g.At(pos) != 1 {
			t.Fatalf("cell %s=%d want 1", pos, g.At(pos))
		}
	}

	// Neighbors only reach 1, below the threshold: no second-order spill.
	e.Advance(5 * time.Second)
	if e.Len() != 7 || len(e.Pending()) != 0 {
		t.Fatalf("unexpected second-order cascade: len=%d pending=%d", e.Len(), len(e.Pending()))
	}
}

func TestCascade_SkipsNeighborsAtThresholdAndEdges(t *testing.T) {
	e := newTestEngine(t, nil)
	mustOK(t, e.StartLevel("L01"))
	for i := 0; i < 3; i++ {
		mustOK(t, e.Interact(0, 0))
	}
	if got := len(e.Pending()); got != 2 {
		t.Fatalf("corner should schedule 2 tasks, got %d", got)
	}
	e.Advance(time.Second)

	// (1,0) is 1 now; two more bumps make it spill, but (0,0) already sits
	// at the threshold and is skipped.
	mustOK(t, e.Interact(1, 0))
	mustOK(t, e.Interact(1, 0))
	pending := e.Pending()
	if len(pending) != 2 {
		t.Fatalf("pending=%d want 2", len(pending))
	}
	for _, task := range pending {
		if task.Target == (timeline.Pos{X: 0, Y: 0}) {
			t.Fatalf("saturated neighbor must not be scheduled: %+v", task)
		}
	}
}

func TestCascade_SecondOrderIndependentOfAdvanceGranularity(t *testing.T) {
	script := func(e *Engine) {
		mustOK(t, e.StartLevel("L01"))
		mustOK(t, e.Interact(2, 3))
		mustOK(t, e.Interact(2, 3))
		for i := 0; i < 3; i++ {
			mustOK(t, e.Interact(3, 3))
		}
	}

	a := newTestEngine(t, nil)
	script(a)
	a.Advance(time.Second)

	b := newTestEngine(t, nil)
	script(b)
	for i := 0; i < 100; i++ {
		b.Advance(10 * time.Millisecond)
	}

	if a.Digest() != b.Digest() {
		t.Fatalf("digest differs by advance granularity")
	}
	// (2,3) reached 3 via trigger and spilled into (1,3), (2,2), (2,4).
	if a.Len() != 3+2+4+3 {
		t.Fatalf("len=%d want 12", a.Len())
	}
	last := a.Events()[a.Len()-1]
	tr, ok := last.Payload.(timeline.Trigger)
	if !ok || tr.From != (timeline.Pos{X: 2, Y: 3}) {
		t.Fatalf("last event should be a second-order trigger from (2,3): %+v", last)
	}
}

func TestReplay_Deterministic(t *testing.T) {
	cmds := []protocol.Command{
		protocol.Start("L01"),
		protocol.Interact(1, 1),
		protocol.Interact(1, 1),
		protocol.Interact(1, 1),
		protocol.Advance(120 * time.Millisecond),
		protocol.Interact(6, 6),
		protocol.Advance(100 * time.Millisecond),
		protocol.Simple(protocol.TypeReverse),
		protocol.Simple(protocol.TypeReverse),
		protocol.Simple(protocol.TypeForward),
		protocol.Interact(5, 5),
		protocol.Seek(2),
		protocol.Advance(time.Second),
	}
	run := func() *Engine {
		e := newTestEngine(t, nil)
		for _, c := range cmds {
			e.Dispatch(c)
		}
		return e
	}
	a, b := run(), run()
	if a.Digest() != b.Digest() {
		t.Fatalf("same command sequence produced different state")
	}
	if !a.Grid().Equal(b.Grid()) || a.Cursor() != b.Cursor() || a.Len() != b.Len() {
		t.Fatalf("grid/cursor/len differ")
	}
}

func TestReversibility_RoundTrip(t *testing.T) {
	e := newTestEngine(t, nil)
	mustOK(t, e.StartLevel("L01"))
	for i := 0; i < 3; i++ {
		mustOK(t, e.Interact(4, 4))
	}
	e.Advance(time.Second)
	mustOK(t, e.Interact(0, 7))

	before := e.Grid()
	cursor := e.Cursor()
	events := e.Events()
	for p := 0; p <= e.Len(); p++ {
		e.SetPosition(p)
		want := grid.Reconstruct(before.W, before.H, 3, events[:p], p)
		if !e.Grid().Equal(want) {
			t.Fatalf("grid at %d differs from replay of prefix", p)
		}
		e.SetPosition(cursor)
		if !e.Grid().Equal(before) {
			t.Fatalf("rewind to %d and restore changed the grid", p)
		}
	}
}

func TestTimeline_TimestampsStayMonotonic(t *testing.T) {
	e := newTestEngine(t, nil)
	mustOK(t, e.StartLevel("L01"))
	fillDistinct(t, e, 5)
	mustOK(t, e.SetPosition(2))
	mustOK(t, e.Interact(7, 7))
	mustOK(t, e.Reverse())
	mustOK(t, e.Forward())
	fillDistinct(t, e, 2)

	evs := e.Events()
	if len(evs) != 5 {
		t.Fatalf("append after rewind should truncate: len=%d", len(evs))
	}
	seen := map[string]bool{}
	for i, ev := range evs {
		if ev.Timestamp != i {
			t.Fatalf("event %d timestamp=%d", i, ev.Timestamp)
		}
		if seen[ev.ID] {
			t.Fatalf("duplicate id %s", ev.ID)
		}
		seen[ev.ID] = true
	}
}

func TestRewind_ParksCascadeUntilHead(t *testing.T) {
	e := newTestEngine(t, nil)
	mustOK(t, e.StartLevel("L01"))
	for i := 0; i < 3; i++ {
		mustOK(t, e.Interact(3, 3))
	}
	mustOK(t, e.Reverse())
	e.Advance(300 * time.Millisecond)
	if e.Len() != 3 || len(e.Pending()) != 4 {
		t.Fatalf("rewound cascade should wait: len=%d pending=%d", e.Len(), len(e.Pending()))
	}
	if got := e.Grid().At(timeline.Pos{X: 3, Y: 3}); got != 2 {
		t.Fatalf("cell=%d want 2", got)
	}

	mustOK(t, e.Forward())
	e.Advance(5 * time.Second)
	if e.Len() != 7 || len(e.Pending()) != 0 {
		t.Fatalf("cascade lost after forward: len=%d pending=%d", e.Len(), len(e.Pending()))
	}
	if got := e.Grid().At(timeline.Pos{X: 2, Y: 3}); got != 1 {
		t.Fatalf("left neighbor=%d want 1", got)
	}
}

func TestRewind_CascadeNeverTruncatesRecordedEvents(t *testing.T) {
	e := newTestEngine(t, nil)
	mustOK(t, e.StartLevel("L01"))
	for i := 0; i < 3; i++ {
		mustOK(t, e.Interact(3, 3))
	}
	mustOK(t, e.Interact(7, 7))
	mustOK(t, e.Interact(6, 7))
	mustOK(t, e.SetPosition(3))

	e.Advance(200 * time.Millisecond)
	if e.Cursor() != 3 || e.Len() != 5 || e.Moves() != 5 {
		t.Fatalf("cursor=%d len=%d moves=%d, want 3 5 5", e.Cursor(), e.Len(), e.Moves())
	}
	mustOK(t, e.Forward())
	mustOK(t, e.Forward())
	if got := e.Grid().At(timeline.Pos{X: 6, Y: 7}); got != 1 {
		t.Fatalf("recorded interact not restored: cell=%d", got)
	}

	e.Advance(time.Millisecond)
	if e.Len() != 9 {
		t.Fatalf("parked cascade should fire at head: len=%d", e.Len())
	}
	if _, ok := e.Events()[5].Payload.(timeline.Trigger); !ok {
		t.Fatalf("event 5 should be a trigger: %+v", e.Events()[5])
	}
}

func TestRewind_InteractDropsCascadeOfTruncatedCause(t *testing.T) {
	e := newTestEngine(t, nil)
	mustOK(t, e.StartLevel("L01"))
	for i := 0; i < 3; i++ {
		mustOK(t, e.Interact(3, 3))
	}
	mustOK(t, e.Reverse())
	mustOK(t, e.Interact(0, 7))
	if len(e.Pending()) != 0 {
		t.Fatalf("tasks of truncated cause still pending: %d", len(e.Pending()))
	}
	e.Advance(time.Second)
	if e.Len() != 3 {
		t.Fatalf("len=%d want 3", e.Len())
	}
	if got := e.Grid().At(timeline.Pos{X: 3, Y: 3}); got != 2 {
		t.Fatalf("cell=%d want 2", got)
	}
}

func TestInteract_Rejections(t *testing.T) {
	e := newTestEngine(t, nil)
	if r := e.Interact(0, 0); r.Code != protocol.ErrNotPlaying {
		t.Fatalf("idle interact code=%q", r.Code)
	}
	mustOK(t, e.StartLevel("L01"))
	if r := e.Interact(8, 0); r.Code != protocol.ErrOutOfBounds {
		t.Fatalf("out of bounds code=%q", r.Code)
	}
	if r := e.Interact(-1, 0); r.Code != protocol.ErrOutOfBounds {
		t.Fatalf("negative code=%q", r.Code)
	}
	for i := 0; i < 3; i++ {
		mustOK(t, e.Interact(5, 5))
	}
	if r := e.Interact(5, 5); r.Code != protocol.ErrSaturated {
		t.Fatalf("saturated code=%q", r.Code)
	}
	if e.Moves() != 3 {
		t.Fatalf("rejected interactions must not count: moves=%d", e.Moves())
	}
	if r := e.StartLevel("nope"); r.Code != protocol.ErrLevelNotFound {
		t.Fatalf("unknown level code=%q", r.Code)
	}
	if r := e.Dispatch(protocol.Command{Type: "JUMP"}); r.Code != protocol.ErrBadRequest {
		t.Fatalf("unknown command code=%q", r.Code)
	}
}

func TestInteract_StepBudget(t *testing.T) {
	cat := testCatalog(t, `{"id":"B","name":"budget","max_time_steps":2,"goal":{"type":"TOTAL_AT_LEAST","value":50},"stars":{"three":1,"two":2}}`)
	tune := tuning.Defaults()
	tune.EnforceStepBudget = true
	e, err := New(Config{Tuning: tune, Catalog: cat})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mustOK(t, e.StartLevel("B"))
	fillDistinct(t, e, 2)
	if r := e.Interact(4, 4); r.Code != protocol.ErrBudget {
		t.Fatalf("code=%q want %s", r.Code, protocol.ErrBudget)
	}
	mustOK(t, e.Reverse())
	mustOK(t, e.Interact(4, 4))
}

func TestPause_RejectsInteractAndFreezesCascades(t *testing.T) {
	e := newTestEngine(t, nil)
	mustOK(t, e.StartLevel("L01"))
	for i := 0; i < 3; i++ {
		mustOK(t, e.Interact(3, 3))
	}
	mustOK(t, e.Pause())
	if !e.Session().IsPaused() || !e.Session().IsPlaying() {
		t.Fatalf("session=%+v", e.Session())
	}
	if r := e.Interact(0, 0); r.Code != protocol.ErrPaused {
		t.Fatalf("code=%q want %s", r.Code, protocol.ErrPaused)
	}
	e.Advance(time.Second)
	if e.Len() != 3 {
		t.Fatalf("cascade fired while paused")
	}
	// Time travel still works while paused.
	mustOK(t, e.Reverse())
	mustOK(t, e.Forward())

	mustOK(t, e.Resume())
	e.Advance(200 * time.Millisecond)
	if e.Len() != 7 {
		t.Fatalf("len=%d want 7 after resume", e.Len())
	}
}

func TestReverse_FlagClearsAfterFeedbackWindow(t *testing.T) {
	e := newTestEngine(t, nil)
	mustOK(t, e.StartLevel("L01"))
	fillDistinct(t, e, 2)
	mustOK(t, e.Reverse())
	if !e.Session().Reversing {
		t.Fatalf("Reversing should be set")
	}
	mustOK(t, e.Pause())
	e.Advance(299 * time.Millisecond)
	if !e.Session().Reversing {
		t.Fatalf("Reversing cleared early")
	}
	e.Advance(time.Millisecond)
	if e.Session().Reversing {
		t.Fatalf("Reversing should clear after the window, even paused")
	}
	if r := e.Reverse(); !r.OK() {
		t.Fatalf("reverse: %s", r.Code)
	}
	if r := e.Reverse(); r.Code != protocol.ErrNoOp {
		t.Fatalf("reverse at 0 code=%q", r.Code)
	}
}

func TestSeek_ReversedOnlyForReverse(t *testing.T) {
	e := newTestEngine(t, nil)
	l := &recordingListener{}
	e.AddListener(l)
	mustOK(t, e.StartLevel("L01"))
	fillDistinct(t, e, 3)

	mustOK(t, e.Reverse())
	mustOK(t, e.Forward())
	mustOK(t, e.SetPosition(1))
	if !e.Session().Reversing {
		t.Fatalf("feedback window should still be open")
	}
	want := []bool{false, true, false, false}
	if len(l.reversed) != len(want) {
		t.Fatalf("seeks=%v want %v", l.reversed, want)
	}
	for i := range want {
		if l.reversed[i] != want[i] {
			t.Fatalf("seeks=%v want %v", l.reversed, want)
		}
	}
}

func TestWin_FiresExactlyOnce(t *testing.T) {
	cat := testCatalog(t, `{"id":"W","name":"win","width":2,"height":1,"max_time_steps":10,"goal":{"type":"ALL_AT_LEAST","value":1},"stars":{"three":3,"two":5}}`)
	e := newTestEngine(t, cat)
	l := &recordingListener{}
	e.AddListener(l)

	mustOK(t, e.StartLevel("W"))
	mustOK(t, e.Interact(0, 0))
	if e.Session().Status != StatusPlaying {
		t.Fatalf("won too early")
	}
	mustOK(t, e.Interact(1, 0))
	if e.Session().Status != StatusCompleted {
		t.Fatalf("status=%s want COMPLETED", e.Session().Status)
	}
	if r := e.Interact(0, 0); r.Code != protocol.ErrNotPlaying {
		t.Fatalf("interact after win code=%q", r.Code)
	}
	mustOK(t, e.Reverse())
	mustOK(t, e.Forward())
	e.Advance(time.Second)

	if len(l.completes) != 1 || l.completes[0] != 3 {
		t.Fatalf("completes=%v want [3]", l.completes)
	}
	if e.Score() != 300 {
		t.Fatalf("score=%d want 300", e.Score())
	}
	if p := e.Progress("W"); !p.Completed || p.Stars != 3 || p.BestMoves != 2 {
		t.Fatalf("progress=%+v", p)
	}
}

func TestWin_StarsFromMoves(t *testing.T) {
	cat := testCatalog(t, `
		{"id":"S14","name":"s","max_time_steps":64,"goal":{"type":"TOTAL_AT_LEAST","value":14},"stars":{"three":15,"two":25}},
		{"id":"S20","name":"s","max_time_steps":64,"goal":{"type":"TOTAL_AT_LEAST","value":20},"stars":{"three":15,"two":25}},
		{"id":"S30","name":"s","max_time_steps":64,"goal":{"type":"TOTAL_AT_LEAST","value":30},"stars":{"three":15,"two":25}}`)
	cases := []struct {
		level string
		moves int
		stars int
	}{
		{"S14", 14, 3},
		{"S20", 20, 2},
		{"S30", 30, 1},
	}
	for _, tc := range cases {
		e := newTestEngine(t, cat)
		mustOK(t, e.StartLevel(tc.level))
		fillDistinct(t, e, tc.moves)
		if e.Session().Status != StatusCompleted {
			t.Fatalf("%s: not completed after %d moves", tc.level, tc.moves)
		}
		if got := e.Progress(tc.level).Stars; got != tc.stars {
			t.Fatalf("%s: stars=%d want %d", tc.level, got, tc.stars)
		}
	}
}

func TestCompleteLevel_StarsNeverDecrease(t *testing.T) {
	e := newTestEngine(t, nil)
	mustOK(t, e.StartLevel("L01"))
	if !e.CompleteLevel(1) {
		t.Fatalf("CompleteLevel while playing should succeed")
	}
	if e.CompleteLevel(3) {
		t.Fatalf("second completion in one session must be refused")
	}
	mustOK(t, e.ResetLevel())
	e.CompleteLevel(3)
	mustOK(t, e.ResetLevel())
	e.CompleteLevel(2)

	if p := e.Progress("L01"); !p.Completed || p.Stars != 3 {
		t.Fatalf("progress=%+v want 3 stars", p)
	}
	if e.Score() != 600 {
		t.Fatalf("score=%d want 600", e.Score())
	}
	mustOK(t, e.LeaveLevel())
	if e.CompleteLevel(3) {
		t.Fatalf("CompleteLevel while idle must be refused")
	}
}

func TestReset_FreshTimelineAndNoLeakedCascades(t *testing.T) {
	e := newTestEngine(t, nil)
	mustOK(t, e.StartLevel("L01"))
	for i := 0; i < 3; i++ {
		mustOK(t, e.Interact(3, 3))
	}
	oldID := e.Session().ID
	mustOK(t, e.ResetLevel())
	if e.Session().ID == oldID || e.Session().Status != StatusPlaying || e.Moves() != 0 {
		t.Fatalf("reset session=%+v", e.Session())
	}
	e.Advance(time.Second)
	if e.Len() != 0 {
		t.Fatalf("pending cascade leaked into the new timeline: len=%d", e.Len())
	}
	mustOK(t, e.Interact(0, 0))
	if e.Len() != 1 || e.Cursor() != 1 {
		t.Fatalf("len=%d cursor=%d want 1/1", e.Len(), e.Cursor())
	}
}

func TestLeaveLevel_ReturnsToIdle(t *testing.T) {
	e := newTestEngine(t, nil)
	mustOK(t, e.StartLevel("L02"))
	if g := e.Grid(); g.W != 4 || g.H != 4 {
		t.Fatalf("L02 grid %dx%d want 4x4", g.W, g.H)
	}
	mustOK(t, e.LeaveLevel())
	if e.Session().Status != StatusIdle || e.Len() != 0 {
		t.Fatalf("session=%+v len=%d", e.Session(), e.Len())
	}
	if r := e.ResetLevel(); r.Code != protocol.ErrNotPlaying {
		t.Fatalf("reset while idle code=%q", r.Code)
	}
}

func TestSetGoal_OverridesPredicate(t *testing.T) {
	e := newTestEngine(t, nil)
	if !e.SetGoal("L01", func(s grid.State) bool { return s.At(timeline.Pos{X: 7, Y: 7}) >= 2 }) {
		t.Fatalf("SetGoal refused")
	}
	if e.SetGoal("missing", func(grid.State) bool { return true }) {
		t.Fatalf("SetGoal on unknown level should fail")
	}
	mustOK(t, e.StartLevel("L01"))
	mustOK(t, e.Interact(7, 7))
	mustOK(t, e.Interact(7, 7))
	if e.Session().Status != StatusCompleted {
		t.Fatalf("custom goal should complete the level")
	}
}

type fakeSink struct {
	saved []Progress
	runs  []RunRecord
}

func (s *fakeSink) SaveProgress(p Progress) error { s.saved = append(s.saved, p); return nil }
func (s *fakeSink) RecordRun(r RunRecord)         { s.runs = append(s.runs, r) }

func TestCompletion_PersistsThroughSink(t *testing.T) {
	cat, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	sink := &fakeSink{}
	e, err := New(Config{
		Tuning:   tuning.Defaults(),
		Catalog:  cat,
		Sink:     sink,
		Progress: map[string]Progress{"L01": {Completed: true, Stars: 3, BestMoves: 9}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p := e.Progress("L01"); p.LevelID != "L01" || p.Stars != 3 {
		t.Fatalf("loaded progress=%+v", p)
	}
	mustOK(t, e.StartLevel("L01"))
	e.CompleteLevel(1)
	if len(sink.saved) != 1 || sink.saved[0].Stars != 3 || sink.saved[0].BestMoves != 9 {
		t.Fatalf("saved=%+v", sink.saved)
	}
	if len(sink.runs) != 1 || sink.runs[0].Stars != 1 || sink.runs[0].LevelID != "L01" {
		t.Fatalf("runs=%+v", sink.runs)
	}
}

func TestNew_RejectsUnwinnableGoals(t *testing.T) {
	for _, level := range []string{
		`{"id":"C","name":"c","max_time_steps":9,"goal":{"type":"CELLS","cells":[{"x":9,"y":0,"value":1}]},"stars":{"three":1,"two":2}}`,
		`{"id":"V","name":"v","max_time_steps":9,"goal":{"type":"ALL_AT_LEAST","value":4},"stars":{"three":1,"two":2}}`,
	} {
		cat := testCatalog(t, level)
		if _, err := New(Config{Tuning: tuning.Defaults(), Catalog: cat}); err == nil {
			t.Fatalf("%s: expected error", level)
		}
	}
}
