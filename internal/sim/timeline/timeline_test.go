package timeline

import (
	"encoding/json"
	"testing"
)

func TestTimeline_AppendAssignsMonotonicTimestamps(t *testing.T) {
	tl := New()
	for i := 0; i < 5; i++ {
		tl.Append(Pos{X: i, Y: 0}, Interact{Prev: 0, Next: 1})
	}
	if tl.Cursor() != 5 || tl.Len() != 5 {
		t.Fatalf("cursor=%d len=%d, want 5/5", tl.Cursor(), tl.Len())
	}
	evs := tl.Events()
	for i := 1; i < len(evs); i++ {
		if evs[i-1].Timestamp >= evs[i].Timestamp {
			t.Fatalf("timestamps not increasing at %d: %d >= %d", i, evs[i-1].Timestamp, evs[i].Timestamp)
		}
		if evs[i].Timestamp != i {
			t.Fatalf("timestamp %d at index %d", evs[i].Timestamp, i)
		}
	}
}

func TestTimeline_SetPositionClamps(t *testing.T) {
	tl := New()
	tl.Append(Pos{}, Interact{Next: 1})
	tl.Append(Pos{}, Interact{Prev: 1, Next: 2})

	if got := tl.SetPosition(-4); got != 0 {
		t.Fatalf("SetPosition(-4)=%d", got)
	}
	if got := tl.SetPosition(99); got != 2 {
		t.Fatalf("SetPosition(99)=%d", got)
	}
	tl.SetPosition(1)
	evs := tl.Events()
	if !tl.IsApplied(evs[0]) || tl.IsApplied(evs[1]) {
		t.Fatalf("applied flags wrong at cursor 1")
	}
	tl.SetPosition(2)
	if !tl.IsApplied(evs[1]) {
		t.Fatalf("event should be re-applied after restoring the cursor")
	}
}

func TestTimeline_ReverseForwardBounds(t *testing.T) {
	tl := New()
	if tl.Reverse() {
		t.Fatalf("Reverse at 0 should be a no-op")
	}
	tl.Append(Pos{}, Interact{Next: 1})
	if tl.Forward() {
		t.Fatalf("Forward at end should be a no-op")
	}
	if !tl.Reverse() || tl.Cursor() != 0 {
		t.Fatalf("Reverse: cursor=%d", tl.Cursor())
	}
	if !tl.Forward() || tl.Cursor() != 1 {
		t.Fatalf("Forward: cursor=%d", tl.Cursor())
	}
}

func TestTimeline_AppendAfterRewindDropsSuffix(t *testing.T) {
	tl := New()
	a := tl.Append(Pos{X: 1}, Interact{Next: 1})
	b := tl.Append(Pos{X: 2}, Interact{Next: 1})
	tl.Reverse()

	c := tl.Append(Pos{X: 3}, Interact{Next: 1})
	if tl.Len() != 2 || tl.Cursor() != 2 {
		t.Fatalf("len=%d cursor=%d, want 2/2", tl.Len(), tl.Cursor())
	}
	if c.Timestamp != 1 {
		t.Fatalf("timestamp=%d, want 1", c.Timestamp)
	}
	if c.ID == b.ID || c.ID == a.ID {
		t.Fatalf("id reused: %s", c.ID)
	}
	if _, ok := tl.Lookup(b.ID); ok {
		t.Fatalf("discarded event still present")
	}
	if !tl.AppliedByID(a.ID) {
		t.Fatalf("first event should remain applied")
	}
}

func TestEvent_JSONKeepsVariant(t *testing.T) {
	ev := Event{
		ID:        "E000007",
		Pos:       Pos{X: 2, Y: 3},
		Timestamp: 6,
		Payload:   Trigger{Prev: 0, Next: 1, From: Pos{X: 3, Y: 3}, CauseID: "E000006"},
	}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Event
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	tr, ok := got.Payload.(Trigger)
	if !ok {
		t.Fatalf("payload type %T", got.Payload)
	}
	if tr.From != (Pos{X: 3, Y: 3}) || tr.CauseID != "E000006" || got.Pos != ev.Pos {
		t.Fatalf("decoded %+v", got)
	}
}

func TestEvent_UnknownKindDecodes(t *testing.T) {
	var ev Event
	if err := json.Unmarshal([]byte(`{"id":"E1","kind":"TELEPORT","pos":[1,1],"ts":0,"payload":{"z":4}}`), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Kind() != "TELEPORT" {
		t.Fatalf("kind=%q", ev.Kind())
	}
	if _, ok := ev.Payload.(Unknown); !ok {
		t.Fatalf("payload type %T", ev.Payload)
	}
}
