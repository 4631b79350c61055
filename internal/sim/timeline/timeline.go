package timeline

import "fmt"

// Timeline is the event log plus the cursor that marks its active prefix.
// Events with Timestamp < cursor are applied; the rest are reversed but kept,
// so Forward can re-activate them without re-simulating.
//
// Not safe for concurrent use.
type Timeline struct {
	events []Event
	cursor int
	nextID uint64
}

func New() *Timeline {
	return &Timeline{}
}

// Append records a new event at the cursor and advances the cursor by one.
// Appending while rewound discards the reversed suffix first, so timestamps
// stay strictly increasing in log order. IDs are never reused.
func (t *Timeline) Append(pos Pos, p Payload) Event {
	if t.cursor < len(t.events) {
		t.events = t.events[:t.cursor:t.cursor]
	}
	t.nextID++
	ev := Event{
		ID:        fmt.Sprintf("E%06d", t.nextID),
		Pos:       pos,
		Timestamp: t.cursor,
		Payload:   p,
	}
	t.events = append(t.events, ev)
	t.cursor++
	return ev
}

// SetPosition moves the cursor, clamped to [0, Len()], and returns the result.
func (t *Timeline) SetPosition(p int) int {
	if p < 0 {
		p = 0
	}
	if p > len(t.events) {
		p = len(t.events)
	}
	t.cursor = p
	return p
}

// Reverse steps the cursor back by one. It reports false at position 0.
func (t *Timeline) Reverse() bool {
	if t.cursor == 0 {
		return false
	}
	t.SetPosition(t.cursor - 1)
	return true
}

// Forward steps the cursor ahead by one. It reports false at the end of the log.
func (t *Timeline) Forward() bool {
	if t.cursor == len(t.events) {
		return false
	}
	t.SetPosition(t.cursor + 1)
	return true
}

func (t *Timeline) Cursor() int { return t.cursor }
func (t *Timeline) Len() int    { return len(t.events) }

func (t *Timeline) IsApplied(e Event) bool { return e.Timestamp < t.cursor }

// Events returns a copy of the whole log, applied or not.
func (t *Timeline) Events() []Event {
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Applied returns the active prefix. The slice aliases the log and must not be modified.
func (t *Timeline) Applied() []Event {
	return t.events[:t.cursor]
}

// Lookup finds an event by id, applied or not.
func (t *Timeline) Lookup(id string) (Event, bool) {
	for i := len(t.events) - 1; i >= 0; i-- {
		if t.events[i].ID == id {
			return t.events[i], true
		}
	}
	return Event{}, false
}

// AppliedByID reports whether the event with the given id is in the active prefix.
func (t *Timeline) AppliedByID(id string) bool {
	ev, ok := t.Lookup(id)
	return ok && t.IsApplied(ev)
}
