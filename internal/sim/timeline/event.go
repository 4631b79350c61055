package timeline

import (
	"encoding/json"
	"fmt"
)

type Kind string

const (
	KindInteract  Kind = "INTERACT"
	KindTrigger   Kind = "TRIGGER"
	KindCollision Kind = "COLLISION"
	KindMove      Kind = "MOVE"
)

type Pos struct {
	X int
	Y int
}

func (p Pos) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

func (p Pos) MarshalJSON() ([]byte, error) { return json.Marshal([2]int{p.X, p.Y}) }

func (p *Pos) UnmarshalJSON(b []byte) error {
	var xy [2]int
	if err := json.Unmarshal(b, &xy); err != nil {
		return err
	}
	p.X, p.Y = xy[0], xy[1]
	return nil
}

// Payload is the kind-specific body of an Event. The set of variants is closed:
// only types in this package implement it.
type Payload interface {
	Kind() Kind
	isPayload()
}

// Interact is a player-initiated change of one cell.
type Interact struct {
	Prev int `json:"prev"`
	Next int `json:"next"`
}

// Trigger is a cascade step spawned by a neighbor reaching the threshold.
type Trigger struct {
	Prev    int    `json:"prev"`
	Next    int    `json:"next"`
	From    Pos    `json:"from"`
	CauseID string `json:"cause_id"`
}

// Collision is reserved; replay ignores it.
type Collision struct {
	Other Pos `json:"other"`
}

// Move is reserved; replay ignores it.
type Move struct {
	To Pos `json:"to"`
}

// Unknown carries a kind this build does not understand.
type Unknown struct {
	Name Kind            `json:"-"`
	Raw  json.RawMessage `json:"-"`
}

func (Interact) Kind() Kind  { return KindInteract }
func (Trigger) Kind() Kind   { return KindTrigger }
func (Collision) Kind() Kind { return KindCollision }
func (Move) Kind() Kind      { return KindMove }
func (u Unknown) Kind() Kind { return u.Name }

func (Interact) isPayload()  {}
func (Trigger) isPayload()   {}
func (Collision) isPayload() {}
func (Move) isPayload()      {}
func (Unknown) isPayload()   {}

// Event is one immutable entry of the log. Timestamp is the cursor value at
// append time, which is also the event's index in the log.
type Event struct {
	ID        string
	Pos       Pos
	Timestamp int
	Payload   Payload
}

func (e Event) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

type eventJSON struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Pos       Pos             `json:"pos"`
	Timestamp int             `json:"ts"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{ID: e.ID, Kind: e.Kind(), Pos: e.Pos, Timestamp: e.Timestamp}
	switch p := e.Payload.(type) {
	case nil:
	case Unknown:
		out.Payload = p.Raw
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		out.Payload = b
	}
	return json.Marshal(out)
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var in eventJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	e.ID, e.Pos, e.Timestamp = in.ID, in.Pos, in.Timestamp

	var err error
	switch in.Kind {
	case KindInteract:
		var p Interact
		err = unmarshalPayload(in.Payload, &p)
		e.Payload = p
	case KindTrigger:
		var p Trigger
		err = unmarshalPayload(in.Payload, &p)
		e.Payload = p
	case KindCollision:
		var p Collision
		err = unmarshalPayload(in.Payload, &p)
		e.Payload = p
	case KindMove:
		var p Move
		err = unmarshalPayload(in.Payload, &p)
		e.Payload = p
	default:
		e.Payload = Unknown{Name: in.Kind, Raw: in.Payload}
	}
	if err != nil {
		return fmt.Errorf("event %s: %w", in.ID, err)
	}
	return nil
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
