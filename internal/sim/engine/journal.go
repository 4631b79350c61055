package engine

import (
	"fmt"
	"time"

	"chronogrid.ai/internal/protocol"
	"chronogrid.ai/internal/sim/grid"
	"chronogrid.ai/internal/sim/timeline"
	"chronogrid.ai/internal/sim/tuning"
)

// JournalHeader opens every journal. Replay refuses a catalogue whose digest
// differs unless told otherwise. Progress is the stored progress the engine
// started from; the state digest covers it.
type JournalHeader struct {
	Version       string              `json:"version"`
	Tuning        tuning.Tuning       `json:"tuning"`
	CatalogDigest string              `json:"catalog_digest"`
	Progress      map[string]Progress `json:"progress,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
}

// JournalEntry is one line of a session journal: either the header (Seq 0)
// or a command with the state it produced.
type JournalEntry struct {
	Seq    uint64            `json:"seq"`
	Header *JournalHeader    `json:"header,omitempty"`
	Cmd    *protocol.Command `json:"cmd,omitempty"`
	Code   string            `json:"code,omitempty"`
	Cursor int               `json:"cursor"`
	Len    int               `json:"len"`
	Digest string            `json:"digest,omitempty"`
	// Grid is the RLE of the grid after the command; written on completion
	// and on demand.
	Grid string `json:"grid,omitempty"`
}

type Journal interface {
	WriteEntry(e JournalEntry) error
}

// Recorder applies commands to an Engine and journals them. Consecutive
// Advance calls are folded into a single ADVANCE entry, flushed before the
// next command.
type Recorder struct {
	e   *Engine
	j   Journal
	seq uint64

	carry          time.Duration
	pendingAdvance time.Duration
	err            error
}

// NewRecorder writes the header immediately. j may be nil, in which case
// the Recorder only forwards to the engine.
func NewRecorder(e *Engine, j Journal) *Recorder {
	r := &Recorder{e: e, j: j}
	if j != nil {
		r.write(JournalEntry{Header: &JournalHeader{
			Version:       protocol.Version,
			Tuning:        e.Tuning(),
			CatalogDigest: e.Catalog().Digest,
			Progress:      e.storedProgress(),
			StartedAt:     time.Now().UTC(),
		}})
	}
	return r
}

func (r *Recorder) Engine() *Engine { return r.e }

// Err returns the first journal write error.
func (r *Recorder) Err() error { return r.err }

func (r *Recorder) Apply(cmd protocol.Command) Result {
	if cmd.Type == protocol.TypeAdvance {
		if cmd.Ms < 0 {
			return rejected(protocol.ErrBadRequest)
		}
		r.Advance(cmd.Duration())
		return Result{}
	}
	r.Flush()
	res := r.e.Dispatch(cmd)
	c := cmd
	entry := JournalEntry{Cmd: &c, Code: res.Code}
	if r.e.Session().Status == StatusCompleted {
		entry.Grid = r.e.grid.Encode()
	}
	r.record(entry)
	return res
}

// Advance feeds the engine whole milliseconds only, carrying the remainder,
// so the journal reproduces game time exactly.
func (r *Recorder) Advance(dt time.Duration) {
	if dt <= 0 {
		return
	}
	r.carry += dt
	step := r.carry.Truncate(time.Millisecond)
	if step <= 0 {
		return
	}
	r.carry -= step
	if !r.e.playing() {
		// Only the real-time UI clock moves; nothing replay needs.
		r.e.Advance(step)
		return
	}
	r.e.Advance(step)
	r.pendingAdvance += step
	if !r.e.playing() {
		r.Flush()
	}
}

// Flush writes any folded ADVANCE.
func (r *Recorder) Flush() {
	ms := r.pendingAdvance.Milliseconds()
	if ms <= 0 {
		return
	}
	r.pendingAdvance = 0
	c := protocol.Command{Type: protocol.TypeAdvance, Ms: ms}
	entry := JournalEntry{Cmd: &c}
	if r.e.Session().Status == StatusCompleted {
		entry.Grid = r.e.grid.Encode()
	}
	r.record(entry)
}

func (r *Recorder) record(entry JournalEntry) {
	if r.j == nil {
		return
	}
	entry.Cursor = r.e.Cursor()
	entry.Len = r.e.Len()
	entry.Digest = r.e.Digest()
	r.write(entry)
}

func (r *Recorder) write(entry JournalEntry) {
	entry.Seq = r.seq
	r.seq++
	if err := r.j.WriteEntry(entry); err != nil && r.err == nil {
		r.err = err
		r.e.logger.Printf("journal write seq=%d: %v", entry.Seq, err)
	}
}

// Verifier re-applies journal entries to a fresh engine and checks each
// recorded digest.
type Verifier struct {
	e       *Engine
	checked int

	lastGrid grid.State
	hasGrid  bool
}

func NewVerifier(e *Engine) *Verifier { return &Verifier{e: e} }

func (v *Verifier) Engine() *Engine { return v.e }
func (v *Verifier) Checked() int    { return v.checked }

// LastGrid returns the most recent grid stored in the journal, decoded.
func (v *Verifier) LastGrid() (grid.State, bool) { return v.lastGrid, v.hasGrid }

func (v *Verifier) Step(entry JournalEntry) error {
	if entry.Header != nil || entry.Cmd == nil {
		return nil
	}
	res := v.e.Dispatch(*entry.Cmd)
	if res.Code != entry.Code {
		return fmt.Errorf("seq %d %s: code %q, journal has %q", entry.Seq, entry.Cmd, res.Code, entry.Code)
	}
	if got := v.e.Cursor(); got != entry.Cursor {
		return fmt.Errorf("seq %d %s: cursor %d, journal has %d", entry.Seq, entry.Cmd, got, entry.Cursor)
	}
	if got := v.e.Len(); got != entry.Len {
		return fmt.Errorf("seq %d %s: len %d, journal has %d", entry.Seq, entry.Cmd, got, entry.Len)
	}
	if entry.Grid != "" {
		want, err := grid.Decode(v.e.grid.W, v.e.grid.H, entry.Grid)
		if err != nil {
			return fmt.Errorf("seq %d %s: journal grid: %w", entry.Seq, entry.Cmd, err)
		}
		if p, ok := firstDiff(v.e.grid, want); ok {
			return fmt.Errorf("seq %d %s: grid mismatch at %s: got %d, journal has %d",
				entry.Seq, entry.Cmd, p, v.e.grid.At(p), want.At(p))
		}
		v.lastGrid, v.hasGrid = want, true
	}
	if entry.Digest != "" {
		if got := v.e.Digest(); got != entry.Digest {
			return fmt.Errorf("seq %d %s: digest mismatch", entry.Seq, entry.Cmd)
		}
	}
	v.checked++
	return nil
}

func firstDiff(a, b grid.State) (timeline.Pos, bool) {
	for y := 0; y < a.H; y++ {
		for x := 0; x < a.W; x++ {
			p := timeline.Pos{X: x, Y: y}
			if a.At(p) != b.At(p) {
				return p, true
			}
		}
	}
	return timeline.Pos{}, false
}
