package grid

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"chronogrid.ai/internal/sim/encoding"
	"chronogrid.ai/internal/sim/timeline"
)

// State is a fixed-size matrix of small counters, stored row-major.
type State struct {
	W     int
	H     int
	Cells []uint8
}

func New(w, h int) State {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return State{W: w, H: h, Cells: make([]uint8, w*h)}
}

func (s State) InBounds(p timeline.Pos) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < s.W && p.Y < s.H
}

// At returns the value at p, or 0 when p is out of bounds.
func (s State) At(p timeline.Pos) int {
	if !s.InBounds(p) {
		return 0
	}
	return int(s.Cells[p.Y*s.W+p.X])
}

func (s State) set(p timeline.Pos, v int) {
	s.Cells[p.Y*s.W+p.X] = uint8(v)
}

func (s State) Clone() State {
	c := State{W: s.W, H: s.H, Cells: make([]uint8, len(s.Cells))}
	copy(c.Cells, s.Cells)
	return c
}

func (s State) Equal(o State) bool {
	if s.W != o.W || s.H != o.H || len(s.Cells) != len(o.Cells) {
		return false
	}
	for i := range s.Cells {
		if s.Cells[i] != o.Cells[i] {
			return false
		}
	}
	return true
}

// Rows returns the grid as rows indexed [y][x].
func (s State) Rows() [][]int {
	out := make([][]int, s.H)
	for y := 0; y < s.H; y++ {
		row := make([]int, s.W)
		for x := 0; x < s.W; x++ {
			row[x] = int(s.Cells[y*s.W+x])
		}
		out[y] = row
	}
	return out
}

func (s State) Total() int {
	n := 0
	for _, v := range s.Cells {
		n += int(v)
	}
	return n
}

// Encode returns the RLE form of the cells.
func (s State) Encode() string { return encoding.EncodeCells(s.Cells) }

func Decode(w, h int, rle string) (State, error) {
	cells, err := encoding.DecodeCells(rle, w*h)
	if err != nil {
		return State{}, err
	}
	return State{W: w, H: h, Cells: cells}, nil
}

func (s State) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(s.W))
	h.Write(tmp[:])
	binary.LittleEndian.PutUint64(tmp[:], uint64(s.H))
	h.Write(tmp[:])
	h.Write(s.Cells)
	return hex.EncodeToString(h.Sum(nil))
}

// Reconstruct rebuilds the grid from scratch by replaying every event with
// Timestamp < cursor in log order. Values are clamped to [0, maxValue].
// Kinds that do not set a cell are skipped.
func Reconstruct(w, h, maxValue int, events []timeline.Event, cursor int) State {
	s := New(w, h)
	for _, ev := range events {
		if ev.Timestamp >= cursor {
			break
		}
		if !s.InBounds(ev.Pos) {
			continue
		}
		var next int
		switch p := ev.Payload.(type) {
		case timeline.Interact:
			next = p.Next
		case timeline.Trigger:
			next = p.Next
		default:
			continue
		}
		s.set(ev.Pos, clamp(next, 0, maxValue))
	}
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
