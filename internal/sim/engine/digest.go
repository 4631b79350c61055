package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Digest hashes every piece of state that replay must reproduce: level,
// status, clocks, timeline (ids, payloads, cursor), grid, pending tasks and
// score. Session ids and the Reversing flag are excluded.
func (e *Engine) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	s := e.Session()
	h.Write([]byte(s.LevelID))
	h.Write([]byte{0})
	h.Write([]byte(s.Status))
	h.Write([]byte{0})
	digestWriteI64(h, &tmp, int64(s.Moves))
	digestWriteI64(h, &tmp, int64(e.score))
	digestWriteI64(h, &tmp, int64(e.gameNow))

	digestWriteI64(h, &tmp, int64(e.tl.Cursor()))
	digestWriteI64(h, &tmp, int64(e.tl.Len()))
	for _, ev := range e.tl.Events() {
		b, _ := ev.MarshalJSON()
		h.Write(b)
		h.Write([]byte{'\n'})
	}

	digestWriteI64(h, &tmp, int64(e.grid.W))
	digestWriteI64(h, &tmp, int64(e.grid.H))
	h.Write(e.grid.Cells)

	for _, t := range e.queue.Pending() {
		digestWriteI64(h, &tmp, int64(t.Due))
		digestWriteU64(h, &tmp, t.Seq)
		digestWriteI64(h, &tmp, int64(t.Target.X))
		digestWriteI64(h, &tmp, int64(t.Target.Y))
		h.Write([]byte(t.CauseID))
		h.Write([]byte{0})
	}

	for _, l := range e.cat.Levels {
		p := e.progress[l.ID]
		h.Write([]byte(l.ID))
		h.Write([]byte{boolByte(p.Completed), byte(p.Stars)})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hash.Hash, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
