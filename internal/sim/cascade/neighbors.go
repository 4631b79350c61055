package cascade

import "chronogrid.ai/internal/sim/timeline"

// Neighbors returns the in-bounds orthogonal neighbors of p on a w*h grid,
// in the order left, right, up, down.
func Neighbors(p timeline.Pos, w, h int) []timeline.Pos {
	cand := [4]timeline.Pos{
		{X: p.X - 1, Y: p.Y},
		{X: p.X + 1, Y: p.Y},
		{X: p.X, Y: p.Y - 1},
		{X: p.X, Y: p.Y + 1},
	}
	out := make([]timeline.Pos, 0, 4)
	for _, c := range cand {
		if c.X < 0 || c.Y < 0 || c.X >= w || c.Y >= h {
			continue
		}
		out = append(out, c)
	}
	return out
}
