package catalogs

import (
	"fmt"
	"strings"

	"chronogrid.ai/internal/sim/grid"
	"chronogrid.ai/internal/sim/timeline"
)

const (
	GoalAllAtLeast   = "ALL_AT_LEAST"
	GoalCountAtLeast = "COUNT_AT_LEAST"
	GoalTotalAtLeast = "TOTAL_AT_LEAST"
	GoalCells        = "CELLS"
)

// Goal is the data form of a level's win predicate.
type Goal struct {
	Type  string     `json:"type"`
	Value int        `json:"value,omitempty"`
	Count int        `json:"count,omitempty"`
	Cells []GoalCell `json:"cells,omitempty"`
}

type GoalCell struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Value int `json:"value"`
}

// Predicate is a win condition over a grid.
type Predicate func(grid.State) bool

func (g Goal) Predicate() Predicate {
	switch g.Type {
	case GoalAllAtLeast:
		v := g.Value
		return func(s grid.State) bool {
			if len(s.Cells) == 0 {
				return false
			}
			for _, c := range s.Cells {
				if int(c) < v {
					return false
				}
			}
			return true
		}
	case GoalCountAtLeast:
		v, n := g.Value, g.Count
		return func(s grid.State) bool {
			hit := 0
			for _, c := range s.Cells {
				if int(c) >= v {
					hit++
				}
			}
			return hit >= n
		}
	case GoalTotalAtLeast:
		v := g.Value
		return func(s grid.State) bool { return s.Total() >= v }
	case GoalCells:
		cells := append([]GoalCell(nil), g.Cells...)
		return func(s grid.State) bool {
			for _, c := range cells {
				p := timeline.Pos{X: c.X, Y: c.Y}
				if !s.InBounds(p) || s.At(p) != c.Value {
					return false
				}
			}
			return true
		}
	default:
		return func(grid.State) bool { return false }
	}
}

// Describe renders the goal for a status line.
func (g Goal) Describe() string {
	switch g.Type {
	case GoalAllAtLeast:
		return fmt.Sprintf("every cell >= %d", g.Value)
	case GoalCountAtLeast:
		return fmt.Sprintf("%d cells >= %d", g.Count, g.Value)
	case GoalTotalAtLeast:
		return fmt.Sprintf("total >= %d", g.Value)
	case GoalCells:
		parts := make([]string, 0, len(g.Cells))
		for _, c := range g.Cells {
			parts = append(parts, fmt.Sprintf("(%d,%d)=%d", c.X, c.Y, c.Value))
		}
		return strings.Join(parts, " ")
	default:
		return g.Type
	}
}

// Check reports a goal that cannot be met on a w x h grid whose cells top
// out at maxValue.
func (g Goal) Check(w, h, maxValue int) error {
	if err := g.validate(w, h); err != nil {
		return err
	}
	switch g.Type {
	case GoalAllAtLeast:
		if g.Value > maxValue {
			return fmt.Errorf("goal %s value %d above max cell value %d", g.Type, g.Value, maxValue)
		}
	case GoalCountAtLeast:
		if g.Value > maxValue {
			return fmt.Errorf("goal %s value %d above max cell value %d", g.Type, g.Value, maxValue)
		}
		if g.Count > w*h {
			return fmt.Errorf("goal %s count %d above %d cells", g.Type, g.Count, w*h)
		}
	case GoalTotalAtLeast:
		if g.Value > w*h*maxValue {
			return fmt.Errorf("goal %s value %d above grid capacity %d", g.Type, g.Value, w*h*maxValue)
		}
	case GoalCells:
		for _, c := range g.Cells {
			if c.X < 0 || c.Y < 0 || c.X >= w || c.Y >= h {
				return fmt.Errorf("goal cell (%d,%d) outside %dx%d", c.X, c.Y, w, h)
			}
			if c.Value < 0 || c.Value > maxValue {
				return fmt.Errorf("goal cell (%d,%d) value %d outside 0..%d", c.X, c.Y, c.Value, maxValue)
			}
		}
	}
	return nil
}

func (g Goal) validate(w, h int) error {
	switch g.Type {
	case GoalAllAtLeast, GoalTotalAtLeast:
		if g.Value <= 0 {
			return fmt.Errorf("goal %s needs value > 0", g.Type)
		}
	case GoalCountAtLeast:
		if g.Value <= 0 || g.Count <= 0 {
			return fmt.Errorf("goal %s needs value and count > 0", g.Type)
		}
	case GoalCells:
		if len(g.Cells) == 0 {
			return fmt.Errorf("goal %s needs cells", g.Type)
		}
		for _, c := range g.Cells {
			if (w > 0 && c.X >= w) || (h > 0 && c.Y >= h) {
				return fmt.Errorf("goal cell (%d,%d) outside %dx%d", c.X, c.Y, w, h)
			}
		}
	default:
		return fmt.Errorf("unknown goal type %q", g.Type)
	}
	return nil
}
