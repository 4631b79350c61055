package engine

import (
	"time"

	"chronogrid.ai/internal/sim/catalogs"
	"chronogrid.ai/internal/sim/grid"
	"chronogrid.ai/internal/sim/timeline"
)

type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusPlaying   Status = "PLAYING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
)

// Session is the runtime state of one level attempt. It exists from
// StartLevel until LeaveLevel; ResetLevel replaces it.
type Session struct {
	ID        string `json:"id"`
	LevelID   string `json:"level_id"`
	Status    Status `json:"status"`
	Reversing bool   `json:"reversing"`
	Moves     int    `json:"moves"`
}

// IsPlaying reports whether a level attempt is in progress (paused or not).
func (s Session) IsPlaying() bool { return s.Status == StatusPlaying || s.Status == StatusPaused }
func (s Session) IsPaused() bool  { return s.Status == StatusPaused }

// Progress is the per-level result that survives sessions. Completed and
// Stars only ever increase.
type Progress struct {
	LevelID   string `json:"level_id"`
	Completed bool   `json:"completed"`
	Stars     int    `json:"stars"`
	BestMoves int    `json:"best_moves,omitempty"`
}

type LevelStatus struct {
	Def      catalogs.LevelDef
	Progress Progress
}

// RunRecord summarizes a completed session.
type RunRecord struct {
	SessionID   string    `json:"session_id"`
	LevelID     string    `json:"level_id"`
	Moves       int       `json:"moves"`
	Stars       int       `json:"stars"`
	Events      int       `json:"events"`
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completed_at"`
}

// ProgressSink persists level progress. Implemented in internal/persistence/progressdb.
type ProgressSink interface {
	SaveProgress(p Progress) error
	RecordRun(r RunRecord)
}

// Listener receives engine notifications. Calls happen synchronously on the
// goroutine driving the engine and must not call back into it.
type Listener interface {
	OnAppend(ev timeline.Event)
	// OnSeek follows every cursor move; reversed is set only for Reverse.
	OnSeek(cursor, length int, reversed bool)
	OnComplete(levelID string, stars, score int)
}

// Result is the outcome of a command. Code is empty when the command was accepted.
type Result struct {
	Code  string
	Event *timeline.Event
}

func (r Result) OK() bool { return r.Code == "" }

func rejected(code string) Result { return Result{Code: code} }

// View is an immutable copy of everything a renderer needs.
type View struct {
	Session  Session
	Level    catalogs.LevelDef
	Grid     grid.State
	Cursor   int
	Len      int
	Score    int
	Pending  int
	GameTime time.Duration
	Digest   string
	Levels   []LevelStatus
}
