package engine

import (
	"fmt"
	"io"
	"log"
	"time"

	"chronogrid.ai/internal/sim/cascade"
	"chronogrid.ai/internal/sim/catalogs"
	"chronogrid.ai/internal/sim/grid"
	"chronogrid.ai/internal/sim/timeline"
	"chronogrid.ai/internal/sim/tuning"
)

type Config struct {
	Tuning  tuning.Tuning
	Catalog *catalogs.Catalog

	// Progress loaded from storage, keyed by level id (optional).
	Progress map[string]Progress
	// Sink receives progress on every completion (optional).
	Sink ProgressSink
	// Logger defaults to a discarding logger.
	Logger *log.Logger
}

// Engine owns the level catalogue progress, the active session and its
// timeline. Grid state is always rebuilt from the applied prefix of the
// timeline; nothing else feeds it.
//
// Engine is not safe for concurrent use; drive it from one goroutine (see Runner).
type Engine struct {
	tune   tuning.Tuning
	cat    *catalogs.Catalog
	goals  map[string]catalogs.Predicate
	sink   ProgressSink
	logger *log.Logger

	progress  map[string]Progress
	score     int
	listeners []Listener

	session *Session
	level   catalogs.LevelDef
	tl      *timeline.Timeline
	grid    grid.State
	queue   *cascade.Queue

	// gameNow advances only while PLAYING; cascade due times use it.
	// realNow advances on every Advance and drives transient UI flags.
	gameNow        time.Duration
	realNow        time.Duration
	reversingUntil time.Duration
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	if cfg.Catalog == nil || len(cfg.Catalog.Levels) == 0 {
		return nil, fmt.Errorf("empty level catalogue")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	e := &Engine{
		tune:     cfg.Tuning,
		cat:      cfg.Catalog,
		goals:    make(map[string]catalogs.Predicate, len(cfg.Catalog.Levels)),
		sink:     cfg.Sink,
		logger:   logger,
		progress: make(map[string]Progress, len(cfg.Catalog.Levels)),
		tl:       timeline.New(),
		queue:    cascade.NewQueue(),
	}
	for _, l := range cfg.Catalog.Levels {
		w, h := e.dims(l)
		if err := l.Goal.Check(w, h, e.tune.MaxCellValue); err != nil {
			return nil, fmt.Errorf("level %s: %w", l.ID, err)
		}
		e.goals[l.ID] = l.Goal.Predicate()
		p := cfg.Progress[l.ID]
		p.LevelID = l.ID
		e.progress[l.ID] = p
	}
	return e, nil
}

func (e *Engine) AddListener(l Listener) {
	if l != nil {
		e.listeners = append(e.listeners, l)
	}
}

// SetGoal replaces the win predicate of a level.
func (e *Engine) SetGoal(levelID string, pred catalogs.Predicate) bool {
	if _, ok := e.cat.Get(levelID); !ok || pred == nil {
		return false
	}
	e.goals[levelID] = pred
	return true
}

func (e *Engine) Tuning() tuning.Tuning       { return e.tune }
func (e *Engine) Catalog() *catalogs.Catalog  { return e.cat }
func (e *Engine) Cursor() int                 { return e.tl.Cursor() }
func (e *Engine) Len() int                    { return e.tl.Len() }
func (e *Engine) Events() []timeline.Event    { return e.tl.Events() }
func (e *Engine) Score() int                  { return e.score }
func (e *Engine) GameTime() time.Duration     { return e.gameNow }
func (e *Engine) Pending() []cascade.Task     { return e.queue.Pending() }
func (e *Engine) Grid() grid.State            { return e.grid.Clone() }
func (e *Engine) Level() catalogs.LevelDef    { return e.level }
func (e *Engine) Progress(id string) Progress { return e.progress[id] }

func (e *Engine) Moves() int {
	if e.session == nil {
		return 0
	}
	return e.session.Moves
}

// Session returns a copy of the active session, or an IDLE zero session.
func (e *Engine) Session() Session {
	if e.session == nil {
		return Session{Status: StatusIdle}
	}
	return *e.session
}

func (e *Engine) Levels() []LevelStatus {
	out := make([]LevelStatus, 0, len(e.cat.Levels))
	for _, l := range e.cat.Levels {
		out = append(out, LevelStatus{Def: l, Progress: e.progress[l.ID]})
	}
	return out
}

// storedProgress copies the progress of every level that has any.
func (e *Engine) storedProgress() map[string]Progress {
	out := map[string]Progress{}
	for id, p := range e.progress {
		if p.Completed || p.Stars > 0 || p.BestMoves > 0 {
			out[id] = p
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (e *Engine) View() View {
	return View{
		Session:  e.Session(),
		Level:    e.level,
		Grid:     e.grid.Clone(),
		Cursor:   e.tl.Cursor(),
		Len:      e.tl.Len(),
		Score:    e.score,
		Pending:  e.queue.Len(),
		GameTime: e.gameNow,
		Digest:   e.Digest(),
		Levels:   e.Levels(),
	}
}

func (e *Engine) dims(l catalogs.LevelDef) (int, int) {
	w, h := l.Width, l.Height
	if w <= 0 {
		w = e.tune.GridWidth
	}
	if h <= 0 {
		h = e.tune.GridHeight
	}
	return w, h
}

// rebuild replays the applied prefix from scratch.
func (e *Engine) rebuild() {
	e.grid = grid.Reconstruct(e.grid.W, e.grid.H, e.tune.MaxCellValue, e.tl.Applied(), e.tl.Cursor())
}

func (e *Engine) active() bool {
	return e.session != nil
}

func (e *Engine) playing() bool {
	return e.session != nil && e.session.Status == StatusPlaying
}

func (e *Engine) notifyAppend(ev timeline.Event) {
	for _, l := range e.listeners {
		l.OnAppend(ev)
	}
}

// notifySeek reports a cursor move; reversed is true only for Reverse.
func (e *Engine) notifySeek(reversed bool) {
	for _, l := range e.listeners {
		l.OnSeek(e.tl.Cursor(), e.tl.Len(), reversed)
	}
}

func (e *Engine) notifyComplete(levelID string, stars int) {
	for _, l := range e.listeners {
		l.OnComplete(levelID, stars, e.score)
	}
}
