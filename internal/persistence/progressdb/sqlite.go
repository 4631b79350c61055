package progressdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"chronogrid.ai/internal/sim/catalogs"
	"chronogrid.ai/internal/sim/engine"
	"chronogrid.ai/internal/sim/tuning"
)

// DB stores level progress and completed runs. Progress writes are
// synchronous (they are rare and must not be lost); run records go through
// a buffered writer goroutine that batches them into transactions.
// DB implements engine.ProgressSink.
type DB struct {
	db *sql.DB

	ch   chan engine.RunRecord
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Int64
}

// tsLayout is fixed-width so timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func OpenSQLite(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &DB{
		db: db,
		ch: make(chan engine.RunRecord, 1024),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS progress (
			level_id TEXT PRIMARY KEY,
			completed INTEGER NOT NULL,
			stars INTEGER NOT NULL,
			best_moves INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			session_id TEXT PRIMARY KEY,
			level_id TEXT NOT NULL,
			moves INTEGER NOT NULL,
			stars INTEGER NOT NULL,
			events INTEGER NOT NULL,
			score INTEGER NOT NULL,
			completed_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_level_completed ON runs(level_id, completed_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped counts run records discarded because the writer fell behind.
func (s *DB) Dropped() int64 { return s.dropped.Load() }

// SaveProgress merges p into the stored row: completed and stars only ever
// rise, best_moves only ever falls (0 means unset).
func (s *DB) SaveProgress(p engine.Progress) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	if p.LevelID == "" {
		return fmt.Errorf("progress without level id")
	}
	_, err := s.db.Exec(`INSERT INTO progress(level_id,completed,stars,best_moves,updated_at) VALUES(?,?,?,?,?)
		ON CONFLICT(level_id) DO UPDATE SET
			completed = MAX(progress.completed, excluded.completed),
			stars = MAX(progress.stars, excluded.stars),
			best_moves = CASE
				WHEN progress.best_moves = 0 THEN excluded.best_moves
				WHEN excluded.best_moves = 0 THEN progress.best_moves
				ELSE MIN(progress.best_moves, excluded.best_moves)
			END,
			updated_at = excluded.updated_at`,
		p.LevelID, boolInt(p.Completed), p.Stars, p.BestMoves, time.Now().UTC().Format(tsLayout))
	return err
}

func (s *DB) LoadProgress() (map[string]engine.Progress, error) {
	rows, err := s.db.Query(`SELECT level_id, completed, stars, best_moves FROM progress`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]engine.Progress{}
	for rows.Next() {
		var p engine.Progress
		var completed int
		if err := rows.Scan(&p.LevelID, &completed, &p.Stars, &p.BestMoves); err != nil {
			return nil, err
		}
		p.Completed = completed != 0
		out[p.LevelID] = p
	}
	return out, rows.Err()
}

// ResetProgress deletes progress for one level, or for all levels when
// levelID is empty. It returns the number of rows removed.
func (s *DB) ResetProgress(levelID string) (int64, error) {
	var res sql.Result
	var err error
	if levelID == "" {
		res, err = s.db.Exec(`DELETE FROM progress`)
	} else {
		res, err = s.db.Exec(`DELETE FROM progress WHERE level_id = ?`, levelID)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordRun queues a run row. It never blocks; when the queue is full the
// record is dropped (the journal stays the source of truth).
func (s *DB) RecordRun(r engine.RunRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

// Runs returns the most recent runs, newest first. levelID filters when non-empty.
func (s *DB) Runs(levelID string, limit int) ([]engine.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT session_id, level_id, moves, stars, events, score, completed_at FROM runs`
	args := []any{}
	if levelID != "" {
		q += ` WHERE level_id = ?`
		args = append(args, levelID)
	}
	q += ` ORDER BY completed_at DESC, session_id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engine.RunRecord
	for rows.Next() {
		var r engine.RunRecord
		var at string
		if err := rows.Scan(&r.SessionID, &r.LevelID, &r.Moves, &r.Stars, &r.Events, &r.Score, &at); err != nil {
			return nil, err
		}
		r.CompletedAt, _ = time.Parse(tsLayout, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertCatalog stores the level catalogue and tuning actually in use, so
// a progress db can be matched to the content that produced it.
func (s *DB) UpsertCatalog(cat *catalogs.Catalog, tune tuning.Tuning) error {
	if s == nil || cat == nil {
		return nil
	}
	now := time.Now().UTC().Format(tsLayout)

	levels, err := json.Marshal(cat.Levels)
	if err != nil {
		return err
	}
	tb, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(tb)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	if _, err := stmt.Exec("levels", cat.Digest, string(levels), now); err != nil {
		return err
	}
	if _, err := stmt.Exec("tuning", hex.EncodeToString(sum[:]), string(tb), now); err != nil {
		return err
	}
	return tx.Commit()
}

// CatalogDigest returns the stored digest for name ("levels" or "tuning").
func (s *DB) CatalogDigest(name string) (string, error) {
	var d string
	err := s.db.QueryRow(`SELECT digest FROM catalogs WHERE name = ?`, name).Scan(&d)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return d, err
}

func (s *DB) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(session_id,level_id,moves,stars,events,score,completed_at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertRun != nil {
			_ = insertRun.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		commitEvery   = 64
		commitMaxWait = time.Second
	)
	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
	}

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			begin()
			if tx == nil || insertRun == nil {
				s.dropped.Add(1)
				continue
			}
			at := r.CompletedAt
			if at.IsZero() {
				at = time.Now()
			}
			if _, err := tx.Stmt(insertRun).Exec(r.SessionID, r.LevelID, r.Moves, r.Stars, r.Events, r.Score, at.UTC().Format(tsLayout)); err != nil {
				_ = tx.Rollback()
				tx = nil
				s.dropped.Add(1)
				continue
			}
			opCount++
			if opCount >= commitEvery {
				commit()
			}
		case <-ticker.C:
			commit()
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
