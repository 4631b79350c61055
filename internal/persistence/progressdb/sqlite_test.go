package progressdb

import (
	"path/filepath"
	"testing"
	"time"

	"chronogrid.ai/internal/sim/catalogs"
	"chronogrid.ai/internal/sim/engine"
	"chronogrid.ai/internal/sim/tuning"
)

func TestProgress_UpsertNeverLowersStars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.sqlite")
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	steps := []engine.Progress{
		{LevelID: "L01", Completed: true, Stars: 1, BestMoves: 30},
		{LevelID: "L01", Completed: true, Stars: 3, BestMoves: 12},
		{LevelID: "L01", Completed: true, Stars: 2, BestMoves: 20},
		{LevelID: "L02", Completed: true, Stars: 2},
	}
	for _, p := range steps {
		if err := db.SaveProgress(p); err != nil {
			t.Fatalf("save %+v: %v", p, err)
		}
	}
	got, err := db.LoadProgress()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p := got["L01"]; !p.Completed || p.Stars != 3 || p.BestMoves != 12 {
		t.Fatalf("L01=%+v", p)
	}
	if p := got["L02"]; p.Stars != 2 || p.BestMoves != 0 {
		t.Fatalf("L02=%+v", p)
	}

	n, err := db.ResetProgress("L02")
	if err != nil || n != 1 {
		t.Fatalf("reset L02: n=%d err=%v", n, err)
	}
	got, _ = db.LoadProgress()
	if _, ok := got["L02"]; ok || len(got) != 1 {
		t.Fatalf("after reset: %+v", got)
	}
}

func TestRuns_WrittenByBackgroundWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.sqlite")
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		db.RecordRun(engine.RunRecord{
			SessionID:   string(rune('a' + i)),
			LevelID:     "L01",
			Moves:       10 + i,
			Stars:       3,
			Events:      20,
			Score:       300 * (i + 1),
			CompletedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	db.RecordRun(engine.RunRecord{SessionID: "z", LevelID: "L03", Stars: 1, CompletedAt: base})
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	runs, err := db.Runs("L01", 3)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 3 || runs[0].SessionID != "e" || runs[0].Moves != 14 || !runs[0].CompletedAt.Equal(base.Add(4*time.Minute)) {
		t.Fatalf("runs=%+v", runs)
	}
	all, _ := db.Runs("", 100)
	if len(all) != 6 {
		t.Fatalf("all runs=%d want 6", len(all))
	}
}

func TestEngineCompletion_PersistsViaSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.sqlite")
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cat, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if err := db.UpsertCatalog(cat, tuning.Defaults()); err != nil {
		t.Fatalf("upsert catalog: %v", err)
	}
	if d, _ := db.CatalogDigest("levels"); d != cat.Digest {
		t.Fatalf("levels digest=%q want %q", d, cat.Digest)
	}

	e, err := engine.New(engine.Config{Tuning: tuning.Defaults(), Catalog: cat, Sink: db})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	e.StartLevel("L02")
	e.CompleteLevel(2)
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	progress, err := db.LoadProgress()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p := progress["L02"]; !p.Completed || p.Stars != 2 {
		t.Fatalf("L02=%+v", p)
	}
	runs, _ := db.Runs("L02", 10)
	if len(runs) != 1 || runs[0].Stars != 2 {
		t.Fatalf("runs=%+v", runs)
	}

	e2, err := engine.New(engine.Config{Tuning: tuning.Defaults(), Catalog: cat, Progress: progress})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if e2.Progress("L02").Stars != 2 {
		t.Fatalf("progress not restored into a new engine")
	}
}
