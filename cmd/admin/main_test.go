package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chronogrid.ai/internal/sim/catalogs"
	"chronogrid.ai/internal/sim/engine"
)

func TestPrintLevels_ShowsProgress(t *testing.T) {
	cat, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	var out bytes.Buffer
	printLevels(&out, cat, map[string]engine.Progress{
		"L02": {LevelID: "L02", Completed: true, Stars: 2, BestMoves: 11},
	})
	s := out.String()
	if !strings.Contains(s, "4x4") || !strings.Contains(s, "11 moves") || !strings.Contains(s, "**") {
		t.Fatalf("output:\n%s", s)
	}
	if !strings.Contains(s, "1 of 5 levels completed") {
		t.Fatalf("summary missing:\n%s", s)
	}
}

func TestPrintRuns(t *testing.T) {
	var out bytes.Buffer
	printRuns(&out, nil)
	if !strings.Contains(out.String(), "no runs") {
		t.Fatalf("empty output=%q", out.String())
	}
	out.Reset()
	printRuns(&out, []engine.RunRecord{{
		SessionID:   "0123456789abcdef",
		LevelID:     "L03",
		Moves:       14,
		Stars:       3,
		Events:      1200,
		Score:       4500,
		CompletedAt: time.Now().Add(-2 * time.Hour),
	}})
	s := out.String()
	for _, want := range []string{"L03", "***", "1,200", "4,500", "01234567", "2 hours ago"} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %q in:\n%s", want, s)
		}
	}
}

func TestListJournals_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"journal-20260101-000000.jsonl.zst", "journal-20260102-000000.jsonl.zst", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, 2048), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	var out bytes.Buffer
	if err := listJournals(&out, dir); err != nil {
		t.Fatalf("listJournals: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "journal-20260102") || !strings.Contains(lines[0], "2.0 kB") {
		t.Fatalf("output:\n%s", out.String())
	}
}
