package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"chronogrid.ai/internal/persistence/progressdb"
	"chronogrid.ai/internal/sim/engine"
)

func openDB(dataDir string) *progressdb.DB {
	path := filepath.Join(dataDir, "progress.sqlite")
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "no progress db:", err)
		os.Exit(1)
	}
	db, err := progressdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open db:", err)
		os.Exit(1)
	}
	return db
}

func runsCmd(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	level := fs.String("level", "", "filter by level id (optional)")
	limit := fs.Int("limit", 20, "max rows")
	_ = fs.Parse(args)

	db := openDB(*dataDir)
	defer db.Close()
	runs, err := db.Runs(*level, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query runs:", err)
		os.Exit(1)
	}
	printRuns(os.Stdout, runs)
}

func printRuns(out io.Writer, runs []engine.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tLEVEL\tSTARS\tMOVES\tEVENTS\tSCORE\tSESSION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			humanize.Time(r.CompletedAt), r.LevelID, stars(r.Stars), r.Moves,
			humanize.Comma(int64(r.Events)), humanize.Comma(int64(r.Score)), shortID(r.SessionID))
	}
	_ = tw.Flush()
}

func resetCmd(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	level := fs.String("level", "", "level id to reset")
	all := fs.Bool("all", false, "reset every level")
	_ = fs.Parse(args)

	if strings.TrimSpace(*level) == "" && !*all {
		fmt.Fprintln(os.Stderr, "need -level or -all")
		os.Exit(2)
	}
	if *all {
		*level = ""
	}
	db := openDB(*dataDir)
	defer db.Close()
	n, err := db.ResetProgress(*level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reset:", err)
		os.Exit(1)
	}
	fmt.Printf("reset %d level(s)\n", n)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
