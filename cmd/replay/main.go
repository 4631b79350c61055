package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	plog "chronogrid.ai/internal/persistence/log"
	"chronogrid.ai/internal/sim/catalogs"
	"chronogrid.ai/internal/sim/engine"
	"chronogrid.ai/internal/sim/grid"
	"chronogrid.ai/internal/sim/tuning"
)

func main() {
	var (
		scriptPath  = flag.String("script", "", "command script (.jsonl or .jsonl.zst) to run headless")
		journalPath = flag.String("journal", "", "recorded journal (.jsonl.zst) to re-execute and verify")
		tuningPath  = flag.String("tuning", "", "tuning.yaml for -script (journals carry their own)")
		levelsPath  = flag.String("levels", "", "levels.json or directory (default: built-in)")
		allowDrift  = flag.Bool("allow_catalog_drift", false, "verify even if the level catalogue digest differs from the journal header")
		verbose     = flag.Bool("v", false, "log every command")
	)
	flag.Parse()

	if (*scriptPath == "") == (*journalPath == "") {
		fmt.Fprintln(os.Stderr, "need exactly one of -script or -journal")
		os.Exit(2)
	}

	cat, err := catalogs.Load(*levelsPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load levels:", err)
		os.Exit(1)
	}
	var logOut io.Writer = io.Discard
	if *verbose {
		logOut = os.Stderr
	}
	logger := log.New(logOut, "[replay] ", 0)

	if *scriptPath != "" {
		tune, err := tuning.LoadWithEnv(*tuningPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		if err := runScript(os.Stdout, *scriptPath, tune, cat, logger); err != nil {
			fmt.Fprintln(os.Stderr, "script:", err)
			os.Exit(1)
		}
		return
	}

	checked, err := verifyJournal(os.Stdout, *journalPath, cat, *allowDrift, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d entries\n", checked)
}

func runScript(out io.Writer, path string, tune tuning.Tuning, cat *catalogs.Catalog, logger *log.Logger) error {
	cmds, err := plog.ReadCommands(path)
	if err != nil {
		return err
	}
	e, err := engine.New(engine.Config{Tuning: tune, Catalog: cat, Logger: logger})
	if err != nil {
		return err
	}
	rejected := 0
	for _, c := range cmds {
		res := e.Dispatch(c)
		if !res.OK() {
			rejected++
		}
		logger.Printf("%s -> code=%q cursor=%d len=%d", c, res.Code, e.Cursor(), e.Len())
	}

	s := e.Session()
	fmt.Fprintf(out, "commands=%d rejected=%d level=%s status=%s moves=%d score=%d cursor=%d len=%d\n",
		len(cmds), rejected, s.LevelID, s.Status, s.Moves, e.Score(), e.Cursor(), e.Len())
	printRows(out, e.Grid())
	fmt.Fprintf(out, "digest=%s\n", e.Digest())
	return nil
}

func printRows(out io.Writer, g grid.State) {
	for _, row := range g.Rows() {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(out, strings.Join(parts, " "))
	}
}

// verifyJournal builds an engine from the journal header and checks every
// entry. The last grid the journal recorded is printed to out.
func verifyJournal(out io.Writer, path string, cat *catalogs.Catalog, allowDrift bool, logger *log.Logger) (int, error) {
	var v *engine.Verifier
	err := plog.ReadJournal(path, func(entry engine.JournalEntry) error {
		if entry.Header != nil {
			if v != nil {
				return fmt.Errorf("second header at seq %d", entry.Seq)
			}
			h := entry.Header
			if h.CatalogDigest != cat.Digest && !allowDrift {
				return fmt.Errorf("level catalogue digest %s differs from journal %s", cat.Digest, h.CatalogDigest)
			}
			e, err := engine.New(engine.Config{Tuning: h.Tuning, Catalog: cat, Progress: h.Progress, Logger: logger})
			if err != nil {
				return err
			}
			v = engine.NewVerifier(e)
			return nil
		}
		if v == nil {
			return fmt.Errorf("journal has no header")
		}
		if err := v.Step(entry); err != nil {
			return err
		}
		logger.Printf("seq=%d %s ok cursor=%d len=%d", entry.Seq, entry.Cmd, entry.Cursor, entry.Len)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, fmt.Errorf("empty journal")
	}
	if g, ok := v.LastGrid(); ok {
		fmt.Fprintf(out, "recorded grid %dx%d:\n", g.W, g.H)
		printRows(out, g)
	}
	return v.Checked(), nil
}
