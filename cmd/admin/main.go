package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"chronogrid.ai/internal/persistence/progressdb"
	"chronogrid.ai/internal/sim/catalogs"
	"chronogrid.ai/internal/sim/engine"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "levels":
			levelsCmd(os.Args[2:])
			return
		case "runs":
			runsCmd(os.Args[2:])
			return
		case "reset":
			resetCmd(os.Args[2:])
			return
		case "validate":
			validateCmd(os.Args[2:])
			return
		case "journals":
			journalsCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin levels|runs|reset|validate|journals [flags]")
	os.Exit(2)
}

func levelsCmd(args []string) {
	fs := flag.NewFlagSet("levels", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	levelsPath := fs.String("levels", "", "levels.json or directory (default: built-in)")
	_ = fs.Parse(args)

	cat, err := catalogs.Load(*levelsPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load levels:", err)
		os.Exit(1)
	}
	progress := map[string]engine.Progress{}
	dbPath := filepath.Join(*dataDir, "progress.sqlite")
	if _, err := os.Stat(dbPath); err == nil {
		db, err := progressdb.OpenSQLite(dbPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open db:", err)
			os.Exit(1)
		}
		defer db.Close()
		if progress, err = db.LoadProgress(); err != nil {
			fmt.Fprintln(os.Stderr, "load progress:", err)
			os.Exit(1)
		}
	}
	printLevels(os.Stdout, cat, progress)
}

func printLevels(out io.Writer, cat *catalogs.Catalog, progress map[string]engine.Progress) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tGOAL\tSTARS\tBEST")
	done := 0
	for _, l := range cat.Levels {
		p := progress[l.ID]
		size := "default"
		if l.Width > 0 && l.Height > 0 {
			size = fmt.Sprintf("%dx%d", l.Width, l.Height)
		}
		best := "-"
		if p.BestMoves > 0 {
			best = fmt.Sprintf("%d moves", p.BestMoves)
		}
		if p.Completed {
			done++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", l.ID, l.Name, size, l.Goal.Describe(), stars(p.Stars), best)
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "%d of %d levels completed (catalogue %s)\n", done, len(cat.Levels), shortDigest(cat.Digest))
}

func validateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: admin validate <levels.json|dir> ...")
		os.Exit(2)
	}
	failed := false
	for _, p := range fs.Args() {
		cat, err := catalogs.Load(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", p, err)
			failed = true
			continue
		}
		fmt.Printf("%s: ok, %s levels, digest %s\n", p, humanize.Comma(int64(len(cat.Levels))), shortDigest(cat.Digest))
	}
	if failed {
		os.Exit(1)
	}
}

func journalsCmd(args []string) {
	fs := flag.NewFlagSet("journals", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	if err := listJournals(os.Stdout, filepath.Join(*dataDir, "journals")); err != nil {
		fmt.Fprintln(os.Stderr, "journals:", err)
		os.Exit(1)
	}
}

func listJournals(out io.Writer, dir string) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	type row struct {
		name string
		info os.FileInfo
	}
	var rows []row
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl.zst") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		rows = append(rows, row{name: e.Name(), info: info})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name > rows[j].name })
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.name, humanize.Bytes(uint64(r.info.Size())), humanize.Time(r.info.ModTime()))
	}
	return tw.Flush()
}

func stars(n int) string {
	if n <= 0 {
		return "-"
	}
	return strings.Repeat("*", n)
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
