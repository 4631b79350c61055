package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gdamore/tcell/v2"

	"chronogrid.ai/internal/feedback"
	plog "chronogrid.ai/internal/persistence/log"
	"chronogrid.ai/internal/persistence/progressdb"
	"chronogrid.ai/internal/protocol"
	"chronogrid.ai/internal/sim/catalogs"
	"chronogrid.ai/internal/sim/engine"
	"chronogrid.ai/internal/sim/tuning"
)

func main() {
	var (
		tuningPath = flag.String("tuning", "", "tuning.yaml (optional; CHRONOGRID_* env overrides apply)")
		levelsPath = flag.String("levels", "", "levels.json or a directory with levels.json + levels.d/ (default: built-in)")
		dataDir    = flag.String("data", "./data", "directory for progress.sqlite, journals and play.log")
		levelID    = flag.String("level", "", "start this level immediately")
		sound      = flag.Bool("sound", true, "play sound cues")
		journal    = flag.Bool("journal", true, "record a command journal under <data>/journals")
		debug      = flag.Bool("debug", false, "write a debug log to <data>/play.log")
	)
	flag.Parse()

	tune, err := tuning.LoadWithEnv(*tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	cat, err := catalogs.Load(*levelsPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load levels:", err)
		os.Exit(1)
	}
	if *levelID != "" {
		if _, ok := cat.Get(*levelID); !ok {
			fmt.Fprintln(os.Stderr, "unknown level:", *levelID)
			os.Exit(2)
		}
	}
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "data dir:", err)
		os.Exit(1)
	}

	// The screen owns stdout; logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if *debug {
		f, err := os.OpenFile(filepath.Join(*dataDir, "play.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "debug log:", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger := log.New(logOut, "[play] ", log.LstdFlags|log.Lmicroseconds)

	db, err := progressdb.OpenSQLite(filepath.Join(*dataDir, "progress.sqlite"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open progress db:", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.UpsertCatalog(cat, tune); err != nil {
		logger.Printf("upsert catalog: %v", err)
	}
	progress, err := db.LoadProgress()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load progress:", err)
		os.Exit(1)
	}

	e, err := engine.New(engine.Config{
		Tuning:   tune,
		Catalog:  cat,
		Progress: progress,
		Sink:     db,
		Logger:   log.New(logOut, "[engine] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "engine:", err)
		os.Exit(1)
	}

	if *sound {
		p, err := feedback.InitSpeaker()
		if err != nil {
			// Non-fatal, the game runs without sound.
			logger.Printf("audio init failed: %v", err)
		} else {
			e.AddListener(feedback.NewSound(p))
		}
	}

	var j engine.Journal
	if *journal {
		jl := plog.NewJournalLogger(*dataDir, time.Now())
		defer jl.Close()
		logger.Printf("journal: %s", jl.Path())
		j = jl
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintln(os.Stderr, "screen:", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "screen init:", err)
		os.Exit(1)
	}
	defer screen.Fini()

	runner := engine.NewRunner(e, j)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	if *levelID != "" {
		runner.Submit(protocol.Start(*levelID))
	}

	run(screen, newUI(screen, cat), runner, logger)
	cancel()
	if err := <-done; err != nil && err != context.Canceled {
		logger.Printf("runner: %v", err)
	}
}

// run is the host loop: terminal events come from a polling goroutine,
// frames from the runner; a ticker redraws so transient flags fade.
func run(screen tcell.Screen, u *ui, runner *engine.Runner, logger *log.Logger) {
	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	redraw := time.NewTicker(50 * time.Millisecond)
	defer redraw.Stop()

	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				cmds, quit := u.handleKey(ev)
				if quit {
					return
				}
				for _, c := range cmds {
					if !runner.Submit(c) {
						logger.Printf("input dropped: %s", c)
					}
				}
				u.draw()
			case *tcell.EventResize:
				screen.Sync()
				u.draw()
			}
		case f := <-runner.Frames():
			u.setFrame(f)
		case <-redraw.C:
			u.draw()
		}
	}
}
