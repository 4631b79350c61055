package engine

import (
	"context"
	"time"

	"chronogrid.ai/internal/protocol"
)

// Frame is what the Runner publishes after every change: the engine view
// plus the outcome of the last command.
type Frame struct {
	View
	LastCmd  string
	LastCode string
}

// Runner owns an Engine on a single goroutine. Commands arrive on a channel,
// a ticker drives Advance with the measured wall-clock delta, and the latest
// Frame is published on a 1-slot channel (older frames are dropped).
type Runner struct {
	rec      *Recorder
	interval time.Duration

	inbox  chan protocol.Command
	frames chan Frame
	stop   chan struct{}

	lastCmd  string
	lastCode string
}

func NewRunner(e *Engine, j Journal) *Runner {
	return &Runner{
		rec:      NewRecorder(e, j),
		interval: e.Tuning().TickInterval(),
		inbox:    make(chan protocol.Command, 64),
		frames:   make(chan Frame, 1),
		stop:     make(chan struct{}),
	}
}

// Submit queues a command. It reports false when the inbox is full.
func (r *Runner) Submit(cmd protocol.Command) bool {
	select {
	case r.inbox <- cmd:
		return true
	default:
		return false
	}
}

func (r *Runner) Frames() <-chan Frame { return r.frames }

func (r *Runner) Stop() { close(r.stop) }

// Run blocks until ctx is done or Stop is called. The engine must not be
// touched by anyone else while Run is active.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer r.rec.Flush()

	e := r.rec.Engine()
	last := time.Now()
	lastDigest := ""
	lastReversing := false
	r.publish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			return nil
		case cmd := <-r.inbox:
			res := r.rec.Apply(cmd)
			r.lastCmd = cmd.Type
			r.lastCode = res.Code
			if res.Code != "" && res.Code != protocol.ErrNoOp {
				e.logger.Printf("command %s rejected: %s", cmd, res.Code)
			}
			r.publish()
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			r.rec.Advance(dt)
			s := e.Session()
			d := e.Digest()
			if d != lastDigest || s.Reversing != lastReversing {
				lastDigest = d
				lastReversing = s.Reversing
				r.publish()
			}
		}
	}
}

func (r *Runner) publish() {
	sendLatest(r.frames, Frame{
		View:     r.rec.Engine().View(),
		LastCmd:  r.lastCmd,
		LastCode: r.lastCode,
	})
}

func sendLatest(ch chan Frame, f Frame) {
	select {
	case ch <- f:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- f:
	default:
	}
}
