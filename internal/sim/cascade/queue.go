package cascade

import (
	"container/heap"
	"time"

	"chronogrid.ai/internal/sim/timeline"
)

// Task is one pending cascade step: at Due (game time since session start)
// the Target cell is bumped on behalf of From. CauseID names the event that
// scheduled the step; if that event is no longer applied the step is dropped.
type Task struct {
	Due     time.Duration
	Seq     uint64
	Target  timeline.Pos
	From    timeline.Pos
	CauseID string
}

// Queue orders tasks by (Due, Seq). Seq is the scheduling order, so two tasks
// due at the same time fire in the order they were scheduled.
type Queue struct {
	h   taskHeap
	seq uint64
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Schedule(due time.Duration, target, from timeline.Pos, causeID string) Task {
	q.seq++
	t := Task{Due: due, Seq: q.seq, Target: target, From: from, CauseID: causeID}
	heap.Push(&q.h, t)
	return t
}

// PopDue removes and returns the earliest task whose Due <= now.
func (q *Queue) PopDue(now time.Duration) (Task, bool) {
	if len(q.h) == 0 || q.h[0].Due > now {
		return Task{}, false
	}
	return heap.Pop(&q.h).(Task), true
}

func (q *Queue) Peek() (Task, bool) {
	if len(q.h) == 0 {
		return Task{}, false
	}
	return q.h[0], true
}

func (q *Queue) Len() int { return len(q.h) }

// Clear drops every pending task and returns how many were dropped.
func (q *Queue) Clear() int {
	n := len(q.h)
	q.h = q.h[:0]
	return n
}

// Prune removes every task for which keep reports false and returns how
// many were removed.
func (q *Queue) Prune(keep func(Task) bool) int {
	kept := q.h[:0]
	for _, t := range q.h {
		if keep(t) {
			kept = append(kept, t)
		}
	}
	n := len(q.h) - len(kept)
	for i := len(kept); i < len(q.h); i++ {
		q.h[i] = Task{}
	}
	q.h = kept
	heap.Init(&q.h)
	return n
}

// Pending returns the queued tasks in firing order.
func (q *Queue) Pending() []Task {
	cp := make(taskHeap, len(q.h))
	copy(cp, q.h)
	out := make([]Task, 0, len(cp))
	for len(cp) > 0 {
		out = append(out, heap.Pop(&cp).(Task))
	}
	return out
}

type taskHeap []Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Due != h[j].Due {
		return h[i].Due < h[j].Due
	}
	return h[i].Seq < h[j].Seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}
