package engine

import (
	"time"
)

const pointsPerStar = 100

// checkWin completes the level when its goal holds. Only a PLAYING session
// can win, so the completion fires at most once per session.
func (e *Engine) checkWin() {
	if !e.playing() {
		return
	}
	pred := e.goals[e.level.ID]
	if pred == nil || !pred(e.grid) {
		return
	}
	e.CompleteLevel(e.level.Stars.Stars(e.session.Moves))
}

// CompleteLevel marks the active level completed with the given star rating
// (clamped to 1..3), adds to the score and persists progress. Stars recorded
// for a level never decrease. It reports false, changing nothing, unless the
// session is PLAYING.
func (e *Engine) CompleteLevel(stars int) bool {
	if !e.playing() {
		assertf(e.logger, "CompleteLevel(%d) with session %s", stars, e.Session().Status)
		return false
	}
	if stars < 1 {
		stars = 1
	}
	if stars > 3 {
		stars = 3
	}

	id := e.level.ID
	moves := e.session.Moves
	p := e.progress[id]
	p.LevelID = id
	p.Completed = true
	if stars > p.Stars {
		p.Stars = stars
	}
	if moves > 0 && (p.BestMoves == 0 || moves < p.BestMoves) {
		p.BestMoves = moves
	}
	e.progress[id] = p
	e.score += stars * pointsPerStar

	e.session.Status = StatusCompleted
	dropped := e.queue.Clear()
	e.logger.Printf("complete level=%s session=%s moves=%d stars=%d best_stars=%d score=%d dropped_tasks=%d",
		id, e.session.ID, moves, stars, p.Stars, e.score, dropped)

	if e.sink != nil {
		if err := e.sink.SaveProgress(p); err != nil {
			e.logger.Printf("progress save level=%s: %v", id, err)
		}
		e.sink.RecordRun(RunRecord{
			SessionID:   e.session.ID,
			LevelID:     id,
			Moves:       moves,
			Stars:       stars,
			Events:      e.tl.Len(),
			Score:       e.score,
			CompletedAt: time.Now().UTC(),
		})
	}
	e.notifyComplete(id, stars)
	return true
}
