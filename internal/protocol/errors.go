package protocol

const (
	// Input validation.
	ErrBadRequest = "E_BAD_REQUEST"

	// Session state.
	ErrNotPlaying    = "E_NOT_PLAYING"
	ErrPaused        = "E_PAUSED"
	ErrLevelNotFound = "E_LEVEL_NOT_FOUND"

	// Interaction rules.
	ErrOutOfBounds = "E_OUT_OF_BOUNDS"
	ErrSaturated   = "E_SATURATED"
	ErrBudget      = "E_BUDGET"

	// Accepted but nothing changed (reverse at 0, forward at end).
	ErrNoOp = "E_NO_OP"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:    {},
	ErrNotPlaying:    {},
	ErrPaused:        {},
	ErrLevelNotFound: {},
	ErrOutOfBounds:   {},
	ErrSaturated:     {},
	ErrBudget:        {},
	ErrNoOp:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
