package page

import (
	"errors"
	"fmt"
)

// State is the page lifecycle state.
type State string

const (
	StateLoading     State = "loading"
	StateIdle        State = "idle"
	StateDrawing     State = "drawing"
	StatePredicting  State = "predicting"
	StateResultShown State = "result_shown"
)

// ErrInvalidTransition is returned for a state change the page does not allow.
var ErrInvalidTransition = errors.New("invalid page transition")

// Transition validates from -> to and returns the new state.
func Transition(from, to State) (State, error) {
	if !isAllowedTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateLoading:
		return to == StateIdle || to == StateDrawing
	case StateIdle:
		return to == StateDrawing || to == StatePredicting
	case StateDrawing:
		return to == StateIdle || to == StateLoading || to == StateResultShown || to == StatePredicting
	case StatePredicting:
		return to == StateResultShown || to == StateIdle
	case StateResultShown:
		return to == StateDrawing || to == StatePredicting || to == StateIdle
	default:
		return false
	}
}
