package turn

import "errors"

// State is the lifecycle position of a client's current turn.
type State string

const (
	StateIdle       State = "idle"
	StateDrafting   State = "drafting"
	StateAwaiting   State = "awaiting"
	StateStreaming  State = "streaming"
	StateFinalizing State = "finalizing"
	StateError      State = "error"
)

// ErrInvalidTransition is returned when a state transition is not allowed.
var ErrInvalidTransition = errors.New("invalid turn state transition")

// ValidTransitions defines allowed state transitions.
var ValidTransitions = map[State][]State{
	StateIdle:       {StateDrafting},
	StateDrafting:   {StateAwaiting},
	StateAwaiting:   {StateStreaming},
	StateStreaming:  {StateFinalizing, StateError},
	StateFinalizing: {StateIdle, StateError},
	StateError:      {StateIdle},
}

// IsActive reports whether a generation is underway.
func (s State) IsActive() bool {
	return s == StateDrafting || s == StateAwaiting || s == StateStreaming || s == StateFinalizing
}

func (s State) String() string {
	return string(s)
}

// CanTransitionTo checks if a transition from s to target is valid.
func (s State) CanTransitionTo(target State) bool {
	for _, t := range ValidTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// TransitionTo returns target, or s and ErrInvalidTransition when the move is not allowed.
func (s State) TransitionTo(target State) (State, error) {
	if !s.CanTransitionTo(target) {
		return s, ErrInvalidTransition
	}
	return target, nil
}
