package session

import "fmt"

// State is the connection state of a Session.
type State int

const (
	Disconnected State = iota
	Connecting
	CharacteristicsResolved
	Subscribed
	Initialized
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case CharacteristicsResolved:
		return "characteristics_resolved"
	case Subscribed:
		return "subscribed"
	case Initialized:
		return "initialized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TransitionError reports an attempt to leave a state other than the expected one.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// next computes the state after attempting the step into target from current.
// A failed step always lands in Disconnected; a successful step may only advance by one.
func next(current, target State, stepErr error) (State, error) {
	if stepErr != nil {
		return Disconnected, stepErr
	}
	if target != current+1 || target > Initialized {
		return Disconnected, &TransitionError{From: current, To: target}
	}
	return target, nil
}
