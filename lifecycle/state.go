package lifecycle

import "fmt"

// State is the state of a payment form and its attempt.
type State uint8

const (
	StateDraft State = iota
	StateClassifying
	StateInvalid
	StateClassified
	StateBoundChecking
	StateInfeasible
	StateReady
	StatePreparing
	StatePrepareFailed
	StatePrepared
	StateAwaitingConfirmation
	StateSubmitting
	StateSubmitFailed
	StateSubmitted
	StatePolling
	StateSucceeded
	StateFailed
	StateExpired
	StateCancelled
)

var stateNames = map[State]string{
	StateDraft:                "Draft",
	StateClassifying:          "Classifying",
	StateInvalid:              "Invalid",
	StateClassified:           "Classified",
	StateBoundChecking:        "BoundChecking",
	StateInfeasible:           "Infeasible",
	StateReady:                "Ready",
	StatePreparing:            "Preparing",
	StatePrepareFailed:        "PrepareFailed",
	StatePrepared:             "Prepared",
	StateAwaitingConfirmation: "AwaitingConfirmation",
	StateSubmitting:           "Submitting",
	StateSubmitFailed:         "SubmitFailed",
	StateSubmitted:            "Submitted",
	StatePolling:              "Polling",
	StateSucceeded:            "Succeeded",
	StateFailed:               "Failed",
	StateExpired:              "Expired",
	StateCancelled:            "Cancelled",
}

// String returns the state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("State(%d)", uint8(s))
}

// Terminal returns true for the states an attempt ends in.
func (s State) Terminal() bool {
	switch s {
	case StateSubmitFailed, StateSucceeded, StateFailed, StateExpired,
		StateCancelled:

		return true
	default:
		return false
	}
}

// Committed returns true once the payment has been handed to the node. A
// committed attempt can no longer be cancelled or edited.
func (s State) Committed() bool {
	switch s {
	case StateSubmitting, StateSubmitted, StatePolling:
		return true
	default:
		return false
	}
}

// editable returns true for the states where the form input may change.
func (s State) editable() bool {
	return !s.Committed()
}

// quoting returns true while an attempt is being prepared or holds a quote
// awaiting confirmation.
func (s State) quoting() bool {
	switch s {
	case StatePreparing, StatePrepared, StateAwaitingConfirmation:
		return true
	default:
		return false
	}
}
