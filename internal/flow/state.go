package flow

// State is the position of a booking attempt in the wizard. Progression is
// strictly forward through select -> attendee -> summary -> payment states;
// backward navigation is permitted only among the first three.
type State string

const (
	StateSelect          State = "select"
	StateAttendee        State = "attendee"
	StateSummary         State = "summary"
	StateInitiating      State = "initiating"
	StateAwaitingPayment State = "awaiting_payment"
	StateVerifying       State = "verifying"
	StateConfirmed       State = "confirmed"
	StateFailed          State = "failed"
)

func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

var transitions = map[State][]State{
	StateSelect:          {StateAttendee},
	StateAttendee:        {StateSelect, StateSummary},
	StateSummary:         {StateAttendee, StateInitiating},
	StateInitiating:      {StateSummary, StateAwaitingPayment},
	StateAwaitingPayment: {StateSummary, StateVerifying},
	StateVerifying:       {StateConfirmed, StateFailed},
}

// backward navigation targets; anything absent has no back step
var backTargets = map[State]State{
	StateAttendee: StateSelect,
	StateSummary:  StateAttendee,
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
