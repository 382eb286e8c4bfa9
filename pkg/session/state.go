package session

import "log"

// State is the engagement lifecycle stage. States only ever move forward:
// INIT < SUSPECTED < ENGAGING < INTEL_COMPLETE < REPORTED.
type State string

const (
	StateInit          State = "INIT"
	StateSuspected     State = "SUSPECTED"
	StateEngaging      State = "ENGAGING"
	StateIntelComplete State = "INTEL_COMPLETE"
	StateReported      State = "REPORTED"
)

// stateRank orders states for the monotonicity check.
var stateRank = map[State]int{
	StateInit:          0,
	StateSuspected:     1,
	StateEngaging:      2,
	StateIntelComplete: 3,
	StateReported:      4,
}

// Rank returns the ordinal position of the state, -1 for unknown values.
func (s State) Rank() int {
	if r, ok := stateRank[s]; ok {
		return r
	}
	return -1
}

// validTransitions is the closed edge set of the lifecycle. Self-loops are
// implicit no-ops and never consulted here.
var validTransitions = map[State][]State{
	StateInit:          {StateSuspected},
	StateSuspected:     {StateEngaging},
	StateEngaging:      {StateIntelComplete},
	StateIntelComplete: {StateReported},
}

// Transition moves the session to the target state if the edge is valid.
// Invalid or backward transitions are logged and ignored; the session is
// left untouched and the caller proceeds. Requesting the current state is a
// silent no-op.
func (s *Session) Transition(to State) bool {
	if to == s.State {
		return true
	}
	for _, allowed := range validTransitions[s.State] {
		if allowed == to {
			s.State = to
			return true
		}
	}
	log.Printf("[%s] ignoring invalid state transition %s -> %s", s.ID, s.State, to)
	return false
}
