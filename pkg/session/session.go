// Package session holds the conversation aggregate: turns, the confidence
// timeline, the engagement state machine, and the stores that serialize
// access to all of it.
package session

import (
	"time"

	"github.com/decoylabs/scamtrap/pkg/signal"
)

// Turn is one processed counterpart message. Turns are append-only; a
// recorded turn is never edited.
type Turn struct {
	Text      string     `json:"text"`
	Signals   signal.Set `json:"signals"`
	Timestamp time.Time  `json:"timestamp"`
}

// ConfidenceSnapshot captures the scoring outcome of exactly one turn.
// The timeline always has one snapshot per recorded turn, including turns
// that scored zero.
type ConfidenceSnapshot struct {
	Turn       int       `json:"turn"`
	Confidence float64   `json:"confidence"`
	Detected   bool      `json:"detected"`
	Timestamp  time.Time `json:"timestamp"`
}

// Session is the per-conversation aggregate. All mutation happens inside a
// store's Apply critical section; nothing outside the store may hold a
// *Session that the store also owns.
type Session struct {
	ID    string `json:"id"`
	State State  `json:"state"`

	Turns    []Turn               `json:"turns"`
	Timeline []ConfidenceSnapshot `json:"timeline"`

	// Reported flips to true at most once, when report dispatch has been
	// confirmed (delivered or terminally failed).
	Reported       bool `json:"reported"`
	FailedDelivery bool `json:"failedDelivery,omitempty"`

	// CredentialTurns counts distinct turns that carried a credential
	// request signal; an input to completion evaluation.
	CredentialTurns int `json:"credentialTurns"`

	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// NewSession returns a fresh session in the initial state.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		State:        StateInit,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// RecordTurn appends a turn together with its scoring snapshot, keeping the
// turn/timeline alignment intact. Snapshot turn numbers are 1-based.
func (s *Session) RecordTurn(text string, signals signal.Set, confidence float64, detected bool, now time.Time) {
	s.Turns = append(s.Turns, Turn{Text: text, Signals: signals, Timestamp: now})
	s.Timeline = append(s.Timeline, ConfidenceSnapshot{
		Turn:       len(s.Turns),
		Confidence: confidence,
		Detected:   detected,
		Timestamp:  now,
	})
	if signals.HasCritical() || hasPaymentIdentifier(signals) {
		s.CredentialTurns++
	}
	s.LastActivity = now
}

func hasPaymentIdentifier(set signal.Set) bool {
	for _, sig := range set {
		if sig.IsPaymentIdentifier() {
			return true
		}
	}
	return false
}

// TurnCount returns the number of recorded turns.
func (s *Session) TurnCount() int { return len(s.Turns) }

// Confidence returns the most recent confidence value, 0 for a session with
// no turns yet.
func (s *Session) Confidence() float64 {
	if len(s.Timeline) == 0 {
		return 0
	}
	return s.Timeline[len(s.Timeline)-1].Confidence
}

// SignalHistory returns the per-turn signal sets in turn order.
func (s *Session) SignalHistory() []signal.Set {
	out := make([]signal.Set, 0, len(s.Turns))
	for _, t := range s.Turns {
		out = append(out, t.Signals)
	}
	return out
}

// MarkReported finalizes the report flag. Returns false if the session was
// already reported; callers use this as the at-most-once guard.
func (s *Session) MarkReported(failedDelivery bool) bool {
	if s.Reported {
		return false
	}
	s.Reported = true
	s.FailedDelivery = failedDelivery
	return true
}

// Clone returns a deep copy safe to hand outside the store's lock.
func (s *Session) Clone() *Session {
	out := *s
	out.Turns = make([]Turn, len(s.Turns))
	for i, t := range s.Turns {
		out.Turns[i] = t
		out.Turns[i].Signals = append(signal.Set(nil), t.Signals...)
	}
	out.Timeline = append([]ConfidenceSnapshot(nil), s.Timeline...)
	return &out
}
