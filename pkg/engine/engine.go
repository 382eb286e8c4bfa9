// Package engine orchestrates one inbound message through the full
// pipeline: signal extraction, scoring, state transition, completion
// evaluation, and report dispatch. All session mutation happens inside the
// store's per-session critical section; dispatch runs outside it.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/decoylabs/scamtrap/pkg/intel"
	"github.com/decoylabs/scamtrap/pkg/persona"
	"github.com/decoylabs/scamtrap/pkg/report"
	"github.com/decoylabs/scamtrap/pkg/scoring"
	"github.com/decoylabs/scamtrap/pkg/session"
	"github.com/decoylabs/scamtrap/pkg/signal"
)

// MaxMessageLength bounds accepted message text.
const MaxMessageLength = 10000

// Message is one inbound counterpart message. History is the caller's view
// of the conversation so far, used only for cross-turn pattern detection.
type Message struct {
	SessionID string
	Text      string
	History   []signal.ConvTurn
}

// Verdict is the per-turn outcome returned for every processed message,
// detected or not.
type Verdict struct {
	SessionID    string            `json:"sessionId"`
	Turn         int               `json:"turn"`
	ScamDetected bool              `json:"scamDetected"`
	Confidence   float64           `json:"confidence"`
	State        session.State     `json:"state"`
	Signals      []string          `json:"signals"`
	Explanations map[string]string `json:"explanations,omitempty"`
	Reply        string            `json:"reply,omitempty"`
	Reported     bool              `json:"reported"`
}

// Status is the read-only session view served by the status endpoint.
type Status struct {
	SessionID      string                       `json:"sessionId"`
	State          session.State                `json:"state"`
	Turns          int                          `json:"turns"`
	Confidence     float64                      `json:"confidence"`
	Timeline       []session.ConfidenceSnapshot `json:"timeline"`
	Reported       bool                         `json:"reported"`
	FailedDelivery bool                         `json:"failedDelivery,omitempty"`
	LastActivity   time.Time                    `json:"lastActivity"`
}

// Engine wires the pipeline stages together.
type Engine struct {
	store      session.Store
	catalog    *signal.Catalog
	scorer     *scoring.Scorer
	extractor  *intel.Extractor
	completion *intel.CompletionPolicy
	dispatcher *report.Dispatcher
	personas   *persona.Generator

	// inflight guards against two concurrent turns of the same session both
	// launching a dispatch between completion and the reported flag.
	inflight sync.Map

	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithExtractor replaces the stock entity extractor, typically to add
// operator-configured keywords.
func WithExtractor(x *intel.Extractor) Option {
	return func(e *Engine) { e.extractor = x }
}

// New assembles an engine from its stages.
func New(store session.Store, catalog *signal.Catalog, scorer *scoring.Scorer,
	completion *intel.CompletionPolicy, dispatcher *report.Dispatcher,
	personas *persona.Generator, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		catalog:    catalog,
		scorer:     scorer,
		extractor:  intel.NewExtractor(),
		completion: completion,
		dispatcher: dispatcher,
		personas:   personas,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process runs one message through the pipeline and returns its verdict.
// A missing session id mints a new session. Dispatch failures never surface
// here; the verdict reflects the session's final state either way.
func (e *Engine) Process(ctx context.Context, msg Message) (Verdict, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return Verdict{}, fmt.Errorf("message text is required")
	}
	if len(text) > MaxMessageLength {
		return Verdict{}, fmt.Errorf("message text exceeds %d characters", MaxMessageLength)
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	signals, explanations := e.catalog.Extract(text)
	convSignals, convExplanations := e.catalog.ConversationSignals(msg.History, text)
	for _, sig := range convSignals {
		if !signals.Contains(sig.ID) {
			signals = append(signals, sig)
		}
	}
	for id, why := range convExplanations {
		explanations[id] = why
	}

	var (
		verdict      Verdict
		needDispatch bool
		payload      report.Payload
	)

	snapshot, err := e.store.Apply(sessionID, func(s *session.Session) error {
		history := s.SignalHistory()
		turn := s.TurnCount() + 1

		result := e.scorer.Score(signals, history, turn)
		s.RecordTurn(text, signals, result.Confidence, result.Detected, e.now())

		e.advanceState(s, result.Detected)

		entities, keywords := e.harvest(s)
		if s.State.Rank() >= session.StateSuspected.Rank() && s.State.Rank() < session.StateIntelComplete.Rank() {
			if e.completion.Complete(s.TurnCount(), entities, s.CredentialTurns) {
				// Detection and completion can land on the same turn; the
				// lifecycle still walks every stage in order.
				if s.State == session.StateSuspected {
					s.Transition(session.StateEngaging)
				}
				s.Transition(session.StateIntelComplete)
			}
		}

		if s.State == session.StateIntelComplete && !s.Reported {
			if _, claimed := e.inflight.LoadOrStore(s.ID, struct{}{}); !claimed {
				needDispatch = true
				payload = e.buildPayload(s, entities, keywords)
			}
		}

		verdict = Verdict{
			SessionID:    s.ID,
			Turn:         turn,
			ScamDetected: result.Detected,
			Confidence:   result.Confidence,
			State:        s.State,
			Signals:      signals.IDs(),
			Explanations: explanations,
		}
		return nil
	})
	if err != nil {
		return Verdict{}, err
	}

	if needDispatch {
		e.dispatchAndFinalize(ctx, sessionID, payload, &verdict)
	} else {
		verdict.Reported = snapshot.Reported
		verdict.State = snapshot.State
	}

	verdict.Reply = e.reply(verdict.Confidence, signals)
	return verdict, nil
}

// advanceState applies the per-turn lifecycle rules: first detection moves
// INIT to SUSPECTED, any further turn while SUSPECTED begins engagement.
// Undetected turns in INIT stay in INIT.
func (e *Engine) advanceState(s *session.Session, detected bool) {
	switch s.State {
	case session.StateInit:
		if detected {
			s.Transition(session.StateSuspected)
		}
	case session.StateSuspected:
		s.Transition(session.StateEngaging)
	}
}

// harvest rebuilds extracted intelligence from the recorded turns. Pure
// recomputation keeps entity state out of the session aggregate.
func (e *Engine) harvest(s *session.Session) (*intel.EntitySet, []string) {
	entities := intel.NewEntitySet()
	keywordSet := make(map[string]bool)
	var keywords []string
	for _, t := range s.Turns {
		e.extractor.ExtractInto(entities, t.Text)
		for _, kw := range e.extractor.Keywords(t.Text) {
			if !keywordSet[kw] {
				keywordSet[kw] = true
				keywords = append(keywords, kw)
			}
		}
	}
	return entities, keywords
}

func (e *Engine) buildPayload(s *session.Session, entities *intel.EntitySet, keywords []string) report.Payload {
	detected := false
	for _, snap := range s.Timeline {
		if snap.Detected {
			detected = true
			break
		}
	}

	observations := make([]intel.Observation, 0, len(s.Turns))
	for _, t := range s.Turns {
		observations = append(observations, intel.Observation{
			SignalIDs: t.Signals.IDs(),
			Text:      t.Text,
		})
	}
	notes := intel.ProfileConversation(observations).Notes(s.TurnCount())
	return report.BuildPayload(s.ID, detected, s.TurnCount(), entities, keywords, notes)
}

// dispatchAndFinalize runs delivery outside the session lock, then takes
// the lock again to record the outcome. REPORTED is final whether delivery
// succeeded or fell back to local persistence.
func (e *Engine) dispatchAndFinalize(ctx context.Context, sessionID string, payload report.Payload, verdict *Verdict) {
	outcome := e.dispatcher.Dispatch(ctx, payload)

	snapshot, err := e.store.Apply(sessionID, func(s *session.Session) error {
		if s.MarkReported(!outcome.Delivered) {
			s.Transition(session.StateReported)
		}
		return nil
	})
	e.inflight.Delete(sessionID)
	if err != nil {
		return
	}
	verdict.State = snapshot.State
	verdict.Reported = snapshot.Reported
}

// reply produces the decoy's next line from the current stage.
func (e *Engine) reply(confidence float64, signals signal.Set) string {
	if e.personas == nil {
		return ""
	}
	paymentAsk := signals.HasCategory(signal.CategoryPayment)
	return e.personas.Reply(persona.SelectStrategy(confidence, paymentAsk))
}

// Sessions returns status views for all live sessions.
func (e *Engine) Sessions() ([]Status, error) {
	sessions, err := e.store.List()
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, statusOf(s))
	}
	return out, nil
}

// Session returns one session's status, nil if unknown.
func (e *Engine) Session(id string) (*Status, error) {
	s, err := e.store.Get(id)
	if err != nil || s == nil {
		return nil, err
	}
	st := statusOf(s)
	return &st, nil
}

func statusOf(s *session.Session) Status {
	return Status{
		SessionID:      s.ID,
		State:          s.State,
		Turns:          s.TurnCount(),
		Confidence:     s.Confidence(),
		Timeline:       s.Timeline,
		Reported:       s.Reported,
		FailedDelivery: s.FailedDelivery,
		LastActivity:   s.LastActivity,
	}
}
