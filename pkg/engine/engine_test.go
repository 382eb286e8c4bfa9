package engine

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/decoylabs/scamtrap/pkg/intel"
	"github.com/decoylabs/scamtrap/pkg/persona"
	"github.com/decoylabs/scamtrap/pkg/report"
	"github.com/decoylabs/scamtrap/pkg/scoring"
	"github.com/decoylabs/scamtrap/pkg/session"
	"github.com/decoylabs/scamtrap/pkg/signal"
)

// testHarness wires a full pipeline against a controllable report endpoint.
type testHarness struct {
	engine   *Engine
	store    *session.InMemoryStore
	calls    *atomic.Int32
	failures *report.FailureStore
}

func newHarness(t *testing.T, endpointStatus int) *testHarness {
	t.Helper()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(endpointStatus)
	}))
	t.Cleanup(srv.Close)

	failures, err := report.NewFailureStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFailureStore: %v", err)
	}
	dispatcher := report.NewDispatcher(srv.URL, failures, 4,
		report.WithSleeper(func(time.Duration) {}))

	store := session.NewInMemoryStore()
	t.Cleanup(store.Close)

	eng := New(
		store,
		signal.NewCatalog(signal.DefaultWeights()),
		scoring.NewScorer(),
		intel.NewCompletionPolicy(10, 2, 3),
		dispatcher,
		persona.NewGenerator("grandma", persona.WithRand(rand.New(rand.NewSource(1)))),
	)
	return &testHarness{engine: eng, store: store, calls: &calls, failures: failures}
}

func (h *testHarness) send(t *testing.T, sessionID, text string) Verdict {
	t.Helper()
	v, err := h.engine.Process(context.Background(), Message{SessionID: sessionID, Text: text})
	if err != nil {
		t.Fatalf("Process(%q): %v", text, err)
	}
	return v
}

func TestBenignMessageScoresZero(t *testing.T) {
	h := newHarness(t, http.StatusOK)

	v := h.send(t, "s1", "Your statement is ready")
	if v.ScamDetected || v.Confidence != 0 {
		t.Errorf("benign message: detected=%v confidence=%v", v.ScamDetected, v.Confidence)
	}
	if v.State != session.StateInit {
		t.Errorf("state = %s, want INIT", v.State)
	}
	if len(v.Signals) != 0 {
		t.Errorf("signals = %v, want none", v.Signals)
	}
}

func TestImmediateDetectionTransitionsToSuspected(t *testing.T) {
	h := newHarness(t, http.StatusOK)

	v := h.send(t, "s1", "Share your OTP to avoid account suspension")
	if !v.ScamDetected {
		t.Fatalf("not detected, confidence=%v signals=%v", v.Confidence, v.Signals)
	}
	if v.Confidence < 0.9 {
		t.Errorf("confidence = %v, want >= 0.9", v.Confidence)
	}
	if v.State != session.StateSuspected {
		t.Errorf("state = %s, want SUSPECTED", v.State)
	}
	if v.Reply == "" {
		t.Error("verdict carries no decoy reply")
	}
}

func TestGradualEscalation(t *testing.T) {
	h := newHarness(t, http.StatusOK)

	first := h.send(t, "s1", "Your account will be blocked")
	if first.ScamDetected {
		t.Errorf("turn 1 detected at %v, want ambiguous", first.Confidence)
	}
	if first.Confidence < 0.4 || first.Confidence > 0.6 {
		t.Errorf("turn 1 confidence = %v, want [0.4, 0.6]", first.Confidence)
	}

	second := h.send(t, "s1", "Act now or your account will be blocked forever")
	if second.Confidence <= first.Confidence {
		t.Errorf("turn 2 confidence %v did not exceed turn 1 %v", second.Confidence, first.Confidence)
	}
}

func TestSessionMintsIDWhenMissing(t *testing.T) {
	h := newHarness(t, http.StatusOK)

	v, err := h.engine.Process(context.Background(), Message{Text: "hello there"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if v.SessionID == "" {
		t.Error("no session id minted")
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	h := newHarness(t, http.StatusOK)

	if _, err := h.engine.Process(context.Background(), Message{SessionID: "s1", Text: "   "}); err == nil {
		t.Error("blank message accepted")
	}
}

func TestTimelineAlignsWithTurns(t *testing.T) {
	h := newHarness(t, http.StatusOK)

	h.send(t, "s1", "Share your OTP to avoid account suspension")
	h.send(t, "s1", "hello?")
	h.send(t, "s1", "Your statement is ready")

	status, err := h.engine.Session("s1")
	if err != nil || status == nil {
		t.Fatalf("Session: %v, %v", status, err)
	}
	if status.Turns != 3 || len(status.Timeline) != 3 {
		t.Fatalf("turns=%d timeline=%d, want 3/3", status.Turns, len(status.Timeline))
	}
	// Zero-signal turns still get their snapshot.
	if status.Timeline[2].Confidence != 0 {
		t.Errorf("benign turn 3 confidence = %v, want 0", status.Timeline[2].Confidence)
	}
}

func TestTurnCountCompletionAtExactlyTen(t *testing.T) {
	h := newHarness(t, http.StatusOK)

	h.send(t, "s1", "Share your OTP to avoid account suspension")
	for i := 2; i <= 9; i++ {
		v := h.send(t, "s1", "please hurry, this is important")
		if v.State == session.StateIntelComplete || v.State == session.StateReported {
			t.Fatalf("completed early at turn %d (state %s)", i, v.State)
		}
	}

	v := h.send(t, "s1", "are you still there, do it fast")
	if v.Turn != 10 {
		t.Fatalf("turn = %d, want 10", v.Turn)
	}
	if v.State != session.StateReported {
		t.Errorf("state after 10th turn = %s, want REPORTED", v.State)
	}
	if !v.Reported {
		t.Error("verdict not marked reported")
	}
	if h.calls.Load() != 1 {
		t.Errorf("report endpoint called %d times, want 1", h.calls.Load())
	}
}

func TestDetectionOnCompletionTurnWalksEveryStage(t *testing.T) {
	h := newHarness(t, http.StatusOK)

	for i := 0; i < 9; i++ {
		h.send(t, "s1", "Your statement is ready")
	}

	// First detection lands on the same turn that satisfies completion.
	// The session must still end up REPORTED, not stuck in SUSPECTED.
	v := h.send(t, "s1", "Share your OTP to avoid account suspension")
	if !v.ScamDetected {
		t.Fatalf("not detected, confidence=%v", v.Confidence)
	}
	if v.Turn != 10 {
		t.Fatalf("turn = %d, want 10", v.Turn)
	}
	if v.State != session.StateReported {
		t.Errorf("state = %s, want REPORTED", v.State)
	}
	if h.calls.Load() != 1 {
		t.Errorf("report endpoint called %d times, want 1", h.calls.Load())
	}
}

func TestRepeatedEntityCompletesEarly(t *testing.T) {
	h := newHarness(t, http.StatusOK)

	h.send(t, "s1", "Share your OTP to avoid account suspension")
	h.send(t, "s1", "Send the money to scammer@ybl")
	v := h.send(t, "s1", "Did you pay scammer@ybl yet? Hurry!")

	if v.State != session.StateReported {
		t.Errorf("state = %s, want REPORTED after repeated UPI id", v.State)
	}
	if h.calls.Load() != 1 {
		t.Errorf("report endpoint called %d times, want 1", h.calls.Load())
	}
}

func TestCredentialTurnsCompleteSession(t *testing.T) {
	h := newHarness(t, http.StatusOK)

	h.send(t, "s1", "Share your OTP to avoid account suspension")
	h.send(t, "s1", "What is your ATM PIN, tell me now")
	v := h.send(t, "s1", "Also send your card number and CVV")

	if v.State != session.StateReported {
		t.Errorf("state = %s, want REPORTED after 3 credential turns", v.State)
	}
}

func TestReportedIsTerminal(t *testing.T) {
	h := newHarness(t, http.StatusOK)

	h.send(t, "s1", "Share your OTP to avoid account suspension")
	h.send(t, "s1", "Send the money to scammer@ybl")
	h.send(t, "s1", "Did you pay scammer@ybl yet? Hurry!")

	// Further messages must never re-dispatch or regress the state.
	v := h.send(t, "s1", "Pay scammer@ybl right now or account blocked")
	if v.State != session.StateReported {
		t.Errorf("state after post-report turn = %s, want REPORTED", v.State)
	}
	if h.calls.Load() != 1 {
		t.Errorf("report endpoint called %d times after extra turn, want 1", h.calls.Load())
	}

	status, _ := h.engine.Session("s1")
	if !status.Reported {
		t.Error("session lost its reported flag")
	}
}

func TestFailedDispatchStillFinalizesSession(t *testing.T) {
	h := newHarness(t, http.StatusInternalServerError)

	h.send(t, "s1", "Share your OTP to avoid account suspension")
	h.send(t, "s1", "Send the money to scammer@ybl")
	v := h.send(t, "s1", "Did you pay scammer@ybl yet? Hurry!")

	if v.State != session.StateReported {
		t.Errorf("state = %s, want REPORTED despite delivery failure", v.State)
	}
	if h.calls.Load() != 3 {
		t.Errorf("failing endpoint called %d times, want 3 attempts", h.calls.Load())
	}

	status, _ := h.engine.Session("s1")
	if !status.FailedDelivery {
		t.Error("failed delivery not recorded on session")
	}

	persisted, err := h.failures.Load("s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if persisted == nil {
		t.Fatal("payload not persisted after terminal failure")
	}
	if !persisted.ScamDetected || persisted.TotalMessagesExchanged != 3 {
		t.Errorf("persisted payload = %+v", persisted)
	}
	if len(persisted.ExtractedIntelligence.UPIIDs) != 1 {
		t.Errorf("persisted upi ids = %v", persisted.ExtractedIntelligence.UPIIDs)
	}
}

func TestUndetectedSessionNeverReports(t *testing.T) {
	h := newHarness(t, http.StatusOK)

	for i := 0; i < 12; i++ {
		h.send(t, "s1", "Your statement is ready")
	}

	status, _ := h.engine.Session("s1")
	if status.State != session.StateInit {
		t.Errorf("state = %s, want INIT for a never-detected session", status.State)
	}
	if h.calls.Load() != 0 {
		t.Errorf("report endpoint called %d times for a benign session", h.calls.Load())
	}
}

func TestSessionsListing(t *testing.T) {
	h := newHarness(t, http.StatusOK)

	h.send(t, "a", "Your account will be blocked")
	h.send(t, "b", "hello")

	sessions, err := h.engine.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("listed %d sessions, want 2", len(sessions))
	}
}
