package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/decoylabs/scamtrap/pkg/intel"
)

func testPayload(sessionID string) Payload {
	set := intel.NewEntitySet()
	intel.NewExtractor().ExtractInto(set, "pay scam@ybl or call 9876543210")
	return BuildPayload(sessionID, true, 12, set, []string{"otp", "urgent"},
		"Scammer used payment, urgency_pressure across 12 messages")
}

func newTestDispatcher(endpoint string, t *testing.T, opts ...DispatcherOption) (*Dispatcher, *FailureStore) {
	t.Helper()
	failures, err := NewFailureStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFailureStore: %v", err)
	}
	opts = append(opts, WithSleeper(func(time.Duration) {}))
	return NewDispatcher(endpoint, failures, 4, opts...), failures
}

func TestDispatchSucceedsFirstAttempt(t *testing.T) {
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %s", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, failures := newTestDispatcher(srv.URL, t)
	outcome := d.Dispatch(context.Background(), testPayload("sess-1"))

	if !outcome.Delivered || outcome.Attempts != 1 || outcome.PersistedLocally {
		t.Errorf("outcome = %+v, want delivered on attempt 1", outcome)
	}
	if got.SessionID != "sess-1" || !got.ScamDetected || got.TotalMessagesExchanged != 12 {
		t.Errorf("wire payload = %+v", got)
	}
	if got.ExtractedIntelligence.UPIIDs[0] != "scam@ybl" {
		t.Errorf("upi ids = %v", got.ExtractedIntelligence.UPIIDs)
	}
	if persisted, _ := failures.Load("sess-1"); persisted != nil {
		t.Error("successful dispatch must not persist locally")
	}
}

func TestDispatchRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var slept []time.Duration
	failures, _ := NewFailureStore(t.TempDir())
	d := NewDispatcher(srv.URL, failures, 4,
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }))

	outcome := d.Dispatch(context.Background(), testPayload("sess-2"))

	if !outcome.Delivered || outcome.Attempts != 3 {
		t.Errorf("outcome = %+v, want delivery on attempt 3", outcome)
	}
	wantSleeps := []time.Duration{1 * time.Second, 3 * time.Second}
	if len(slept) != len(wantSleeps) {
		t.Fatalf("slept %v, want %v", slept, wantSleeps)
	}
	for i := range wantSleeps {
		if slept[i] != wantSleeps[i] {
			t.Errorf("backoff %d = %v, want %v", i, slept[i], wantSleeps[i])
		}
	}
}

func TestDispatchTerminalFailurePersistsLocally(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, failures := newTestDispatcher(srv.URL, t)
	outcome := d.Dispatch(context.Background(), testPayload("sess-3"))

	if outcome.Delivered {
		t.Error("dispatch reported delivered against a failing endpoint")
	}
	if calls.Load() != 3 {
		t.Errorf("endpoint called %d times, want exactly 3", calls.Load())
	}
	if !outcome.PersistedLocally {
		t.Error("terminal failure must persist the payload locally")
	}

	persisted, err := failures.Load("sess-3")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if persisted == nil || persisted.SessionID != "sess-3" {
		t.Errorf("persisted payload = %+v", persisted)
	}
}

func TestDispatchWithoutEndpointPersists(t *testing.T) {
	d, failures := newTestDispatcher("", t)
	outcome := d.Dispatch(context.Background(), testPayload("sess-4"))

	if outcome.Delivered {
		t.Error("no endpoint configured but outcome says delivered")
	}
	if !outcome.PersistedLocally {
		t.Error("payload should be persisted when no endpoint is configured")
	}
	if persisted, _ := failures.Load("sess-4"); persisted == nil {
		t.Error("payload file missing")
	}
}

func TestPayloadWireFormat(t *testing.T) {
	p := BuildPayload("abc", false, 0, intel.NewEntitySet(), nil, "notes")
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, field := range []string{"sessionId", "scamDetected", "totalMessagesExchanged", "extractedIntelligence", "agentNotes"} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("wire payload missing field %q", field)
		}
	}

	est, ok := decoded["extractedIntelligence"].(map[string]any)
	if !ok {
		t.Fatal("extractedIntelligence is not an object")
	}
	for _, field := range []string{"bankAccounts", "upiIds", "phishingLinks", "phoneNumbers", "suspiciousKeywords"} {
		v, ok := est[field]
		if !ok {
			t.Errorf("extractedIntelligence missing %q", field)
			continue
		}
		if _, isArray := v.([]any); !isArray {
			t.Errorf("%s serialized as %T, want empty array", field, v)
		}
	}
}
