package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/decoylabs/scamtrap/pkg/httputil"
)

// RetryPolicy controls delivery attempts. Attempts counts total tries; the
// backoff slice supplies the wait before each retry (so it needs
// Attempts-1 entries).
type RetryPolicy struct {
	Attempts int
	Backoff  []time.Duration
}

// DefaultRetryPolicy is three attempts with escalating waits.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Backoff:  []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}
}

// Outcome describes how a dispatch ended. Exactly one of Delivered or
// PersistedLocally is true when the dispatcher had an endpoint to talk to.
type Outcome struct {
	Delivered        bool
	Attempts         int
	PersistedLocally bool
}

// Dispatcher posts report payloads to the configured endpoint. Callers
// guarantee at-most-once semantics by consulting the session's reported
// flag before handing a payload over; the dispatcher itself is stateless
// per call.
type Dispatcher struct {
	endpoint string
	client   *http.Client
	policy   RetryPolicy
	sem      *httputil.Semaphore
	failures *FailureStore
	archive  *Archive

	// sleep is swappable so tests run without real waits.
	sleep func(time.Duration)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) DispatcherOption {
	return func(d *Dispatcher) { d.policy = p }
}

// WithHTTPClient overrides the shared dispatch client.
func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = c }
}

// WithSleeper overrides the backoff sleep function.
func WithSleeper(sleep func(time.Duration)) DispatcherOption {
	return func(d *Dispatcher) { d.sleep = sleep }
}

// WithArchive records every outcome in the Postgres archive.
func WithArchive(a *Archive) DispatcherOption {
	return func(d *Dispatcher) { d.archive = a }
}

// NewDispatcher builds a dispatcher. failures receives payloads that
// exhaust all attempts; maxConcurrent bounds in-flight deliveries.
func NewDispatcher(endpoint string, failures *FailureStore, maxConcurrent int, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		endpoint: endpoint,
		client:   httputil.DispatchClient(),
		policy:   DefaultRetryPolicy(),
		sem:      httputil.NewSemaphore(maxConcurrent),
		failures: failures,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers the payload, retrying per policy. On terminal failure
// the payload is persisted locally and the outcome still counts as final;
// the caller marks the session reported either way.
func (d *Dispatcher) Dispatch(ctx context.Context, payload Payload) Outcome {
	outcome := d.deliver(ctx, payload)
	if d.archive != nil {
		if err := d.archive.Record(ctx, payload, outcome); err != nil {
			log.Printf("[%s] report archive write failed: %v", payload.SessionID, err)
		}
	}
	return outcome
}

func (d *Dispatcher) deliver(ctx context.Context, payload Payload) Outcome {
	var outcome Outcome

	if d.endpoint == "" {
		log.Printf("[%s] no report endpoint configured, persisting locally", payload.SessionID)
		outcome.PersistedLocally = d.persist(payload)
		return outcome
	}

	body, err := json.Marshal(payload)
	if err != nil {
		// Payload is plain data; this does not happen in practice.
		log.Printf("[%s] report payload marshal failed: %v", payload.SessionID, err)
		outcome.PersistedLocally = d.persist(payload)
		return outcome
	}

	if err := d.sem.Acquire(ctx); err != nil {
		log.Printf("[%s] dispatch cancelled before send: %v", payload.SessionID, err)
		outcome.PersistedLocally = d.persist(payload)
		return outcome
	}
	defer d.sem.Release()

	for attempt := 1; attempt <= d.policy.Attempts; attempt++ {
		outcome.Attempts = attempt
		if err := d.post(ctx, body); err != nil {
			log.Printf("[%s] report attempt %d/%d failed: %v",
				payload.SessionID, attempt, d.policy.Attempts, err)
			if attempt < d.policy.Attempts && attempt-1 < len(d.policy.Backoff) {
				d.sleep(d.policy.Backoff[attempt-1])
			}
			continue
		}
		log.Printf("[%s] report delivered on attempt %d", payload.SessionID, attempt)
		outcome.Delivered = true
		return outcome
	}

	outcome.PersistedLocally = d.persist(payload)
	return outcome
}

func (d *Dispatcher) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting report: %w", err)
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("report endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) persist(payload Payload) bool {
	if d.failures == nil {
		return false
	}
	if err := d.failures.Persist(payload); err != nil {
		log.Printf("[%s] persisting failed report: %v", payload.SessionID, err)
		return false
	}
	return true
}
