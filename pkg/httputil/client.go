// Package httputil provides the shared outbound HTTP plumbing for the
// ScamTrap gateway: pooled clients by timeout tier, bounded body reads, and
// a semaphore for capping concurrent report deliveries.
package httputil

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxResponseSize bounds response body reads. Report endpoints return tiny
// acknowledgements; anything larger is misbehavior.
const MaxResponseSize = 1 * 1024 * 1024 // 1MB

// Shared transport with connection pooling. Safe for concurrent use; report
// retries to the same endpoint reuse the TCP connection.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          50,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// TimeoutTier defines standard timeout categories for outbound calls.
type TimeoutTier int

const (
	// TierDispatch is the per-attempt budget for report delivery (5s).
	TierDispatch TimeoutTier = iota
	// TierStandard for other API calls (15s)
	TierStandard
)

var timeoutDurations = map[TimeoutTier]time.Duration{
	TierDispatch: 5 * time.Second,
	TierStandard: 15 * time.Second,
}

// Singleton clients per tier - initialized once, reused everywhere.
var (
	clientDispatch *http.Client
	clientStandard *http.Client
	clientOnce     sync.Once
)

func initClients() {
	clientDispatch = &http.Client{
		Timeout:   timeoutDurations[TierDispatch],
		Transport: sharedTransport,
	}
	clientStandard = &http.Client{
		Timeout:   timeoutDurations[TierStandard],
		Transport: sharedTransport,
	}
}

// Client returns a shared HTTP client for the given timeout tier. Use these
// instead of constructing http.Client instances per request so the
// connection pool is actually shared.
func Client(tier TimeoutTier) *http.Client {
	clientOnce.Do(initClients)
	if tier == TierDispatch {
		return clientDispatch
	}
	return clientStandard
}

// DispatchClient returns the 5s-per-attempt client used for report delivery.
func DispatchClient() *http.Client {
	return Client(TierDispatch)
}

// ReadResponseBody reads an HTTP response body with a size limit.
func ReadResponseBody(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxResponseSize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// DrainAndClose drains and closes a response body so the underlying
// connection returns to the pool.
func DrainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
		_ = body.Close()
	}
}
