package telegram

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/klipworks/memberbot/core/telegram/netutil"
)

const (
	dialTimeout        = 5 * time.Second
	tlsHandshakeLimit  = 5 * time.Second
	idleConnTimeout    = 30 * time.Second
	responseHeaderWait = 5 * time.Second
	keepAliveInterval  = 30 * time.Second

	minClientTimeout = 30 * time.Second

	sendRetryAttempts = 3
	sendRetryBackoff  = 2 * time.Second
)

// BuildHTTPClient returns the client used for all Bot API calls. The
// overall timeout is sized against the long-poll window: getUpdates holds
// the connection open for pollSeconds, so the client must wait longer
// than that or every idle poll turns into a timeout error.
func BuildHTTPClient(pollSeconds int) *http.Client {
	timeout := minClientTimeout
	if polled := time.Duration(pollSeconds)*time.Second + 15*time.Second; polled > timeout {
		timeout = polled
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshakeLimit,
		ResponseHeaderTimeout: responseHeaderWait,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &retryTransport{
			base:     transport,
			attempts: sendRetryAttempts,
			backoff:  sendRetryBackoff,
		},
	}
}

// retryTransport re-sends requests that failed with a transport error the
// netutil classifier deems transient (timeouts, dial and DNS failures).
// Only replayable requests retry; a consumed non-replayable body ends the
// chain immediately.
type retryTransport struct {
	base     http.RoundTripper
	attempts int
	backoff  time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	var lastErr error
	for attempt := 0; attempt <= t.attempts; attempt++ {
		curr := req
		if attempt > 0 {
			var ok bool
			if curr, ok = rewind(req); !ok {
				break
			}
			if err := waitBackoff(req.Context(), t.backoff*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}

		resp, err := base.RoundTrip(curr)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !netutil.ShouldRetry(err) {
			break
		}
	}
	return nil, lastErr
}

// rewind clones the request with a fresh body for a retry attempt.
func rewind(req *http.Request) (*http.Request, bool) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, false
		}
		clone.Body = body
		return clone, true
	}
	if req.Body != nil {
		return nil, false
	}
	return clone, true
}

func waitBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
