package telegram

import (
	"errors"
	"net"
	"net/http"
	"testing"
	"time"
)

type scriptedTransport struct {
	errs  []error
	calls int
}

func (s *scriptedTransport) RoundTrip(*http.Request) (*http.Response, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

func TestRetryTransportRetriesDialFailures(t *testing.T) {
	dialErr := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	base := &scriptedTransport{errs: []error{dialErr, dialErr}}
	rt := &retryTransport{base: base, attempts: 3, backoff: time.Millisecond}

	req, err := http.NewRequest(http.MethodGet, "https://api.example/getMe", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()
	if base.calls != 3 {
		t.Errorf("calls = %d, want 2 failures then success", base.calls)
	}
}

func TestRetryTransportStopsOnNonRetryableError(t *testing.T) {
	fatal := errors.New("x509: certificate signed by unknown authority")
	base := &scriptedTransport{errs: []error{fatal, fatal, fatal, fatal}}
	rt := &retryTransport{base: base, attempts: 3, backoff: time.Millisecond}

	req, err := http.NewRequest(http.MethodGet, "https://api.example/getMe", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.RoundTrip(req); !errors.Is(err, fatal) {
		t.Fatalf("err = %v, want the transport error", err)
	}
	if base.calls != 1 {
		t.Errorf("calls = %d, want no retries", base.calls)
	}
}

func TestBuildHTTPClientTimeoutCoversPollWindow(t *testing.T) {
	if got := BuildHTTPClient(0).Timeout; got != minClientTimeout {
		t.Errorf("timeout = %v, want the %v floor", got, minClientTimeout)
	}
	if got := BuildHTTPClient(60).Timeout; got != 75*time.Second {
		t.Errorf("timeout = %v, want the poll window plus headroom", got)
	}
}
