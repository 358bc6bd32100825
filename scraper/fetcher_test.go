package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "ok", err: nil, statusCode: http.StatusOK, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusInternalServerError, expected: "status"},
		{name: "created", err: nil, statusCode: http.StatusCreated, expected: "status"},
		{name: "canceled", err: context.Canceled, statusCode: 0, expected: "canceled"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: ErrTimeout{Err: context.DeadlineExceeded}, want: true},
		{err: ErrConnection{Err: errors.New("reset")}, want: true},
		{err: ErrRateLimited{Err: errors.New("429")}, want: true},
		{err: fmt.Errorf("wrapped: %w", ErrConnection{Err: errors.New("reset")}), want: true},
		{err: ErrNotFound{Err: errors.New("404")}, want: false},
		{err: ErrForbidden{Err: errors.New("403")}, want: false},
		{err: ErrUnexpectedStatus{StatusCode: 500}, want: false},
		{err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Fatalf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

// scriptedFetcher returns errs in order, then body.
type scriptedFetcher struct {
	errs  []error
	body  []byte
	calls int
}

func (s *scriptedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	return s.body, nil
}

func newTestRetryFetcher(next Fetcher, maxRetries int) (*RetryFetcher, *[]time.Duration) {
	cfg := testConfig()
	cfg.MaxRetries = maxRetries
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond

	rf := NewRetryFetcher(next, cfg, NewMetrics())
	var delays []time.Duration
	rf.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return rf, &delays
}

func TestRetryFetcherRecoversFromTransientErrors(t *testing.T) {
	next := &scriptedFetcher{
		errs: []error{ErrConnection{Err: errors.New("reset")}, ErrTimeout{Err: context.DeadlineExceeded}},
		body: []byte("ok"),
	}
	rf, delays := newTestRetryFetcher(next, 2)

	body, err := rf.Fetch(context.Background(), "http://example.test/page")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("body=%q, want ok", body)
	}
	if next.calls != 3 {
		t.Fatalf("calls=%d, want 3", next.calls)
	}
	if got := rf.TotalRetries(); got != 2 {
		t.Fatalf("total retries = %d, want 2", got)
	}
	if len(*delays) != 2 || (*delays)[0] != 200*time.Millisecond || (*delays)[1] != 400*time.Millisecond {
		t.Fatalf("delays=%v, want [200ms 400ms]", *delays)
	}
}

func TestRetryFetcherRespectsLimit(t *testing.T) {
	transient := ErrRateLimited{Err: errors.New("429")}
	next := &scriptedFetcher{errs: []error{transient, transient, transient, transient}}
	rf, _ := newTestRetryFetcher(next, 2)

	_, err := rf.Fetch(context.Background(), "http://example.test/page")
	var rateLimited ErrRateLimited
	if !errors.As(err, &rateLimited) {
		t.Fatalf("err=%v, want rate limited", err)
	}
	if next.calls != 3 {
		t.Fatalf("calls=%d, want 3", next.calls)
	}
	if got := rf.Stats().Retries; got != 2 {
		t.Fatalf("retries=%d, want 2", got)
	}
}

func TestRetryFetcherDoesNotRetryPermanentErrors(t *testing.T) {
	for _, permanent := range []error{
		ErrNotFound{Err: errors.New("404")},
		ErrUnexpectedStatus{StatusCode: http.StatusInternalServerError},
	} {
		next := &scriptedFetcher{errs: []error{permanent}, body: []byte("late")}
		rf, delays := newTestRetryFetcher(next, 3)

		if _, err := rf.Fetch(context.Background(), "http://example.test/page"); err == nil {
			t.Fatalf("expected %v to be returned", permanent)
		}
		if next.calls != 1 || len(*delays) != 0 {
			t.Fatalf("%v: calls=%d delays=%v, want a single attempt", permanent, next.calls, *delays)
		}
	}
}

func TestRetryFetcherDefaultIsSingleAttempt(t *testing.T) {
	next := &scriptedFetcher{errs: []error{ErrConnection{Err: errors.New("reset")}}, body: []byte("ok")}
	rf := NewRetryFetcher(next, testConfig(), nil)

	if _, err := rf.Fetch(context.Background(), "http://example.test/page"); err == nil {
		t.Fatalf("expected error without retries configured")
	}
	if next.calls != 1 {
		t.Fatalf("calls=%d, want 1", next.calls)
	}
}

func TestRetryFetcherStopsOnCancel(t *testing.T) {
	next := &scriptedFetcher{errs: []error{ErrConnection{Err: errors.New("reset")}}, body: []byte("ok")}
	cfg := testConfig()
	cfg.MaxRetries = 3
	cfg.RetryBackoff = time.Hour
	rf := NewRetryFetcher(next, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := rf.Fetch(ctx, "http://example.test/page"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}

func TestRetryFetcherBackoffCapped(t *testing.T) {
	rf, _ := newTestRetryFetcher(&scriptedFetcher{}, 5)

	if delay := rf.backoff(4); delay != 500*time.Millisecond {
		t.Fatalf("delay %v, want cap of 500ms", delay)
	}
	if delay := rf.backoff(0); delay != 200*time.Millisecond {
		t.Fatalf("delay %v, want base of 200ms", delay)
	}
}

func newMockedCollyFetcher() (*CollyFetcher, *httpmock.MockTransport) {
	transport := httpmock.NewMockTransport()
	f := NewCollyFetcher(testConfig(), NewMetrics())
	f.WithTransport(transport)
	return f, transport
}

func TestCollyFetcherReturnsBody(t *testing.T) {
	f, transport := newMockedCollyFetcher()
	transport.RegisterResponder("GET", pageURL(1), htmlResponder("<html>catalog</html>"))

	body, err := f.Fetch(context.Background(), pageURL(1))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "<html>catalog</html>" {
		t.Fatalf("body=%q", body)
	}
	if stats := f.Stats(); stats.Requests != 1 || stats.Errors != 0 {
		t.Fatalf("stats=%+v, want one clean request", stats)
	}
}

func TestCollyFetcherReturnsLargeBodyWhole(t *testing.T) {
	f, transport := newMockedCollyFetcher()
	large := strings.Repeat("j", 11<<20)
	transport.RegisterResponder("GET", thumbURL(1), imageResponder(large))

	body, err := f.Fetch(context.Background(), thumbURL(1))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(body) != len(large) {
		t.Fatalf("body length=%d, want %d", len(body), len(large))
	}
}

func TestCollyFetcherHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusInternalServerError, expected: "status"},
		{status: http.StatusCreated, expected: "status"},
		{status: http.StatusNoContent, expected: "status"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			f, transport := newMockedCollyFetcher()
			transport.RegisterResponder("GET", pageURL(1), httpmock.NewStringResponder(tt.status, "body"))

			body, err := f.Fetch(context.Background(), pageURL(1))
			if err == nil {
				t.Fatalf("status %d must be a failure, got body %q", tt.status, body)
			}
			if got := errorTypeLabel(err); got != tt.expected {
				t.Fatalf("label=%q, want %q", got, tt.expected)
			}

			stats := f.Stats()
			if stats.ErrorsByType[tt.expected] != 1 {
				t.Fatalf("errors by type=%v, want one %q", stats.ErrorsByType, tt.expected)
			}
			if len(stats.FailedURLs) != 1 || stats.FailedURLs[0] != pageURL(1) {
				t.Fatalf("failed urls=%v", stats.FailedURLs)
			}
		})
	}
}

func TestCollyFetcherTransportError(t *testing.T) {
	f, transport := newMockedCollyFetcher()
	transport.RegisterResponder("GET", pageURL(1), httpmock.NewErrorResponder(errors.New("boom")))

	if _, err := f.Fetch(context.Background(), pageURL(1)); err == nil {
		t.Fatalf("expected transport error")
	}
	if stats := f.Stats(); stats.Errors != 1 {
		t.Fatalf("errors=%d, want 1", stats.Errors)
	}
}

func TestCollyFetcherRevisitsURL(t *testing.T) {
	f, transport := newMockedCollyFetcher()
	transport.RegisterResponder("GET", pageURL(1), htmlResponder("again"))

	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), pageURL(1)); err != nil {
			t.Fatalf("fetch %d: %v", i+1, err)
		}
	}
	if got := transport.GetCallCountInfo()["GET "+pageURL(1)]; got != 2 {
		t.Fatalf("calls=%d, want 2", got)
	}
}

func TestCollyFetcherWithRetryCountsFailedURLOnce(t *testing.T) {
	f, transport := newMockedCollyFetcher()
	transport.RegisterResponder("GET", pageURL(1), httpmock.NewStringResponder(http.StatusTooManyRequests, ""))
	rf, _ := newTestRetryFetcher(f, 2)

	if _, err := rf.Fetch(context.Background(), pageURL(1)); err == nil {
		t.Fatalf("expected rate limited error")
	}

	stats := rf.Stats()
	if stats.Requests != 3 || stats.Errors != 3 || stats.Retries != 2 {
		t.Fatalf("stats=%+v, want 3 requests, 3 errors, 2 retries", stats)
	}
	if len(stats.FailedURLs) != 1 {
		t.Fatalf("failed urls=%v, want the url once", stats.FailedURLs)
	}
}

func TestCollyFetcherCanceledContext(t *testing.T) {
	f, transport := newMockedCollyFetcher()
	transport.RegisterResponder("GET", pageURL(1), htmlResponder("unused"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Fetch(ctx, pageURL(1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if transport.GetTotalCallCount() != 0 {
		t.Fatalf("no request should be issued after cancellation")
	}
}
