package scraper

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/catalog-scraper/config"
)

const (
	bodyKey   = "body"
	statusKey = "status"
)

// Fetcher issues a single GET for url. A nil error means the server answered
// 200 and the body is returned.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// StatsReporter is implemented by fetchers that keep request accounting.
type StatsReporter interface {
	Stats() FetchStats
}

// FetchStats is a snapshot of request accounting.
type FetchStats struct {
	Requests     int
	Errors       int
	Retries      int
	ErrorsByType map[string]int
	FailedURLs   []string
}

type phaseKey struct{}

func withPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseKey{}, phase)
}

func phaseFrom(ctx context.Context) string {
	if phase, ok := ctx.Value(phaseKey{}).(string); ok {
		return phase
	}
	return "other"
}

// CollyFetcher fetches pages through a synchronous colly collector.
type CollyFetcher struct {
	collector *colly.Collector
	metrics   *Metrics

	mu           sync.Mutex
	requests     int
	errorCount   int
	errorsByType map[string]int
	failedURLs   []string
}

// NewCollyFetcher builds a fetcher configured from cfg.
func NewCollyFetcher(cfg *config.Config, metrics *Metrics) *CollyFetcher {
	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
	)

	// Non-2xx responses still reach OnResponse so the status can be inspected.
	collector.ParseHTTPErrorResponse = true
	// thumbnails are stored verbatim, so bodies must never be cut short
	collector.MaxBodySize = 0
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(statusKey, r.StatusCode)
		r.Ctx.Put(bodyKey, r.Body)
	})

	return &CollyFetcher{
		collector:    collector,
		metrics:      metrics,
		errorsByType: make(map[string]int),
	}
}

// WithTransport swaps the HTTP transport, e.g. for a mock in tests.
func (f *CollyFetcher) WithTransport(transport http.RoundTripper) {
	f.collector.WithTransport(transport)
}

// Fetch implements Fetcher.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.metrics.IncRequest(phaseFrom(ctx))
	f.mu.Lock()
	f.requests++
	f.mu.Unlock()

	reqCtx := colly.NewContext()
	start := time.Now()
	err := f.collector.Request(http.MethodGet, rawURL, nil, reqCtx, nil)
	f.metrics.ObserveDuration(time.Since(start))

	status, _ := reqCtx.GetAny(statusKey).(int)
	if err != nil || status != http.StatusOK {
		classified := classifyError(err, status)
		if classified == nil {
			classified = ErrUnexpectedStatus{StatusCode: status}
		}
		f.recordFailure(rawURL, classified)
		return nil, classified
	}

	body, _ := reqCtx.GetAny(bodyKey).([]byte)
	return body, nil
}

func (f *CollyFetcher) recordFailure(rawURL string, err error) {
	category := errorTypeLabel(err)
	f.metrics.IncError(category)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorCount++
	f.errorsByType[category]++
	// retries of the same URL arrive back to back
	if n := len(f.failedURLs); n == 0 || f.failedURLs[n-1] != rawURL {
		f.failedURLs = append(f.failedURLs, rawURL)
	}
}

// Stats implements StatsReporter.
func (f *CollyFetcher) Stats() FetchStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	byType := make(map[string]int, len(f.errorsByType))
	for k, v := range f.errorsByType {
		byType[k] = v
	}
	failed := make([]string, len(f.failedURLs))
	copy(failed, f.failedURLs)

	return FetchStats{
		Requests:     f.requests,
		Errors:       f.errorCount,
		ErrorsByType: byType,
		FailedURLs:   failed,
	}
}
