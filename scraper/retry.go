package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/catalog-scraper/config"
)

// RetryFetcher retries transient failures of the wrapped Fetcher with capped
// exponential backoff. Non-transient failures, 404 included, are returned at once.
type RetryFetcher struct {
	next        Fetcher
	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
	metrics     *Metrics
	sleep       func(context.Context, time.Duration) error

	mu           sync.Mutex
	totalRetries int
}

// NewRetryFetcher wraps next with the retry policy from cfg.
func NewRetryFetcher(next Fetcher, cfg *config.Config, metrics *Metrics) *RetryFetcher {
	return &RetryFetcher{
		next:        next,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.RetryBackoff,
		backoffMax:  cfg.RetryBackoffMax,
		metrics:     metrics,
		sleep:       sleepContext,
	}
}

// Fetch implements Fetcher.
func (rf *RetryFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		body, err := rf.next.Fetch(ctx, url)
		if err == nil {
			return body, nil
		}
		if attempt > rf.maxRetries || !IsTransient(err) {
			return nil, err
		}

		rf.mu.Lock()
		rf.totalRetries++
		rf.mu.Unlock()
		rf.metrics.IncRetries()

		delay := rf.backoff(attempt)
		slog.Debug("retrying request",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if err := rf.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (rf *RetryFetcher) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rf.backoffBase
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rf.backoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// TotalRetries returns the number of retries issued so far.
func (rf *RetryFetcher) TotalRetries() int {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.totalRetries
}

// Stats implements StatsReporter.
func (rf *RetryFetcher) Stats() FetchStats {
	var stats FetchStats
	if reporter, ok := rf.next.(StatsReporter); ok {
		stats = reporter.Stats()
	}
	stats.Retries += rf.TotalRetries()
	return stats
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
