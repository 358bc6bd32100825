package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/catalog-scraper/config"
	"github.com/aluiziolira/catalog-scraper/models"
	"github.com/aluiziolira/catalog-scraper/parser"
)

// ThumbnailRetriever persists an item's image. It returns the written path,
// or "" when the image could not be downloaded. Errors are fatal.
type ThumbnailRetriever interface {
	Retrieve(ctx context.Context, thumbnailURL, title string) (string, error)
}

// Scraper walks the catalog page by page and extracts every listed item.
type Scraper struct {
	cfg        *config.Config
	fetcher    Fetcher
	thumbnails ThumbnailRetriever
	resolver   *parser.Resolver
	Metrics    *Metrics
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, fetcher Fetcher, thumbnails ThumbnailRetriever, metrics *Metrics) (*Scraper, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if thumbnails == nil {
		return nil, errors.New("thumbnail retriever is required")
	}

	resolver, err := parser.NewResolver(cfg.BaseURL, cfg.CatalogPath, cfg.ProductPath)
	if err != nil {
		return nil, fmt.Errorf("build resolver: %w", err)
	}

	return &Scraper{
		cfg:        cfg,
		fetcher:    fetcher,
		thumbnails: thumbnails,
		resolver:   resolver,
		Metrics:    metrics,
	}, nil
}

// Run crawls catalog pages starting at page 1 until a catalog page cannot be
// fetched, and returns the extracted items in discovery order.
func (s *Scraper) Run(ctx context.Context) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := &models.ScraperResult{
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
	}
	slog.Info("starting crawl",
		slog.String("run_id", result.RunID),
		slog.String("first_page", s.resolver.CatalogPage(1)),
	)

	for page := 1; ; page++ {
		if s.cfg.MaxPages > 0 && page > s.cfg.MaxPages {
			slog.Info("page limit reached", slog.Int("max_pages", s.cfg.MaxPages))
			break
		}
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}

		more, err := s.scrapePage(ctx, page, result)
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}

	if result.Interrupted {
		slog.Warn("crawl interrupted", slog.Int("pages", result.PageCount), slog.Int("items", len(result.Items)))
	}

	s.finish(result)
	return result, nil
}

// scrapePage handles one catalog page and reports whether traversal goes on.
func (s *Scraper) scrapePage(ctx context.Context, page int, result *models.ScraperResult) (bool, error) {
	pageURL := s.resolver.CatalogPage(page)

	body, err := s.fetcher.Fetch(withPhase(ctx, phaseCatalog), pageURL)
	if err != nil {
		if ctx.Err() != nil {
			result.Interrupted = true
			return false, nil
		}
		slog.Info("no more pages to scrape",
			slog.Int("page", page),
			slog.String("url", pageURL),
			slog.Any("error", err),
		)
		return false, nil
	}
	result.PageCount++
	s.Metrics.IncPages()

	doc, err := parser.NewDocument(body)
	if err != nil {
		return false, fmt.Errorf("catalog page %d: %w", page, err)
	}

	summaries, parseErrs := parser.ParseListing(doc, s.resolver)
	for _, parseErr := range parseErrs {
		result.ItemsSeen++
		result.ItemsDropped++
		s.Metrics.IncDropped("listing_parse")
		slog.Warn("skipping malformed catalog item",
			slog.Int("page", page),
			slog.String("url", pageURL),
			slog.Any("error", parseErr),
		)
	}

	slog.Info("scraping catalog page",
		slog.Int("page", page),
		slog.Int("items", len(summaries)),
	)

	if len(summaries) == 0 && len(parseErrs) == 0 && s.cfg.StopOnEmptyPage {
		slog.Info("catalog page has no items, stopping", slog.Int("page", page))
		return false, nil
	}

	for _, summary := range summaries {
		if ctx.Err() != nil {
			result.Interrupted = true
			return false, nil
		}

		result.ItemsSeen++
		item, err := s.scrapeItem(ctx, summary, result)
		if err != nil {
			return false, err
		}
		if item == nil {
			continue
		}
		result.Items = append(result.Items, item)
		s.Metrics.IncItems()
	}

	return true, nil
}

// scrapeItem downloads the thumbnail, then the detail page. A nil item with a
// nil error means the item was dropped.
func (s *Scraper) scrapeItem(ctx context.Context, summary models.ItemSummary, result *models.ScraperResult) (*models.Item, error) {
	path, err := s.thumbnails.Retrieve(withPhase(ctx, phaseThumbnail), summary.ThumbnailURL, summary.Title)
	if err != nil {
		return nil, fmt.Errorf("thumbnail for %q: %w", summary.Title, err)
	}
	if path == "" {
		result.ThumbnailsFailed++
		s.Metrics.IncThumbnail("failed")
	} else {
		result.ThumbnailsSaved++
		s.Metrics.IncThumbnail("saved")
	}

	body, err := s.fetcher.Fetch(withPhase(ctx, phaseDetail), summary.DetailURL)
	if err != nil {
		result.ItemsDropped++
		s.Metrics.IncDropped("detail_fetch")
		slog.Warn("failed to fetch the product page",
			slog.String("url", summary.DetailURL),
			slog.Any("error", err),
		)
		return nil, nil
	}

	doc, err := parser.NewDocument(body)
	if err != nil {
		return nil, fmt.Errorf("detail page %s: %w", summary.DetailURL, err)
	}

	item, err := parser.ParseDetail(doc, summary.DetailURL)
	if err != nil {
		result.ItemsDropped++
		s.Metrics.IncDropped("detail_parse")
		slog.Warn("error extracting details",
			slog.String("url", summary.DetailURL),
			slog.Any("error", err),
		)
		return nil, nil
	}

	// listing values take precedence over the detail page
	item.Title = summary.Title
	item.Price = summary.Price
	return item, nil
}

func (s *Scraper) finish(result *models.ScraperResult) {
	result.EndTime = time.Now()

	reporter, ok := s.fetcher.(StatsReporter)
	if !ok {
		return
	}
	stats := reporter.Stats()
	result.RequestCount = stats.Requests
	result.ErrorCount = stats.Errors
	result.RetryCount = stats.Retries
	result.ErrorsByType = stats.ErrorsByType
	result.FailedURLs = stats.FailedURLs
}
