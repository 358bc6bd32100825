package parser

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/catalog-scraper/models"
)

// ItemSelector matches one item card on a catalog page.
const ItemSelector = "article.product_pod"

// ParseListing enumerates the item summaries of a catalog page in page
// order. Items with a missing field are reported in the error slice and left
// out; the rest of the page is still returned.
func ParseListing(doc *goquery.Document, resolver *Resolver) ([]models.ItemSummary, []error) {
	var (
		summaries []models.ItemSummary
		errs      []error
	)

	doc.Find(ItemSelector).Each(func(i int, pod *goquery.Selection) {
		summary, err := parseSummary(pod, resolver)
		if err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i+1, err))
			return
		}
		summaries = append(summaries, summary)
	})

	return summaries, errs
}

func parseSummary(pod *goquery.Selection, resolver *Resolver) (models.ItemSummary, error) {
	title, err := firstAttr(pod, "title", "h3 a", "title")
	if err != nil {
		return models.ItemSummary{}, err
	}
	price, err := firstText(pod, "price", "p.price_color")
	if err != nil {
		return models.ItemSummary{}, err
	}
	href, err := firstAttr(pod, "detail link", "h3 a", "href")
	if err != nil {
		return models.ItemSummary{}, err
	}
	src, err := firstAttr(pod, "thumbnail link", "img", "src")
	if err != nil {
		return models.ItemSummary{}, err
	}

	detailURL, err := resolver.Product(href)
	if err != nil {
		return models.ItemSummary{}, err
	}
	thumbnailURL, err := resolver.Thumbnail(src)
	if err != nil {
		return models.ItemSummary{}, err
	}

	return models.ItemSummary{
		Title:        title,
		Price:        price,
		DetailURL:    detailURL,
		ThumbnailURL: thumbnailURL,
	}, nil
}
