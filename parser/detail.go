package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/catalog-scraper/models"
)

const (
	productMainSelector = "div.product_main"
	descriptionMarker   = "div#product_description"
	breadcrumbSelector  = "ul.breadcrumb"
	categoryCrumb       = 2
)

// ParseDetail extracts the extended attributes of an item from its detail
// page. Title and Price hold the detail-page values; callers may replace them.
func ParseDetail(doc *goquery.Document, pageURL string) (*models.Item, error) {
	block := doc.Find(productMainSelector).First()
	if block.Length() == 0 {
		return nil, missing("product main", productMainSelector)
	}

	title, err := firstText(block, "title", "h1")
	if err != nil {
		return nil, err
	}
	price, err := firstText(block, "price", "p.price_color")
	if err != nil {
		return nil, err
	}
	availability, err := extractAvailability(block)
	if err != nil {
		return nil, err
	}
	rating, err := extractRating(block)
	if err != nil {
		return nil, err
	}
	category, err := extractCategory(doc.Selection)
	if err != nil {
		return nil, err
	}

	return &models.Item{
		Title:        title,
		Price:        price,
		Availability: availability,
		Rating:       rating,
		Category:     category,
		Description:  extractDescription(doc.Selection),
		URL:          pageURL,
	}, nil
}

func extractAvailability(block *goquery.Selection) (string, error) {
	text, err := firstText(block, "availability", "p.instock.availability")
	if err != nil {
		return "", err
	}
	return NormalizeAvailability(text), nil
}

// extractRating reads the label from the second class token, e.g.
// class="star-rating Three" yields "Three".
func extractRating(block *goquery.Selection) (string, error) {
	class, err := firstAttr(block, "rating", "p.star-rating", "class")
	if err != nil {
		return "", err
	}
	tokens := strings.Fields(class)
	if len(tokens) < 2 {
		return "", missing("rating", "p.star-rating[class] second token")
	}
	return tokens[1], nil
}

func extractCategory(doc *goquery.Selection) (string, error) {
	// only the first breadcrumb trail counts
	crumbs := doc.Find(breadcrumbSelector).First().Find("a")
	if crumbs.Length() <= categoryCrumb {
		return "", missing("category", breadcrumbSelector+" a")
	}
	return strings.TrimSpace(crumbs.Eq(categoryCrumb).Text()), nil
}

// extractDescription never fails: pages without a description block get
// models.NoDescription.
func extractDescription(doc *goquery.Selection) string {
	marker := doc.Find(descriptionMarker).First()
	if marker.Length() == 0 {
		return models.NoDescription
	}
	paragraph := marker.NextAllFiltered("p").First()
	if paragraph.Length() == 0 {
		return models.NoDescription
	}
	return strings.TrimSpace(paragraph.Text())
}
