// Package models defines data structures for the scraper.
package models

import "time"

// NoDescription is recorded when a detail page carries no description block.
const NoDescription = "No description available"

// CSVHeader is the column order of the tabular export.
var CSVHeader = []string{"Title", "Price", "Availability", "Rating", "Category", "Description", "URL"}

// ItemSummary is the abbreviated record shown on a catalog page.
type ItemSummary struct {
	Title        string
	Price        string
	DetailURL    string
	ThumbnailURL string
}

// Item represents a fully extracted catalog item.
type Item struct {
	Title        string `csv:"Title" json:"title"`
	Price        string `csv:"Price" json:"price"`
	Availability string `csv:"Availability" json:"availability"`
	Rating       string `csv:"Rating" json:"rating"`
	Category     string `csv:"Category" json:"category"`
	Description  string `csv:"Description" json:"description"`
	URL          string `csv:"URL" json:"url"`
}

// Row returns the item's fields in CSVHeader order.
func (i *Item) Row() []string {
	return []string{
		i.Title,
		i.Price,
		i.Availability,
		i.Rating,
		i.Category,
		i.Description,
		i.URL,
	}
}

// ScraperResult holds the overall result of a scraping operation
type ScraperResult struct {
	RunID            string
	Items            []*Item
	StartTime        time.Time
	EndTime          time.Time
	PageCount        int
	ItemsSeen        int
	ItemsDropped     int
	ThumbnailsSaved  int
	ThumbnailsFailed int
	RequestCount     int
	ErrorCount       int
	RetryCount       int
	FailedURLs       []string
	ErrorsByType     map[string]int
	Interrupted      bool
}
