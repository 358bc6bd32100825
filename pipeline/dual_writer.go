package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aluiziolira/catalog-scraper/models"
)

// MultiWriter fans every write out to several writers in order.
type MultiWriter struct {
	writers []OutputWriter
	names   []string
}

// NewDualWriter writes the CSV export and a JSON lines copy next to it.
func NewDualWriter(csvFilename, jsonFilename string) (*MultiWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("failed to create JSON writer: %w", err)
	}

	return &MultiWriter{
		writers: []OutputWriter{csvWriter, jsonWriter},
		names:   []string{"CSV", "JSON"},
	}, nil
}

// DualJSONFilename derives the JSON lines path used next to a CSV export.
func DualJSONFilename(csvFilename string) string {
	return strings.TrimSuffix(csvFilename, ".csv") + ".jsonl"
}

// Write writes items to every underlying writer, stopping at the first failure.
func (mw *MultiWriter) Write(items []*models.Item) error {
	for i, w := range mw.writers {
		if err := w.Write(items); err != nil {
			return fmt.Errorf("%s write failed: %w", mw.names[i], err)
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (mw *MultiWriter) Close() error {
	var errs []error
	for i, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s close failed: %w", mw.names[i], err))
		}
	}
	return errors.Join(errs...)
}

// Validate validates every output.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for i, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s validation failed: %w", mw.names[i], err))
		}
	}
	return errors.Join(errs...)
}
