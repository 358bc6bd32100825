// Package pipeline exports the scraped result set to disk.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/catalog-scraper/models"
	"github.com/aluiziolira/catalog-scraper/parser"
)

// ErrNothingToExport is returned by Export for an empty result set. No file
// is created in that case.
var ErrNothingToExport = errors.New("pipeline: nothing to export")

const defaultBatchSize = 64

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(items []*models.Item) error
	Close() error
	Validate() error
}

// NewWriter creates the writer for format, truncating any existing output.
func NewWriter(format, filename, runID string) (OutputWriter, error) {
	switch format {
	case "csv":
		return NewCSVWriter(filename)
	case "json":
		return NewJSONWriter(filename)
	case "dual":
		return NewDualWriter(filename, DualJSONFilename(filename))
	case "sqlite":
		return NewSQLiteWriter(filename, runID)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Pipeline validates a result set and writes it in one pass.
type Pipeline struct {
	filename  string
	batchSize int
	newWriter func() (OutputWriter, error)
}

// NewPipeline builds an export stage for format and filename. The writer is
// only created once there is something to write.
func NewPipeline(format, filename, runID string) (*Pipeline, error) {
	switch format {
	case "csv", "json", "dual", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	return &Pipeline{
		filename:  filename,
		batchSize: defaultBatchSize,
		newWriter: func() (OutputWriter, error) {
			return NewWriter(format, filename, runID)
		},
	}, nil
}

// Export writes items in order and returns how many were written. Every item
// is validated before the output is opened.
func (p *Pipeline) Export(items []*models.Item) (int, error) {
	if len(items) == 0 {
		return 0, ErrNothingToExport
	}

	for i, item := range items {
		if err := parser.ValidateItem(item); err != nil {
			return 0, fmt.Errorf("record %d: %w", i+1, err)
		}
	}

	writer, err := p.newWriter()
	if err != nil {
		return 0, fmt.Errorf("create writer: %w", err)
	}

	written := 0
	for start := 0; start < len(items); start += p.batchSize {
		end := min(start+p.batchSize, len(items))
		if err := writer.Write(items[start:end]); err != nil {
			writer.Close()
			return written, fmt.Errorf("write batch: %w", err)
		}
		written = end
	}

	if err := writer.Validate(); err != nil {
		writer.Close()
		return written, fmt.Errorf("validate output: %w", err)
	}
	if err := writer.Close(); err != nil {
		return written, fmt.Errorf("close writer: %w", err)
	}

	slog.Info("data saved", slog.String("file", p.filename), slog.Int("records", written))
	return written, nil
}
