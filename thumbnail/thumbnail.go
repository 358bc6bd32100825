// Package thumbnail downloads item images and stores them under their sanitized title.
package thumbnail

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Extension is appended to every stored thumbnail.
const Extension = ".jpg"

var unsafeChars = strings.NewReplacer(
	"/", "_",
	`\`, "_",
	":", "_",
	"*", "_",
	"?", "_",
	`"`, "_",
	"<", "_",
	">", "_",
	"|", "_",
	",", "_",
	".", "_",
)

// Sanitize replaces filesystem-unsafe characters in title with underscores.
func Sanitize(title string) string {
	return unsafeChars.Replace(title)
}

// Filename returns the file name a thumbnail for title is stored under.
func Filename(title string) string {
	return Sanitize(title) + Extension
}

// Fetcher downloads the raw bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Store writes thumbnails into a single directory. Titles that sanitize to the
// same name overwrite each other.
type Store struct {
	dir     string
	fetcher Fetcher
	written *lru.Cache[string, string] // file name -> title that wrote it
}

// NewStore creates dir if needed.
func NewStore(dir string, fetcher Fetcher, trackSize int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create thumbnail directory %q: %w", dir, err)
	}
	written, err := lru.New[string, string](trackSize)
	if err != nil {
		return nil, fmt.Errorf("create clobber tracker: %w", err)
	}
	return &Store{
		dir:     dir,
		fetcher: fetcher,
		written: written,
	}, nil
}

// Dir returns the directory thumbnails are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Retrieve downloads thumbnailURL and saves it as <dir>/<sanitized title>.jpg.
// A failed download is logged and yields an empty path; only write failures
// are returned.
func (s *Store) Retrieve(ctx context.Context, thumbnailURL, title string) (string, error) {
	body, err := s.fetcher.Fetch(ctx, thumbnailURL)
	if err != nil {
		slog.Warn("failed to download thumbnail",
			slog.String("title", title),
			slog.String("url", thumbnailURL),
			slog.Any("error", err),
		)
		return "", nil
	}

	name := Filename(title)
	path := filepath.Join(s.dir, name)

	if previous, ok := s.written.Get(name); ok && previous != title {
		slog.Warn("overwriting thumbnail written for another title",
			slog.String("file", name),
			slog.String("previous_title", previous),
			slog.String("title", title),
		)
	}

	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write thumbnail %q: %w", path, err)
	}
	s.written.Add(name, title)

	slog.Info("thumbnail saved", slog.String("file", name))
	return path, nil
}
