package pipeline

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aluiziolira/catalog-scraper/models"
)

// SQLiteWriter stores items in an "items" table, recreated on open.
type SQLiteWriter struct {
	db       *sql.DB
	runID    string
	position int
	mu       sync.Mutex
}

// NewSQLiteWriter opens (or creates) the database file and resets the items table.
func NewSQLiteWriter(filename, runID string) (*SQLiteWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", filename+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect sqlite database: %w", err)
	}

	w := &SQLiteWriter{db: db, runID: runID}
	if err := w.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize sqlite schema: %w", err)
	}
	return w, nil
}

func (w *SQLiteWriter) initSchema() error {
	schema := `
	DROP TABLE IF EXISTS items;

	CREATE TABLE items (
		position INTEGER PRIMARY KEY,
		run_id TEXT NOT NULL,
		title TEXT NOT NULL,
		price TEXT NOT NULL,
		availability TEXT NOT NULL,
		rating TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		url TEXT NOT NULL
	);

	CREATE INDEX idx_items_url ON items(url);
	`

	_, err := w.db.Exec(schema)
	return err
}

// Write inserts items in a single transaction, keeping their order in position.
func (w *SQLiteWriter) Write(items []*models.Item) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO items (position, run_id, title, price, availability, rating, category, description, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		w.position++
		if _, err := stmt.Exec(w.position, w.runID, item.Title, item.Price, item.Availability, item.Rating, item.Category, item.Description, item.URL); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert item %s: %w", item.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit items: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}

// Validate ensures at least one item was stored.
func (w *SQLiteWriter) Validate() error {
	var count int
	if err := w.db.QueryRow("SELECT COUNT(*) FROM items").Scan(&count); err != nil {
		return fmt.Errorf("count items: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("sqlite items table is empty")
	}
	return nil
}
