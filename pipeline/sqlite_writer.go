package pipeline

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-products/models"
	// CGO-free SQLite driver
	_ "modernc.org/sqlite"
)

const productsSchema = `
CREATE TABLE IF NOT EXISTS products (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	link       TEXT,
	source_url TEXT NOT NULL,
	position   INTEGER NOT NULL,
	scraped_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_source_url ON products(source_url);
`

// SQLiteWriter stores records in the products table of a SQLite database.
// A null link is stored as NULL.
type SQLiteWriter struct {
	db *sql.DB
	mu sync.Mutex

	// rows already in the table when it was opened, and rows added since
	baseline int
	written  int
}

// NewSQLiteWriter opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// single connection, the workers serialize on mu anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(productsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create products schema: %w", err)
	}

	sw := &SQLiteWriter{db: db}
	if sw.baseline, err = sw.countProducts(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sw, nil
}

// Write inserts one batch in a single transaction.
func (sw *SQLiteWriter) Write(records []*models.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	tx, err := sw.db.Begin()
	if err != nil {
		return fmt.Errorf("begin sqlite transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT INTO products (link, source_url, position, scraped_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var link sql.NullString
		if r.Link != nil {
			link = sql.NullString{String: *r.Link, Valid: true}
		}
		if _, err := stmt.Exec(link, r.SourceURL, r.Position, r.ScrapedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert record from %s: %w", r.SourceURL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite transaction: %w", err)
	}
	sw.written += len(records)
	return nil
}

// Close closes the database handle.
func (sw *SQLiteWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.db.Close()
}

// Validate runs an integrity check and makes sure every written row is in
// the products table. An empty table is valid.
func (sw *SQLiteWriter) Validate() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	var result string
	if err := sw.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("sqlite integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("sqlite integrity check: %s", result)
	}

	count, err := sw.countProducts()
	if err != nil {
		return err
	}
	if want := sw.baseline + sw.written; count != want {
		return fmt.Errorf("products table holds %d rows, want %d", count, want)
	}
	return nil
}

func (sw *SQLiteWriter) countProducts() (int, error) {
	var count int
	if err := sw.db.QueryRow("SELECT COUNT(*) FROM products").Scan(&count); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return count, nil
}
