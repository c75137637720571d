package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed catalog. When seed is true and the
// products table is empty, a set of demo products is inserted so the
// storefront works out of the box.
func NewSQLite(dbPath string, seed bool) (*SQLiteCatalog, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cat := &SQLiteCatalog{db: db}
	if err := cat.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if seed {
		if err := cat.seedIfEmpty(context.Background()); err != nil {
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
	}

	return cat, nil
}

func (c *SQLiteCatalog) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS products (
		product_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		list_price REAL NOT NULL,
		original_price REAL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := c.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// demoProducts are inserted on first boot when seeding is enabled.
var demoProducts = []Product{
	{ID: "lamp-aurora", Name: "Aurora Desk Lamp", Description: "Dimmable brass desk lamp with a linen shade.", ListPrice: 299.99, OriginalPrice: priceRef(349.99)},
	{ID: "chair-walnut", Name: "Walnut Lounge Chair", Description: "Mid-century lounge chair in oiled walnut.", ListPrice: 549.00},
	{ID: "rug-kilim", Name: "Kilim Area Rug", Description: "Hand-woven wool kilim, 5x8.", ListPrice: 429.50, OriginalPrice: priceRef(499.00)},
	{ID: "speaker-oak", Name: "Oak Bookshelf Speakers", Description: "Passive bookshelf pair with oak veneer cabinets.", ListPrice: 189.99},
}

func (c *SQLiteCatalog) seedIfEmpty(ctx context.Context) error {
	var count int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return fmt.Errorf("count products: %w", err)
	}
	if count > 0 {
		return nil
	}

	now := time.Now().Unix()
	for _, p := range demoProducts {
		var original interface{}
		if p.OriginalPrice != nil {
			original = *p.OriginalPrice
		}
		_, err := c.db.ExecContext(ctx, `
			INSERT INTO products (product_id, name, description, list_price, original_price, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.Description, p.ListPrice, original, now,
		)
		if err != nil {
			return fmt.Errorf("insert product %s: %w", p.ID, err)
		}
	}
	return nil
}

// ListProducts returns all products in insertion order.
func (c *SQLiteCatalog) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT product_id, name, description, list_price, original_price
		FROM products ORDER BY created_at, product_id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetProduct retrieves a product by ID. Returns nil when not found.
func (c *SQLiteCatalog) GetProduct(ctx context.Context, id string) (*Product, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT product_id, name, description, list_price, original_price
		FROM products WHERE product_id = ?`, id)

	p, err := scanProduct(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanProduct(scan func(dest ...interface{}) error) (*Product, error) {
	var p Product
	var original sql.NullFloat64

	if err := scan(&p.ID, &p.Name, &p.Description, &p.ListPrice, &original); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan product row: %w", err)
	}
	if original.Valid {
		p.OriginalPrice = &original.Float64
	}
	return &p, nil
}

// Ping verifies database connectivity.
func (c *SQLiteCatalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

func priceRef(v float64) *float64 {
	return &v
}
