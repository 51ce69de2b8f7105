// Package database provides database connection management.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/at-ishikawa/kikitori/internal/config"
)

// DriverName is the database/sql driver used for the content store.
const DriverName = "sqlite3"

// Queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type Queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

var (
	_ Queryer = (*sqlx.DB)(nil)
	_ Queryer = (*sqlx.Tx)(nil)
)

// DSN builds the go-sqlite3 data source name for the configured database file.
func DSN(cfg config.DatabaseConfig) string {
	params := []string{"_foreign_keys=on"}
	if cfg.BusyTimeoutMs > 0 {
		params = append(params, fmt.Sprintf("_busy_timeout=%d", cfg.BusyTimeoutMs))
	}
	return fmt.Sprintf("file:%s?%s", cfg.Path, strings.Join(params, "&"))
}

// Open opens the SQLite database file described by cfg, creating its directory if needed.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	db, err := sqlx.Open(DriverName, DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}

	// SQLite serializes writers at the file level
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return db, nil
}

// TxBeginner is satisfied by *sqlx.DB and by a pinned *sqlx.Conn.
type TxBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

var (
	_ TxBeginner = (*sqlx.DB)(nil)
	_ TxBeginner = (*sqlx.Conn)(nil)
)

// RunInTx runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back; otherwise, it is committed.
func RunInTx(ctx context.Context, db TxBeginner, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback transaction: %w (original error: %v)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// BuildMultiRowInsert builds an INSERT statement with rowCount placeholder groups.
func BuildMultiRowInsert(table string, columns []string, rowCount int) string {
	placeholder := "(" + strings.Repeat("?, ", len(columns)-1) + "?)"
	values := strings.Repeat(placeholder+", ", rowCount-1) + placeholder
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(columns, ", "), values)
}

// Chunks splits n rows into consecutive [start, end) ranges of at most size rows,
// keeping multi-row inserts below SQLite's bound-variable limit.
func Chunks(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var ranges [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}
