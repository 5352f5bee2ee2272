package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")
)

const defaultRecentLimit = 20

type Database struct {
	conn     *sql.DB
	mockMode bool
	now      func() time.Time
}

// NewDatabaseWithMockMode creates a new database connection with mock mode option
func NewDatabaseWithMockMode(dbPath string, mockMode bool) (*Database, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &Database{
		conn:     conn,
		mockMode: mockMode,
		now:      time.Now,
	}

	if err := db.initTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return db, nil
}

// IsMockMode returns true if the database is running in mock mode
func (db *Database) IsMockMode() bool {
	return db.mockMode
}

// getTableName returns the appropriate table name based on mock mode.
// baseName must only ever be a hardcoded literal.
func (db *Database) getTableName(baseName string) string {
	if db.mockMode {
		return baseName + "_mock"
	}
	return baseName
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.conn.Close()
}

// Ping checks that the database file is reachable.
func (db *Database) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// initTables creates all required tables
func (db *Database) initTables() error {
	var queries []string
	for _, table := range []string{"searches", "searches_mock"} {
		queries = append(queries,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				timestamp DATETIME NOT NULL,
				kind TEXT NOT NULL,
				input TEXT NOT NULL,
				status TEXT NOT NULL,
				error_kind TEXT NOT NULL DEFAULT ''
			);`, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_timestamp ON %s(timestamp);`, table, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_kind ON %s(kind);`, table, table),
		)
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// RecordSearch logs one completed lookup. It satisfies explorer.Recorder.
func (db *Database) RecordSearch(ctx context.Context, kind, input, status, errorKind string) error {
	return db.InsertSearch(ctx, &SearchEntry{
		Timestamp: db.now(),
		Kind:      kind,
		Input:     input,
		Status:    status,
		ErrorKind: errorKind,
	})
}

// InsertSearch inserts a search entry and sets its ID.
func (db *Database) InsertSearch(ctx context.Context, entry *SearchEntry) error {
	if strings.TrimSpace(entry.Input) == "" {
		return fmt.Errorf("search input is required")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = db.now()
	}

	tableName := db.getTableName("searches")
	query := fmt.Sprintf(`
		INSERT INTO %s (timestamp, kind, input, status, error_kind)
		VALUES (?, ?, ?, ?, ?)
	`, tableName)

	result, err := db.conn.ExecContext(ctx, query,
		entry.Timestamp.UTC(),
		entry.Kind,
		entry.Input,
		entry.Status,
		entry.ErrorKind,
	)
	if err != nil {
		return err
	}

	entry.ID, err = result.LastInsertId()
	return err
}

// GetRecentSearches returns up to limit entries, newest first.
func (db *Database) GetRecentSearches(ctx context.Context, limit int) ([]SearchEntry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	tableName := db.getTableName("searches")
	query := fmt.Sprintf(`
		SELECT id, timestamp, kind, input, status, error_kind
		FROM %s
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, tableName)

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []SearchEntry{}
	for rows.Next() {
		var e SearchEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Kind, &e.Input, &e.Status, &e.ErrorKind); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetSearchByID retrieves one entry.
func (db *Database) GetSearchByID(ctx context.Context, id int64) (*SearchEntry, error) {
	tableName := db.getTableName("searches")
	query := fmt.Sprintf(`
		SELECT id, timestamp, kind, input, status, error_kind
		FROM %s
		WHERE id = ?
	`, tableName)

	var e SearchEntry
	err := db.conn.QueryRowContext(ctx, query, id).Scan(&e.ID, &e.Timestamp, &e.Kind, &e.Input, &e.Status, &e.ErrorKind)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &e, nil
}

// CountSearchesByKind tallies entries per lookup kind with their failures.
func (db *Database) CountSearchesByKind(ctx context.Context) ([]KindCount, error) {
	tableName := db.getTableName("searches")
	query := fmt.Sprintf(`
		SELECT kind,
		       COUNT(*) AS total,
		       SUM(CASE WHEN error_kind != '' THEN 1 ELSE 0 END) AS failed
		FROM %s
		GROUP BY kind
		ORDER BY kind ASC
	`, tableName)

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []KindCount
	for rows.Next() {
		var c KindCount
		if err := rows.Scan(&c.Kind, &c.Total, &c.Failed); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}

// PruneSearches deletes entries older than before and returns how many went.
func (db *Database) PruneSearches(ctx context.Context, before time.Time) (int64, error) {
	tableName := db.getTableName("searches")
	query := fmt.Sprintf(`DELETE FROM %s WHERE timestamp < ?`, tableName)

	result, err := db.conn.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
