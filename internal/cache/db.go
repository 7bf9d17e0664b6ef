package cache

import (
	"database/sql"
	"sync"
)

// DB wraps sql.DB with mutex synchronization for write operations.
// SQLite allows one writer at a time; serializing writes here avoids
// SQLITE_BUSY churn when scan and report commands overlap.
type DB struct {
	conn    *sql.DB
	writeMu sync.Mutex
}

// NewDB opens a synchronized database wrapper.
func NewDB(driverName, dataSourceName string) (*DB, error) {
	conn, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}

	if driverName == "sqlite" {
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA foreign_keys=ON",
			"PRAGMA synchronous=NORMAL",
		} {
			if _, err := conn.Exec(pragma); err != nil {
				conn.Close()
				return nil, err
			}
		}
	}

	return &DB{conn: conn}, nil
}

// Exec executes a statement with mutex protection for writes
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	return db.conn.Exec(query, args...)
}

// Query performs read operations (no mutex needed for reads)
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow performs single row reads (no mutex needed for reads)
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}

// Close closes the database connection
func (db *DB) Close() error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	return db.conn.Close()
}
