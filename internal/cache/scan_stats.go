package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ScanStats keeps per-project scan-cycle history: when each scan ran,
// how long it took and what the reconciliation changed. This is
// operator bookkeeping, kept out of the defect store on purpose.
type ScanStats struct {
	db *DB
}

// ScanCycle is one recorded execution of the tool-runner over a project.
type ScanCycle struct {
	Project      string
	StartedAt    time.Time
	Duration     time.Duration
	FindingCount int
	Created      int
	Fixed        int
	Revived      int
}

// NewScanStats opens the stats database in the default cache location.
func NewScanStats() (*ScanStats, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	dataDir := filepath.Join(homeDir, ".cache", "defect-track")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return NewScanStatsWithPath(filepath.Join(dataDir, "scan-stats.db"))
}

// NewScanStatsWithPath opens the stats database at an explicit path.
func NewScanStatsWithPath(dbPath string) (*ScanStats, error) {
	db, err := NewDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}

	s := &ScanStats{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize stats schema: %w", err)
	}
	return s, nil
}

func (s *ScanStats) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scan_cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		finding_count INTEGER NOT NULL,
		created INTEGER NOT NULL,
		fixed INTEGER NOT NULL,
		revived INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scan_cycles_project ON scan_cycles(project, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordScan appends one scan cycle to the history.
func (s *ScanStats) RecordScan(cycle ScanCycle) error {
	_, err := s.db.Exec(`
		INSERT INTO scan_cycles (project, started_at, duration_ms, finding_count, created, fixed, revived)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, cycle.Project, cycle.StartedAt.Unix(), cycle.Duration.Milliseconds(),
		cycle.FindingCount, cycle.Created, cycle.Fixed, cycle.Revived)
	if err != nil {
		return fmt.Errorf("failed to record scan cycle: %w", err)
	}
	return nil
}

// History returns the most recent scan cycles of a project, newest first.
func (s *ScanStats) History(project string, limit int) ([]ScanCycle, error) {
	rows, err := s.db.Query(`
		SELECT project, started_at, duration_ms, finding_count, created, fixed, revived
		FROM scan_cycles
		WHERE project = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, project, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []ScanCycle
	for rows.Next() {
		var c ScanCycle
		var startedAt, durationMs int64
		if err := rows.Scan(&c.Project, &startedAt, &durationMs,
			&c.FindingCount, &c.Created, &c.Fixed, &c.Revived); err != nil {
			return nil, err
		}
		c.StartedAt = time.Unix(startedAt, 0)
		c.Duration = time.Duration(durationMs) * time.Millisecond
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// LastScan returns the most recent cycle of a project, or nil if it was
// never scanned.
func (s *ScanStats) LastScan(project string) (*ScanCycle, error) {
	cycles, err := s.History(project, 1)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if len(cycles) == 0 {
		return nil, nil
	}
	return &cycles[0], nil
}

// Close closes the database connection
func (s *ScanStats) Close() error {
	return s.db.Close()
}
