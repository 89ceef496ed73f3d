// Package storage persists device rules, monitor settings and the
// security event audit trail in SQLite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/KnivInstitute/IronWatch/internal/log"
)

// ErrRuleNotFound is returned when a rule ID does not exist.
var ErrRuleNotFound = errors.New("rule not found")

// Storage is the SQLite-backed store. It doubles as the configuration
// provider for the monitoring service (LoadPolicy) and as its audit
// sink (AppendSecurityEvents).
type Storage struct {
	db *sql.DB
}

// NewStorage opens (creating if needed) the database under dataDir and
// applies migrations.
func NewStorage(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "ironwatch.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// write contention between the service loop and API handlers.
	db.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug("Storage ready", "path", dbPath)
	return s, nil
}

// Close releases the database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}
