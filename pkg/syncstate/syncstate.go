// Package syncstate tracks which byte ranges of a shared container have
// already been uploaded, so interrupted transfers resume where they left
// off instead of re-sending the whole container.
package syncstate

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mizunoh/blobvault/pkg/svdf"

	_ "modernc.org/sqlite"
)

const (
	// DBFileName is the ledger database file inside the vault directory.
	DBFileName = "sync.db"

	schemaVersion = 1
)

// ErrClosed indicates an operation on a closed store.
var ErrClosed = errors.New("syncstate: store is closed")

// Store is the sqlite-backed upload ledger.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("syncstate: failed to open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS uploaded_ranges (
			share_id TEXT NOT NULL,
			offset INTEGER NOT NULL,
			length INTEGER NOT NULL,
			uploaded_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_uploaded_ranges_share
			ON uploaded_ranges(share_id, offset)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("syncstate: failed to create tables: %w", err)
		}
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return fmt.Errorf("syncstate: failed to read schema version: %w", err)
	}
	if count == 0 {
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("syncstate: failed to write schema version: %w", err)
		}
	}
	return nil
}

// MarkUploaded records one transferred range for a share.
func (s *Store) MarkUploaded(shareID string, r svdf.ByteRange) error {
	if s.db == nil {
		return ErrClosed
	}
	_, err := s.db.Exec(
		"INSERT INTO uploaded_ranges(share_id, offset, length, uploaded_at) VALUES(?, ?, ?, ?)",
		shareID, r.Offset, r.Length, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("syncstate: failed to record range: %w", err)
	}
	return nil
}

// UploadedRanges returns the recorded ranges for a share, sorted and with
// overlapping or adjacent spans merged.
func (s *Store) UploadedRanges(shareID string) ([]svdf.ByteRange, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.Query(
		"SELECT offset, length FROM uploaded_ranges WHERE share_id = ? ORDER BY offset",
		shareID,
	)
	if err != nil {
		return nil, fmt.Errorf("syncstate: failed to query ranges: %w", err)
	}
	defer rows.Close()

	var ranges []svdf.ByteRange
	for rows.Next() {
		var r svdf.ByteRange
		if err := rows.Scan(&r.Offset, &r.Length); err != nil {
			return nil, fmt.Errorf("syncstate: failed to scan range: %w", err)
		}
		ranges = append(ranges, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("syncstate: failed to iterate ranges: %w", err)
	}
	return mergeRanges(ranges), nil
}

// PendingRanges filters wanted down to the spans not yet fully covered by
// the uploaded ledger. Partially covered spans are returned whole: the
// transport re-sends the chunk rather than splitting it.
func (s *Store) PendingRanges(shareID string, wanted []svdf.ByteRange) ([]svdf.ByteRange, error) {
	uploaded, err := s.UploadedRanges(shareID)
	if err != nil {
		return nil, err
	}
	pending := make([]svdf.ByteRange, 0, len(wanted))
	for _, w := range wanted {
		if !covered(w, uploaded) {
			pending = append(pending, w)
		}
	}
	return pending, nil
}

// Reset forgets all upload state for a share. Callers invoke it after a
// full rebuild, when prior container bytes no longer match.
func (s *Store) Reset(shareID string) error {
	if s.db == nil {
		return ErrClosed
	}
	if _, err := s.db.Exec("DELETE FROM uploaded_ranges WHERE share_id = ?", shareID); err != nil {
		return fmt.Errorf("syncstate: failed to reset share: %w", err)
	}
	return nil
}

func mergeRanges(ranges []svdf.ByteRange) []svdf.ByteRange {
	if len(ranges) == 0 {
		return nil
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Offset < ranges[j].Offset })
	merged := []svdf.ByteRange{ranges[0]}
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r.Offset <= last.End() {
			if r.End() > last.End() {
				last.Length = r.End() - last.Offset
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

func covered(w svdf.ByteRange, uploaded []svdf.ByteRange) bool {
	for _, u := range uploaded {
		if u.Offset <= w.Offset && u.End() >= w.End() {
			return true
		}
	}
	return false
}
