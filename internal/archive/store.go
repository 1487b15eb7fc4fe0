// Package archive persists encoded position snapshots in SQLite.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/positioner/internal/snapshot"
	"github.com/banshee-data/positioner/internal/timeutil"
)

// ErrNotFound is returned when no snapshot matches a lookup.
var ErrNotFound = errors.New("snapshot not found")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
}

// Store is a snapshot archive backed by one SQLite file.
type Store struct {
	*sql.DB
	clock timeutil.Clock
}

// Record is one archived snapshot.
type Record struct {
	ID         string
	Name       string
	Label      string
	ScanPoint  int
	CapturedAt time.Time
	Snapshot   snapshot.Snapshot
}

// Open opens or creates the archive at path and brings its schema up to
// date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	s := &Store{DB: db, clock: timeutil.RealClock{}}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// SetClock replaces the clock used to stamp saved snapshots.
func (s *Store) SetClock(c timeutil.Clock) { s.clock = c }

// Save archives snap under an optional label and scan point (-1 for none)
// and returns the new record id.
func (s *Store) Save(snap snapshot.Snapshot, label string, scanPoint int) (string, error) {
	payload, err := snapshot.Marshal(snap)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = s.Exec(
		`INSERT INTO snapshots (snapshot_id, name, label, captured_at, payload, scan_point)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, snap.Name, label, s.clock.Now().UnixNano(), payload, scanPoint,
	)
	if err != nil {
		return "", fmt.Errorf("save snapshot %s: %w", snap.Name, err)
	}
	return id, nil
}

const selectRecord = `SELECT snapshot_id, name, label, scan_point, captured_at, payload FROM snapshots`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r       Record
		nanos   int64
		payload []byte
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Label, &r.ScanPoint, &nanos, &payload); err != nil {
		return Record{}, err
	}
	snap, err := snapshot.Unmarshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	r.CapturedAt = time.Unix(0, nanos).UTC()
	r.Snapshot = snap
	return r, nil
}

// Load returns the record with the given id.
func (s *Store) Load(id string) (Record, error) {
	r, err := scanRecord(s.QueryRow(selectRecord+` WHERE snapshot_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: id %s", ErrNotFound, id)
	}
	return r, err
}

// Latest returns the most recent record for a positionable name.
func (s *Store) Latest(name string) (Record, error) {
	r, err := scanRecord(s.QueryRow(
		selectRecord+` WHERE name = ? ORDER BY captured_at DESC, rowid DESC LIMIT 1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: name %s", ErrNotFound, name)
	}
	return r, err
}

// List returns every record with the given label in capture order.
func (s *Store) List(label string) ([]Record, error) {
	rows, err := s.Query(selectRecord+` WHERE label = ? ORDER BY captured_at, rowid`, label)
	if err != nil {
		return nil, fmt.Errorf("list snapshots %q: %w", label, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
