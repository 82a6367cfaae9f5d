package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"nestsync/pkg/errors"
)

// Activity is one activity event from the remote feed, cached locally.
// Payload holds the full raw record; the other columns are hoisted for
// windowed queries and processing state.
type Activity struct {
	ID         string
	StudentID  string
	EventDate  time.Time
	ActionType string
	Processed  bool
	Payload    []byte
}

// Store is the durable SQLite-backed cache of activity records and auth
// tokens. Single-process access assumed.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS activities (
  id          TEXT PRIMARY KEY,
  student_id  TEXT NOT NULL,
  event_date  TEXT NOT NULL,
  action_type TEXT NOT NULL,
  processed   INTEGER NOT NULL DEFAULT 0,
  payload     BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activities_student ON activities(student_id);
CREATE TABLE IF NOT EXISTS auth (
  login TEXT PRIMARY KEY,
  token TEXT NOT NULL
);
`

const eventDateFormat = time.RFC3339

// Open opens (creating if necessary) the store at the given path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(errors.ErrorTypeStorage, "failed to create store directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, "failed to open store", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrorTypeStorage, "failed to initialize schema", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertActivity inserts the record if its id is absent and reports whether
// a row was inserted. An existing id is left completely untouched, so
// repeated windowed fetches never regress the processed flag.
func (s *Store) UpsertActivity(rec *Activity) (bool, error) {
	const stmt = `
INSERT INTO activities (id, student_id, event_date, action_type, processed, payload)
VALUES (?, ?, ?, ?, 0, ?)
ON CONFLICT(id) DO NOTHING;
`
	res, err := s.db.Exec(stmt,
		rec.ID,
		rec.StudentID,
		rec.EventDate.UTC().Format(eventDateFormat),
		rec.ActionType,
		rec.Payload,
	)
	if err != nil {
		return false, errors.Wrap(errors.ErrorTypeStorage, "failed to upsert activity", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(errors.ErrorTypeStorage, "failed to read upsert result", err)
	}
	return n > 0, nil
}

// ClearStudent deletes all cached records for a single student. Used only
// under an explicit force flag.
func (s *Store) ClearStudent(studentID string) error {
	if _, err := s.db.Exec(`DELETE FROM activities WHERE student_id = ?`, studentID); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, "failed to clear student records", err)
	}
	return nil
}

// ListUnprocessed returns all records not yet processed, ordered by event
// date. An empty studentID returns records for all students.
func (s *Store) ListUnprocessed(studentID string) ([]*Activity, error) {
	query := `
SELECT id, student_id, event_date, action_type, processed, payload
FROM activities
WHERE processed = 0`
	args := []interface{}{}
	if studentID != "" {
		query += ` AND student_id = ?`
		args = append(args, studentID)
	}
	query += ` ORDER BY event_date, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, "failed to list unprocessed activities", err)
	}
	defer rows.Close()

	var out []*Activity
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, "failed to iterate activities", err)
	}
	return out, nil
}

// GetActivity returns a single record by id, or a not_found error
func (s *Store) GetActivity(id string) (*Activity, error) {
	row := s.db.QueryRow(`
SELECT id, student_id, event_date, action_type, processed, payload
FROM activities WHERE id = ?`, id)

	return scanActivity(row)
}

// CountByStudent returns the number of cached records for a student
func (s *Store) CountByStudent(studentID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM activities WHERE student_id = ?`, studentID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(errors.ErrorTypeStorage, "failed to count student records", err)
	}
	return n, nil
}

// MarkProcessed sets the processed flag for a record. Idempotent; marking
// an unknown id is a no-op.
func (s *Store) MarkProcessed(id string) error {
	if _, err := s.db.Exec(`UPDATE activities SET processed = 1 WHERE id = ?`, id); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, "failed to mark activity processed", err)
	}
	return nil
}

// Token returns the stored auth token for a login, or a not_found error
func (s *Store) Token(login string) (string, error) {
	var token string
	err := s.db.QueryRow(`SELECT token FROM auth WHERE login = ?`, login).Scan(&token)
	if err == sql.ErrNoRows {
		return "", errors.Newf(errors.ErrorTypeNotFound, "no stored token for %s", login)
	}
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeStorage, "failed to read token", err)
	}
	return token, nil
}

// PutToken stores a token for a login, replacing any existing one wholesale
func (s *Store) PutToken(login, token string) error {
	const stmt = `
INSERT INTO auth (login, token) VALUES (?, ?)
ON CONFLICT(login) DO UPDATE SET token = excluded.token;
`
	if _, err := s.db.Exec(stmt, login, token); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, "failed to store token", err)
	}
	return nil
}

// ClearToken removes a stored token. Clearing an unknown login is a no-op.
func (s *Store) ClearToken(login string) error {
	if _, err := s.db.Exec(`DELETE FROM auth WHERE login = ?`, login); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, "failed to clear token", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanActivity(row rowScanner) (*Activity, error) {
	var (
		rec       Activity
		eventDate string
		processed int
	)
	err := row.Scan(&rec.ID, &rec.StudentID, &eventDate, &rec.ActionType, &processed, &rec.Payload)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrorTypeNotFound, "activity not found")
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, "failed to scan activity", err)
	}

	rec.Processed = processed != 0
	rec.EventDate, err = time.Parse(eventDateFormat, eventDate)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage,
			fmt.Sprintf("corrupt event_date %q for activity %s", eventDate, rec.ID), err)
	}
	return &rec, nil
}
