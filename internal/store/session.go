package store

import (
	"database/sql"
	"errors"
	"time"
)

// Session represents one run of the teaching loop.
type Session struct {
	ID        string
	StartedAt time.Time
	EndedAt   *time.Time
	Frames    int
}

// ClassCount is a per-class example count recorded when a session ends.
type ClassCount struct {
	ClassName string
	Examples  int
}

// SessionRepository provides CRUD operations for sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new session row.
func (r *SessionRepository) Create(sess *Session) error {
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, started_at, frames) VALUES (?, ?, ?)`,
		sess.ID, sess.StartedAt, sess.Frames,
	)
	return err
}

// Finish marks a session ended and records the frame total and per-class
// example counts in a single transaction.
func (r *SessionRepository) Finish(id string, frames int, counts map[string]int) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE sessions SET ended_at = ?, frames = ? WHERE id = ?`,
		time.Now(), frames, id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	stmt, err := tx.Prepare(`INSERT INTO session_classes (session_id, class_name, examples) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for class, examples := range counts {
		if _, err := stmt.Exec(id, class, examples); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	sess := &Session{}
	var endedAt sql.NullTime

	err := r.db.QueryRow(
		`SELECT id, started_at, ended_at, frames FROM sessions WHERE id = ?`,
		id,
	).Scan(&sess.ID, &sess.StartedAt, &endedAt, &sess.Frames)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	return sess, nil
}

// List retrieves all sessions, newest first.
func (r *SessionRepository) List() ([]*Session, error) {
	rows, err := r.db.Query(
		`SELECT id, started_at, ended_at, frames FROM sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		var endedAt sql.NullTime

		if err := rows.Scan(&sess.ID, &sess.StartedAt, &endedAt, &sess.Frames); err != nil {
			return nil, err
		}

		if endedAt.Valid {
			sess.EndedAt = &endedAt.Time
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// ClassCounts retrieves the per-class example counts recorded for a session.
func (r *SessionRepository) ClassCounts(id string) ([]ClassCount, error) {
	rows, err := r.db.Query(
		`SELECT class_name, examples FROM session_classes
		 WHERE session_id = ? ORDER BY class_name`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []ClassCount
	for rows.Next() {
		var c ClassCount
		if err := rows.Scan(&c.ClassName, &c.Examples); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}
