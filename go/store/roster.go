package store

import (
	"database/sql"
	"errors"
)

// User is a roster entry. A nil PwdHash marks an unregistered
// placeholder created from the class roster; registration claims it.
type User struct {
	Username  string
	PwdHash   *string
	StudentID *string
	FullName  string
}

// Session is a live authentication token. At most one session exists
// per user.
type Session struct {
	Token    string
	Username string
	Expiry   int64
}

// Oopsie is a one-shot per-semester excuse waiving the initial
// submission requirement for one assignment.
type Oopsie struct {
	User       string
	Assignment string
	Timestamp  int64
}

// CreateUser inserts a roster entry; duplicates yield ErrConflict.
func (s *Store) CreateUser(u User) error {
	var _, err = s.roster.Exec(
		`INSERT INTO users (username, pwdhash, student_id, fullname)
		 VALUES (?, ?, ?, ?)`,
		u.Username, u.PwdHash, u.StudentID, u.FullName)
	return conflictOr(err)
}

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	var pwdhash, studentID sql.NullString
	var err = row.Scan(&u.Username, &pwdhash, &studentID, &u.FullName)
	if pwdhash.Valid {
		u.PwdHash = &pwdhash.String
	}
	if studentID.Valid {
		u.StudentID = &studentID.String
	}
	return u, err
}

// LookupUser returns the roster entry for a username, or nil.
func (s *Store) LookupUser(username string) (*User, error) {
	var u, err = scanUser(s.roster.QueryRow(
		`SELECT username, pwdhash, student_id, fullname FROM users WHERE username = ?`,
		username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns the whole roster ordered by username.
func (s *Store) ListUsers() ([]User, error) {
	var rows, err = s.roster.Query(
		`SELECT username, pwdhash, student_id, fullname FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u, err = scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ClaimRegistration exchanges a student ID for its unregistered roster
// row, storing the password hash. The update is atomic and one-shot: it
// only matches a row whose pwdhash is still null, so a second
// registration attempt finds nothing and returns nil.
func (s *Store) ClaimRegistration(studentID, pwdhash string) (*User, error) {
	var claimed *User
	var err = atomicTx(s.roster, func(tx *sql.Tx) error {
		var u, err = scanUser(tx.QueryRow(
			`SELECT username, pwdhash, student_id, fullname FROM users
			 WHERE student_id = ? AND pwdhash IS NULL`,
			studentID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		} else if err != nil {
			return err
		}
		if _, err = tx.Exec(
			`UPDATE users SET pwdhash = ? WHERE username = ?`,
			pwdhash, u.Username); err != nil {
			return err
		}
		u.PwdHash = &pwdhash
		claimed = &u
		return nil
	})
	return claimed, err
}

// ReplaceSession installs a fresh session for the user, displacing any
// previous one so the single-live-session invariant holds.
func (s *Store) ReplaceSession(sess Session) error {
	return atomicTx(s.roster, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`DELETE FROM sessions WHERE username = ?`, sess.Username); err != nil {
			return err
		}
		var _, err = tx.Exec(
			`INSERT INTO sessions (token, username, expiry) VALUES (?, ?, ?)`,
			sess.Token, sess.Username, sess.Expiry)
		return conflictOr(err)
	})
}

// SessionByToken returns the session with the token, or nil.
func (s *Store) SessionByToken(token string) (*Session, error) {
	var sess Session
	var err = s.roster.QueryRow(
		`SELECT token, username, expiry FROM sessions WHERE token = ?`,
		token).Scan(&sess.Token, &sess.Username, &sess.Expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteSession removes a session by token.
func (s *Store) DeleteSession(token string) error {
	var _, err = s.roster.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// CreateOopsie records a user's one-shot excuse. A second oopsie in the
// semester yields ErrConflict.
func (s *Store) CreateOopsie(o Oopsie) error {
	var _, err = s.roster.Exec(
		`INSERT INTO oopsies (user, assignment, timestamp) VALUES (?, ?, ?)`,
		o.User, o.Assignment, o.Timestamp)
	return conflictOr(err)
}

// ListOopsies returns oopsies, optionally restricted to one assignment.
func (s *Store) ListOopsies(assignment string) ([]Oopsie, error) {
	var rows, err = s.roster.Query(
		`SELECT user, assignment, timestamp FROM oopsies
		 WHERE (? = '' OR assignment = ?) ORDER BY timestamp`,
		assignment, assignment)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Oopsie
	for rows.Next() {
		var o Oopsie
		if err = rows.Scan(&o.User, &o.Assignment, &o.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
