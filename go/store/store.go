// Package store provides the durable tables of the platform: assignments,
// the user roster, submissions, gradeables, peer-review pairings, sessions
// and oopsies. Tables live in three sqlite databases (assignments, mail,
// roster) opened together through a single Store value that is passed
// explicitly through constructors.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
)

// FarFuture is the sentinel deadline meaning "disabled": no waiter is
// ever spawned for it and it never orders against real deadlines.
const FarFuture int64 = 253401417420

// ErrConflict is returned when an insert violates a unique constraint.
// Callers log and continue: the first writer wins.
var ErrConflict = errors.New("conflict")

// Store bundles the platform databases. All access goes through typed row
// operations; writers use short transactions and readers are
// snapshot-consistent single statements.
type Store struct {
	assignments *sql.DB
	mail        *sql.DB
	roster      *sql.DB
}

// Open opens (creating if needed) the three databases under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	var s = new(Store)
	for _, part := range []struct {
		db     **sql.DB
		file   string
		schema string
	}{
		{&s.assignments, "assignments.db", assignmentsSchema},
		{&s.mail, "mail.db", mailSchema},
		{&s.roster, "roster.db", rosterSchema},
	} {
		var db, err = openDB(filepath.Join(dir, part.file), part.schema)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("opening %s: %w", part.file, err)
		}
		*part.db = db
	}
	return s, nil
}

func openDB(path, schema string) (*sql.DB, error) {
	var db, err = sql.Open("sqlite3",
		"file:"+path+"?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return db, nil
}

// Close closes all underlying databases.
func (s *Store) Close() error {
	var errs []error
	for _, db := range []*sql.DB{s.assignments, s.mail, s.roster} {
		if db != nil {
			errs = append(errs, db.Close())
		}
	}
	return errors.Join(errs...)
}

// Atomic runs fn under a write transaction of the mail database: either
// every insert commits, or none do.
func (s *Store) Atomic(fn func(*sql.Tx) error) error {
	return atomicTx(s.mail, fn)
}

func atomicTx(db *sql.DB, fn func(*sql.Tx) error) error {
	var tx, err = db.Begin()
	if err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// conflictOr maps sqlite unique-constraint failures onto ErrConflict and
// passes every other error through.
func conflictOr(err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

const assignmentsSchema = `
CREATE TABLE IF NOT EXISTS assignments (
	id              INTEGER PRIMARY KEY,
	name            TEXT NOT NULL UNIQUE,
	initial_due     INTEGER NOT NULL,
	peer_review_due INTEGER NOT NULL,
	final_due       INTEGER NOT NULL
) STRICT;
`

const mailSchema = `
CREATE TABLE IF NOT EXISTS submissions (
	submission_id TEXT NOT NULL UNIQUE,
	timestamp     INTEGER NOT NULL,
	user          TEXT NOT NULL,
	recipient     TEXT NOT NULL,
	email_count   INTEGER NOT NULL,
	in_reply_to   TEXT,
	status        TEXT NOT NULL
) STRICT;

CREATE TABLE IF NOT EXISTS gradeables (
	submission_id TEXT NOT NULL,
	timestamp     INTEGER NOT NULL,
	user          TEXT NOT NULL,
	assignment    TEXT NOT NULL,
	component     TEXT NOT NULL,
	auto_feedback TEXT NOT NULL,
	UNIQUE (submission_id, component)
) STRICT;

CREATE TABLE IF NOT EXISTS peer_review_assignments (
	assignment TEXT NOT NULL,
	reviewer   TEXT NOT NULL,
	reviewee1  TEXT,
	reviewee2  TEXT,
	UNIQUE (assignment, reviewer)
) STRICT;
`

const rosterSchema = `
CREATE TABLE IF NOT EXISTS users (
	username   TEXT NOT NULL UNIQUE,
	pwdhash    TEXT,
	student_id TEXT UNIQUE,
	fullname   TEXT NOT NULL
) STRICT;

CREATE TABLE IF NOT EXISTS sessions (
	token    TEXT NOT NULL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	expiry   INTEGER NOT NULL
) STRICT;

CREATE TABLE IF NOT EXISTS oopsies (
	user       TEXT NOT NULL UNIQUE,
	assignment TEXT NOT NULL,
	timestamp  INTEGER NOT NULL
) STRICT;
`
