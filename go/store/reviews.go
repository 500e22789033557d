package store

import (
	"database/sql"
	"errors"
)

// Pairing assigns a reviewer their (up to) two reviewees for one
// assignment's peer-review round. Reviewees are nil when the cohort was
// too small to fill them.
type Pairing struct {
	Assignment string
	Reviewer   string
	Reviewee1  *string
	Reviewee2  *string
}

// CreatePairings persists a full peer-review round atomically: either
// every row commits, or none do. A re-run of the same round yields
// ErrConflict and leaves the original pairings in place.
func (s *Store) CreatePairings(pairings []Pairing) error {
	return s.Atomic(func(tx *sql.Tx) error {
		for _, p := range pairings {
			var _, err = tx.Exec(
				`INSERT INTO peer_review_assignments
				 (assignment, reviewer, reviewee1, reviewee2)
				 VALUES (?, ?, ?, ?)`,
				p.Assignment, p.Reviewer, p.Reviewee1, p.Reviewee2)
			if err != nil {
				return conflictOr(err)
			}
		}
		return nil
	})
}

// LookupPairing returns the reviewer's pairing for an assignment, or nil
// when the reviewer is not part of the round.
func (s *Store) LookupPairing(assignment, reviewer string) (*Pairing, error) {
	var p = Pairing{Assignment: assignment, Reviewer: reviewer}
	var r1, r2 sql.NullString
	var err = s.mail.QueryRow(
		`SELECT reviewee1, reviewee2 FROM peer_review_assignments
		 WHERE assignment = ? AND reviewer = ?`,
		assignment, reviewer).Scan(&r1, &r2)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	if r1.Valid {
		p.Reviewee1 = &r1.String
	}
	if r2.Valid {
		p.Reviewee2 = &r2.String
	}
	return &p, nil
}

// ListPairings returns an assignment's full peer-review round.
func (s *Store) ListPairings(assignment string) ([]Pairing, error) {
	var rows, err = s.mail.Query(
		`SELECT assignment, reviewer, reviewee1, reviewee2
		 FROM peer_review_assignments WHERE assignment = ?
		 ORDER BY reviewer`,
		assignment)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Pairing
	for rows.Next() {
		var p Pairing
		var r1, r2 sql.NullString
		if err = rows.Scan(&p.Assignment, &p.Reviewer, &r1, &r2); err != nil {
			return nil, err
		}
		if r1.Valid {
			p.Reviewee1 = &r1.String
		}
		if r2.Valid {
			p.Reviewee2 = &r2.String
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
