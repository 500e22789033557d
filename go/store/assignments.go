package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Assignment is a named work unit with three ordered deadlines. Any
// deadline may be FarFuture, which disables it.
type Assignment struct {
	ID            int64
	Name          string
	InitialDue    int64
	PeerReviewDue int64
	FinalDue      int64
}

// Deadline returns the deadline for a stage.
func (a Assignment) Deadline(s Stage) int64 {
	switch s {
	case StageInitial:
		return a.InitialDue
	case StagePeerReview:
		return a.PeerReviewDue
	case StageFinal:
		return a.FinalDue
	}
	panic("invalid stage")
}

// Ordered reports whether the finite deadlines respect
// initial ≤ peer_review ≤ final.
func (a Assignment) Ordered() bool {
	var prev = int64(0)
	for _, due := range []int64{a.InitialDue, a.PeerReviewDue, a.FinalDue} {
		if due == FarFuture {
			continue
		}
		if due < prev {
			return false
		}
		prev = due
	}
	return true
}

// CreateAssignment inserts a new assignment. A duplicate name yields
// ErrConflict; mis-ordered deadlines are rejected outright.
func (s *Store) CreateAssignment(a Assignment) error {
	if !a.Ordered() {
		return fmt.Errorf("assignment %s: deadlines out of order", a.Name)
	}
	var _, err = s.assignments.Exec(
		`INSERT INTO assignments (name, initial_due, peer_review_due, final_due)
		 VALUES (?, ?, ?, ?)`,
		a.Name, a.InitialDue, a.PeerReviewDue, a.FinalDue)
	return conflictOr(err)
}

// AlterAssignment updates any subset of an assignment's deadlines.
// It reports false when no assignment has the name.
func (s *Store) AlterAssignment(name string, initial, peerReview, final *int64) (bool, error) {
	var current, err = s.LookupAssignment(name)
	if err != nil {
		return false, err
	} else if current == nil {
		return false, nil
	}
	if initial != nil {
		current.InitialDue = *initial
	}
	if peerReview != nil {
		current.PeerReviewDue = *peerReview
	}
	if final != nil {
		current.FinalDue = *final
	}
	if !current.Ordered() {
		return false, fmt.Errorf("assignment %s: deadlines out of order", name)
	}
	res, err := s.assignments.Exec(
		`UPDATE assignments SET initial_due = ?, peer_review_due = ?, final_due = ?
		 WHERE name = ?`,
		current.InitialDue, current.PeerReviewDue, current.FinalDue, name)
	if err != nil {
		return false, err
	}
	var n, _ = res.RowsAffected()
	return n > 0, nil
}

// SetDeadline moves one deadline of the identified assignment, as done
// when a trigger forces a stage to run now.
func (s *Store) SetDeadline(id int64, stage Stage, due int64) error {
	var res, err = s.assignments.Exec(
		fmt.Sprintf(`UPDATE assignments SET %s = ? WHERE id = ?`, stage.deadlineColumn()),
		due, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no assignment with id %d", id)
	}
	return nil
}

// RemoveAssignment deletes an assignment, reporting whether it existed.
func (s *Store) RemoveAssignment(name string) (bool, error) {
	var res, err = s.assignments.Exec(`DELETE FROM assignments WHERE name = ?`, name)
	if err != nil {
		return false, err
	}
	var n, _ = res.RowsAffected()
	return n > 0, nil
}

const assignmentColumns = `id, name, initial_due, peer_review_due, final_due`

func scanAssignment(row interface{ Scan(...any) error }) (Assignment, error) {
	var a Assignment
	var err = row.Scan(&a.ID, &a.Name, &a.InitialDue, &a.PeerReviewDue, &a.FinalDue)
	return a, err
}

// LookupAssignment returns the assignment with the name, or nil.
func (s *Store) LookupAssignment(name string) (*Assignment, error) {
	var a, err = scanAssignment(s.assignments.QueryRow(
		`SELECT `+assignmentColumns+` FROM assignments WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &a, nil
}

// AssignmentByID returns the assignment with the rowid, or nil.
func (s *Store) AssignmentByID(id int64) (*Assignment, error) {
	var a, err = scanAssignment(s.assignments.QueryRow(
		`SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAssignments returns all assignments ordered by name.
func (s *Store) ListAssignments() ([]Assignment, error) {
	var rows, err = s.assignments.Query(
		`SELECT ` + assignmentColumns + ` FROM assignments ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a, err = scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
