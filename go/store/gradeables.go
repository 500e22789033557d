package store

import (
	"database/sql"
	"errors"
)

// Gradeable is a per-stage work item: the submission currently in play
// for a (user, assignment, component). AutoFeedback's trailing rune
// encodes severity: '!' fatal, '?' warning, '.' success.
type Gradeable struct {
	SubmissionID string
	Timestamp    int64
	User         string
	Assignment   string
	Component    string
	AutoFeedback string
}

// CreateGradeable inserts a gradeable row. Duplicate (submission,
// component) pairs yield ErrConflict.
func (s *Store) CreateGradeable(g Gradeable) error {
	var _, err = s.mail.Exec(
		`INSERT INTO gradeables
		 (submission_id, timestamp, user, assignment, component, auto_feedback)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		g.SubmissionID, g.Timestamp, g.User, g.Assignment, g.Component, g.AutoFeedback)
	return conflictOr(err)
}

const gradeableColumns = `submission_id, timestamp, user, assignment, component, auto_feedback`

func scanGradeable(row interface{ Scan(...any) error }) (Gradeable, error) {
	var g Gradeable
	var err = row.Scan(&g.SubmissionID, &g.Timestamp, &g.User, &g.Assignment,
		&g.Component, &g.AutoFeedback)
	return g, err
}

// LatestGradeable returns the most recent gradeable for the (assignment,
// component, user) triple, or nil. "Most recent wins" is the per-user
// lookup rule for every deadline runner.
func (s *Store) LatestGradeable(assignment, component, user string) (*Gradeable, error) {
	var g, err = scanGradeable(s.mail.QueryRow(
		`SELECT `+gradeableColumns+` FROM gradeables
		 WHERE assignment = ? AND component = ? AND user = ?
		 ORDER BY timestamp DESC LIMIT 1`,
		assignment, component, user))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &g, nil
}

// GradeableForSubmission resolves a submission ID to its gradeable, used
// to classify peer-review replies. The newest row wins if a submission
// somehow acquired several.
func (s *Store) GradeableForSubmission(submissionID string) (*Gradeable, error) {
	var g, err = scanGradeable(s.mail.QueryRow(
		`SELECT `+gradeableColumns+` FROM gradeables
		 WHERE submission_id = ?
		 ORDER BY timestamp DESC LIMIT 1`,
		submissionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGradeables returns gradeables newest-first with optional filters
// ("" matches all).
func (s *Store) ListGradeables(assignment, user, component string) ([]Gradeable, error) {
	var rows, err = s.mail.Query(
		`SELECT `+gradeableColumns+` FROM gradeables
		 WHERE (? = '' OR assignment = ?) AND (? = '' OR user = ?)
		   AND (? = '' OR component = ?)
		 ORDER BY timestamp DESC`,
		assignment, assignment, user, user, component, component)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Gradeable
	for rows.Next() {
		var g, err = scanGradeable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
