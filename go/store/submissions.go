package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Submission is the raw record of one completed mail session. Its ID is
// the session log filename.
type Submission struct {
	SubmissionID string
	Timestamp    int64
	User         string
	Recipient    string
	EmailCount   int
	// InReplyTo is the masked submission ID this session replies to,
	// or nil for fresh patchsets.
	InReplyTo *string
	// Status is free text set exactly once by the ingestor.
	Status string
}

// CreateSubmission inserts a submission row. Re-ingesting the same
// session log yields ErrConflict, making ingestion idempotent.
func (s *Store) CreateSubmission(sub Submission) error {
	var _, err = s.mail.Exec(
		`INSERT INTO submissions
		 (submission_id, timestamp, user, recipient, email_count, in_reply_to, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.SubmissionID, sub.Timestamp, sub.User, sub.Recipient,
		sub.EmailCount, sub.InReplyTo, sub.Status)
	return conflictOr(err)
}

// SetSubmissionStatus records the ingestor's verdict for a submission.
func (s *Store) SetSubmissionStatus(submissionID, status string) error {
	var res, err = s.mail.Exec(
		`UPDATE submissions SET status = ? WHERE submission_id = ?`,
		status, submissionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no submission %s", submissionID)
	}
	return nil
}

const submissionColumns = `submission_id, timestamp, user, recipient, email_count, in_reply_to, status`

func scanSubmission(row interface{ Scan(...any) error }) (Submission, error) {
	var sub Submission
	var inReplyTo sql.NullString
	var err = row.Scan(&sub.SubmissionID, &sub.Timestamp, &sub.User, &sub.Recipient,
		&sub.EmailCount, &inReplyTo, &sub.Status)
	if inReplyTo.Valid {
		sub.InReplyTo = &inReplyTo.String
	}
	return sub, err
}

// LookupSubmission returns the submission with the ID, or nil.
func (s *Store) LookupSubmission(submissionID string) (*Submission, error) {
	var sub, err = scanSubmission(s.mail.QueryRow(
		`SELECT `+submissionColumns+` FROM submissions WHERE submission_id = ?`,
		submissionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &sub, nil
}

// CountSubmissions counts the user's submissions to a recipient with
// timestamps at or before upto. The subject-tag check derives the
// expected patchset version from it.
func (s *Store) CountSubmissions(recipient, user string, upto int64) (int, error) {
	var n int
	var err = s.mail.QueryRow(
		`SELECT COUNT(*) FROM submissions
		 WHERE recipient = ? AND user = ? AND timestamp <= ?`,
		recipient, user, upto).Scan(&n)
	return n, err
}

// ListSubmissions returns submissions newest-first, optionally filtered
// by recipient and/or user ("" matches all).
func (s *Store) ListSubmissions(recipient, user string) ([]Submission, error) {
	var rows, err = s.mail.Query(
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE (? = '' OR recipient = ?) AND (? = '' OR user = ?)
		 ORDER BY timestamp DESC`,
		recipient, recipient, user, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var sub, err = scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
