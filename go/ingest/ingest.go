// Package ingest turns one completed mail session into durable state: a
// Submission row, at most one status mutation, and possibly a Gradeable.
// It runs once per session log, typically as a mail server exit hook, and
// is idempotent: re-running over the same log adds no rows.
package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/patchbay/patchbay/go/mailbox"
	"github.com/patchbay/patchbay/go/maillog"
	"github.com/patchbay/patchbay/go/patchset"
	"github.com/patchbay/patchbay/go/store"
)

var sessionsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "patchbay_ingested_sessions_total",
	Help: "Mail sessions processed by the ingestor, by outcome.",
}, []string{"outcome"})

// Checker validates submitted patchsets and stores peer reviews.
// *patchset.Validator satisfies it.
type Checker interface {
	Validate(cover maillog.Email, patches []maillog.Email, assignment, submissionID string) (patchset.Feedback, error)
	ApplyPeerReview(email maillog.Email, submissionID, reviewID string) patchset.Feedback
}

// Ingestor classifies and records one mail session.
type Ingestor struct {
	Store   *store.Store
	Mail    mailbox.Dir
	Checker Checker
}

// Run ingests the session log `logFile` under `logDir`. Malformed logs
// and duplicate sessions are logged and dropped; the returned error
// reports infrastructure failure only.
func (in *Ingestor) Run(logDir, logFile string) error {
	var session, err = maillog.ParseFile(logDir, logFile)
	if err != nil {
		log.WithFields(log.Fields{"file": logFile, "err": err}).Warn("dropping malformed session log")
		sessionsIngested.WithLabelValues("malformed").Inc()
		return nil
	}
	if len(session.Emails) == 0 {
		log.WithFields(log.Fields{"session": session.ID, "user": session.User}).Info("idle session")
		sessionsIngested.WithLabelValues("idle").Inc()
		return nil
	}

	var sub = store.Submission{
		SubmissionID: session.ID,
		Timestamp:    session.Timestamp,
		User:         session.User,
		Recipient:    session.Emails[0].Rcpt,
		EmailCount:   len(session.Emails),
		Status:       "new",
	}
	if hdr, err := in.Mail.Header(session.Emails[0].MsgID); err != nil {
		log.WithFields(log.Fields{"session": session.ID, "msgID": session.Emails[0].MsgID, "err": err}).
			Warn("failed to read first email headers")
	} else if hdr.InReplyTo != "" {
		if id, ok := mailbox.ExtractReplyID(hdr.InReplyTo); ok {
			sub.InReplyTo = &id
		}
	}

	if err = in.Store.CreateSubmission(sub); errors.Is(err, store.ErrConflict) {
		log.WithField("session", session.ID).Info("session already ingested")
		sessionsIngested.WithLabelValues("duplicate").Inc()
		return nil
	} else if err != nil {
		return fmt.Errorf("creating submission %s: %w", session.ID, err)
	}

	status, outcome, err := in.dispatch(session, sub)
	if err != nil {
		return err
	}
	if err = in.Store.SetSubmissionStatus(session.ID, status); err != nil {
		return fmt.Errorf("updating submission %s: %w", session.ID, err)
	}
	log.WithFields(log.Fields{
		"session": session.ID,
		"user":    session.User,
		"status":  status,
	}).Info("ingested session")
	sessionsIngested.WithLabelValues(outcome).Inc()
	return nil
}

func (in *Ingestor) dispatch(session maillog.Session, sub store.Submission) (status, outcome string, err error) {
	var asn *store.Assignment
	if asn, err = in.Store.LookupAssignment(sub.Recipient); err != nil {
		return "", "", err
	}
	if asn != nil {
		return in.dispatchPatchset(session, sub, *asn)
	}
	if sub.InReplyTo != nil {
		var handled bool
		if status, outcome, handled, err = in.dispatchReview(session, sub); err != nil || handled {
			return status, outcome, err
		}
	}
	return "Not a recognized recipient", "unrecognized", nil
}

// dispatchPatchset handles a session addressed to an assignment inbox.
func (in *Ingestor) dispatchPatchset(session maillog.Session, sub store.Submission, asn store.Assignment) (string, string, error) {
	if sub.EmailCount < 2 {
		return "missing patches", "missing_patches", nil
	}

	var component string
	switch {
	case sub.Timestamp < asn.InitialDue:
		component = store.ComponentInitial
	case sub.Timestamp < asn.FinalDue:
		component = store.ComponentFinal
	default:
		return asn.Name + " past due", "past_due", nil
	}

	var misaddressed []int
	for i, email := range session.Emails[1:] {
		if email.Rcpt != sub.Recipient {
			misaddressed = append(misaddressed, i+1)
		}
	}
	if len(misaddressed) > 0 {
		return fmt.Sprintf("patch(es) %s not addressed to %s",
			joinInts(misaddressed), sub.Recipient), "misaddressed", nil
	}

	var feedback, err = in.Checker.Validate(
		session.Emails[0], session.Emails[1:], asn.Name, sub.SubmissionID)
	if err != nil {
		return "", "", fmt.Errorf("validating %s: %w", sub.SubmissionID, err)
	}
	if err = in.createGradeable(sub, asn.Name, component, feedback); err != nil {
		return "", "", err
	}
	return asn.Name + ": " + component, component, nil
}

// dispatchReview handles a session replying to an earlier submission.
// handled is false when the reply target does not resolve.
func (in *Ingestor) dispatchReview(session maillog.Session, sub store.Submission) (string, string, bool, error) {
	var orig, err = in.Store.GradeableForSubmission(*sub.InReplyTo)
	if err != nil {
		return "", "", false, err
	}
	if orig == nil {
		return "", "", false, nil
	}

	asn, err := in.Store.LookupAssignment(orig.Assignment)
	if err != nil {
		return "", "", false, err
	}
	if asn == nil {
		log.WithFields(log.Fields{"session": session.ID, "assignment": orig.Assignment}).
			Warn("reply targets a removed assignment")
		return "", "", false, nil
	}
	if sub.Timestamp > asn.PeerReviewDue {
		return asn.Name + " review past due", "review_past_due", true, nil
	}

	pairing, err := in.Store.LookupPairing(asn.Name, sub.User)
	if err != nil {
		return "", "", false, err
	}
	if pairing == nil {
		return "ineligible for peer review", "ineligible", true, nil
	}

	var component string
	switch {
	case pairing.Reviewee1 != nil && *pairing.Reviewee1 == sub.Recipient:
		component = store.ComponentReview1
	case pairing.Reviewee2 != nil && *pairing.Reviewee2 == sub.Recipient:
		component = store.ComponentReview2
	default:
		return "reviewed wrong submission", "wrong_submission", true, nil
	}

	var feedback = in.Checker.ApplyPeerReview(session.Emails[0], sub.SubmissionID, orig.SubmissionID)
	if err = in.createGradeable(sub, asn.Name, component, feedback); err != nil {
		return "", "", false, err
	}
	return asn.Name + ": " + component, component, true, nil
}

func (in *Ingestor) createGradeable(sub store.Submission, assignment, component string, feedback patchset.Feedback) error {
	var err = in.Store.CreateGradeable(store.Gradeable{
		SubmissionID: sub.SubmissionID,
		Timestamp:    sub.Timestamp,
		User:         sub.User,
		Assignment:   assignment,
		Component:    component,
		AutoFeedback: string(feedback),
	})
	if errors.Is(err, store.ErrConflict) {
		log.WithFields(log.Fields{"submission": sub.SubmissionID, "component": component}).
			Info("gradeable already recorded")
		return nil
	}
	return err
}

func joinInts(ns []int) string {
	var parts = make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
