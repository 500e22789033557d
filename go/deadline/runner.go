// Package deadline implements the three per-assignment deadline stages:
// initial closes submissions and pairs reviewers, peer_review releases
// reviews, and final releases everything and grades. Each stage releases
// the relevant patchsets into the class journal and promotes per-user
// tags in the shared grading repository.
package deadline

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/patchbay/patchbay/go/gitvc"
	"github.com/patchbay/patchbay/go/journal"
	"github.com/patchbay/patchbay/go/store"
)

var deadlineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "patchbay_deadline_runs_total",
	Help: "Deadline stage executions, by stage and outcome.",
}, []string{"stage", "outcome"})

// Runner executes deadline stages against the store, the class journal,
// and the grading repository.
type Runner struct {
	Store   *store.Store
	Journal *journal.Journal
	// PatchsetDir spools each submitted session's concatenated emails
	// under its submission ID.
	PatchsetDir string
	PullURL     string
	PushURL     string
	// Hostname is the mail domain students send from, used by the
	// signed-off-by check.
	Hostname string
}

// Run dispatches a stage by name.
func (r *Runner) Run(stage store.Stage, assignment string) error {
	var err error
	switch stage {
	case store.StageInitial:
		err = r.Initial(assignment)
	case store.StagePeerReview:
		err = r.PeerReview(assignment)
	case store.StageFinal:
		err = r.Final(assignment)
	default:
		err = fmt.Errorf("unknown stage %v", stage)
	}
	var outcome = "ok"
	if err != nil {
		outcome = "error"
	}
	deadlineRuns.WithLabelValues(stage.String(), outcome).Inc()
	return err
}

// Initial closes the initial-submission window: non-submitters lose
// journal visibility, submitters are paired for peer review, and all
// submitted patchsets are released and tagged.
func (r *Runner) Initial(assignment string) error {
	var subs, err = r.userToSub(assignment, store.ComponentInitial)
	if err != nil {
		return err
	}

	for _, user := range sortedUsers(subs) {
		if subs[user] != nil {
			continue
		}
		if err = r.Journal.Deny(user); err != nil {
			return fmt.Errorf("denying journal to %s: %w", user, err)
		}
		log.WithFields(log.Fields{"assignment": assignment, "user": user}).
			Info("no initial submission; journal denied")
	}

	var submitters []string
	for _, user := range sortedUsers(subs) {
		if subs[user] != nil {
			submitters = append(submitters, user)
		}
	}
	var pairings = makePairings(assignment, submitters)
	if err = r.Store.CreatePairings(pairings); errors.Is(err, store.ErrConflict) {
		log.WithField("assignment", assignment).Info("pairings already recorded")
	} else if err != nil {
		return fmt.Errorf("persisting pairings for %s: %w", assignment, err)
	}

	if err = r.release(subs); err != nil {
		return err
	}
	if err = r.announcePairings(assignment, pairings); err != nil {
		return err
	}
	return r.withGradingRepo(func(repo *gitvc.Repo) error {
		return r.updateTags(repo, assignment, store.ComponentInitial, subs)
	})
}

// PeerReview releases both review components and tags them. Checks run
// in peer mode: authorship and subject conventions are the reviewee's,
// not the reviewer's, so those checks are skipped.
func (r *Runner) PeerReview(assignment string) error {
	var review1, err = r.userToSub(assignment, store.ComponentReview1)
	if err != nil {
		return err
	}
	review2, err := r.userToSub(assignment, store.ComponentReview2)
	if err != nil {
		return err
	}

	if err = r.release(review1); err != nil {
		return err
	}
	if err = r.release(review2); err != nil {
		return err
	}
	return r.withGradingRepo(func(repo *gitvc.Repo) error {
		if err := r.updateTags(repo, assignment, store.ComponentReview1, review1); err != nil {
			return err
		}
		if err := r.updateTags(repo, assignment, store.ComponentReview2, review2); err != nil {
			return err
		}
		if err := r.runChecks(repo, assignment, store.ComponentReview1, review1, true); err != nil {
			return err
		}
		return r.runChecks(repo, assignment, store.ComponentReview2, review2, true)
	})
}

// Final closes the assignment: oopsies with a final submission regain
// journal visibility, final patchsets are released and tagged, and the
// full check battery runs.
func (r *Runner) Final(assignment string) error {
	var subs, err = r.userToSub(assignment, store.ComponentFinal)
	if err != nil {
		return err
	}

	oopsies, err := r.Store.ListOopsies(assignment)
	if err != nil {
		return err
	}
	for _, oopsie := range oopsies {
		if subs[oopsie.User] == nil {
			log.WithFields(log.Fields{"assignment": assignment, "user": oopsie.User}).
				Info("oopsie without final submission; journal stays denied")
			continue
		}
		if err = r.Journal.Allow(oopsie.User); err != nil {
			return fmt.Errorf("restoring journal for %s: %w", oopsie.User, err)
		}
		log.WithFields(log.Fields{"assignment": assignment, "user": oopsie.User}).
			Info("oopsie honored; journal restored")
	}

	if err = r.release(subs); err != nil {
		return err
	}
	return r.withGradingRepo(func(repo *gitvc.Repo) error {
		if err := r.updateTags(repo, assignment, store.ComponentFinal, subs); err != nil {
			return err
		}
		return r.runChecks(repo, assignment, store.ComponentFinal, subs, false)
	})
}

// userToSub maps every roster user to their most recent gradeable of the
// component, or nil when they have none.
func (r *Runner) userToSub(assignment, component string) (map[string]*store.Gradeable, error) {
	var users, err = r.Store.ListUsers()
	if err != nil {
		return nil, err
	}
	var m = make(map[string]*store.Gradeable, len(users))
	for _, user := range users {
		g, err := r.Store.LatestGradeable(assignment, component, user.Username)
		if err != nil {
			return nil, err
		}
		m[user.Username] = g
	}
	return m, nil
}

// makePairings shuffles the submitters and pairs each with the next two
// along the resulting cycle, so every submitter reviews two and is
// reviewed by two. Cohorts below three saturate: two users review each
// other once, a lone user gets a self-null row.
func makePairings(assignment string, submitters []string) []store.Pairing {
	var users = append([]string(nil), submitters...)
	rand.Shuffle(len(users), func(i, j int) {
		users[i], users[j] = users[j], users[i]
	})

	var n = len(users)
	var pairings = make([]store.Pairing, 0, n)
	for i, reviewer := range users {
		var p = store.Pairing{Assignment: assignment, Reviewer: reviewer}
		if n >= 2 {
			var r1 = users[(i+1)%n]
			p.Reviewee1 = &r1
		}
		if n >= 3 {
			var r2 = users[(i+2)%n]
			p.Reviewee2 = &r2
		}
		pairings = append(pairings, p)
	}
	return pairings
}

// release appends the spooled patchset of every non-nil gradeable to the
// class journal. A missing spool file is logged and skipped; the
// deadline must not abort because one session file is gone.
func (r *Runner) release(subs map[string]*store.Gradeable) error {
	for _, user := range sortedUsers(subs) {
		var g = subs[user]
		if g == nil {
			continue
		}
		var data, err = os.ReadFile(filepath.Join(r.PatchsetDir, g.SubmissionID))
		if err != nil {
			log.WithFields(log.Fields{"submission": g.SubmissionID, "err": err}).
				Warn("patchset spool file unreadable; not released")
			continue
		}
		if err = r.Journal.Append(data); err != nil {
			return fmt.Errorf("releasing %s: %w", g.SubmissionID, err)
		}
	}
	return nil
}

// announcePairings journals a notification email listing who reviews
// whom, so students learn their reviewees the same way they receive
// everything else.
func (r *Runner) announcePairings(assignment string, pairings []store.Pairing) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: denis@denis\n")
	fmt.Fprintf(&b, "Subject: peer review assignments for %s\n\n", assignment)
	fmt.Fprintf(&b, "reviewer: reviewees\n")

	var sorted = append([]store.Pairing(nil), pairings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Reviewer < sorted[j].Reviewer })
	for _, p := range sorted {
		fmt.Fprintf(&b, "%s:", p.Reviewer)
		if p.Reviewee1 != nil {
			fmt.Fprintf(&b, " %s", *p.Reviewee1)
		}
		if p.Reviewee2 != nil {
			fmt.Fprintf(&b, " %s", *p.Reviewee2)
		}
		fmt.Fprintf(&b, "\n")
	}
	return r.Journal.Append([]byte(b.String()))
}

func (r *Runner) withGradingRepo(fn func(*gitvc.Repo) error) error {
	var scratch, err = os.MkdirTemp("", "grading-")
	if err != nil {
		return fmt.Errorf("creating grading scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	repo, err := gitvc.Clone(r.PullURL, filepath.Join(scratch, "repo"), gitvc.Denis, gitvc.CloneOpts{})
	if err != nil {
		return fmt.Errorf("cloning grading repo: %w", err)
	}
	return fn(repo)
}

// updateTags promotes per-user stage tags: <asn>_<component>_<user>
// pointing at the user's submission tag when the ingestor pushed one,
// else at the EMPTY root, annotated with the auto feedback.
func (r *Runner) updateTags(repo *gitvc.Repo, assignment, component string, subs map[string]*store.Gradeable) error {
	var exists, err = repo.TagExists("EMPTY")
	if err != nil {
		return err
	}
	if !exists {
		if err = repo.CommitEmpty("EMPTY"); err != nil {
			return err
		}
		if err = repo.CreateTag("EMPTY", "", ""); err != nil {
			return err
		}
	}

	for _, user := range sortedUsers(subs) {
		var name = tagName(assignment, component, user)
		if exists, err = repo.TagExists(name); err != nil {
			return err
		} else if exists {
			log.WithField("tag", name).Warn("stage tag already exists; not replaced")
			continue
		}

		var ref, message = "EMPTY", "No gradeable submission"
		if g := subs[user]; g != nil {
			if exists, err = repo.TagExists(g.SubmissionID); err != nil {
				return err
			} else if exists {
				ref, message = g.SubmissionID, g.AutoFeedback
			} else {
				message = g.AutoFeedback
			}
		}
		if err = repo.CreateTag(name, ref, message); err != nil {
			return err
		}
	}
	if err = repo.PushTags(r.PushURL); err != nil {
		return fmt.Errorf("pushing stage tags: %w", err)
	}
	return nil
}

func tagName(assignment, component, user string) string {
	return assignment + "_" + component + "_" + user
}

func sortedUsers(subs map[string]*store.Gradeable) []string {
	var users = make([]string, 0, len(subs))
	for user := range subs {
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}
