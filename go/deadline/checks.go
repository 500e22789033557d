package deadline

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	log "github.com/sirupsen/logrus"

	"github.com/patchbay/patchbay/go/gitvc"
	"github.com/patchbay/patchbay/go/mailbox"
	"github.com/patchbay/patchbay/go/patchset"
	"github.com/patchbay/patchbay/go/store"
)

// runChecks grades every stage tag of the component: each check renders
// a block under an underlined heading, the blocks concatenate into one
// note on refs/notes/denis, and corrupt submissions additionally get a
// "0" on refs/notes/grade. Notes are pushed as a group at the end.
func (r *Runner) runChecks(repo *gitvc.Repo, assignment, component string, subs map[string]*store.Gradeable, peer bool) error {
	if err := repo.FetchNotes(r.PullURL); err != nil {
		log.WithField("err", err).Warn("fetching existing notes")
	}

	for _, user := range sortedUsers(subs) {
		var tag = tagName(assignment, component, user)
		var report, corrupt = r.checkUser(repo, assignment, user, subs[user], tag, peer)

		if corrupt {
			if err := repo.AddNote("grade", tag, "0"); err != nil {
				return fmt.Errorf("grading %s: %w", tag, err)
			}
		}
		if err := repo.AddNote("denis", tag, report); err != nil {
			return fmt.Errorf("annotating %s: %w", tag, err)
		}
	}

	if err := repo.PushNotes(r.PushURL); err != nil {
		return fmt.Errorf("pushing notes: %w", err)
	}
	return nil
}

// checkUser renders the check report for one stage tag. corrupt reports
// whether the submission earns an automatic zero, which also suppresses
// the remaining checks.
func (r *Runner) checkUser(repo *gitvc.Repo, assignment, user string, g *store.Gradeable, tag string, peer bool) (string, bool) {
	if g == nil {
		return section("Corruption check", "FAIL: no gradeable submission"), true
	}
	if patchset.Feedback(g.AutoFeedback).Fatal() {
		return section("Corruption check", "FAIL: "+g.AutoFeedback), true
	}
	var blocks = []string{section("Corruption check", "PASS")}

	var commits, err = repo.RevList(tag)
	if err != nil || len(commits) == 0 {
		log.WithFields(log.Fields{"tag": tag, "err": err}).Warn("failed to walk tag history")
		blocks = append(blocks, section("History", "unreadable tag history"))
		return strings.Join(blocks, "\n\n"), false
	}

	if !peer {
		blocks = append(blocks, section("Signed-off-by check",
			r.checkSignoffs(repo, commits, user)))
		blocks = append(blocks, section("Subject tag check",
			r.checkSubjects(repo, commits, assignment, user, g)))
	}
	blocks = append(blocks, section("Diffstat check",
		r.checkDiffstat(repo, commits[0], tag)))

	return strings.Join(blocks, "\n\n"), false
}

// checkSignoffs requires every commit to carry the exact line
// `Signed-off-by: <fullname> <user@hostname>`.
func (r *Runner) checkSignoffs(repo *gitvc.Repo, commits []string, user string) string {
	var fullname = user
	if u, err := r.Store.LookupUser(user); err != nil {
		log.WithFields(log.Fields{"user": user, "err": err}).Warn("roster lookup failed")
	} else if u != nil {
		fullname = u.FullName
	}
	var expected = fmt.Sprintf("Signed-off-by: %s <%s@%s>", fullname, user, r.Hostname)

	var problems []string
	for _, sha := range commits {
		var message, err = repo.CommitMessage(sha)
		if err != nil {
			problems = append(problems, fmt.Sprintf("commit %.7s: unreadable", sha))
			continue
		}
		var found, matched bool
		for _, line := range strings.Split(message, "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "Signed-off-by:") {
				continue
			}
			found = true
			if line == expected {
				matched = true
			}
		}
		switch {
		case !found:
			problems = append(problems, fmt.Sprintf("commit %.7s: missing signed-off-by", sha))
		case !matched:
			problems = append(problems, fmt.Sprintf("commit %.7s: malformed signed-off-by, want %q", sha, expected))
		}
	}
	if len(problems) == 0 {
		return "PASS"
	}
	return strings.Join(problems, "\n")
}

// checkSubjects walks the history oldest-first and requires subjects of
// the form `[RFC PATCH vN i/M]` (initial) or `[PATCH vN i/M]` (final):
// N is the user's submission count for the assignment, i counts from the
// cover letter at zero, M excludes the cover letter.
func (r *Runner) checkSubjects(repo *gitvc.Repo, commits []string, assignment, user string, g *store.Gradeable) string {
	var version, err = r.Store.CountSubmissions(assignment, user, g.Timestamp)
	if err != nil {
		log.WithFields(log.Fields{"user": user, "err": err}).Warn("counting submissions")
		return "submission count unavailable"
	}

	var form = "[PATCH v%d %d/%d]"
	if g.Component == store.ComponentInitial {
		form = "[RFC PATCH v%d %d/%d]"
	}
	var total = len(commits) - 1

	var problems []string
	for i, sha := range commits {
		var want = fmt.Sprintf(form, version, i, total)
		subject, err := repo.CommitSubject(sha)
		if err != nil {
			problems = append(problems, fmt.Sprintf("commit %.7s: unreadable", sha))
			continue
		}
		if !strings.HasPrefix(subject, want) {
			problems = append(problems, fmt.Sprintf("commit %.7s: want %q, got %q", sha, want, subject))
		}
	}
	if len(problems) == 0 {
		return "PASS"
	}
	return strings.Join(problems, "\n")
}

// checkDiffstat diffs the repository's own diffstat of the tag against
// the diffstat block the cover letter carries after its `--` sentinel.
// The baseline is the cover commit itself: it is the empty root of the
// submission's history, so the range spans exactly the patchset and
// nothing the grading repository's branch may carry.
func (r *Runner) checkDiffstat(repo *gitvc.Repo, coverSHA, tag string) string {
	var message, err = repo.CommitMessage(coverSHA)
	if err != nil {
		return "cover letter unreadable"
	}
	var claimed, ok = mailbox.DiffstatFromText(message)
	if !ok {
		return "cover letter has no diffstat block"
	}

	actual, err := repo.DiffStat(coverSHA + ".." + tag)
	if err != nil {
		return "repository diffstat unavailable"
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(claimed),
		B:        difflib.SplitLines(actual),
		FromFile: "cover letter",
		ToFile:   "repository",
		Context:  2,
	})
	if err != nil || diff == "" {
		return "PASS"
	}
	return diff
}

func section(heading, body string) string {
	return heading + "\n" + strings.Repeat("-", len(heading)) + "\n" + body
}
