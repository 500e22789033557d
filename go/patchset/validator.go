// Package patchset decides whether a mailed patchset is acceptable: the
// cover letter is really a cover letter, every patch applies, every
// touched path stays inside the author's namespace, and the set matches
// the assignment's rubric when one exists. The verdict is a stable
// feedback string whose trailing rune encodes severity.
package patchset

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/patchbay/patchbay/go/gitvc"
	"github.com/patchbay/patchbay/go/mailbox"
	"github.com/patchbay/patchbay/go/maillog"
)

// Validator checks patchsets inside ephemeral scratch repositories and
// publishes the resulting tag to the grading remote.
type Validator struct {
	// Mail is the message store holding the patch files.
	Mail mailbox.Dir
	// RubricDir holds per-assignment rubric files.
	RubricDir string
	// PullURL and PushURL address the shared grading repository.
	PullURL string
	PushURL string
}

// Validate applies the cover letter and patches into a scratch repo and
// returns the rubric verdict. Whatever the verdict, the scratch history
// is tagged with the submission ID and pushed, so the tag always refers
// to something: on fatal outcomes the unapplied patches become empty
// commits. The returned error reports infrastructure failure only, never
// a property of the patchset.
func (v *Validator) Validate(cover maillog.Email, patches []maillog.Email, assignment, submissionID string) (Feedback, error) {
	var scratch, err = os.MkdirTemp("", "patchset-")
	if err != nil {
		return "", fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	repo, err := gitvc.Init(scratch, gitvc.Mailman)
	if err != nil {
		return "", fmt.Errorf("initializing scratch repo: %w", err)
	}

	var feedback, applied = v.check(repo, cover, patches, assignment)
	v.sealAndPush(repo, cover, patches, applied, submissionID)
	return feedback, nil
}

// check runs the rubric algorithm and returns the verdict along with how
// many patches were actually applied into the scratch repo.
func (v *Validator) check(repo *gitvc.Repo, cover maillog.Email, patches []maillog.Email, assignment string) (Feedback, int) {
	// A real cover letter is a diffless letter: strict application of
	// it must fail. If it applies, the first email carried a diff and
	// the patchset has no cover letter at all.
	if err := repo.ApplyMailbox(v.Mail.Path(cover.MsgID), gitvc.ApplyOpts{}); err == nil {
		return "missing cover letter!", 0
	}
	v.abort(repo)
	if err := repo.ApplyMailbox(v.Mail.Path(cover.MsgID), gitvc.ApplyOpts{KeepEmpty: true}); err != nil {
		v.abort(repo)
		return "missing cover letter and first patch failed to apply!", 0
	}

	var rubric, err = LoadRubric(v.RubricDir, assignment)
	if err != nil {
		log.WithFields(log.Fields{"assignment": assignment, "err": err}).
			Error("failed to load rubric; checking shape only")
	}
	if rubric != nil && len(rubric) != len(patches) {
		return Feedback(fmt.Sprintf(
			"patch count %d violates expected rubric patch count of %d!",
			len(patches), len(rubric))), 0
	}

	var whitespace []int
	for i, patch := range patches {
		var path = v.Mail.Path(patch.MsgID)

		header, err := v.Mail.Header(patch.MsgID)
		if err != nil || header.FromLocal == "" {
			return Feedback(fmt.Sprintf("patch %d is corrupt!", i+1)), i
		}
		var author = header.FromLocal

		pairs, err := changePairs(path)
		if err != nil {
			return Feedback(fmt.Sprintf("patch %d is corrupt!", i+1)), i
		}
		if bad := namespaceViolation(pairs, author); bad != "" {
			return Feedback(fmt.Sprintf(
				"illegal patch %d: permission denied for path %s!", i+1, bad)), i
		}
		if rubric != nil && violatesRubric(pairs, rubric[i], author) {
			return Feedback(fmt.Sprintf(
				"patch %d violates the assignment rubric!", i+1)), i
		}

		// A patch whose only change is adding a .patch file carries
		// someone else's whitespace; apply it with default rules.
		if addsSinglePatchFile(pairs) {
			if err := repo.ApplyMailbox(path, gitvc.ApplyOpts{}); err != nil {
				v.abort(repo)
				return Feedback(fmt.Sprintf("patch %d failed to apply!", i+1)), i
			}
			continue
		}

		if err := repo.ApplyMailbox(path, gitvc.ApplyOpts{WhitespaceErrorAll: true}); err == nil {
			continue
		}
		v.abort(repo)

		// The strict attempt failed. If the patch applies without the
		// strict flag, it carries whitespace errors but is otherwise
		// fine; if it still fails, it does not apply at all.
		if err := repo.ApplyMailbox(path, gitvc.ApplyOpts{}); err != nil {
			v.abort(repo)
			return Feedback(fmt.Sprintf("patch %d failed to apply!", i+1)), i
		}
		whitespace = append(whitespace, i+1)
	}

	if len(whitespace) > 0 {
		return Feedback(fmt.Sprintf(
			"whitespace error patch(es) %s?", joinIndices(whitespace))), len(patches)
	}
	return "patchset applies.", len(patches)
}

// sealAndPush tags the scratch history with the submission ID and pushes
// it to the grading remote. Unapplied patches are recorded as empty
// commits first, so a fatal verdict still yields a tag that graders and
// peers can fetch.
func (v *Validator) sealAndPush(repo *gitvc.Repo, cover maillog.Email, patches []maillog.Email, applied int, submissionID string) {
	if _, err := repo.RevParse("HEAD"); err != nil {
		// Not even the cover letter landed.
		if err := repo.CommitEmpty(v.subjectOr(cover.MsgID, "cover letter")); err != nil {
			log.WithFields(log.Fields{"submission": submissionID, "err": err}).
				Error("failed to seal scratch repo")
			return
		}
	}
	for i := applied; i < len(patches); i++ {
		var msg = v.subjectOr(patches[i].MsgID, fmt.Sprintf("corrupt patch %d", i+1))
		if err := repo.CommitEmpty(msg); err != nil {
			log.WithFields(log.Fields{"submission": submissionID, "err": err}).
				Error("failed to seal scratch repo")
			return
		}
	}

	if err := repo.CreateTag(submissionID, "", ""); err != nil {
		log.WithFields(log.Fields{"submission": submissionID, "err": err}).
			Error("failed to tag submission")
		return
	}
	if err := repo.PushTags(v.PushURL); err != nil {
		log.WithFields(log.Fields{"submission": submissionID, "err": err}).
			Error("failed to push submission tag")
	}
}

func (v *Validator) subjectOr(msgID, fallback string) string {
	if header, err := v.Mail.Header(msgID); err == nil && header.Subject != "" {
		return header.Subject
	}
	return fallback
}

func (v *Validator) abort(repo *gitvc.Repo) {
	if err := repo.AbortApply(); err != nil {
		log.WithField("err", err).Debug("git am --abort")
	}
}

// ApplyPeerReview stores a peer-review reply: the grading repo is cloned
// at the reviewed submission's branch, the reply is applied on top, and
// the result is tagged with the reviewer's submission ID and pushed.
func (v *Validator) ApplyPeerReview(email maillog.Email, submissionID, reviewID string) Feedback {
	var scratch, err = os.MkdirTemp("", "review-")
	if err != nil {
		log.WithField("err", err).Error("creating review scratch dir")
		return "failed to apply peer review!"
	}
	defer os.RemoveAll(scratch)

	repo, err := gitvc.Clone(v.PullURL, scratch, gitvc.Mailman, gitvc.CloneOpts{
		Branch:       reviewID,
		SingleBranch: true,
		NoTags:       true,
	})
	if err != nil {
		log.WithFields(log.Fields{"review": reviewID, "err": err}).
			Error("cloning review branch")
		return "failed to apply peer review!"
	}

	if err = repo.ApplyMailbox(v.Mail.Path(email.MsgID), gitvc.ApplyOpts{KeepEmpty: true}); err != nil {
		log.WithFields(log.Fields{"review": reviewID, "err": err}).
			Info("peer review reply did not apply")
		return "failed to apply peer review!"
	}
	if err = repo.CreateTag(submissionID, "", ""); err != nil {
		log.WithFields(log.Fields{"submission": submissionID, "err": err}).
			Error("tagging peer review")
		return "failed to apply peer review!"
	}
	if err = repo.PushTags(v.PushURL); err != nil {
		log.WithFields(log.Fields{"submission": submissionID, "err": err}).
			Error("pushing peer review tag")
		return "failed to apply peer review!"
	}
	return "successfully stored peer review."
}
