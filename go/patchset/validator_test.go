package patchset

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchbay/patchbay/go/gitvc"
	"github.com/patchbay/patchbay/go/mailbox"
	"github.com/patchbay/patchbay/go/maillog"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func gitIn(t *testing.T, dir string, args ...string) {
	t.Helper()
	var cmd = exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Alice", "GIT_AUTHOR_EMAIL=alice@example.com",
		"GIT_COMMITTER_NAME=Alice", "GIT_COMMITTER_EMAIL=alice@example.com",
	)
	var out, err = cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

// formatPatches builds an upstream history of one commit per file and
// returns the format-patch outputs, oldest first.
func formatPatches(t *testing.T, files map[string]string, order []string) []string {
	t.Helper()
	var upstream = t.TempDir()
	gitIn(t, upstream, "init", "--quiet", ".")
	for _, name := range order {
		var path = filepath.Join(upstream, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(files[name]), 0644))
		gitIn(t, upstream, "add", name)
		gitIn(t, upstream, "commit", "--quiet", "-m", "add "+name)
	}
	var outDir = t.TempDir()
	gitIn(t, upstream, "format-patch", "--root", "-o", outDir)
	var patches, err = filepath.Glob(filepath.Join(outDir, "*.patch"))
	require.NoError(t, err)
	require.Len(t, patches, len(order))
	return patches
}

// fixture assembles a Validator over a fresh mailbox and a bare grading
// remote, returning the remote path for later inspection.
func fixture(t *testing.T) (*Validator, string) {
	t.Helper()
	var remote = t.TempDir()
	gitIn(t, remote, "init", "--quiet", "--bare", ".")
	var v = &Validator{
		Mail:      mailbox.Dir{Root: t.TempDir()},
		RubricDir: t.TempDir(),
		PullURL:   remote,
		PushURL:   remote,
	}
	return v, remote
}

// deliver copies file content into the mailbox under msgID.
func deliver(t *testing.T, v *Validator, msgID, content string) maillog.Email {
	t.Helper()
	require.NoError(t, os.WriteFile(v.Mail.Path(msgID), []byte(content), 0644))
	return maillog.Email{Rcpt: "programming1", MsgID: msgID}
}

func deliverFile(t *testing.T, v *Validator, msgID, path string) maillog.Email {
	t.Helper()
	var data, err = os.ReadFile(path)
	require.NoError(t, err)
	return deliver(t, v, msgID, string(data))
}

const coverLetter = `From: Alice <alice@example.com>
Date: Mon, 1 Jan 2024 10:00:00 +0000
Subject: [RFC PATCH v1 0/2] programming1 solution

This patchset solves the first assignment.
`

func remoteHasTag(t *testing.T, remote, tag string) bool {
	t.Helper()
	var clone, err = gitvc.Clone(remote, filepath.Join(t.TempDir(), "c"), gitvc.Denis, gitvc.CloneOpts{})
	require.NoError(t, err)
	exists, err := clone.TagExists(tag)
	require.NoError(t, err)
	return exists
}

func TestValidateCleanPatchset(t *testing.T) {
	requireGit(t)
	var v, remote = fixture(t)

	var patches = formatPatches(t, map[string]string{
		"alice/main.c": "int main(void)\n{\n\treturn 0;\n}\n",
		"alice/util.c": "int util(void)\n{\n\treturn 1;\n}\n",
	}, []string{"alice/main.c", "alice/util.c"})

	var cover = deliver(t, v, "17000000010000", coverLetter)
	var emails = []maillog.Email{
		deliverFile(t, v, "17000000010001", patches[0]),
		deliverFile(t, v, "17000000010002", patches[1]),
	}

	var feedback, err = v.Validate(cover, emails, "programming1", "17000000010000")
	require.NoError(t, err)
	require.Equal(t, Feedback("patchset applies."), feedback)
	require.True(t, feedback.Passed())
	require.True(t, remoteHasTag(t, remote, "17000000010000"))
}

func TestValidateMissingCoverLetter(t *testing.T) {
	requireGit(t)
	var v, _ = fixture(t)

	var patches = formatPatches(t, map[string]string{
		"alice/main.c": "int main(void)\n{\n\treturn 0;\n}\n",
	}, []string{"alice/main.c"})
	var cover = deliverFile(t, v, "17000000020000", patches[0])

	var feedback, err = v.Validate(cover, nil, "programming1", "17000000020000")
	require.NoError(t, err)
	require.Equal(t, Feedback("missing cover letter!"), feedback)
}

func TestValidateGarbageCoverLetter(t *testing.T) {
	requireGit(t)
	var v, remote = fixture(t)

	var cover = deliver(t, v, "17000000030000", "this is not an email\n")
	var feedback, err = v.Validate(cover, nil, "programming1", "17000000030000")
	require.NoError(t, err)
	require.Equal(t, Feedback("missing cover letter and first patch failed to apply!"), feedback)

	// Fatal outcomes still publish a tag, padded with empty commits.
	require.True(t, remoteHasTag(t, remote, "17000000030000"))
}

func TestValidateNamespaceViolation(t *testing.T) {
	requireGit(t)
	var v, remote = fixture(t)

	var patches = formatPatches(t, map[string]string{
		"bob/main.c": "int main(void)\n{\n\treturn 0;\n}\n",
	}, []string{"bob/main.c"})

	var cover = deliver(t, v, "17000000040000", coverLetter)
	var emails = []maillog.Email{deliverFile(t, v, "17000000040001", patches[0])}

	var feedback, err = v.Validate(cover, emails, "programming1", "17000000040000")
	require.NoError(t, err)
	require.Equal(t, Feedback("illegal patch 1: permission denied for path bob/main.c!"), feedback)
	require.True(t, feedback.Fatal())
	require.True(t, remoteHasTag(t, remote, "17000000040000"))
}

func TestValidateWhitespaceWarning(t *testing.T) {
	requireGit(t)
	var v, _ = fixture(t)

	var patches = formatPatches(t, map[string]string{
		"alice/notes.txt": "line with trailing space \n",
	}, []string{"alice/notes.txt"})

	var cover = deliver(t, v, "17000000050000", coverLetter)
	var emails = []maillog.Email{deliverFile(t, v, "17000000050001", patches[0])}

	var feedback, err = v.Validate(cover, emails, "programming1", "17000000050000")
	require.NoError(t, err)
	require.Equal(t, Feedback("whitespace error patch(es) 1?"), feedback)
	require.True(t, feedback.Warning())
}

func TestValidateRubric(t *testing.T) {
	requireGit(t)
	var v, _ = fixture(t)

	var doc = `
- - from: /dev/null
    to: b/USERNAME/main.c
`
	require.NoError(t, os.WriteFile(
		filepath.Join(v.RubricDir, "programming1.yaml"), []byte(doc), 0644))

	var patches = formatPatches(t, map[string]string{
		"alice/main.c": "int main(void)\n{\n\treturn 0;\n}\n",
		"alice/util.c": "int util(void)\n{\n\treturn 1;\n}\n",
	}, []string{"alice/main.c", "alice/util.c"})

	var cover = deliver(t, v, "17000000060000", coverLetter)

	// Too many patches for the rubric.
	var both = []maillog.Email{
		deliverFile(t, v, "17000000060001", patches[0]),
		deliverFile(t, v, "17000000060002", patches[1]),
	}
	feedback, err := v.Validate(cover, both, "programming1", "17000000060000")
	require.NoError(t, err)
	require.Equal(t, Feedback("patch count 2 violates expected rubric patch count of 1!"), feedback)

	// Right count, wrong shape.
	var wrong = []maillog.Email{deliverFile(t, v, "17000000070001", patches[1])}
	feedback, err = v.Validate(cover, wrong, "programming1", "17000000070000")
	require.NoError(t, err)
	require.Equal(t, Feedback("patch 1 violates the assignment rubric!"), feedback)

	// Right count, right shape.
	var right = []maillog.Email{deliverFile(t, v, "17000000080001", patches[0])}
	feedback, err = v.Validate(cover, right, "programming1", "17000000080000")
	require.NoError(t, err)
	require.Equal(t, Feedback("patchset applies."), feedback)
}

func TestApplyPeerReview(t *testing.T) {
	requireGit(t)
	var v, remote = fixture(t)

	// Publish the reviewed submission as a branch of the grading repo.
	var work = t.TempDir()
	gitIn(t, work, "init", "--quiet", ".")
	require.NoError(t, os.MkdirAll(filepath.Join(work, "alice"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(work, "alice", "main.c"), []byte("int main;\n"), 0644))
	gitIn(t, work, "add", ".")
	gitIn(t, work, "commit", "--quiet", "-m", "[PATCH v1 1/1] add main")
	gitIn(t, work, "push", "--quiet", remote, "HEAD:refs/heads/17000000090000")

	var reply = deliver(t, v, "17000000090005", `From: Bob <bob@example.com>
Date: Mon, 8 Jan 2024 10:00:00 +0000
Subject: Re: [PATCH v1 1/1] add main
In-Reply-To: <17000000090001@patchbay>

Looks good, but main should be a function.
`)

	var feedback = v.ApplyPeerReview(reply, "170000000a0000", "17000000090000")
	require.Equal(t, Feedback("successfully stored peer review."), feedback)
	require.True(t, feedback.Passed())
	require.True(t, remoteHasTag(t, remote, "170000000a0000"))
}

func TestApplyPeerReviewUnknownBranch(t *testing.T) {
	requireGit(t)
	var v, _ = fixture(t)

	var reply = deliver(t, v, "170000000b0005", coverLetter)
	var feedback = v.ApplyPeerReview(reply, "170000000b0000", "does-not-exist")
	require.Equal(t, Feedback("failed to apply peer review!"), feedback)
	require.True(t, feedback.Fatal())
}
