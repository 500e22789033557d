package gitvc

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func TestInitCommitTagAndNotes(t *testing.T) {
	requireGit(t)
	var r, err = Init(t.TempDir(), Denis)
	require.NoError(t, err)

	require.NoError(t, r.CommitEmpty("No gradeable submission."))
	require.NoError(t, r.CreateTag("EMPTY", "", ""))

	var exists, existsErr = r.TagExists("EMPTY")
	require.NoError(t, existsErr)
	require.True(t, exists)
	exists, existsErr = r.TagExists("nope")
	require.NoError(t, existsErr)
	require.False(t, exists)

	require.NoError(t, r.CommitEmpty("second"))
	require.NoError(t, r.CreateTag("programming1_initial_alice", "EMPTY", "patchset applies."))

	var tags, tagsErr = r.Tags()
	require.NoError(t, tagsErr)
	require.ElementsMatch(t, []string{"EMPTY", "programming1_initial_alice"}, tags)

	var commits, revErr = r.RevList("HEAD")
	require.NoError(t, revErr)
	require.Len(t, commits, 2)

	var msg, msgErr = r.CommitMessage(commits[0])
	require.NoError(t, msgErr)
	require.Equal(t, "No gradeable submission.", msg)

	require.NoError(t, r.AddNote("denis", "programming1_initial_alice", "Automated tests by denis"))
}

func TestApplyMailbox(t *testing.T) {
	requireGit(t)
	var upstream, err = Init(t.TempDir(), Mailman)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(upstream.Dir, "main.c"), []byte("int main(void)\n{\n\treturn 0;\n}\n"), 0644))
	_, err = upstream.run("add", "main.c")
	require.NoError(t, err)
	_, err = upstream.run("commit", "-m", "[PATCH v1 1/1] add main")
	require.NoError(t, err)

	var patchDir = t.TempDir()
	_, err = upstream.run("format-patch", "-1", "-o", patchDir)
	require.NoError(t, err)
	var patches, globErr = filepath.Glob(filepath.Join(patchDir, "*.patch"))
	require.NoError(t, globErr)
	require.Len(t, patches, 1)

	scratch, err := Init(t.TempDir(), Mailman)
	require.NoError(t, err)
	require.NoError(t, scratch.CommitEmpty("root"))
	require.NoError(t, scratch.ApplyMailbox(patches[0], ApplyOpts{WhitespaceErrorAll: true}))

	var subject, subjectErr = scratch.CommitSubject("HEAD")
	require.NoError(t, subjectErr)
	require.Equal(t, "[PATCH v1 1/1] add main", subject)
}

func TestApplyMailboxWhitespaceFailureAndAbort(t *testing.T) {
	requireGit(t)
	var upstream, err = Init(t.TempDir(), Mailman)
	require.NoError(t, err)

	// Trailing space makes --whitespace=error-all refuse the patch.
	require.NoError(t, os.WriteFile(filepath.Join(upstream.Dir, "notes.txt"), []byte("line with trailing space \n"), 0644))
	_, err = upstream.run("add", "notes.txt")
	require.NoError(t, err)
	_, err = upstream.run("commit", "-m", "[PATCH v1 1/1] add notes")
	require.NoError(t, err)

	var patchDir = t.TempDir()
	_, err = upstream.run("format-patch", "-1", "-o", patchDir)
	require.NoError(t, err)
	var patches, _ = filepath.Glob(filepath.Join(patchDir, "*.patch"))
	require.Len(t, patches, 1)

	scratch, err := Init(t.TempDir(), Mailman)
	require.NoError(t, err)
	require.NoError(t, scratch.CommitEmpty("root"))

	err = scratch.ApplyMailbox(patches[0], ApplyOpts{WhitespaceErrorAll: true})
	require.Error(t, err)
	var gitErr *Error
	require.ErrorAs(t, err, &gitErr)

	require.NoError(t, scratch.AbortApply())
	require.NoError(t, scratch.ApplyMailbox(patches[0], ApplyOpts{}))
}

func TestPushTagsToLocalRemote(t *testing.T) {
	requireGit(t)
	var bare = t.TempDir()
	require.NoError(t, exec.Command("git", "init", "--quiet", "--bare", bare).Run())

	var r, err = Init(t.TempDir(), Mailman)
	require.NoError(t, err)
	require.NoError(t, r.CommitEmpty("cover"))
	require.NoError(t, r.CreateTag("17000000000000", "", ""))
	require.NoError(t, r.PushTags(bare))

	clone, err := Clone(bare, filepath.Join(t.TempDir(), "clone"), Denis, CloneOpts{})
	require.NoError(t, err)
	var exists, existsErr = clone.TagExists("17000000000000")
	require.NoError(t, existsErr)
	require.True(t, exists)
}
