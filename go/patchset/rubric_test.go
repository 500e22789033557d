package patchset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRubricMissingIsNil(t *testing.T) {
	var rubric, err = LoadRubric(t.TempDir(), "programming99")
	require.NoError(t, err)
	require.Nil(t, rubric)
}

func TestLoadRubric(t *testing.T) {
	var dir = t.TempDir()
	var doc = `
- - from: /dev/null
    to: b/USERNAME/main.c
- - from: a/USERNAME/main.c
    to: b/USERNAME/main.c
  - from: /dev/null
    to: b/USERNAME/util.c
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "programming1.yaml"), []byte(doc), 0644))

	var rubric, err = LoadRubric(dir, "programming1")
	require.NoError(t, err)
	require.Len(t, rubric, 2)
	require.Equal(t, PatchShape{{From: "/dev/null", To: "b/USERNAME/main.c"}}, rubric[0])
	require.Len(t, rubric[1], 2)
}

func TestNormalizePath(t *testing.T) {
	require.Equal(t, "/dev/null", normalizePath("/dev/null", "alice"))
	require.Equal(t, "b/USERNAME/main.c", normalizePath("b/alice/main.c", "alice"))
	require.Equal(t, "a/USERNAME/d/e.c", normalizePath("a/alice/d/e.c", "alice"))
	require.Equal(t, "b/bob/main.c", normalizePath("b/bob/main.c", "alice"))
	require.Equal(t, "USERNAME/main.c", normalizePath("alice/main.c", "alice"))
	require.Equal(t, "b/USERNAME", normalizePath("b/alice", "alice"))
}

func TestViolatesRubric(t *testing.T) {
	var shape = PatchShape{
		{From: "/dev/null", To: "b/USERNAME/main.c"},
		{From: "/dev/null", To: "b/USERNAME/util.c"},
	}
	var observed = []ChangePair{
		{From: "/dev/null", To: "b/alice/main.c"},
		{From: "/dev/null", To: "b/alice/util.c"},
	}
	require.False(t, violatesRubric(observed, shape, "alice"))

	// One expected pair never shows up.
	require.True(t, violatesRubric(observed[:1], shape, "alice"))

	// Extra unexpected pairs are tolerated.
	var extra = append(observed, ChangePair{From: "/dev/null", To: "b/alice/extra.c"})
	require.False(t, violatesRubric(extra, shape, "alice"))
}

func TestChangePairs(t *testing.T) {
	var patch = `From: Alice <alice@example.com>
Subject: [PATCH v1 1/2] add main

---
 alice/main.c | 4 ++++
 1 file changed, 4 insertions(+)

diff --git a/alice/main.c b/alice/main.c
new file mode 100644
--- /dev/null
+++ b/alice/main.c
@@ -0,0 +1,4 @@
+int main(void)
+{
+	return 0;
+}
diff --git a/alice/util.c b/alice/util.c
--- a/alice/util.c
+++ b/alice/util.c
@@ -1 +1 @@
-int x;
+int y;
`
	var path = filepath.Join(t.TempDir(), "msg")
	require.NoError(t, os.WriteFile(path, []byte(patch), 0644))

	var pairs, err = changePairs(path)
	require.NoError(t, err)
	require.Equal(t, []ChangePair{
		{From: "/dev/null", To: "b/alice/main.c"},
		{From: "a/alice/util.c", To: "b/alice/util.c"},
	}, pairs)
}

func TestNamespaceViolation(t *testing.T) {
	var ok = []ChangePair{
		{From: "/dev/null", To: "b/alice/main.c"},
		{From: "a/alice/util.c", To: "b/alice/util.c"},
	}
	require.Empty(t, namespaceViolation(ok, "alice"))

	var bad = []ChangePair{
		{From: "/dev/null", To: "b/alice/main.c"},
		{From: "a/bob/util.c", To: "b/bob/util.c"},
	}
	require.Equal(t, "bob/util.c", namespaceViolation(bad, "alice"))
}

func TestAddsSinglePatchFile(t *testing.T) {
	require.True(t, addsSinglePatchFile([]ChangePair{
		{From: "/dev/null", To: "b/alice/review.patch"},
	}))
	require.False(t, addsSinglePatchFile([]ChangePair{
		{From: "/dev/null", To: "b/alice/review.txt"},
	}))
	require.False(t, addsSinglePatchFile([]ChangePair{
		{From: "a/alice/review.patch", To: "b/alice/review.patch"},
	}))
	require.False(t, addsSinglePatchFile([]ChangePair{
		{From: "/dev/null", To: "b/alice/a.patch"},
		{From: "/dev/null", To: "b/alice/b.patch"},
	}))
}

func TestJoinIndices(t *testing.T) {
	require.Equal(t, "1", joinIndices([]int{1}))
	require.Equal(t, "2,5,9", joinIndices([]int{2, 5, 9}))
}

func TestFeedbackSeverity(t *testing.T) {
	require.True(t, Feedback("patchset applies.").Passed())
	require.True(t, Feedback("whitespace error patch(es) 1,3?").Warning())
	require.True(t, Feedback("missing cover letter!").Fatal())
	require.False(t, Feedback("").Fatal())
}
