package maillog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestParseSessionWithEmails(t *testing.T) {
	var dir = t.TempDir()
	writeLog(t, dir, "17000000000000", "1700000000 alice\nprogramming1 m1\nprogramming1 m2\nprogramming1 m3\n")

	var session, err = ParseFile(dir, "17000000000000")
	require.NoError(t, err)
	require.Equal(t, "17000000000000", session.ID)
	require.Equal(t, int64(1700000000), session.Timestamp)
	require.Equal(t, "alice", session.User)
	require.Equal(t, []Email{
		{Rcpt: "programming1", MsgID: "m1"},
		{Rcpt: "programming1", MsgID: "m2"},
		{Rcpt: "programming1", MsgID: "m3"},
	}, session.Emails)
}

func TestParseIdleSession(t *testing.T) {
	var dir = t.TempDir()
	writeLog(t, dir, "idle", "1700000000 bob\n")

	var session, err = ParseFile(dir, "idle")
	require.NoError(t, err)
	require.Equal(t, "bob", session.User)
	require.Empty(t, session.Emails)
}

func TestParseRejectsMalformedInput(t *testing.T) {
	var dir = t.TempDir()
	for name, content := range map[string]string{
		"empty":         "",
		"bad-header":    "alice\n",
		"bad-timestamp": "soon alice\n",
		"bad-email":     "1700000000 alice\nonly-one-field\n",
	} {
		writeLog(t, dir, name, content)
		var _, err = ParseFile(dir, name)
		require.Error(t, err, "case %s", name)
	}
}

func TestParseMissingFile(t *testing.T) {
	var _, err = ParseFile(t.TempDir(), "nope")
	require.Error(t, err)
}
