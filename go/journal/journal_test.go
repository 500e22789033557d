package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	var j, err = Open(filepath.Join(t.TempDir(), "journal"))
	require.NoError(t, err)
	return j
}

func TestAppendPreservesOrder(t *testing.T) {
	var j = openTemp(t)
	require.NoError(t, j.Append([]byte("first.")))
	require.NoError(t, j.Append([]byte("second.")))

	var data, err = j.ReadVisible("anyone")
	require.NoError(t, err)
	require.Equal(t, "first.second.", string(data))
}

func TestDenyFreezesView(t *testing.T) {
	var j = openTemp(t)
	require.NoError(t, j.Append([]byte("before|")))
	require.NoError(t, j.Deny("resu"))
	require.NoError(t, j.Append([]byte("hidden|")))

	// Records before the deny stay visible; later records do not.
	var data, err = j.ReadVisible("resu")
	require.NoError(t, err)
	require.Equal(t, "before|", string(data))

	// Other users are unaffected.
	data, err = j.ReadVisible("user")
	require.NoError(t, err)
	require.Equal(t, "before|hidden|", string(data))
}

func TestAllowLiftsFreeze(t *testing.T) {
	var j = openTemp(t)
	require.NoError(t, j.Deny("resu"))
	require.NoError(t, j.Append([]byte("held")))
	require.NoError(t, j.Allow("resu"))

	var data, err = j.ReadVisible("resu")
	require.NoError(t, err)
	require.Equal(t, "held", string(data))
}

func TestEarliestDenyWins(t *testing.T) {
	var j = openTemp(t)
	require.NoError(t, j.Append([]byte("a")))
	require.NoError(t, j.Deny("resu"))
	require.NoError(t, j.Append([]byte("b")))
	require.NoError(t, j.Deny("resu"))

	var limit, err = j.VisibleTo("resu")
	require.NoError(t, err)
	require.Equal(t, int64(1), limit)
}

func TestAllowWithoutDenyIsNoop(t *testing.T) {
	var j = openTemp(t)
	require.NoError(t, j.Allow("user"))

	var limit, err = j.VisibleTo("user")
	require.NoError(t, err)
	require.Zero(t, limit)
}
