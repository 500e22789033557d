package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/patchbay/patchbay/go/store"
)

func newGateway(t *testing.T) *Gateway {
	t.Helper()
	var s, err = store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewGateway(s, time.Minute)
}

func addPlaceholder(t *testing.T, g *Gateway, username, studentID string) {
	t.Helper()
	require.NoError(t, g.Store.CreateUser(store.User{
		Username:  username,
		StudentID: &studentID,
		FullName:  "Test " + username,
	}))
}

func TestRegisterIsOneShot(t *testing.T) {
	var g = newGateway(t)
	addPlaceholder(t, g, "alice", "s1000")

	var username, password, err = g.Register("s1000")
	require.NoError(t, err)
	require.Equal(t, "alice", username)
	require.NotEmpty(t, password)

	require.True(t, g.Validate("alice", password))
	require.False(t, g.Validate("alice", "not-the-password"))

	_, _, err = g.Register("s1000")
	require.ErrorIs(t, err, ErrUnknownStudent)
	_, _, err = g.Register("s9999")
	require.ErrorIs(t, err, ErrUnknownStudent)
}

func TestValidateRejectsUnregistered(t *testing.T) {
	var g = newGateway(t)
	addPlaceholder(t, g, "bob", "s2000")

	require.False(t, g.Validate("bob", "anything"))
	require.False(t, g.Validate("nobody", "anything"))
}

func TestLoginReplacesSession(t *testing.T) {
	var g = newGateway(t)
	addPlaceholder(t, g, "alice", "s1000")
	_, _, err := g.Register("s1000")
	require.NoError(t, err)

	first, err := g.Login("alice")
	require.NoError(t, err)
	require.Len(t, first, 64)

	var username, lookupErr = g.SessionFromToken(first)
	require.NoError(t, lookupErr)
	require.Equal(t, "alice", username)

	second, err := g.Login("alice")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	username, lookupErr = g.SessionFromToken(first)
	require.NoError(t, lookupErr)
	require.Empty(t, username)
	username, lookupErr = g.SessionFromToken(second)
	require.NoError(t, lookupErr)
	require.Equal(t, "alice", username)

	require.NoError(t, g.Logout(second))
	username, lookupErr = g.SessionFromToken(second)
	require.NoError(t, lookupErr)
	require.Empty(t, username)
}

func TestExpiredSessionIsSwept(t *testing.T) {
	var g = newGateway(t)
	addPlaceholder(t, g, "alice", "s1000")

	require.NoError(t, g.Store.ReplaceSession(store.Session{
		Token:    "stale-token",
		Username: "alice",
		Expiry:   time.Now().Add(-time.Hour).Unix(),
	}))

	var username, err = g.SessionFromToken("stale-token")
	require.NoError(t, err)
	require.Empty(t, username)

	sess, err := g.Store.SessionByToken("stale-token")
	require.NoError(t, err)
	require.Nil(t, sess)
}
