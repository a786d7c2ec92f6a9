package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueResolve(t *testing.T) {
	t.Parallel()

	m := NewManager("secret", time.Hour)

	token, err := m.Issue(7, 42, "Sprint Standup", "7KQ2PX")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.Resolve(token)
	require.NoError(t, err)
	require.Equal(t, int64(7), claims.RoomID)
	require.Equal(t, int64(42), claims.UserID)
	require.Equal(t, "Sprint Standup", claims.RoomName)
	require.Equal(t, "7KQ2PX", claims.RoomCode)
}

func TestResolveGarbage(t *testing.T) {
	t.Parallel()

	m := NewManager("secret", time.Hour)

	_, err := m.Resolve("not-a-token")
	require.Equal(t, ErrInvalidSession, err)
}

func TestResolveWrongSecret(t *testing.T) {
	t.Parallel()

	issued := NewManager("secret-a", time.Hour)
	token, err := issued.Issue(1, 1, "room", "CODE42")
	require.NoError(t, err)

	other := NewManager("secret-b", time.Hour)
	_, err = other.Resolve(token)
	require.Equal(t, ErrInvalidSession, err)
}

func TestResolveExpired(t *testing.T) {
	t.Parallel()

	m := NewManager("secret", -time.Minute)

	token, err := m.Issue(1, 1, "room", "CODE42")
	require.NoError(t, err)

	_, err = m.Resolve(token)
	require.Equal(t, ErrInvalidSession, err)
}

func TestRevoke(t *testing.T) {
	t.Parallel()

	m := NewManager("secret", time.Hour)

	token, err := m.Issue(1, 1, "room", "CODE42")
	require.NoError(t, err)

	claims, err := m.Resolve(token)
	require.NoError(t, err)
	require.Equal(t, 1, m.ActiveCount())

	m.Revoke(claims)
	require.Equal(t, 0, m.ActiveCount())

	_, err = m.Resolve(token)
	require.Equal(t, ErrSessionRevoked, err)
}

func TestSessionsIndependent(t *testing.T) {
	t.Parallel()

	m := NewManager("secret", time.Hour)

	first, err := m.Issue(1, 1, "room", "CODE42")
	require.NoError(t, err)
	second, err := m.Issue(1, 2, "room", "CODE42")
	require.NoError(t, err)

	claims, err := m.Resolve(first)
	require.NoError(t, err)
	m.Revoke(claims)

	// revoking one user's session must not touch the other's
	_, err = m.Resolve(second)
	require.NoError(t, err)
}
