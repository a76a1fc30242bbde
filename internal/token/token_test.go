package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aura-assist/gateway/types"
)

const testSecret = "test-secret-not-for-production"

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService([]byte(testSecret), opts...)
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := newTestService(t)

	issued, err := svc.IssueAccess("u-1", "alice", "alice@example.test",
		[]string{"user"}, []string{"chat", "view_memory"})
	require.NoError(t, err)
	require.NotEmpty(t, issued.JTI)

	payload, err := svc.Verify(issued.Token, types.TokenKindAccess)
	require.NoError(t, err)
	require.Equal(t, "u-1", payload.UserID)
	require.Equal(t, "alice", payload.Username)
	require.Equal(t, "alice@example.test", payload.Email)
	require.Equal(t, []string{"user"}, payload.Roles)
	require.Equal(t, []string{"chat", "view_memory"}, payload.Permissions)
	require.Equal(t, issued.JTI, payload.JTI)
	require.Equal(t, types.TokenKindAccess, payload.Kind)
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	svc := newTestService(t)

	access, err := svc.IssueAccess("u-1", "alice", "", nil, nil)
	require.NoError(t, err)
	refresh, err := svc.IssueRefresh("u-1", "alice")
	require.NoError(t, err)

	_, err = svc.Verify(access.Token, types.TokenKindRefresh)
	require.ErrorIs(t, err, ErrWrongKind)
	_, err = svc.Verify(refresh.Token, types.TokenKindAccess)
	require.ErrorIs(t, err, ErrWrongKind)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	svc := newTestService(t)
	other, err := NewService([]byte("a-different-secret"))
	require.NoError(t, err)

	issued, err := svc.IssueAccess("u-1", "alice", "", nil, nil)
	require.NoError(t, err)

	_, err = other.Verify(issued.Token, types.TokenKindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiry(t *testing.T) {
	now := time.Now()
	clock := now
	svc := newTestService(t,
		WithAccessTTL(time.Second),
		WithClock(func() time.Time { return clock }),
	)

	issued, err := svc.IssueAccess("u-1", "alice", "", nil, nil)
	require.NoError(t, err)

	// One second of validity left: passes now, fails after it elapses.
	_, err = svc.Verify(issued.Token, types.TokenKindAccess)
	require.NoError(t, err)

	clock = now.Add(2 * time.Second)
	_, err = svc.Verify(issued.Token, types.TokenKindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAlreadyExpiredTokenFails(t *testing.T) {
	now := time.Now()
	clock := now.Add(-time.Hour)
	svc := newTestService(t,
		WithAccessTTL(time.Minute),
		WithClock(func() time.Time { return clock }),
	)

	issued, err := svc.IssueAccess("u-1", "alice", "", nil, nil)
	require.NoError(t, err)

	clock = now
	_, err = svc.Verify(issued.Token, types.TokenKindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestPeekIgnoresSignatureButDecodesClaims(t *testing.T) {
	svc := newTestService(t)
	issued, err := svc.IssueRefresh("u-1", "alice")
	require.NoError(t, err)

	// Corrupt the signature; Peek should still surface the jti.
	tampered := issued.Token[:len(issued.Token)-2] + "xx"
	payload, err := svc.Peek(tampered)
	require.NoError(t, err)
	require.Equal(t, issued.JTI, payload.JTI)
	require.Equal(t, types.TokenKindRefresh, payload.Kind)

	_, err = svc.Verify(tampered, types.TokenKindRefresh)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestPeekRejectsGarbage(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Peek("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestJTIsAreUnique(t *testing.T) {
	svc := newTestService(t)
	a, err := svc.IssueAccess("u-1", "alice", "", nil, nil)
	require.NoError(t, err)
	b, err := svc.IssueAccess("u-1", "alice", "", nil, nil)
	require.NoError(t, err)
	require.NotEqual(t, a.JTI, b.JTI)
}
