package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCSRFTokenRoundTrip(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := newSession()

	token, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	require.NoError(t, m.VerifyToken(context.Background(), sess, token))

	again, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, token, again)
}

func TestCSRFTokenMissing(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := newSession()

	require.ErrorIs(t, m.VerifyToken(context.Background(), nil, "x"), ErrCSRFTokenMissing)
	require.ErrorIs(t, m.VerifyToken(context.Background(), sess, "x"), ErrCSRFTokenMissing)

	_, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	require.ErrorIs(t, m.VerifyToken(context.Background(), sess, ""), ErrCSRFTokenMissing)
}

func TestCSRFTokenBoundToSessionID(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := newSession()
	token, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)

	sess.ID = "rotated-on-login"
	require.ErrorIs(t, m.VerifyToken(context.Background(), sess, token), ErrCSRFTokenMismatch)

	fresh, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	require.NotEqual(t, token, fresh)
	require.NoError(t, m.VerifyToken(context.Background(), sess, fresh))
}

func TestCSRFTokenFromOtherSecretRejected(t *testing.T) {
	sess := newSession()
	forged, err := NewCSRFManager("other").Rotate(sess)
	require.NoError(t, err)

	m := NewCSRFManager("secret")
	require.ErrorIs(t, m.VerifyToken(context.Background(), sess, forged), ErrCSRFTokenMismatch)
}

func TestCSRFRotateReplacesToken(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := newSession()
	first, err := m.Rotate(sess)
	require.NoError(t, err)
	second, err := m.Rotate(sess)
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.ErrorIs(t, m.VerifyToken(context.Background(), sess, first), ErrCSRFTokenMismatch)
	require.NoError(t, m.VerifyToken(context.Background(), sess, second))
}
