package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortlink/internal/store"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	return NewIssuer(store.NewMemoryStore(), "test-secret", time.Hour)
}

func registered(t *testing.T, issuer *Issuer) Credentials {
	t.Helper()
	creds := Credentials{Email: "ada@example.com", Password: "hunter22"}
	_, err := issuer.Register(context.Background(), creds, "Ada Lovelace", "CS-101")
	require.NoError(t, err)
	return creds
}

func TestIssuer_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	issuer := newTestIssuer(t)
	creds := registered(t, issuer)

	result, err := issuer.Login(ctx, creds)
	require.NoError(t, err)

	assert.NotEmpty(t, result.AccessToken)
	assert.Equal(t, "Bearer", result.TokenType)
	assert.Equal(t, int64(3600), result.ExpiresIn)
	assert.Equal(t, User{Email: "ada@example.com", Name: "Ada Lovelace", RollNo: "CS-101"}, result.User)
}

func TestIssuer_DuplicateRegistration(t *testing.T) {
	ctx := context.Background()
	issuer := newTestIssuer(t)
	creds := registered(t, issuer)

	_, err := issuer.Register(ctx, creds, "Someone Else", "CS-102")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestIssuer_LoginRejected(t *testing.T) {
	ctx := context.Background()
	issuer := newTestIssuer(t)
	creds := registered(t, issuer)

	_, err := issuer.Login(ctx, Credentials{Email: creds.Email, Password: "wrong"})
	assert.ErrorIs(t, err, ErrRejected)

	_, err = issuer.Login(ctx, Credentials{Email: "nobody@example.com", Password: "hunter22"})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestIssuer_Refresh(t *testing.T) {
	ctx := context.Background()
	issuer := newTestIssuer(t)
	creds := registered(t, issuer)

	login, err := issuer.Login(ctx, creds)
	require.NoError(t, err)

	// Sign the refreshed token at a later instant so it differs.
	issuer.now = func() time.Time { return time.Now().Add(time.Minute) }

	refreshed, err := issuer.Refresh(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, login.AccessToken, refreshed.AccessToken)
	assert.Equal(t, int64(3600), refreshed.ExpiresIn)
}

func TestIssuer_RefreshGarbageToken(t *testing.T) {
	issuer := newTestIssuer(t)

	_, err := issuer.Refresh(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestIssuer_RefreshExpiredToken(t *testing.T) {
	ctx := context.Background()
	issuer := newTestIssuer(t)
	creds := registered(t, issuer)

	login, err := issuer.Login(ctx, creds)
	require.NoError(t, err)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = issuer.Refresh(ctx, login.AccessToken)
	assert.ErrorIs(t, err, ErrRejected)
}
