package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"installments/internal/logger"
	"installments/internal/store"
)

func TestMain(m *testing.M) {
	logger.Silence()
	m.Run()
}

func newGate(t *testing.T) (*Gate, *store.MemoryKV, *time.Time) {
	t.Helper()
	now := time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)
	kv := store.NewMemoryKV()
	g := NewGate(kv, WithCost(bcrypt.MinCost), WithClock(func() time.Time { return now }))
	return g, kv, &now
}

func TestCreateFirstUser(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		confirm  string
		wantErr  error
	}{
		{"missing username", " ", "secret", "secret", ErrMissingCredentials},
		{"short password", "admin", "abc", "abc", ErrPasswordTooShort},
		{"confirmation mismatch", "admin", "secret", "secreT", ErrPasswordMismatch},
		{"long username", "a-very-long-username-that-is-over-32", "secret", "secret", ErrUsernameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _, _ := newGate(t)
			_, err := g.CreateFirstUser(ctx, tt.username, tt.password, tt.confirm)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, g.HasUsers(ctx))
		})
	}

	t.Run("only once", func(t *testing.T) {
		g, kv, _ := newGate(t)
		name, err := g.CreateFirstUser(ctx, "  Admin ", "secret", "secret")
		require.NoError(t, err)
		assert.Equal(t, "Admin", name)

		raw, _, err := kv.Get(ctx, store.KeyAuthUsers)
		require.NoError(t, err)
		assert.NotContains(t, raw, "secret")

		_, err = g.CreateFirstUser(ctx, "other", "secret", "secret")
		assert.ErrorIs(t, err, ErrAlreadySetUp)
	})
}

func TestLoginAndSession(t *testing.T) {
	ctx := context.Background()
	g, _, now := newGate(t)

	_, err := g.EnsureSession(ctx)
	assert.ErrorIs(t, err, ErrNoUsers)

	_, err = g.CreateFirstUser(ctx, "Admin", "secret", "secret")
	require.NoError(t, err)

	_, err = g.EnsureSession(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = g.Login(ctx, "admin", "wrong", false)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	session, err := g.Login(ctx, "  ADMIN ", "secret", false)
	require.NoError(t, err)
	assert.Equal(t, "Admin", session.Username)
	assert.Equal(t, SessionTTL, session.ExpiresAt.Sub(session.CreatedAt))
	assert.True(t, g.IsLoggedIn(ctx))

	*now = now.Add(SessionTTL + time.Second)
	assert.False(t, g.IsLoggedIn(ctx))

	session, err = g.Login(ctx, "admin", "secret", true)
	require.NoError(t, err)
	assert.Equal(t, RememberSessionTTL, session.ExpiresAt.Sub(session.CreatedAt))

	require.NoError(t, g.Logout(ctx))
	assert.False(t, g.IsLoggedIn(ctx))
}

func TestLegacyPasswordUpgrade(t *testing.T) {
	ctx := context.Background()
	g, kv, _ := newGate(t)
	require.NoError(t, kv.Set(ctx, store.KeyAuthUsers, `[{"username":"owner","password":"1234"}]`))

	_, err := g.Login(ctx, "owner", "1234", false)
	require.NoError(t, err)

	raw, _, err := kv.Get(ctx, store.KeyAuthUsers)
	require.NoError(t, err)
	assert.Contains(t, raw, "passwordHash")
	assert.NotContains(t, raw, `"password":"1234"`)

	_, err = g.Login(ctx, "owner", "1234", false)
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newGate(t)
	_, err := g.CreateFirstUser(ctx, "admin", "secret", "secret")
	require.NoError(t, err)

	assert.ErrorIs(t, g.ChangePassword(ctx, "admin", "nope", "newpass"), ErrInvalidCredentials)
	assert.ErrorIs(t, g.ChangePassword(ctx, "admin", "secret", "abc"), ErrPasswordTooShort)
	assert.ErrorIs(t, g.ChangePassword(ctx, "ghost", "secret", "newpass"), ErrUserNotFound)

	require.NoError(t, g.ChangePassword(ctx, "Admin", "secret", "newpass"))
	_, err = g.Login(ctx, "admin", "secret", false)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = g.Login(ctx, "admin", "newpass", false)
	assert.NoError(t, err)
}

func TestMalformedUsersBlockSetup(t *testing.T) {
	ctx := context.Background()
	const broken = `[{"username":"admin","passwordHash":"$2a$04$`

	t.Run("setup is refused and the document kept", func(t *testing.T) {
		g, kv, _ := newGate(t)
		require.NoError(t, kv.Set(ctx, store.KeyAuthUsers, broken))

		assert.True(t, g.HasUsers(ctx))
		_, err := g.CreateFirstUser(ctx, "intruder", "secret", "secret")
		assert.ErrorIs(t, err, store.ErrMalformedRecord)

		raw, ok, err := kv.Get(ctx, store.KeyAuthUsers)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, broken, raw)
	})

	t.Run("login and password change fail", func(t *testing.T) {
		g, kv, _ := newGate(t)
		require.NoError(t, kv.Set(ctx, store.KeyAuthUsers, `{"not":"a list"}`))

		_, err := g.Login(ctx, "admin", "secret", false)
		assert.ErrorIs(t, err, store.ErrMalformedRecord)
		assert.ErrorIs(t, g.ChangePassword(ctx, "admin", "secret", "newpass"), store.ErrMalformedRecord)

		_, err = g.EnsureSession(ctx)
		assert.ErrorIs(t, err, ErrNotLoggedIn)
	})

	t.Run("entries without credentials do not count", func(t *testing.T) {
		g, kv, _ := newGate(t)
		require.NoError(t, kv.Set(ctx, store.KeyAuthUsers, `[{"username":"ghost"}]`))

		assert.False(t, g.HasUsers(ctx))
		_, err := g.CreateFirstUser(ctx, "admin", "secret", "secret")
		assert.NoError(t, err)
	})
}
