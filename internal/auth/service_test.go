package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/serroba/url-shortener/internal/apperr"
	"github.com/serroba/url-shortener/internal/auth"
	"github.com/serroba/url-shortener/internal/credential"
	"github.com/serroba/url-shortener/internal/store"
	"github.com/serroba/url-shortener/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	svc    *auth.Service
	repo   *store.MemoryAuthStore
	issuer *token.HS256Issuer
	now    time.Time
}

func (f *fixture) clock() time.Time {
	return f.now
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo: store.NewMemoryAuthStore(),
		now:  time.Now(),
	}

	hasher, err := credential.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)

	f.issuer, err = token.NewHS256Issuer("0123456789abcdef0123456789abcdef", "url-shortener")
	require.NoError(t, err)

	f.svc, err = auth.NewService(f.repo, hasher, f.issuer, auth.DefaultConfig(), zap.NewNop(), auth.WithClock(f.clock))
	require.NoError(t, err)

	return f
}

func (f *fixture) registerAndLogin(t *testing.T) *auth.LoginResult {
	t.Helper()

	ctx := context.Background()

	_, err := f.svc.Register(ctx, "user@example.com", "strongPassword123")
	require.NoError(t, err)

	res, err := f.svc.Login(ctx, "user@example.com", "strongPassword123")
	require.NoError(t, err)

	return res
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("stores only the password hash", func(t *testing.T) {
		f := newFixture(t)

		user, err := f.svc.Register(ctx, "  User@Example.COM ", "strongPassword123")

		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "user@example.com", user.Email)
		assert.NotEqual(t, "strongPassword123", user.PasswordHash)
		assert.NotContains(t, user.PasswordHash, "strongPassword123")
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, "user@example.com", "strongPassword123")
		require.NoError(t, err)

		_, err = f.svc.Register(ctx, "USER@example.com", "anotherPassword")

		assert.ErrorIs(t, err, apperr.ErrConflict)
		assert.ErrorIs(t, err, auth.ErrEmailTaken)
	})

	t.Run("rejects short password", func(t *testing.T) {
		_, err := newFixture(t).svc.Register(ctx, "user@example.com", "12345")

		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})

	t.Run("rejects empty email", func(t *testing.T) {
		_, err := newFixture(t).svc.Register(ctx, "   ", "strongPassword123")

		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("issues access and refresh tokens", func(t *testing.T) {
		f := newFixture(t)

		res := f.registerAndLogin(t)

		assert.Equal(t, "user@example.com", res.User.Email)
		assert.NotEmpty(t, res.User.ID)

		access, err := f.issuer.Verify(res.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, token.Claims{Subject: res.User.ID, Email: "user@example.com", Type: token.TypeAccess}, access)

		refresh, err := f.issuer.Verify(res.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, token.TypeRefresh, refresh.Type)
	})

	t.Run("persists hashed refresh token with store expiry", func(t *testing.T) {
		f := newFixture(t)

		res := f.registerAndLogin(t)

		stored, err := f.repo.ListRefreshTokens(ctx, res.User.ID)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.NotEqual(t, res.RefreshToken, stored[0].TokenHash)
		assert.WithinDuration(t, f.now.Add(24*time.Hour), stored[0].ExpiresAt, time.Second)
	})

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, "user@example.com", "strongPassword123")
		require.NoError(t, err)

		_, wrongPassword := f.svc.Login(ctx, "user@example.com", "wrongPassword")
		_, unknownEmail := f.svc.Login(ctx, "nobody@example.com", "strongPassword123")

		assert.ErrorIs(t, wrongPassword, apperr.ErrUnauthorized)
		assert.ErrorIs(t, unknownEmail, apperr.ErrUnauthorized)
		assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
		assert.Equal(t, auth.MsgInvalidCredentials, wrongPassword.Error())
	})

	t.Run("email lookup is case insensitive", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, "user@example.com", "strongPassword123")
		require.NoError(t, err)

		_, err = f.svc.Login(ctx, "User@Example.com", "strongPassword123")

		assert.NoError(t, err)
	})
}

func TestService_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("rotates the presented token", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)

		pair, err := f.svc.Refresh(ctx, login.User.ID, login.RefreshToken)

		require.NoError(t, err)
		assert.NotEqual(t, login.RefreshToken, pair.RefreshToken)
		assert.NotEmpty(t, pair.AccessToken)

		stored, err := f.repo.ListRefreshTokens(ctx, login.User.ID)
		require.NoError(t, err)
		assert.Len(t, stored, 1)
	})

	t.Run("reusing a rotated token fails", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)

		_, err := f.svc.Refresh(ctx, login.User.ID, login.RefreshToken)
		require.NoError(t, err)

		_, err = f.svc.Refresh(ctx, login.User.ID, login.RefreshToken)

		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
		assert.Equal(t, auth.MsgRefreshInvalid, err.Error())
	})

	t.Run("new token can rotate again", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)

		pair, err := f.svc.Refresh(ctx, login.User.ID, login.RefreshToken)
		require.NoError(t, err)

		_, err = f.svc.Refresh(ctx, login.User.ID, pair.RefreshToken)

		assert.NoError(t, err)
	})

	t.Run("fails when user has no stored tokens", func(t *testing.T) {
		f := newFixture(t)
		user, err := f.svc.Register(ctx, "user@example.com", "strongPassword123")
		require.NoError(t, err)

		_, err = f.svc.Refresh(ctx, user.ID, "whatever")

		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
		assert.Equal(t, auth.MsgRefreshNotFound, err.Error())
	})

	t.Run("expired stored token fails even if the hash matches", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)

		f.now = f.now.Add(24*time.Hour + time.Second)

		_, err := f.svc.Refresh(ctx, login.User.ID, login.RefreshToken)

		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
		assert.Equal(t, auth.MsgRefreshInvalid, err.Error())
	})

	t.Run("stored token for a different user fails", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)

		other, err := f.svc.Register(ctx, "other@example.com", "strongPassword123")
		require.NoError(t, err)
		_, err = f.svc.Login(ctx, "other@example.com", "strongPassword123")
		require.NoError(t, err)

		_, err = f.svc.Refresh(ctx, other.ID, login.RefreshToken)

		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("access token cannot be used to refresh", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)

		_, err := f.svc.Refresh(ctx, login.User.ID, login.AccessToken)

		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("rotation purges the user's expired tokens", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)
		_, err := f.repo.CreateRefreshToken(ctx, login.User.ID, "stale", f.now.Add(-time.Minute))
		require.NoError(t, err)

		_, err = f.svc.Refresh(ctx, login.User.ID, login.RefreshToken)
		require.NoError(t, err)

		stored, err := f.repo.ListRefreshTokens(ctx, login.User.ID)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.NotEqual(t, "stale", stored[0].TokenHash)
	})

	t.Run("concurrent rotations of one token let exactly one through", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)

		var wg sync.WaitGroup

		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)

			go func() {
				defer wg.Done()

				_, errs[i] = f.svc.Refresh(ctx, login.User.ID, login.RefreshToken)
			}()
		}

		wg.Wait()

		succeeded := 0

		for _, err := range errs {
			if err == nil {
				succeeded++

				continue
			}

			assert.ErrorIs(t, err, apperr.ErrUnauthorized)
			assert.Equal(t, auth.MsgRefreshInvalid, err.Error())
		}

		assert.Equal(t, 1, succeeded)

		stored, err := f.repo.ListRefreshTokens(ctx, login.User.ID)
		require.NoError(t, err)
		assert.Len(t, stored, 1)
	})

	t.Run("deleted user fails", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)
		require.NoError(t, f.repo.SoftDeleteUser(ctx, login.User.ID))

		_, err := f.svc.Refresh(ctx, login.User.ID, login.RefreshToken)

		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
		assert.Equal(t, auth.MsgUserNotFound, err.Error())
	})
}

func TestService_Profile(t *testing.T) {
	ctx := context.Background()

	t.Run("returns public projection", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)

		profile, err := f.svc.Profile(ctx, login.User.ID)

		require.NoError(t, err)
		assert.Equal(t, &auth.PublicUser{ID: login.User.ID, Email: "user@example.com"}, profile)
	})

	t.Run("unknown user is unauthorized", func(t *testing.T) {
		_, err := newFixture(t).svc.Profile(ctx, "nobody")

		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})
}

func TestIdentity(t *testing.T) {
	t.Run("round trips through context", func(t *testing.T) {
		ctx := auth.WithIdentity(context.Background(), auth.Identity{UserID: "u1", Email: "a@b.c"})

		id, ok := auth.IdentityFromContext(ctx)

		assert.True(t, ok)
		assert.Equal(t, "u1", id.UserID)
	})

	t.Run("absent identity", func(t *testing.T) {
		_, ok := auth.IdentityFromContext(context.Background())

		assert.False(t, ok)
	})
}
