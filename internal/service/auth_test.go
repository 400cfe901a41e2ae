package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/auth"
)

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.auth.Register(ctx, "  alice ", "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.User.Username)
	assert.NotEqual(t, "secret1", res.User.PasswordHash)

	userID, err := f.auth.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, userID)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name, username, email, password, field string
	}{
		{"short username", "al", "al@example.com", "secret1", "username"},
		{"long username", strings.Repeat("a", MaxUsernameLength+1), "a@example.com", "secret1", "username"},
		{"bad email", "alice", "alice", "secret1", "email"},
		{"short password", "alice", "alice@example.com", "12345", "password"},
		{"long password", "alice", "alice@example.com", strings.Repeat("p", MaxPasswordBytes+1), "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.auth.Register(context.Background(), tt.username, tt.email, tt.password)
			require.Error(t, err)

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.True(t, errors.Is(err, apperror.ErrValidation))
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestRegister_Taken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.auth.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	_, err = f.auth.Register(ctx, "alice", "new@example.com", "secret1")
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	_, err = f.auth.Register(ctx, "alice2", "alice@example.com", "secret1")
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg, err := f.auth.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	res, err := f.auth.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, res.User.ID)
	assert.NotEmpty(t, res.Token)

	_, err = f.auth.Login(ctx, "alice", "wrong-password")
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))

	_, err = f.auth.Login(ctx, "nobody", "secret1")
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
}

func TestLogin_GitHubOnlyAccountHasNoPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.auth.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 1, Login: "octocat"})
	require.NoError(t, err)

	_, err = f.auth.Login(ctx, "octocat", "")
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
}

func TestLoginOrRegisterGitHub(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.auth.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 42, Login: "octocat"})
	require.NoError(t, err)
	assert.Equal(t, "octocat@users.noreply.github.com", first.User.Email)
	assert.Equal(t, int64(42), first.User.GitHubID)

	again, err := f.auth.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 42, Login: "octocat"})
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, again.User.ID)

	_, err = f.auth.LoginOrRegisterGitHub(ctx, nil)
	assert.Error(t, err)
}

func TestLoginOrRegisterGitHub_DoesNotClaimPasswordAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	victim, err := f.auth.Register(ctx, "victim", "victim@example.com", "secret1")
	require.NoError(t, err)

	// Same email on a GitHub profile: the address was never verified here.
	_, err = f.auth.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 7, Login: "someone", Email: "victim@example.com"})
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	u, err := f.auth.GetUserByID(ctx, victim.User.ID)
	require.NoError(t, err)
	assert.Zero(t, u.GitHubID)

	res, err := f.auth.Login(ctx, "victim", "secret1")
	require.NoError(t, err)
	assert.Equal(t, victim.User.ID, res.User.ID)
}

func TestRegister_UsernameTakenIgnoringCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boss, err := f.auth.Register(ctx, "admin", "boss@example.com", "secret1")
	require.NoError(t, err)

	for _, name := range []string{"ADMIN", "Admin", "aDmIn"} {
		_, err := f.auth.Register(ctx, name, strings.ToLower(name)+"@other.example.com", "secret1")
		assert.True(t, errors.Is(err, apperror.ErrConflict), name)
	}

	// The case variant logs into the existing account, not a new one.
	res, err := f.auth.Login(ctx, "ADMIN", "secret1")
	require.NoError(t, err)
	assert.Equal(t, boss.User.ID, res.User.ID)
}

func TestValidateToken_Invalid(t *testing.T) {
	f := newFixture(t)
	_, err := f.auth.ValidateToken("garbage")
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
}

func TestCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boss := f.user(t, "admin") // configured as "Admin"; match ignores case
	alice := f.user(t, "alice")

	c, err := f.auth.Caller(ctx, boss.ID)
	require.NoError(t, err)
	assert.True(t, c.IsAdmin)

	c, err = f.auth.Caller(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, c.IsAdmin)
	assert.Equal(t, alice.ID, c.UserID)

	_, err = f.auth.Caller(ctx, "deleted-user")
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
}
