package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestPasswordService() *PasswordService {
	return NewPasswordServiceWithCost(bcrypt.MinCost)
}

func TestHashAndVerify(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)
	assert.True(t, strings.HasPrefix(hash, "$2a$"), "bcrypt hash expected, got %q", hash)

	assert.NoError(t, ps.Verify(hash, "hunter22"))
	assert.True(t, errors.Is(ps.Verify(hash, "hunter23"), ErrPasswordMismatch))
}

func TestHash_SaltsEachCall(t *testing.T) {
	ps := newTestPasswordService()

	h1, err := ps.Hash("same-password")
	require.NoError(t, err)
	h2, err := ps.Hash("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestHash_TooLong(t *testing.T) {
	_, err := newTestPasswordService().Hash(strings.Repeat("a", 73))
	assert.Error(t, err)
}

func TestVerify_EmptyHashNeverMatches(t *testing.T) {
	err := newTestPasswordService().Verify("", "")
	assert.True(t, errors.Is(err, ErrPasswordMismatch))
}

func TestVerify_MalformedHash(t *testing.T) {
	err := newTestPasswordService().Verify("not-a-bcrypt-hash", "pw")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPasswordMismatch))
}
