package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher(t *testing.T) {
	h, err := NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	hash, err := h.Hash("pw123456")
	require.NoError(t, err)
	assert.NotEqual(t, "pw123456", hash)

	ok, err := h.Check(hash, "pw123456")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Check(hash, "pw1234567")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Check("not-a-bcrypt-hash", "pw123456")
	assert.Error(t, err)

	h.CompareMissing("anything")
}

func TestNewPasswordHasher_BadCost(t *testing.T) {
	_, err := NewPasswordHasher(bcrypt.MaxCost + 1)
	assert.Error(t, err)
}
