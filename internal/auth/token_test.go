package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyToken(t *testing.T) {
	encoded, err := HashToken("kehai-admin-secret")
	require.NoError(t, err)
	require.Contains(t, encoded, "$")

	ok, err := VerifyToken("kehai-admin-secret", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyToken("wrong", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashIsSalted(t *testing.T) {
	a, err := HashToken("same")
	require.NoError(t, err)
	b, err := HashToken("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyTokenMalformedHash(t *testing.T) {
	_, err := VerifyToken("token", "not-a-valid-hash")
	assert.Error(t, err)

	_, err = VerifyToken("token", "!!!$???")
	assert.Error(t, err)
}

func TestVerifier(t *testing.T) {
	encoded, err := HashToken("secret")
	require.NoError(t, err)

	v := NewVerifier(encoded)
	assert.False(t, v.Open())
	assert.True(t, v.Authorize("secret"))
	assert.False(t, v.Authorize("nope"))
	assert.False(t, v.Authorize(""))
}

func TestVerifierOpenMode(t *testing.T) {
	v := NewVerifier("")
	assert.True(t, v.Open())
	assert.True(t, v.Authorize(""))
	assert.True(t, v.Authorize("anything"))
}
