package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Minute)

	token, expiresAt, err := signer.Generate("abc123.jpg")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	name, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "abc123.jpg", name)
}

func TestSignedURLRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Minute)

	token, _, err := signer.Generate("abc123.jpg")
	require.NoError(t, err)

	_, err = signer.Parse(token + "x")
	assert.Error(t, err)

	other := NewSignedURLSigner("other-secret", time.Minute)
	_, err = other.Parse(token)
	assert.Error(t, err)
}

func TestSignedURLRejectsExpired(t *testing.T) {
	signer := &SignedURLSigner{secret: []byte("test-secret"), ttl: -time.Minute}

	token, _, err := signer.Generate("abc123.jpg")
	require.NoError(t, err)

	_, err = signer.Parse(token)
	assert.Error(t, err)
}

func TestSignedURLRequiresName(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Minute)
	_, _, err := signer.Generate("")
	assert.Error(t, err)
}
