package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, expiresAt, err := signer.Generate("content-1", "batch-1/notes.pdf")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	contentID, relPath, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	assert.Equal(t, "content-1", contentID)
	assert.Equal(t, "batch-1/notes.pdf", relPath)
	assert.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("content-1", "batch-1/notes.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token+"x", false)
	assert.Error(t, err)

	other := NewSignedURLSigner("other-secret", time.Minute)
	_, _, _, err = other.Parse(token, false)
	assert.Error(t, err)
}

func TestSignedURLExpiry(t *testing.T) {
	signer := NewSignedURLSigner("secret", -time.Minute)
	// Negative TTL falls back to the default, so craft expiry manually.
	signer.ttl = -time.Minute

	token, _, err := signer.Generate("content-1", "file.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token, false)
	assert.Error(t, err)

	_, _, _, err = signer.Parse(token, true)
	assert.NoError(t, err)
}

func TestSignedURLRequiresInputs(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	_, _, err := signer.Generate("", "file.pdf")
	assert.Error(t, err)

	_, _, err = signer.Generate("content-1", "")
	assert.Error(t, err)
}
