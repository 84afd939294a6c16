package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerSignAndVerify(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("export-1", "ledger/registrations.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	file, err := signer.Verify(token, false)
	require.NoError(t, err)
	require.Equal(t, "export-1", file.ExportID)
	require.Equal(t, "ledger/registrations.csv", file.Path)
	require.WithinDuration(t, expiresAt, file.ExpiresAt, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Sign("export-1", "ledger/registrations.csv")
	require.NoError(t, err)
	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err = signer.Verify(token, false)
	require.ErrorIs(t, err, ErrTokenExpired)

	file, err := signer.Verify(token, true)
	require.NoError(t, err)
	require.Equal(t, "export-1", file.ExportID)
}

func TestSignedURLSignerTampered(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Sign("export-1", "a.csv")
	require.NoError(t, err)

	other := NewSignedURLSigner("other", time.Hour)
	_, err = other.Verify(token, false)
	require.ErrorIs(t, err, ErrTokenSignature)

	_, err = signer.Verify("not-a-token", false)
	require.ErrorIs(t, err, ErrTokenFormat)
}
