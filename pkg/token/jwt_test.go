package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", 1, 1)

	access, err := m.GenerateToken(42, "farmer@example.com", "user")
	require.NoError(t, err)

	claims, err := m.VerifyToken(access)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "farmer@example.com", claims.Email)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, PurposeAccess, claims.Purpose)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTManager_RejectsForeignSignature(t *testing.T) {
	issued, err := NewJWTManager("one", 1, 1).GenerateToken(1, "a@b.c", "user")
	require.NoError(t, err)

	_, err = NewJWTManager("two", 1, 1).VerifyToken(issued)
	assert.Error(t, err)
}

func TestJWTManager_RejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", 0, 0)
	issued, err := m.GenerateToken(1, "a@b.c", "user")
	require.NoError(t, err)

	_, err = m.VerifyToken(issued)
	assert.Error(t, err)
}

func TestJWTManager_VerifyPurpose(t *testing.T) {
	m := NewJWTManager("secret", 1, 1)
	refresh, err := m.GenerateRefreshToken(1, "a@b.c", "user")
	require.NoError(t, err)
	ws, err := m.GenerateWebsocketToken(1, "a@b.c", "user")
	require.NoError(t, err)

	_, err = m.VerifyPurpose(refresh, PurposeAccess)
	assert.ErrorIs(t, err, ErrWrongPurpose)

	claims, err := m.VerifyPurpose(ws, PurposeWebsocket)
	require.NoError(t, err)
	assert.Equal(t, PurposeWebsocket, claims.Purpose)
}
