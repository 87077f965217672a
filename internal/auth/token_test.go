package auth

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", 15)
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return issued }

	token, expires, err := tm.GenerateToken("user-1", domain.RoleOfficer, "entity-1")
	require.NoError(t, err)
	assert.Equal(t, issued.Add(15*time.Minute), expires)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, domain.RoleOfficer, claims.Role)
	assert.Equal(t, "entity-1", claims.EntityID)
}

func TestParseTokenRejects(t *testing.T) {
	tm := NewTokenManager("test-secret", 15)
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return issued }

	valid, _, err := tm.GenerateToken("user-1", domain.RoleCitizen, "")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		late := NewTokenManager("test-secret", 15)
		late.now = func() time.Time { return issued.Add(time.Hour) }
		_, err := late.ParseToken(valid)
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager("other-secret", 15)
		other.now = tm.now
		_, err := other.ParseToken(valid)
		assert.Error(t, err)
	})

	t.Run("unsigned", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = tm.ParseToken(unsigned)
		assert.Error(t, err)
	})

	t.Run("missing subject", func(t *testing.T) {
		anonymous, _, err := tm.GenerateToken("", domain.RoleCitizen, "")
		require.NoError(t, err)
		_, err = tm.ParseToken(anonymous)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tm.ParseToken("not-a-jwt")
		assert.Error(t, err)
	})
}

func TestNewTokenManagerDefaultsTTL(t *testing.T) {
	assert.Equal(t, time.Hour, NewTokenManager("s", 0).ttl)
}
