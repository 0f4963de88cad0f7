package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	subject := Subject{AccountID: "acc-1", Username: "alice", Verified: true, AcceptingMessages: true}
	token, claims, err := GenerateToken(subject, "tok-1", "secret", time.Now(), time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, "tok-1", claims.ID)

	parsed, err := Parse(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", parsed.AccountID)
	assert.Equal(t, "alice", parsed.Username)
	assert.True(t, parsed.Verified)
	assert.True(t, parsed.AcceptingMessages)
	assert.Equal(t, "tok-1", parsed.ID)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, _, err := GenerateToken(Subject{AccountID: "acc-1"}, "tok-1", "secret", time.Now(), time.Hour)
	require.NoError(t, err)

	_, err = Parse(token, "other")
	assert.ErrorIs(t, err, jwtlib.ErrTokenSignatureInvalid)
}

func TestParseRejectsExpired(t *testing.T) {
	token, _, err := GenerateToken(Subject{AccountID: "acc-1"}, "tok-1", "secret", time.Now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)

	_, err = Parse(token, "secret")
	assert.ErrorIs(t, err, jwtlib.ErrTokenExpired)
}
