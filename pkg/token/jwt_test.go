package token

import (
	"testing"
	"time"

	"gemini-chat-go/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", "https://id.example.com/", 1)
	id := model.Identity{Subject: "auth0|123", Name: "Ada", Email: "ada@example.com"}

	tok, err := m.GenerateToken(id)
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Identity())
	assert.InDelta(t, time.Hour.Seconds(), claims.Remaining().Seconds(), 5)
}

func TestVerifyRejects(t *testing.T) {
	m := NewJWTManager("secret", "issuer-a", 1)
	good, err := m.GenerateToken(model.Identity{Subject: "u1"})
	require.NoError(t, err)

	otherSecret, err := NewJWTManager("other", "issuer-a", 1).GenerateToken(model.Identity{Subject: "u1"})
	require.NoError(t, err)
	otherIssuer, err := NewJWTManager("secret", "issuer-b", 1).GenerateToken(model.Identity{Subject: "u1"})
	require.NoError(t, err)
	noSubject, err := m.GenerateToken(model.Identity{})
	require.NoError(t, err)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "issuer-a",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = m.VerifyToken(good)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": otherSecret,
		"wrong issuer": otherIssuer,
		"no subject":   noSubject,
		"expired":      expired,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.VerifyToken(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
