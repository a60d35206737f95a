package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJWTer() *JWTer {
	return &JWTer{Secret: []byte("test-secret"), Issuer: "photory", TTL: time.Hour}
}

func TestJWTer_IssueAndParse(t *testing.T) {
	j := newJWTer()
	tok, err := j.Issue("u-1", "admin")
	require.NoError(t, err)

	c, err := j.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", c.UID)
	assert.Equal(t, "admin", c.Role)
}

func TestJWTer_RejectsForeignSecretAndIssuer(t *testing.T) {
	tok, err := newJWTer().Issue("u-1", "user")
	require.NoError(t, err)

	other := newJWTer()
	other.Secret = []byte("other")
	_, err = other.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other = newJWTer()
	other.Issuer = "someone-else"
	_, err = other.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTer_RejectsExpired(t *testing.T) {
	j := newJWTer()
	j.TTL = -2 * time.Minute // 超过 60s leeway
	tok, err := j.Issue("u-1", "user")
	require.NoError(t, err)

	_, err = j.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTer_RejectsOtherAlg(t *testing.T) {
	j := newJWTer()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		UID:              "u-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: j.Issuer},
	}).SignedString(j.Secret)
	require.NoError(t, err)

	_, err = j.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTer_IssueRequiresUID(t *testing.T) {
	_, err := newJWTer().Issue("", "user")
	assert.Error(t, err)
}
