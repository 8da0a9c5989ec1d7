package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/Quill/internal/model"
)

var secret = []byte("test-secret")

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("user-1", secret, time.Hour)
	require.NoError(t, err)

	id, err := UserIDFromToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)
}

func TestUserIDFromToken_Rejects(t *testing.T) {
	expired, err := GenerateToken("user-1", secret, -time.Minute)
	require.NoError(t, err)
	otherKey, err := GenerateToken("user-1", []byte("other"), time.Hour)
	require.NoError(t, err)
	noUser, err := GenerateToken("", secret, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "user-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired":   expired,
		"other key": otherKey,
		"no user":   noUser,
		"alg none":  none,
		"garbage":   "not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := UserIDFromToken(tok, secret)
			assert.ErrorIs(t, err, model.ErrUnauthorized)
		})
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, err := BearerToken(r)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	r.Header.Set("Authorization", "Basic abc")
	_, err = BearerToken(r)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	r.Header.Set("Authorization", "Bearer abc.def")
	tok, err := BearerToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)
}

func TestUserIDContext(t *testing.T) {
	_, ok := UserID(context.Background())
	assert.False(t, ok)

	id, ok := UserID(WithUserID(context.Background(), "u1"))
	assert.True(t, ok)
	assert.Equal(t, "u1", id)
}
