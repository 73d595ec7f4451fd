package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-teamchat/internal/apperror"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTResolverMapsClaims(t *testing.T) {
	resolver := NewJWTResolver("secret")
	token := signToken(t, "secret", jwt.MapClaims{
		"sub":   "user-42",
		"name":  "Ada",
		"email": "ada@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	identity, err := resolver.Resolve(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, Identity{UserID: "user-42", UserName: "Ada", UserEmail: "ada@example.com"}, identity)
}

func TestJWTResolverAcceptsNumericUserID(t *testing.T) {
	resolver := NewJWTResolver("secret")
	token := signToken(t, "secret", jwt.MapClaims{"user_id": 7})

	identity, err := resolver.Resolve(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "7", identity.UserID)
}

func TestJWTResolverRejects(t *testing.T) {
	resolver := NewJWTResolver("secret")

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"wrong secret": signToken(t, "other", jwt.MapClaims{"sub": "u1"}),
		"expired":      signToken(t, "secret", jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Minute).Unix()}),
		"no subject":   signToken(t, "secret", jwt.MapClaims{"name": "nobody"}),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := resolver.Resolve(context.Background(), token)
			require.ErrorIs(t, err, apperror.ErrAuthenticationFailed)
		})
	}
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", BearerToken("Bearer abc"))
	require.Equal(t, "abc", BearerToken("bearer   abc "))
	require.Equal(t, "", BearerToken("Basic abc"))
	require.Equal(t, "", BearerToken(""))
}

func TestIdentityContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "u1"})
	identity, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "u1", identity.UserID)
}
