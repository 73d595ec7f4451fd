package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/gema-teamchat/internal/apperror"
)

// JWTResolver validates HS256 bearer tokens signed with a shared secret.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver constructs a resolver for the given signing secret.
func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

// Resolve validates the token and maps its claims onto an Identity.
func (r *JWTResolver) Resolve(_ context.Context, tokenString string) (Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Identity{}, apperror.Unauthenticated("token missing")
	}
	if len(r.secret) == 0 {
		return Identity{}, apperror.Unauthenticated("token verification is not configured")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, apperror.Unauthenticated("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, apperror.Unauthenticated("invalid token claims")
	}

	userID := extractUserID(claims)
	if userID == "" {
		return Identity{}, apperror.Unauthenticated("token has no subject")
	}

	return Identity{
		UserID:    userID,
		UserName:  stringClaim(claims, "name", "user_name", "username"),
		UserEmail: stringClaim(claims, "email", "user_email"),
	}, nil
}

func extractUserID(claims jwt.MapClaims) string {
	for _, key := range []string{"sub", "user_id", "id"} {
		if value, ok := claims[key]; ok {
			if normalized := normalizeUserID(value); normalized != "" {
				return normalized
			}
		}
	}
	return ""
}

func normalizeUserID(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v < 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		if v < 0 {
			return ""
		}
		return strconv.Itoa(v)
	default:
		return ""
	}
}

func stringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if value, ok := claims[key].(string); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
