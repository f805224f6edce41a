package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jamesprial/biteme-gateway/internal/interfaces"
)

const bearerScheme = "bearer"

// Claims is the payload the identity service signs.
type Claims struct {
	UserID string          `json:"userId"`
	Role   interfaces.Role `json:"role"`
	jwt.RegisteredClaims
}

// ExtractBearerToken returns the token from an Authorization header value.
func ExtractBearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", ErrNoTokenProvided
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoTokenProvided
	}
	return token, nil
}

// IssueToken signs an HS256 token for id. Used by tests and local tooling;
// production tokens come from the identity service.
func IssueToken(secret string, id interfaces.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: id.SubjectID,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

type identityKey struct{}

// WithIdentity attaches a verified identity to ctx.
func WithIdentity(ctx context.Context, id *interfaces.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (*interfaces.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*interfaces.Identity)
	return id, ok && id != nil
}
