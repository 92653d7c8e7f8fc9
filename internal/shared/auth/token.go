package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"delivery-chat/internal/domain/chat"
	"delivery-chat/internal/ports"
)

// Claims defines the data stored inside the JWT the storefront issues at login.
type Claims struct {
	Identity string `json:"identity"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenAuthenticator validates HS256 tokens against a shared secret.
type TokenAuthenticator struct {
	secret []byte
}

var _ ports.Authenticator = (*TokenAuthenticator)(nil)

// NewTokenAuthenticator creates an authenticator with the configured secret.
func NewTokenAuthenticator(secret string) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret)}
}

// Authenticate parses and validates the token, then maps it to an identity.
func (a *TokenAuthenticator) Authenticate(_ context.Context, tokenString string) (ports.Identity, error) {
	if tokenString == "" {
		return ports.Identity{}, fmt.Errorf("%w: missing token", chat.ErrUnauthenticated)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return ports.Identity{}, fmt.Errorf("%w: %v", chat.ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return ports.Identity{}, fmt.Errorf("%w: invalid claims", chat.ErrUnauthenticated)
	}

	role, ok := chat.ParseRole(claims.Role)
	if !ok {
		return ports.Identity{}, fmt.Errorf("%w: unknown role %q", chat.ErrUnauthenticated, claims.Role)
	}
	if claims.Identity == "" {
		return ports.Identity{}, fmt.Errorf("%w: empty identity", chat.ErrUnauthenticated)
	}

	return ports.Identity{ID: claims.Identity, Role: role}, nil
}

// Issue creates a signed token for the given identity. The storefront normally
// issues tokens itself; this is used by tooling and tests.
func (a *TokenAuthenticator) Issue(identity string, role chat.Role, ttl time.Duration) (string, error) {
	claims := &Claims{
		Identity: identity,
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "delivery-chat",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
