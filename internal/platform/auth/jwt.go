// Package auth consumes tokens minted by the identity provider. It only
// exposes the caller's id and role; how users sign in lives elsewhere.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/example/title-ratings/internal/platform/api"
	"github.com/example/title-ratings/internal/platform/httpserver"
)

// Principal is the current-user handle handed to authorization checks.
type Principal struct {
	UserID string
	Role   string
}

type ctxKeyPrincipal struct{}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal{}).(Principal)
	return p, ok
}

// WithPrincipal injects p into ctx. Useful for testing.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal{}, p)
}

type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type JWTVerifier struct {
	Secret []byte
}

func (v JWTVerifier) Parse(tokenString string) (*Claims, error) {
	if len(v.Secret) == 0 {
		return nil, errors.New("verifier has no secret")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// RequireUser validates the Bearer token and injects the Principal.
func RequireUser(verifier JWTVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := httpserver.RequestIDFromContext(r.Context())
			scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
			if !ok || !strings.EqualFold(scheme, "bearer") {
				api.Unauthorized(w, "Bearer token required", rid)
				return
			}
			claims, err := verifier.Parse(strings.TrimSpace(token))
			if err != nil || strings.TrimSpace(claims.Subject) == "" {
				api.Unauthorized(w, "Invalid token", rid)
				return
			}
			p := Principal{UserID: claims.Subject, Role: strings.TrimSpace(claims.Role)}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
