package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/segyhp/loan-engine/internal/domain"
	"github.com/segyhp/loan-engine/pkg/response"
)

var ErrTokenNotExist = errors.New("token not exist")

type authContextKey struct{}

// UserClaims carries the caller identity. The subject is the user id.
type UserClaims struct {
	jwt.RegisteredClaims
	Role domain.Role `json:"role"`
}

func parseToken(r *http.Request, key []byte) (*UserClaims, error) {
	header := r.Header.Get("Authorization")
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenStr == "" {
		return nil, ErrTokenNotExist
	}

	claims := new(UserClaims)
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parsing jwt token: %w", err)
	}

	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	if claims.Role != domain.RoleUser && claims.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}
	return claims, nil
}

// AuthMiddleware validates the bearer token and stores the caller's
// AuthContext in the request context.
func AuthMiddleware(key []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := parseToken(r, key)
			if err != nil {
				response.Unauthorized(w, "Unauthorized")
				return
			}

			auth := domain.AuthContext{UserID: claims.Subject, Role: claims.Role}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), auth)))
		})
	}
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := AuthFrom(r.Context())
			if !ok {
				response.Unauthorized(w, "Unauthorized")
				return
			}
			for _, role := range roles {
				if auth.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Forbidden(w, "insufficient role")
		})
	}
}

func WithAuth(ctx context.Context, auth domain.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

func AuthFrom(ctx context.Context) (domain.AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(domain.AuthContext)
	return auth, ok
}
