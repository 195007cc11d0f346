package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthConfig holds JWT validation settings for admin endpoints
type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// AdminAuthMiddleware validates a Bearer token before allowing admin
// operations. Tokens are HS256-signed with the shared secret.
func AdminAuthMiddleware(cfg AuthConfig, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Secret == "" {
			InternalError(w, r, "Admin authentication is not configured")
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			Unauthorized(w, r, "Missing Authorization header")
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			Unauthorized(w, r, "Authorization header must use Bearer scheme")
			return
		}

		parserOpts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		}
		if cfg.Issuer != "" {
			parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
		}
		if cfg.Audience != "" {
			parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		}, parserOpts...)
		if err != nil || !token.Valid {
			Unauthorized(w, r, "Invalid or expired token")
			return
		}

		next(w, r)
	}
}
