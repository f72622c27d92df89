package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

type ctxKey int

const (
	ownerKey ctxKey = iota
	adminKey
)

const RoleAdmin = "admin"

// AdminClaims is the payload of an operator token: the subject names the
// operator and role must be RoleAdmin.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// OwnerMiddleware resolves the cart/order owner. Identity is issued
// elsewhere; a signed-in user arrives as X-User-ID, an anonymous visitor as
// X-Session-ID.
func OwnerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := ""
		if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
			owner = "user:" + id
		} else if id := strings.TrimSpace(r.Header.Get("X-Session-ID")); id != "" {
			owner = "session:" + id
		}
		if owner == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing X-User-ID or X-Session-ID header")
			return
		}

		ctx := context.WithValue(r.Context(), ownerKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerFromContext(ctx context.Context) string {
	if owner, ok := ctx.Value(ownerKey).(string); ok {
		return owner
	}
	return ""
}

// AdminMiddleware admits only requests carrying an HS256 bearer token signed
// with secret whose role claim is admin. An empty secret rejects everyone.
func AdminMiddleware(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" || len(key) == 0 {
				respondError(w, http.StatusForbidden, "forbidden", "admin access required")
				return
			}

			claims := &AdminClaims{}
			_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
				return key, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
			if err != nil {
				respondError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
				return
			}
			if claims.Role != RoleAdmin {
				respondError(w, http.StatusForbidden, "forbidden", "admin access required")
				return
			}

			ctx := context.WithValue(r.Context(), adminKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func adminFromContext(ctx context.Context) string {
	if admin, ok := ctx.Value(adminKey).(string); ok {
		return admin
	}
	return ""
}

// RequestLogger logs one line per request through logrus.
func RequestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.FromContext(r.Context(), log).WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("request")
		})
	}
}
