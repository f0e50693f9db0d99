package httpmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/vinocount/session-service/internal/security"
)

type ctxKey string

const ctxKeyClaims ctxKey = "claims"

// AuthMiddleware: Bearer-токен внешнего identity provider; в контекст кладутся
// разобранные клеймы (subject, имя, роль).
func AuthMiddleware(verifier *security.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || len(auth) <= 7 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"missing bearer token"}`))
				return
			}

			claims, err := verifier.Parse(strings.TrimSpace(auth[7:]))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid token"}`))
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromCtx(ctx context.Context) *security.AccessClaims {
	if v := ctx.Value(ctxKeyClaims); v != nil {
		if c, ok := v.(*security.AccessClaims); ok {
			return c
		}
	}
	return nil
}
