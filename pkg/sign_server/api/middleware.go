package api

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// BearerAuth compares the request bearer token against a server-held bcrypt
// hash. An empty hash disables authentication.
type BearerAuth struct {
	tokenHash string
}

func NewBearerAuth(tokenHash string) *BearerAuth {
	return &BearerAuth{tokenHash: tokenHash}
}

func (a *BearerAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.tokenHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := getBearerToken(r)
		if token == "" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("missing bearer token"))
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(a.tokenHash), []byte(token)); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("invalid bearer token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.Split(h, "Bearer")
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RateLimit applies a token-bucket limit to the wrapped handler.
func RateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte("rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
