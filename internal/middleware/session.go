package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type sessionIDKey struct{}

// SessionCookie describes the cookie carrying the browser session key.
type SessionCookie struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// Session makes sure every request carries a browser session key, issuing a
// new cookie when the request has none or an invalid one.
func Session(cfg SessionCookie) func(http.Handler) http.Handler {
	if cfg.Name == "" {
		cfg.Name = "travel_session"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if cookie, err := r.Cookie(cfg.Name); err == nil {
				if _, parseErr := uuid.Parse(cookie.Value); parseErr == nil {
					id = cookie.Value
				}
			}
			if id == "" {
				id = uuid.NewString()
			}

			// Refresh on every request so the cookie lives as long as the idle TTL.
			cookie := &http.Cookie{
				Name:     cfg.Name,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				Secure:   cfg.Secure,
				SameSite: http.SameSiteLaxMode,
			}
			if cfg.TTL > 0 {
				cookie.MaxAge = int(cfg.TTL.Seconds())
			}
			http.SetCookie(w, cookie)

			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), id)))
		})
	}
}

// WithSessionID stores the browser session key in ctx.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionID returns the browser session key attached by Session.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}
