package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"

	"storefront/internal/access"
)

type contextKey string

const (
	userContextKey    contextKey = "user"
	cartKeyContextKey contextKey = "cart_key"
)

const sessionName = "storefront-session"

type Claims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

func NewSessionStore(secret string) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// AuthMiddleware validates a Bearer JWT when present. Requests without a
// token continue as guests; requests with a bad token are rejected.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			tokenStr := strings.TrimPrefix(header, "Bearer ")
			if tokenStr == header {
				respondError(w, http.StatusUnauthorized, "unauthorized", "malformed authorization header")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid || claims.Subject == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			user := access.User{ID: claims.Subject, Admin: claims.Admin}
			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CartKeyMiddleware resolves the cart key: authenticated carts are keyed by
// user id, guest carts by a generated id held in a session cookie.
func CartKeyMiddleware(store *sessions.CookieStore, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := userFromContext(r.Context()); user.ID != "" {
				ctx := context.WithValue(r.Context(), cartKeyContextKey, "user:"+user.ID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			session, err := store.Get(r, sessionName)
			if err != nil {
				// Undecodable cookie: Get already returned a fresh session.
				log.Warn().Err(err).Msg("resetting undecodable session cookie")
			}

			cartID, ok := session.Values["cart_id"].(string)
			if !ok || cartID == "" {
				cartID = uuid.NewString()
				session.Values["cart_id"] = cartID
				if err := session.Save(r, w); err != nil {
					log.Error().Err(err).Msg("failed to save session cookie")
				}
			}

			ctx := context.WithValue(r.Context(), cartKeyContextKey, "guest:"+cartID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userFromContext(ctx context.Context) access.User {
	if user, ok := ctx.Value(userContextKey).(access.User); ok {
		return user
	}
	return access.User{}
}

func cartKeyFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(cartKeyContextKey).(string); ok {
		return key
	}
	return ""
}
