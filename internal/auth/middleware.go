package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Authenticator resolves the caller from either "Authorization: Token <key>"
// or HTTP Basic credentials.
type Authenticator struct {
	users Repository
}

func NewAuthenticator(users Repository) *Authenticator {
	return &Authenticator{users: users}
}

// Middleware rejects the request with 401 unless a principal can be resolved.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.Authenticate(r)
		if err != nil {
			if !errors.Is(err, ErrUnauthenticated) {
				log.Error().Err(err).Msg("auth: failed to authenticate request")
			}
			w.Header().Set("WWW-Authenticate", `Token, Basic realm="api"`)
			writeError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

func (a *Authenticator) Authenticate(r *http.Request) (Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Principal{}, ErrUnauthenticated
	}

	if token, ok := strings.CutPrefix(header, "Token "); ok {
		return a.byToken(r.Context(), strings.TrimSpace(token))
	}

	if username, password, ok := r.BasicAuth(); ok {
		return a.byPassword(r.Context(), username, password)
	}

	return Principal{}, ErrUnauthenticated
}

func (a *Authenticator) byToken(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}

	u, err := a.users.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}

	return Principal{UserID: u.ID, IsStaff: u.IsStaff}, nil
}

func (a *Authenticator) byPassword(ctx context.Context, username, password string) (Principal, error) {
	u, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		log.Warn().Str("username", username).Msg("auth: password mismatch")
		return Principal{}, ErrUnauthenticated
	}

	return Principal{UserID: u.ID, IsStaff: u.IsStaff}, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		log.Error().Err(err).Msg("auth: failed to write error response")
	}
}
