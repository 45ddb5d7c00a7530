package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/readyforms/readyforms-api/internal/apperror"
	"github.com/readyforms/readyforms-api/internal/model"
)

// CookieName is the HttpOnly cookie carrying the access token.
const CookieName = "token"

// UserLookup loads the account behind a token subject.
// repository.UserRepository satisfies it.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// contextKey is unexported so no other package can read or shadow the
// values stored here.
type contextKey string

const userKey contextKey = "user"

// Authenticator builds the authentication middlewares. Every authenticated
// request costs one user lookup; in exchange, blocking or demoting a user
// applies to tokens already issued.
type Authenticator struct {
	tokens *TokenService
	users  UserLookup
	logger *slog.Logger
}

func NewAuthenticator(tokens *TokenService, users UserLookup, logger *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, logger: logger}
}

// RequireAuth rejects requests without a valid token with 401, and
// requests from blocked users with 403.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, status, msg := a.authenticate(r)
		if user == nil {
			writeAuthError(w, status, msg)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// OptionalAuth attaches the user when a valid token is present and treats
// the request as anonymous otherwise. Blocked users are still refused, so a
// block cannot be sidestepped on public routes that behave differently for
// signed-in users.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenFromRequest(r) == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, status, msg := a.authenticate(r)
		switch {
		case user != nil:
			r = r.WithContext(WithUser(r.Context(), user))
		case status == http.StatusForbidden || status == http.StatusInternalServerError:
			writeAuthError(w, status, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "valid authentication required")
			return
		}
		if !user.IsAdmin {
			writeAuthError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate returns the user, or nil with the status and message to
// respond with.
func (a *Authenticator) authenticate(r *http.Request) (*model.User, int, string) {
	raw := tokenFromRequest(r)
	if raw == "" {
		return nil, http.StatusUnauthorized, "valid authentication required"
	}
	userID, err := a.tokens.Validate(raw)
	if err != nil {
		return nil, http.StatusUnauthorized, "invalid or expired token"
	}

	user, err := a.users.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, http.StatusUnauthorized, "account no longer exists"
		}
		a.logger.Error("auth: loading user",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, http.StatusInternalServerError, "An internal error occurred"
	}
	if user.IsBlocked {
		return nil, http.StatusForbidden, "account is blocked"
	}
	return user, 0, ""
}

// tokenFromRequest prefers the Authorization header (API clients) and falls
// back to the cookie (browsers).
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// WithUser returns a context carrying user. Handlers' tests use it to
// skip the middleware.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, or (nil, false) for an
// anonymous request.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// SetTokenCookie stores the access token in an HttpOnly cookie. JavaScript
// cannot read it, so an XSS bug cannot exfiltrate the token.
func SetTokenCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearTokenCookie tells the browser to drop the token cookie. The JWT
// itself stays valid until it expires.
func ClearTokenCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

var errorTags = map[int]string{
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusInternalServerError: "internal_error",
}

// writeAuthError uses the same {"error","message"} body as the handlers.
func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorTags[status],
		"message": message,
	})
}
