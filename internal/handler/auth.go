package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/readyforms/readyforms-api/internal/auth"
	"github.com/readyforms/readyforms-api/internal/service"
)

const stateCookieName = "oauth_state"

// AuthHandler serves registration, password login, GitHub login and the
// session endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister / HandleLogin → issue a JWT in the body and in a cookie
//   - HandleLogout                 → clear the JWT cookie
//   - HandleMe                     → return the signed-in user
//   - HandleGitHubLogin            → redirect the browser to GitHub
//   - HandleGitHubCallback         → verify state, exchange the code, sign in
//
// github is nil when OAuth is not configured; the routes are then not
// registered at all.
type AuthHandler struct {
	auth          *service.AuthService
	github        *auth.GitHubProvider
	tokenTTL      time.Duration
	secureCookies bool
	redirectURL   string // where the browser lands after GitHub login
	logger        *slog.Logger
}

// AuthHandlerConfig groups the cookie and redirect settings.
type AuthHandlerConfig struct {
	TokenTTL      time.Duration
	SecureCookies bool
	RedirectURL   string
}

func NewAuthHandler(
	authService *service.AuthService,
	github *auth.GitHubProvider,
	cfg AuthHandlerConfig,
	logger *slog.Logger,
) *AuthHandler {
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "/"
	}
	return &AuthHandler{
		auth:          authService,
		github:        github,
		tokenTTL:      cfg.TokenTTL,
		secureCookies: cfg.SecureCookies,
		redirectURL:   cfg.RedirectURL,
		logger:        logger,
	}
}

// HandleRegister creates an account and signs it in.
//
// HTTP: POST /api/auth/register
// REQUEST BODY: {"name": "Ann", "email": "ann@example.com", "password": "secret1"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.auth.Register(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	auth.SetTokenCookie(w, res.Token, h.tokenTTL, h.secureCookies)
	writeJSON(w, http.StatusCreated, res)
}

// HandleLogin checks email and password.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.auth.Login(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	auth.SetTokenCookie(w, res.Token, h.tokenTTL, h.secureCookies)
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout clears the JWT cookie.
//
// HTTP: POST /api/auth/logout
//
// Logout is stateless: the token stays valid until it expires, but without
// the cookie the browser no longer sends it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearTokenCookie(w, h.secureCookies)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the currently authenticated user's profile.
//
// HTTP: GET /api/auth/me
// Auth: Required. The middleware has already loaded a fresh copy of the
// user, so this handler does not hit the database again.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user := actorFrom(r)
	if user == nil {
		writeError(w, errNotSignedIn)
		return
	}
	writeVersioned(w, http.StatusOK, user.Version, user)
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a short-lived HttpOnly cookie and sent to
// GitHub; the callback only proceeds when both match.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Link or create the account (AuthService.LoginWithGitHub)
//  4. Set the JWT cookie and redirect to the web client
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, h.redirectURL+"?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	res, err := h.auth.LoginWithGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, err)
		return
	}

	auth.SetTokenCookie(w, res.Token, h.tokenTTL, h.secureCookies)
	http.Redirect(w, r, h.redirectURL, http.StatusSeeOther)
}
