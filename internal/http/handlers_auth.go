package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/anonify/anonify/internal/service/auth"
	"github.com/anonify/anonify/pkg/crypto"
)

const (
	oauthStateCookie = "anonify_oauth_state"
	oauthStateTTL    = 10 * time.Minute
)

func (r *Router) handleSignUp(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	pending, err := r.auth.Register(req.Context(), auth.RegisterInput{
		Username: payload.Username,
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeOK(w, http.StatusCreated, "User registered successfully. Please verify your email", map[string]any{
		"username":   pending.Username,
		"expires_at": pending.ExpiresAt,
	})
}

func (r *Router) handleVerify(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Code     string `json:"code"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	if err := r.auth.Verify(req.Context(), payload.Username, payload.Code); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeOK(w, http.StatusOK, "Account verified successfully", nil)
}

func (r *Router) handleResendCode(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	pending, err := r.auth.ResendCode(req.Context(), payload.Email)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeOK(w, http.StatusOK, "Verification code sent", map[string]any{
		"username":   pending.Username,
		"expires_at": pending.ExpiresAt,
	})
}

func (r *Router) handleUsernameAvailable(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	available, err := r.auth.UsernameAvailable(req.Context(), req.URL.Query().Get("username"))
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	message := "Username is available"
	if !available {
		message = "Username is already taken"
	}
	writeOK(w, http.StatusOK, message, map[string]any{"available": available})
}

func (r *Router) handleSignIn(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	session, err := r.auth.Authenticate(req.Context(), payload.Identifier, payload.Password)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeSession(w, session)
}

func writeSession(w http.ResponseWriter, session *auth.Session) {
	writeOK(w, http.StatusOK, "Signed in", map[string]any{
		"token":   session.Token,
		"account": session.Claims,
	})
}

func (r *Router) handleSignOut(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.mustAuth(w, req)
	if !ok {
		return
	}
	if err := r.auth.SignOut(req.Context(), info.Claims); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeOK(w, http.StatusOK, "Signed out", nil)
}

func (r *Router) handleDeleteAccount(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.mustAuth(w, req)
	if !ok {
		return
	}
	if err := r.auth.DeleteAccount(req.Context(), info.Claims.AccountID); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	if err := r.auth.SignOut(req.Context(), info.Claims); err != nil {
		r.logger.Warn("revoke session after account deletion failed", "error", err)
	}
	writeOK(w, http.StatusOK, "Account deleted successfully", nil)
}

// handleOAuth serves /auth/oauth/{provider}/start and /auth/oauth/{provider}/callback.
func (r *Router) handleOAuth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	parts := strings.Split(strings.TrimPrefix(req.URL.Path, "/auth/oauth/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		r.notFound(w)
		return
	}
	provider := parts[0]
	switch parts[1] {
	case "start":
		r.handleOAuthStart(w, req, provider)
	case "callback":
		r.handleOAuthCallback(w, req, provider)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleOAuthStart(w http.ResponseWriter, req *http.Request, provider string) {
	consentURL, state, err := r.auth.OAuthStart(provider)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	sealed, err := crypto.Seal(r.stateCookieKey, provider+":"+state)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    sealed,
		Path:     "/auth/oauth/",
		MaxAge:   int(oauthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, req, consentURL, http.StatusFound)
}

func (r *Router) handleOAuthCallback(w http.ResponseWriter, req *http.Request, provider string) {
	query := req.URL.Query()
	if !r.oauthStateMatches(req, provider, query.Get("state")) {
		writeError(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/auth/oauth/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	code := strings.TrimSpace(query.Get("code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing authorization code")
		return
	}
	session, err := r.auth.OAuthComplete(req.Context(), provider, code)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeSession(w, session)
}

func (r *Router) oauthStateMatches(req *http.Request, provider, state string) bool {
	if state == "" {
		return false
	}
	cookie, err := req.Cookie(oauthStateCookie)
	if err != nil {
		return false
	}
	plain, err := crypto.Open(r.stateCookieKey, cookie.Value)
	if err != nil {
		r.logger.Warn("oauth state cookie rejected", "error", err)
		return false
	}
	return plain == provider+":"+state
}

// mustAuth fetches the auth context installed by requireAuth.
func (r *Router) mustAuth(w http.ResponseWriter, req *http.Request) (authInfo, bool) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
	return info, ok
}
