package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/eams/pkg/audit"
	"github.com/platinummonkey/eams/pkg/httputil"
	"github.com/platinummonkey/eams/pkg/identity"
	"github.com/platinummonkey/eams/pkg/observability"
)

// stateCookie carries the login state between /auth/login and /auth/callback
const stateCookie = "eams_oauth_state"

const stateTTL = 10 * time.Minute

// LoginProvider runs the authorization code flow against the identity provider
type LoginProvider interface {
	LoginEnabled() bool
	AuthCodeURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (*identity.LoginResult, error)
}

// AuthHandlers handles the interactive login flow
type AuthHandlers struct {
	provider LoginProvider
	audit    audit.Logger
	newState func() string
}

// NewAuthHandlers creates a new auth handlers instance. auditLogger may be nil.
func NewAuthHandlers(provider LoginProvider, auditLogger audit.Logger) *AuthHandlers {
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	return &AuthHandlers{
		provider: provider,
		audit:    auditLogger,
		newState: uuid.NewString,
	}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/login", h.login).Methods("GET")
	router.HandleFunc("/callback", h.callback).Methods("GET")
}

// login handles GET /auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	state := h.newState()
	url, err := h.provider.AuthCodeURL(state)
	if err != nil {
		httputil.WriteServiceUnavailable(w, err.Error())
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, url, http.StatusFound)
}

// callback handles GET /auth/callback
func (h *AuthHandlers) callback(w http.ResponseWriter, r *http.Request) {
	if errCode := r.URL.Query().Get("error"); errCode != "" {
		h.recordLogin(r, audit.EventStatusFailure, "", errCode)
		httputil.WriteUnauthorized(w, "login failed: "+errCode)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		httputil.WriteBadRequest(w, "invalid login state")
		return
	}

	// the state is single use
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/auth", MaxAge: -1})

	result, err := h.provider.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("authorization code exchange failed")
		h.recordLogin(r, audit.EventStatusFailure, "", "code exchange failed")
		httputil.WriteUnauthorized(w, "login failed")
		return
	}

	observability.FromContext(r.Context()).WithField("subject", result.Claims.Subject()).Info("login completed")
	h.recordLogin(r, audit.EventStatusSuccess, result.Claims.Subject(), "")
	httputil.WriteSuccess(w, result)
}

func (h *AuthHandlers) recordLogin(r *http.Request, status audit.EventStatus, subject, reason string) {
	eventType := audit.EventTypeAuthLogin
	if status != audit.EventStatusSuccess {
		eventType = audit.EventTypeAuthLoginFailed
	}
	event := audit.NewEvent(r.Context(), eventType, status, nil)
	event.UserID = subject
	event.Message = reason
	if err := h.audit.Log(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to record login event")
	}
}
