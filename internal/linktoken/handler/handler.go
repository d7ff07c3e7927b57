// Package handler exposes the link-token flows over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"linkgate/internal/jwttoken"
	"linkgate/internal/linktoken/service"
	"linkgate/internal/user"
	dErrors "linkgate/pkg/domain-errors"
	"linkgate/pkg/platform/httputil"
)

// Handler wires the auth-link endpoints to the link-token service.
type Handler struct {
	svc       *service.Service
	tokens    *jwttoken.Service
	appScheme string
	logger    *slog.Logger
}

// New constructs a handler. appScheme is the mobile deep-link scheme the
// /auth-callback mirror redirects into.
func New(svc *service.Service, tokens *jwttoken.Service, appScheme string, logger *slog.Logger) *Handler {
	return &Handler{
		svc:       svc,
		tokens:    tokens,
		appScheme: appScheme,
		logger:    logger,
	}
}

// Register mounts the auth endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/links", h.handleIssueLink)
	r.Post("/auth/exchange", h.handleExchange)
	r.Get("/auth-callback", h.handleCallback)
	r.Post("/auth/password", h.handleUpdatePassword)
	r.Get("/auth/me", h.handleMe)
}

type issueLinkRequest struct {
	Email string `json:"email"`
	Type  string `json:"type"`
}

type exchangeRequest struct {
	Token string `json:"token"`
}

type passwordRequest struct {
	NewPassword string `json:"new_password"`
}

type userPayload struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	EmailVerified      bool   `json:"email_verified"`
	LegalAccepted      bool   `json:"legal_accepted"`
	Banned             bool   `json:"banned"`
	OnboardingComplete *bool  `json:"onboarding_complete"`
}

type sessionResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int         `json:"expires_in"`
	Device      string      `json:"device"`
	User        userPayload `json:"user"`
}

// handleIssueLink handles POST /auth/links. It always returns 202 for
// well-formed requests so the response does not reveal whether the address
// has an account.
func (h *Handler) handleIssueLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.DecodeJSON[issueLinkRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Email == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "email is required"))
		return
	}

	if err := h.svc.IssueLink(ctx, req.Email, req.Type); err != nil {
		h.logger.ErrorContext(ctx, "link issuance failed", "intent", req.Type, "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleExchange handles POST /auth/exchange.
func (h *Handler) handleExchange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.DecodeJSON[exchangeRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "token is required"))
		return
	}

	session, err := h.svc.Exchange(ctx, req.Token, r.UserAgent())
	if err != nil {
		h.logger.WarnContext(ctx, "exchange rejected", "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, sessionResponse{
		AccessToken: session.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   session.ExpiresIn,
		Device:      session.Device,
		User:        toUserPayload(session.User),
	})
}

// handleCallback handles GET /auth-callback, the universal-link landing URL
// embedded in emails. It forwards the untouched type and token into the app's
// custom scheme; the token is never redeemed here.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	linkType := r.URL.Query().Get("type")
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing token"))
		return
	}

	target := h.appScheme + "://auth-callback?type=" + url.QueryEscape(linkType) +
		"&token=" + url.QueryEscape(token)
	http.Redirect(w, r, target, http.StatusFound)
}

// handleUpdatePassword handles POST /auth/password.
func (h *Handler) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := h.authenticate(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, err := httputil.DecodeJSON[passwordRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.svc.UpdatePassword(ctx, userID, req.NewPassword); err != nil {
		h.logger.WarnContext(ctx, "password update rejected", "user_id", userID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleMe handles GET /auth/me.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := h.authenticate(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	u, err := h.svc.CurrentUser(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toUserPayload(u))
}

// authenticate validates the bearer token and returns the subject.
func (h *Handler) authenticate(r *http.Request) (uuid.UUID, error) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token")
	}

	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		return uuid.Nil, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return userID, nil
}

func toUserPayload(u *user.User) userPayload {
	onboarded := u.OnboardingComplete()
	return userPayload{
		ID:                 u.ID.String(),
		Email:              u.Email,
		EmailVerified:      u.EmailVerified(),
		LegalAccepted:      u.LegalAccepted(),
		Banned:             u.Banned,
		OnboardingComplete: &onboarded,
	}
}
