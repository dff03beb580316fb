package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/anyllm/gateway/internal/middleware"
	"github.com/anyllm/gateway/internal/model"
	"github.com/anyllm/gateway/internal/service"
)

// AuthHandler handles the session lifecycle endpoints.
type AuthHandler struct {
	logger      *slog.Logger
	provisioner *service.Provisioner
	sessions    *service.SessionManager
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(logger *slog.Logger, provisioner *service.Provisioner, sessions *service.SessionManager) *AuthHandler {
	return &AuthHandler{
		logger:      logger,
		provisioner: provisioner,
		sessions:    sessions,
	}
}

// Login handles POST /v1/auth/login.
// Verifies the provider token, provisions the account on first login,
// and opens a new session family.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := middleware.ValidateProvider(req.Provider); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PROVIDER", "Unknown or malformed provider")
		return
	}
	if req.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "MISSING_TOKEN", "Provider access token is required")
		return
	}
	if err := middleware.ValidateProviderToken(req.AccessToken); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_TOKEN", "Provider access token too long")
		return
	}

	// Session metadata defaults to what the transport saw.
	if req.IP == "" {
		req.IP = r.RemoteAddr
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}

	result, err := h.provisioner.EnsureUser(r.Context(), &req)
	if err != nil {
		h.handleAuthError(w, r, err)
		return
	}

	pair, session, err := h.sessions.Issue(r.Context(), result.User.ID, result.Key.ID, req.SessionMetadata())
	if err != nil {
		h.logger.Error("failed to issue session",
			slog.String("user_id", result.User.ID),
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create session")
		return
	}

	h.logger.Info("login successful",
		slog.String("user_id", result.User.ID),
		slog.String("session_id", session.ID),
		slog.String("provider", req.Provider),
		slog.Bool("is_new_user", result.IsNew),
	)

	response := model.LoginResponse{
		IsNewUser: result.IsNew,
		User:      result.User.ToResponse(),
		Budget:    result.User.BudgetInfo(result.Budget),
		TokenPair: *pair,
	}
	// Key plaintext appears exactly once, on the response that minted it.
	if result.NewKey != nil {
		response.APIKey = &model.APIKeyCreateResponse{
			ID:        result.Key.ID,
			Key:       result.NewKey.Plaintext,
			Name:      result.Key.Name,
			KeyPrefix: result.Key.KeyPrefix,
			ExpiresAt: result.Key.ExpiresAt,
			CreatedAt: result.Key.CreatedAt,
		}
	}

	status := http.StatusOK
	if result.IsNew {
		status = http.StatusCreated
	}
	writeJSON(w, status, response)
}

// Refresh handles POST /v1/auth/refresh.
// Rotates the presented refresh token for a new pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req model.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "MISSING_TOKEN", "Refresh token is required")
		return
	}

	pair, session, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.handleAuthError(w, r, err)
		return
	}

	h.logger.Info("session refreshed",
		slog.String("user_id", session.UserID),
		slog.String("session_id", session.ID),
	)

	writeJSON(w, http.StatusOK, pair)
}

// Logout handles POST /v1/auth/logout.
// Revokes the session owning the presented refresh token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req model.LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "MISSING_TOKEN", "Refresh token is required")
		return
	}

	if err := h.sessions.Revoke(r.Context(), req.RefreshToken); err != nil {
		h.handleAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleAuthError maps auth service errors to HTTP responses.
func (h *AuthHandler) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, "INVALID_PROVIDER", "Unknown identity provider")
	case errors.Is(err, service.ErrProfileVerification):
		writeError(w, http.StatusUnauthorized, "PROFILE_VERIFICATION_FAILED", "Provider token could not be verified")
	case errors.Is(err, service.ErrUserBlocked):
		writeError(w, http.StatusForbidden, "USER_BLOCKED", "Account is blocked")
	case errors.Is(err, service.ErrRefreshTokenInvalid):
		writeError(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token is invalid")
	case errors.Is(err, service.ErrRefreshTokenExpired):
		writeError(w, http.StatusUnauthorized, "REFRESH_TOKEN_EXPIRED", "Refresh token has expired")
	case errors.Is(err, service.ErrRefreshReuseDetected):
		writeError(w, http.StatusUnauthorized, "REFRESH_REUSE_DETECTED", "Refresh token reuse detected; all sessions revoked")
	default:
		h.logger.Error("auth request failed",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
