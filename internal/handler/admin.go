package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/anyllm/gateway/internal/middleware"
	"github.com/anyllm/gateway/internal/model"
	"github.com/anyllm/gateway/internal/notifier"
	"github.com/anyllm/gateway/internal/repository"
)

// List pagination bounds.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// AdminHandler serves master-key-only administrative endpoints.
type AdminHandler struct {
	logger   *slog.Logger
	repo     *repository.Repository
	notifier *notifier.Notifier
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(logger *slog.Logger, repo *repository.Repository, n *notifier.Notifier) *AdminHandler {
	return &AdminHandler{logger: logger, repo: repo, notifier: n}
}

// ListUsers handles GET /v1/admin/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	users, err := h.repo.ListUsers(r.Context(), limit, offset)
	if err != nil {
		h.internalError(w, r, "failed to list users", err)
		return
	}

	responses := make([]model.UserResponse, 0, len(users))
	for _, user := range users {
		responses = append(responses, user.ToResponse())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users":  responses,
		"limit":  limit,
		"offset": offset,
	})
}

// BlockUser handles POST /v1/admin/users/{id}/block.
// Blocking also revokes every live session so access tokens stop
// working at their next liveness check.
func (h *AdminHandler) BlockUser(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

// UnblockUser handles POST /v1/admin/users/{id}/unblock.
func (h *AdminHandler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *AdminHandler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	userID := chi.URLParam(r, "id")
	if err := middleware.ValidateUserIDParam(userID); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_USER", "User ID parameter is invalid")
		return
	}

	if err := h.repo.SetUserBlocked(r.Context(), userID, blocked); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
			return
		}
		h.internalError(w, r, "failed to update block state", err)
		return
	}

	var revoked int64
	if blocked {
		var err error
		revoked, err = h.repo.RevokeUserSessions(r.Context(), userID, time.Now().UTC())
		if err != nil {
			// Block already landed; report it but keep going.
			h.logger.Error("failed to revoke sessions for blocked user",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}

		h.notifier.Notify(r.Context(), notifier.Event{
			Type:   notifier.EventUserBlocked,
			UserID: userID,
			Detail: map[string]any{"sessions_revoked": revoked},
		})
	}

	h.logger.Info("user block state changed",
		slog.String("user_id", userID),
		slog.Bool("blocked", blocked),
		slog.Int64("sessions_revoked", revoked),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":          userID,
		"blocked":          blocked,
		"sessions_revoked": revoked,
	})
}

// UpdateBudget handles PATCH /v1/admin/budgets/{id}.
func (h *AdminHandler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "id")
	if err := middleware.ValidateUserIDParam(budgetID); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BUDGET_ID", "Budget ID parameter is invalid")
		return
	}

	var req model.BudgetUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if req.MaxBudget == nil && req.DurationSec == nil {
		writeError(w, http.StatusBadRequest, "EMPTY_UPDATE", "At least one budget field must be set")
		return
	}
	if req.MaxBudget != nil && *req.MaxBudget < 0 {
		writeError(w, http.StatusBadRequest, "INVALID_BUDGET", "max_budget must be non-negative")
		return
	}
	if req.DurationSec != nil && *req.DurationSec <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_BUDGET", "budget_duration_sec must be positive")
		return
	}

	if err := h.repo.UpdateBudget(r.Context(), budgetID, req.MaxBudget, req.DurationSec); err != nil {
		if errors.Is(err, repository.ErrBudgetNotFound) {
			writeError(w, http.StatusNotFound, "BUDGET_NOT_FOUND", "Budget not found")
			return
		}
		h.internalError(w, r, "failed to update budget", err)
		return
	}

	budget, err := h.repo.GetBudgetByID(r.Context(), budgetID)
	if err != nil {
		h.internalError(w, r, "failed to reload budget", err)
		return
	}

	h.logger.Info("budget updated", slog.String("budget_id", budget.ID))

	writeJSON(w, http.StatusOK, budget)
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func (h *AdminHandler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}
