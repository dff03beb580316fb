package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/anyllm/gateway/internal/auth"
	"github.com/anyllm/gateway/internal/ledger"
	"github.com/anyllm/gateway/internal/middleware"
	"github.com/anyllm/gateway/internal/model"
	"github.com/anyllm/gateway/internal/repository"
)

// Usage aggregation windows exposed on profile and usage endpoints.
var usageWindows = []struct {
	name string
	span time.Duration
}{
	{"last_24h", 24 * time.Hour},
	{"last_7d", 7 * 24 * time.Hour},
	{"last_30d", 30 * 24 * time.Hour},
}

const recentUsageLimit = 50

// ProfileHandler serves profile, usage and credit views.
type ProfileHandler struct {
	logger *slog.Logger
	repo   *repository.Repository
	credit *ledger.CreditChecker
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(logger *slog.Logger, repo *repository.Repository, credit *ledger.CreditChecker) *ProfileHandler {
	return &ProfileHandler{logger: logger, repo: repo, credit: credit}
}

// Profile handles GET /v1/profile.
// Tenant credentials see their own profile; the master key must name a
// target via ?user=.
func (h *ProfileHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveTarget(w, r, auth.PolicyProfile)
	if !ok {
		return
	}

	user, err := h.repo.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
			return
		}
		h.internalError(w, r, "failed to load user", err)
		return
	}

	profile := model.ProfileInfo{
		UserID:   user.ID,
		Alias:    user.Alias,
		Blocked:  user.Blocked,
		Metadata: user.Metadata,
	}

	// Identity is optional: accounts bootstrapped by admin tooling have
	// no social identity row.
	identity, err := h.repo.GetIdentityByUserID(r.Context(), user.ID)
	switch {
	case err == nil:
		profile.Provider = identity.Provider
		profile.ProviderUserID = identity.ProviderUserID
		profile.Name = identity.Name
		profile.Email = identity.Email
		profile.AvatarURL = identity.AvatarURL
		profile.LastLoginAt = identity.LastLoginAt
	case !errors.Is(err, repository.ErrIdentityNotFound):
		h.internalError(w, r, "failed to load identity", err)
		return
	}

	response := model.ProfileResponse{Profile: profile}

	if budget, err := h.repo.GetBudgetByID(r.Context(), user.BudgetID); err == nil {
		info := user.BudgetInfo(budget)
		response.Budget = &info
	} else if !errors.Is(err, repository.ErrBudgetNotFound) {
		h.internalError(w, r, "failed to load budget", err)
		return
	}

	windows, recent, err := h.collectUsage(r, user.ID)
	if err != nil {
		h.internalError(w, r, "failed to aggregate usage", err)
		return
	}
	response.Usage = windows
	response.Recent = recent

	writeJSON(w, http.StatusOK, response)
}

// Usage handles GET /v1/usage.
func (h *ProfileHandler) Usage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveTarget(w, r, auth.PolicyProfile)
	if !ok {
		return
	}

	windows, recent, err := h.collectUsage(r, userID)
	if err != nil {
		h.internalError(w, r, "failed to aggregate usage", err)
		return
	}

	writeJSON(w, http.StatusOK, model.UsageResponse{
		UserID:      userID,
		Windows:     windows,
		RecentUsage: recent,
		GeneratedAt: time.Now().UTC(),
	})
}

// Credit handles GET /v1/credit. It answers whether the target user may
// spend right now, running the same check the call path consumes: block
// state, lazy window reset, then the budget cap.
func (h *ProfileHandler) Credit(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveTarget(w, r, auth.PolicyProfile)
	if !ok {
		return
	}

	err := h.credit.CheckCredit(r.Context(), userID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "allowed": true})
	case errors.Is(err, ledger.ErrAccountBlocked):
		writeError(w, http.StatusForbidden, "ACCOUNT_BLOCKED", "Account is blocked")
	case errors.Is(err, ledger.ErrBudgetExceeded):
		writeError(w, http.StatusPaymentRequired, "BUDGET_EXCEEDED", "Budget exceeded for current window")
	case errors.Is(err, repository.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	default:
		h.internalError(w, r, "credit check failed", err)
	}
}

// collectUsage builds the fixed aggregation windows plus recent entries.
func (h *ProfileHandler) collectUsage(r *http.Request, userID string) (map[string]model.UsageWindow, []model.UsageLog, error) {
	now := time.Now().UTC()
	windows := make(map[string]model.UsageWindow, len(usageWindows))
	for _, w := range usageWindows {
		agg, err := h.repo.AggregateUsage(r.Context(), userID, now.Add(-w.span))
		if err != nil {
			return nil, nil, err
		}
		windows[w.name] = *agg
	}

	recent, err := h.repo.RecentUsage(r.Context(), userID, recentUsageLimit)
	if err != nil {
		return nil, nil, err
	}
	return windows, recent, nil
}

// resolveTarget authorizes the request against the policy and returns
// the user ID it is scoped to.
func (h *ProfileHandler) resolveTarget(w http.ResponseWriter, r *http.Request, policy auth.Policy) (string, bool) {
	principal := auth.PrincipalFromContext(r.Context())
	target := r.URL.Query().Get("user")

	userID, err := policy.EffectiveUser(principal, target)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTargetUserRequired):
			writeError(w, http.StatusBadRequest, "MISSING_USER", "Master key requests must specify ?user=")
		default:
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Credential not allowed for this endpoint")
		}
		return "", false
	}

	if target != "" {
		if err := middleware.ValidateUserIDParam(target); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_USER", "User ID parameter is invalid")
			return "", false
		}
	}

	return userID, true
}

func (h *ProfileHandler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}
