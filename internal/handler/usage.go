package handler

import (
	"encoding/json"
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

// UsageHandler accepts usage events from metering callers and feeds the
// ledger pipeline. The call-surface proxy is out of process; this is
// its reporting path.
type UsageHandler struct {
	logger    *slog.Logger
	publisher *ledger.Publisher
	credit    *ledger.CreditChecker
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(logger *slog.Logger, publisher *ledger.Publisher, credit *ledger.CreditChecker) *UsageHandler {
	return &UsageHandler{logger: logger, publisher: publisher, credit: credit}
}

// Record handles POST /v1/usage/events.
// Runs the credit gate, then enqueues the event for asynchronous
// persistence and spend accrual. Accepted events get a 202 with the
// stream ID that will become the usage log's idempotency key.
func (h *UsageHandler) Record(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	var req model.UsageEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	payload := ledger.UsageEventPayload{
		UserID:           req.UserID,
		Model:            req.Model,
		Provider:         req.Provider,
		Endpoint:         req.Endpoint,
		PromptTokens:     req.PromptTokens,
		CompletionTokens: req.CompletionTokens,
		TotalTokens:      req.TotalTokens,
		Cost:             req.Cost,
		Status:           req.Status,
		ErrorMessage:     req.ErrorMessage,
	}

	// Tenant credentials always report against themselves; only the
	// master key may attribute usage to an arbitrary user.
	if !principal.IsMaster() {
		payload.UserID = principal.UserID
		payload.APIKeyID = principal.APIKeyID
	} else if payload.UserID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_USER", "user_id is required for master key events")
		return
	}

	if payload.Status == "" {
		payload.Status = model.UsageStatusSuccess
	}
	if payload.TotalTokens == 0 {
		payload.TotalTokens = payload.PromptTokens + payload.CompletionTokens
	}
	if req.Timestamp != nil {
		payload.Timestamp = req.Timestamp.UnixMilli()
	} else {
		payload.Timestamp = time.Now().UTC().UnixMilli()
	}

	if err := ledger.ValidateUsageEventPayload(payload); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_EVENT", err.Error())
		return
	}

	if err := h.credit.CheckCredit(r.Context(), payload.UserID); err != nil {
		switch {
		case errors.Is(err, ledger.ErrAccountBlocked):
			writeError(w, http.StatusForbidden, "ACCOUNT_BLOCKED", "Account is blocked")
		case errors.Is(err, ledger.ErrBudgetExceeded):
			writeError(w, http.StatusPaymentRequired, "BUDGET_EXCEEDED", "Budget exceeded for current window")
		case errors.Is(err, repository.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
		default:
			h.logger.Error("credit check failed",
				slog.String("user_id", payload.UserID),
				slog.String("error", err.Error()),
				slog.String("request_id", middleware.GetRequestID(r.Context())),
			)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		}
		return
	}

	eventID, err := h.publisher.Publish(r.Context(), payload)
	if err != nil {
		h.logger.Error("failed to publish usage event",
			slog.String("user_id", payload.UserID),
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		writeError(w, http.StatusServiceUnavailable, "EVENT_NOT_ACCEPTED", "Usage event could not be accepted")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"event_id": eventID})
}
