package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/anyllm/gateway/internal/auth"
	"github.com/anyllm/gateway/internal/cache"
	"github.com/anyllm/gateway/internal/middleware"
	"github.com/anyllm/gateway/internal/model"
	"github.com/anyllm/gateway/internal/repository"
)

// APIKeyHandler manages a caller's own API keys. Routes using it run
// behind the self policy, so the principal is always user-scoped.
type APIKeyHandler struct {
	logger *slog.Logger
	repo   *repository.Repository
	cache  *cache.Cache
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(logger *slog.Logger, repo *repository.Repository, c *cache.Cache) *APIKeyHandler {
	return &APIKeyHandler{logger: logger, repo: repo, cache: c}
}

// List handles GET /v1/profile/keys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	keys, err := h.repo.ListAPIKeysByUserID(r.Context(), principal.UserID)
	if err != nil {
		h.internalError(w, r, "failed to list API keys", err)
		return
	}

	responses := make([]model.APIKeyResponse, 0, len(keys))
	for _, key := range keys {
		responses = append(responses, key.ToResponse())
	}

	writeJSON(w, http.StatusOK, map[string]any{"keys": responses})
}

// Create handles POST /v1/profile/keys. The plaintext key appears only
// in this response.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	var req model.APIKeyCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if err := middleware.ValidateKeyName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_KEY_NAME", "Key name too long")
		return
	}

	generated, err := auth.GenerateAPIKey(auth.EnvLive)
	if err != nil {
		h.internalError(w, r, "failed to generate API key", err)
		return
	}

	key := &model.APIKey{
		ID:        ulid.Make().String(),
		UserID:    principal.UserID,
		KeyHash:   generated.Hash,
		KeyPrefix: generated.Prefix,
		Name:      req.Name,
		IsActive:  true,
		ExpiresAt: req.ExpiresAt,
	}
	if err := h.repo.CreateAPIKey(r.Context(), key); err != nil {
		h.internalError(w, r, "failed to persist API key", err)
		return
	}

	h.logger.Info("API key created",
		slog.String("user_id", principal.UserID),
		slog.String("key_id", key.ID),
		slog.String("key_prefix", key.KeyPrefix),
	)

	writeJSON(w, http.StatusCreated, model.APIKeyCreateResponse{
		ID:        key.ID,
		Key:       generated.Plaintext,
		Name:      key.Name,
		KeyPrefix: key.KeyPrefix,
		ExpiresAt: key.ExpiresAt,
		CreatedAt: key.CreatedAt,
	})
}

// Revoke handles DELETE /v1/profile/keys/{id}. Idempotent; also evicts any
// cached principal so the key stops authenticating immediately.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	keyID := chi.URLParam(r, "id")

	key, err := h.repo.GetAPIKeyByID(r.Context(), keyID)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found")
			return
		}
		h.internalError(w, r, "failed to load API key", err)
		return
	}

	// Ownership check reads as not-found so key IDs cannot be probed.
	if key.UserID != principal.UserID {
		writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found")
		return
	}

	if err := h.repo.DeactivateAPIKey(r.Context(), key.ID); err != nil {
		h.internalError(w, r, "failed to deactivate API key", err)
		return
	}

	if err := h.cache.DeletePrincipalByKeyID(r.Context(), key.ID); err != nil {
		h.logger.Warn("failed to evict cached principal",
			slog.String("key_id", key.ID),
			slog.String("error", err.Error()),
		)
	}

	h.logger.Info("API key revoked",
		slog.String("user_id", principal.UserID),
		slog.String("key_id", key.ID),
	)

	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *APIKeyHandler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}
