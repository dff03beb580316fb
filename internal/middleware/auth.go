package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/anyllm/gateway/internal/auth"
	"github.com/anyllm/gateway/internal/cache"
	"github.com/anyllm/gateway/internal/metrics"
	"github.com/anyllm/gateway/internal/model"
	"github.com/anyllm/gateway/internal/repository"
)

const (
	// AuthHeader is the primary credential header.
	AuthHeader = "X-AnyLLM-Key"

	// minAuthDuration is the minimum time to spend on failed auth to
	// prevent timing attacks.
	minAuthDuration = 200 * time.Millisecond

	// touchTimeout bounds the async last_used updates.
	touchTimeout = 5 * time.Second
)

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger     *slog.Logger
	Resolver   *auth.Resolver
	Cache      *cache.Cache
	Repository *repository.Repository
	Metrics    metrics.Recorder
}

// Auth returns a middleware that authenticates requests. It reads the
// credential header, resolves it to a Principal via the resolver, and
// injects the Principal into the request context. All rejection
// responses carry the same body and status so credential kinds cannot
// be probed.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			failed := false

			// Failed attempts are padded to a floor duration so a
			// rejected master-key guess and a rejected API key are
			// indistinguishable by timing.
			defer func() {
				cfg.Metrics.ObserveAuthDuration(time.Since(startTime))
				if failed {
					elapsed := time.Since(startTime)
					if elapsed < minAuthDuration {
						time.Sleep(minAuthDuration - elapsed)
					}
				}
			}()

			header := credentialHeader(r)
			if header == "" {
				failed = true
				cfg.Metrics.IncAuthAttempt("malformed")
				cfg.Metrics.IncAuthFailure("missing_credential")
				logAuthFailure(cfg.Logger, r, "missing_credential")
				writeAuthError(w)
				return
			}

			// Cached API key principals skip the argon2 verification.
			cacheKey := auth.QuickHash(header)
			if principal := cachedPrincipal(r.Context(), cfg, cacheKey); principal != nil {
				cfg.Metrics.IncAuthCacheHit()
				cfg.Metrics.IncAuthAttempt(string(principal.Kind))
				serveAuthenticated(cfg, next, w, r, principal)
				return
			}
			cfg.Metrics.IncAuthCacheMiss()

			principal, err := cfg.Resolver.Resolve(r.Context(), header)
			if err != nil {
				failed = true
				cfg.Metrics.IncAuthAttempt("unknown")
				cfg.Metrics.IncAuthFailure(failureReason(err))
				logAuthFailure(cfg.Logger, r, failureReason(err))
				writeAuthError(w)
				return
			}

			cfg.Metrics.IncAuthAttempt(string(principal.Kind))

			// Only API key principals are cached: their revocation
			// tolerance is the cache TTL. Access tokens must check
			// session liveness on every request, and the master key
			// comparison is already cheap.
			if principal.Kind == model.KindAPIKey && cfg.Cache != nil {
				_ = cfg.Cache.SetPrincipal(r.Context(), cacheKey, principal)
			}

			serveAuthenticated(cfg, next, w, r, principal)
		})
	}
}

// credentialHeader reads the credential, preferring the dedicated
// header and falling back to Authorization for compatibility.
func credentialHeader(r *http.Request) string {
	if v := r.Header.Get(AuthHeader); v != "" {
		return v
	}
	return r.Header.Get("Authorization")
}

// cachedPrincipal returns a cached principal for the credential, if any.
func cachedPrincipal(ctx context.Context, cfg AuthConfig, cacheKey string) *model.Principal {
	if cfg.Cache == nil {
		return nil
	}
	principal, _ := cfg.Cache.GetPrincipal(ctx, cacheKey)
	return principal
}

// serveAuthenticated injects the principal, fires the async last_used
// touches, and passes the request on.
func serveAuthenticated(cfg AuthConfig, next http.Handler, w http.ResponseWriter, r *http.Request, principal *model.Principal) {
	cfg.Logger.Debug("authentication successful",
		slog.String("credential_kind", string(principal.Kind)),
		slog.String("user_id", principal.UserID),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)

	// last_used stamps are observability, not correctness: they run
	// detached from the request with their own deadline.
	if cfg.Repository != nil {
		if principal.APIKeyID != "" {
			go touch(cfg.Repository.TouchAPIKey, principal.APIKeyID)
		}
		if principal.SessionID != "" {
			go touch(cfg.Repository.TouchSession, principal.SessionID)
		}
	}

	ctx := auth.ContextWithPrincipal(r.Context(), principal)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func touch(fn func(context.Context, string) error, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()
	_ = fn(ctx, id)
}

// failureReason maps a resolver error to a stable metric/log label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrMalformedCredential):
		return "malformed_credential"
	case errors.Is(err, auth.ErrExpiredCredential):
		return "expired_credential"
	case errors.Is(err, auth.ErrRevokedSession):
		return "revoked_session"
	case errors.Is(err, auth.ErrInvalidCredential):
		return "invalid_credential"
	default:
		return "internal_error"
	}
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid or missing credential"}}`))
}
