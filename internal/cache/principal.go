package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anyllm/gateway/internal/model"
)

const (
	// principalCachePrefix is the Redis key prefix for resolved principals.
	principalCachePrefix = "auth:principal:"
	// principalIndexPrefix maps an API key ID back to its cache entry so
	// revocation can evict without knowing the plaintext credential.
	principalIndexPrefix = "auth:principal:key:"
	// principalCacheTTL bounds how long a revoked or expired API key can
	// keep authenticating. Only API key principals are cached; access
	// tokens always hit the session store so logout takes effect
	// immediately.
	principalCacheTTL = 5 * time.Minute
)

// cachedPrincipal is the Redis representation of a resolved principal.
type cachedPrincipal struct {
	Kind     string `json:"kind"`
	UserID   string `json:"user_id"`
	APIKeyID string `json:"api_key_id"`
	IsAdmin  bool   `json:"is_admin"`
}

// GetPrincipal retrieves a cached principal by cache key (a truncated
// hash of the presented credential, never the credential itself).
// Returns nil on a miss.
func (c *Cache) GetPrincipal(ctx context.Context, cacheKey string) (*model.Principal, error) {
	key := principalCachePrefix + cacheKey

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		// Cache miss is not an error
		return nil, nil //nolint:nilerr
	}

	var cached cachedPrincipal
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, nil //nolint:nilerr
	}

	return &model.Principal{
		Kind:     model.CredentialKind(cached.Kind),
		UserID:   cached.UserID,
		APIKeyID: cached.APIKeyID,
		IsAdmin:  cached.IsAdmin,
	}, nil
}

// SetPrincipal caches a resolved API key principal.
func (c *Cache) SetPrincipal(ctx context.Context, cacheKey string, principal *model.Principal) error {
	key := principalCachePrefix + cacheKey

	cached := cachedPrincipal{
		Kind:     string(principal.Kind),
		UserID:   principal.UserID,
		APIKeyID: principal.APIKeyID,
		IsAdmin:  principal.IsAdmin,
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshal principal: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, data, principalCacheTTL)
	if principal.APIKeyID != "" {
		pipe.Set(ctx, principalIndexPrefix+principal.APIKeyID, cacheKey, principalCacheTTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// DeletePrincipal removes a cached principal.
// Used when an API key is deactivated.
func (c *Cache) DeletePrincipal(ctx context.Context, cacheKey string) error {
	key := principalCachePrefix + cacheKey
	return c.client.Del(ctx, key).Err()
}

// DeletePrincipalByKeyID evicts the cached principal for an API key via
// the key-ID index. A missing index entry means nothing is cached.
func (c *Cache) DeletePrincipalByKeyID(ctx context.Context, apiKeyID string) error {
	indexKey := principalIndexPrefix + apiKeyID

	cacheKey, err := c.client.Get(ctx, indexKey).Result()
	if err != nil {
		return nil //nolint:nilerr
	}

	return c.client.Del(ctx, principalCachePrefix+cacheKey, indexKey).Err()
}
