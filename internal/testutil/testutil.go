// Package testutil provides helpers for env-gated integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/anyllm/gateway/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 774411

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// migrationOrder lists migration basenames in dependency order.
var migrationOrder = []string{
	"000001_budgets",
	"000002_users",
	"000003_api_keys",
	"000004_provider_identities",
	"000005_session_tokens",
	"000006_usage_logs",
}

// ResetSchema drops and recreates the full schema for tests.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	// Down in reverse order so foreign keys unwind cleanly.
	for i := len(migrationOrder) - 1; i >= 0; i-- {
		if err := applyMigration(ctx, pool, root, migrationOrder[i]+".down.sql"); err != nil {
			return err
		}
	}
	for _, name := range migrationOrder {
		if err := applyMigration(ctx, pool, root, name+".up.sql"); err != nil {
			return err
		}
	}

	return nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, root, filename string) error {
	path := filepath.Join(root, "migrations", filename)
	sql, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", filename, err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply migration %s: %w", filename, err)
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestBudget creates a test budget with sensible defaults.
func NewTestBudget(t testing.TB) *model.Budget {
	t.Helper()
	now := time.Now().UTC()
	maxBudget := 100.0
	return &model.Budget{
		ID:          UniqueID("budget"),
		MaxBudget:   &maxBudget,
		DurationSec: 30 * 24 * 60 * 60,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewTestUser creates a test user owning the given budget.
func NewTestUser(t testing.TB, budgetID string) *model.User {
	t.Helper()
	now := time.Now().UTC()
	reset := now.Add(30 * 24 * time.Hour)
	return &model.User{
		ID:                UniqueID("user"),
		BudgetID:          budgetID,
		Alias:             "Test User",
		BudgetStartedAt:   &now,
		NextBudgetResetAt: &reset,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// NewTestAPIKey creates a test API key with sensible defaults.
// The hash is a placeholder; use auth.GenerateAPIKey when the test
// needs a verifiable credential.
func NewTestAPIKey(t testing.TB, userID string) *model.APIKey {
	t.Helper()
	now := time.Now().UTC()
	return &model.APIKey{
		ID:        UniqueID("key"),
		UserID:    userID,
		KeyHash:   fmt.Sprintf("hash-%d", now.UnixNano()),
		KeyPrefix: "abc123",
		Name:      "Test Key",
		IsActive:  true,
		CreatedAt: now,
	}
}

// NewTestSession creates a test session token for the given user/key.
func NewTestSession(t testing.TB, userID, apiKeyID string) *model.SessionToken {
	t.Helper()
	now := time.Now().UTC()
	session := &model.SessionToken{
		ID:               UniqueID("session"),
		UserID:           userID,
		APIKeyID:         apiKeyID,
		RefreshTokenHash: fmt.Sprintf("refresh-hash-%d", now.UnixNano()),
		RefreshExpiresAt: now.Add(14 * 24 * time.Hour),
		CreatedAt:        now,
	}
	session.FamilyID = session.ID
	return session
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
