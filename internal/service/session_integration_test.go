//go:build integration

package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/anyllm/gateway/internal/auth"
	"github.com/anyllm/gateway/internal/model"
	"github.com/anyllm/gateway/internal/repository"
	"github.com/anyllm/gateway/internal/service"
	"github.com/anyllm/gateway/internal/testutil"
)

type sessionFixture struct {
	repo     *repository.Repository
	manager  *service.SessionManager
	userID   string
	apiKeyID string
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	databaseURL := testutil.RequireEnv(t, "TEST_DATABASE_URL")
	ctx := context.Background()

	repo, err := repository.New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	t.Cleanup(func() { _ = unlock() })

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("ResetSchema failed: %v", err)
	}

	budget := testutil.NewTestBudget(t)
	if err := repo.CreateBudget(ctx, budget); err != nil {
		t.Fatalf("CreateBudget failed: %v", err)
	}
	user := testutil.NewTestUser(t, budget.ID)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	key := testutil.NewTestAPIKey(t, user.ID)
	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	signer := auth.NewTokenSigner([]byte("integration-test-secret"), 30*time.Minute)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := service.NewSessionManager(repo, signer, nil, 14*24*time.Hour, nil, logger)

	return &sessionFixture{
		repo:     repo,
		manager:  manager,
		userID:   user.ID,
		apiKeyID: key.ID,
	}
}

func TestSessionManager_IssueAndRefresh(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	pair, session, err := fx.manager.Issue(ctx, fx.userID, fx.apiKeyID, model.SessionMetadata{DeviceType: "cli"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if session.FamilyID != session.ID {
		t.Errorf("First session should name the family: %s != %s", session.FamilyID, session.ID)
	}

	rotated, successor, err := fx.manager.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Error("Rotation must mint a new refresh token")
	}
	if successor.FamilyID != session.FamilyID {
		t.Errorf("Successor left the family: %s != %s", successor.FamilyID, session.FamilyID)
	}
	if successor.ParentID == nil || *successor.ParentID != session.ID {
		t.Errorf("Successor should point at its parent: %+v", successor.ParentID)
	}

	// The retired row stays behind, marked revoked.
	retired, err := fx.repo.GetSessionByRefreshHash(ctx, auth.HashToken(pair.RefreshToken))
	if err != nil {
		t.Fatalf("Lookup of retired session failed: %v", err)
	}
	if !retired.IsRevoked() {
		t.Error("Rotated-away session should be revoked")
	}
}

func TestSessionManager_ReuseRevokesFamily(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	pair, _, err := fx.manager.Issue(ctx, fx.userID, fx.apiKeyID, model.SessionMetadata{})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	rotated, _, err := fx.manager.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// Replaying the retired token is theft evidence.
	if _, _, err := fx.manager.Refresh(ctx, pair.RefreshToken); !errors.Is(err, service.ErrRefreshReuseDetected) {
		t.Fatalf("Expected ErrRefreshReuseDetected, got: %v", err)
	}

	// The whole family is dead, including the live successor.
	successor, err := fx.repo.GetSessionByRefreshHash(ctx, auth.HashToken(rotated.RefreshToken))
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !successor.IsRevoked() {
		t.Error("Family revocation should cover the live successor")
	}
	if _, _, err := fx.manager.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, service.ErrRefreshReuseDetected) {
		t.Errorf("Successor token should be unusable after family revocation, got: %v", err)
	}
}

func TestSessionManager_ExpiredRefreshToken(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	fx.manager.SetClock(func() time.Time { return time.Now().Add(-30 * 24 * time.Hour) })
	pair, _, err := fx.manager.Issue(ctx, fx.userID, fx.apiKeyID, model.SessionMetadata{})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	fx.manager.SetClock(time.Now)
	if _, _, err := fx.manager.Refresh(ctx, pair.RefreshToken); !errors.Is(err, service.ErrRefreshTokenExpired) {
		t.Errorf("Expected ErrRefreshTokenExpired, got: %v", err)
	}
}

func TestSessionManager_UnknownRefreshToken(t *testing.T) {
	fx := newSessionFixture(t)

	token, err := auth.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken failed: %v", err)
	}
	if _, _, err := fx.manager.Refresh(context.Background(), token); !errors.Is(err, service.ErrRefreshTokenInvalid) {
		t.Errorf("Expected ErrRefreshTokenInvalid, got: %v", err)
	}
}

func TestSessionManager_RevokeIdempotent(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	pair, _, err := fx.manager.Issue(ctx, fx.userID, fx.apiKeyID, model.SessionMetadata{})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if err := fx.manager.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := fx.manager.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Errorf("Second revoke should be a no-op, got: %v", err)
	}

	// A revoked session no longer authenticates refreshes, and the
	// logout itself must not count as reuse for rotation purposes.
	if _, _, err := fx.manager.Refresh(ctx, pair.RefreshToken); !errors.Is(err, service.ErrRefreshReuseDetected) {
		t.Errorf("Expected ErrRefreshReuseDetected, got: %v", err)
	}
}

func TestSessionManager_RevokeUserSessions(t *testing.T) {
	fx := newSessionFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := fx.manager.Issue(ctx, fx.userID, fx.apiKeyID, model.SessionMetadata{}); err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
	}

	count, err := fx.manager.RevokeUserSessions(ctx, fx.userID)
	if err != nil {
		t.Fatalf("RevokeUserSessions failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Revoked %d sessions, want 3", count)
	}
}
