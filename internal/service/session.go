package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anyllm/gateway/internal/auth"
	"github.com/anyllm/gateway/internal/metrics"
	"github.com/anyllm/gateway/internal/model"
	"github.com/anyllm/gateway/internal/notifier"
	"github.com/anyllm/gateway/internal/repository"
)

// Session errors.
var (
	ErrRefreshTokenInvalid  = errors.New("invalid refresh token")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")
)

// SecurityNotifier receives security events raised by the session
// manager. Implementations must not block the caller on delivery.
type SecurityNotifier interface {
	Notify(ctx context.Context, event notifier.Event)
	Enabled() bool
}

// SessionManager owns the refresh-token lifecycle: issuance, rotation
// with reuse detection, and revocation.
type SessionManager struct {
	repo       *repository.Repository
	signer     *auth.TokenSigner
	notifier   SecurityNotifier
	metrics    metrics.Recorder
	logger     *slog.Logger
	refreshTTL time.Duration
	now        func() time.Time
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(repo *repository.Repository, signer *auth.TokenSigner, events SecurityNotifier, refreshTTL time.Duration, recorder metrics.Recorder, logger *slog.Logger) *SessionManager {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		repo:       repo,
		signer:     signer,
		notifier:   events,
		metrics:    recorder,
		logger:     logger,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// SetClock overrides the manager's clock. Intended for tests.
func (m *SessionManager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Issue opens a new session family for the user and returns the first
// token pair. Called once per login.
func (m *SessionManager) Issue(ctx context.Context, userID, apiKeyID string, meta model.SessionMetadata) (*model.TokenPair, *model.SessionToken, error) {
	now := m.now().UTC()

	refreshToken, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, nil, fmt.Errorf("issue session: %w", err)
	}

	session := &model.SessionToken{
		ID:               uuid.NewString(),
		UserID:           userID,
		APIKeyID:         apiKeyID,
		RefreshTokenHash: auth.HashToken(refreshToken),
		RefreshExpiresAt: now.Add(m.refreshTTL),
		CreatedAt:        now,
		Metadata:         meta,
	}
	// First member names the family.
	session.FamilyID = session.ID

	if err := m.repo.CreateSession(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("issue session: %w", err)
	}

	accessToken, accessExpiresAt, err := m.signer.Sign(userID, apiKeyID, session.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("issue session: %w", err)
	}

	m.metrics.IncSessionIssued()

	return &model.TokenPair{
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  accessExpiresAt,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: session.RefreshExpiresAt,
	}, session, nil
}

// Refresh rotates a refresh token: the presented token is retired and a
// successor in the same family is issued. Presenting an already retired
// token is treated as theft evidence and revokes the whole family.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, *model.SessionToken, error) {
	now := m.now().UTC()

	current, err := m.repo.GetSessionByRefreshHash(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, nil, ErrRefreshTokenInvalid
		}
		return nil, nil, fmt.Errorf("refresh session: %w", err)
	}

	if current.IsRevoked() {
		return nil, nil, m.handleReuse(ctx, current)
	}

	if current.IsExpired(now) {
		return nil, nil, ErrRefreshTokenExpired
	}

	nextToken, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, nil, fmt.Errorf("refresh session: %w", err)
	}

	parentID := current.ID
	successor := &model.SessionToken{
		ID:               uuid.NewString(),
		FamilyID:         current.FamilyID,
		ParentID:         &parentID,
		UserID:           current.UserID,
		APIKeyID:         current.APIKeyID,
		RefreshTokenHash: auth.HashToken(nextToken),
		RefreshExpiresAt: now.Add(m.refreshTTL),
		CreatedAt:        now,
		Metadata:         current.Metadata,
	}

	err = m.repo.RotateSession(ctx, current.ID, successor, now)
	if err != nil {
		if errors.Is(err, repository.ErrSessionRotated) {
			// Two rotations raced on the same token. The loser sees
			// the row already retired, which is indistinguishable
			// from replay, so it gets the same treatment.
			return nil, nil, m.handleReuse(ctx, current)
		}
		return nil, nil, fmt.Errorf("refresh session: %w", err)
	}

	accessToken, accessExpiresAt, err := m.signer.Sign(successor.UserID, successor.APIKeyID, successor.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("refresh session: %w", err)
	}

	m.metrics.IncSessionRotated()

	return &model.TokenPair{
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  accessExpiresAt,
		RefreshToken:          nextToken,
		RefreshTokenExpiresAt: successor.RefreshExpiresAt,
	}, successor, nil
}

// Revoke ends the session owning the given refresh token. Revoking an
// already revoked session succeeds (logout is idempotent); an unknown
// token does not.
func (m *SessionManager) Revoke(ctx context.Context, refreshToken string) error {
	session, err := m.repo.GetSessionByRefreshHash(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrRefreshTokenInvalid
		}
		return fmt.Errorf("revoke session: %w", err)
	}

	if session.IsRevoked() {
		return nil
	}

	if err := m.repo.RevokeSession(ctx, session.ID, m.now().UTC()); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	m.metrics.IncSessionRevoked()
	m.logger.Info("session revoked",
		slog.String("session_id", session.ID),
		slog.String("user_id", session.UserID))

	return nil
}

// RevokeUserSessions ends every live session for a user. Used when an
// account is blocked.
func (m *SessionManager) RevokeUserSessions(ctx context.Context, userID string) (int64, error) {
	count, err := m.repo.RevokeUserSessions(ctx, userID, m.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}

	if count > 0 {
		m.logger.Info("revoked all user sessions",
			slog.String("user_id", userID),
			slog.Int64("count", count))
	}

	return count, nil
}

// handleReuse revokes the whole family of a replayed token and raises a
// security event. The returned error is always ErrRefreshReuseDetected.
func (m *SessionManager) handleReuse(ctx context.Context, session *model.SessionToken) error {
	count, err := m.repo.RevokeSessionFamily(ctx, session.FamilyID, m.now().UTC())
	if err != nil {
		// The family could not be revoked, but the caller still must
		// not get tokens. Log and fail closed.
		m.logger.Error("failed to revoke session family after reuse",
			slog.String("family_id", session.FamilyID),
			slog.String("error", err.Error()))
		return ErrRefreshReuseDetected
	}

	m.metrics.IncRefreshReuseDetected()
	m.logger.Warn("refresh token reuse detected",
		slog.String("session_id", session.ID),
		slog.String("family_id", session.FamilyID),
		slog.String("user_id", session.UserID),
		slog.Int64("sessions_revoked", count))

	if m.notifier != nil && m.notifier.Enabled() {
		m.notifier.Notify(ctx, notifier.Event{
			Type:      notifier.EventRefreshReuse,
			UserID:    session.UserID,
			SessionID: session.ID,
			FamilyID:  session.FamilyID,
			Detail: map[string]any{
				"sessions_revoked": count,
			},
		})
	}

	return ErrRefreshReuseDetected
}
