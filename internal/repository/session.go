package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anyllm/gateway/internal/model"
)

// Common errors for session repository operations.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionRotated  = errors.New("session already rotated")
)

const sessionColumns = `id, family_id, parent_id, user_id, api_key_id, refresh_token_hash, refresh_expires_at, revoked_at, last_used_at, created_at, metadata`

// insertSession writes a session row using the given querier.
func insertSession(ctx context.Context, q querier, session *model.SessionToken) error {
	query := `
		INSERT INTO session_tokens (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := q.Exec(ctx, query,
		session.ID,
		session.FamilyID,
		session.ParentID,
		session.UserID,
		session.APIKeyID,
		session.RefreshTokenHash,
		session.RefreshExpiresAt,
		session.RevokedAt,
		session.LastUsedAt,
		session.CreatedAt,
		session.Metadata,
	)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// CreateSession inserts a new session row.
func (r *Repository) CreateSession(ctx context.Context, session *model.SessionToken) error {
	return insertSession(ctx, r.pool, session)
}

// LookupSession retrieves a session by its ID (the JWT jti).
// Returns (nil, nil) when no row exists, matching the resolver contract:
// a missing row classifies as revoked, not as a storage error.
func (r *Repository) LookupSession(ctx context.Context, id string) (*model.SessionToken, error) {
	query := `SELECT ` + sessionColumns + ` FROM session_tokens WHERE id = $1`

	session, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lookup session: %w", err)
	}

	return session, nil
}

// GetSessionByRefreshHash retrieves a session by the hash of its refresh
// token. Revoked rows are returned too: the caller must distinguish a
// live rotation from a replay of a retired token.
func (r *Repository) GetSessionByRefreshHash(ctx context.Context, hash string) (*model.SessionToken, error) {
	query := `SELECT ` + sessionColumns + ` FROM session_tokens WHERE refresh_token_hash = $1`

	session, err := scanSession(r.pool.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session by refresh hash: %w", err)
	}

	return session, nil
}

// TouchSession updates the last_used_at timestamp.
// Should be called asynchronously after successful authentication.
func (r *Repository) TouchSession(ctx context.Context, id string) error {
	query := `
		UPDATE session_tokens
		SET last_used_at = $2
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update session last used: %w", err)
	}

	return nil
}

// RevokeSession retires a single session row. Revoking an already
// revoked session is a no-op, not an error (logout is idempotent).
func (r *Repository) RevokeSession(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE session_tokens
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`

	_, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	return nil
}

// RotateSession retires the current session and inserts its successor
// as one atomic unit. The revoke carries a compare-and-swap on
// revoked_at IS NULL, so exactly one of two concurrent rotations of the
// same token wins; the loser gets ErrSessionRotated and must re-read
// the row to tell a benign race from a replayed token.
func (r *Repository) RotateSession(ctx context.Context, currentID string, successor *model.SessionToken, at time.Time) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		revoke := `
			UPDATE session_tokens
			SET revoked_at = $2, last_used_at = $2
			WHERE id = $1 AND revoked_at IS NULL
		`

		result, err := tx.Exec(ctx, revoke, currentID, at)
		if err != nil {
			return fmt.Errorf("failed to retire session: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrSessionRotated
		}

		return insertSession(ctx, tx, successor)
	})
}

// RevokeSessionFamily retires every live session in a family. Used when
// refresh-token reuse is detected. Returns the number of sessions
// revoked.
func (r *Repository) RevokeSessionFamily(ctx context.Context, familyID string, at time.Time) (int64, error) {
	query := `
		UPDATE session_tokens
		SET revoked_at = $2
		WHERE family_id = $1 AND revoked_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query, familyID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke session family: %w", err)
	}

	return result.RowsAffected(), nil
}

// RevokeUserSessions retires every live session belonging to a user.
// Used when an account is blocked. Returns the number revoked.
func (r *Repository) RevokeUserSessions(ctx context.Context, userID string, at time.Time) (int64, error) {
	query := `
		UPDATE session_tokens
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user sessions: %w", err)
	}

	return result.RowsAffected(), nil
}

// DeleteExpiredSessions removes session rows whose refresh lifetime
// elapsed before the cutoff. Intended for a periodic janitor.
func (r *Repository) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM session_tokens WHERE refresh_expires_at < $1`

	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	return result.RowsAffected(), nil
}

// scanSession scans a single row into a SessionToken model.
func scanSession(row pgx.Row) (*model.SessionToken, error) {
	var session model.SessionToken
	err := row.Scan(
		&session.ID,
		&session.FamilyID,
		&session.ParentID,
		&session.UserID,
		&session.APIKeyID,
		&session.RefreshTokenHash,
		&session.RefreshExpiresAt,
		&session.RevokedAt,
		&session.LastUsedAt,
		&session.CreatedAt,
		&session.Metadata,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}
