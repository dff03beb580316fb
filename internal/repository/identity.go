package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anyllm/gateway/internal/model"
)

// Common errors for provider identity repository operations.
var (
	ErrIdentityNotFound = errors.New("provider identity not found")
	ErrIdentityExists   = errors.New("provider identity already exists")
)

const identityColumns = `id, user_id, provider, provider_user_id, role, email, name, avatar_url, access_token_expires_at, last_login_at, metadata, created_at, updated_at`

// insertIdentity writes an identity row using the given querier.
// A unique violation on (provider, provider_user_id) maps to
// ErrIdentityExists so the provisioning race can be detected.
func insertIdentity(ctx context.Context, q querier, identity *model.ProviderIdentity) error {
	query := `
		INSERT INTO provider_identities (` + identityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := q.Exec(ctx, query,
		identity.ID,
		identity.UserID,
		identity.Provider,
		identity.ProviderUserID,
		identity.Role,
		identity.Email,
		identity.Name,
		identity.AvatarURL,
		identity.AccessTokenExpiresAt,
		identity.LastLoginAt,
		identity.Metadata,
		identity.CreatedAt,
		identity.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrIdentityExists
		}
		return fmt.Errorf("failed to create provider identity: %w", err)
	}

	return nil
}

// GetIdentityBySubject retrieves an identity by provider and subject.
func (r *Repository) GetIdentityBySubject(ctx context.Context, provider, subject string) (*model.ProviderIdentity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM provider_identities
		WHERE provider = $1 AND provider_user_id = $2
	`

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, provider, subject))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return identity, nil
}

// GetIdentityByUserID retrieves the identity linked to a user.
func (r *Repository) GetIdentityByUserID(ctx context.Context, userID string) (*model.ProviderIdentity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM provider_identities
		WHERE user_id = $1
	`

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to get identity by user: %w", err)
	}

	return identity, nil
}

// UpdateIdentityLogin refreshes the profile fields recorded on a repeat
// login and stamps last_login_at.
func (r *Repository) UpdateIdentityLogin(ctx context.Context, id string, profile *model.Profile, tokenExpiresAt *time.Time, loginAt time.Time) error {
	query := `
		UPDATE provider_identities
		SET email = COALESCE(NULLIF($2, ''), email),
		    name = COALESCE(NULLIF($3, ''), name),
		    avatar_url = COALESCE(NULLIF($4, ''), avatar_url),
		    access_token_expires_at = $5,
		    last_login_at = $6,
		    updated_at = $6
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, profile.Email, profile.Name, profile.AvatarURL, tokenExpiresAt, loginAt)
	if err != nil {
		return fmt.Errorf("failed to update identity login: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrIdentityNotFound
	}

	return nil
}

// CreateIdentityCascade applies the full provisioning cascade as one
// atomic unit: budget, user, API key, provider identity. Readers see
// all four rows or none. A concurrent first login for the same
// (provider, subject) loses on the identity uniqueness constraint and
// the whole transaction rolls back with ErrIdentityExists.
func (r *Repository) CreateIdentityCascade(ctx context.Context, budget *model.Budget, user *model.User, key *model.APIKey, identity *model.ProviderIdentity) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if err := insertBudget(ctx, tx, budget); err != nil {
			return err
		}
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}
		if err := insertAPIKey(ctx, tx, key); err != nil {
			return err
		}
		return insertIdentity(ctx, tx, identity)
	})
}

// scanIdentity scans a single row into a ProviderIdentity model.
func scanIdentity(row pgx.Row) (*model.ProviderIdentity, error) {
	var identity model.ProviderIdentity
	err := row.Scan(
		&identity.ID,
		&identity.UserID,
		&identity.Provider,
		&identity.ProviderUserID,
		&identity.Role,
		&identity.Email,
		&identity.Name,
		&identity.AvatarURL,
		&identity.AccessTokenExpiresAt,
		&identity.LastLoginAt,
		&identity.Metadata,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}
