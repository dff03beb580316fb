package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anyllm/gateway/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
)

const userColumns = `id, budget_id, alias, spend, blocked, budget_started_at, next_budget_reset_at, metadata, created_at, updated_at`

// insertUser writes a user row using the given querier.
func insertUser(ctx context.Context, q querier, user *model.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := q.Exec(ctx, query,
		user.ID,
		user.BudgetID,
		user.Alias,
		user.Spend,
		user.Blocked,
		user.BudgetStartedAt,
		user.NextBudgetResetAt,
		user.Metadata,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// CreateUser inserts a new user into the database.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	return insertUser(ctx, r.pool, user)
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

// ListUsers retrieves users ordered by creation time, newest first.
func (r *Repository) ListUsers(ctx context.Context, limit, offset int) ([]*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// SetUserBlocked flips the blocked flag on a user.
func (r *Repository) SetUserBlocked(ctx context.Context, id string, blocked bool) error {
	query := `
		UPDATE users
		SET blocked = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, blocked, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update user blocked flag: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// AccrueSpend adds the given amount to a user's spend counter.
func (r *Repository) AccrueSpend(ctx context.Context, id string, amount float64) error {
	query := `
		UPDATE users
		SET spend = spend + $2, updated_at = $3
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to accrue spend: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// ResetBudgetWindow zeroes a user's spend and advances the budget
// window. The compare-and-swap on next_budget_reset_at means a
// concurrent reset attempt loses cleanly: zero rows affected, no error.
// Returns true when this caller performed the reset.
func (r *Repository) ResetBudgetWindow(ctx context.Context, user *model.User, next time.Time, now time.Time) (bool, error) {
	query := `
		UPDATE users
		SET spend = 0, budget_started_at = $2, next_budget_reset_at = $3, updated_at = $2
		WHERE id = $1 AND next_budget_reset_at = $4
	`

	result, err := r.pool.Exec(ctx, query, user.ID, now, next, user.NextBudgetResetAt)
	if err != nil {
		return false, fmt.Errorf("failed to reset budget window: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// scanUser scans a single row into a User model.
func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.BudgetID,
		&user.Alias,
		&user.Spend,
		&user.Blocked,
		&user.BudgetStartedAt,
		&user.NextBudgetResetAt,
		&user.Metadata,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
