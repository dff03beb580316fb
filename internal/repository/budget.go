package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anyllm/gateway/internal/model"
)

// Common errors for budget repository operations.
var (
	ErrBudgetNotFound = errors.New("budget not found")
)

// insertBudget writes a budget row using the given querier so the same
// statement serves both standalone creates and the provisioning cascade.
func insertBudget(ctx context.Context, q querier, budget *model.Budget) error {
	query := `
		INSERT INTO budgets (id, max_budget, budget_duration_sec, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := q.Exec(ctx, query,
		budget.ID,
		budget.MaxBudget,
		budget.DurationSec,
		budget.CreatedAt,
		budget.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create budget: %w", err)
	}

	return nil
}

// CreateBudget inserts a new budget into the database.
func (r *Repository) CreateBudget(ctx context.Context, budget *model.Budget) error {
	return insertBudget(ctx, r.pool, budget)
}

// GetBudgetByID retrieves a budget by its ID.
func (r *Repository) GetBudgetByID(ctx context.Context, id string) (*model.Budget, error) {
	query := `
		SELECT id, max_budget, budget_duration_sec, created_at, updated_at
		FROM budgets
		WHERE id = $1
	`

	var budget model.Budget
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&budget.ID,
		&budget.MaxBudget,
		&budget.DurationSec,
		&budget.CreatedAt,
		&budget.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBudgetNotFound
		}
		return nil, fmt.Errorf("failed to get budget by ID: %w", err)
	}

	return &budget, nil
}

// UpdateBudget applies administrative edits to a budget. Nil fields are
// left untouched.
func (r *Repository) UpdateBudget(ctx context.Context, id string, maxBudget *float64, durationSec *int64) error {
	query := `
		UPDATE budgets
		SET max_budget = COALESCE($2, max_budget),
		    budget_duration_sec = COALESCE($3, budget_duration_sec),
		    updated_at = $4
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, maxBudget, durationSec, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update budget: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrBudgetNotFound
	}

	return nil
}

// InsertBudgetResetLog records a budget window rollover.
func (r *Repository) InsertBudgetResetLog(ctx context.Context, entry *model.BudgetResetLog) error {
	query := `
		INSERT INTO budget_reset_logs (id, user_id, budget_id, spend_before, window_start, window_end, reset_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.BudgetID,
		entry.SpendBefore,
		entry.WindowStart,
		entry.WindowEnd,
		entry.ResetAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert budget reset log: %w", err)
	}

	return nil
}
