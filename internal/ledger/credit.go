// Package ledger provides usage event capture and spend accounting.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anyllm/gateway/internal/metrics"
	"github.com/anyllm/gateway/internal/model"
	"github.com/anyllm/gateway/internal/repository"
)

// Credit check errors.
var (
	ErrAccountBlocked = errors.New("account is blocked")
	ErrBudgetExceeded = errors.New("budget exceeded")
)

// CreditChecker gates spend-incurring calls on account state and
// budget. Budget windows roll over lazily: the first check after a
// window elapses performs the reset.
type CreditChecker struct {
	repo    *repository.Repository
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewCreditChecker creates a CreditChecker.
func NewCreditChecker(repo *repository.Repository, recorder metrics.Recorder, logger *slog.Logger) *CreditChecker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CreditChecker{
		repo:    repo,
		metrics: recorder,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the checker's clock. Intended for tests.
func (c *CreditChecker) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// CheckCredit verifies that the user may incur spend. It fails with
// ErrAccountBlocked or ErrBudgetExceeded; any other error is a storage
// fault. Called on the hot path before proxying a model call.
func (c *CreditChecker) CheckCredit(ctx context.Context, userID string) error {
	user, err := c.repo.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("check credit: %w", err)
	}

	if user.Blocked {
		return ErrAccountBlocked
	}

	budget, err := c.repo.GetBudgetByID(ctx, user.BudgetID)
	if err != nil {
		return fmt.Errorf("check credit: %w", err)
	}

	now := c.now().UTC()
	user, err = c.maybeResetWindow(ctx, user, budget, now)
	if err != nil {
		return fmt.Errorf("check credit: %w", err)
	}

	if budget.Unlimited() {
		return nil
	}

	if user.Spend >= *budget.MaxBudget {
		c.metrics.IncBudgetRejection()
		return ErrBudgetExceeded
	}

	return nil
}

// maybeResetWindow rolls the budget window forward when it has elapsed.
// The reset is a compare-and-swap on next_budget_reset_at, so exactly
// one of N concurrent checks performs it; losers re-read the fresh row.
func (c *CreditChecker) maybeResetWindow(ctx context.Context, user *model.User, budget *model.Budget, now time.Time) (*model.User, error) {
	if user.NextBudgetResetAt == nil || now.Before(*user.NextBudgetResetAt) {
		return user, nil
	}

	// Advance past windows that elapsed entirely unused.
	next := *user.NextBudgetResetAt
	for !next.After(now) {
		next = next.Add(budget.Duration())
	}

	reset, err := c.repo.ResetBudgetWindow(ctx, user, next, now)
	if err != nil {
		return nil, err
	}

	if reset {
		c.metrics.IncBudgetReset()
		c.logger.Info("budget window reset",
			slog.String("user_id", user.ID),
			slog.Float64("spend_before", user.Spend),
			slog.Time("next_reset_at", next))

		entry := &model.BudgetResetLog{
			ID:          uuid.NewString(),
			UserID:      user.ID,
			BudgetID:    budget.ID,
			SpendBefore: user.Spend,
			WindowStart: windowStart(user, now),
			WindowEnd:   *user.NextBudgetResetAt,
			ResetAt:     now,
		}
		if err := c.repo.InsertBudgetResetLog(ctx, entry); err != nil {
			// Audit row is best effort; the reset itself committed.
			c.logger.Warn("failed to record budget reset",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()))
		}
	}

	// Re-read regardless of who won the race so the caller sees the
	// post-reset spend.
	fresh, err := c.repo.GetUserByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

func windowStart(user *model.User, now time.Time) time.Time {
	if user.BudgetStartedAt != nil {
		return *user.BudgetStartedAt
	}
	return now
}
