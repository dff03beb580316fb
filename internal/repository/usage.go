package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anyllm/gateway/internal/model"
)

const usageColumns = `id, event_id, user_id, api_key_id, model, provider, endpoint, prompt_tokens, completion_tokens, total_tokens, cost, status, error_message, timestamp, created_at`

// batchSender is satisfied by both the pool and pgx.Tx, so bulk inserts
// can run standalone or inside a larger transaction.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// bulkInsertUsage inserts a batch of usage logs in one round trip.
// Conflicts on event_id are skipped so the ledger worker can replay a
// partially processed batch without double-counting rows. Returns the
// subset of logs that were actually inserted; replayed rows are absent,
// which keeps spend accrual idempotent too.
func bulkInsertUsage(ctx context.Context, sender batchSender, logs []*model.UsageLog) ([]*model.UsageLog, error) {
	if len(logs) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO usage_logs (` + usageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (event_id) DO NOTHING
	`

	for _, entry := range logs {
		batch.Queue(query,
			entry.ID,
			entry.EventID,
			entry.UserID,
			entry.APIKeyID,
			entry.Model,
			entry.Provider,
			entry.Endpoint,
			entry.PromptTokens,
			entry.CompletionTokens,
			entry.TotalTokens,
			entry.Cost,
			entry.Status,
			entry.ErrorMessage,
			entry.Timestamp,
			entry.CreatedAt,
		)
	}

	results := sender.SendBatch(ctx, batch)
	defer results.Close()

	inserted := make([]*model.UsageLog, 0, len(logs))
	for _, entry := range logs {
		tag, err := results.Exec()
		if err != nil {
			return nil, fmt.Errorf("failed to insert usage log: %w", err)
		}
		if tag.RowsAffected() > 0 {
			inserted = append(inserted, entry)
		}
	}

	return inserted, nil
}

// accrueSpend adds per-user spend deltas using the given querier.
func accrueSpend(ctx context.Context, q querier, deltas map[string]float64) error {
	query := `
		UPDATE users
		SET spend = spend + $2, updated_at = $3
		WHERE id = $1
	`

	now := time.Now()
	for userID, amount := range deltas {
		if _, err := q.Exec(ctx, query, userID, amount, now); err != nil {
			return fmt.Errorf("failed to accrue spend for user: %w", err)
		}
	}
	return nil
}

// BulkInsertUsage inserts a batch of usage logs without touching spend
// counters. See bulkInsertUsage for the replay semantics.
func (r *Repository) BulkInsertUsage(ctx context.Context, logs []*model.UsageLog) ([]*model.UsageLog, error) {
	return bulkInsertUsage(ctx, r.pool, logs)
}

// AccrueSpendBatch adds per-user spend deltas in one transaction so a
// batch either lands fully or not at all.
func (r *Repository) AccrueSpendBatch(ctx context.Context, deltas map[string]float64) error {
	if len(deltas) == 0 {
		return nil
	}

	return r.withTx(ctx, func(tx pgx.Tx) error {
		return accrueSpend(ctx, tx, deltas)
	})
}

// ApplyUsageBatch inserts a batch of usage logs and folds their costs
// into each user's spend counter in a single transaction. A crash
// between the two writes can therefore never leave rows persisted with
// the spend unaccrued. Only rows inserted by this call accrue; replayed
// rows conflict on event_id and contribute nothing, so retrying a batch
// is safe. Returns the subset of logs actually inserted.
func (r *Repository) ApplyUsageBatch(ctx context.Context, logs []*model.UsageLog) ([]*model.UsageLog, error) {
	if len(logs) == 0 {
		return nil, nil
	}

	var inserted []*model.UsageLog
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		inserted, err = bulkInsertUsage(ctx, tx, logs)
		if err != nil {
			return err
		}

		deltas := make(map[string]float64)
		for _, entry := range inserted {
			if entry.Cost > 0 {
				deltas[entry.UserID] += entry.Cost
			}
		}
		if len(deltas) == 0 {
			return nil
		}
		return accrueSpend(ctx, tx, deltas)
	})
	if err != nil {
		return nil, err
	}

	return inserted, nil
}

// AggregateUsage computes the usage aggregate for a user since the
// given cutoff.
func (r *Repository) AggregateUsage(ctx context.Context, userID string, since time.Time) (*model.UsageWindow, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COALESCE(SUM(total_tokens), 0),
		       COALESCE(SUM(cost), 0)
		FROM usage_logs
		WHERE user_id = $1 AND timestamp >= $2
	`

	var window model.UsageWindow
	err := r.pool.QueryRow(ctx, query, userID, since).Scan(
		&window.Requests,
		&window.PromptTokens,
		&window.CompletionTokens,
		&window.TotalTokens,
		&window.Cost,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}

	return &window, nil
}

// RecentUsage retrieves a user's most recent usage logs, newest first.
func (r *Repository) RecentUsage(ctx context.Context, userID string, limit int) ([]model.UsageLog, error) {
	query := `
		SELECT ` + usageColumns + `
		FROM usage_logs
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent usage: %w", err)
	}
	defer rows.Close()

	logs := make([]model.UsageLog, 0, limit)
	for rows.Next() {
		var entry model.UsageLog
		err := rows.Scan(
			&entry.ID,
			&entry.EventID,
			&entry.UserID,
			&entry.APIKeyID,
			&entry.Model,
			&entry.Provider,
			&entry.Endpoint,
			&entry.PromptTokens,
			&entry.CompletionTokens,
			&entry.TotalTokens,
			&entry.Cost,
			&entry.Status,
			&entry.ErrorMessage,
			&entry.Timestamp,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage log: %w", err)
		}
		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage logs: %w", err)
	}

	return logs, nil
}
