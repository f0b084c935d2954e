package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/winyoulife/arbengine/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Create inserts an execution record and its legs in one transaction.
func (s *ExecutionStore) Create(ctx context.Context, rec domain.ExecutionRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO executions (id, opportunity_id, kind, status, expected_profit, actual_profit, total_fees, failure_reason, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.OpportunityID, string(rec.Kind), string(rec.Status),
		rec.ExpectedProfit, rec.ActualProfit, rec.TotalFees, rec.FailureReason,
		rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution: %w", err)
	}

	for _, leg := range rec.Legs {
		_, err = tx.Exec(ctx, `
			INSERT INTO execution_legs (execution_id, venue, pair, action, quote_price, filled_price, filled_volume, fee, cash_flow, executed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			rec.ID, leg.Leg.Venue, leg.Leg.Pair, string(leg.Leg.Action),
			leg.Leg.Price, leg.FilledPrice, leg.FilledVolume, leg.Fee, leg.CashFlow, leg.ExecutedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert execution leg: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID returns an execution record with its legs.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	var kind, status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, opportunity_id, kind, status, expected_profit, actual_profit, total_fees, failure_reason, started_at, completed_at
		FROM executions WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.OpportunityID, &kind, &status,
		&rec.ExpectedProfit, &rec.ActualProfit, &rec.TotalFees, &rec.FailureReason,
		&rec.StartedAt, &rec.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionRecord{}, domain.ErrNotFound
		}
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	rec.Kind = domain.StrategyKind(kind)
	rec.Status = domain.ExecutionStatus(status)

	rows, err := s.pool.Query(ctx, `
		SELECT venue, pair, action, quote_price, filled_price, filled_volume, fee, cash_flow, executed_at
		FROM execution_legs WHERE execution_id = $1 ORDER BY id`,
		id,
	)
	if err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: get execution legs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var leg domain.LegResult
		var action string
		if err := rows.Scan(&leg.Leg.Venue, &leg.Leg.Pair, &action, &leg.Leg.Price,
			&leg.FilledPrice, &leg.FilledVolume, &leg.Fee, &leg.CashFlow, &leg.ExecutedAt); err != nil {
			return domain.ExecutionRecord{}, err
		}
		leg.Leg.Action = domain.LegAction(action)
		leg.Leg.Volume = leg.FilledVolume
		rec.Legs = append(rec.Legs, leg)
	}
	if err := rows.Err(); err != nil {
		return domain.ExecutionRecord{}, err
	}
	return rec, nil
}

// ListRecent returns the most recent executions without their legs.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, opportunity_id, kind, status, expected_profit, actual_profit, total_fees, failure_reason, started_at, completed_at
		FROM executions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// ListBefore returns all executions started strictly before the cutoff,
// oldest first. Used by the archiver.
func (s *ExecutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, opportunity_id, kind, status, expected_profit, actual_profit, total_fees, failure_reason, started_at, completed_at
		FROM executions WHERE started_at < $1 ORDER BY started_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions before: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// SumProfit returns the total realized profit since the given time.
func (s *ExecutionStore) SumProfit(ctx context.Context, since time.Time) (float64, error) {
	var sum float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(actual_profit), 0) FROM executions WHERE started_at >= $1`, since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum execution profit: %w", err)
	}
	return sum, nil
}

// SumProfitByKind returns the realized profit for one strategy since the
// given time.
func (s *ExecutionStore) SumProfitByKind(ctx context.Context, kind domain.StrategyKind, since time.Time) (float64, error) {
	var sum float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(actual_profit), 0) FROM executions WHERE kind = $1 AND started_at >= $2`,
		string(kind), since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum execution profit by kind: %w", err)
	}
	return sum, nil
}

func scanExecutions(rows pgx.Rows) ([]domain.ExecutionRecord, error) {
	var list []domain.ExecutionRecord
	for rows.Next() {
		var rec domain.ExecutionRecord
		var kind, status string
		if err := rows.Scan(&rec.ID, &rec.OpportunityID, &kind, &status,
			&rec.ExpectedProfit, &rec.ActualProfit, &rec.TotalFees, &rec.FailureReason,
			&rec.StartedAt, &rec.CompletedAt); err != nil {
			return nil, err
		}
		rec.Kind = domain.StrategyKind(kind)
		rec.Status = domain.ExecutionStatus(status)
		list = append(list, rec)
	}
	return list, rows.Err()
}
