package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/winyoulife/arbengine/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

// NewOpportunityStore creates a new OpportunityStore.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// Insert records a detected opportunity. Legs are not persisted; the
// execution record carries the fills.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO opportunities (id, kind, pairs, venues, expected_profit, profit_pct, required_capital, volume, risk_score, confidence, status, detected_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`,
		opp.ID, string(opp.Kind), opp.Pairs, opp.Venues,
		opp.ExpectedProfit, opp.ProfitPct, opp.RequiredCapital, opp.Volume,
		opp.RiskScore, opp.Confidence, string(opp.Status), opp.DetectedAt, opp.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity: %w", err)
	}
	return nil
}

// UpdateStatus records an opportunity's lifecycle transition.
func (s *OpportunityStore) UpdateStatus(ctx context.Context, id string, status domain.OpportunityStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE opportunities SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update opportunity status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListRecent returns the most recently detected opportunities.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, pairs, venues, expected_profit, profit_pct, required_capital, volume, risk_score, confidence, status, detected_at, expires_at
		FROM opportunities ORDER BY detected_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()
	return scanOpportunities(rows)
}

// ListBefore returns all opportunities detected strictly before the cutoff,
// oldest first. Used by the archiver.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, pairs, venues, expected_profit, profit_pct, required_capital, volume, risk_score, confidence, status, detected_at, expires_at
		FROM opportunities WHERE detected_at < $1 ORDER BY detected_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before: %w", err)
	}
	defer rows.Close()
	return scanOpportunities(rows)
}

func scanOpportunities(rows pgx.Rows) ([]domain.ArbitrageOpportunity, error) {
	var list []domain.ArbitrageOpportunity
	for rows.Next() {
		var opp domain.ArbitrageOpportunity
		var kind, status string
		if err := rows.Scan(&opp.ID, &kind, &opp.Pairs, &opp.Venues,
			&opp.ExpectedProfit, &opp.ProfitPct, &opp.RequiredCapital, &opp.Volume,
			&opp.RiskScore, &opp.Confidence, &status, &opp.DetectedAt, &opp.ExpiresAt); err != nil {
			return nil, err
		}
		opp.Kind = domain.StrategyKind(kind)
		opp.Status = domain.OpportunityStatus(status)
		list = append(list, opp)
	}
	return list, rows.Err()
}
