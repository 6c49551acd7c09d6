// Package targets stores allocation targets: the fraction of portfolio value
// each symbol should hold. The scheduler and the rebalance endpoint both read
// from here.
package targets

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ballast/internal/domain"
)

// Repository handles allocation target database operations.
// Database: config.db (allocation_targets table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new targets repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "targets").Logger(),
	}
}

// GetAll returns every allocation target, ordered for stable rebalance runs.
func (r *Repository) GetAll() ([]domain.Target, error) {
	query := `SELECT portfolio_id, symbol, fraction FROM allocation_targets
		ORDER BY portfolio_id, symbol`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation targets: %w", err)
	}
	defer rows.Close()

	return scanTargets(rows)
}

// GetByPortfolio returns the allocation targets for one portfolio.
func (r *Repository) GetByPortfolio(portfolioID string) ([]domain.Target, error) {
	query := `SELECT portfolio_id, symbol, fraction FROM allocation_targets
		WHERE portfolio_id = ? ORDER BY symbol`

	rows, err := r.db.Query(query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation targets: %w", err)
	}
	defer rows.Close()

	return scanTargets(rows)
}

// Set creates or updates one allocation target.
func (r *Repository) Set(portfolioID, symbol string, fraction float64) error {
	if fraction < 0 || fraction > 1 {
		return fmt.Errorf("fraction %.4f out of range [0, 1]", fraction)
	}

	query := `INSERT INTO allocation_targets (portfolio_id, symbol, fraction, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(portfolio_id, symbol) DO UPDATE SET
			fraction = excluded.fraction,
			updated_at = excluded.updated_at`

	if _, err := r.db.Exec(query, portfolioID, symbol, fraction, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to set allocation target: %w", err)
	}

	r.log.Info().
		Str("portfolio", portfolioID).
		Str("symbol", symbol).
		Float64("fraction", fraction).
		Msg("Allocation target set")

	return nil
}

// Delete removes one allocation target. Deleting a missing target is a no-op.
func (r *Repository) Delete(portfolioID, symbol string) error {
	query := "DELETE FROM allocation_targets WHERE portfolio_id = ? AND symbol = ?"

	if _, err := r.db.Exec(query, portfolioID, symbol); err != nil {
		return fmt.Errorf("failed to delete allocation target: %w", err)
	}

	return nil
}

func scanTargets(rows *sql.Rows) ([]domain.Target, error) {
	var targets []domain.Target
	for rows.Next() {
		var t domain.Target
		if err := rows.Scan(&t.PortfolioID, &t.Symbol, &t.Fraction); err != nil {
			return nil, fmt.Errorf("failed to scan allocation target: %w", err)
		}
		targets = append(targets, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocation targets: %w", err)
	}

	return targets, nil
}
