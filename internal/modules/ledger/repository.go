package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// entryColumns is the list of columns for the ledger_entries table.
// Column order must match the scan calls below.
const entryColumns = `seq, portfolio_id, symbol, reservation_id, qty, status, created_at`

// Repository persists ledger entries in the ledger database. The table is
// append-only: rows are inserted with the sequence number the in-memory log
// assigned and never updated or deleted.
type Repository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// Compile-time check that Repository implements EntryStore.
var _ EntryStore = (*Repository)(nil)

// NewRepository creates a new ledger entry repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "ledger").Logger(),
	}
}

// Append inserts one entry
func (r *Repository) Append(entry Entry) error {
	query := `
		INSERT INTO ledger_entries
		(seq, portfolio_id, symbol, reservation_id, qty, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.ledgerDB.Exec(query,
		entry.Seq,
		entry.PortfolioID,
		entry.Symbol,
		entry.ReservationID,
		entry.Qty,
		string(entry.Status),
		entry.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return nil
}

// LoadAll retrieves every entry in sequence order, for replay at startup
func (r *Repository) LoadAll() ([]Entry, error) {
	query := "SELECT " + entryColumns + " FROM ledger_entries ORDER BY seq ASC"

	rows, err := r.ledgerDB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger entries: %w", err)
	}
	defer rows.Close()

	return r.scanEntries(rows)
}

// GetRange retrieves the most recent entries for a key, newest first
func (r *Repository) GetRange(portfolioID, symbol string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + entryColumns + ` FROM ledger_entries
		WHERE portfolio_id = ? AND symbol = ?
		ORDER BY seq DESC
		LIMIT ?
	`

	rows, err := r.ledgerDB.Query(query, portfolioID, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	defer rows.Close()

	return r.scanEntries(rows)
}

func (r *Repository) scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var status string
		var createdAt int64
		if err := rows.Scan(&e.Seq, &e.PortfolioID, &e.Symbol, &e.ReservationID, &e.Qty, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Status = Status(status)
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return entries, nil
}
