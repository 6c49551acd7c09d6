// Package ledger implements the trade reservation ledger: an append-only
// per-(portfolio, symbol) log of intent-to-trade and fill events.
//
// Every order submission is bracketed by a reservation. Reserve appends a
// "reserved" entry and hands back a key; the key must be resolved exactly
// once, either by Commit (order filled) or Cancel (order failed or aborted).
// A reservation left unresolved permanently biases free float and is treated
// as a leak.
//
// Derived quantities are never stored. They are computed from the ordered
// entry log:
//
//	filled    = sum of qty over "filled" entries
//	reserved  = shares claimed by outstanding sell reservations
//	freeFloat = filled - reserved
//
// Sell reservations claim owned shares and reduce free float; buy
// reservations claim buying power and are visible through the projected
// position instead. State is partitioned per (portfolio, symbol) stream, so
// independent keys never contend; operations on the same key are serialized
// by the stream's append lock, which is what gives entries their strict
// per-key ordering.
package ledger

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/ballast/internal/domain"
)

// Status classifies a ledger entry.
type Status string

const (
	// StatusReserved marks an intent-to-trade claim made before submission.
	StatusReserved Status = "reserved"
	// StatusReleased marks the resolution of a reservation. It compensates
	// the matching reserved entry without ever recording a fill.
	StatusReleased Status = "released"
	// StatusFilled records a confirmed fill.
	StatusFilled Status = "filled"
)

// Entry is one immutable ledger record.
type Entry struct {
	Seq           int64     `json:"seq"`
	PortfolioID   string    `json:"portfolio_id"`
	Symbol        string    `json:"symbol"`
	ReservationID string    `json:"reservation_id,omitempty"`
	Qty           float64   `json:"qty"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// ReservationKey is the opaque handle returned by Reserve. It is used exactly
// once, by either Commit or Cancel.
type ReservationKey struct {
	id          string
	portfolioID string
	symbol      string
	qty         float64
}

// PortfolioID returns the portfolio the reservation belongs to.
func (k ReservationKey) PortfolioID() string { return k.portfolioID }

// Symbol returns the symbol the reservation belongs to.
func (k ReservationKey) Symbol() string { return k.symbol }

// Qty returns the signed quantity that was reserved.
func (k ReservationKey) Qty() float64 { return k.qty }

// EntryStore persists entries as they are appended. The in-memory log remains
// the source of truth for ordering; the store is the durable audit trail.
type EntryStore interface {
	Append(entry Entry) error
}

type streamKey struct {
	portfolioID string
	symbol      string
}

// stream is the single-writer-per-key log segment for one (portfolio, symbol).
type stream struct {
	mu      sync.Mutex
	entries []Entry
	filled  float64
	pending map[string]float64 // reservation id -> outstanding signed qty
}

func newStream() *stream {
	return &stream{pending: make(map[string]float64)}
}

// reservedShares is the share count claimed by outstanding sell reservations.
func (s *stream) reservedShares() float64 {
	var claimed float64
	for _, qty := range s.pending {
		if qty < 0 {
			claimed += -qty
		}
	}
	return claimed
}

func (s *stream) pendingQty() float64 {
	var total float64
	for _, qty := range s.pending {
		total += qty
	}
	return total
}

// Ledger is the process-wide reservation ledger. Safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	streams map[streamKey]*stream
	nextSeq atomic.Int64
	store   EntryStore
	now     func() time.Time
	log     zerolog.Logger
}

// Compile-time check that Ledger satisfies the read interface.
var _ domain.LedgerReader = (*Ledger)(nil)

// New creates an empty ledger. store may be nil for purely in-memory use.
func New(store EntryStore, log zerolog.Logger) *Ledger {
	return &Ledger{
		streams: make(map[streamKey]*stream),
		store:   store,
		now:     time.Now,
		log:     log.With().Str("service", "ledger").Logger(),
	}
}

// Restore rebuilds ledger state by replaying persisted entries in sequence
// order. It must be called before the ledger takes writes.
func (l *Ledger) Restore(entries []Entry) {
	var maxSeq int64
	for _, e := range entries {
		s := l.stream(e.PortfolioID, e.Symbol)
		s.mu.Lock()
		s.apply(e)
		s.mu.Unlock()
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
	}
	l.nextSeq.Store(maxSeq)

	leaked := 0
	l.mu.RLock()
	for _, s := range l.streams {
		s.mu.Lock()
		leaked += len(s.pending)
		s.mu.Unlock()
	}
	l.mu.RUnlock()

	l.log.Info().
		Int("entries", len(entries)).
		Int64("last_seq", maxSeq).
		Int("unresolved_reservations", leaked).
		Msg("Ledger restored from store")

	if leaked > 0 {
		l.log.Warn().
			Int("count", leaked).
			Msg("Unresolved reservations found during replay - free float is biased until they are cancelled")
	}
}

// Reserve appends a reserved entry for the signed quantity and returns the
// key used to later commit or cancel it. No validation happens here; that is
// the risk guard's job.
func (l *Ledger) Reserve(portfolioID, symbol string, qty float64) ReservationKey {
	key := ReservationKey{
		id:          uuid.NewString(),
		portfolioID: portfolioID,
		symbol:      symbol,
		qty:         qty,
	}

	s := l.stream(portfolioID, symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	l.append(s, Entry{
		PortfolioID:   portfolioID,
		Symbol:        symbol,
		ReservationID: key.id,
		Qty:           qty,
		Status:        StatusReserved,
	})

	l.log.Debug().
		Str("portfolio", portfolioID).
		Str("symbol", symbol).
		Float64("qty", qty).
		Str("reservation", key.id).
		Msg("Reserved")

	return key
}

// Commit resolves the reservation and records a fill for qty. The fill
// quantity may differ from the reservation when the broker partially fills.
func (l *Ledger) Commit(key ReservationKey, qty float64) error {
	s := l.stream(key.portfolioID, key.symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	reservedQty, ok := s.pending[key.id]
	if !ok {
		return fmt.Errorf("commit of unknown or already resolved reservation %s for %s/%s: %w",
			key.id, key.portfolioID, key.symbol, domain.ErrLedgerInconsistency)
	}

	l.append(s, Entry{
		PortfolioID:   key.portfolioID,
		Symbol:        key.symbol,
		ReservationID: key.id,
		Qty:           reservedQty,
		Status:        StatusReleased,
	})
	l.append(s, Entry{
		PortfolioID:   key.portfolioID,
		Symbol:        key.symbol,
		ReservationID: key.id,
		Qty:           qty,
		Status:        StatusFilled,
	})

	l.log.Info().
		Str("portfolio", key.portfolioID).
		Str("symbol", key.symbol).
		Float64("qty", qty).
		Str("reservation", key.id).
		Msg("Reservation committed")

	return nil
}

// Cancel resolves the reservation with a compensating entry, removing its
// effect on free float without recording a fill. It must be invoked whenever
// a reserved order fails to reach the broker or is rejected.
func (l *Ledger) Cancel(key ReservationKey, qty float64) error {
	s := l.stream(key.portfolioID, key.symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	reservedQty, ok := s.pending[key.id]
	if !ok {
		return fmt.Errorf("cancel of unknown or already resolved reservation %s for %s/%s: %w",
			key.id, key.portfolioID, key.symbol, domain.ErrLedgerInconsistency)
	}

	l.append(s, Entry{
		PortfolioID:   key.portfolioID,
		Symbol:        key.symbol,
		ReservationID: key.id,
		Qty:           reservedQty,
		Status:        StatusReleased,
	})

	l.log.Info().
		Str("portfolio", key.portfolioID).
		Str("symbol", key.symbol).
		Float64("qty", qty).
		Str("reservation", key.id).
		Msg("Reservation cancelled")

	return nil
}

// CurrentPosition returns the sum of filled entries for the key.
func (l *Ledger) CurrentPosition(portfolioID, symbol string) float64 {
	s := l.stream(portfolioID, symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filled
}

// Reserved returns the share count claimed by outstanding sell reservations.
func (l *Ledger) Reserved(portfolioID, symbol string) float64 {
	s := l.stream(portfolioID, symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reservedShares()
}

// FreeFloat returns filled minus reserved for the key.
func (l *Ledger) FreeFloat(portfolioID, symbol string) float64 {
	s := l.stream(portfolioID, symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filled - s.reservedShares()
}

// ProjectedPosition returns the position the key would reach if every
// outstanding reservation were to fill. The risk guard validates against
// this, so concurrent rebalances of the same symbol see each other's
// in-flight claims.
func (l *Ledger) ProjectedPosition(portfolioID, symbol string) float64 {
	s := l.stream(portfolioID, symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filled + s.pendingQty()
}

// Entries returns a copy of the key's entries in append order. limit <= 0
// returns everything.
func (l *Ledger) Entries(portfolioID, symbol string, limit int) []Entry {
	s := l.stream(portfolioID, symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// stream returns the log segment for a key, creating it on first use.
func (l *Ledger) stream(portfolioID, symbol string) *stream {
	key := streamKey{portfolioID: portfolioID, symbol: symbol}

	l.mu.RLock()
	s, ok := l.streams[key]
	l.mu.RUnlock()
	if ok {
		return s
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok = l.streams[key]; !ok {
		s = newStream()
		l.streams[key] = s
	}
	return s
}

// append assigns a sequence number, applies the entry to the stream, and
// writes it through to the store. Callers hold the stream lock.
//
// A store failure does not roll back the in-memory append: resolving a
// reservation is the correctness-critical action, while the store is the
// audit trail. The gap is logged instead.
func (l *Ledger) append(s *stream, entry Entry) {
	entry.Seq = l.nextSeq.Add(1)
	entry.CreatedAt = l.now()
	s.apply(entry)

	if l.store != nil {
		if err := l.store.Append(entry); err != nil {
			l.log.Error().
				Err(err).
				Int64("seq", entry.Seq).
				Str("portfolio", entry.PortfolioID).
				Str("symbol", entry.Symbol).
				Str("status", string(entry.Status)).
				Msg("Failed to persist ledger entry - audit trail has a gap")
		}
	}
}

// apply folds one entry into the stream's derived state. Callers hold the
// stream lock.
func (s *stream) apply(entry Entry) {
	s.entries = append(s.entries, entry)

	switch entry.Status {
	case StatusReserved:
		s.pending[entry.ReservationID] = entry.Qty
	case StatusReleased:
		delete(s.pending, entry.ReservationID)
	case StatusFilled:
		s.filled += entry.Qty
	}
}
