package ledger

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ballast/internal/database"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:ledger_repo_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Conn().Exec(`
		CREATE TABLE IF NOT EXISTS ledger_entries (
			seq            INTEGER PRIMARY KEY AUTOINCREMENT,
			portfolio_id   TEXT    NOT NULL,
			symbol         TEXT    NOT NULL,
			reservation_id TEXT    NOT NULL DEFAULT '',
			qty            REAL    NOT NULL,
			status         TEXT    NOT NULL,
			created_at     INTEGER NOT NULL
		)
	`)
	require.NoError(t, err)

	return NewRepository(db.Conn(), zerolog.Nop())
}

func TestRepositoryWriteThroughAndReplay(t *testing.T) {
	repo := newTestRepository(t)
	l := New(repo, zerolog.Nop())

	buy := l.Reserve("pf1", "AAPL", 10)
	require.NoError(t, l.Commit(buy, 10))
	sell := l.Reserve("pf1", "AAPL", -4)
	require.NoError(t, l.Cancel(sell, -4))

	persisted, err := repo.LoadAll()
	require.NoError(t, err)
	require.Len(t, persisted, 5)

	replayed := New(nil, zerolog.Nop())
	replayed.Restore(persisted)

	assert.Equal(t, 10.0, replayed.CurrentPosition("pf1", "AAPL"))
	assert.Equal(t, 10.0, replayed.FreeFloat("pf1", "AAPL"))
	assert.Equal(t, 0.0, replayed.Reserved("pf1", "AAPL"))
}

func TestRepositoryGetRangeNewestFirst(t *testing.T) {
	repo := newTestRepository(t)
	l := New(repo, zerolog.Nop())

	key := l.Reserve("pf1", "AAPL", 10)
	require.NoError(t, l.Commit(key, 10))
	other := l.Reserve("pf2", "MSFT", 3)
	require.NoError(t, l.Cancel(other, 3))

	entries, err := repo.GetRange("pf1", "AAPL", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, StatusFilled, entries[0].Status)
	assert.Equal(t, StatusReleased, entries[1].Status)
	assert.Greater(t, entries[0].Seq, entries[1].Seq)

	// Range queries are key-scoped
	foreign, err := repo.GetRange("pf2", "AAPL", 10)
	require.NoError(t, err)
	assert.Empty(t, foreign)
}
