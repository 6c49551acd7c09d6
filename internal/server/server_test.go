package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ballast/internal/modules/ledger"
	ledgerhandlers "github.com/aristath/ballast/internal/modules/ledger/handlers"
)

func TestHealthEndpoint(t *testing.T) {
	s := New(Config{Log: zerolog.Nop(), Port: 0})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(Config{Log: zerolog.Nop(), Port: 0})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestModuleRoutesMounted(t *testing.T) {
	log := zerolog.Nop()
	ledg := ledger.New(nil, log)
	s := New(Config{
		Log:            log,
		Port:           0,
		LedgerHandlers: ledgerhandlers.NewHandler(ledg, log),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/ledger/pf1/AAPL/state", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
