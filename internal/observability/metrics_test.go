package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridianpos/meridian/internal/journal"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestLedgerCounters(t *testing.T) {
	m := NewMetrics()
	m.ObservePosting(journal.SourceOrder)
	m.ObservePosting(journal.SourceOrder)
	m.ObserveIdempotentHit(journal.SourceOrder)
	m.ObserveMatch(true)
	m.ObserveMatch(false)

	body := scrape(t, m)
	require.Contains(t, body, `meridian_ledger_postings_total{source="ORDER"} 2`)
	require.Contains(t, body, `meridian_ledger_idempotent_hits_total{source="ORDER"} 1`)
	require.Contains(t, body, `meridian_bankrec_matches_total{mode="auto"} 1`)
	require.Contains(t, body, `meridian_bankrec_matches_total{mode="manual"} 1`)
}

func TestHTTPMiddleware(t *testing.T) {
	m := NewMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/journal/entries", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := scrape(t, m)
	require.True(t, strings.Contains(body, `code="201"`))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObservePosting(journal.SourceManual)
	m.ObserveMatch(true)
	require.NotNil(t, m.Handler())
}
