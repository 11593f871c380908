package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridianpos/meridian/internal/shared"
)

func TestActorMiddleware(t *testing.T) {
	var got shared.Actor
	handler := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/journal/entries", nil)
	req.Header.Set("X-Org-ID", "3")
	req.Header.Set("X-User-ID", "17")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, int64(3), got.OrgID)
	require.Equal(t, int64(17), got.UserID)
}

func TestActorMiddlewareRejectsMissingOrg(t *testing.T) {
	handler := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without an org")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/journal/entries", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
