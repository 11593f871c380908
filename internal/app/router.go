package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridianpos/meridian/internal/accounts"
	"github.com/meridianpos/meridian/internal/ap"
	"github.com/meridianpos/meridian/internal/ar"
	"github.com/meridianpos/meridian/internal/bankrec"
	"github.com/meridianpos/meridian/internal/journal"
	"github.com/meridianpos/meridian/internal/mappings"
	"github.com/meridianpos/meridian/internal/observability"
	"github.com/meridianpos/meridian/internal/periods"
	"github.com/meridianpos/meridian/internal/posting"
	"github.com/meridianpos/meridian/internal/reports"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AccountsHandler *accounts.Handler
	PeriodsHandler  *periods.Handler
	JournalHandler  *journal.Handler
	MappingsHandler *mappings.Handler
	APHandler       *ap.Handler
	ARHandler       *ar.Handler
	PostingHandler  *posting.Handler
	BankRecHandler  *bankrec.Handler
	ReportsHandler  *reports.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	// Everything below requires a resolved actor.
	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware)
		if params.AccountsHandler != nil {
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
		}
		if params.PeriodsHandler != nil {
			r.Route("/periods", params.PeriodsHandler.MountRoutes)
		}
		if params.JournalHandler != nil {
			r.Route("/journal", params.JournalHandler.MountRoutes)
		}
		if params.MappingsHandler != nil {
			r.Route("/mappings", params.MappingsHandler.MountRoutes)
		}
		if params.APHandler != nil {
			r.Route("/ap", params.APHandler.MountRoutes)
		}
		if params.ARHandler != nil {
			r.Route("/ar", params.ARHandler.MountRoutes)
		}
		if params.PostingHandler != nil {
			r.Route("/posting", params.PostingHandler.MountRoutes)
		}
		if params.BankRecHandler != nil {
			r.Route("/bankrec", params.BankRecHandler.MountRoutes)
		}
		if params.ReportsHandler != nil {
			r.Route("/reports", params.ReportsHandler.MountRoutes)
		}
	})

	return r
}
