package reports

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridianpos/meridian/internal/platform/httpx"
	"github.com/meridianpos/meridian/internal/shared"
)

// Handler exposes the read-side report endpoints. Each report also has a
// `format=csv` variant for download.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reporting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.trialBalance)
	r.Get("/profit-and-loss", h.profitAndLoss)
	r.Get("/balance-sheet", h.balanceSheet)
}

func queryDate(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return time.Parse("2006-01-02", raw)
}

func queryBranch(r *http.Request) (*int64, error) {
	raw := r.URL.Query().Get("branch")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	asOf, err := queryDate(r, "asOf", time.Now())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
		return
	}
	branchID, err := queryBranch(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Branch", err.Error())
		return
	}
	report, err := h.service.TrialBalance(r.Context(), actor.OrgID, asOf, branchID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		h.respondCSV(w, "trial-balance.csv", func(wr io.Writer) error {
			return WriteTrialBalanceCSV(wr, report)
		})
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	from, err := queryDate(r, "from", time.Time{})
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid From Date", err.Error())
		return
	}
	to, err := queryDate(r, "to", time.Time{})
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid To Date", err.Error())
		return
	}
	branchID, err := queryBranch(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Branch", err.Error())
		return
	}
	report, err := h.service.ProfitAndLoss(r.Context(), actor.OrgID, from, to, branchID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		h.respondCSV(w, "profit-and-loss.csv", func(wr io.Writer) error {
			return WriteProfitAndLossCSV(wr, report)
		})
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	asOf, err := queryDate(r, "asOf", time.Now())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
		return
	}
	branchID, err := queryBranch(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Branch", err.Error())
		return
	}
	report, err := h.service.BalanceSheet(r.Context(), actor.OrgID, asOf, branchID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		h.respondCSV(w, "balance-sheet.csv", func(wr io.Writer) error {
			return WriteBalanceSheetCSV(wr, report)
		})
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) respondCSV(w http.ResponseWriter, filename string, write func(io.Writer) error) {
	body, err := renderCSV(write)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.CSV(w, filename, body)
}
