package journal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridianpos/meridian/internal/platform/httpx"
	"github.com/meridianpos/meridian/internal/shared"
)

// Handler exposes journal entry endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.createDraft)
	r.Get("/{id}", h.get)
	r.Post("/{id}/post", h.post)
	r.Post("/{id}/reverse", h.reverse)
}

type lineRequest struct {
	AccountID int64           `json:"accountId" validate:"required"`
	BranchID  *int64          `json:"branchId"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

type createDraftRequest struct {
	Date     time.Time     `json:"date" validate:"required"`
	Memo     string        `json:"memo"`
	BranchID *int64        `json:"branchId"`
	Lines    []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type reverseRequest struct {
	Date *time.Time `json:"date"`
}

func toLineInputs(lines []lineRequest) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{AccountID: line.AccountID, BranchID: line.BranchID, Debit: line.Debit, Credit: line.Credit})
	}
	return out
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req createDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.CreateDraft(r.Context(), DraftInput{
		OrgID:     actor.OrgID,
		BranchID:  req.BranchID,
		Date:      req.Date,
		Memo:      req.Memo,
		Lines:     toLineInputs(req.Lines),
		CreatedBy: actor.UserID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	entry, err := h.service.Post(r.Context(), actor.OrgID, id, actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req reverseRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
			return
		}
	}
	entry, err := h.service.Reverse(r.Context(), ReverseInput{
		OrgID:   actor.OrgID,
		EntryID: id,
		UserID:  actor.UserID,
		Date:    req.Date,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	entry, err := h.service.GetEntry(r.Context(), actor.OrgID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	query := r.URL.Query()
	filter := ListFilter{
		Source: Source(query.Get("source")),
		Status: EntryStatus(query.Get("status")),
	}
	if v := query.Get("from"); v != "" {
		if from, err := time.Parse("2006-01-02", v); err == nil {
			filter.From = &from
		}
	}
	if v := query.Get("to"); v != "" {
		if to, err := time.Parse("2006-01-02", v); err == nil {
			filter.To = &to
		}
	}
	filter.Page, _ = strconv.Atoi(query.Get("page"))
	filter.PerPage, _ = strconv.Atoi(query.Get("per_page"))

	entries, page, err := h.service.List(r.Context(), actor.OrgID, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries, "pagination": page})
}
