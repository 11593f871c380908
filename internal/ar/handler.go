package ar

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridianpos/meridian/internal/mappings"
	"github.com/meridianpos/meridian/internal/platform/httpx"
	"github.com/meridianpos/meridian/internal/shared"
)

// Handler exposes receivables endpoints.
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

// MountRoutes registers receivables routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/customers", h.listCustomers)
	r.Post("/customers", h.createCustomer)
	r.Get("/customers/{id}", h.getCustomer)
	r.Put("/customers/{id}", h.updateCustomer)
	r.Get("/invoices", h.listInvoices)
	r.Post("/invoices", h.createInvoice)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Post("/invoices/{id}/open", h.openInvoice)
	r.Post("/invoices/{id}/void", h.voidInvoice)
	r.Get("/receipts", h.listReceipts)
	r.Post("/receipts", h.createReceipt)
	r.Get("/credit-notes", h.listCreditNotes)
	r.Post("/credit-notes", h.createCreditNote)
	r.Get("/credit-notes/{id}", h.getCreditNote)
	r.Post("/credit-notes/{id}/open", h.openCreditNote)
	r.Post("/credit-notes/{id}/void", h.voidCreditNote)
	r.Post("/credit-notes/{id}/allocations", h.allocate)
	r.Delete("/allocations/{id}", h.deleteAllocation)
	r.Post("/credit-notes/{id}/refunds", h.createCreditRefund)
	r.Get("/aging", h.aging)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

type customerRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=160"`
	Phone string `json:"phone" validate:"max=32"`
	Email string `json:"email" validate:"omitempty,email"`
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	customer, err := h.service.CreateCustomer(r.Context(), actor.OrgID, CustomerInput(req))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	customer, err := h.service.UpdateCustomer(r.Context(), actor.OrgID, id, CustomerInput(req))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	customer, err := h.service.GetCustomer(r.Context(), actor.OrgID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	customers, pagination, err := h.service.ListCustomers(r.Context(), actor.OrgID, q.Get("q"), page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customers": customers, "pagination": pagination})
}

type createInvoiceRequest struct {
	CustomerID  int64           `json:"customerId" validate:"required"`
	Number      string          `json:"number"`
	InvoiceDate time.Time       `json:"invoiceDate" validate:"required"`
	DueDate     time.Time       `json:"dueDate" validate:"required"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	invoice, err := h.service.CreateInvoice(r.Context(), actor.OrgID, InvoiceInput{
		CustomerID:  req.CustomerID,
		Number:      req.Number,
		InvoiceDate: req.InvoiceDate,
		DueDate:     req.DueDate,
		Subtotal:    req.Subtotal,
		Tax:         req.Tax,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	invoice, err := h.service.GetInvoice(r.Context(), actor.OrgID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	q := r.URL.Query()
	customerID, _ := strconv.ParseInt(q.Get("customerId"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	invoices, pagination, err := h.service.ListInvoices(r.Context(), actor.OrgID, InvoiceFilter{
		CustomerID: customerID,
		Status:     InvoiceStatus(q.Get("status")),
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices, "pagination": pagination})
}

func (h *Handler) openInvoice(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	invoice, err := h.service.OpenInvoice(r.Context(), actor.OrgID, id, actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) voidInvoice(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	invoice, err := h.service.VoidInvoice(r.Context(), actor.OrgID, id, actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

type createReceiptRequest struct {
	CustomerID int64           `json:"customerId" validate:"required"`
	InvoiceID  *int64          `json:"invoiceId"`
	Amount     decimal.Decimal `json:"amount"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Method     string          `json:"method" validate:"required"`
	Ref        string          `json:"ref"`
}

func (h *Handler) createReceipt(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req createReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	receipt, err := h.service.CreateReceipt(r.Context(), actor.OrgID, ReceiptInput{
		CustomerID: req.CustomerID,
		InvoiceID:  req.InvoiceID,
		Amount:     req.Amount,
		ReceivedAt: req.ReceivedAt,
		Method:     mappings.PaymentMethod(req.Method),
		Ref:        req.Ref,
	}, actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	q := r.URL.Query()
	customerID, _ := strconv.ParseInt(q.Get("customerId"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	receipts, pagination, err := h.service.ListReceipts(r.Context(), actor.OrgID, customerID, page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"receipts": receipts, "pagination": pagination})
}

type createCreditNoteRequest struct {
	CustomerID int64           `json:"customerId" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
}

func (h *Handler) createCreditNote(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req createCreditNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	note, err := h.service.CreateCreditNote(r.Context(), actor.OrgID, req.CustomerID, req.Amount, actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, note)
}

func (h *Handler) getCreditNote(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	note, err := h.service.GetCreditNote(r.Context(), actor.OrgID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, note)
}

func (h *Handler) listCreditNotes(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	q := r.URL.Query()
	customerID, _ := strconv.ParseInt(q.Get("customerId"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	notes, pagination, err := h.service.ListCreditNotes(r.Context(), actor.OrgID, customerID, page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"creditNotes": notes, "pagination": pagination})
}

func (h *Handler) openCreditNote(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	note, err := h.service.OpenCreditNote(r.Context(), actor.OrgID, id, actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, note)
}

func (h *Handler) voidCreditNote(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	note, err := h.service.VoidCreditNote(r.Context(), actor.OrgID, id, actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, note)
}

type allocateRequest struct {
	Allocations []struct {
		InvoiceID int64           `json:"invoiceId"`
		Amount    decimal.Decimal `json:"amount"`
	} `json:"allocations" validate:"required,min=1"`
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req allocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	allocs := make([]AllocationInput, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		allocs = append(allocs, AllocationInput{InvoiceID: a.InvoiceID, Amount: a.Amount})
	}
	note, err := h.service.Allocate(r.Context(), actor.OrgID, id, actor.UserID, allocs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, note)
}

func (h *Handler) deleteAllocation(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	if err := h.service.DeleteAllocation(r.Context(), actor.OrgID, id, actor.UserID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type creditRefundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"required"`
}

func (h *Handler) createCreditRefund(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req creditRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	refund, err := h.service.CreateCreditRefund(r.Context(), actor.OrgID, id, req.Amount, mappings.PaymentMethod(req.Method), actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, refund)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	asOf := time.Time{}
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
			return
		}
		asOf = parsed
	}
	aging, err := h.service.Aging(r.Context(), actor.OrgID, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, aging)
}
