package ap

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

// Handler exposes payables endpoints.
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

// MountRoutes registers payables routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/vendors", h.listVendors)
	r.Post("/vendors", h.createVendor)
	r.Get("/vendors/{id}", h.getVendor)
	r.Put("/vendors/{id}", h.updateVendor)
	r.Get("/bills", h.listBills)
	r.Post("/bills", h.createBill)
	r.Get("/bills/{id}", h.getBill)
	r.Post("/bills/{id}/open", h.openBill)
	r.Post("/bills/{id}/void", h.voidBill)
	r.Get("/payments", h.listPayments)
	r.Post("/payments", h.createPayment)
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

type vendorRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=160"`
	Phone string `json:"phone" validate:"max=32"`
	Email string `json:"email" validate:"omitempty,email"`
}

func (h *Handler) createVendor(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req vendorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	vendor, err := h.service.CreateVendor(r.Context(), actor.OrgID, VendorInput(req))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, vendor)
}

func (h *Handler) updateVendor(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req vendorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	vendor, err := h.service.UpdateVendor(r.Context(), actor.OrgID, id, VendorInput(req))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

func (h *Handler) getVendor(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	vendor, err := h.service.GetVendor(r.Context(), actor.OrgID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

func (h *Handler) listVendors(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	vendors, pagination, err := h.service.ListVendors(r.Context(), actor.OrgID, q.Get("q"), page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vendors": vendors, "pagination": pagination})
}

type createBillRequest struct {
	VendorID int64           `json:"vendorId" validate:"required"`
	Number   string          `json:"number"`
	BillDate time.Time       `json:"billDate" validate:"required"`
	DueDate  time.Time       `json:"dueDate" validate:"required"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
}

func (h *Handler) createBill(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req createBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	bill, err := h.service.CreateBill(r.Context(), actor.OrgID, BillInput{
		VendorID: req.VendorID,
		Number:   req.Number,
		BillDate: req.BillDate,
		DueDate:  req.DueDate,
		Subtotal: req.Subtotal,
		Tax:      req.Tax,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bill)
}

func (h *Handler) getBill(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	bill, err := h.service.GetBill(r.Context(), actor.OrgID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) listBills(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	q := r.URL.Query()
	vendorID, _ := strconv.ParseInt(q.Get("vendorId"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	bills, pagination, err := h.service.ListBills(r.Context(), actor.OrgID, BillFilter{
		VendorID: vendorID,
		Status:   BillStatus(q.Get("status")),
		Page:     page,
		PerPage:  perPage,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"bills": bills, "pagination": pagination})
}

func (h *Handler) openBill(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	bill, err := h.service.OpenBill(r.Context(), actor.OrgID, id, actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) voidBill(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	bill, err := h.service.VoidBill(r.Context(), actor.OrgID, id, actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

type createPaymentRequest struct {
	VendorID int64           `json:"vendorId" validate:"required"`
	BillID   *int64          `json:"billId"`
	Amount   decimal.Decimal `json:"amount"`
	PaidAt   time.Time       `json:"paidAt"`
	Method   string          `json:"method" validate:"required"`
	Ref      string          `json:"ref"`
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	payment, err := h.service.CreatePayment(r.Context(), actor.OrgID, PaymentInput{
		VendorID: req.VendorID,
		BillID:   req.BillID,
		Amount:   req.Amount,
		PaidAt:   req.PaidAt,
		Method:   mappings.PaymentMethod(req.Method),
		Ref:      req.Ref,
	}, actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	q := r.URL.Query()
	vendorID, _ := strconv.ParseInt(q.Get("vendorId"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	payments, pagination, err := h.service.ListPayments(r.Context(), actor.OrgID, vendorID, page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": payments, "pagination": pagination})
}

type createCreditNoteRequest struct {
	VendorID int64           `json:"vendorId" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
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
	note, err := h.service.CreateCreditNote(r.Context(), actor.OrgID, req.VendorID, req.Amount, actor.UserID)
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
	vendorID, _ := strconv.ParseInt(q.Get("vendorId"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	notes, pagination, err := h.service.ListCreditNotes(r.Context(), actor.OrgID, vendorID, page, perPage)
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
		BillID int64           `json:"billId"`
		Amount decimal.Decimal `json:"amount"`
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
		allocs = append(allocs, AllocationInput{BillID: a.BillID, Amount: a.Amount})
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
