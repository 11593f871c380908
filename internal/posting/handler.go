package posting

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianpos/meridian/internal/mappings"
	"github.com/meridianpos/meridian/internal/platform/httpx"
	"github.com/meridianpos/meridian/internal/shared"
)

// Handler accepts operational events from the POS and back office.
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

// MountRoutes registers posting event routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.saleClosed)
	r.Post("/cogs", h.cogsRecognized)
	r.Post("/refunds", h.refundIssued)
	r.Post("/cash-movements", h.cashMovement)
}

type saleClosedRequest struct {
	OrderID    uuid.UUID       `json:"orderId" validate:"required"`
	BranchID   *int64          `json:"branchId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Gross      decimal.Decimal `json:"gross"`
	Method     string          `json:"method" validate:"required"`
}

func (h *Handler) saleClosed(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req saleClosedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.SaleClosed(r.Context(), actor.OrgID, SaleClosedEvent{
		OrderID:    req.OrderID,
		BranchID:   req.BranchID,
		OccurredAt: req.OccurredAt,
		Gross:      req.Gross,
		Method:     mappings.PaymentMethod(req.Method),
	}, actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

type cogsRequest struct {
	OrderID    uuid.UUID       `json:"orderId" validate:"required"`
	BranchID   *int64          `json:"branchId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Cost       decimal.Decimal `json:"cost"`
}

func (h *Handler) cogsRecognized(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req cogsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.COGSRecognized(r.Context(), actor.OrgID, COGSEvent{
		OrderID:    req.OrderID,
		BranchID:   req.BranchID,
		OccurredAt: req.OccurredAt,
		Cost:       req.Cost,
	}, actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

type refundRequest struct {
	RefundID   uuid.UUID       `json:"refundId" validate:"required"`
	BranchID   *int64          `json:"branchId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method" validate:"required"`
}

func (h *Handler) refundIssued(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.RefundIssued(r.Context(), actor.OrgID, RefundEvent{
		RefundID:   req.RefundID,
		BranchID:   req.BranchID,
		OccurredAt: req.OccurredAt,
		Amount:     req.Amount,
		Method:     mappings.PaymentMethod(req.Method),
	}, actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

type cashMovementRequest struct {
	MovementID uuid.UUID       `json:"movementId" validate:"required"`
	BranchID   *int64          `json:"branchId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Kind       string          `json:"kind" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
}

func (h *Handler) cashMovement(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req cashMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.CashMovement(r.Context(), actor.OrgID, CashMovementEvent{
		MovementID: req.MovementID,
		BranchID:   req.BranchID,
		OccurredAt: req.OccurredAt,
		Kind:       CashMovementKind(req.Kind),
		Amount:     req.Amount,
	}, actor.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}
