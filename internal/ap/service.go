package ap

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianpos/meridian/internal/journal"
	"github.com/meridianpos/meridian/internal/mappings"
	"github.com/meridianpos/meridian/internal/shared"
)

// Ledger is the journal surface AP posts through. All GL-affecting bill and
// payment transitions go via PostDirect/Reverse; AP never writes lines itself.
type Ledger interface {
	PostDirect(ctx context.Context, in journal.PostingInput) (journal.JournalEntry, error)
	Reverse(ctx context.Context, in journal.ReverseInput) (journal.JournalEntry, error)
}

// AccountResolver resolves org-configured GL accounts by mapping key.
type AccountResolver interface {
	Resolve(ctx context.Context, orgID int64, key string) (int64, error)
	ResolveMethod(ctx context.Context, orgID int64, method mappings.PaymentMethod) (int64, error)
}

// VendorInput carries vendor create/update fields.
type VendorInput struct {
	Name  string `validate:"required,min=2,max=160"`
	Phone string `validate:"max=32"`
	Email string `validate:"omitempty,email"`
}

// BillInput carries a new DRAFT bill.
type BillInput struct {
	VendorID int64
	Number   string
	BillDate time.Time
	DueDate  time.Time
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
}

// PaymentInput carries a vendor payment request.
type PaymentInput struct {
	VendorID int64
	BillID   *int64
	Amount   decimal.Decimal
	PaidAt   time.Time
	Method   mappings.PaymentMethod
	Ref      string
}

// BillFilter narrows bill listings.
type BillFilter struct {
	VendorID int64
	Status   BillStatus
	Page     int
	PerPage  int
}

// Service implements the payables ledger. Bill rows are the serialization
// point: every mutation re-reads the bill FOR UPDATE inside its transaction
// so concurrent payments cannot race past the outstanding check.
type Service struct {
	logger   *slog.Logger
	repo     Repository
	ledger   Ledger
	accounts AccountResolver
	audit    journal.AuditPort
	now      func() time.Time
}

func NewService(logger *slog.Logger, repo Repository, ledger Ledger, accounts AccountResolver, audit journal.AuditPort) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, repo: repo, ledger: ledger, accounts: accounts, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) CreateVendor(ctx context.Context, orgID int64, in VendorInput) (Vendor, error) {
	if in.Name == "" {
		return Vendor{}, fmt.Errorf("vendor name is required: %w", shared.ErrValidation)
	}
	return s.repo.InsertVendor(ctx, Vendor{
		OrgID:    orgID,
		Name:     in.Name,
		Phone:    in.Phone,
		Email:    in.Email,
		IsActive: true,
	})
}

func (s *Service) UpdateVendor(ctx context.Context, orgID, vendorID int64, in VendorInput) (Vendor, error) {
	vendor, err := s.repo.GetVendor(ctx, orgID, vendorID)
	if err != nil {
		return Vendor{}, err
	}
	if in.Name == "" {
		return Vendor{}, fmt.Errorf("vendor name is required: %w", shared.ErrValidation)
	}
	vendor.Name, vendor.Phone, vendor.Email = in.Name, in.Phone, in.Email
	return s.repo.UpdateVendor(ctx, vendor)
}

func (s *Service) GetVendor(ctx context.Context, orgID, vendorID int64) (Vendor, error) {
	return s.repo.GetVendor(ctx, orgID, vendorID)
}

func (s *Service) ListVendors(ctx context.Context, orgID int64, search string, page, perPage int) ([]Vendor, shared.Pagination, error) {
	return s.repo.ListVendors(ctx, orgID, search, page, perPage)
}

// CreateBill records a DRAFT bill. Drafts have no GL effect until opened.
func (s *Service) CreateBill(ctx context.Context, orgID int64, in BillInput) (VendorBill, error) {
	if in.VendorID == 0 {
		return VendorBill{}, fmt.Errorf("vendor is required: %w", shared.ErrValidation)
	}
	if in.BillDate.IsZero() || in.DueDate.IsZero() {
		return VendorBill{}, fmt.Errorf("bill date and due date are required: %w", shared.ErrValidation)
	}
	if in.Subtotal.IsNegative() || in.Tax.IsNegative() {
		return VendorBill{}, fmt.Errorf("amounts must be non-negative: %w", shared.ErrValidation)
	}
	total := in.Subtotal.Add(in.Tax)
	if !total.IsPositive() {
		return VendorBill{}, fmt.Errorf("bill total must be positive: %w", shared.ErrValidation)
	}
	if _, err := s.repo.GetVendor(ctx, orgID, in.VendorID); err != nil {
		return VendorBill{}, err
	}
	return s.repo.InsertBill(ctx, VendorBill{
		OrgID:    orgID,
		VendorID: in.VendorID,
		Number:   in.Number,
		BillDate: in.BillDate,
		DueDate:  in.DueDate,
		Subtotal: in.Subtotal,
		Tax:      in.Tax,
		Total:    total,
		Status:   BillStatusDraft,
	})
}

func (s *Service) GetBill(ctx context.Context, orgID, billID int64) (VendorBill, error) {
	return s.repo.GetBill(ctx, orgID, billID)
}

func (s *Service) ListBills(ctx context.Context, orgID int64, filter BillFilter) ([]VendorBill, shared.Pagination, error) {
	return s.repo.ListBills(ctx, orgID, filter)
}

// OpenBill posts the liability (Debit expense, Credit AP control) and flips
// the bill DRAFT -> OPEN. The posting joins the bill transaction, so the
// entry and the status change commit together, and PostDirect keying on the
// bill id makes a retried open converge on the same entry.
func (s *Service) OpenBill(ctx context.Context, orgID, billID, userID int64) (VendorBill, error) {
	expenseID, err := s.accounts.Resolve(ctx, orgID, mappings.KeyPurchaseExpense)
	if err != nil {
		return VendorBill{}, err
	}
	apControlID, err := s.accounts.Resolve(ctx, orgID, mappings.KeyAPControl)
	if err != nil {
		return VendorBill{}, err
	}
	var bill VendorBill
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBillForUpdate(ctx, orgID, billID)
		if err != nil {
			return err
		}
		if current.Status != BillStatusDraft {
			return fmt.Errorf("bill %d is %s, only drafts can be opened: %w", billID, current.Status, shared.ErrInvalidState)
		}
		entry, err := s.ledger.PostDirect(ctx, journal.PostingInput{
			OrgID:    orgID,
			Date:     current.BillDate,
			Memo:     fmt.Sprintf("Vendor bill %s", billLabel(current)),
			Source:   journal.SourceVendorBill,
			SourceID: strconv.FormatInt(current.ID, 10),
			Lines: []journal.LineInput{
				{AccountID: expenseID, Debit: current.Total},
				{AccountID: apControlID, Credit: current.Total},
			},
			UserID: userID,
		})
		if err != nil {
			return err
		}
		now := s.now()
		current.Status = BillStatusOpen
		current.JournalEntryID = &entry.ID
		current.OpenedBy = &userID
		current.OpenedAt = &now
		bill, err = tx.UpdateBill(ctx, current)
		return err
	})
	if err != nil {
		return VendorBill{}, err
	}
	s.recordAudit(ctx, orgID, userID, "ap.bill.open", bill.ID, map[string]any{"total": bill.Total.StringFixed(2)})
	return bill, nil
}

// VoidBill reverses the opening entry (when one exists) and marks the bill
// VOID. Payments already made keep their own GL entries: the cash moved, and
// voiding only extinguishes the remaining obligation.
func (s *Service) VoidBill(ctx context.Context, orgID, billID, userID int64) (VendorBill, error) {
	var bill VendorBill
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBillForUpdate(ctx, orgID, billID)
		if err != nil {
			return err
		}
		switch current.Status {
		case BillStatusOpen, BillStatusPartiallyPaid, BillStatusPaid:
		default:
			return fmt.Errorf("bill %d is %s and cannot be voided: %w", billID, current.Status, shared.ErrInvalidState)
		}
		if current.JournalEntryID != nil {
			if _, err := s.ledger.Reverse(ctx, journal.ReverseInput{
				OrgID:   orgID,
				EntryID: *current.JournalEntryID,
				UserID:  userID,
			}); err != nil {
				return err
			}
		}
		current.Status = BillStatusVoid
		bill, err = tx.UpdateBill(ctx, current)
		return err
	})
	if err != nil {
		return VendorBill{}, err
	}
	s.recordAudit(ctx, orgID, userID, "ap.bill.void", bill.ID, nil)
	return bill, nil
}

// CreatePayment pays a vendor. When tied to a bill it holds the bill row FOR
// UPDATE across the outstanding check, the posting, and the paidAmount
// update, so two concurrent payments cannot overpay.
func (s *Service) CreatePayment(ctx context.Context, orgID int64, in PaymentInput, userID int64) (VendorPayment, error) {
	if !in.Amount.IsPositive() {
		return VendorPayment{}, fmt.Errorf("payment amount must be positive: %w", shared.ErrValidation)
	}
	if in.VendorID == 0 {
		return VendorPayment{}, fmt.Errorf("vendor is required: %w", shared.ErrValidation)
	}
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	apControlID, err := s.accounts.Resolve(ctx, orgID, mappings.KeyAPControl)
	if err != nil {
		return VendorPayment{}, err
	}
	cashID, err := s.accounts.ResolveMethod(ctx, orgID, in.Method)
	if err != nil {
		return VendorPayment{}, err
	}
	var payment VendorPayment
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var bill *VendorBill
		if in.BillID != nil {
			current, err := tx.GetBillForUpdate(ctx, orgID, *in.BillID)
			if err != nil {
				return err
			}
			if current.Status != BillStatusOpen && current.Status != BillStatusPartiallyPaid {
				return fmt.Errorf("bill %d is %s and cannot accept payment: %w", current.ID, current.Status, shared.ErrInvalidState)
			}
			if in.Amount.Sub(current.Outstanding()).GreaterThan(shared.Tolerance) {
				return &shared.InsufficientBalanceError{Outstanding: current.Outstanding(), Requested: in.Amount}
			}
			bill = &current
		}
		inserted, err := tx.InsertPayment(ctx, VendorPayment{
			OrgID:     orgID,
			VendorID:  in.VendorID,
			BillID:    in.BillID,
			Amount:    in.Amount,
			PaidAt:    paidAt,
			Method:    string(in.Method),
			Ref:       in.Ref,
			CreatedBy: userID,
		})
		if err != nil {
			return err
		}
		entry, err := s.ledger.PostDirect(ctx, journal.PostingInput{
			OrgID:    orgID,
			Date:     paidAt,
			Memo:     fmt.Sprintf("Vendor payment %d", inserted.ID),
			Source:   journal.SourceVendorPayment,
			SourceID: strconv.FormatInt(inserted.ID, 10),
			Lines: []journal.LineInput{
				{AccountID: apControlID, Debit: in.Amount},
				{AccountID: cashID, Credit: in.Amount},
			},
			UserID: userID,
		})
		if err != nil {
			return err
		}
		if err := tx.LinkPaymentEntry(ctx, inserted.ID, entry.ID); err != nil {
			return err
		}
		inserted.JournalEntryID = entry.ID
		if bill != nil {
			bill.PaidAmount = bill.PaidAmount.Add(in.Amount)
			bill.Status = deriveBillStatus(bill.PaidAmount, bill.Total)
			if _, err := tx.UpdateBill(ctx, *bill); err != nil {
				return err
			}
		}
		payment = inserted
		return nil
	})
	if err != nil {
		return VendorPayment{}, err
	}
	s.recordAudit(ctx, orgID, userID, "ap.payment.create", payment.ID, map[string]any{
		"amount": payment.Amount.StringFixed(2),
		"method": payment.Method,
	})
	return payment, nil
}

func (s *Service) ListPayments(ctx context.Context, orgID, vendorID int64, page, perPage int) ([]VendorPayment, shared.Pagination, error) {
	return s.repo.ListPayments(ctx, orgID, vendorID, page, perPage)
}

// Aging buckets outstanding OPEN and PARTIALLY_PAID bills by days overdue as
// of the given date. Bills not yet due land in the first bucket.
func (s *Service) Aging(ctx context.Context, orgID int64, asOf time.Time) (Aging, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	bills, err := s.repo.ListOutstandingBills(ctx, orgID)
	if err != nil {
		return Aging{}, err
	}
	var aging Aging
	for _, bill := range bills {
		overdue := int(asOf.Sub(bill.DueDate).Hours() / 24)
		aging.add(overdue, bill.Outstanding())
	}
	return aging, nil
}

func (s *Service) recordAudit(ctx context.Context, orgID, userID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		OrgID:    orgID,
		ActorID:  userID,
		Action:   action,
		Entity:   "ap",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func billLabel(b VendorBill) string {
	if b.Number != "" {
		return b.Number
	}
	return strconv.FormatInt(b.ID, 10)
}
