package ar

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

// Ledger is the journal surface AR posts through.
type Ledger interface {
	PostDirect(ctx context.Context, in journal.PostingInput) (journal.JournalEntry, error)
	Reverse(ctx context.Context, in journal.ReverseInput) (journal.JournalEntry, error)
}

// AccountResolver resolves org-configured GL accounts by mapping key.
type AccountResolver interface {
	Resolve(ctx context.Context, orgID int64, key string) (int64, error)
	ResolveMethod(ctx context.Context, orgID int64, method mappings.PaymentMethod) (int64, error)
}

// CustomerInput carries customer create/update fields.
type CustomerInput struct {
	Name  string `validate:"required,min=2,max=160"`
	Phone string `validate:"max=32"`
	Email string `validate:"omitempty,email"`
}

// InvoiceInput carries a new DRAFT invoice.
type InvoiceInput struct {
	CustomerID  int64
	Number      string
	InvoiceDate time.Time
	DueDate     time.Time
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
}

// ReceiptInput carries a customer receipt request.
type ReceiptInput struct {
	CustomerID int64
	InvoiceID  *int64
	Amount     decimal.Decimal
	ReceivedAt time.Time
	Method     mappings.PaymentMethod
	Ref        string
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	CustomerID int64
	Status     InvoiceStatus
	Page       int
	PerPage    int
}

// Service implements the receivables ledger, the debit-side mirror of
// payables: invoices raise AR against revenue, receipts collect cash
// against AR. Invoice rows serialize concurrent receipts the same way
// bill rows serialize payments.
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

func (s *Service) CreateCustomer(ctx context.Context, orgID int64, in CustomerInput) (Customer, error) {
	if in.Name == "" {
		return Customer{}, fmt.Errorf("customer name is required: %w", shared.ErrValidation)
	}
	return s.repo.InsertCustomer(ctx, Customer{
		OrgID:    orgID,
		Name:     in.Name,
		Phone:    in.Phone,
		Email:    in.Email,
		IsActive: true,
	})
}

func (s *Service) UpdateCustomer(ctx context.Context, orgID, customerID int64, in CustomerInput) (Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, orgID, customerID)
	if err != nil {
		return Customer{}, err
	}
	if in.Name == "" {
		return Customer{}, fmt.Errorf("customer name is required: %w", shared.ErrValidation)
	}
	customer.Name, customer.Phone, customer.Email = in.Name, in.Phone, in.Email
	return s.repo.UpdateCustomer(ctx, customer)
}

func (s *Service) GetCustomer(ctx context.Context, orgID, customerID int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, orgID, customerID)
}

func (s *Service) ListCustomers(ctx context.Context, orgID int64, search string, page, perPage int) ([]Customer, shared.Pagination, error) {
	return s.repo.ListCustomers(ctx, orgID, search, page, perPage)
}

// CreateInvoice records a DRAFT invoice with no GL effect.
func (s *Service) CreateInvoice(ctx context.Context, orgID int64, in InvoiceInput) (CustomerInvoice, error) {
	if in.CustomerID == 0 {
		return CustomerInvoice{}, fmt.Errorf("customer is required: %w", shared.ErrValidation)
	}
	if in.InvoiceDate.IsZero() || in.DueDate.IsZero() {
		return CustomerInvoice{}, fmt.Errorf("invoice date and due date are required: %w", shared.ErrValidation)
	}
	if in.Subtotal.IsNegative() || in.Tax.IsNegative() {
		return CustomerInvoice{}, fmt.Errorf("amounts must be non-negative: %w", shared.ErrValidation)
	}
	total := in.Subtotal.Add(in.Tax)
	if !total.IsPositive() {
		return CustomerInvoice{}, fmt.Errorf("invoice total must be positive: %w", shared.ErrValidation)
	}
	if _, err := s.repo.GetCustomer(ctx, orgID, in.CustomerID); err != nil {
		return CustomerInvoice{}, err
	}
	return s.repo.InsertInvoice(ctx, CustomerInvoice{
		OrgID:       orgID,
		CustomerID:  in.CustomerID,
		Number:      in.Number,
		InvoiceDate: in.InvoiceDate,
		DueDate:     in.DueDate,
		Subtotal:    in.Subtotal,
		Tax:         in.Tax,
		Total:       total,
		Status:      InvoiceStatusDraft,
	})
}

func (s *Service) GetInvoice(ctx context.Context, orgID, invoiceID int64) (CustomerInvoice, error) {
	return s.repo.GetInvoice(ctx, orgID, invoiceID)
}

func (s *Service) ListInvoices(ctx context.Context, orgID int64, filter InvoiceFilter) ([]CustomerInvoice, shared.Pagination, error) {
	return s.repo.ListInvoices(ctx, orgID, filter)
}

// OpenInvoice posts the receivable (Debit AR control, Credit revenue) and
// flips the invoice DRAFT -> OPEN.
func (s *Service) OpenInvoice(ctx context.Context, orgID, invoiceID, userID int64) (CustomerInvoice, error) {
	arControlID, err := s.accounts.Resolve(ctx, orgID, mappings.KeyARControl)
	if err != nil {
		return CustomerInvoice{}, err
	}
	revenueID, err := s.accounts.Resolve(ctx, orgID, mappings.KeySalesRevenue)
	if err != nil {
		return CustomerInvoice{}, err
	}
	var invoice CustomerInvoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoiceForUpdate(ctx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if current.Status != InvoiceStatusDraft {
			return fmt.Errorf("invoice %d is %s, only drafts can be opened: %w", invoiceID, current.Status, shared.ErrInvalidState)
		}
		entry, err := s.ledger.PostDirect(ctx, journal.PostingInput{
			OrgID:    orgID,
			Date:     current.InvoiceDate,
			Memo:     fmt.Sprintf("Customer invoice %s", invoiceLabel(current)),
			Source:   journal.SourceCustomerInvoice,
			SourceID: strconv.FormatInt(current.ID, 10),
			Lines: []journal.LineInput{
				{AccountID: arControlID, Debit: current.Total},
				{AccountID: revenueID, Credit: current.Total},
			},
			UserID: userID,
		})
		if err != nil {
			return err
		}
		now := s.now()
		current.Status = InvoiceStatusOpen
		current.JournalEntryID = &entry.ID
		current.OpenedBy = &userID
		current.OpenedAt = &now
		invoice, err = tx.UpdateInvoice(ctx, current)
		return err
	})
	if err != nil {
		return CustomerInvoice{}, err
	}
	s.recordAudit(ctx, orgID, userID, "ar.invoice.open", invoice.ID, map[string]any{"total": invoice.Total.StringFixed(2)})
	return invoice, nil
}

// VoidInvoice reverses the opening entry (when one exists) and marks the
// invoice VOID. Receipts already collected keep their GL entries.
func (s *Service) VoidInvoice(ctx context.Context, orgID, invoiceID, userID int64) (CustomerInvoice, error) {
	var invoice CustomerInvoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoiceForUpdate(ctx, orgID, invoiceID)
		if err != nil {
			return err
		}
		switch current.Status {
		case InvoiceStatusOpen, InvoiceStatusPartiallyPaid, InvoiceStatusPaid:
		default:
			return fmt.Errorf("invoice %d is %s and cannot be voided: %w", invoiceID, current.Status, shared.ErrInvalidState)
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
		current.Status = InvoiceStatusVoid
		invoice, err = tx.UpdateInvoice(ctx, current)
		return err
	})
	if err != nil {
		return CustomerInvoice{}, err
	}
	s.recordAudit(ctx, orgID, userID, "ar.invoice.void", invoice.ID, nil)
	return invoice, nil
}

// CreateReceipt collects money from a customer. When tied to an invoice it
// holds the invoice row FOR UPDATE across the outstanding check, the posting,
// and the paidAmount update.
func (s *Service) CreateReceipt(ctx context.Context, orgID int64, in ReceiptInput, userID int64) (CustomerReceipt, error) {
	if !in.Amount.IsPositive() {
		return CustomerReceipt{}, fmt.Errorf("receipt amount must be positive: %w", shared.ErrValidation)
	}
	if in.CustomerID == 0 {
		return CustomerReceipt{}, fmt.Errorf("customer is required: %w", shared.ErrValidation)
	}
	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	arControlID, err := s.accounts.Resolve(ctx, orgID, mappings.KeyARControl)
	if err != nil {
		return CustomerReceipt{}, err
	}
	cashID, err := s.accounts.ResolveMethod(ctx, orgID, in.Method)
	if err != nil {
		return CustomerReceipt{}, err
	}
	var receipt CustomerReceipt
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var invoice *CustomerInvoice
		if in.InvoiceID != nil {
			current, err := tx.GetInvoiceForUpdate(ctx, orgID, *in.InvoiceID)
			if err != nil {
				return err
			}
			if current.Status != InvoiceStatusOpen && current.Status != InvoiceStatusPartiallyPaid {
				return fmt.Errorf("invoice %d is %s and cannot accept receipt: %w", current.ID, current.Status, shared.ErrInvalidState)
			}
			if in.Amount.Sub(current.Outstanding()).GreaterThan(shared.Tolerance) {
				return &shared.InsufficientBalanceError{Outstanding: current.Outstanding(), Requested: in.Amount}
			}
			invoice = &current
		}
		inserted, err := tx.InsertReceipt(ctx, CustomerReceipt{
			OrgID:      orgID,
			CustomerID: in.CustomerID,
			InvoiceID:  in.InvoiceID,
			Amount:     in.Amount,
			ReceivedAt: receivedAt,
			Method:     string(in.Method),
			Ref:        in.Ref,
			CreatedBy:  userID,
		})
		if err != nil {
			return err
		}
		entry, err := s.ledger.PostDirect(ctx, journal.PostingInput{
			OrgID:    orgID,
			Date:     receivedAt,
			Memo:     fmt.Sprintf("Customer receipt %d", inserted.ID),
			Source:   journal.SourceCustomerReceipt,
			SourceID: strconv.FormatInt(inserted.ID, 10),
			Lines: []journal.LineInput{
				{AccountID: cashID, Debit: in.Amount},
				{AccountID: arControlID, Credit: in.Amount},
			},
			UserID: userID,
		})
		if err != nil {
			return err
		}
		if err := tx.LinkReceiptEntry(ctx, inserted.ID, entry.ID); err != nil {
			return err
		}
		inserted.JournalEntryID = entry.ID
		if invoice != nil {
			invoice.PaidAmount = invoice.PaidAmount.Add(in.Amount)
			invoice.Status = deriveInvoiceStatus(invoice.PaidAmount, invoice.Total)
			if _, err := tx.UpdateInvoice(ctx, *invoice); err != nil {
				return err
			}
		}
		receipt = inserted
		return nil
	})
	if err != nil {
		return CustomerReceipt{}, err
	}
	s.recordAudit(ctx, orgID, userID, "ar.receipt.create", receipt.ID, map[string]any{
		"amount": receipt.Amount.StringFixed(2),
		"method": receipt.Method,
	})
	return receipt, nil
}

func (s *Service) ListReceipts(ctx context.Context, orgID, customerID int64, page, perPage int) ([]CustomerReceipt, shared.Pagination, error) {
	return s.repo.ListReceipts(ctx, orgID, customerID, page, perPage)
}

// Aging buckets outstanding OPEN and PARTIALLY_PAID invoices by days overdue.
func (s *Service) Aging(ctx context.Context, orgID int64, asOf time.Time) (Aging, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	invoices, err := s.repo.ListOutstandingInvoices(ctx, orgID)
	if err != nil {
		return Aging{}, err
	}
	var aging Aging
	for _, invoice := range invoices {
		overdue := int(asOf.Sub(invoice.DueDate).Hours() / 24)
		aging.add(overdue, invoice.Outstanding())
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
		Entity:   "ar",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func invoiceLabel(i CustomerInvoice) string {
	if i.Number != "" {
		return i.Number
	}
	return strconv.FormatInt(i.ID, 10)
}
