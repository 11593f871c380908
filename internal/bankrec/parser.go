package bankrec

import (
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianpos/meridian/internal/shared"
)

// Banks disagree on everything: column order, header names, date layout,
// thousands separators, how negatives are written. parseStatement normalizes
// all of it into StatementRows and rejects input that yields no usable rows.
func parseStatement(text string) ([]StatementRow, error) {
	reader := csv.NewReader(strings.NewReader(strings.TrimSpace(text)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("statement is not valid CSV: %w", shared.ErrInvalidFormat)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("statement is empty: %w", shared.ErrInvalidFormat)
	}

	cols := columnIndexes(records[0])
	start := 0
	if cols != nil {
		start = 1
	} else {
		// no recognizable header, assume date, amount, description, reference
		cols = &columns{date: 0, amount: 1, description: 2, ref: 3, debit: -1, credit: -1}
	}

	var rows []StatementRow
	for i := start; i < len(records); i++ {
		record := records[i]
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}
		date, err := parseDate(field(record, cols.date))
		if err != nil {
			return nil, fmt.Errorf("row %d: %v: %w", i+1, err, shared.ErrInvalidFormat)
		}
		amount, err := rowAmount(record, cols)
		if err != nil {
			return nil, fmt.Errorf("row %d: %v: %w", i+1, err, shared.ErrInvalidFormat)
		}
		rows = append(rows, StatementRow{
			Date:        date,
			Amount:      amount,
			Description: field(record, cols.description),
			Ref:         field(record, cols.ref),
		})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("statement has no transaction rows: %w", shared.ErrInvalidFormat)
	}
	return rows, nil
}

type columns struct {
	date, amount, debit, credit, description, ref int
}

// rowAmount reads the single amount column when the statement has one, or
// nets separate debit and credit columns (debit minus credit, so money
// leaving the bank account is positive, matching payment amounts).
func rowAmount(record []string, cols *columns) (decimal.Decimal, error) {
	if cols.amount >= 0 {
		return parseAmount(field(record, cols.amount))
	}
	debitRaw, creditRaw := field(record, cols.debit), field(record, cols.credit)
	if debitRaw == "" && creditRaw == "" {
		return decimal.Decimal{}, fmt.Errorf("neither debit nor credit present")
	}
	var debit, credit decimal.Decimal
	var err error
	if debitRaw != "" {
		if debit, err = parseAmount(debitRaw); err != nil {
			return decimal.Decimal{}, err
		}
	}
	if creditRaw != "" {
		if credit, err = parseAmount(creditRaw); err != nil {
			return decimal.Decimal{}, err
		}
	}
	return debit.Sub(credit), nil
}

var headerSynonyms = map[string]string{
	"date":             "date",
	"txn date":         "date",
	"transaction date": "date",
	"value date":       "date",
	"posted":           "date",
	"amount":           "amount",
	"value":            "amount",
	"txn amount":       "amount",
	"debit":            "debit",
	"debit amount":     "debit",
	"withdrawal":       "debit",
	"credit":           "credit",
	"credit amount":    "credit",
	"deposit":          "credit",
	"description":      "description",
	"details":          "description",
	"narrative":        "description",
	"memo":             "description",
	"particulars":      "description",
	"reference":        "ref",
	"ref":              "ref",
	"ref no":           "ref",
	"transaction":      "ref",
	"cheque no":        "ref",
}

// columnIndexes returns nil when the first record does not look like a
// header row.
func columnIndexes(header []string) *columns {
	cols := &columns{date: -1, amount: -1, debit: -1, credit: -1, description: -1, ref: -1}
	for i, raw := range header {
		name, ok := headerSynonyms[strings.ToLower(strings.TrimSpace(raw))]
		if !ok {
			continue
		}
		switch name {
		case "date":
			cols.date = i
		case "amount":
			cols.amount = i
		case "debit":
			cols.debit = i
		case "credit":
			cols.credit = i
		case "description":
			cols.description = i
		case "ref":
			cols.ref = i
		}
	}
	if cols.date == -1 || (cols.amount == -1 && cols.debit == -1 && cols.credit == -1) {
		return nil
	}
	return cols
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006"}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

// parseAmount strips currency symbols and thousands separators and treats
// parenthesized amounts as negative, e.g. "(1,200.50)" is -1200.50.
func parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}
	var b strings.Builder
	for _, r := range cleaned {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ',', r == ' ':
			// thousands separators
		default:
			// currency symbols and codes
		}
	}
	cleaned = b.String()
	if cleaned == "" {
		return decimal.Decimal{}, fmt.Errorf("unparseable amount %q", raw)
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("unparseable amount %q", raw)
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}
