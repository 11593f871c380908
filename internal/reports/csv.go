package reports

import (
	"bytes"
	"encoding/csv"
	"io"
)

// WriteTrialBalanceCSV serialises a trial balance for download.
func WriteTrialBalanceCSV(w io.Writer, report TrialBalance) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Code", "Account", "Type", "Debit", "Credit"}); err != nil {
		return err
	}
	for _, row := range report.Rows {
		if err := writer.Write([]string{
			row.Code,
			row.Name,
			string(row.Type),
			row.Debit.StringFixed(2),
			row.Credit.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"", "Total", "",
		report.TotalDebit.StringFixed(2), report.TotalCredit.StringFixed(2)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WriteProfitAndLossCSV emits the P&L statement as CSV.
func WriteProfitAndLossCSV(w io.Writer, report ProfitAndLoss) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Section", "Code", "Account", "Amount"}); err != nil {
		return err
	}
	writeSection := func(section string, lines []ReportLine) error {
		for _, line := range lines {
			if err := writer.Write([]string{section, line.Code, line.Name, line.Amount.StringFixed(2)}); err != nil {
				return err
			}
		}
		return nil
	}
	if err := writeSection("Revenue", report.Revenue); err != nil {
		return err
	}
	if err := writeSection("Cost of Goods Sold", report.COGS); err != nil {
		return err
	}
	if err := writeSection("Expenses", report.Expenses); err != nil {
		return err
	}
	totals := [][]string{
		{"", "", "Gross Profit", report.GrossProfit.StringFixed(2)},
		{"", "", "Net Profit", report.NetProfit.StringFixed(2)},
	}
	for _, record := range totals {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteBalanceSheetCSV emits the balance sheet as CSV.
func WriteBalanceSheetCSV(w io.Writer, report BalanceSheet) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Section", "Code", "Account", "Amount"}); err != nil {
		return err
	}
	writeSection := func(section string, lines []ReportLine) error {
		for _, line := range lines {
			if err := writer.Write([]string{section, line.Code, line.Name, line.Amount.StringFixed(2)}); err != nil {
				return err
			}
		}
		return nil
	}
	if err := writeSection("Assets", report.Assets); err != nil {
		return err
	}
	if err := writeSection("Liabilities", report.Liabilities); err != nil {
		return err
	}
	if err := writeSection("Equity", report.Equity); err != nil {
		return err
	}
	totals := [][]string{
		{"Equity", "", "Retained Earnings", report.RetainedEarnings.StringFixed(2)},
		{"", "", "Total Assets", report.TotalAssets.StringFixed(2)},
		{"", "", "Total Liabilities", report.TotalLiabilities.StringFixed(2)},
		{"", "", "Total Equity", report.TotalEquity.StringFixed(2)},
	}
	for _, record := range totals {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func renderCSV(write func(io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
