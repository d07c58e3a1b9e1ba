// Package export renders the transaction history as CSV and optionally
// archives it in Cloud Storage.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"carteira/internal/core"
)

// Header is the first CSV row.
var Header = []string{"Date", "Description", "Category", "Amount", "Type"}

// DateLayout is the pt-BR day/month/year convention.
const DateLayout = "02/01/2006"

var ErrNoTransactions = errors.New("no transactions to export")

// WriteCSV writes one row per transaction in list order. Dates are shown in
// loc (time.Local when nil).
func WriteCSV(w io.Writer, txs []core.Transaction, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range txs {
		row := []string{
			t.Date.In(loc).Format(DateLayout),
			t.Description,
			t.Category,
			t.Amount.String(),
			string(t.Type),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write transaction %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FileName is the download name of the export produced at now.
func FileName(now time.Time) string {
	return fmt.Sprintf("Relatorio_%d.csv", int(now.Month()))
}
