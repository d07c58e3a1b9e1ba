// Package sheets defines the spreadsheet mirror that receives committed
// transactions. The store never reads it back.
package sheets

import (
	"context"
	"errors"

	"carteira/internal/core"
)

// TransactionMirror appends and removes transaction rows. Both operations
// are idempotent: appending a transaction that is already mirrored returns
// the existing row, removing one that is absent is not an error.
type TransactionMirror interface {
	AppendTransaction(ctx context.Context, tx core.Transaction) (rowRef string, err error)
	RemoveTransaction(ctx context.Context, tx core.Transaction) error
}

// Header is the first row of every mirror sheet.
var Header = []string{"Data", "Descrição", "Categoria", "Valor", "Tipo", "Assinatura", "ID", "Usuário"}

// DateLayout is the pt-BR day/month/year layout used in the date column.
const DateLayout = "02/01/2006"

// Row renders tx in mirror column order.
func Row(tx core.Transaction) []any {
	sub := "não"
	if tx.IsSubscription {
		sub = "sim"
	}
	kind := "Despesa"
	if tx.Type == core.Income {
		kind = "Receita"
	}
	return []any{
		tx.Date.Format(DateLayout),
		tx.Description,
		tx.Category,
		tx.Amount.String(),
		kind,
		sub,
		tx.ID,
		tx.UserID,
	}
}

// ErrPermanent marks mirror failures that retrying cannot fix.
var ErrPermanent = errors.New("permanent mirror failure")
