// Package sheets defines the outbound port used to mirror transactions
// into a spreadsheet.
package sheets

import (
	"context"

	"bilancio/internal/core"
)

// Row is one mirrored transaction with its references already resolved
// to display names.
type Row struct {
	Date        core.Date
	Kind        core.EntryKind
	Description string
	Amount      core.Money
	Category    string
	Bank        string
	UserEmail   string
}

// RowAppender appends rows to the mirror and returns a reference to the
// written range.
type RowAppender interface {
	AppendRow(ctx context.Context, row Row) (ref string, err error)
}
