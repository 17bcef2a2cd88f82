package sales

import (
	"context"
	"strings"
)

// appendHistory writes one ledger row inside tx. A comment identical to the
// most recent comment already on the sale's ledger is not repeated.
func appendHistory(ctx context.Context, tx TxRepository, rec HistoryRecord) error {
	if rec.Comment != nil {
		last, err := tx.LastComment(ctx, rec.SaleID)
		if err != nil {
			return err
		}
		if last != nil && strings.TrimSpace(*last) == strings.TrimSpace(*rec.Comment) {
			rec.Comment = nil
		}
	}
	_, err := tx.AppendHistory(ctx, rec)
	return err
}
