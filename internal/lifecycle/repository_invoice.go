package lifecycle

import (
	"context"
	"database/sql"
	"errors"
)

func (t *pgTx) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	var inv Invoice
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, customer_id, quote_id, booking_id, COALESCE(addon_kind, ''),
			invoice_number, amount, status, due_date, discount, tax,
			COALESCE(transaction_id, ''), COALESCE(payment_method, ''), paid_at, created_at
		FROM invoices
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&inv.ID, &inv.CustomerID, &inv.QuoteID, &inv.BookingID, &inv.AddOn,
		&inv.Number, &inv.Amount, &inv.Status, &inv.DueDate, &inv.Discount, &inv.Tax,
		&inv.TransactionID, &inv.PaymentMethod, &inv.PaidAt, &inv.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (t *pgTx) InsertInvoice(ctx context.Context, inv *Invoice) error {
	return t.tx.QueryRowContext(ctx, `
		INSERT INTO invoices (
			customer_id, quote_id, booking_id, addon_kind, invoice_number,
			amount, status, due_date, discount, tax
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`,
		inv.CustomerID, inv.QuoteID, inv.BookingID,
		sql.NullString{String: string(inv.AddOn), Valid: inv.AddOn != ""},
		inv.Number, inv.Amount, string(inv.Status), inv.DueDate, inv.Discount, inv.Tax,
	).Scan(&inv.ID, &inv.CreatedAt)
}

// ReplaceLineItems deletes every line of the invoice and inserts items.
func (t *pgTx) ReplaceLineItems(ctx context.Context, invoiceID int64, items []LineItem) error {
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM invoice_items WHERE invoice_id = $1
	`, invoiceID); err != nil {
		return err
	}

	for _, it := range items {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO invoice_items (invoice_id, description, quantity, unit_price, total)
			VALUES ($1, $2, $3, $4, $5)
		`, invoiceID, it.Description, it.Quantity, it.UnitPrice, it.Total); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) MarkInvoicePaid(ctx context.Context, id int64, receipt PaymentReceipt) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE invoices
		SET status = 'paid', transaction_id = $2, payment_method = $3, paid_at = $4, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'partially_paid')
	`, id, receipt.TransactionID, receipt.Method, receipt.PaidAt)
	return affected(res, err)
}

func (t *pgTx) UpdateInvoiceTotals(ctx context.Context, inv *Invoice) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE invoices
		SET amount = $2, discount = $3, tax = $4, due_date = $5, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'partially_paid')
	`, inv.ID, inv.Amount, inv.Discount, inv.Tax, inv.DueDate)
	return affected(res, err)
}

func (t *pgTx) CancelPendingQuoteInvoices(ctx context.Context, quoteID int64) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE invoices SET status = 'cancelled', updated_at = now()
		WHERE quote_id = $1 AND status = 'pending'
	`, quoteID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *pgTx) ReopenInvoice(ctx context.Context, id int64) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE invoices SET status = 'pending', updated_at = now()
		WHERE id = $1 AND status = 'cancelled'
	`, id)
	return affected(res, err)
}

func (t *pgTx) FindPendingAddOnInvoice(ctx context.Context, bookingID int64, kind AddOnKind) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM invoices
		WHERE booking_id = $1 AND addon_kind = $2 AND status = 'pending'
		ORDER BY id DESC
		LIMIT 1
	`, bookingID, string(kind)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}
