package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Repository is the persistence store. Every lifecycle operation runs its
// reads and writes through the Tx handed to WithTx; a non-nil error from fn
// rolls everything back.
type Repository interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	InvoiceIDByNumber(ctx context.Context, number string) (int64, error)
	ExpiredAcceptances(ctx context.Context, cutoff time.Time) ([]int64, error)
}

// Tx is the transactional view of the store. Getters lock the row they
// return; updates guarded by a prior status report whether a row matched.
type Tx interface {
	GetQuote(ctx context.Context, id int64) (*Quote, error)
	SetQuotePrice(ctx context.Context, id int64, price decimal.Decimal, notes string) (bool, error)
	TransitionQuote(ctx context.Context, id int64, from []QuoteStatus, to QuoteStatus) (bool, error)

	GetCustomer(ctx context.Context, id int64) (*Customer, error)
	GetVendor(ctx context.Context, id int64) (*Vendor, error)

	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	InsertInvoice(ctx context.Context, inv *Invoice) error
	ReplaceLineItems(ctx context.Context, invoiceID int64, items []LineItem) error
	MarkInvoicePaid(ctx context.Context, id int64, receipt PaymentReceipt) (bool, error)
	UpdateInvoiceTotals(ctx context.Context, inv *Invoice) (bool, error)
	CancelPendingQuoteInvoices(ctx context.Context, quoteID int64) (int64, error)
	ReopenInvoice(ctx context.Context, id int64) (bool, error)
	FindPendingAddOnInvoice(ctx context.Context, bookingID int64, kind AddOnKind) (int64, bool, error)

	GetBooking(ctx context.Context, id int64) (*Booking, error)
	BookingIDForInvoice(ctx context.Context, invoiceID int64) (int64, bool, error)
	InsertBooking(ctx context.Context, b *Booking) error
	UpdateBookingStatus(ctx context.Context, id int64, status BookingStatus) error
	SetBookingVendor(ctx context.Context, id, vendorID int64, status BookingStatus) error
	SchedulePickup(ctx context.Context, id, customerID int64, date time.Time, slot string) (bool, error)
	InsertBookingHistory(ctx context.Context, h *BookingHistory) error

	InsertNotification(ctx context.Context, n *Notification) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *repository) InvoiceIDByNumber(ctx context.Context, number string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM invoices WHERE invoice_number = $1
	`, number).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInvoiceNotFound
	}
	return id, err
}

func (r *repository) ExpiredAcceptances(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM quotes
		WHERE status = 'accepted' AND accepted_at < $1
		ORDER BY accepted_at
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetQuote(ctx context.Context, id int64) (*Quote, error) {
	var (
		q                          Quote
		daily, swap, relocationFee decimal.NullDecimal
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, customer_id, service_type, status, location,
			requested_date, COALESCE(requested_time, ''), quoted_price,
			COALESCE(admin_notes, ''), daily_rate, swap_charge,
			relocation_charge, discount, tax, details, accepted_at, created_at
		FROM quotes
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&q.ID, &q.CustomerID, &q.ServiceType, &q.Status, &q.Location,
		&q.RequestedDate, &q.RequestedTime, &q.QuotedPrice,
		&q.AdminNotes, &daily, &swap,
		&relocationFee, &q.Discount, &q.Tax, &q.Details, &q.AcceptedAt, &q.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuoteNotFound
	}
	if err != nil {
		return nil, err
	}
	q.DailyRate, q.SwapCharge, q.RelocationCharge = daily.Decimal, swap.Decimal, relocationFee.Decimal
	return &q, nil
}

func (t *pgTx) SetQuotePrice(ctx context.Context, id int64, price decimal.Decimal, notes string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE quotes
		SET status = 'quoted', quoted_price = $2, admin_notes = $3, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'quoted')
	`, id, price, notes)
	return affected(res, err)
}

func (t *pgTx) TransitionQuote(ctx context.Context, id int64, from []QuoteStatus, to QuoteStatus) (bool, error) {
	src := make([]string, len(from))
	for i, s := range from {
		src[i] = string(s)
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE quotes
		SET status = $2,
			accepted_at = CASE $2 WHEN 'accepted' THEN now() WHEN 'quoted' THEN NULL ELSE accepted_at END,
			updated_at = now()
		WHERE id = $1 AND status = ANY($3)
	`, id, string(to), pq.Array(src))
	return affected(res, err)
}

func (t *pgTx) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	var c Customer
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, email FROM users WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *pgTx) GetVendor(ctx context.Context, id int64) (*Vendor, error) {
	var v Vendor
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), active
		FROM vendors WHERE id = $1
	`, id).Scan(&v.ID, &v.Name, &v.Email, &v.Phone, &v.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVendorNotFoundOrInactive
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (t *pgTx) InsertNotification(ctx context.Context, n *Notification) error {
	return t.tx.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, type, message, link)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, n.UserID, string(n.Type), n.Message, n.Link).Scan(&n.ID, &n.CreatedAt)
}

// affected turns an Exec result into "did a row match".
func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
