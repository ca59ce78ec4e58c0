package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func (t *pgTx) GetBooking(ctx context.Context, id int64) (*Booking, error) {
	var b Booking
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, invoice_id, customer_id, booking_number, service_type, status,
			start_date, end_date, delivery_location, COALESCE(delivery_time, ''),
			COALESCE(delivery_instructions, ''), pickup_date, COALESCE(pickup_time, ''),
			vendor_id, total_price, details, created_at
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&b.ID, &b.InvoiceID, &b.CustomerID, &b.Number, &b.ServiceType, &b.Status,
		&b.StartDate, &b.EndDate, &b.DeliveryLocation, &b.DeliveryTime,
		&b.DeliveryInstructions, &b.PickupDate, &b.PickupTime,
		&b.VendorID, &b.TotalPrice, &b.Details, &b.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *pgTx) BookingIDForInvoice(ctx context.Context, invoiceID int64) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM bookings WHERE invoice_id = $1
	`, invoiceID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (t *pgTx) InsertBooking(ctx context.Context, b *Booking) error {
	return t.tx.QueryRowContext(ctx, `
		INSERT INTO bookings (
			invoice_id, customer_id, booking_number, service_type, status,
			start_date, end_date, delivery_location, delivery_time,
			delivery_instructions, total_price, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`,
		b.InvoiceID, b.CustomerID, b.Number, string(b.ServiceType), string(b.Status),
		b.StartDate, b.EndDate, b.DeliveryLocation, b.DeliveryTime,
		b.DeliveryInstructions, b.TotalPrice, b.Details,
	).Scan(&b.ID, &b.CreatedAt)
}

func (t *pgTx) UpdateBookingStatus(ctx context.Context, id int64, status BookingStatus) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1
	`, id, string(status))
	return err
}

func (t *pgTx) SetBookingVendor(ctx context.Context, id, vendorID int64, status BookingStatus) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE bookings SET vendor_id = $2, status = $3, updated_at = now() WHERE id = $1
	`, id, vendorID, string(status))
	return err
}

func (t *pgTx) SchedulePickup(ctx context.Context, id, customerID int64, date time.Time, slot string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'awaiting_pickup', pickup_date = $3, pickup_time = $4, updated_at = now()
		WHERE id = $1 AND customer_id = $2
	`, id, customerID, date, slot)
	return affected(res, err)
}

func (t *pgTx) InsertBookingHistory(ctx context.Context, h *BookingHistory) error {
	return t.tx.QueryRowContext(ctx, `
		INSERT INTO booking_history (booking_id, status, note)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, h.BookingID, string(h.Status), h.Note).Scan(&h.ID, &h.CreatedAt)
}
