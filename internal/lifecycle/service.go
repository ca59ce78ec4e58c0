package lifecycle

import (
	"context"
	"fmt"
	"time"

	"dumpster-be/internal/logger"
	"dumpster-be/internal/mailer"
	"dumpster-be/internal/metrics"
	"dumpster-be/internal/payment"
	"dumpster-be/internal/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	metricTransitions    = "quote_transitions_total"
	metricInvoices       = "invoices_created_total"
	metricBookings       = "bookings_created_total"
	metricNotifications  = "notifications_created_total"
	metricEmailsSent     = "emails_sent_total"
	metricEmailsFailed   = "emails_failed_total"
	metricExpired        = "acceptances_expired_total"
	metricPaymentsFailed = "payments_failed_total"
	metricLatePayments   = "payments_after_cancellation_total"

	addOnDueDays = 3
	dateLayout   = "2006-01-02"
)

type Service interface {
	SubmitPrice(ctx context.Context, actor ActingUser, quoteID int64, price decimal.Decimal, notes string) error
	ResendPrice(ctx context.Context, actor ActingUser, quoteID int64) error
	RejectQuote(ctx context.Context, actor ActingUser, quoteID int64) error
	CustomerRejectQuote(ctx context.Context, actor ActingUser, quoteID int64) error
	AcceptQuote(ctx context.Context, actor ActingUser, quoteID int64) (int64, error)

	ConvertInvoiceToBooking(ctx context.Context, invoiceID int64, receipt PaymentReceipt) (*ConversionResult, error)
	ConvertInvoiceByNumber(ctx context.Context, number string, receipt PaymentReceipt) (*ConversionResult, error)
	PayInvoice(ctx context.Context, actor ActingUser, invoiceID int64, paymentToken, method string) (*ConversionResult, error)
	AdminEditInvoice(ctx context.Context, actor ActingUser, invoiceID int64, edit InvoiceEdit) error

	AdminUpdateBookingStatus(ctx context.Context, actor ActingUser, bookingID int64, status string) error
	AdminAssignVendor(ctx context.Context, actor ActingUser, bookingID, vendorID int64) error
	RequestPaidAddOnService(ctx context.Context, actor ActingUser, bookingID int64, kind string) (int64, error)
	SchedulePickup(ctx context.Context, actor ActingUser, bookingID int64, date time.Time, slot string) error

	ExpireAbandonedAcceptances(ctx context.Context, cutoff time.Time) (int, error)
}

type Options struct {
	AdminUserID      int64
	InvoiceDueDays   int
	Currency         string
	Now              func() time.Time
	NewInvoiceNumber func() string
	NewBookingNumber func() string
}

type service struct {
	repo    Repository
	mailer  mailer.Mailer
	gateway payment.Gateway
	opts    Options
	metrics *metrics.Registry
}

func NewService(repo Repository, m mailer.Mailer, gateway payment.Gateway, opts Options, reg *metrics.Registry) Service {
	if opts.InvoiceDueDays <= 0 {
		opts.InvoiceDueDays = 7
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewInvoiceNumber == nil {
		opts.NewInvoiceNumber = utils.GenerateInvoiceNumber
	}
	if opts.NewBookingNumber == nil {
		opts.NewBookingNumber = utils.GenerateBookingNumber
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}

	return &service{
		repo:    repo,
		mailer:  m,
		gateway: gateway,
		opts:    opts,
		metrics: reg,
	}
}

func quoteLink(id int64) string   { return fmt.Sprintf("/quotes/%d", id) }
func invoiceLink(id int64) string { return fmt.Sprintf("/invoices/%d", id) }
func bookingLink(id int64) string { return fmt.Sprintf("/bookings/%d", id) }

func serviceLabel(t ServiceType) string {
	if t == ServiceJunkRemoval {
		return "junk removal"
	}
	return "equipment rental"
}

func (s *service) SubmitPrice(ctx context.Context, actor ActingUser, quoteID int64, price decimal.Decimal, notes string) error {
	if !actor.IsStaff() {
		return ErrNotOwner
	}
	if !price.IsPositive() {
		return ErrInvalidPrice
	}
	price = money(price)
	log := logger.ForMethod(ctx, "service", "SubmitPrice").With(zap.Int64("quote_id", quoteID))

	return s.run(ctx, "SubmitPrice", func(tx Tx, fx *effects) error {
		q, err := tx.GetQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		if q.Status != QuotePending && q.Status != QuoteQuoted {
			return ErrInvalidStateForPricing
		}
		if q.Status == QuoteQuoted && q.QuotedPrice.Valid &&
			q.QuotedPrice.Decimal.Equal(price) && q.AdminNotes == notes {
			log.Info("price unchanged, nothing to do")
			return nil
		}

		ok, err := tx.SetQuotePrice(ctx, q.ID, price, notes)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidStateForPricing
		}

		c, err := tx.GetCustomer(ctx, q.CustomerID)
		if err != nil {
			return err
		}

		fx.notify(q.CustomerID, NotifyQuotePriced,
			fmt.Sprintf("Your quote #%d has been priced at %s.", q.ID, price.StringFixed(2)),
			quoteLink(q.ID))
		fx.mail(c.Email, mailer.TemplateQuotePriced, priceMailData(q, c, price, notes))
		if q.Status == QuotePending {
			fx.count(metricTransitions)
		}

		log.Info("quote priced", zap.String("price", price.StringFixed(2)))
		return nil
	})
}

func priceMailData(q *Quote, c *Customer, price decimal.Decimal, notes string) mailer.Data {
	return mailer.Data{
		"Name":    c.Name,
		"QuoteID": q.ID,
		"Service": serviceLabel(q.ServiceType),
		"Price":   price.StringFixed(2),
		"Notes":   notes,
		"Link":    quoteLink(q.ID),
	}
}

func (s *service) ResendPrice(ctx context.Context, actor ActingUser, quoteID int64) error {
	if !actor.IsStaff() {
		return ErrNotOwner
	}

	return s.run(ctx, "ResendPrice", func(tx Tx, fx *effects) error {
		q, err := tx.GetQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		if !q.QuotedPrice.Valid {
			return ErrNoPriceSet
		}

		c, err := tx.GetCustomer(ctx, q.CustomerID)
		if err != nil {
			return err
		}

		fx.mail(c.Email, mailer.TemplateQuotePriced, priceMailData(q, c, q.QuotedPrice.Decimal, q.AdminNotes))
		return nil
	})
}

func (s *service) RejectQuote(ctx context.Context, actor ActingUser, quoteID int64) error {
	if !actor.IsStaff() {
		return ErrNotOwner
	}
	return s.reject(ctx, "RejectQuote", actor, quoteID)
}

// CustomerRejectQuote lets a customer decline their own pending or quoted quote.
func (s *service) CustomerRejectQuote(ctx context.Context, actor ActingUser, quoteID int64) error {
	return s.reject(ctx, "CustomerRejectQuote", actor, quoteID)
}

func (s *service) reject(ctx context.Context, method string, actor ActingUser, quoteID int64) error {
	byCustomer := !actor.IsStaff()
	log := logger.ForMethod(ctx, "service", method).With(zap.Int64("quote_id", quoteID))

	return s.run(ctx, method, func(tx Tx, fx *effects) error {
		q, err := tx.GetQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		if byCustomer && !actor.Owns(q.CustomerID) {
			return ErrNotOwner
		}
		if q.Status == QuoteRejected {
			log.Info("quote already rejected")
			return nil
		}
		if !q.Status.CanTransitionTo(QuoteRejected) {
			return ErrInvalidStateForRejection
		}

		ok, err := tx.TransitionQuote(ctx, q.ID, sourcesOf(QuoteRejected), QuoteRejected)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidStateForRejection
		}
		fx.count(metricTransitions)

		c, err := tx.GetCustomer(ctx, q.CustomerID)
		if err != nil {
			return err
		}

		fx.notify(q.CustomerID, NotifyQuoteRejected,
			fmt.Sprintf("Your quote #%d has been rejected.", q.ID), quoteLink(q.ID))
		fx.mail(c.Email, mailer.TemplateQuoteRejected, mailer.Data{
			"Name":    c.Name,
			"QuoteID": q.ID,
		})
		if byCustomer && s.opts.AdminUserID != 0 {
			fx.notify(s.opts.AdminUserID, NotifyCustomerRejected,
				fmt.Sprintf("%s rejected quote #%d.", c.Name, q.ID), quoteLink(q.ID))
		}

		log.Info("quote rejected", zap.String("previous_status", string(q.Status)))
		return nil
	})
}

func (s *service) AcceptQuote(ctx context.Context, actor ActingUser, quoteID int64) (int64, error) {
	log := logger.ForMethod(ctx, "service", "AcceptQuote").With(zap.Int64("quote_id", quoteID))

	var invoiceID int64
	err := s.run(ctx, "AcceptQuote", func(tx Tx, fx *effects) error {
		q, err := tx.GetQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		if !actor.Owns(q.CustomerID) {
			return ErrNotOwner
		}
		if q.Status != QuoteQuoted {
			return ErrInvalidStateForAcceptance
		}
		if !q.QuotedPrice.Valid {
			return ErrNoPriceSet
		}

		ok, err := tx.TransitionQuote(ctx, q.ID, []QuoteStatus{QuoteQuoted}, QuoteAccepted)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidStateForAcceptance
		}
		fx.count(metricTransitions)

		items := QuoteLineItems(q)
		inv := &Invoice{
			CustomerID: q.CustomerID,
			QuoteID:    &q.ID,
			Number:     s.opts.NewInvoiceNumber(),
			Amount:     InvoiceAmount(items, q.Discount, q.Tax),
			Status:     InvoicePending,
			DueDate:    s.opts.Now().AddDate(0, 0, s.opts.InvoiceDueDays),
			Discount:   money(q.Discount),
			Tax:        money(q.Tax),
		}
		if err := tx.InsertInvoice(ctx, inv); err != nil {
			return fmt.Errorf("%w: %w", ErrInvoiceCreationFailed, err)
		}
		if err := tx.ReplaceLineItems(ctx, inv.ID, items); err != nil {
			return fmt.Errorf("%w: %w", ErrInvoiceCreationFailed, err)
		}
		fx.count(metricInvoices)

		fx.notify(q.CustomerID, NotifyPaymentDue,
			fmt.Sprintf("Invoice %s for %s is due by %s.", inv.Number, inv.Amount.StringFixed(2), inv.DueDate.Format(dateLayout)),
			invoiceLink(inv.ID))

		invoiceID = inv.ID
		log.Info("quote accepted",
			zap.Int64("invoice_id", inv.ID),
			zap.String("invoice_number", inv.Number),
			zap.String("amount", inv.Amount.StringFixed(2)),
		)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return invoiceID, nil
}

func (s *service) ConvertInvoiceToBooking(ctx context.Context, invoiceID int64, receipt PaymentReceipt) (*ConversionResult, error) {
	var res *ConversionResult
	err := s.run(ctx, "ConvertInvoiceToBooking", func(tx Tx, fx *effects) error {
		inv, err := tx.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		res, err = s.settle(ctx, tx, fx, inv, receipt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ConvertInvoiceByNumber settles the invoice a gateway reference points at.
func (s *service) ConvertInvoiceByNumber(ctx context.Context, number string, receipt PaymentReceipt) (*ConversionResult, error) {
	id, err := s.repo.InvoiceIDByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return s.ConvertInvoiceToBooking(ctx, id, receipt)
}

func (s *service) PayInvoice(ctx context.Context, actor ActingUser, invoiceID int64, paymentToken, method string) (*ConversionResult, error) {
	m, ok := payment.ParseMethod(method)
	if !ok {
		return nil, ErrInvalidPaymentMethod
	}
	log := logger.ForMethod(ctx, "service", "PayInvoice").With(zap.Int64("invoice_id", invoiceID))

	var res *ConversionResult
	err := s.run(ctx, "PayInvoice", func(tx Tx, fx *effects) error {
		inv, err := tx.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !actor.IsStaff() && !actor.Owns(inv.CustomerID) {
			return ErrNotOwner
		}
		if err := checkPayable(inv); err != nil {
			return err
		}

		if inv.Amount.IsZero() {
			log.Info("nothing to charge")
			res, err = s.settle(ctx, tx, fx, inv, PaymentReceipt{
				Amount: decimal.Zero,
				Method: string(m),
				PaidAt: s.opts.Now(),
			})
			return err
		}

		c, err := tx.GetCustomer(ctx, inv.CustomerID)
		if err != nil {
			return err
		}

		charge, err := s.gateway.Charge(ctx, payment.ChargeRequest{
			ReferenceID:   inv.Number,
			Amount:        inv.Amount,
			Currency:      s.opts.Currency,
			PaymentToken:  paymentToken,
			Method:        m,
			CustomerEmail: c.Email,
		})
		if err != nil {
			s.metrics.Counter(metricPaymentsFailed).Inc()
			return fmt.Errorf("%w: %w", ErrPaymentGateway, err)
		}
		if !charge.Success {
			s.metrics.Counter(metricPaymentsFailed).Inc()
			return fmt.Errorf("%w: charge %s", ErrPaymentGateway, charge.Status)
		}

		amount := charge.Amount
		if amount.IsZero() {
			amount = inv.Amount
		}
		log.Info("charge succeeded", zap.String("transaction_id", charge.TransactionID))

		res, err = s.settle(ctx, tx, fx, inv, PaymentReceipt{
			Amount:        amount,
			Method:        string(m),
			TransactionID: charge.TransactionID,
			PaidAt:        s.opts.Now(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func checkPayable(inv *Invoice) error {
	if inv.Status == InvoicePaid {
		return ErrAlreadyPaid
	}
	if !inv.Status.Payable() {
		return ErrInvoiceNotPayable
	}
	return nil
}

// settle marks inv paid and materialises what the payment buys: a booking
// for quote invoices, a history entry for add-on invoices.
func (s *service) settle(ctx context.Context, tx Tx, fx *effects, inv *Invoice, receipt PaymentReceipt) (*ConversionResult, error) {
	log := logger.ForMethod(ctx, "service", "settle").With(
		zap.Int64("invoice_id", inv.ID),
		zap.String("invoice_number", inv.Number),
	)

	if inv.Status == InvoiceCancelled && inv.QuoteID != nil {
		return s.settleCancelled(ctx, tx, fx, inv, receipt)
	}
	if err := checkPayable(inv); err != nil {
		return nil, err
	}
	if receipt.Amount.LessThan(inv.Amount) {
		return nil, ErrPartialPaymentUnsupported
	}
	if receipt.PaidAt.IsZero() {
		receipt.PaidAt = s.opts.Now()
	}

	ok, err := tx.MarkInvoicePaid(ctx, inv.ID, receipt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyPaid
	}

	c, err := tx.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		return nil, err
	}

	res := &ConversionResult{InvoiceID: inv.ID}
	amount := inv.Amount.StringFixed(2)

	if inv.QuoteID == nil {
		if inv.BookingID != nil {
			b, err := tx.GetBooking(ctx, *inv.BookingID)
			if err != nil {
				return nil, err
			}
			if err := tx.InsertBookingHistory(ctx, &BookingHistory{
				BookingID: b.ID,
				Status:    b.Status,
				Note:      fmt.Sprintf("%s paid (invoice %s)", inv.AddOn.Label(), inv.Number),
			}); err != nil {
				return nil, err
			}
			res.BookingID, res.BookingNumber = b.ID, b.Number
		}

		fx.notify(inv.CustomerID, NotifyAddOnPaid,
			fmt.Sprintf("Payment of %s received for invoice %s.", amount, inv.Number), invoiceLink(inv.ID))
		if s.opts.AdminUserID != 0 {
			fx.notify(s.opts.AdminUserID, NotifyAddOnPaid,
				fmt.Sprintf("%s paid %s for %s (invoice %s).", c.Name, amount, inv.AddOn.Label(), inv.Number),
				invoiceLink(inv.ID))
		}
		log.Info("add-on invoice paid")
		return res, nil
	}

	q, err := tx.GetQuote(ctx, *inv.QuoteID)
	if err != nil {
		return nil, err
	}
	converted, err := tx.TransitionQuote(ctx, q.ID, sourcesOf(QuoteConverted), QuoteConverted)
	if err != nil {
		return nil, err
	}
	if converted {
		fx.count(metricTransitions)
	} else {
		log.Warn("quote not in accepted state at payment", zap.String("quote_status", string(q.Status)))
	}

	existing, found, err := tx.BookingIDForInvoice(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	if found {
		log.Warn("skipping booking creation", zap.Int64("booking_id", existing), zap.Error(ErrBookingAlreadyExists))
		res.BookingID = existing
		fx.notify(inv.CustomerID, NotifyPaymentReceived,
			fmt.Sprintf("Payment of %s received for invoice %s.", amount, inv.Number), bookingLink(existing))
		if s.opts.AdminUserID != 0 {
			fx.notify(s.opts.AdminUserID, NotifyPaymentReceived,
				fmt.Sprintf("Invoice %s paid by %s.", inv.Number, c.Name), bookingLink(existing))
		}
		return res, nil
	}

	start, end := bookingDates(q)
	b := &Booking{
		InvoiceID:        inv.ID,
		CustomerID:       inv.CustomerID,
		Number:           s.opts.NewBookingNumber(),
		ServiceType:      q.ServiceType,
		Status:           BookingScheduled,
		StartDate:        start,
		EndDate:          end,
		DeliveryLocation: q.Location,
		DeliveryTime:     q.RequestedTime,
		TotalPrice:       inv.Amount,
		Details:          q.Details,
	}
	if err := tx.InsertBooking(ctx, b); err != nil {
		return nil, err
	}
	if err := tx.InsertBookingHistory(ctx, &BookingHistory{
		BookingID: b.ID,
		Status:    BookingScheduled,
		Note:      fmt.Sprintf("Booking created from invoice %s", inv.Number),
	}); err != nil {
		return nil, err
	}
	fx.count(metricBookings)

	res.BookingID, res.BookingNumber, res.BookingCreated = b.ID, b.Number, true

	fx.notify(inv.CustomerID, NotifyBookingCreated,
		fmt.Sprintf("Payment received. Your booking %s is scheduled for %s.", b.Number, start.Format(dateLayout)),
		bookingLink(b.ID))
	if s.opts.AdminUserID != 0 {
		fx.notify(s.opts.AdminUserID, NotifyBookingCreated,
			fmt.Sprintf("New booking %s from %s (invoice %s, %s).", b.Number, c.Name, inv.Number, amount),
			bookingLink(b.ID))
	}
	fx.mail(c.Email, mailer.TemplateBookingConfirmed, mailer.Data{
		"Name":          c.Name,
		"Amount":        amount,
		"InvoiceNumber": inv.Number,
		"BookingNumber": b.Number,
		"StartDate":     start.Format(dateLayout),
		"EndDate":       end.Format(dateLayout),
		"Location":      b.DeliveryLocation,
		"Link":          bookingLink(b.ID),
	})

	log.Info("booking created", zap.Int64("booking_id", b.ID), zap.String("booking_number", b.Number))
	return res, nil
}

// settleCancelled applies a captured payment to a quote invoice that was
// cancelled when its acceptance expired. If the quote still prices to the
// paid amount it is accepted again and booked as usual. Otherwise the money
// is recorded against the invoice and an admin is asked to review it.
func (s *service) settleCancelled(ctx context.Context, tx Tx, fx *effects, inv *Invoice, receipt PaymentReceipt) (*ConversionResult, error) {
	log := logger.ForMethod(ctx, "service", "settleCancelled").With(
		zap.Int64("invoice_id", inv.ID),
		zap.String("invoice_number", inv.Number),
	)

	if receipt.Amount.LessThan(inv.Amount) {
		return nil, ErrPartialPaymentUnsupported
	}
	if receipt.PaidAt.IsZero() {
		receipt.PaidAt = s.opts.Now()
	}

	q, err := tx.GetQuote(ctx, *inv.QuoteID)
	if err != nil {
		return nil, err
	}
	bookable := (q.Status == QuoteQuoted || q.Status == QuoteAccepted) &&
		q.QuotedPrice.Valid &&
		InvoiceAmount(QuoteLineItems(q), q.Discount, q.Tax).Equal(inv.Amount)

	if bookable {
		switch q.Status {
		case QuoteQuoted:
			ok, err := tx.TransitionQuote(ctx, q.ID, []QuoteStatus{QuoteQuoted}, QuoteAccepted)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrInvalidStateForAcceptance
			}
			fx.count(metricTransitions)
		case QuoteAccepted:
			// the paid invoice supersedes the one issued on re-acceptance
			if _, err := tx.CancelPendingQuoteInvoices(ctx, q.ID); err != nil {
				return nil, err
			}
		}
	}

	ok, err := tx.ReopenInvoice(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvoiceNotPayable
	}
	inv.Status = InvoicePending
	fx.count(metricLatePayments)

	if bookable {
		log.Info("late payment revives quote", zap.Int64("quote_id", q.ID))
		return s.settle(ctx, tx, fx, inv, receipt)
	}

	paid, err := tx.MarkInvoicePaid(ctx, inv.ID, receipt)
	if err != nil {
		return nil, err
	}
	if !paid {
		return nil, ErrAlreadyPaid
	}

	amount := receipt.Amount.StringFixed(2)
	fx.notify(inv.CustomerID, NotifyPaymentReceived,
		fmt.Sprintf("Payment of %s received for invoice %s. Our team will contact you about your booking.", amount, inv.Number),
		invoiceLink(inv.ID))
	if s.opts.AdminUserID != 0 {
		fx.notify(s.opts.AdminUserID, NotifyPaymentNeedsReview,
			fmt.Sprintf("Invoice %s was paid (%s) after it was cancelled. Quote #%d is %s; refund or rebook.",
				inv.Number, amount, q.ID, q.Status),
			invoiceLink(inv.ID))
	}

	log.Warn("payment received for cancelled invoice",
		zap.Int64("quote_id", q.ID),
		zap.String("quote_status", string(q.Status)),
		zap.String("amount", amount),
	)
	return &ConversionResult{InvoiceID: inv.ID}, nil
}

// bookingDates runs an equipment rental for its duration from the requested
// date. Junk removal is a single-day job.
func bookingDates(q *Quote) (time.Time, time.Time) {
	start := q.RequestedDate
	if q.ServiceType == ServiceEquipmentRental && q.Details.Equipment != nil && q.Details.Equipment.DurationDays > 0 {
		return start, start.AddDate(0, 0, q.Details.Equipment.DurationDays)
	}
	return start, start
}

func (s *service) AdminEditInvoice(ctx context.Context, actor ActingUser, invoiceID int64, edit InvoiceEdit) error {
	if !actor.IsStaff() {
		return ErrNotOwner
	}
	items, err := editLineItems(edit)
	if err != nil {
		return err
	}

	return s.run(ctx, "AdminEditInvoice", func(tx Tx, fx *effects) error {
		inv, err := tx.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := checkPayable(inv); err != nil {
			return err
		}

		inv.Discount = money(edit.Discount)
		inv.Tax = money(edit.Tax)
		inv.Amount = InvoiceAmount(items, inv.Discount, inv.Tax)
		if !edit.DueDate.IsZero() {
			inv.DueDate = edit.DueDate
		}

		if err := tx.ReplaceLineItems(ctx, inv.ID, items); err != nil {
			return err
		}
		ok, err := tx.UpdateInvoiceTotals(ctx, inv)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyPaid
		}

		fx.notify(inv.CustomerID, NotifyInvoiceUpdated,
			fmt.Sprintf("Invoice %s was updated. New total: %s.", inv.Number, inv.Amount.StringFixed(2)),
			invoiceLink(inv.ID))
		return nil
	})
}

func (s *service) AdminUpdateBookingStatus(ctx context.Context, actor ActingUser, bookingID int64, status string) error {
	if !actor.IsStaff() {
		return ErrNotOwner
	}
	next, err := ParseBookingStatus(status)
	if err != nil {
		return err
	}
	log := logger.ForMethod(ctx, "service", "AdminUpdateBookingStatus").With(zap.Int64("booking_id", bookingID))

	return s.run(ctx, "AdminUpdateBookingStatus", func(tx Tx, fx *effects) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status == next {
			log.Info("booking already in status", zap.String("status", string(next)))
			return nil
		}

		if err := tx.UpdateBookingStatus(ctx, b.ID, next); err != nil {
			return err
		}
		if err := tx.InsertBookingHistory(ctx, &BookingHistory{
			BookingID: b.ID,
			Status:    next,
			Note:      fmt.Sprintf("Status changed from %s to %s", b.Status.Label(), next.Label()),
		}); err != nil {
			return err
		}

		c, err := tx.GetCustomer(ctx, b.CustomerID)
		if err != nil {
			return err
		}

		fx.notify(b.CustomerID, NotifyBookingStatus,
			fmt.Sprintf("Your booking %s is now %s.", b.Number, next.Label()), bookingLink(b.ID))
		fx.mail(c.Email, mailer.TemplateBookingStatus, mailer.Data{
			"Name":          c.Name,
			"BookingNumber": b.Number,
			"Status":        next.Label(),
			"Link":          bookingLink(b.ID),
		})
		return nil
	})
}

func (s *service) AdminAssignVendor(ctx context.Context, actor ActingUser, bookingID, vendorID int64) error {
	if !actor.IsStaff() {
		return ErrNotOwner
	}
	log := logger.ForMethod(ctx, "service", "AdminAssignVendor").With(
		zap.Int64("booking_id", bookingID),
		zap.Int64("vendor_id", vendorID),
	)

	return s.run(ctx, "AdminAssignVendor", func(tx Tx, fx *effects) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		v, err := tx.GetVendor(ctx, vendorID)
		if err != nil {
			return err
		}
		if !v.Active {
			return ErrVendorNotFoundOrInactive
		}
		if b.VendorID != nil && *b.VendorID == vendorID {
			log.Info("vendor already assigned")
			return nil
		}

		status := b.Status
		if status == BookingPending || status == BookingScheduled {
			status = BookingAssigned
		}
		if err := tx.SetBookingVendor(ctx, b.ID, v.ID, status); err != nil {
			return err
		}
		if err := tx.InsertBookingHistory(ctx, &BookingHistory{
			BookingID: b.ID,
			Status:    status,
			Note:      fmt.Sprintf("Vendor %s assigned", v.Name),
		}); err != nil {
			return err
		}

		c, err := tx.GetCustomer(ctx, b.CustomerID)
		if err != nil {
			return err
		}

		fx.notify(b.CustomerID, NotifyVendorAssigned,
			fmt.Sprintf("%s has been assigned to your booking %s.", v.Name, b.Number), bookingLink(b.ID))
		fx.mail(c.Email, mailer.TemplateVendorAssigned, mailer.Data{
			"Name":          c.Name,
			"BookingNumber": b.Number,
			"VendorName":    v.Name,
			"VendorPhone":   v.Phone,
			"Link":          bookingLink(b.ID),
		})
		return nil
	})
}

func (s *service) RequestPaidAddOnService(ctx context.Context, actor ActingUser, bookingID int64, kind string) (int64, error) {
	k, err := ParseAddOnKind(kind)
	if err != nil {
		return 0, err
	}
	log := logger.ForMethod(ctx, "service", "RequestPaidAddOnService").With(
		zap.Int64("booking_id", bookingID),
		zap.String("kind", string(k)),
	)

	var invoiceID int64
	err = s.run(ctx, "RequestPaidAddOnService", func(tx Tx, fx *effects) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !actor.Owns(b.CustomerID) {
			return ErrNotOwner
		}
		if b.Status.IsTerminal() {
			return ErrBookingClosed
		}

		parent, err := tx.GetInvoice(ctx, b.InvoiceID)
		if err != nil {
			return err
		}
		if parent.QuoteID == nil {
			return ErrNoChargeConfigured
		}
		q, err := tx.GetQuote(ctx, *parent.QuoteID)
		if err != nil {
			return err
		}
		charge := money(q.ChargeFor(k))
		if !charge.IsPositive() {
			return ErrNoChargeConfigured
		}

		existing, found, err := tx.FindPendingAddOnInvoice(ctx, b.ID, k)
		if err != nil {
			return err
		}
		if found {
			log.Info("pending add-on invoice already exists", zap.Int64("invoice_id", existing))
			invoiceID = existing
			return nil
		}

		items := []LineItem{newLineItem(fmt.Sprintf("%s (Booking %s)", k.Label(), b.Number), 1, charge)}
		inv := &Invoice{
			CustomerID: b.CustomerID,
			BookingID:  &b.ID,
			AddOn:      k,
			Number:     s.opts.NewInvoiceNumber(),
			Amount:     InvoiceAmount(items, decimal.Zero, decimal.Zero),
			Status:     InvoicePending,
			DueDate:    s.opts.Now().AddDate(0, 0, addOnDueDays),
			Discount:   decimal.Zero,
			Tax:        decimal.Zero,
		}
		if err := tx.InsertInvoice(ctx, inv); err != nil {
			return fmt.Errorf("%w: %w", ErrInvoiceCreationFailed, err)
		}
		if err := tx.ReplaceLineItems(ctx, inv.ID, items); err != nil {
			return fmt.Errorf("%w: %w", ErrInvoiceCreationFailed, err)
		}
		fx.count(metricInvoices)

		fx.notify(b.CustomerID, NotifyPaymentDue,
			fmt.Sprintf("Invoice %s for %s (%s) is due by %s.",
				inv.Number, k.Label(), inv.Amount.StringFixed(2), inv.DueDate.Format(dateLayout)),
			invoiceLink(inv.ID))

		invoiceID = inv.ID
		log.Info("add-on invoice created", zap.Int64("invoice_id", inv.ID))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return invoiceID, nil
}

func (s *service) SchedulePickup(ctx context.Context, actor ActingUser, bookingID int64, date time.Time, slot string) error {
	if date.IsZero() {
		return ErrInvalidPickup
	}

	return s.run(ctx, "SchedulePickup", func(tx Tx, fx *effects) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !actor.Owns(b.CustomerID) {
			return ErrNotOwner
		}
		if b.Status.IsTerminal() {
			return ErrBookingClosed
		}

		ok, err := tx.SchedulePickup(ctx, b.ID, actor.ID, date, slot)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotOwner
		}

		when := date.Format(dateLayout)
		if slot != "" {
			when += " " + slot
		}
		if err := tx.InsertBookingHistory(ctx, &BookingHistory{
			BookingID: b.ID,
			Status:    BookingAwaitingPickup,
			Note:      "Pickup scheduled for " + when,
		}); err != nil {
			return err
		}

		fx.notify(b.CustomerID, NotifyPickupScheduled,
			fmt.Sprintf("Pickup for booking %s is scheduled for %s.", b.Number, when), bookingLink(b.ID))
		return nil
	})
}

// ExpireAbandonedAcceptances reopens quotes accepted before cutoff whose
// invoice was never paid. Each quote is handled in its own transaction.
func (s *service) ExpireAbandonedAcceptances(ctx context.Context, cutoff time.Time) (int, error) {
	log := logger.ForMethod(ctx, "service", "ExpireAbandonedAcceptances")

	ids, err := s.repo.ExpiredAcceptances(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	var (
		expired int
		errs    error
	)
	for _, id := range ids {
		var reopened bool
		err := s.run(ctx, "ExpireAbandonedAcceptances", func(tx Tx, fx *effects) error {
			q, err := tx.GetQuote(ctx, id)
			if err != nil {
				return err
			}
			if q.Status != QuoteAccepted || q.AcceptedAt == nil || !q.AcceptedAt.Before(cutoff) {
				return nil
			}

			ok, err := tx.TransitionQuote(ctx, q.ID, []QuoteStatus{QuoteAccepted}, QuoteQuoted)
			if err != nil || !ok {
				return err
			}
			cancelled, err := tx.CancelPendingQuoteInvoices(ctx, q.ID)
			if err != nil {
				return err
			}

			fx.count(metricTransitions)
			fx.count(metricExpired)
			fx.notify(q.CustomerID, NotifyQuoteExpired,
				fmt.Sprintf("Your acceptance of quote #%d expired before payment. The quote is open again.", q.ID),
				quoteLink(q.ID))

			log.Info("acceptance expired", zap.Int64("quote_id", q.ID), zap.Int64("invoices_cancelled", cancelled))
			reopened = true
			return nil
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("quote %d: %w", id, err))
			continue
		}
		if reopened {
			expired++
		}
	}

	return expired, errs
}
