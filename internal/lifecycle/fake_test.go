package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"dumpster-be/internal/mailer"
	"dumpster-be/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// fakeState is an in-memory copy of the tables the lifecycle touches.
type fakeState struct {
	quotes        map[int64]Quote
	invoices      map[int64]Invoice
	items         map[int64][]LineItem
	bookings      map[int64]Booking
	history       []BookingHistory
	notifications []Notification
	customers     map[int64]Customer
	vendors       map[int64]Vendor
	nextID        int64
}

func newFakeState() *fakeState {
	return &fakeState{
		quotes:    map[int64]Quote{},
		invoices:  map[int64]Invoice{},
		items:     map[int64][]LineItem{},
		bookings:  map[int64]Booking{},
		customers: map[int64]Customer{},
		vendors:   map[int64]Vendor{},
		nextID:    100,
	}
}

func (s *fakeState) clone() *fakeState {
	c := &fakeState{
		quotes:        make(map[int64]Quote, len(s.quotes)),
		invoices:      make(map[int64]Invoice, len(s.invoices)),
		items:         make(map[int64][]LineItem, len(s.items)),
		bookings:      make(map[int64]Booking, len(s.bookings)),
		history:       append([]BookingHistory(nil), s.history...),
		notifications: append([]Notification(nil), s.notifications...),
		customers:     s.customers,
		vendors:       s.vendors,
		nextID:        s.nextID,
	}
	for k, v := range s.quotes {
		c.quotes[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]LineItem(nil), v...)
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	return c
}

func (s *fakeState) id() int64 {
	s.nextID++
	return s.nextID
}

type fakeRepo struct {
	state *fakeState
	now   func() time.Time

	// failOn makes the named Tx method return the error.
	failOn map[string]error
	// staleQuotes makes TransitionQuote match no row, as if another
	// transaction had moved the quote first.
	staleQuotes bool
}

func newFakeRepo(now func() time.Time) *fakeRepo {
	return &fakeRepo{state: newFakeState(), now: now, failOn: map[string]error{}}
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	work := r.state.clone()
	if err := fn(&fakeTx{s: work, repo: r}); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *fakeRepo) InvoiceIDByNumber(_ context.Context, number string) (int64, error) {
	for id, inv := range r.state.invoices {
		if inv.Number == number {
			return id, nil
		}
	}
	return 0, ErrInvoiceNotFound
}

func (r *fakeRepo) ExpiredAcceptances(_ context.Context, cutoff time.Time) ([]int64, error) {
	if err := r.failOn["ExpiredAcceptances"]; err != nil {
		return nil, err
	}
	var ids []int64
	for id, q := range r.state.quotes {
		if q.Status == QuoteAccepted && q.AcceptedAt != nil && q.AcceptedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// helpers for assertions

func (r *fakeRepo) quote(id int64) Quote     { return r.state.quotes[id] }
func (r *fakeRepo) invoice(id int64) Invoice { return r.state.invoices[id] }

func (r *fakeRepo) notificationsFor(userID int64) []Notification {
	var out []Notification
	for _, n := range r.state.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (r *fakeRepo) bookingsForInvoice(invoiceID int64) []Booking {
	var out []Booking
	for _, b := range r.state.bookings {
		if b.InvoiceID == invoiceID {
			out = append(out, b)
		}
	}
	return out
}

func (r *fakeRepo) historyFor(bookingID int64) []BookingHistory {
	var out []BookingHistory
	for _, h := range r.state.history {
		if h.BookingID == bookingID {
			out = append(out, h)
		}
	}
	return out
}

type fakeTx struct {
	s    *fakeState
	repo *fakeRepo
}

func (t *fakeTx) fail(method string) error {
	return t.repo.failOn[method]
}

func (t *fakeTx) GetQuote(_ context.Context, id int64) (*Quote, error) {
	if err := t.fail("GetQuote"); err != nil {
		return nil, err
	}
	q, ok := t.s.quotes[id]
	if !ok {
		return nil, ErrQuoteNotFound
	}
	return &q, nil
}

func (t *fakeTx) SetQuotePrice(_ context.Context, id int64, price decimal.Decimal, notes string) (bool, error) {
	if err := t.fail("SetQuotePrice"); err != nil {
		return false, err
	}
	q, ok := t.s.quotes[id]
	if !ok || (q.Status != QuotePending && q.Status != QuoteQuoted) {
		return false, nil
	}
	q.Status = QuoteQuoted
	q.QuotedPrice = decimal.NewNullDecimal(price)
	q.AdminNotes = notes
	t.s.quotes[id] = q
	return true, nil
}

func (t *fakeTx) TransitionQuote(_ context.Context, id int64, from []QuoteStatus, to QuoteStatus) (bool, error) {
	if err := t.fail("TransitionQuote"); err != nil {
		return false, err
	}
	if t.repo.staleQuotes {
		return false, nil
	}
	q, ok := t.s.quotes[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, f := range from {
		if q.Status == f {
			matched = true
		}
	}
	if !matched {
		return false, nil
	}
	q.Status = to
	switch to {
	case QuoteAccepted:
		now := t.repo.now()
		q.AcceptedAt = &now
	case QuoteQuoted:
		q.AcceptedAt = nil
	}
	t.s.quotes[id] = q
	return true, nil
}

func (t *fakeTx) GetCustomer(_ context.Context, id int64) (*Customer, error) {
	c, ok := t.s.customers[id]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	return &c, nil
}

func (t *fakeTx) GetVendor(_ context.Context, id int64) (*Vendor, error) {
	v, ok := t.s.vendors[id]
	if !ok {
		return nil, ErrVendorNotFoundOrInactive
	}
	return &v, nil
}

func (t *fakeTx) GetInvoice(_ context.Context, id int64) (*Invoice, error) {
	inv, ok := t.s.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	inv.Items = append([]LineItem(nil), t.s.items[id]...)
	return &inv, nil
}

func (t *fakeTx) InsertInvoice(_ context.Context, inv *Invoice) error {
	if err := t.fail("InsertInvoice"); err != nil {
		return err
	}
	for _, existing := range t.s.invoices {
		if existing.Number == inv.Number {
			return fmt.Errorf("duplicate invoice_number %s", inv.Number)
		}
	}
	inv.ID = t.s.id()
	inv.CreatedAt = t.repo.now()
	stored := *inv
	stored.Items = nil
	t.s.invoices[inv.ID] = stored
	return nil
}

func (t *fakeTx) ReplaceLineItems(_ context.Context, invoiceID int64, items []LineItem) error {
	if err := t.fail("ReplaceLineItems"); err != nil {
		return err
	}
	out := make([]LineItem, len(items))
	for i, it := range items {
		it.ID = t.s.id()
		it.InvoiceID = invoiceID
		out[i] = it
	}
	t.s.items[invoiceID] = out
	return nil
}

func (t *fakeTx) MarkInvoicePaid(_ context.Context, id int64, receipt PaymentReceipt) (bool, error) {
	inv, ok := t.s.invoices[id]
	if !ok || !inv.Status.Payable() {
		return false, nil
	}
	inv.Status = InvoicePaid
	inv.TransactionID = receipt.TransactionID
	inv.PaymentMethod = receipt.Method
	paidAt := receipt.PaidAt
	inv.PaidAt = &paidAt
	t.s.invoices[id] = inv
	return true, nil
}

func (t *fakeTx) UpdateInvoiceTotals(_ context.Context, in *Invoice) (bool, error) {
	inv, ok := t.s.invoices[in.ID]
	if !ok || !inv.Status.Payable() {
		return false, nil
	}
	inv.Amount, inv.Discount, inv.Tax, inv.DueDate = in.Amount, in.Discount, in.Tax, in.DueDate
	t.s.invoices[in.ID] = inv
	return true, nil
}

func (t *fakeTx) CancelPendingQuoteInvoices(_ context.Context, quoteID int64) (int64, error) {
	var n int64
	for id, inv := range t.s.invoices {
		if inv.QuoteID != nil && *inv.QuoteID == quoteID && inv.Status == InvoicePending {
			inv.Status = InvoiceCancelled
			t.s.invoices[id] = inv
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) ReopenInvoice(_ context.Context, id int64) (bool, error) {
	if err := t.fail("ReopenInvoice"); err != nil {
		return false, err
	}
	inv, ok := t.s.invoices[id]
	if !ok || inv.Status != InvoiceCancelled {
		return false, nil
	}
	inv.Status = InvoicePending
	t.s.invoices[id] = inv
	return true, nil
}

func (t *fakeTx) FindPendingAddOnInvoice(_ context.Context, bookingID int64, kind AddOnKind) (int64, bool, error) {
	for id, inv := range t.s.invoices {
		if inv.BookingID != nil && *inv.BookingID == bookingID && inv.AddOn == kind && inv.Status == InvoicePending {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (t *fakeTx) GetBooking(_ context.Context, id int64) (*Booking, error) {
	b, ok := t.s.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return &b, nil
}

func (t *fakeTx) BookingIDForInvoice(_ context.Context, invoiceID int64) (int64, bool, error) {
	for id, b := range t.s.bookings {
		if b.InvoiceID == invoiceID {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (t *fakeTx) InsertBooking(_ context.Context, b *Booking) error {
	if err := t.fail("InsertBooking"); err != nil {
		return err
	}
	for _, existing := range t.s.bookings {
		if existing.InvoiceID == b.InvoiceID {
			return fmt.Errorf("duplicate bookings.invoice_id %d", b.InvoiceID)
		}
	}
	b.ID = t.s.id()
	b.CreatedAt = t.repo.now()
	t.s.bookings[b.ID] = *b
	return nil
}

func (t *fakeTx) UpdateBookingStatus(_ context.Context, id int64, status BookingStatus) error {
	b := t.s.bookings[id]
	b.Status = status
	t.s.bookings[id] = b
	return nil
}

func (t *fakeTx) SetBookingVendor(_ context.Context, id, vendorID int64, status BookingStatus) error {
	b := t.s.bookings[id]
	b.VendorID = &vendorID
	b.Status = status
	t.s.bookings[id] = b
	return nil
}

func (t *fakeTx) SchedulePickup(_ context.Context, id, customerID int64, date time.Time, slot string) (bool, error) {
	b, ok := t.s.bookings[id]
	if !ok || b.CustomerID != customerID {
		return false, nil
	}
	b.Status = BookingAwaitingPickup
	b.PickupDate = &date
	b.PickupTime = slot
	t.s.bookings[id] = b
	return true, nil
}

func (t *fakeTx) InsertBookingHistory(_ context.Context, h *BookingHistory) error {
	h.ID = t.s.id()
	h.CreatedAt = t.repo.now()
	t.s.history = append(t.s.history, *h)
	return nil
}

func (t *fakeTx) InsertNotification(_ context.Context, n *Notification) error {
	if err := t.fail("InsertNotification"); err != nil {
		return err
	}
	n.ID = t.s.id()
	n.CreatedAt = t.repo.now()
	t.s.notifications = append(t.s.notifications, *n)
	return nil
}

type MockMailer struct{ mock.Mock }

func (m *MockMailer) Send(ctx context.Context, msg mailer.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type MockGateway struct{ mock.Mock }

func (m *MockGateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.ChargeResult), args.Error(1)
}

func (m *MockGateway) VerifySignature(r *http.Request) error {
	return m.Called(r).Error(0)
}
