package lifecycle

type QuoteStatus string

const (
	QuotePending   QuoteStatus = "pending"
	QuoteQuoted    QuoteStatus = "quoted"
	QuoteAccepted  QuoteStatus = "accepted"
	QuoteRejected  QuoteStatus = "rejected"
	QuoteConverted QuoteStatus = "converted_to_booking"
)

// quoteTransitions lists every legal move. quoted -> quoted is a re-price,
// accepted -> quoted only happens when an unpaid acceptance expires.
var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuotePending:  {QuoteQuoted, QuoteRejected},
	QuoteQuoted:   {QuoteQuoted, QuoteRejected, QuoteAccepted},
	QuoteAccepted: {QuoteConverted, QuoteQuoted},
}

func (s QuoteStatus) CanTransitionTo(next QuoteStatus) bool {
	for _, allowed := range quoteTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s QuoteStatus) IsTerminal() bool {
	return s == QuoteRejected || s == QuoteConverted
}

// sourcesOf returns the statuses that may move to next.
func sourcesOf(next QuoteStatus) []QuoteStatus {
	var from []QuoteStatus
	for _, s := range []QuoteStatus{QuotePending, QuoteQuoted, QuoteAccepted} {
		if s.CanTransitionTo(next) {
			from = append(from, s)
		}
	}
	return from
}

type InvoiceStatus string

const (
	InvoicePending       InvoiceStatus = "pending"
	InvoicePaid          InvoiceStatus = "paid"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceCancelled     InvoiceStatus = "cancelled"
)

// Payable reports whether a payment may still be applied.
func (s InvoiceStatus) Payable() bool {
	return s == InvoicePending || s == InvoicePartiallyPaid
}

type BookingStatus string

const (
	BookingPending        BookingStatus = "pending"
	BookingScheduled      BookingStatus = "scheduled"
	BookingAssigned       BookingStatus = "assigned"
	BookingPickedUp       BookingStatus = "pickedup"
	BookingOutForDelivery BookingStatus = "out_for_delivery"
	BookingDelivered      BookingStatus = "delivered"
	BookingInUse          BookingStatus = "in_use"
	BookingAwaitingPickup BookingStatus = "awaiting_pickup"
	BookingCompleted      BookingStatus = "completed"
	BookingCancelled      BookingStatus = "cancelled"
	BookingRelocated      BookingStatus = "relocated"
	BookingSwapped        BookingStatus = "swapped"
)

var bookingStatuses = map[BookingStatus]string{
	BookingPending:        "Pending",
	BookingScheduled:      "Scheduled",
	BookingAssigned:       "Assigned",
	BookingPickedUp:       "Picked up",
	BookingOutForDelivery: "Out for delivery",
	BookingDelivered:      "Delivered",
	BookingInUse:          "In use",
	BookingAwaitingPickup: "Awaiting pickup",
	BookingCompleted:      "Completed",
	BookingCancelled:      "Cancelled",
	BookingRelocated:      "Relocated",
	BookingSwapped:        "Swapped",
}

func ParseBookingStatus(raw string) (BookingStatus, error) {
	s := BookingStatus(raw)
	if _, ok := bookingStatuses[s]; !ok {
		return "", ErrInvalidStatus
	}
	return s, nil
}

func (s BookingStatus) Label() string {
	if l, ok := bookingStatuses[s]; ok {
		return l
	}
	return string(s)
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

type AddOnKind string

const (
	AddOnRelocation AddOnKind = "relocation"
	AddOnSwap       AddOnKind = "swap"
)

func ParseAddOnKind(raw string) (AddOnKind, error) {
	switch k := AddOnKind(raw); k {
	case AddOnRelocation, AddOnSwap:
		return k, nil
	}
	return "", ErrInvalidAddOn
}

func (k AddOnKind) Label() string {
	switch k {
	case AddOnRelocation:
		return "Relocation Service"
	case AddOnSwap:
		return "Equipment Swap Service"
	}
	return string(k)
}
