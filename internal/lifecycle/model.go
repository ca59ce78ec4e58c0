package lifecycle

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type ServiceType string

const (
	ServiceEquipmentRental ServiceType = "equipment_rental"
	ServiceJunkRemoval     ServiceType = "junk_removal"
)

type EquipmentDetails struct {
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	DurationDays  int    `json:"duration_days"`
	SpecificNeeds string `json:"specific_needs,omitempty"`
}

type JunkItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type JunkDetails struct {
	Items           []JunkItem `json:"items"`
	MediaURLs       []string   `json:"media_urls,omitempty"`
	RecommendedSize string     `json:"recommended_size,omitempty"`
}

// ServiceDetails is the per-service blob stored as jsonb on quotes and
// copied verbatim onto bookings.
type ServiceDetails struct {
	Equipment *EquipmentDetails `json:"equipment,omitempty"`
	Junk      *JunkDetails      `json:"junk_removal,omitempty"`
}

func (d ServiceDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *ServiceDetails) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = ServiceDetails{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	}
	return errors.New("unsupported service details type")
}

type Quote struct {
	ID               int64
	CustomerID       int64
	ServiceType      ServiceType
	Status           QuoteStatus
	Location         string
	RequestedDate    time.Time
	RequestedTime    string
	QuotedPrice      decimal.NullDecimal
	AdminNotes       string
	DailyRate        decimal.Decimal
	SwapCharge       decimal.Decimal
	RelocationCharge decimal.Decimal
	Discount         decimal.Decimal
	Tax              decimal.Decimal
	Details          ServiceDetails
	AcceptedAt       *time.Time
	CreatedAt        time.Time
}

// ChargeFor returns the configured add-on charge for kind.
func (q *Quote) ChargeFor(kind AddOnKind) decimal.Decimal {
	switch kind {
	case AddOnRelocation:
		return q.RelocationCharge
	case AddOnSwap:
		return q.SwapCharge
	}
	return decimal.Zero
}

type Invoice struct {
	ID            int64
	CustomerID    int64
	QuoteID       *int64
	BookingID     *int64
	AddOn         AddOnKind
	Number        string
	Amount        decimal.Decimal
	Status        InvoiceStatus
	DueDate       time.Time
	Discount      decimal.Decimal
	Tax           decimal.Decimal
	TransactionID string
	PaymentMethod string
	PaidAt        *time.Time
	Items         []LineItem
	CreatedAt     time.Time
}

type LineItem struct {
	ID          int64
	InvoiceID   int64
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
}

type Booking struct {
	ID                   int64
	InvoiceID            int64
	CustomerID           int64
	Number               string
	ServiceType          ServiceType
	Status               BookingStatus
	StartDate            time.Time
	EndDate              time.Time
	DeliveryLocation     string
	DeliveryTime         string
	DeliveryInstructions string
	PickupDate           *time.Time
	PickupTime           string
	VendorID             *int64
	TotalPrice           decimal.Decimal
	Details              ServiceDetails
	CreatedAt            time.Time
}

type BookingHistory struct {
	ID        int64
	BookingID int64
	Status    BookingStatus
	Note      string
	CreatedAt time.Time
}

type NotificationType string

const (
	NotifyQuotePriced        NotificationType = "quote_priced"
	NotifyQuoteRejected      NotificationType = "quote_rejected"
	NotifyQuoteExpired       NotificationType = "quote_acceptance_expired"
	NotifyPaymentDue         NotificationType = "payment_due"
	NotifyPaymentReceived    NotificationType = "payment_received"
	NotifyBookingCreated     NotificationType = "booking_created"
	NotifyBookingStatus      NotificationType = "booking_status"
	NotifyVendorAssigned     NotificationType = "vendor_assigned"
	NotifyPickupScheduled    NotificationType = "pickup_scheduled"
	NotifyInvoiceUpdated     NotificationType = "invoice_updated"
	NotifyAddOnPaid          NotificationType = "addon_paid"
	NotifyCustomerRejected   NotificationType = "customer_rejected_quote"
	NotifyPaymentNeedsReview NotificationType = "payment_needs_review"
)

type Notification struct {
	ID        int64
	UserID    int64
	Type      NotificationType
	Message   string
	Link      string
	Read      bool
	CreatedAt time.Time
}

type Vendor struct {
	ID     int64
	Name   string
	Email  string
	Phone  string
	Active bool
}

type Customer struct {
	ID    int64
	Name  string
	Email string
}

// PaymentReceipt is what the payment collaborator reports for a charge.
type PaymentReceipt struct {
	Amount        decimal.Decimal
	Method        string
	TransactionID string
	PaidAt        time.Time
}

// ConversionResult describes what ConvertInvoiceToBooking did.
// BookingCreated is false for add-on invoices and when the booking existed.
type ConversionResult struct {
	InvoiceID      int64
	BookingID      int64
	BookingNumber  string
	BookingCreated bool
}

type LineItemInput struct {
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
}

type InvoiceEdit struct {
	Items    []LineItemInput
	Discount decimal.Decimal
	Tax      decimal.Decimal
	DueDate  time.Time
}
