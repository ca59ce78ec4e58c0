package lifecycle

import "errors"

var (
	ErrQuoteNotFound            = errors.New("quote not found")
	ErrInvoiceNotFound          = errors.New("invoice not found")
	ErrBookingNotFound          = errors.New("booking not found")
	ErrCustomerNotFound         = errors.New("customer not found")
	ErrVendorNotFoundOrInactive = errors.New("vendor not found or inactive")

	ErrInvalidStateForPricing    = errors.New("quote can no longer be priced")
	ErrInvalidStateForRejection  = errors.New("only pending or quoted quotes can be rejected")
	ErrInvalidStateForAcceptance = errors.New("only quoted quotes can be accepted")
	ErrInvoiceNotPayable         = errors.New("invoice is cancelled")
	ErrAlreadyPaid               = errors.New("invoice already paid")
	ErrBookingClosed             = errors.New("booking is completed or cancelled")
	ErrBookingAlreadyExists      = errors.New("booking already exists for invoice")

	ErrNotOwner = errors.New("not allowed to act on this record")

	ErrInvalidPrice              = errors.New("price must be greater than zero")
	ErrNoPriceSet                = errors.New("quote has no price set")
	ErrInvalidStatus             = errors.New("invalid booking status")
	ErrInvalidAddOn              = errors.New("add-on service must be relocation or swap")
	ErrNoChargeConfigured        = errors.New("no charge configured for this service")
	ErrPartialPaymentUnsupported = errors.New("partial payments are not supported")
	ErrInvalidPickup             = errors.New("pickup date is required")
	ErrInvalidInvoiceEdit        = errors.New("invoice edit needs at least one valid line item and non-negative adjustments")
	ErrInvalidPaymentMethod      = errors.New("unsupported payment method")

	ErrInvoiceCreationFailed = errors.New("invoice creation failed")
	ErrPaymentGateway        = errors.New("payment gateway error")
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidState
	KindNotOwner
	KindValidation
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindNotOwner:
		return "not_owner"
	case KindValidation:
		return "validation"
	case KindDependency:
		return "dependency"
	}
	return "unknown"
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrQuoteNotFound, KindNotFound},
	{ErrInvoiceNotFound, KindNotFound},
	{ErrBookingNotFound, KindNotFound},
	{ErrCustomerNotFound, KindNotFound},
	{ErrVendorNotFoundOrInactive, KindNotFound},
	{ErrInvalidStateForPricing, KindInvalidState},
	{ErrInvalidStateForRejection, KindInvalidState},
	{ErrInvalidStateForAcceptance, KindInvalidState},
	{ErrInvoiceNotPayable, KindInvalidState},
	{ErrAlreadyPaid, KindInvalidState},
	{ErrBookingClosed, KindInvalidState},
	{ErrBookingAlreadyExists, KindInvalidState},
	{ErrNotOwner, KindNotOwner},
	{ErrInvalidPrice, KindValidation},
	{ErrNoPriceSet, KindValidation},
	{ErrInvalidStatus, KindValidation},
	{ErrInvalidAddOn, KindValidation},
	{ErrNoChargeConfigured, KindValidation},
	{ErrPartialPaymentUnsupported, KindValidation},
	{ErrInvalidPickup, KindValidation},
	{ErrInvalidInvoiceEdit, KindValidation},
	{ErrInvalidPaymentMethod, KindValidation},
	{ErrInvoiceCreationFailed, KindDependency},
	{ErrPaymentGateway, KindDependency},
}

// KindOf classifies err by the first sentinel it wraps. Unrecognised
// errors (driver failures and the like) are dependency failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindDependency
}
