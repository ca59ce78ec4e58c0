package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to QuoteStatus
		want     bool
	}{
		{QuotePending, QuoteQuoted, true},
		{QuotePending, QuoteRejected, true},
		{QuotePending, QuoteAccepted, false},
		{QuoteQuoted, QuoteQuoted, true},
		{QuoteQuoted, QuoteAccepted, true},
		{QuoteQuoted, QuoteRejected, true},
		{QuoteQuoted, QuoteConverted, false},
		{QuoteAccepted, QuoteConverted, true},
		{QuoteAccepted, QuoteQuoted, true},
		{QuoteAccepted, QuoteRejected, false},
		{QuoteAccepted, QuotePending, false},
		{QuoteRejected, QuoteQuoted, false},
		{QuoteConverted, QuoteAccepted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestQuoteStatus_IsTerminal(t *testing.T) {
	assert.True(t, QuoteRejected.IsTerminal())
	assert.True(t, QuoteConverted.IsTerminal())
	assert.False(t, QuoteAccepted.IsTerminal())
	assert.False(t, QuotePending.IsTerminal())
}

func TestSourcesOf(t *testing.T) {
	assert.Equal(t, []QuoteStatus{QuotePending, QuoteQuoted}, sourcesOf(QuoteRejected))
	assert.Equal(t, []QuoteStatus{QuoteAccepted}, sourcesOf(QuoteConverted))
	assert.Equal(t, []QuoteStatus{QuoteQuoted}, sourcesOf(QuoteAccepted))
}

func TestInvoiceStatus_Payable(t *testing.T) {
	assert.True(t, InvoicePending.Payable())
	assert.True(t, InvoicePartiallyPaid.Payable())
	assert.False(t, InvoicePaid.Payable())
	assert.False(t, InvoiceCancelled.Payable())
}

func TestParseBookingStatus(t *testing.T) {
	valid := []string{
		"pending", "scheduled", "assigned", "pickedup", "out_for_delivery", "delivered",
		"in_use", "awaiting_pickup", "completed", "cancelled", "relocated", "swapped",
	}
	for _, raw := range valid {
		s, err := ParseBookingStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, BookingStatus(raw), s)
	}
	assert.Len(t, bookingStatuses, len(valid))

	_, err := ParseBookingStatus("Delivered")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = ParseBookingStatus("")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	assert.Equal(t, "Out for delivery", BookingOutForDelivery.Label())
	assert.True(t, BookingCompleted.IsTerminal())
	assert.False(t, BookingAwaitingPickup.IsTerminal())
}

func TestParseAddOnKind(t *testing.T) {
	k, err := ParseAddOnKind("swap")
	require.NoError(t, err)
	assert.Equal(t, AddOnSwap, k)
	assert.Equal(t, "Equipment Swap Service", k.Label())

	_, err = ParseAddOnKind("delivery")
	assert.ErrorIs(t, err, ErrInvalidAddOn)
}

func TestActingUser(t *testing.T) {
	assert.True(t, AsAdmin(1).IsStaff())
	assert.True(t, SystemActor.IsStaff())
	assert.False(t, AsCustomer(10).IsStaff())

	assert.True(t, AsCustomer(10).Owns(10))
	assert.False(t, AsCustomer(11).Owns(10))
	assert.False(t, AsAdmin(10).Owns(10))
}
