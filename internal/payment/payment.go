package payment

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

// Gateway charges a tokenised payment method and authenticates the
// provider's callbacks.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	VerifySignature(r *http.Request) error
}

type ChargeRequest struct {
	ReferenceID   string
	Amount        decimal.Decimal
	Currency      string
	PaymentToken  string
	Method        Method
	CustomerEmail string
}

type ChargeStatus string

const (
	ChargeSucceeded      ChargeStatus = "SUCCEEDED"
	ChargePending        ChargeStatus = "PENDING"
	ChargeRequiresAction ChargeStatus = "REQUIRES_ACTION"
	ChargeFailed         ChargeStatus = "FAILED"
)

type ChargeResult struct {
	Success       bool
	TransactionID string
	Status        ChargeStatus
	Amount        decimal.Decimal
}

type Method string

const (
	MethodCard         Method = "CARD"
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodACH          Method = "ACH"
	MethodCash         Method = "CASH"
)

// ParseMethod accepts the methods the booking flow can settle.
func ParseMethod(raw string) (Method, bool) {
	switch m := Method(raw); m {
	case MethodCard, MethodBankTransfer, MethodACH, MethodCash:
		return m, true
	}
	return "", false
}
