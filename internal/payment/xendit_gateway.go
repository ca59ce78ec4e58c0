package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"dumpster-be/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	xenditBaseURL = "https://api.xendit.co"
	apiVersion    = "2024-11-11"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

type xenditGateway struct {
	apiKey        string
	callbackToken string
	baseURL       string
	httpClient    *http.Client
}

type xenditPaymentResponse struct {
	PaymentRequestID string          `json:"payment_request_id"`
	ReferenceID      string          `json:"reference_id"`
	RequestAmount    decimal.Decimal `json:"request_amount"`
	Status           string          `json:"status"`
	FailureCode      string          `json:"failure_code,omitempty"`
}

func NewXenditGateway(apiKey, callbackToken string) Gateway {
	if apiKey == "" {
		logger.L().Warn("Xendit API key is empty")
	}

	return &xenditGateway{
		apiKey:        apiKey,
		callbackToken: callbackToken,
		baseURL:       xenditBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Charge creates a one-shot payment request against a stored payment token.
func (x *xenditGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("reference_id", req.ReferenceID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("method", string(req.Method)),
	)

	body := map[string]any{
		"reference_id":     req.ReferenceID,
		"type":             "PAY",
		"capture_method":   "AUTOMATIC",
		"currency":         req.Currency,
		"request_amount":   req.Amount.InexactFloat64(),
		"payment_token_id": req.PaymentToken,
		"metadata": map[string]any{
			"invoice_number": req.ReferenceID,
			"method":         string(req.Method),
		},
	}
	if req.CustomerEmail != "" {
		body["customer"] = map[string]any{
			"type":         "INDIVIDUAL",
			"reference_id": req.ReferenceID,
			"email":        req.CustomerEmail,
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+"/v3/payment_requests", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(x.apiKey, "")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-version", apiVersion)

	log.Info("sending charge to Xendit")

	resp, err := x.httpClient.Do(httpReq)
	if err != nil {
		log.Error("Xendit request failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read xendit response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Error("Xendit returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, fmt.Errorf("xendit error (%d): %s", resp.StatusCode, string(bodyBytes))
	}

	var res xenditPaymentResponse
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		log.Error("failed decoding Xendit response", zap.Error(err))
		return nil, err
	}

	status := ChargeStatus(res.Status)
	log.Info("Xendit charge completed",
		zap.String("payment_request_id", res.PaymentRequestID),
		zap.String("status", res.Status),
		zap.String("failure_code", res.FailureCode),
	)

	return &ChargeResult{
		Success:       status == ChargeSucceeded,
		TransactionID: res.PaymentRequestID,
		Status:        status,
		Amount:        res.RequestAmount,
	}, nil
}

func (x *xenditGateway) VerifySignature(r *http.Request) error {
	if x.callbackToken == "" {
		return nil // skip in dev
	}
	if r.Header.Get("x-callback-token") != x.callbackToken {
		return ErrInvalidSignature
	}
	return nil
}
