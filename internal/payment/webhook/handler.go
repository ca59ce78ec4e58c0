package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"dumpster-be/internal/lifecycle"
	"dumpster-be/internal/logger"
	"dumpster-be/internal/payment"
	"dumpster-be/internal/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const provider = "XENDIT"

// Settler converts a paid invoice into its booking.
type Settler interface {
	ConvertInvoiceByNumber(ctx context.Context, number string, receipt lifecycle.PaymentReceipt) (*lifecycle.ConversionResult, error)
}

// Payload is the payment callback body.
type Payload struct {
	Event string      `json:"event"`
	Data  PayloadData `json:"data"`
}

type PayloadData struct {
	PaymentID        string          `json:"payment_id"`
	PaymentRequestID string          `json:"payment_request_id"`
	ReferenceID      string          `json:"reference_id"`
	Status           string          `json:"status"`
	RequestAmount    decimal.Decimal `json:"request_amount"`
	Currency         string          `json:"currency"`
	PaymentMethod    string          `json:"payment_method"`
	Created          *time.Time      `json:"created,omitempty"`
}

func (d PayloadData) eventID() string {
	if d.PaymentID != "" {
		return d.PaymentID
	}
	return d.PaymentRequestID
}

type Handler struct {
	settler Settler
	gateway payment.Gateway
	repo    payment.Repository
	now     func() time.Time
}

func NewWebhookHandler(settler Settler, gateway payment.Gateway, repo payment.Repository) *Handler {
	return &Handler{
		settler: settler,
		gateway: gateway,
		repo:    repo,
		now:     time.Now,
	}
}

func (h *Handler) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(zap.String("handler", "PaymentWebhook"))

	if err := h.gateway.VerifySignature(r); err != nil {
		log.Warn("invalid webhook signature", zap.Error(err))
		utils.WriteJSONError(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		utils.WriteJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn("invalid webhook payload", zap.Error(err))
		utils.WriteJSONError(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if payload.Data.ReferenceID == "" || payload.Data.eventID() == "" {
		utils.WriteJSONError(w, "missing reference or event id", http.StatusBadRequest)
		return
	}

	log = log.With(
		zap.String("event", payload.Event),
		zap.String("reference_id", payload.Data.ReferenceID),
		zap.String("status", payload.Data.Status),
	)

	webhookID, processed, err := h.repo.SavePaymentWebhook(ctx, payment.WebhookEvent{
		Provider:       provider,
		EventID:        payload.Data.eventID(),
		EventType:      payload.Event,
		ExternalID:     payload.Data.ReferenceID,
		Payload:        body,
		SignatureValid: true,
	})
	if err != nil {
		log.Error("failed to store webhook", zap.Error(err))
		utils.WriteJSONError(w, "failed to store webhook", http.StatusInternalServerError)
		return
	}
	if processed {
		log.Info("webhook already processed")
		w.WriteHeader(http.StatusOK)
		return
	}

	switch payload.Data.Status {
	case "SUCCEEDED", "PAID":
	default:
		log.Info("webhook status ignored")
		h.markProcessed(ctx, log, webhookID)
		w.WriteHeader(http.StatusOK)
		return
	}

	paidAt := h.now()
	if payload.Data.Created != nil {
		paidAt = *payload.Data.Created
	}
	method := payload.Data.PaymentMethod
	if method == "" {
		method = string(payment.MethodCard)
	}

	res, err := h.settler.ConvertInvoiceByNumber(ctx, payload.Data.ReferenceID, lifecycle.PaymentReceipt{
		Amount:        payload.Data.RequestAmount,
		Method:        method,
		TransactionID: payload.Data.PaymentRequestID,
		PaidAt:        paidAt,
	})
	if errors.Is(err, lifecycle.ErrAlreadyPaid) {
		log.Info("invoice already settled")
		h.markProcessed(ctx, log, webhookID)
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		log.Error("failed to settle invoice", zap.Error(err))
		if mErr := h.repo.MarkWebhookFailed(ctx, webhookID, err.Error()); mErr != nil {
			log.Error("failed to mark webhook failed", zap.Error(mErr))
		}
		utils.WriteJSONError(w, err.Error(), statusFor(err))
		return
	}

	log.Info("invoice settled",
		zap.Int64("invoice_id", res.InvoiceID),
		zap.Int64("booking_id", res.BookingID),
		zap.Bool("booking_created", res.BookingCreated),
	)
	h.markProcessed(ctx, log, webhookID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) markProcessed(ctx context.Context, log *zap.Logger, webhookID int64) {
	if err := h.repo.MarkWebhookProcessed(ctx, webhookID); err != nil {
		log.Error("failed to mark webhook processed", zap.Error(err))
	}
}

func statusFor(err error) int {
	switch lifecycle.KindOf(err) {
	case lifecycle.KindNotFound:
		return http.StatusNotFound
	case lifecycle.KindValidation, lifecycle.KindInvalidState:
		return http.StatusUnprocessableEntity
	case lifecycle.KindNotOwner:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
