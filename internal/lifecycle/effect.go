package lifecycle

import (
	"context"
	"fmt"

	"dumpster-be/internal/logger"
	"dumpster-be/internal/mailer"
	"dumpster-be/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("dumpster-be/internal/lifecycle")

type pendingMail struct {
	to       string
	template mailer.Template
	data     mailer.Data
}

// effects collects what an operation wants to happen besides its own
// writes. Notifications are persisted inside the transaction; mails and
// counters are applied only after commit.
type effects struct {
	notifications []Notification
	mails         []pendingMail
	counters      []string
}

func (fx *effects) notify(userID int64, typ NotificationType, message, link string) {
	fx.notifications = append(fx.notifications, Notification{
		UserID:  userID,
		Type:    typ,
		Message: message,
		Link:    link,
	})
}

func (fx *effects) mail(to string, tpl mailer.Template, data mailer.Data) {
	if to == "" {
		return
	}
	fx.mails = append(fx.mails, pendingMail{to: to, template: tpl, data: data})
}

func (fx *effects) count(name string) {
	fx.counters = append(fx.counters, name)
}

// run executes mutate in one transaction, persists the notifications it
// queued and, once committed, sends its mails.
func (s *service) run(ctx context.Context, method string, mutate func(tx Tx, fx *effects) error) error {
	ctx, span := tracer.Start(ctx, "lifecycle."+method)
	defer span.End()

	log := logger.ForMethod(ctx, "service", method)
	timer := metrics.StartTimer()

	var fx *effects
	err := s.repo.WithTx(ctx, func(tx Tx) error {
		fx = &effects{}
		if err := mutate(tx, fx); err != nil {
			return err
		}
		for i := range fx.notifications {
			if err := tx.InsertNotification(ctx, &fx.notifications[i]); err != nil {
				return fmt.Errorf("insert notification: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Warn("operation rolled back",
			zap.Error(err),
			zap.String("kind", KindOf(err).String()),
			zap.Duration("duration", timer.Duration()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err).String())
		return err
	}

	s.metrics.Counter(metricNotifications).Add(uint64(len(fx.notifications)))
	for _, name := range fx.counters {
		s.metrics.Counter(name).Inc()
	}

	span.SetAttributes(
		attribute.Int("notifications", len(fx.notifications)),
		attribute.Int("emails", len(fx.mails)),
	)
	log.Debug("operation committed",
		zap.Int("notifications", len(fx.notifications)),
		zap.Int("emails", len(fx.mails)),
		zap.Duration("duration", timer.Duration()),
	)

	s.dispatch(ctx, log, fx.mails)
	return nil
}

// dispatch sends mails best-effort. A failed send is logged and counted.
func (s *service) dispatch(ctx context.Context, log *zap.Logger, mails []pendingMail) {
	for _, m := range mails {
		msg, err := mailer.Compose(m.to, m.template, m.data)
		if err == nil {
			err = s.mailer.Send(ctx, msg)
		}
		if err != nil {
			s.metrics.Counter(metricEmailsFailed).Inc()
			log.Error("failed to send email",
				zap.String("to", m.to),
				zap.String("template", string(m.template)),
				zap.Error(err),
			)
			continue
		}
		s.metrics.Counter(metricEmailsSent).Inc()
	}
}
