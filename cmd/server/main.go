package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dumpster-be/internal/config"
	"dumpster-be/internal/db"
	"dumpster-be/internal/jobs"
	"dumpster-be/internal/lifecycle"
	"dumpster-be/internal/logger"
	"dumpster-be/internal/mailer"
	"dumpster-be/internal/metrics"
	"dumpster-be/internal/middleware"
	"dumpster-be/internal/payment"
	"dumpster-be/internal/payment/webhook"
	"dumpster-be/internal/telemetry"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	serviceName     = "dumpster-be"
	webhookPath     = "/webhook/payment"
	shutdownTimeout = 10 * time.Second
)

var (
	initDBFunc      = db.InitDB
	startServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
)

type server struct {
	handler http.Handler
	job     *jobs.ExpirationJob
	limiter *middleware.RateLimiter
}

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server exited", zap.Error(err))
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
	})
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.L().Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	s := newServer(cfg, database)
	s.limiter.StartCleanup(ctx, time.Minute)
	s.job.Start(ctx)
	defer s.job.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- startServerFunc(srv) }()
	logger.L().Info("server running", zap.String("addr", srv.Addr))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newServer(cfg *config.Config, database *sql.DB) *server {
	reg := metrics.NewRegistry()
	gateway := payment.NewXenditGateway(cfg.XenditSecretKey, cfg.XenditCallbackToken)

	mail := mailer.New(mailer.Config{
		Provider:     cfg.MailProvider,
		From:         cfg.MailFrom,
		WebhookURL:   cfg.MailWebhookURL,
		WebhookToken: cfg.MailWebhookToken,
		SMTPAddr:     cfg.SMTPAddr,
	})

	svc := lifecycle.NewService(lifecycle.NewRepository(database), mail, gateway, lifecycle.Options{
		AdminUserID:    cfg.AdminUserID,
		InvoiceDueDays: cfg.InvoiceDueDays,
		Currency:       cfg.Currency,
	}, reg)

	webhookHandler := webhook.NewWebhookHandler(svc, gateway, payment.NewRepository(database))
	limiter := middleware.NewRateLimiter(cfg.InternalSecretKey, webhookPath)

	return &server{
		handler: setupRouter(webhookHandler.PaymentWebhookHandler, reg, limiter),
		job:     jobs.NewExpirationJob(svc, cfg.AcceptedQuoteTTL, cfg.ExpiryPoll),
		limiter: limiter,
	}
}

func setupRouter(webhookHandler http.HandlerFunc, reg *metrics.Registry, limiter *middleware.RateLimiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("POST "+webhookPath, webhookHandler)
	mux.Handle("GET /metrics", reg.Handler())

	return otelhttp.NewHandler(
		logger.RequestIDMiddleware(
			logger.LoggingMiddleware(
				limiter.Middleware(mux),
			),
		),
		serviceName,
	)
}
