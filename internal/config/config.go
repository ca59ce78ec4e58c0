package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string

	InternalSecretKey string

	OTelEndpoint string
	OTelInsecure bool

	XenditSecretKey     string
	XenditCallbackToken string
	Currency            string

	MailProvider     string
	MailFrom         string
	MailWebhookURL   string
	MailWebhookToken string
	SMTPAddr         string

	AdminUserID      int64
	InvoiceDueDays   int
	AcceptedQuoteTTL time.Duration
	ExpiryPoll       time.Duration
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		AppPort:    getEnv("APP_PORT", "8080"),
		AppEnv:     os.Getenv("APP_ENV"),

		InternalSecretKey: os.Getenv("INTERNAL_SECRET_KEY"),

		OTelEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTelInsecure: os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",

		XenditSecretKey:     os.Getenv("XENDIT_APIKEY"),
		XenditCallbackToken: os.Getenv("XENDIT_CALLBACK_TOKEN"),
		Currency:            getEnv("CURRENCY", "USD"),

		MailProvider:     getEnv("MAIL_PROVIDER", "log"),
		MailFrom:         getEnv("MAIL_FROM", "bookings@localhost"),
		MailWebhookURL:   os.Getenv("MAIL_WEBHOOK_URL"),
		MailWebhookToken: os.Getenv("MAIL_WEBHOOK_TOKEN"),
		SMTPAddr:         os.Getenv("SMTP_ADDR"),

		AdminUserID:      int64(readInt("ADMIN_USER_ID", 1)),
		InvoiceDueDays:   readPositiveInt("INVOICE_DUE_DAYS", 7),
		AcceptedQuoteTTL: time.Duration(readPositiveInt("ACCEPTED_QUOTE_TTL_HOURS", 168)) * time.Hour,
		ExpiryPoll:       time.Duration(readPositiveInt("EXPIRY_POLL_SECONDS", 300)) * time.Second,
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readPositiveInt(key string, fallback int) int {
	if value := readInt(key, fallback); value > 0 {
		return value
	}
	return fallback
}
