package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

type webhookMailer struct {
	url        string
	token      string
	from       string
	httpClient *http.Client
}

func newWebhookMailer(cfg Config) *webhookMailer {
	return &webhookMailer{
		url:        cfg.WebhookURL,
		token:      cfg.WebhookToken,
		from:       cfg.From,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (m *webhookMailer) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(map[string]string{
		"from":    m.from,
		"to":      msg.To,
		"subject": msg.Subject,
		"html":    msg.HTML,
		"text":    msg.Text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook returned %d", ErrProviderFailure, resp.StatusCode)
	}
	return nil
}

type smtpMailer struct {
	addr string
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func newSMTPMailer(cfg Config) *smtpMailer {
	return &smtpMailer{addr: cfg.SMTPAddr, from: cfg.From, send: smtp.SendMail}
}

func (m *smtpMailer) Send(_ context.Context, msg Message) error {
	return m.send(m.addr, nil, m.from, []string{msg.To}, m.encode(msg))
}

// encode builds a multipart/alternative message with text and html parts.
func (m *smtpMailer) encode(msg Message) []byte {
	const boundary = "dumpster-be-alt"

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.Text)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.HTML)
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String())
}
