// Package email sends operational alert mail through Resend. A missing
// API key disables sending; alerts are then logged and dropped.
package email

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/mail"
	"strings"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	"github.com/citylore/server/internal/config"
)

// Alerter delivers scrape-failure and job-failure notifications to the
// configured operator address.
type Alerter struct {
	client *resend.Client
	from   string
	to     string
	logger zerolog.Logger
}

// NewAlerter builds an Alerter from config. Sending is disabled when the
// API key or either address is missing or invalid.
func NewAlerter(cfg config.EmailConfig, logger zerolog.Logger) *Alerter {
	a := &Alerter{
		from:   cfg.AlertFrom,
		to:     cfg.AlertTo,
		logger: logger.With().Str("component", "email").Logger(),
	}
	if cfg.ResendAPIKey == "" || cfg.AlertFrom == "" || cfg.AlertTo == "" {
		a.logger.Info().Msg("alert email not configured; alerts will be logged only")
		return a
	}
	if err := validateAddress(cfg.AlertFrom); err != nil {
		a.logger.Warn().Err(err).Msg("invalid alert sender address; disabling alert email")
		return a
	}
	if err := validateAddress(cfg.AlertTo); err != nil {
		a.logger.Warn().Err(err).Msg("invalid alert recipient address; disabling alert email")
		return a
	}
	a.client = resend.NewClient(cfg.ResendAPIKey)
	return a
}

// Enabled reports whether alerts actually go out.
func (a *Alerter) Enabled() bool {
	return a.client != nil
}

// ScrapeFailure notifies the operator that a scrape run failed.
func (a *Alerter) ScrapeFailure(ctx context.Context, requestID, summary string, errorCount int) error {
	subject := fmt.Sprintf("[citylore] scrape run %s failed", requestID)
	body := fmt.Sprintf("<p>Scrape run <code>%s</code> finished with %d errors.</p><p>%s</p>",
		html.EscapeString(requestID), errorCount, html.EscapeString(summary))
	return a.send(ctx, subject, body)
}

// JobFailure notifies the operator that a background job exhausted its
// retries or panicked.
func (a *Alerter) JobFailure(ctx context.Context, kind string, jobID int64, jobErr error) error {
	subject := fmt.Sprintf("[citylore] job %s #%d failed", kind, jobID)
	detail := ""
	if jobErr != nil {
		detail = jobErr.Error()
	}
	body := fmt.Sprintf("<p>Background job <code>%s</code> (id %d) failed.</p><pre>%s</pre>",
		html.EscapeString(kind), jobID, html.EscapeString(detail))
	return a.send(ctx, subject, body)
}

func (a *Alerter) send(ctx context.Context, subject, htmlBody string) error {
	if a.client == nil {
		a.logger.Warn().Str("subject", subject).Msg("alert email disabled; dropping alert")
		return nil
	}

	params := &resend.SendEmailRequest{
		From:    a.from,
		To:      []string{a.to},
		Subject: subject,
		Html:    htmlBody,
	}
	sent, err := a.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		var rateLimitErr *resend.RateLimitError
		if errors.As(err, &rateLimitErr) {
			a.logger.Warn().
				Str("limit", rateLimitErr.Limit).
				Str("reset", rateLimitErr.Reset).
				Msg("resend rate limit exceeded")
			return fmt.Errorf("alert email rate limited: %w", err)
		}
		return fmt.Errorf("send alert email: %w", err)
	}

	a.logger.Info().Str("email_id", sent.Id).Str("subject", subject).Msg("alert email sent")
	return nil
}

func validateAddress(address string) error {
	addr, err := mail.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("invalid email address %q: %w", address, err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return errors.New("email address contains newline characters")
	}
	return nil
}
