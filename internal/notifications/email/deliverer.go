// Package email delivers rendered reports: it assembles a single multipart
// message per run and hands it to the configured provider, redirecting to the
// override address when one is configured.
package email

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"safetyreports/internal/external"
	"safetyreports/internal/types"
)

// Request is one report email.
type Request struct {
	Recipients  []string
	Subject     string
	Body        string
	Attachments []types.Attachment
	// ReferenceID tags the message at the provider, normally the schedule ID.
	ReferenceID string
}

// Result describes an accepted send.
type Result struct {
	ProviderMessageID string
	// DeliveredTo is where the message actually went.
	DeliveredTo []string
	Overridden  bool
}

// Config holds Deliverer dependencies.
type Config struct {
	Provider external.EmailProvider
	From     types.SenderIdentity
	// OverrideTo, when set, replaces the recipients of every send.
	OverrideTo string
	Logger     *slog.Logger
}

// Deliverer sends report emails through an external.EmailProvider.
type Deliverer struct {
	provider   external.EmailProvider
	from       types.SenderIdentity
	overrideTo string
	logger     *slog.Logger

	now         func() time.Time
	newBoundary func() string
}

// NewDeliverer creates a Deliverer.
func NewDeliverer(cfg Config) *Deliverer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{
		provider:    cfg.Provider,
		from:        cfg.From,
		overrideTo:  cfg.OverrideTo,
		logger:      logger,
		now:         time.Now,
		newBoundary: func() string { return "sr-" + uuid.NewString() },
	}
}

// Deliver sends req as one message carrying every attachment. With an
// override configured the message goes only to the override address; the
// caller sees the same success or failure it would have seen otherwise.
func (d *Deliverer) Deliver(ctx context.Context, req Request) (Result, error) {
	if len(req.Recipients) == 0 {
		return Result{}, ErrNoRecipients
	}

	to := req.Recipients
	overridden := false
	if d.overrideTo != "" {
		d.logger.WarnContext(ctx, "email override active, redirecting report",
			"override_to", RedactEmail(d.overrideTo),
			"original_recipients", RedactAll(req.Recipients),
			"reference_id", req.ReferenceID,
		)
		to = []string{d.overrideTo}
		overridden = true
	}

	msg := types.EmailMessage{
		From:        d.from,
		To:          append([]string(nil), to...),
		Subject:     req.Subject,
		BodyText:    req.Body,
		Attachments: req.Attachments,
		ReferenceID: req.ReferenceID,
	}
	raw, err := encodeMIME(msg, d.newBoundary(), "<"+uuid.NewString()+"@safetyreports>", d.now())
	if err != nil {
		return Result{}, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode report email", err)
	}
	msg.Raw = raw

	msgID, err := d.provider.Send(ctx, msg)
	if err != nil {
		attrs := []any{
			"recipients", RedactAll(to),
			"reference_id", req.ReferenceID,
			"error", err,
		}
		switch {
		case IsBlocklistError(err):
			d.logger.WarnContext(ctx, "report email blocked by provider", attrs...)
		case IsTransient(err):
			d.logger.WarnContext(ctx, "report email send failed, provider unavailable", attrs...)
		default:
			d.logger.ErrorContext(ctx, "report email send failed", attrs...)
		}
		return Result{}, err
	}

	d.logger.InfoContext(ctx, "report email sent",
		"provider_message_id", msgID,
		"recipients", RedactAll(to),
		"attachments", len(req.Attachments),
		"bytes", len(raw),
		"overridden", overridden,
	)
	return Result{ProviderMessageID: msgID, DeliveredTo: msg.To, Overridden: overridden}, nil
}
