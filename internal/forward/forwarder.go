// Package forward delivers normalized messages to their destination.
package forward

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nhle/mailforward/internal/model"
)

// Forwarder delivers one message record.
type Forwarder interface {
	Forward(ctx context.Context, rec model.MessageRecord) error
}

// SendRequest is the transactional-email send call for one message.
type SendRequest struct {
	From            string
	FromName        string
	APIKey          string
	Subject         string
	To              string
	BodyHTML        string
	BodyText        string
	IsTransactional bool
}

// New builds the forwarder selected by cfg.Kind.
func New(cfg model.ForwarderConfig, log zerolog.Logger) (Forwarder, error) {
	switch cfg.Kind {
	case model.ForwarderElastic, "":
		return NewElastic(cfg, log), nil
	case model.ForwarderSMTP:
		return NewSMTP(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown forwarder kind %q", cfg.Kind)
	}
}

// buildRequest maps a record onto a send request. The record's sender
// is used for both address and display name; when the body held no
// address the configured defaults apply.
func buildRequest(cfg model.ForwarderConfig, rec model.MessageRecord) SendRequest {
	req := SendRequest{
		From:            rec.From,
		FromName:        rec.From,
		APIKey:          cfg.APIKey,
		Subject:         rec.Subject,
		To:              cfg.To,
		BodyHTML:        rec.Body,
		BodyText:        rec.Body,
		IsTransactional: cfg.Transactional,
	}
	if req.From == "" {
		req.From = cfg.From
		req.FromName = cfg.FromName
	}
	return req
}

// splitRecipients splits a ";" or "," separated recipient list.
func splitRecipients(to string) []string {
	fields := strings.FieldsFunc(to, func(r rune) bool {
		return r == ';' || r == ','
	})

	recipients := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			recipients = append(recipients, f)
		}
	}
	return recipients
}
