package forward

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"

	"github.com/nhle/mailforward/internal/model"
)

// SMTP forwards records by relaying them through an SMTP server.
type SMTP struct {
	cfg model.ForwarderConfig
	log zerolog.Logger
	now func() time.Time
}

// NewSMTP creates an SMTP forwarder.
func NewSMTP(cfg model.ForwarderConfig, log zerolog.Logger) *SMTP {
	return &SMTP{
		cfg: cfg,
		log: log.With().Str("component", "forward.smtp").Logger(),
		now: time.Now,
	}
}

// Forward composes rec as a plain-text message and sends it to the
// configured recipients. The whole exchange is bounded by ctx and the
// configured timeout.
func (s *SMTP) Forward(ctx context.Context, rec model.MessageRecord) error {
	req := buildRequest(s.cfg, rec)

	recipients := splitRecipients(req.To)
	if len(recipients) == 0 {
		return errors.New("no recipients configured")
	}

	msg, err := composeMessage(req, recipients, s.now())
	if err != nil {
		return err
	}

	envelopeFrom := s.cfg.SMTP.Username
	if envelopeFrom == "" {
		envelopeFrom = req.From
	}

	if s.cfg.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSec)*time.Second)
		defer cancel()
	}

	s.log.Debug().
		Str("host", s.cfg.SMTP.Host).
		Str("from", req.From).
		Strs("to", recipients).
		Str("subject", req.Subject).
		Msg("sending message")

	client, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if s.cfg.SMTP.Username != "" {
		auth := sasl.NewPlainClient("", s.cfg.SMTP.Username, s.cfg.SMTP.Password)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth: %w", err)
		}
	}

	if err := client.SendMail(envelopeFrom, recipients, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}

	return client.Quit()
}

// dial connects with implicit TLS or STARTTLS depending on configuration.
// The connection deadline follows ctx.
func (s *SMTP) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(s.cfg.SMTP.Host, s.cfg.SMTP.Port)
	tlsConfig := &tls.Config{
		ServerName:         s.cfg.SMTP.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify,
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("dialing SMTP %s: %w", addr, err)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing SMTP %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if s.cfg.SMTP.TLS {
		return smtp.NewClient(tls.Client(conn, tlsConfig)), nil
	}

	client, err := smtp.NewClientStartTLS(conn, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("starting TLS with %s: %w", addr, err)
	}

	return client, nil
}

// composeMessage renders req as an RFC 5322 plain-text message.
func composeMessage(
	req SendRequest, recipients []string, now time.Time,
) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(req.Subject)
	h.SetAddressList("From", []*mail.Address{{Name: req.FromName, Address: req.From}})

	to := make([]*mail.Address, 0, len(recipients))
	for _, r := range recipients {
		to = append(to, &mail.Address{Address: r})
	}
	h.SetAddressList("To", to)

	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating message id: %w", err)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := io.WriteString(w, req.BodyText); err != nil {
		return nil, fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message body: %w", err)
	}

	return buf.Bytes(), nil
}
