// Package batch runs one forwarding pass over a mailbox: connect, find
// recent messages, normalize and forward the ones not seen before, close.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/mailforward/internal/content"
	"github.com/nhle/mailforward/internal/forward"
	"github.com/nhle/mailforward/internal/ledger"
	"github.com/nhle/mailforward/internal/model"
)

// State is the lifecycle position of a Driver.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateIterating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateIterating:
		return "iterating"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrNotConnected is returned by operations that need an open mailbox.
var ErrNotConnected = errors.New("mailbox not connected")

// Mailbox is the open connection the driver reads messages from.
type Mailbox interface {
	ListFolders(ctx context.Context) ([]string, error)
	SearchSince(ctx context.Context, cutoff time.Time) ([]model.MessageID, error)
	FetchStructure(ctx context.Context, id model.MessageID) (content.Structure, error)
	FetchOverview(ctx context.Context, id model.MessageID) (model.Overview, error)
	FetchBodyPart(ctx context.Context, id model.MessageID, part int) ([]byte, error)
	Close() error
}

// ConnectFunc opens the mailbox connection.
type ConnectFunc func(ctx context.Context) (Mailbox, error)

// Summary reports what a processing pass did.
type Summary struct {
	// Examined counts messages whose record was built.
	Examined int

	Forwarded int

	// Failed counts messages that could not be read or forwarded.
	Failed int

	// StoppedEarly is set when the pass halted at an already
	// processed message.
	StoppedEarly bool
}

// Driver owns one mailbox connection for the duration of a run.
type Driver struct {
	connect    ConnectFunc
	ledger     ledger.Ledger
	forwarder  forward.Forwarder
	decoder    *content.Decoder
	normalizer *content.Normalizer
	log        zerolog.Logger
	now        func() time.Time

	mbox  Mailbox
	state State
}

// New creates a Driver. Each Driver is tagged with its own run id in
// the logs.
func New(
	connect ConnectFunc,
	l ledger.Ledger,
	f forward.Forwarder,
	normalizer *content.Normalizer,
	log zerolog.Logger,
) *Driver {
	return &Driver{
		connect:    connect,
		ledger:     l,
		forwarder:  f,
		decoder:    content.NewDecoder(),
		normalizer: normalizer,
		log: log.With().
			Str("component", "batch").
			Str("run_id", uuid.NewString()).
			Logger(),
		now:   time.Now,
		state: StateIdle,
	}
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	return d.state
}

// Connect opens the mailbox. Failure is fatal for the run.
func (d *Driver) Connect(ctx context.Context) error {
	if d.state != StateIdle {
		return fmt.Errorf("connect: driver is %s", d.state)
	}

	mbox, err := d.connect(ctx)
	if err != nil {
		return fmt.Errorf("connecting to mailbox: %w", err)
	}

	d.mbox = mbox
	d.state = StateConnected
	d.log.Info().Msg("connected")

	return nil
}

// ListFolders returns the folders available on the server.
func (d *Driver) ListFolders(ctx context.Context) ([]string, error) {
	if err := d.requireOpen(); err != nil {
		return nil, err
	}
	return d.mbox.ListFolders(ctx)
}

// LatestEmails returns the IDs of messages from the last lookbackHours,
// newest first.
func (d *Driver) LatestEmails(
	ctx context.Context, lookbackHours int,
) ([]model.MessageID, error) {
	if err := d.requireOpen(); err != nil {
		return nil, err
	}
	if lookbackHours <= 0 {
		lookbackHours = model.DefaultLookbackHours
	}

	cutoff := d.now().Add(-time.Duration(lookbackHours) * time.Hour)
	ids, err := d.mbox.SearchSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("searching latest emails: %w", err)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	d.log.Info().
		Time("cutoff", cutoff).
		Int("count", len(ids)).
		Msg("found latest emails")

	return ids, nil
}

// ProcessEmails handles ids in the given order. It stops at the first
// message whose (sender, timestamp) is already in the ledger, assuming
// everything older was handled by an earlier run. A message that fails
// to be read or forwarded is logged and skipped. Ledger failures abort
// the pass.
func (d *Driver) ProcessEmails(
	ctx context.Context, ids []model.MessageID,
) (Summary, error) {
	var sum Summary

	if err := d.requireOpen(); err != nil {
		return sum, err
	}
	if len(ids) == 0 {
		return sum, nil
	}
	d.state = StateIterating

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		rec, envelopeFrom, err := d.buildRecord(ctx, id)
		if err != nil {
			sum.Failed++
			d.log.Warn().
				Err(err).
				Uint32("uid", uint32(id)).
				Str("envelope_from", envelopeFrom).
				Msg("skipping unreadable message")
			continue
		}
		sum.Examined++

		seen, err := d.ledger.IsProcessed(ctx, rec.From, rec.Timestamp)
		if err != nil {
			return sum, fmt.Errorf("checking ledger for message %d: %w", id, err)
		}
		if seen {
			sum.StoppedEarly = true
			d.log.Info().
				Uint32("uid", uint32(id)).
				Str("envelope_from", envelopeFrom).
				Str("subject", rec.Subject).
				Msg("reached already processed message, stopping")
			break
		}

		if err := d.ledger.MarkProcessed(ctx, rec.From, rec.Timestamp); err != nil {
			return sum, fmt.Errorf("recording message %d: %w", id, err)
		}

		if err := d.forwarder.Forward(ctx, rec); err != nil {
			sum.Failed++
			d.log.Error().
				Err(err).
				Uint32("uid", uint32(id)).
				Str("from", rec.From).
				Str("envelope_from", envelopeFrom).
				Str("subject", rec.Subject).
				Msg("forwarding failed")
			continue
		}

		sum.Forwarded++
		d.log.Info().
			Uint32("uid", uint32(id)).
			Str("from", rec.From).
			Str("envelope_from", envelopeFrom).
			Str("subject", rec.Subject).
			Msg("forwarded")
	}

	return sum, nil
}

// Close releases the mailbox. Closing an idle or closed driver is a no-op.
func (d *Driver) Close() error {
	if d.mbox == nil || d.state == StateClosed {
		d.state = StateClosed
		return nil
	}

	err := d.mbox.Close()
	d.mbox = nil
	d.state = StateClosed
	if err != nil {
		return fmt.Errorf("closing mailbox: %w", err)
	}

	d.log.Info().Msg("closed")
	return nil
}

// Run connects, processes the last lookbackHours of mail and closes the
// mailbox, even when processing fails.
func (d *Driver) Run(ctx context.Context, lookbackHours int) (Summary, error) {
	if err := d.Connect(ctx); err != nil {
		return Summary{}, err
	}
	defer func() {
		if err := d.Close(); err != nil {
			d.log.Warn().Err(err).Msg("closing mailbox")
		}
	}()

	ids, err := d.LatestEmails(ctx, lookbackHours)
	if err != nil {
		return Summary{}, err
	}

	sum, err := d.ProcessEmails(ctx, ids)
	d.log.Info().
		Int("examined", sum.Examined).
		Int("forwarded", sum.Forwarded).
		Int("failed", sum.Failed).
		Bool("stopped_early", sum.StoppedEarly).
		Msg("run finished")

	return sum, err
}

// buildRecord fetches one message and turns it into a MessageRecord. The
// envelope sender is returned alongside for logging.
func (d *Driver) buildRecord(
	ctx context.Context, id model.MessageID,
) (model.MessageRecord, string, error) {
	structure, err := d.mbox.FetchStructure(ctx, id)
	if err != nil {
		return model.MessageRecord{}, "", err
	}

	overview, err := d.mbox.FetchOverview(ctx, id)
	if err != nil {
		return model.MessageRecord{}, "", err
	}

	section, _ := structure.BodySection()
	raw, err := d.mbox.FetchBodyPart(ctx, id, section)
	if err != nil {
		return model.MessageRecord{}, overview.From, err
	}

	decoded, err := d.decoder.Decode(raw, structure)
	if err != nil {
		return model.MessageRecord{}, overview.From, fmt.Errorf("message %d: %w", id, err)
	}

	body := d.normalizer.Normalize(decoded)

	return model.MessageRecord{
		Subject:   overview.Subject,
		From:      content.FirstAddress(body),
		Date:      overview.Date,
		Body:      body,
		Timestamp: overview.UDate,
	}, overview.From, nil
}

// requireOpen reports ErrNotConnected unless a mailbox is open.
func (d *Driver) requireOpen() error {
	if d.state != StateConnected && d.state != StateIterating {
		return fmt.Errorf("driver is %s: %w", d.state, ErrNotConnected)
	}
	return nil
}
