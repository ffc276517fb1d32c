package testutil

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/mailforward/internal/content"
	"github.com/nhle/mailforward/internal/model"
)

// FakeMessage is a message held by FakeMailbox.
type FakeMessage struct {
	Structure content.Structure
	Overview  model.Overview

	// Parts maps a 1-based body section to its raw content.
	Parts map[int][]byte

	// FailFetch makes every fetch of this message fail.
	FailFetch bool
}

// HTMLMessage builds a multipart/alternative message whose HTML part is
// base64 encoded, the common shape of notification mail.
func HTMLMessage(subject string, udate int64, html string) FakeMessage {
	return FakeMessage{
		Structure: content.Structure{
			Part: content.Part{MIMEType: "multipart/alternative"},
			Parts: []content.Part{
				{MIMEType: "text/plain", Charset: "utf-8", Encoding: content.Encoding7Bit},
				{MIMEType: "text/html", Charset: "utf-8", Encoding: content.EncodingBase64},
			},
		},
		Overview: model.Overview{
			Subject: subject,
			Date:    time.Unix(udate, 0).UTC().Format(time.RFC1123Z),
			UDate:   udate,
		},
		Parts: map[int][]byte{
			1: []byte("plain alternative"),
			2: []byte(base64.StdEncoding.EncodeToString([]byte(html))),
		},
	}
}

// FakeMailbox is an in-memory mailbox keyed by message ID.
type FakeMailbox struct {
	Folders  []string
	Messages map[model.MessageID]FakeMessage

	// SearchErr and CloseErr are returned by the matching calls.
	SearchErr error
	CloseErr  error

	// Fetched lists every ID passed to FetchStructure, in call order.
	Fetched []model.MessageID

	// LastCutoff is the cutoff of the most recent search.
	LastCutoff time.Time

	Closed int
}

// NewFakeMailbox returns an empty FakeMailbox.
func NewFakeMailbox() *FakeMailbox {
	return &FakeMailbox{Messages: map[model.MessageID]FakeMessage{}}
}

func (m *FakeMailbox) ListFolders(context.Context) ([]string, error) {
	return m.Folders, nil
}

// SearchSince returns every message with UDate at or after the cutoff,
// in map order.
func (m *FakeMailbox) SearchSince(_ context.Context, cutoff time.Time) ([]model.MessageID, error) {
	m.LastCutoff = cutoff
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}

	var ids []model.MessageID
	for id, msg := range m.Messages {
		if msg.Overview.UDate >= cutoff.Unix() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *FakeMailbox) FetchStructure(_ context.Context, id model.MessageID) (content.Structure, error) {
	m.Fetched = append(m.Fetched, id)
	msg, err := m.message(id)
	if err != nil {
		return content.Structure{}, err
	}
	return msg.Structure, nil
}

func (m *FakeMailbox) FetchOverview(_ context.Context, id model.MessageID) (model.Overview, error) {
	msg, err := m.message(id)
	if err != nil {
		return model.Overview{}, err
	}
	return msg.Overview, nil
}

func (m *FakeMailbox) FetchBodyPart(_ context.Context, id model.MessageID, part int) ([]byte, error) {
	msg, err := m.message(id)
	if err != nil {
		return nil, err
	}
	raw, ok := msg.Parts[part]
	if !ok {
		return nil, fmt.Errorf("message %d has no part %d", id, part)
	}
	return raw, nil
}

func (m *FakeMailbox) Close() error {
	m.Closed++
	return m.CloseErr
}

func (m *FakeMailbox) message(id model.MessageID) (FakeMessage, error) {
	msg, ok := m.Messages[id]
	if !ok {
		return FakeMessage{}, fmt.Errorf("message %d not found", id)
	}
	if msg.FailFetch {
		return FakeMessage{}, errors.New("fetch failed")
	}
	return msg, nil
}

// RecordingForwarder records every forwarded message. Err, when set, is
// returned for messages whose subject it maps.
type RecordingForwarder struct {
	Records []model.MessageRecord
	Err     map[string]error
}

func (f *RecordingForwarder) Forward(_ context.Context, rec model.MessageRecord) error {
	f.Records = append(f.Records, rec)
	if err, ok := f.Err[rec.Subject]; ok {
		return err
	}
	return nil
}
