// Package mailbox reads messages from an IMAP server.
package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"sort"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"

	"github.com/nhle/mailforward/internal/content"
	"github.com/nhle/mailforward/internal/model"
)

// defaultFolder is selected when no folder (label) is configured.
const defaultFolder = "INBOX"

// IMAPClient holds the settings needed to open a Session.
type IMAPClient struct {
	host     string
	port     string
	folder   string
	username string
	password string
	tls      bool
}

// NewIMAPClient creates an IMAP client from mailbox configuration. A
// connection string in cfg.Spec takes precedence over the discrete fields.
func NewIMAPClient(cfg model.MailboxConfig) (*IMAPClient, error) {
	cfg, err := ResolveConfig(cfg)
	if err != nil {
		return nil, err
	}

	folder := cfg.Folder
	if folder == "" {
		folder = defaultFolder
	}

	return &IMAPClient{
		host:     cfg.Host,
		port:     cfg.Port,
		folder:   folder,
		username: cfg.Username,
		password: cfg.Password,
		tls:      cfg.TLS,
	}, nil
}

// Folder returns the folder sessions select.
func (c *IMAPClient) Folder() string {
	return c.folder
}

// Connect establishes a connection to the IMAP server, authenticates and
// selects the configured folder. The caller owns the returned Session and
// must Close it.
func (c *IMAPClient) Connect(_ context.Context) (*Session, error) {
	addr := c.host + ":" + c.port

	opts := dialOptions()
	opts.TLSConfig = &tls.Config{ServerName: c.host}

	var client *imapclient.Client
	var err error

	if c.tls {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialStartTLS(addr, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	return c.openSession(client, addr)
}

// dialOptions returns client options that decode RFC 2047 header words
// in any charset go-message knows.
func dialOptions() *imapclient.Options {
	return &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}
}

// openSession logs in on a dialed client and selects the folder. The
// client is closed on failure.
func (c *IMAPClient) openSession(client *imapclient.Client, addr string) (*Session, error) {
	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Close()
		return nil, &AuthError{
			Username: c.username,
			Message:  fmt.Sprintf("login to %s failed: %v", addr, err),
		}
	}

	if _, err := client.Select(c.folder, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		_ = client.Close()
		return nil, fmt.Errorf("selecting %s: %w", c.folder, err)
	}

	return &Session{client: client, folder: c.folder}, nil
}

// Session is an authenticated connection with a folder selected.
type Session struct {
	client *imapclient.Client
	folder string
}

// ListFolders returns the names of every folder on the server.
func (s *Session) ListFolders(_ context.Context) ([]string, error) {
	mailboxes, err := s.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}

	names := make([]string, 0, len(mailboxes))
	for _, mbox := range mailboxes {
		names = append(names, mbox.Mailbox)
	}
	sort.Strings(names)

	return names, nil
}

// SearchSince returns the UIDs of messages dated on or after cutoff.
// IMAP compares dates only, so the whole cutoff day is included. The
// order of the result is unspecified.
func (s *Session) SearchSince(
	_ context.Context, cutoff time.Time,
) ([]model.MessageID, error) {
	criteria := &imap.SearchCriteria{Since: cutoff}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %s since %s: %w",
			s.folder, cutoff.Format(time.DateOnly), err)
	}

	uids := data.AllUIDs()
	ids := make([]model.MessageID, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, model.MessageID(uid))
	}

	return ids, nil
}

// FetchStructure returns the MIME layout of a message.
func (s *Session) FetchStructure(
	_ context.Context, id model.MessageID,
) (content.Structure, error) {
	buf, err := s.fetch(id, &imap.FetchOptions{
		UID:           true,
		BodyStructure: &imap.FetchItemBodyStructure{},
	})
	if err != nil {
		return content.Structure{}, err
	}
	if buf.BodyStructure == nil {
		return content.Structure{}, fmt.Errorf("message %d: no body structure", id)
	}

	return structureFromIMAP(buf.BodyStructure), nil
}

// FetchOverview returns the subject, sender, date and arrival time of a
// message.
func (s *Session) FetchOverview(
	_ context.Context, id model.MessageID,
) (model.Overview, error) {
	buf, err := s.fetch(id, &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		InternalDate: true,
	})
	if err != nil {
		return model.Overview{}, err
	}

	return overviewFromBuffer(buf), nil
}

// FetchBodyPart returns the raw, still transfer-encoded content of body
// section part (1-based). The message is not marked as seen.
func (s *Session) FetchBodyPart(
	_ context.Context, id model.MessageID, part int,
) ([]byte, error) {
	section := &imap.FetchItemBodySection{
		Part: []int{part},
		Peek: true,
	}

	buf, err := s.fetch(id, &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	if err != nil {
		return nil, err
	}

	return buf.FindBodySection(section), nil
}

// Close logs out and closes the connection.
func (s *Session) Close() error {
	logoutErr := s.client.Logout().Wait()
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("closing IMAP connection: %w", err)
	}
	if logoutErr != nil {
		return fmt.Errorf("logging out: %w", logoutErr)
	}
	return nil
}

// fetch runs a UID FETCH for a single message and collects the result.
func (s *Session) fetch(
	id model.MessageID, opts *imap.FetchOptions,
) (*imapclient.FetchMessageBuffer, error) {
	cmd := s.client.Fetch(imap.UIDSetNum(imap.UID(id)), opts)

	msgs, err := cmd.Collect()
	if err != nil {
		return nil, fmt.Errorf("fetching message %d: %w", id, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("fetching message %d: %w", id, ErrMessageNotFound)
	}

	return msgs[0], nil
}
