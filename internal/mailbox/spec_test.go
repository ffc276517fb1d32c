package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailforward/internal/model"
)

func TestParseMailboxSpec(t *testing.T) {
	cases := []struct {
		name string
		spec string
		want model.MailboxConfig
	}{
		{
			name: "gmail label",
			spec: "{imap.gmail.com:993/imap/ssl}My gmail label",
			want: model.MailboxConfig{Host: "imap.gmail.com", Port: "993", TLS: true, Folder: "My gmail label"},
		},
		{
			name: "whole inbox",
			spec: "{imap.gmail.com:993/imap/ssl}",
			want: model.MailboxConfig{Host: "imap.gmail.com", Port: "993", TLS: true},
		},
		{
			name: "starttls default port",
			spec: "{mail.example.org/imap}INBOX",
			want: model.MailboxConfig{Host: "mail.example.org", Port: "143", Folder: "INBOX"},
		},
		{
			name: "ssl default port",
			spec: "{mail.example.org/ssl}",
			want: model.MailboxConfig{Host: "mail.example.org", Port: "993", TLS: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseMailboxSpec(tc.spec)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseMailboxSpecErrors(t *testing.T) {
	for _, spec := range []string{"imap.gmail.com:993", "{imap.gmail.com:993", "{:993/ssl}"} {
		_, err := ParseMailboxSpec(spec)
		assert.Error(t, err, spec)
	}
}

func TestNewIMAPClient(t *testing.T) {
	c, err := NewIMAPClient(model.MailboxConfig{
		Spec:     "{imap.gmail.com:993/imap/ssl}Forward",
		Host:     "ignored.example.org",
		Username: "user@gmail.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "imap.gmail.com", c.host)
	assert.Equal(t, "Forward", c.Folder())
	assert.True(t, c.tls)

	c, err = NewIMAPClient(model.MailboxConfig{Host: "mail.example.org", Port: "143"})
	require.NoError(t, err)
	assert.Equal(t, "INBOX", c.Folder())
	assert.False(t, c.tls)
}

func TestIsAuthError(t *testing.T) {
	err := &AuthError{Username: "u", Message: "bad password"}
	assert.True(t, IsAuthError(err))
	assert.False(t, IsAuthError(ErrMessageNotFound))
}
