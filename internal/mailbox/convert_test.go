package mailbox

import (
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/stretchr/testify/assert"

	"github.com/nhle/mailforward/internal/content"
)

func TestStructureFromIMAPMultipart(t *testing.T) {
	bs := &imap.BodyStructureMultiPart{
		Subtype: "ALTERNATIVE",
		Children: []imap.BodyStructure{
			&imap.BodyStructureSinglePart{
				Type: "TEXT", Subtype: "PLAIN",
				Params:   map[string]string{"CHARSET": "UTF-8"},
				Encoding: "7BIT",
			},
			&imap.BodyStructureSinglePart{
				Type: "TEXT", Subtype: "HTML",
				Params:   map[string]string{"charset": "iso-8859-1"},
				Encoding: "BASE64",
			},
		},
	}

	got := structureFromIMAP(bs)

	assert.Equal(t, content.Structure{
		Part: content.Part{MIMEType: "multipart/alternative"},
		Parts: []content.Part{
			{MIMEType: "text/plain", Charset: "UTF-8", Encoding: content.Encoding7Bit},
			{MIMEType: "text/html", Charset: "iso-8859-1", Encoding: content.EncodingBase64},
		},
	}, got)

	section, part := got.BodySection()
	assert.Equal(t, 2, section)
	assert.Equal(t, content.EncodingBase64, part.Encoding)
}

func TestStructureFromIMAPSinglePart(t *testing.T) {
	got := structureFromIMAP(&imap.BodyStructureSinglePart{
		Type: "text", Subtype: "html", Encoding: "quoted-printable",
	})

	assert.Empty(t, got.Parts)
	assert.Equal(t, "text/html", got.MIMEType)
	assert.Equal(t, content.EncodingQuotedPrintable, got.Encoding)
}

func TestOverviewFromBuffer(t *testing.T) {
	sent := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	arrived := sent.Add(2 * time.Minute)

	ov := overviewFromBuffer(&imapclient.FetchMessageBuffer{
		UID: 42,
		Envelope: &imap.Envelope{
			Subject: "New sale",
			Date:    sent,
			From:    []imap.Address{{Mailbox: "noreply", Host: "freemius.com"}},
		},
		InternalDate: arrived,
	})

	assert.Equal(t, "New sale", ov.Subject)
	assert.Equal(t, "noreply@freemius.com", ov.From)
	assert.Equal(t, "Fri, 16 Oct 2026 09:30:00 +0000", ov.Date)
	assert.Equal(t, arrived.Unix(), ov.UDate)
}

func TestOverviewFromBufferWithoutInternalDate(t *testing.T) {
	sent := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	ov := overviewFromBuffer(&imapclient.FetchMessageBuffer{
		Envelope: &imap.Envelope{Date: sent},
	})

	assert.Equal(t, sent.Unix(), ov.UDate)
}
