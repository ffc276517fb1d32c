package mailbox

import (
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/mailforward/internal/content"
	"github.com/nhle/mailforward/internal/model"
)

// structureFromIMAP converts a BODYSTRUCTURE into the decoder's view of
// the message: the root part and its direct children.
func structureFromIMAP(bs imap.BodyStructure) content.Structure {
	switch v := bs.(type) {
	case *imap.BodyStructureMultiPart:
		s := content.Structure{Part: partFromIMAP(v)}
		for _, child := range v.Children {
			s.Parts = append(s.Parts, partFromIMAP(child))
		}
		return s
	case *imap.BodyStructureSinglePart:
		return content.Structure{Part: partFromIMAP(v)}
	default:
		return content.Structure{}
	}
}

// partFromIMAP describes a single BODYSTRUCTURE node.
func partFromIMAP(bs imap.BodyStructure) content.Part {
	switch v := bs.(type) {
	case *imap.BodyStructureSinglePart:
		return content.Part{
			MIMEType: strings.ToLower(v.Type + "/" + v.Subtype),
			Charset:  paramValue(v.Params, "charset"),
			Encoding: content.ParseTransferEncoding(v.Encoding),
		}
	case *imap.BodyStructureMultiPart:
		return content.Part{
			MIMEType: "multipart/" + strings.ToLower(v.Subtype),
		}
	default:
		return content.Part{}
	}
}

// paramValue looks up a body parameter case-insensitively.
func paramValue(params map[string]string, name string) string {
	for k, v := range params {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// overviewFromBuffer builds an Overview from ENVELOPE and INTERNALDATE.
func overviewFromBuffer(buf *imapclient.FetchMessageBuffer) model.Overview {
	var ov model.Overview

	if buf.Envelope != nil {
		ov.Subject = buf.Envelope.Subject
		if !buf.Envelope.Date.IsZero() {
			ov.Date = buf.Envelope.Date.Format(time.RFC1123Z)
		}
		if len(buf.Envelope.From) > 0 {
			ov.From = buf.Envelope.From[0].Addr()
		}
	}

	arrived := buf.InternalDate
	if arrived.IsZero() && buf.Envelope != nil {
		arrived = buf.Envelope.Date
	}
	if !arrived.IsZero() {
		ov.UDate = arrived.Unix()
	}
	if ov.Date == "" && !arrived.IsZero() {
		ov.Date = arrived.Format(time.RFC1123Z)
	}

	return ov
}
