package content

import "strings"

// TransferEncoding is a MIME Content-Transfer-Encoding, numbered the way
// IMAP body structure encodings are classically numbered.
type TransferEncoding int

const (
	Encoding7Bit TransferEncoding = iota
	Encoding8Bit
	EncodingBinary
	EncodingBase64
	EncodingQuotedPrintable
	EncodingOther
)

// ParseTransferEncoding maps the textual encoding reported by the server
// (e.g. "BASE64") to its code. Empty means 7bit.
func ParseTransferEncoding(s string) TransferEncoding {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "7bit":
		return Encoding7Bit
	case "8bit":
		return Encoding8Bit
	case "binary":
		return EncodingBinary
	case "base64":
		return EncodingBase64
	case "quoted-printable":
		return EncodingQuotedPrintable
	default:
		return EncodingOther
	}
}

func (e TransferEncoding) String() string {
	switch e {
	case Encoding7Bit:
		return "7bit"
	case Encoding8Bit:
		return "8bit"
	case EncodingBinary:
		return "binary"
	case EncodingBase64:
		return "base64"
	case EncodingQuotedPrintable:
		return "quoted-printable"
	default:
		return "other"
	}
}

// Part describes one MIME part of a message.
type Part struct {
	// MIMEType is the lowercased "type/subtype".
	MIMEType string
	Charset  string
	Encoding TransferEncoding
}

// Structure describes a message's MIME layout: the root part and, for
// multipart messages, its first-level children.
type Structure struct {
	Part
	Parts []Part
}

// BodySection selects the part that carries the forwarded body and
// returns its 1-based section number. When a second part exists (the
// HTML alternative in a typical multipart/alternative message) it is
// used; otherwise the message is read through its primary part.
func (s Structure) BodySection() (int, Part) {
	switch {
	case len(s.Parts) > 1:
		return 2, s.Parts[1]
	case len(s.Parts) == 1:
		return 1, s.Parts[0]
	default:
		return 1, s.Part
	}
}
