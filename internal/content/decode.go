package content

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func init() {
	// go-message knows no GBK by default; Chinese mailboxes send it a lot.
	charset.RegisterEncoding("gbk", simplifiedchinese.GBK)
	charset.RegisterEncoding("gb2312", simplifiedchinese.GBK)
}

// maxDecodedSize bounds how much of a single body part is read.
const maxDecodedSize = 8 * 1024 * 1024

// ErrTooLarge is returned when a decoded part exceeds the size limit.
var ErrTooLarge = errors.New("decoded part too large")

// Decoder recovers text from raw body parts according to their transfer
// encoding and charset.
type Decoder struct {
	maxSize int64
}

// NewDecoder creates a Decoder.
func NewDecoder() *Decoder {
	return &Decoder{maxSize: maxDecodedSize}
}

// Decode decodes raw, the fetched content of the body section selected by
// s.BodySection().
func (d *Decoder) Decode(raw []byte, s Structure) (string, error) {
	_, part := s.BodySection()
	return d.DecodePart(raw, part)
}

// DecodePart decodes raw using part's transfer encoding:
// base64 for code 3, 8-bit pass-through for code 1 and quoted-printable
// for anything else. Text parts are converted to UTF-8 from their
// declared charset; an unknown charset leaves the bytes as they are.
func (d *Decoder) DecodePart(raw []byte, part Part) (string, error) {
	mediaType := part.MIMEType
	if mediaType == "" {
		mediaType = "text/plain"
	}

	params := map[string]string{}
	if part.Charset != "" {
		params["charset"] = part.Charset
	}

	var h message.Header
	h.SetContentType(mediaType, params)
	h.Set("Content-Transfer-Encoding", transferHeader(part.Encoding))

	entity, err := message.New(h, bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return "", fmt.Errorf("decoding %s part: %w", part.Encoding, err)
	}

	body, err := io.ReadAll(io.LimitReader(entity.Body, d.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("reading %s part: %w", part.Encoding, err)
	}
	if int64(len(body)) > d.maxSize {
		return "", fmt.Errorf("%s part over %d bytes: %w", part.Encoding, d.maxSize, ErrTooLarge)
	}

	return string(body), nil
}

// transferHeader returns the Content-Transfer-Encoding used to decode a
// part with the given encoding code.
func transferHeader(enc TransferEncoding) string {
	switch enc {
	case EncodingBase64:
		return "base64"
	case Encoding8Bit:
		return "8bit"
	default:
		return "quoted-printable"
	}
}
