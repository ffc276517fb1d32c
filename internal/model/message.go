package model

import "strconv"

// MessageID identifies a message within the selected mailbox folder (IMAP UID).
type MessageID uint32

// Overview holds the summary data the mailbox reports for a single message.
type Overview struct {
	Subject string
	From    string

	// Date is the message date header rendered as RFC 1123Z text.
	Date string

	// UDate is the arrival date of the message as a unix timestamp.
	UDate int64
}

// MessageRecord is the normalized form of a message handed to a forwarder.
// It lives only for the duration of one message's processing.
type MessageRecord struct {
	Subject string

	// From is the first email address found in the normalized body,
	// or empty when the body contains none.
	From string

	Date string

	// Body is the decoded, HTML-stripped, whitespace-collapsed text.
	Body string

	// Timestamp is the Overview.UDate the record was built from.
	Timestamp int64
}

// ProcessedKey returns the ledger identity of a (sender, timestamp) pair.
func ProcessedKey(sender string, timestamp int64) string {
	return sender + "-" + strconv.FormatInt(timestamp, 10)
}

// Key returns the ledger identity of the record.
func (r MessageRecord) Key() string {
	return ProcessedKey(r.From, r.Timestamp)
}
