package batch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailforward/internal/content"
	"github.com/nhle/mailforward/internal/ledger"
	"github.com/nhle/mailforward/internal/model"
	"github.com/nhle/mailforward/tests/testutil"
)

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func hoursAgo(h int) int64 {
	return testNow.Add(-time.Duration(h) * time.Hour).Unix()
}

func saleHTML(buyer string) string {
	return `<html><head><style>td{}</style></head><body>` +
		`<h2>New sale</h2><table><tr><td>Buyer</td><td>` + buyer + `</td></tr></table>` +
		`<p>Sent by Freemius on behalf of Acme, contact support@freemius.com</p></body></html>`
}

// newTestDriver wires a driver to fakes and returns them.
func newTestDriver(
	t *testing.T, l ledger.Ledger,
) (*Driver, *testutil.FakeMailbox, *testutil.RecordingForwarder) {
	t.Helper()

	mbox := testutil.NewFakeMailbox()
	fwd := &testutil.RecordingForwarder{}
	normalizer, err := content.NewNormalizer(model.DefaultFooterPattern)
	require.NoError(t, err)

	connect := func(context.Context) (Mailbox, error) { return mbox, nil }
	d := New(connect, l, fwd, normalizer, zerolog.Nop())
	d.now = func() time.Time { return testNow }

	return d, mbox, fwd
}

func TestRunForwardsNewestFirst(t *testing.T) {
	d, mbox, fwd := newTestDriver(t, testutil.NewTestJSONLedger(t))
	mbox.Messages[7] = testutil.HTMLMessage("older", hoursAgo(5), saleHTML("old@example.org"))
	mbox.Messages[9] = testutil.HTMLMessage("newer", hoursAgo(1), saleHTML("new@example.org"))
	mbox.Messages[3] = testutil.HTMLMessage("too old", hoursAgo(30), saleHTML("x@example.org"))

	sum, err := d.Run(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, Summary{Examined: 2, Forwarded: 2}, sum)
	require.Len(t, fwd.Records, 2)
	assert.Equal(t, "newer", fwd.Records[0].Subject)
	assert.Equal(t, "new@example.org", fwd.Records[0].From)
	assert.Equal(t, "New sale\nBuyer\nnew@example.org\n", fwd.Records[0].Body)
	assert.Equal(t, hoursAgo(1), fwd.Records[0].Timestamp)
	assert.Equal(t, "older", fwd.Records[1].Subject)

	assert.Equal(t, testNow.Add(-10*time.Hour), mbox.LastCutoff)
	assert.Equal(t, 1, mbox.Closed)
	assert.Equal(t, StateClosed, d.State())
}

func TestRunIsIdempotent(t *testing.T) {
	l := testutil.NewTestJSONLedger(t)

	d, mbox, fwd := newTestDriver(t, l)
	mbox.Messages[1] = testutil.HTMLMessage("a", hoursAgo(2), saleHTML("a@example.org"))
	mbox.Messages[2] = testutil.HTMLMessage("b", hoursAgo(1), saleHTML("b@example.org"))

	_, err := d.Run(context.Background(), 24)
	require.NoError(t, err)
	assert.Len(t, fwd.Records, 2)

	again, mbox2, fwd2 := newTestDriver(t, l)
	mbox2.Messages = mbox.Messages

	sum, err := again.Run(context.Background(), 24)
	require.NoError(t, err)
	assert.Empty(t, fwd2.Records)
	assert.True(t, sum.StoppedEarly)
}

func TestProcessEmailsStopsAtFirstProcessed(t *testing.T) {
	ctx := context.Background()
	l := testutil.NewTestJSONLedger(t)
	d, mbox, fwd := newTestDriver(t, l)

	mbox.Messages[4] = testutil.HTMLMessage("four", hoursAgo(1), saleHTML("d@example.org"))
	mbox.Messages[3] = testutil.HTMLMessage("three", hoursAgo(2), saleHTML("c@example.org"))
	mbox.Messages[2] = testutil.HTMLMessage("two", hoursAgo(3), saleHTML("b@example.org"))
	mbox.Messages[1] = testutil.HTMLMessage("one", hoursAgo(4), saleHTML("a@example.org"))
	require.NoError(t, l.MarkProcessed(ctx, "b@example.org", hoursAgo(3)))

	require.NoError(t, d.Connect(ctx))
	t.Cleanup(func() { _ = d.Close() })

	sum, err := d.ProcessEmails(ctx, []model.MessageID{4, 3, 2, 1})
	require.NoError(t, err)

	assert.True(t, sum.StoppedEarly)
	assert.Equal(t, 2, sum.Forwarded)
	require.Len(t, fwd.Records, 2)
	assert.Equal(t, "four", fwd.Records[0].Subject)
	assert.Equal(t, "three", fwd.Records[1].Subject)
	assert.Equal(t, []model.MessageID{4, 3, 2}, mbox.Fetched, "messages after the stop are not fetched")
	assert.Equal(t, StateIterating, d.State())
}

func TestProcessEmailsContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	l := testutil.NewTestJSONLedger(t)
	d, mbox, fwd := newTestDriver(t, l)

	broken := testutil.HTMLMessage("broken", hoursAgo(1), "")
	broken.FailFetch = true
	mbox.Messages[3] = broken
	mbox.Messages[2] = testutil.HTMLMessage("rejected", hoursAgo(2), saleHTML("b@example.org"))
	mbox.Messages[1] = testutil.HTMLMessage("fine", hoursAgo(3), saleHTML("a@example.org"))
	fwd.Err = map[string]error{"rejected": errors.New("unexpected status 500")}

	require.NoError(t, d.Connect(ctx))
	t.Cleanup(func() { _ = d.Close() })

	sum, err := d.ProcessEmails(ctx, []model.MessageID{3, 2, 1})
	require.NoError(t, err)

	assert.Equal(t, Summary{Examined: 2, Forwarded: 1, Failed: 2}, sum)
	require.Len(t, fwd.Records, 2)
	assert.Equal(t, "fine", fwd.Records[1].Subject)

	seen, err := l.IsProcessed(ctx, "b@example.org", hoursAgo(2))
	require.NoError(t, err)
	assert.True(t, seen, "a failed forward is not retried on the next run")
}

func TestProcessEmailsWithoutAddress(t *testing.T) {
	ctx := context.Background()
	d, mbox, fwd := newTestDriver(t, testutil.NewTestJSONLedger(t))
	mbox.Messages[1] = testutil.HTMLMessage("anonymous", hoursAgo(1), "<p>no sender here</p>")

	require.NoError(t, d.Connect(ctx))
	t.Cleanup(func() { _ = d.Close() })

	_, err := d.ProcessEmails(ctx, []model.MessageID{1})
	require.NoError(t, err)
	require.Len(t, fwd.Records, 1)
	assert.Equal(t, "", fwd.Records[0].From)
	assert.Equal(t, "no sender here", fwd.Records[0].Body)
}

func TestProcessEmailsSinglePartMessage(t *testing.T) {
	ctx := context.Background()
	d, mbox, fwd := newTestDriver(t, testutil.NewTestJSONLedger(t))
	mbox.Messages[1] = testutil.FakeMessage{
		Structure: content.Structure{Part: content.Part{
			MIMEType: "text/html", Charset: "utf-8", Encoding: content.EncodingQuotedPrintable,
		}},
		Overview: model.Overview{Subject: "single", UDate: hoursAgo(1)},
		Parts:    map[int][]byte{1: []byte("<p>from caf=C3=A9@example.org</p>")},
	}

	require.NoError(t, d.Connect(ctx))
	t.Cleanup(func() { _ = d.Close() })

	sum, err := d.ProcessEmails(ctx, []model.MessageID{1})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Forwarded)
	assert.Equal(t, "from café@example.org", fwd.Records[0].Body)
}

func TestProcessEmailsDebugLedger(t *testing.T) {
	ctx := context.Background()
	d, mbox, fwd := newTestDriver(t, ledger.Disabled{})
	mbox.Messages[1] = testutil.HTMLMessage("a", hoursAgo(1), saleHTML("a@example.org"))

	for range 2 {
		d.state = StateConnected
		d.mbox = mbox
		_, err := d.ProcessEmails(ctx, []model.MessageID{1})
		require.NoError(t, err)
	}

	assert.Len(t, fwd.Records, 2, "debug mode reprocesses everything")
}

func TestProcessEmailsCorruptLedgerIsFatal(t *testing.T) {
	ctx := context.Background()
	l := testutil.NewTestJSONLedger(t)
	require.NoError(t, os.WriteFile(l.Path(), []byte("not json"), 0o644))

	d, mbox, fwd := newTestDriver(t, l)
	mbox.Messages[1] = testutil.HTMLMessage("a", hoursAgo(1), saleHTML("a@example.org"))

	_, err := d.Run(ctx, 24)
	require.ErrorIs(t, err, ledger.ErrCorrupt)
	assert.Empty(t, fwd.Records)
	assert.Equal(t, 1, mbox.Closed, "mailbox is closed even when the run fails")
}

func TestRunConnectFailureIsFatal(t *testing.T) {
	fwd := &testutil.RecordingForwarder{}
	normalizer, err := content.NewNormalizer("")
	require.NoError(t, err)

	connect := func(context.Context) (Mailbox, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	d := New(connect, ledger.Disabled{}, fwd, normalizer, zerolog.Nop())

	_, err = d.Run(context.Background(), 24)
	require.Error(t, err)
	assert.Equal(t, StateIdle, d.State())
}

func TestRunSearchFailureClosesMailbox(t *testing.T) {
	d, mbox, _ := newTestDriver(t, testutil.NewTestJSONLedger(t))
	mbox.SearchErr = errors.New("search failed")

	_, err := d.Run(context.Background(), 24)
	require.Error(t, err)
	assert.Equal(t, 1, mbox.Closed)
}

func TestOperationsRequireConnection(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDriver(t, ledger.Disabled{})

	_, err := d.LatestEmails(ctx, 24)
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = d.ProcessEmails(ctx, []model.MessageID{1})
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = d.ListFolders(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, d.Close())
	assert.Error(t, d.Connect(ctx), "a closed driver cannot reconnect")
}

func TestListFolders(t *testing.T) {
	ctx := context.Background()
	d, mbox, _ := newTestDriver(t, ledger.Disabled{})
	mbox.Folders = []string{"INBOX", "[Gmail]/All Mail", "Sales"}

	require.NoError(t, d.Connect(ctx))
	t.Cleanup(func() { _ = d.Close() })

	folders, err := d.ListFolders(ctx)
	require.NoError(t, err)
	assert.Equal(t, mbox.Folders, folders)
}

func TestLatestEmailsDefaultsLookback(t *testing.T) {
	ctx := context.Background()
	d, mbox, _ := newTestDriver(t, ledger.Disabled{})

	require.NoError(t, d.Connect(ctx))
	t.Cleanup(func() { _ = d.Close() })

	_, err := d.LatestEmails(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-24*time.Hour), mbox.LastCutoff)
}

func TestProcessEmailsLogsEnvelopeSender(t *testing.T) {
	ctx := context.Background()
	d, mbox, _ := newTestDriver(t, ledger.Disabled{})

	var logs bytes.Buffer
	d.log = zerolog.New(&logs)

	msg := testutil.HTMLMessage("sale", hoursAgo(1), saleHTML("a@example.org"))
	msg.Overview.From = "noreply@freemius.com"
	mbox.Messages[1] = msg

	require.NoError(t, d.Connect(ctx))
	t.Cleanup(func() { _ = d.Close() })

	_, err := d.ProcessEmails(ctx, []model.MessageID{1})
	require.NoError(t, err)

	assert.Contains(t, logs.String(), `"envelope_from":"noreply@freemius.com"`)
	assert.Contains(t, logs.String(), `"from":"a@example.org"`)
}
