package mbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxcleaner/internal/extract"
	"inboxcleaner/internal/label"
	"inboxcleaner/internal/model"
	"inboxcleaner/internal/scan"
)

const (
	headerMsg = "From: Shop <news@shop.example>\r\n" +
		"Subject: Sale\r\n" +
		"List-Unsubscribe: <mailto:a@b.com>, <https://x.com/unsub>\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=\"XX\"\r\n" +
		"\r\n" +
		"--XX\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"Prices =3D low, https://shop.example/unsubscribe\r\n" +
		"--XX\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>hi</p>\r\n" +
		"--XX--\r\n"

	bodyMsg = "From: News <n@news.example>\r\n" +
		"Subject: =?utf-8?q?Weekly_digest?=\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=iso-8859-1\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"Caf=E9 news. Leave: https://y.com/page/unsubscribe?id=5\r\n"

	plainMsg = "From: Friend <f@friend.example>\r\n" +
		"Subject: Hi\r\n" +
		"\r\n" +
		"see you soon\r\n"
)

func writeArchive(t *testing.T, msgs ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inbox.mbox")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := mboxlib.NewWriter(f)
	for _, m := range msgs {
		mw, err := w.CreateMessage("sender@example.com", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
		require.NoError(t, err)
		_, err = mw.Write([]byte(m))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func quiet() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestOpenAndGetMessage(t *testing.T) {
	p, err := Open(writeArchive(t, headerMsg, bodyMsg, plainMsg), quiet())
	require.NoError(t, err)
	ctx := context.Background()

	ids, err := p.ListMessageIDs(ctx, "ignored", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids)

	ids, err = p.ListMessageIDs(ctx, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids)

	m1, err := p.GetMessage(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Shop <news@shop.example>", m1.Header("from"))
	require.NotNil(t, m1.Payload)
	assert.Equal(t, "multipart/alternative", m1.Payload.MimeType)
	require.Len(t, m1.Payload.Parts, 2)
	assert.Contains(t, extract.DecodeBody(m1.Payload), "Prices = low")
	assert.Contains(t, extract.DecodeBody(m1.Payload), "<p>hi</p>")

	m2, err := p.GetMessage(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "Weekly digest", m2.Header("Subject"))
	assert.Contains(t, extract.DecodeBody(m2.Payload), "Café news")

	_, err = p.GetMessage(ctx, "9")
	assert.ErrorIs(t, err, model.ErrProvider)
}

func TestScanArchive(t *testing.T) {
	p, err := Open(writeArchive(t, headerMsg, bodyMsg, plainMsg), quiet())
	require.NoError(t, err)

	rep, err := scan.New(p, scan.Options{MaxMessages: 500}, quiet()).Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, rep.Candidates, 2)
	assert.Equal(t, model.Descriptor{URL: "https://x.com/unsub", Email: "a@b.com"}, rep.Candidates[0].Unsubscribe)
	assert.Equal(t, model.Descriptor{URL: "https://y.com/page/unsubscribe?id=5"}, rep.Candidates[1].Unsubscribe)
	assert.Equal(t, model.ScanStats{Scanned: 3, LinksFound: 2, EmailsFound: 1}, rep.Stats)
}

func TestLabelsInMemory(t *testing.T) {
	p, err := Open(writeArchive(t, headerMsg, plainMsg), quiet())
	require.NoError(t, err)
	ctx := context.Background()
	a := label.NewApplier(p, quiet())

	id, err := a.EnsureLabel(ctx, "Auto-Unsubscribed")
	require.NoError(t, err)
	again, err := a.EnsureLabel(ctx, "Auto-Unsubscribed")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	require.NoError(t, a.Apply(ctx, "1", id))
	require.NoError(t, a.Apply(ctx, "1", id))
	assert.Equal(t, []string{"INBOX", id}, p.MessageLabels("1"))

	require.NoError(t, a.Archive(ctx, "1"))
	assert.Equal(t, []string{id}, p.MessageLabels("1"))

	assert.ErrorIs(t, a.Apply(ctx, "1", "Label_missing"), model.ErrProvider)
	assert.ErrorIs(t, a.Apply(ctx, "42", id), model.ErrProvider)

	require.NoError(t, a.Trash(ctx, "2"))
	ids, err := p.ListMessageIDs(ctx, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.mbox"), quiet())
	assert.Error(t, err)
}
