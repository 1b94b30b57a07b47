package scan

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"inboxcleaner/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	mu       sync.Mutex
	ids      []string
	msgs     map[string]model.Message
	failures map[string]error
	listErr  error
	gets     map[string]int
	gotQuery string
	gotMax   int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		msgs:     make(map[string]model.Message),
		failures: make(map[string]error),
		gets:     make(map[string]int),
	}
}

func (f *fakeSource) add(m model.Message) {
	f.ids = append(f.ids, m.ID)
	f.msgs[m.ID] = m
}

func (f *fakeSource) ListMessageIDs(_ context.Context, query string, max int) ([]string, error) {
	f.gotQuery, f.gotMax = query, max
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.ids) > max {
		return f.ids[:max], nil
	}
	return f.ids, nil
}

func (f *fakeSource) GetMessage(_ context.Context, id string) (model.Message, error) {
	f.mu.Lock()
	f.gets[id]++
	f.mu.Unlock()
	if err, ok := f.failures[id]; ok {
		return model.Message{}, err
	}
	return f.msgs[id], nil
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func textPart(s string) *model.Part {
	return &model.Part{MimeType: "text/plain", Data: base64.URLEncoding.EncodeToString([]byte(s))}
}

func message(id, from, listUnsub, body string) model.Message {
	m := model.Message{ID: id, Headers: []model.Header{
		{Name: "From", Value: from},
		{Name: "Subject", Value: "subject " + id},
	}}
	if listUnsub != "" {
		m.Headers = append(m.Headers, model.Header{Name: "List-Unsubscribe", Value: listUnsub})
	}
	if body != "" {
		m.Payload = textPart(body)
	}
	return m
}

func TestScanEndToEnd(t *testing.T) {
	src := newFakeSource()
	src.add(message("1", "A <a@shop.example>", "<mailto:a@b.com>, <https://x.com/unsub>", ""))
	src.add(message("2", "B <b@news.example>", "", "read more https://y.com/page/unsubscribe?id=5"))
	src.add(message("3", "C <c@friend.example>", "", "see you soon"))

	rep, err := New(src, Options{Query: "category:promotions", MaxMessages: 500, Workers: 1}, quietLogger()).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "category:promotions", src.gotQuery)
	assert.Equal(t, 500, src.gotMax)
	require.Len(t, rep.Candidates, 2)
	assert.Equal(t, model.Candidate{
		MessageID:   "1",
		Sender:      "A <a@shop.example>",
		Subject:     "subject 1",
		Unsubscribe: model.Descriptor{URL: "https://x.com/unsub", Email: "a@b.com"},
	}, rep.Candidates[0])
	assert.Equal(t, model.Descriptor{URL: "https://y.com/page/unsubscribe?id=5"}, rep.Candidates[1].Unsubscribe)
	assert.Equal(t, model.ScanStats{Scanned: 3, LinksFound: 2, EmailsFound: 1}, rep.Stats)
	assert.Len(t, rep.Results, 3)
	assert.Empty(t, rep.Errors())
}

func TestScanPerMessageErrorsContinue(t *testing.T) {
	src := newFakeSource()
	src.add(message("1", "a@x.example", "<https://x.example/u>", ""))
	src.add(message("2", "b@x.example", "<https://x.example/v>", ""))
	src.add(message("3", "c@x.example", "<mailto:c@x.example>", ""))
	providerErr := &model.ProviderError{Op: "messages.get", Code: 500, Err: errors.New("backend")}
	src.failures["2"] = providerErr

	rep, err := New(src, Options{MaxMessages: 10}, quietLogger()).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Stats.Scanned)
	assert.Equal(t, 1, rep.Stats.Errors)
	assert.Equal(t, 1, rep.Stats.LinksFound)
	assert.Equal(t, 1, rep.Stats.EmailsFound)
	require.Len(t, rep.Errors(), 1)
	assert.Equal(t, "2", rep.Errors()[0].MessageID)
	assert.ErrorIs(t, rep.Errors()[0].Err, model.ErrProvider)
	for id, n := range src.gets {
		assert.Equal(t, 1, n, "message %s fetched more than once", id)
	}
}

func TestScanListErrorAborts(t *testing.T) {
	src := newFakeSource()
	src.listErr = &model.ProviderError{Op: "messages.list", Code: 401, Err: errors.New("bad token")}

	rep, err := New(src, Options{MaxMessages: 10}, quietLogger()).Scan(context.Background())
	require.Error(t, err)
	assert.Nil(t, rep)
	assert.ErrorIs(t, err, model.ErrProvider)
}

func TestScanRespectsMax(t *testing.T) {
	src := newFakeSource()
	for i := 0; i < 5; i++ {
		src.add(message(fmt.Sprint(i), "a@x.example", "<https://x.example/u>", ""))
	}
	rep, err := New(src, Options{MaxMessages: 3}, quietLogger()).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Stats.Scanned)

	rep, err = New(src, Options{MaxMessages: 0}, quietLogger()).Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Results)
}

func TestScanWorkersKeepListingOrder(t *testing.T) {
	src := newFakeSource()
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("m%02d", i)
		if i%3 == 0 {
			src.add(message(id, "a@x.example", "", "nothing"))
			continue
		}
		src.add(message(id, "a@x.example", fmt.Sprintf("<https://x.example/%d>", i), ""))
	}
	src.failures["m05"] = errors.New("boom")

	sequential, err := New(src, Options{MaxMessages: 100, Workers: 1}, quietLogger()).Scan(context.Background())
	require.NoError(t, err)

	var mu sync.Mutex
	var calls int
	s := New(src, Options{MaxMessages: 100, Workers: 8}, quietLogger())
	s.OnProgress = func(p Progress) {
		mu.Lock()
		calls++
		mu.Unlock()
		assert.Equal(t, 40, p.Total)
	}
	parallel, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 40, calls)
	assert.Equal(t, sequential.Candidates, parallel.Candidates)
	assert.Equal(t, sequential.Stats, parallel.Stats)
	for i, r := range parallel.Results {
		assert.Equal(t, src.ids[i], r.MessageID)
	}
}

func TestScanAllowAndDenyLists(t *testing.T) {
	src := newFakeSource()
	src.add(message("1", "Trusted <news+weekly@Trusted.example>", "<https://trusted.example/u>", ""))
	src.add(message("2", "Whole <x@allowed-domain.example>", "<https://allowed-domain.example/u>", ""))
	src.add(message("3", "Spam <spam@bad.example>", "", "no links"))
	src.add(message("4", "Spam <spam@bad.example>", "<mailto:stop@bad.example>", ""))
	src.add(message("5", "Other <o@other.example>", "", "no links"))

	opts := Options{
		MaxMessages: 10,
		Allow:       []string{"news@trusted.example", "@allowed-domain.example"},
		Deny:        []string{"Spam <spam@BAD.example>"},
	}
	rep, err := New(src, opts, quietLogger()).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SkipAllowList, rep.Results[0].Skipped)
	assert.Equal(t, SkipAllowList, rep.Results[1].Skipped)
	require.Len(t, rep.Candidates, 1)
	assert.Equal(t, "4", rep.Candidates[0].MessageID)
	require.Len(t, rep.Flagged, 1)
	assert.Equal(t, "3", rep.Flagged[0].MessageID)
	assert.False(t, rep.Results[4].Flagged)
	assert.Equal(t, 5, rep.Stats.Scanned)
}

func TestScanCancelled(t *testing.T) {
	src := newFakeSource()
	src.add(message("1", "a@x.example", "<https://x.example/u>", ""))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := New(src, Options{MaxMessages: 10}, quietLogger()).Scan(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Equal(t, 1, rep.Stats.Errors)
	assert.Zero(t, src.gets["1"])
}

type panicSource struct{ *fakeSource }

func (p panicSource) GetMessage(ctx context.Context, id string) (model.Message, error) {
	if id == "bad" {
		panic("corrupt message")
	}
	return p.fakeSource.GetMessage(ctx, id)
}

func TestScanRecoversFromPanickingMessage(t *testing.T) {
	src := newFakeSource()
	src.add(message("bad", "a@x.example", "", ""))
	src.add(message("good", "a@x.example", "<https://x.example/u>", ""))

	rep, err := New(panicSource{src}, Options{MaxMessages: 10}, quietLogger()).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Stats.Errors)
	require.Len(t, rep.Candidates, 1)
	assert.Equal(t, "good", rep.Candidates[0].MessageID)
}
