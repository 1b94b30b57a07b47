// Package mbox serves a local mbox archive through the same interfaces as
// the Gmail provider. Labels and trash state live in memory only.
package mbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	mboxlib "github.com/emersion/go-mbox"
	"github.com/sirupsen/logrus"

	"inboxcleaner/internal/model"
)

const inboxLabel = "INBOX"

// Provider holds the raw messages of one archive. Message ids are 1-based
// positions in the file.
type Provider struct {
	raw [][]byte
	log *logrus.Entry

	mu        sync.Mutex
	labels    []model.Label
	onMessage map[string]map[string]struct{}
	trashed   map[string]bool
}

// Open reads every message of the archive at path into memory.
func Open(path string, log *logrus.Entry) (*Provider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer f.Close()

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	p := &Provider{
		log:       log.WithField("pkg", "mbox"),
		labels:    []model.Label{{ID: inboxLabel, Name: inboxLabel}},
		onMessage: make(map[string]map[string]struct{}),
		trashed:   make(map[string]bool),
	}

	r := mboxlib.NewReader(f)
	for {
		mr, err := r.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read mbox message %d: %w", len(p.raw)+1, err)
		}
		b, err := io.ReadAll(mr)
		if err != nil {
			return nil, fmt.Errorf("read mbox message %d: %w", len(p.raw)+1, err)
		}
		p.raw = append(p.raw, b)
	}
	p.log.WithFields(logrus.Fields{"path": path, "messages": len(p.raw)}).Debug("Loaded mbox")
	return p, nil
}

// ListMessageIDs returns up to max ids in file order, skipping trashed
// messages. The query is not interpreted.
func (p *Provider) ListMessageIDs(ctx context.Context, query string, max int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query != "" {
		p.log.WithField("query", query).Debug("Search query ignored for mbox archives")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []string
	for i := range p.raw {
		if len(ids) >= max {
			break
		}
		id := strconv.Itoa(i + 1)
		if p.trashed[id] {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetMessage parses the message with the given id.
func (p *Provider) GetMessage(ctx context.Context, id string) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}
	raw, err := p.lookup(id)
	if err != nil {
		return model.Message{}, err
	}
	e, err := message.Read(bytes.NewReader(raw))
	converted := err == nil
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return model.Message{}, &model.ProviderError{Op: "mbox.parse", Err: fmt.Errorf("message %s: %w", id, err)}
	}

	msg := model.Message{ID: id}
	fields := e.Header.Fields()
	for fields.Next() {
		v, err := fields.Text()
		if err != nil {
			v = fields.Value()
		}
		msg.Headers = append(msg.Headers, model.Header{Name: fields.Key(), Value: v})
	}
	payload, err := toPart(e, converted)
	if err != nil {
		return model.Message{}, &model.ProviderError{Op: "mbox.parse", Err: fmt.Errorf("message %s: %w", id, err)}
	}
	msg.Payload = payload
	return msg, nil
}

// toPart mirrors the entity tree. Leaf bodies are re-encoded as base64url so
// they look like provider payloads. converted reports whether go-message
// already turned the body into UTF-8.
func toPart(e *message.Entity, converted bool) (*model.Part, error) {
	mt, params, _ := e.Header.ContentType()
	if mt == "" {
		mt = "text/plain"
	}
	part := &model.Part{MimeType: mt}
	if _, dparams, err := e.Header.ContentDisposition(); err == nil {
		part.Filename = dparams["filename"]
	}

	if mr := e.MultipartReader(); mr != nil {
		for {
			child, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			childConverted := err == nil
			if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
				return nil, err
			}
			cp, err := toPart(child, childConverted)
			if err != nil {
				return nil, err
			}
			part.Parts = append(part.Parts, cp)
		}
		return part, nil
	}

	body, err := io.ReadAll(e.Body)
	if err != nil {
		return nil, err
	}
	if !converted {
		part.Charset = params["charset"]
	}
	part.Data = base64.URLEncoding.EncodeToString(body)
	return part, nil
}

func (p *Provider) lookup(id string) ([]byte, error) {
	n, err := strconv.Atoi(id)
	if err != nil || n < 1 || n > len(p.raw) {
		return nil, &model.ProviderError{Op: "mbox.get", Code: 404, Err: fmt.Errorf("no message %q", id)}
	}
	return p.raw[n-1], nil
}

func (p *Provider) ListLabels(ctx context.Context) ([]model.Label, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Label(nil), p.labels...), nil
}

func (p *Provider) CreateLabel(ctx context.Context, name string) (model.Label, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range p.labels {
		if l.Name == name {
			return model.Label{}, &model.ProviderError{Op: "labels.create", Code: 409, Err: fmt.Errorf("label %q exists", name)}
		}
	}
	l := model.Label{ID: fmt.Sprintf("Label_%d", len(p.labels)), Name: name}
	p.labels = append(p.labels, l)
	return l, nil
}

func (p *Provider) ModifyMessage(ctx context.Context, id string, add, remove []string) error {
	if _, err := p.lookup(id); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.onMessage[id]
	if !ok {
		set = map[string]struct{}{inboxLabel: {}}
		p.onMessage[id] = set
	}
	for _, l := range add {
		if !p.hasLabel(l) {
			return &model.ProviderError{Op: "messages.modify", Code: 400, Err: fmt.Errorf("unknown label %q", l)}
		}
		set[l] = struct{}{}
	}
	for _, l := range remove {
		delete(set, l)
	}
	return nil
}

func (p *Provider) TrashMessage(ctx context.Context, id string) error {
	if _, err := p.lookup(id); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trashed[id] = true
	return nil
}

// MessageLabels returns the label ids currently on a message, sorted.
func (p *Provider) MessageLabels(id string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.onMessage[id]
	if !ok {
		return []string{inboxLabel}
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (p *Provider) hasLabel(id string) bool {
	for _, l := range p.labels {
		if l.ID == id {
			return true
		}
	}
	return false
}
