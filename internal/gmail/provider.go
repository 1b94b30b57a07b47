// Package gmail adapts the Gmail REST API to the scanner and label applier.
package gmail

import (
	"context"
	"errors"
	"mime"
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"inboxcleaner/internal/model"
)

const (
	user = "me"

	// pageSize is the largest page Gmail returns for messages.list.
	pageSize = 500
)

// Provider talks to one Gmail mailbox.
type Provider struct {
	svc *gmailv1.Service
}

func NewProvider(svc *gmailv1.Service) *Provider {
	return &Provider{svc: svc}
}

// ListMessageIDs pages through messages matching query until max ids have
// been collected or the listing is exhausted.
func (p *Provider) ListMessageIDs(ctx context.Context, query string, max int) ([]string, error) {
	var ids []string
	pageToken := ""
	for len(ids) < max {
		call := p.svc.Users.Messages.List(user).
			MaxResults(int64(min(max-len(ids), pageSize))).
			Context(ctx)
		if query != "" {
			call = call.Q(query)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, wrapErr("messages.list", err)
		}
		for _, m := range resp.Messages {
			if len(ids) == max {
				break
			}
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return ids, nil
}

// GetMessage fetches the full message, headers and body tree included.
func (p *Provider) GetMessage(ctx context.Context, id string) (model.Message, error) {
	msg, err := p.svc.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return model.Message{}, wrapErr("messages.get", err)
	}
	return toMessage(msg), nil
}

func (p *Provider) ListLabels(ctx context.Context) ([]model.Label, error) {
	resp, err := p.svc.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return nil, wrapErr("labels.list", err)
	}
	out := make([]model.Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		out = append(out, model.Label{ID: l.Id, Name: l.Name})
	}
	return out, nil
}

func (p *Provider) CreateLabel(ctx context.Context, name string) (model.Label, error) {
	l, err := p.svc.Users.Labels.Create(user, &gmailv1.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return model.Label{}, wrapErr("labels.create", err)
	}
	return model.Label{ID: l.Id, Name: l.Name}, nil
}

func (p *Provider) ModifyMessage(ctx context.Context, id string, add, remove []string) error {
	req := &gmailv1.ModifyMessageRequest{AddLabelIds: add, RemoveLabelIds: remove}
	if _, err := p.svc.Users.Messages.Modify(user, id, req).Context(ctx).Do(); err != nil {
		return wrapErr("messages.modify", err)
	}
	return nil
}

func (p *Provider) TrashMessage(ctx context.Context, id string) error {
	if _, err := p.svc.Users.Messages.Trash(user, id).Context(ctx).Do(); err != nil {
		return wrapErr("messages.trash", err)
	}
	return nil
}

func wrapErr(op string, err error) error {
	pe := &model.ProviderError{Op: op, Err: err}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		pe.Code = apiErr.Code
	}
	return pe
}

func toMessage(msg *gmailv1.Message) model.Message {
	out := model.Message{ID: msg.Id, Snippet: msg.Snippet}
	if msg.Payload == nil {
		return out
	}
	for _, h := range msg.Payload.Headers {
		if h == nil {
			continue
		}
		out.Headers = append(out.Headers, model.Header{Name: h.Name, Value: h.Value})
	}
	out.Payload = toPart(msg.Payload)
	return out
}

func toPart(p *gmailv1.MessagePart) *model.Part {
	if p == nil {
		return nil
	}
	part := &model.Part{
		MimeType: p.MimeType,
		Filename: p.Filename,
		Charset:  partCharset(p.Headers),
	}
	if p.Body != nil {
		part.Data = p.Body.Data
	}
	for _, sub := range p.Parts {
		if sp := toPart(sub); sp != nil {
			part.Parts = append(part.Parts, sp)
		}
	}
	return part
}

func partCharset(headers []*gmailv1.MessagePartHeader) string {
	for _, h := range headers {
		if h == nil || !strings.EqualFold(h.Name, "Content-Type") {
			continue
		}
		_, params, err := mime.ParseMediaType(h.Value)
		if err != nil {
			return ""
		}
		return params["charset"]
	}
	return ""
}
