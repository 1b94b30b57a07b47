// Package label marks processed messages on the provider side.
package label

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"inboxcleaner/internal/model"
)

// InboxLabel is the system label removed when archiving.
const InboxLabel = "INBOX"

// Service declares the provider label operations the applier relies on.
type Service interface {
	ListLabels(ctx context.Context) ([]model.Label, error)
	CreateLabel(ctx context.Context, name string) (model.Label, error)
	ModifyMessage(ctx context.Context, messageID string, add, remove []string) error
	TrashMessage(ctx context.Context, messageID string) error
}

// Applier applies labels and follow-up actions. Calls are independent of
// each other; a failed call leaves earlier ones in place.
type Applier struct {
	svc Service
	log *logrus.Entry
}

func NewApplier(svc Service, log *logrus.Entry) *Applier {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Applier{svc: svc, log: log.WithField("pkg", "label")}
}

// EnsureLabel returns the id of the label called name, creating it when no
// existing label has exactly that (case-sensitive) name.
func (a *Applier) EnsureLabel(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("label name is required")
	}
	labels, err := a.svc.ListLabels(ctx)
	if err != nil {
		return "", fmt.Errorf("list labels: %w", err)
	}
	for _, l := range labels {
		if l.Name == name {
			return l.ID, nil
		}
	}
	created, err := a.svc.CreateLabel(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create label %q: %w", name, err)
	}
	a.log.WithFields(logrus.Fields{"label": name, "id": created.ID}).Info("Created label")
	return created.ID, nil
}

// Apply adds labelID to the message. Adding a label the message already
// carries is a no-op on the provider side.
func (a *Applier) Apply(ctx context.Context, messageID, labelID string) error {
	if err := a.svc.ModifyMessage(ctx, messageID, []string{labelID}, nil); err != nil {
		return fmt.Errorf("label message %s: %w", messageID, err)
	}
	return nil
}

// Archive removes the message from the inbox.
func (a *Applier) Archive(ctx context.Context, messageID string) error {
	if err := a.svc.ModifyMessage(ctx, messageID, nil, []string{InboxLabel}); err != nil {
		return fmt.Errorf("archive message %s: %w", messageID, err)
	}
	return nil
}

// Trash moves the message to the trash.
func (a *Applier) Trash(ctx context.Context, messageID string) error {
	if err := a.svc.TrashMessage(ctx, messageID); err != nil {
		return fmt.Errorf("trash message %s: %w", messageID, err)
	}
	return nil
}
