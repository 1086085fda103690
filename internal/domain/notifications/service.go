package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"staffdesk/internal/domain/staff"
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

type Service struct {
	store       StoreAPI
	Mailer      Mailer
	DefaultFrom string
	// NotifyTo receives a copy of every notification by email when set.
	NotifyTo string
}

func New(store StoreAPI, mailer Mailer) *Service {
	return &Service{store: store, Mailer: mailer, DefaultFrom: "no-reply@example.com"}
}

func (s *Service) Create(ctx context.Context, n Notification) (string, error) {
	id, err := s.store.CreateNotification(ctx, n)
	if err != nil {
		return "", err
	}
	if s.Mailer == nil || strings.TrimSpace(s.NotifyTo) == "" {
		return id, nil
	}
	if err := s.Mailer.Send(ctx, s.DefaultFrom, s.NotifyTo, n.Title, n.Body); err != nil {
		slog.Warn("notification email send failed", "type", n.Type, "err", err)
	}
	return id, nil
}

// Transition records a removal or return for operators.
func (s *Service) Transition(ctx context.Context, t staff.Transition) (string, error) {
	n := Notification{Type: TypeStaffReturned, StaffID: t.StaffID}
	name := t.Record.FullName()
	if name == "" {
		name = t.StaffID
	}
	if t.Event.Type == staff.EventRemoval {
		n.Type = TypeStaffRemoved
		n.Title = fmt.Sprintf("%s exited (%s)", name, t.Event.ReasonType)
	} else {
		n.Title = fmt.Sprintf("%s returned (%s)", name, t.Event.ReasonType)
	}
	n.Body = fmt.Sprintf("%s moved %s from %s to %s.\nReason: %s\nComment: %s\n",
		t.Event.Actor.DisplayName, name, t.From, t.To, t.Event.ReasonType, t.Event.Comment)
	return s.Create(ctx, n)
}

// Duplicates asks an operator to resolve records left in both locations.
func (s *Service) Duplicates(ctx context.Context, ids []string) (string, error) {
	return s.Create(ctx, Notification{
		Type:  TypeDuplicatesDetected,
		Title: fmt.Sprintf("%d staff record(s) need reconciliation", len(ids)),
		Body:  "Present in both active and exited: " + strings.Join(ids, ", "),
	})
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Notification, int, error) {
	return s.store.ListNotifications(ctx, limit, offset)
}

func (s *Service) CountUnread(ctx context.Context) (int, error) {
	return s.store.CountUnread(ctx)
}

func (s *Service) MarkRead(ctx context.Context, id, by string) error {
	return s.store.MarkRead(ctx, id, by)
}
