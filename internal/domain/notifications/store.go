package notifications

import (
	"context"
	"errors"
	"sort"
	"time"

	"staffdesk/internal/platform/recordstore"
)

var ErrNotFound = errors.New("notification not found")

type Notification struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	StaffID   string `json:"staffId,omitempty"`
	CreatedAt string `json:"createdAt"`
	ReadAt    string `json:"readAt,omitempty"`
	ReadBy    string `json:"readBy,omitempty"`
}

type Store struct {
	Records recordstore.Store
	Now     func() string
}

// NewStore uses the current UTC time in RFC 3339 when now is nil.
func NewStore(records recordstore.Store, now func() string) *Store {
	if now == nil {
		now = func() string { return time.Now().UTC().Format(time.RFC3339) }
	}
	return &Store{Records: records, Now: now}
}

func (s *Store) CreateNotification(ctx context.Context, n Notification) (string, error) {
	id, err := s.Records.Push(ctx, FeedPath)
	if err != nil {
		return "", err
	}
	n.ID = ""
	if n.CreatedAt == "" {
		n.CreatedAt = s.Now()
	}
	if err := s.Records.Update(ctx, recordstore.Updates{recordstore.Join(FeedPath, id): n}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) all(ctx context.Context) ([]Notification, error) {
	node, err := s.Records.Read(ctx, FeedPath)
	if err != nil {
		return nil, err
	}
	var out []Notification
	for _, child := range node.Children() {
		var n Notification
		if err := child.Decode(&n); err != nil {
			return nil, err
		}
		n.ID = child.Key()
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) ListNotifications(ctx context.Context, limit, offset int) ([]Notification, int, error) {
	items, err := s.all(ctx)
	if err != nil {
		return nil, 0, err
	}
	total := len(items)
	if offset >= total {
		return []Notification{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end], total, nil
}

func (s *Store) CountUnread(ctx context.Context) (int, error) {
	items, err := s.all(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range items {
		if n.ReadAt == "" {
			count++
		}
	}
	return count, nil
}

func (s *Store) MarkRead(ctx context.Context, id, by string) error {
	if err := recordstore.ValidateKey(id); err != nil {
		return ErrNotFound
	}
	path := recordstore.Join(FeedPath, id)
	node, err := s.Records.Read(ctx, path)
	if err != nil {
		return err
	}
	if !node.Exists() {
		return ErrNotFound
	}
	return s.Records.Update(ctx, recordstore.Updates{
		recordstore.Join(path, "readAt"): s.Now(),
		recordstore.Join(path, "readBy"): by,
	})
}
