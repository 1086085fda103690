package audit

import (
	"context"
	"sort"
	"time"

	"staffdesk/internal/platform/recordstore"
)

// FeedPath holds one entry per lifecycle transition, keyed by push key.
const FeedPath = "audit/lifecycle"

type Actor struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Entry is the global copy of a lifecycle event. It is written in the same
// update as the record move and never edited.
type Entry struct {
	Key        string `json:"key,omitempty"`
	StaffID    string `json:"staffId"`
	IDNo       string `json:"idNo,omitempty"`
	Name       string `json:"name,omitempty"`
	Type       string `json:"type"`
	ReasonType string `json:"reasonType"`
	Comment    string `json:"comment"`
	Actor      Actor  `json:"actor"`
	Timestamp  string `json:"timestamp"`
	From       string `json:"from"`
	To         string `json:"to"`
}

// Filter narrows List. From and To bound the entry timestamp, both
// inclusive; zero values are open.
type Filter struct {
	StaffID string
	Type    string
	ActorID string
	From    time.Time
	To      time.Time
}

func (f Filter) match(e Entry) bool {
	if f.StaffID != "" && e.StaffID != f.StaffID {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.ActorID != "" && e.Actor.ID != f.ActorID {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	at, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && at.Before(f.From) {
		return false
	}
	return f.To.IsZero() || !at.After(f.To)
}

func Path(key string) string {
	return recordstore.Join(FeedPath, key)
}

// Persisted strips fields that live in the path rather than the node.
func (e Entry) Persisted() Entry {
	e.Key = ""
	return e
}

type Service struct {
	Records recordstore.Store
	// Normalize, when set, rewrites entries read back from the store.
	Normalize func(Entry) Entry
}

func New(records recordstore.Store) *Service {
	return &Service{Records: records}
}

// List returns matching entries newest first, plus the total match count.
func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Entry, int, error) {
	node, err := s.Records.Read(ctx, FeedPath)
	if err != nil {
		return nil, 0, err
	}
	var matched []Entry
	for _, child := range node.Children() {
		var e Entry
		if err := child.Decode(&e); err != nil {
			return nil, 0, err
		}
		e.Key = child.Key()
		if s.Normalize != nil {
			e = s.Normalize(e)
		}
		if filter.match(e) {
			matched = append(matched, e)
		}
	}
	// Push keys sort by creation time.
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Key > matched[j].Key })

	total := len(matched)
	if offset >= total {
		return []Entry{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}
