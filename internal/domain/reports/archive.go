package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"staffdesk/internal/domain/staff"
	"staffdesk/internal/platform/blob"
)

const archivePrefix = "archive"

// Archiver writes an exit snapshot and statement for each committed removal.
type Archiver struct {
	Blobs blob.Store
	Now   func() time.Time
}

func NewArchiver(blobs blob.Store) *Archiver {
	return &Archiver{Blobs: blobs, Now: time.Now}
}

type ArchiveResult struct {
	StaffID   string `json:"staffId"`
	EventKey  string `json:"eventKey"`
	Snapshot  string `json:"snapshot"`
	Statement string `json:"statement"`
}

func ArchiveKey(staffID, eventKey, ext string) string {
	return path.Join(archivePrefix, staffID, eventKey+"."+ext)
}

// Archive stores t.Record as it was written to the exited location. The
// record keeps its sealed sensitive fields.
func (a *Archiver) Archive(ctx context.Context, t staff.Transition) (ArchiveResult, error) {
	res := ArchiveResult{
		StaffID:   t.StaffID,
		EventKey:  t.EventKey,
		Snapshot:  ArchiveKey(t.StaffID, t.EventKey, "json"),
		Statement: ArchiveKey(t.StaffID, t.EventKey, "pdf"),
	}
	meta := map[string]string{"staff-id": t.StaffID, "event-key": t.EventKey, "event-type": string(t.Event.Type)}

	snapshot, err := json.MarshalIndent(struct {
		Transition staff.Transition `json:"transition"`
		Record     staff.Record     `json:"record"`
	}{t, t.Record}, "", "  ")
	if err != nil {
		return res, fmt.Errorf("marshal archive snapshot: %w", err)
	}
	if _, err := a.Blobs.Put(ctx, res.Snapshot, bytes.NewReader(snapshot), blob.PutOptions{ContentType: "application/json", Metadata: meta}); err != nil {
		return res, err
	}

	pdf, err := StatementPDF(t.Record, t.To, staff.OrderedEvents(t.Record), a.Now())
	if err != nil {
		return res, err
	}
	if _, err := a.Blobs.Put(ctx, res.Statement, bytes.NewReader(pdf), blob.PutOptions{ContentType: "application/pdf", Metadata: meta}); err != nil {
		return res, err
	}
	return res, nil
}

// List returns archived objects for one staff member.
func (a *Archiver) List(ctx context.Context, staffID string) ([]blob.Info, error) {
	return a.Blobs.List(ctx, path.Join(archivePrefix, staffID)+"/")
}
