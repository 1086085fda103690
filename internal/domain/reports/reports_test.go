package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"staffdesk/internal/domain/staff"
	"staffdesk/internal/platform/blob/memory"
)

func sampleTransition() staff.Transition {
	rec := staff.Record{
		ID:        "s1",
		IDNo:      "E100",
		FirstName: "Asha",
		AadhaarNo: "enc:c2VhbGVk",
		Payments: []staff.PaymentEntry{
			{Date: "2026-06-01", ClientNameOrReference: "ACME", Days: "5", Amount: "500", TypeOfPayment: "cash", Purpose: "salary"},
		},
		LifecycleAudit: map[string]staff.LifecycleEvent{
			"k1": {Type: staff.EventRemoval, ReasonType: "Resign", Comment: "Left for higher studies", Actor: staff.ActorRef{DisplayName: "Admin"}},
		},
	}
	return staff.Transition{
		StaffID:  "s1",
		EventKey: "k1",
		Event:    rec.LifecycleAudit["k1"],
		From:     staff.LocationActive,
		To:       staff.LocationExited,
		Record:   rec,
	}
}

func TestStatementPDF(t *testing.T) {
	tr := sampleTransition()
	pdf, err := StatementPDF(tr.Record, tr.To, staff.OrderedEvents(tr.Record), time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Fatalf("not a pdf: %q", pdf[:min(len(pdf), 16)])
	}
	empty, err := StatementPDF(staff.Record{FirstName: "Nobody"}, staff.LocationActive, nil, time.Now())
	if err != nil || len(empty) == 0 {
		t.Fatalf("empty statement: %v", err)
	}
}

func TestArchiveWritesSnapshotAndStatement(t *testing.T) {
	ctx := context.Background()
	blobs := memory.New()
	archiver := NewArchiver(blobs)

	res, err := archiver.Archive(ctx, sampleTransition())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if res.Snapshot != "archive/s1/k1.json" || res.Statement != "archive/s1/k1.pdf" {
		t.Fatalf("unexpected keys: %+v", res)
	}
	list, err := archiver.List(ctx, "s1")
	if err != nil || len(list) != 2 {
		t.Fatalf("expected two archived objects, got %+v %v", list, err)
	}

	info, rc, err := blobs.Get(ctx, res.Snapshot)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	var snapshot struct {
		Transition staff.Transition `json:"transition"`
		Record     staff.Record     `json:"record"`
	}
	if err := json.Unmarshal(body, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.Record.IDNo != "E100" || snapshot.Record.AadhaarNo != "enc:c2VhbGVk" || snapshot.Transition.To != staff.LocationExited {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if info.Metadata["event-type"] != "Removal" {
		t.Fatalf("unexpected metadata: %v", info.Metadata)
	}
}
