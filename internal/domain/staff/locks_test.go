package staff

import (
	"reflect"
	"testing"
)

func filledPayment(amount string) PaymentEntry {
	return PaymentEntry{
		Date:                  "2026-06-01",
		ClientNameOrReference: "ACME",
		Days:                  "5",
		Amount:                amount,
		TypeOfPayment:         "cash",
		Purpose:               "salary",
	}
}

func TestDeriveLocksOnlyFilled(t *testing.T) {
	rows := DeriveLocks([]PaymentEntry{{}, {Remarks: "x"}, {Locked: true}})
	if rows[0].Locked || !rows[1].Locked || rows[2].Locked {
		t.Fatalf("unexpected locks: %+v", rows)
	}
	if (PaymentEntry{Locked: true}).IsFilled() {
		t.Fatal("lock flag alone must not make a row filled")
	}
	if !(WorkEntry{ServiceType: "guard"}).IsFilled() {
		t.Fatal("expected work row to be filled")
	}
}

func TestSetFieldOnLockedRowIsNoop(t *testing.T) {
	rows := DeriveLocks([]PaymentEntry{filledPayment("500")})
	out, ok := SetField(rows, 0, "amount", "600")
	if ok {
		t.Fatal("expected locked row edit to be refused")
	}
	if !reflect.DeepEqual(out, rows) {
		t.Fatalf("locked row changed: %+v", out)
	}
	for _, field := range paymentFields {
		if CanEdit(rows[0], field) {
			t.Fatalf("field %s should not be editable on a locked row", field)
		}
	}
}

func TestSetFieldOnOpenRow(t *testing.T) {
	rows := []WorkEntry{{}}
	out, ok := SetField(rows, 0, "clientId", "C1")
	if !ok || out[0].ClientID != "C1" {
		t.Fatalf("expected edit to apply, got %+v ok=%v", out, ok)
	}
	if rows[0].ClientID != "" {
		t.Fatal("input slice must not be mutated")
	}
	if _, ok := SetField(rows, 0, "nope", "x"); ok {
		t.Fatal("unknown field must be refused")
	}
	if _, ok := SetField(rows, 3, "clientId", "x"); ok {
		t.Fatal("out of range index must be refused")
	}
}

func TestRowsNeverEmpty(t *testing.T) {
	rows := EnsureRow[PaymentEntry](nil)
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	rows = AddRow(rows)
	rows = AddRow(rows)
	for i := 0; i < 5; i++ {
		rows, _ = RemoveRow(rows, 0)
		if len(rows) == 0 {
			t.Fatal("row list became empty")
		}
	}
	if len(rows) != 1 || rows[0] != (PaymentEntry{}) {
		t.Fatalf("expected a single blank row, got %+v", rows)
	}
}

func TestRemoveLockedRowRefused(t *testing.T) {
	rows := DeriveLocks([]WorkEntry{{ClientID: "C1"}, {}})
	out, ok := RemoveRow(rows, 0)
	if ok || !reflect.DeepEqual(out, rows) {
		t.Fatalf("locked row removed: %+v", out)
	}
	out, ok = RemoveRow(rows, 1)
	if !ok || len(out) != 1 || out[0].ClientID != "C1" {
		t.Fatalf("expected blank row removal, got %+v", out)
	}
}

func TestRecordRowHelpers(t *testing.T) {
	rec := OpenForEdit(Record{Payments: []PaymentEntry{filledPayment("500")}})
	if len(rec.WorkDetails) != 1 || !rec.Payments[0].Locked {
		t.Fatalf("unexpected opened record: %+v", rec)
	}
	edited, ok := SetPaymentField(rec, 0, "amount", "600")
	if ok || edited.Payments[0].Amount != "500" {
		t.Fatalf("locked amount changed: %+v", edited.Payments[0])
	}
	rec = AddPaymentRow(rec)
	rec, ok = SetPaymentField(rec, 1, "amount", "700")
	if !ok || rec.Payments[1].Amount != "700" {
		t.Fatalf("new row edit failed: %+v", rec.Payments)
	}
	if _, ok := RemovePaymentRow(rec, 0); ok {
		t.Fatal("locked payment row removed")
	}
	rec = AddWorkRow(rec)
	if rec, ok = RemoveWorkRow(rec, 1); !ok || len(rec.WorkDetails) != 1 {
		t.Fatalf("work row removal failed: %+v", rec.WorkDetails)
	}
	if _, ok := SetWorkField(rec, 0, "days", "3"); !ok {
		t.Fatal("blank work row should accept edits")
	}
}

func TestMergeLinesKeepsLockedRows(t *testing.T) {
	stored := []PaymentEntry{filledPayment("500")}
	incoming := []PaymentEntry{filledPayment("600"), filledPayment("50")}
	merged, violations := MergeLines(CollectionPayments, stored, incoming)
	if len(merged) != 2 || merged[0].Amount != "500" || merged[1].Amount != "50" {
		t.Fatalf("unexpected merge: %+v", merged)
	}
	if !merged[0].Locked || merged[1].Locked {
		t.Fatalf("unexpected lock flags: %+v", merged)
	}
	want := []LockViolation{{Collection: CollectionPayments, Row: 1, Field: "amount"}}
	if !reflect.DeepEqual(violations, want) {
		t.Fatalf("unexpected violations: %+v", violations)
	}

	merged, violations = MergeLines(CollectionPayments, stored, nil)
	if len(merged) != 1 || len(violations) != 1 || violations[0].Field != "" {
		t.Fatalf("dropping a locked row must be refused: %+v %+v", merged, violations)
	}
	if violations[0].String() != "payments #1 is locked and cannot be removed" {
		t.Fatalf("unexpected message: %s", violations[0])
	}
}

func TestCompactDropsBlankRows(t *testing.T) {
	out := Compact([]PaymentEntry{{}, filledPayment("5"), {Locked: true}})
	if len(out) != 1 || out[0].Locked {
		t.Fatalf("unexpected compacted rows: %+v", out)
	}
}
