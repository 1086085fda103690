package staff

import (
	"log/slog"
	"slices"
	"strings"
)

// LineItem is a ledger row whose filledness is decided over a fixed field list.
type LineItem[T any] interface {
	comparable
	IsFilled() bool
	IsLocked() bool
	WithLocked(locked bool) T
	FieldValue(field string) (string, bool)
	WithField(field, value string) (T, bool)
}

var paymentFields = []string{
	"date", "clientNameOrReference", "days", "amount", "balanceAmount",
	"typeOfPayment", "purpose", "receiptNo", "bookNo", "remarks",
}

var workFields = []string{
	"clientId", "clientNameOrReference", "location", "days",
	"fromDate", "toDate", "serviceType", "remarks",
}

func (p PaymentEntry) IsFilled() bool {
	for _, f := range paymentFields {
		if v, _ := p.FieldValue(f); strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func (p PaymentEntry) IsLocked() bool { return p.Locked }

func (p PaymentEntry) WithLocked(locked bool) PaymentEntry {
	p.Locked = locked
	return p
}

func (p PaymentEntry) FieldValue(field string) (string, bool) {
	switch field {
	case "date":
		return p.Date, true
	case "clientNameOrReference":
		return p.ClientNameOrReference, true
	case "days":
		return p.Days, true
	case "amount":
		return p.Amount, true
	case "balanceAmount":
		return p.BalanceAmount, true
	case "typeOfPayment":
		return p.TypeOfPayment, true
	case "purpose":
		return p.Purpose, true
	case "receiptNo":
		return p.ReceiptNo, true
	case "bookNo":
		return p.BookNo, true
	case "remarks":
		return p.Remarks, true
	}
	return "", false
}

func (p PaymentEntry) WithField(field, value string) (PaymentEntry, bool) {
	switch field {
	case "date":
		p.Date = value
	case "clientNameOrReference":
		p.ClientNameOrReference = value
	case "days":
		p.Days = value
	case "amount":
		p.Amount = value
	case "balanceAmount":
		p.BalanceAmount = value
	case "typeOfPayment":
		p.TypeOfPayment = value
	case "purpose":
		p.Purpose = value
	case "receiptNo":
		p.ReceiptNo = value
	case "bookNo":
		p.BookNo = value
	case "remarks":
		p.Remarks = value
	default:
		return p, false
	}
	return p, true
}

func (w WorkEntry) IsFilled() bool {
	for _, f := range workFields {
		if v, _ := w.FieldValue(f); strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func (w WorkEntry) IsLocked() bool { return w.Locked }

func (w WorkEntry) WithLocked(locked bool) WorkEntry {
	w.Locked = locked
	return w
}

func (w WorkEntry) FieldValue(field string) (string, bool) {
	switch field {
	case "clientId":
		return w.ClientID, true
	case "clientNameOrReference":
		return w.ClientNameOrReference, true
	case "location":
		return w.Location, true
	case "days":
		return w.Days, true
	case "fromDate":
		return w.FromDate, true
	case "toDate":
		return w.ToDate, true
	case "serviceType":
		return w.ServiceType, true
	case "remarks":
		return w.Remarks, true
	}
	return "", false
}

func (w WorkEntry) WithField(field, value string) (WorkEntry, bool) {
	switch field {
	case "clientId":
		w.ClientID = value
	case "clientNameOrReference":
		w.ClientNameOrReference = value
	case "location":
		w.Location = value
	case "days":
		w.Days = value
	case "fromDate":
		w.FromDate = value
	case "toDate":
		w.ToDate = value
	case "serviceType":
		w.ServiceType = value
	case "remarks":
		w.Remarks = value
	default:
		return w, false
	}
	return w, true
}

// DeriveLocks returns a copy of entries with every filled row locked.
func DeriveLocks[T LineItem[T]](entries []T) []T {
	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.WithLocked(e.IsFilled())
	}
	return out
}

// CanEdit is false for locked rows whatever the field, and for unknown fields.
func CanEdit[T LineItem[T]](entry T, field string) bool {
	if entry.IsLocked() {
		return false
	}
	_, known := entry.FieldValue(field)
	return known
}

// AddRow appends one blank, unlocked row.
func AddRow[T LineItem[T]](entries []T) []T {
	var blank T
	return append(slices.Clone(entries), blank)
}

// RemoveRow drops the row at index unless it is locked or out of range. The
// result is never empty: removing the only row leaves one blank row.
func RemoveRow[T LineItem[T]](entries []T, index int) ([]T, bool) {
	if index < 0 || index >= len(entries) || entries[index].IsLocked() {
		return slices.Clone(entries), false
	}
	out := slices.Delete(slices.Clone(entries), index, index+1)
	if len(out) == 0 {
		var blank T
		out = append(out, blank)
	}
	return out, true
}

// SetField edits one field of one row. Locked rows, unknown fields and bad
// indexes leave the slice unchanged and report false.
func SetField[T LineItem[T]](entries []T, index int, field, value string) ([]T, bool) {
	if index < 0 || index >= len(entries) || !CanEdit(entries[index], field) {
		return slices.Clone(entries), false
	}
	updated, ok := entries[index].WithField(field, value)
	if !ok {
		return slices.Clone(entries), false
	}
	out := slices.Clone(entries)
	out[index] = updated
	return out, true
}

// EnsureRow guarantees at least one row for the editor.
func EnsureRow[T LineItem[T]](entries []T) []T {
	if len(entries) == 0 {
		var blank T
		return []T{blank}
	}
	return entries
}

// Compact drops blank rows and clears lock flags before a row is persisted.
func Compact[T LineItem[T]](entries []T) []T {
	var out []T
	for _, e := range entries {
		if e.IsFilled() {
			out = append(out, e.WithLocked(false))
		}
	}
	return out
}

// MergeLines applies an edited row list on top of the stored one. Stored rows
// that are filled are locked: they are kept as stored and any attempt to
// change or drop them is reported. Rows past the stored ones are taken from
// incoming as they are.
func MergeLines[T LineItem[T]](collection string, stored, incoming []T) ([]T, []LockViolation) {
	stored = DeriveLocks(stored)
	out := make([]T, 0, max(len(stored), len(incoming)))
	var violations []LockViolation
	for i, s := range stored {
		if !s.IsLocked() {
			if i < len(incoming) {
				out = append(out, incoming[i].WithLocked(false))
			}
			continue
		}
		out = append(out, s)
		if i >= len(incoming) {
			violations = append(violations, LockViolation{Collection: collection, Row: i + 1})
			continue
		}
		if field, changed := firstDifference(s, incoming[i]); changed {
			violations = append(violations, LockViolation{Collection: collection, Row: i + 1, Field: field})
		}
	}
	for i := len(stored); i < len(incoming); i++ {
		out = append(out, incoming[i].WithLocked(false))
	}
	return out, violations
}

func firstDifference[T LineItem[T]](a, b T) (string, bool) {
	if a.WithLocked(false) == b.WithLocked(false) {
		return "", false
	}
	var fields []string
	switch any(a).(type) {
	case PaymentEntry:
		fields = paymentFields
	case WorkEntry:
		fields = workFields
	}
	for _, f := range fields {
		av, _ := a.FieldValue(f)
		bv, _ := b.FieldValue(f)
		if av != bv {
			return f, true
		}
	}
	return "", true
}

func (r Record) clone() Record {
	r = cloneUnknown(r)
	r.Payments = slices.Clone(r.Payments)
	r.WorkDetails = slices.Clone(r.WorkDetails)
	return r
}

func AddPaymentRow(rec Record) Record {
	rec = rec.clone()
	rec.Payments = AddRow(rec.Payments)
	return rec
}

func RemovePaymentRow(rec Record, index int) (Record, bool) {
	rec = rec.clone()
	out, ok := RemoveRow(rec.Payments, index)
	if !ok {
		logRefusedRow(CollectionPayments, index, "")
	}
	rec.Payments = out
	return rec, ok
}

func AddWorkRow(rec Record) Record {
	rec = rec.clone()
	rec.WorkDetails = AddRow(rec.WorkDetails)
	return rec
}

func RemoveWorkRow(rec Record, index int) (Record, bool) {
	rec = rec.clone()
	out, ok := RemoveRow(rec.WorkDetails, index)
	if !ok {
		logRefusedRow(CollectionWorkDetails, index, "")
	}
	rec.WorkDetails = out
	return rec, ok
}

func SetPaymentField(rec Record, index int, field, value string) (Record, bool) {
	rec = rec.clone()
	out, ok := SetField(rec.Payments, index, field, value)
	if !ok {
		logRefusedRow(CollectionPayments, index, field)
	}
	rec.Payments = out
	return rec, ok
}

func SetWorkField(rec Record, index int, field, value string) (Record, bool) {
	rec = rec.clone()
	out, ok := SetField(rec.WorkDetails, index, field, value)
	if !ok {
		logRefusedRow(CollectionWorkDetails, index, field)
	}
	rec.WorkDetails = out
	return rec, ok
}

// OpenForEdit derives locks and makes sure both ledgers show a row.
func OpenForEdit(rec Record) Record {
	rec = rec.clone()
	rec.Payments = EnsureRow(DeriveLocks(rec.Payments))
	rec.WorkDetails = EnsureRow(DeriveLocks(rec.WorkDetails))
	return rec
}

func logRefusedRow(collection string, index int, field string) {
	slog.Warn("line item edit refused", "collection", collection, "row", index+1, "field", field)
}
