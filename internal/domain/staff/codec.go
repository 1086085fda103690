package staff

import (
	"fmt"

	"staffdesk/internal/platform/crypto"
	"staffdesk/internal/platform/recordstore"
)

// FieldCipher seals sensitive fields at rest. *crypto.Cipher implements it.
type FieldCipher interface {
	Seal(value string) (string, error)
	Open(value string) (string, error)
}

// sensitiveFields returns pointers to the fields that are sealed at rest and
// masked for actors without the unlock permission.
func sensitiveFields(rec *Record) []*string {
	return []*string{&rec.AadhaarNo, &rec.Bank.AccountNumber, &rec.Salary}
}

func decodeRecord(node recordstore.Node) (Record, error) {
	var rec Record
	if err := node.Decode(&rec); err != nil {
		return Record{}, fmt.Errorf("decode staff record %s: %w", node.Path, err)
	}
	rec.ID = node.Key()
	for key, ev := range rec.LifecycleAudit {
		ev.ReasonType = NormalizeStoredReason(ev.ReasonType)
		rec.LifecycleAudit[key] = ev
	}
	if rec.LastReturn != nil {
		rec.LastReturn.ReasonType = NormalizeStoredReason(rec.LastReturn.ReasonType)
	}
	return rec, nil
}

// persisted is the form written to the store: no id, no blank rows, no lock
// flags, sensitive fields sealed.
func persisted(rec Record, cipher FieldCipher) (Record, error) {
	rec = rec.clone()
	rec.ID = ""
	rec.Payments = Compact(rec.Payments)
	rec.WorkDetails = Compact(rec.WorkDetails)
	if err := seal(&rec, cipher); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func seal(rec *Record, cipher FieldCipher) error {
	if cipher == nil {
		return nil
	}
	for _, field := range sensitiveFields(rec) {
		sealed, err := cipher.Seal(*field)
		if err != nil {
			return fmt.Errorf("seal sensitive field: %w", err)
		}
		*field = sealed
	}
	return nil
}

func unseal(rec *Record, cipher FieldCipher) error {
	for _, field := range sensitiveFields(rec) {
		if !crypto.IsSealed(*field) {
			continue
		}
		if cipher == nil {
			return crypto.ErrNotConfigured
		}
		plain, err := cipher.Open(*field)
		if err != nil {
			return fmt.Errorf("unseal sensitive field: %w", err)
		}
		*field = plain
	}
	return nil
}

func maskSensitive(rec *Record) {
	for _, field := range sensitiveFields(rec) {
		*field = ""
	}
}

// keepSensitive copies the stored sensitive values over whatever an actor
// without unlock permission submitted.
func keepSensitive(dst *Record, stored Record) {
	src := sensitiveFields(&stored)
	for i, field := range sensitiveFields(dst) {
		*field = *src[i]
	}
}

func summarize(rec Record, loc Location) Summary {
	return Summary{
		ID:          rec.ID,
		Location:    loc,
		EmployeeID:  rec.EmployeeID,
		IDNo:        rec.IDNo,
		Name:        rec.FullName(),
		Status:      rec.Status,
		Designation: rec.Designation,
		MobileNo:    rec.MobileNo,
		LastReturn:  rec.LastReturn,
		LastRemoval: rec.LastRemoval,
	}
}
