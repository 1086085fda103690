package staff

import (
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC)

func hasIssue(res Result, field string) bool {
	for _, issue := range res.Issues {
		if issue.Field == field {
			return true
		}
	}
	return false
}

func TestDateOfBirthWindow(t *testing.T) {
	rec := Record{DateOfBirth: "2009-06-15"}
	res := ValidateSection(rec, SectionBasic, testNow)
	if res.OK || !hasIssue(res, "dateOfBirth") {
		t.Fatalf("17 year old should fail, got %+v", res)
	}
	if res.Errors[0] != "dateOfBirth age must be between 18 and 60" {
		t.Fatalf("unexpected message: %q", res.Errors[0])
	}
	rec.DateOfBirth = "2008-06-15"
	if res := ValidateSection(rec, SectionBasic, testNow); !res.OK {
		t.Fatalf("exactly 18 should pass, got %+v", res.Errors)
	}
	rec.DateOfBirth = "1966-06-15"
	if res := ValidateSection(rec, SectionBasic, testNow); !res.OK {
		t.Fatalf("exactly 60 should pass, got %+v", res.Errors)
	}
	rec.DateOfBirth = "1966-06-14"
	if res := ValidateSection(rec, SectionBasic, testNow); res.OK {
		t.Fatal("older than 60 should fail")
	}
	rec.DateOfBirth = "15/06/2000"
	if res := ValidateSection(rec, SectionBasic, testNow); !hasIssue(res, "dateOfBirth") {
		t.Fatal("bad date format should fail")
	}
}

func TestBasicFieldFormats(t *testing.T) {
	rec := Record{
		MobileNo:          "98765",
		AlternateMobileNo: "98765abcde",
		AadhaarNo:         "1234",
		Status:            "Retired",
		EmergencyContact:  EmergencyContact{Phone: "12"},
	}
	res := ValidateSection(rec, SectionBasic, testNow)
	for _, field := range []string{"mobileNo", "alternateMobileNo", "aadhaarNo", "status", "emergencyContact.phone"} {
		if !hasIssue(res, field) {
			t.Fatalf("expected issue for %s, got %+v", field, res.Errors)
		}
	}
	ok := Record{MobileNo: "9876543210", AadhaarNo: "123412341234", Status: StatusOffDuty}
	if res := ValidateSection(ok, SectionBasic, testNow); !res.OK {
		t.Fatalf("expected valid basic section, got %v", res.Errors)
	}
}

func TestAddressAndPersonal(t *testing.T) {
	rec := Record{PermanentAddress: Address{Pincode: "5600"}, PresentAddress: Address{Pincode: "560001"}}
	res := ValidateSection(rec, SectionAddress, testNow)
	if !hasIssue(res, "permanentAddress.pincode") || hasIssue(res, "presentAddress.pincode") {
		t.Fatalf("unexpected address result: %+v", res.Errors)
	}

	rec = Record{MaritalStatus: "married", MarriageDate: "1980-01-01"}
	if res := ValidateSection(rec, SectionPersonal, testNow); !hasIssue(res, "marriageDate") {
		t.Fatal("marriage older than 40 years should fail")
	}
	rec.MarriageDate = "2030-01-01"
	if res := ValidateSection(rec, SectionPersonal, testNow); res.OK {
		t.Fatal("future marriage date should fail")
	}
	rec.MaritalStatus = "Single"
	if res := ValidateSection(rec, SectionPersonal, testNow); !res.OK {
		t.Fatal("marriage date is ignored unless married")
	}
}

func TestPaymentAmountBounds(t *testing.T) {
	rec := Record{Payments: []PaymentEntry{filledPayment("12345")}}
	if res := ValidateSection(rec, SectionPayment, testNow); !res.OK {
		t.Fatalf("5 digit amount should pass, got %v", res.Errors)
	}
	rec.Payments[0].Amount = "123456"
	res := ValidateSection(rec, SectionPayment, testNow)
	if res.OK || len(res.Issues) != 1 || res.Issues[0].Field != "amount" {
		t.Fatalf("expected a single amount issue, got %+v", res.Issues)
	}
	if !strings.HasPrefix(res.Errors[0], "Payment #1: amount") {
		t.Fatalf("unexpected message: %q", res.Errors[0])
	}
	rec.Payments[0].Amount = "000"
	if res := ValidateSection(rec, SectionPayment, testNow); res.OK {
		t.Fatal("zero amount should fail")
	}
}

func TestPaymentRowRules(t *testing.T) {
	row := filledPayment("500")
	row.Date = "2025-06-14"
	row.Days = "-1"
	row.BalanceAmount = "1.5"
	row.TypeOfPayment = "crypto"
	row.Purpose = "SALARY"
	rec := Record{Payments: []PaymentEntry{{}, row}}
	res := ValidateSection(rec, SectionPayment, testNow)
	for _, field := range []string{"date", "days", "balanceAmount", "typeOfPayment"} {
		if !hasIssue(res, field) {
			t.Fatalf("expected issue for %s, got %v", field, res.Errors)
		}
	}
	if hasIssue(res, "purpose") {
		t.Fatal("purpose should match case-insensitively")
	}
	if res.Issues[0].Row != 2 {
		t.Fatalf("blank row should be skipped and numbering kept, got row %d", res.Issues[0].Row)
	}
	row.Date = "2025-06-15"
	row.Days, row.BalanceAmount, row.TypeOfPayment = "3", "100", "Online"
	if res := ValidateSection(Record{Payments: []PaymentEntry{row}}, SectionPayment, testNow); !res.OK {
		t.Fatalf("expected valid row, got %v", res.Errors)
	}
}

func TestDaysMustBeWholeNumber(t *testing.T) {
	tests := []struct {
		days string
		ok   bool
	}{
		{"3", true},
		{" 12 ", true},
		{"1.5", false},
		{"0x1p3", false},
		{"+2", false},
		{"0", false},
		{"00", false},
	}
	for _, tt := range tests {
		row := filledPayment("500")
		row.Days = tt.days
		pay := ValidateSection(Record{Payments: []PaymentEntry{row}}, SectionPayment, testNow)
		work := ValidateSection(Record{WorkDetails: []WorkEntry{{
			ClientID: "C1", ClientNameOrReference: "ACME", Days: tt.days,
			FromDate: "2026-01-01", ToDate: "2026-01-31", ServiceType: "guard",
		}}}, SectionWorking, testNow)
		if hasIssue(pay, "days") == tt.ok || hasIssue(work, "days") == tt.ok {
			t.Fatalf("days %q: payment %v, work %v", tt.days, pay.Errors, work.Errors)
		}
	}
}

func TestLockedRowsSkipped(t *testing.T) {
	old := filledPayment("500")
	old.Date = "2020-01-01"
	rec := Record{Payments: DeriveLocks([]PaymentEntry{old})}
	if res := ValidateSection(rec, SectionPayment, testNow); !res.OK {
		t.Fatalf("locked rows are not revalidated, got %v", res.Errors)
	}
}

func TestWorkRowRules(t *testing.T) {
	rec := Record{WorkDetails: []WorkEntry{{ClientID: "C1", FromDate: "2026-02-01", ToDate: "2026-01-01", Days: "x"}}}
	res := ValidateSection(rec, SectionWorking, testNow)
	for _, field := range []string{"clientNameOrReference", "days", "toDate", "serviceType"} {
		if !hasIssue(res, field) {
			t.Fatalf("expected issue for %s, got %v", field, res.Errors)
		}
	}
	if !strings.HasPrefix(res.Errors[0], "Work #1: ") {
		t.Fatalf("unexpected message: %q", res.Errors[0])
	}
}

func TestValidateAllReportsFirstSection(t *testing.T) {
	rec := Record{
		PresentAddress: Address{Pincode: "1"},
		Payments:       []PaymentEntry{filledPayment("1234567")},
	}
	res, first := ValidateAll(rec, testNow)
	if res.OK || first != SectionAddress || len(res.Issues) != 2 {
		t.Fatalf("unexpected result: first=%s %+v", first, res.Issues)
	}
	if res, first := ValidateAll(Record{}, testNow); !res.OK || first != "" {
		t.Fatalf("empty record should pass, got %s %v", first, res.Errors)
	}
	if res := ValidateSection(Record{}, Section("bogus"), testNow); res.OK {
		t.Fatal("unknown section should fail")
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	rec := Record{Payments: []PaymentEntry{filledPayment("9999999")}}
	before := rec.Payments[0]
	ValidateAll(rec, testNow)
	if rec.Payments[0] != before {
		t.Fatal("validation mutated the record")
	}
}

func TestCanonicalReason(t *testing.T) {
	if got, ok := CanonicalReason(EventRemoval, " resign "); !ok || got != "Resign" {
		t.Fatalf("unexpected reason %q %v", got, ok)
	}
	if _, ok := CanonicalReason(EventRemoval, "Re-Join"); ok {
		t.Fatal("return reason accepted for removal")
	}
	if _, ok := CanonicalReason(EventReturn, "Good attutude"); ok {
		t.Fatal("misspelled reason must be rejected on input")
	}
	if got := NormalizeStoredReason("Good attutude"); got != "Good attitude" {
		t.Fatalf("stored misspelling not repaired: %q", got)
	}
}
