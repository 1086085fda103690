package staff

import (
	"fmt"
	"strings"
	"time"
)

type Issue struct {
	Section Section `json:"section"`
	Row     int     `json:"row,omitempty"`
	Field   string  `json:"field"`
	Message string  `json:"message"`
}

// Result is the outcome of a validation run. Errors holds the display lines
// ("Payment #2: amount is required"); Issues carries the same data structured.
type Result struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors"`
	Issues []Issue  `json:"issues"`
}

type collector struct {
	section Section
	issues  []Issue
}

func (c *collector) add(row int, field, message string) {
	c.issues = append(c.issues, Issue{Section: c.section, Row: row, Field: field, Message: message})
}

func (c *collector) required(row int, field, value string) bool {
	if strings.TrimSpace(value) == "" {
		c.add(row, field, "is required")
		return false
	}
	return true
}

func (c *collector) result() Result {
	out := Result{OK: len(c.issues) == 0, Errors: []string{}, Issues: c.issues}
	if out.Issues == nil {
		out.Issues = []Issue{}
	}
	for _, issue := range c.issues {
		out.Errors = append(out.Errors, issue.line())
	}
	return out
}

func (i Issue) line() string {
	switch {
	case i.Row > 0 && i.Section == SectionPayment:
		return fmt.Sprintf("Payment #%d: %s %s", i.Row, i.Field, i.Message)
	case i.Row > 0 && i.Section == SectionWorking:
		return fmt.Sprintf("Work #%d: %s %s", i.Row, i.Field, i.Message)
	}
	return i.Field + " " + i.Message
}

// ValidateSection checks one editor tab of rec. It never mutates rec.
// Payment and work rows are checked only when filled and not yet locked;
// locked rows were validated when they were first saved.
func ValidateSection(rec Record, section Section, now time.Time) Result {
	c := &collector{section: section}
	today := dateOnly(now)
	switch section {
	case SectionBasic:
		validateBasic(c, rec, today)
	case SectionAddress:
		validatePincode(c, "permanentAddress.pincode", rec.PermanentAddress.Pincode)
		validatePincode(c, "presentAddress.pincode", rec.PresentAddress.Pincode)
	case SectionPersonal:
		validatePersonal(c, rec, today)
	case SectionPayment:
		for i, p := range rec.Payments {
			if p.Locked || !p.IsFilled() {
				continue
			}
			validatePayment(c, i+1, p, today)
		}
	case SectionWorking:
		for i, w := range rec.WorkDetails {
			if w.Locked || !w.IsFilled() {
				continue
			}
			validateWork(c, i+1, w)
		}
	default:
		c.add(0, "section", fmt.Sprintf("%q is not a known section", section))
	}
	return c.result()
}

// ValidateAll checks every section in tab order and returns the combined
// result together with the first failing section.
func ValidateAll(rec Record, now time.Time) (Result, Section) {
	combined := Result{OK: true, Errors: []string{}, Issues: []Issue{}}
	var first Section
	for _, section := range Sections {
		res := ValidateSection(rec, section, now)
		if res.OK {
			continue
		}
		if first == "" {
			first = section
		}
		combined.OK = false
		combined.Errors = append(combined.Errors, res.Errors...)
		combined.Issues = append(combined.Issues, res.Issues...)
	}
	return combined, first
}

func validateBasic(c *collector, rec Record, today time.Time) {
	if rec.DateOfBirth != "" {
		if dob, ok := parseDateField(c, 0, "dateOfBirth", rec.DateOfBirth); ok {
			if !within(dob, today.AddDate(-60, 0, 0), today.AddDate(-18, 0, 0)) {
				c.add(0, "dateOfBirth", "age must be between 18 and 60")
			}
		}
	}
	if rec.MobileNo != "" && !digitsExactly(rec.MobileNo, 10) {
		c.add(0, "mobileNo", "must be exactly 10 digits")
	}
	if rec.AlternateMobileNo != "" && !digitsExactly(rec.AlternateMobileNo, 10) {
		c.add(0, "alternateMobileNo", "must be exactly 10 digits")
	}
	if rec.EmergencyContact.Phone != "" && !digitsExactly(rec.EmergencyContact.Phone, 10) {
		c.add(0, "emergencyContact.phone", "must be exactly 10 digits")
	}
	if rec.AadhaarNo != "" && !digitsExactly(rec.AadhaarNo, 12) {
		c.add(0, "aadhaarNo", "must be exactly 12 digits")
	}
	if rec.Status != "" && !oneOf(string(rec.Status), Statuses, false) {
		c.add(0, "status", "must be one of "+strings.Join(Statuses, ", "))
	}
}

func validatePincode(c *collector, field, value string) {
	if value != "" && !digitsExactly(value, 6) {
		c.add(0, field, "must be exactly 6 digits")
	}
}

func validatePersonal(c *collector, rec Record, today time.Time) {
	if !strings.EqualFold(strings.TrimSpace(rec.MaritalStatus), MaritalStatusMarried) || rec.MarriageDate == "" {
		return
	}
	if married, ok := parseDateField(c, 0, "marriageDate", rec.MarriageDate); ok {
		if !within(married, today.AddDate(-40, 0, 0), today) {
			c.add(0, "marriageDate", "must be within the last 40 years")
		}
	}
}

func validatePayment(c *collector, row int, p PaymentEntry, today time.Time) {
	if c.required(row, "date", p.Date) {
		if d, ok := parseDateField(c, row, "date", p.Date); ok && !within(d, today.AddDate(-1, 0, 0), today) {
			c.add(row, "date", "must be within the last year")
		}
	}
	c.required(row, "clientNameOrReference", p.ClientNameOrReference)
	if c.required(row, "days", p.Days) && !positiveInteger(p.Days) {
		c.add(row, "days", "must be a whole number greater than 0")
	}
	if c.required(row, "amount", p.Amount) {
		amount := strings.TrimSpace(p.Amount)
		if !digitsBetween(amount, 1, 5) || strings.Trim(amount, "0") == "" {
			c.add(row, "amount", "must be 1-5 digits and greater than 0")
		}
	}
	if b := strings.TrimSpace(p.BalanceAmount); b != "" && !digitsBetween(b, 1, len(b)) {
		c.add(row, "balanceAmount", "must contain digits only")
	}
	if c.required(row, "typeOfPayment", p.TypeOfPayment) && !oneOf(p.TypeOfPayment, PaymentTypes, true) {
		c.add(row, "typeOfPayment", "must be one of "+strings.Join(PaymentTypes, ", "))
	}
	if c.required(row, "purpose", p.Purpose) && !oneOf(p.Purpose, PaymentPurposes, true) {
		c.add(row, "purpose", "must be one of "+strings.Join(PaymentPurposes, ", "))
	}
}

func validateWork(c *collector, row int, w WorkEntry) {
	c.required(row, "clientId", w.ClientID)
	c.required(row, "clientNameOrReference", w.ClientNameOrReference)
	if c.required(row, "days", w.Days) && !positiveInteger(w.Days) {
		c.add(row, "days", "must be a whole number greater than 0")
	}
	var from, to time.Time
	var fromOK, toOK bool
	if c.required(row, "fromDate", w.FromDate) {
		from, fromOK = parseDateField(c, row, "fromDate", w.FromDate)
	}
	if c.required(row, "toDate", w.ToDate) {
		to, toOK = parseDateField(c, row, "toDate", w.ToDate)
	}
	if fromOK && toOK && to.Before(from) {
		c.add(row, "toDate", "must be on or after fromDate")
	}
	c.required(row, "serviceType", w.ServiceType)
}

// ParseDate accepts YYYY-MM-DD or RFC3339 and returns the calendar date in UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if parsed, err := time.Parse("2006-01-02", value); err == nil {
		return parsed, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return dateOnly(parsed), nil
}

func parseDateField(c *collector, row int, field, value string) (time.Time, bool) {
	parsed, err := ParseDate(value)
	if err != nil {
		c.add(row, field, "must be a valid date in YYYY-MM-DD format")
		return time.Time{}, false
	}
	return parsed, true
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// within is inclusive at both ends.
func within(t, earliest, latest time.Time) bool {
	return !t.Before(earliest) && !t.After(latest)
}

func digitsExactly(value string, n int) bool {
	return len(value) == n && allDigits(value)
}

func digitsBetween(value string, minLen, maxLen int) bool {
	return len(value) >= minLen && len(value) <= maxLen && allDigits(value)
}

func allDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// positiveInteger accepts plain decimal digits with a non-zero value.
func positiveInteger(value string) bool {
	value = strings.TrimSpace(value)
	return allDigits(value) && strings.Trim(value, "0") != ""
}

func oneOf(value string, allowed []string, foldCase bool) bool {
	value = strings.TrimSpace(value)
	for _, candidate := range allowed {
		if value == candidate || (foldCase && strings.EqualFold(value, candidate)) {
			return true
		}
	}
	return false
}
