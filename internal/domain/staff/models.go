package staff

import (
	"encoding/json"
	"strings"
)

type Address struct {
	Line1   string `json:"line1,omitempty"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Pincode string `json:"pincode,omitempty"`
}

type EmergencyContact struct {
	Name     string `json:"name,omitempty"`
	Relation string `json:"relation,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

type Bank struct {
	AccountName   string `json:"accountName,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
	BankName      string `json:"bankName,omitempty"`
	Branch        string `json:"branch,omitempty"`
}

// Record is one staff member's profile as stored under staff/{location}/{id}.
// ID is the store key and is never written inside the node.
type Record struct {
	ID         string `json:"id,omitempty"`
	EmployeeID string `json:"employeeId,omitempty"`
	IDNo       string `json:"idNo,omitempty"`
	Status     Status `json:"status,omitempty"`

	FirstName         string `json:"firstName,omitempty"`
	LastName          string `json:"lastName,omitempty"`
	FatherName        string `json:"fatherName,omitempty"`
	Gender            string `json:"gender,omitempty"`
	DateOfBirth       string `json:"dateOfBirth,omitempty"`
	MobileNo          string `json:"mobileNo,omitempty"`
	AlternateMobileNo string `json:"alternateMobileNo,omitempty"`
	Email             string `json:"email,omitempty"`
	AadhaarNo         string `json:"aadhaarNo,omitempty"`
	Designation       string `json:"designation,omitempty"`
	DateOfJoining     string `json:"dateOfJoining,omitempty"`

	PermanentAddress Address `json:"permanentAddress,omitzero"`
	PresentAddress   Address `json:"presentAddress,omitzero"`

	MaritalStatus string `json:"maritalStatus,omitempty"`
	MarriageDate  string `json:"marriageDate,omitempty"`
	BloodGroup    string `json:"bloodGroup,omitempty"`
	Religion      string `json:"religion,omitempty"`

	Skills           string           `json:"skills,omitempty"`
	Health           string           `json:"health,omitempty"`
	EmergencyContact EmergencyContact `json:"emergencyContact,omitzero"`
	Bank             Bank             `json:"bank,omitzero"`
	Salary           string           `json:"salary,omitempty"`

	Payments    []PaymentEntry `json:"payments,omitempty"`
	WorkDetails []WorkEntry    `json:"workDetails,omitempty"`

	LifecycleAudit map[string]LifecycleEvent `json:"lifecycleAudit,omitempty"`
	LastReturn     *TransitionInfo           `json:"lastReturn,omitempty"`
	LastRemoval    *TransitionInfo           `json:"lastRemoval,omitempty"`

	// Extra holds top-level string members with no typed field. They are
	// read and written flat, next to the typed ones.
	Extra map[string]string `json:"-"`
	// opaque holds the other untyped members exactly as stored.
	opaque map[string]json.RawMessage

	UpdatedAt string `json:"updatedAt,omitempty"`
	UpdatedBy string `json:"updatedBy,omitempty"`
}

func (r Record) FullName() string {
	switch {
	case r.FirstName == "":
		return r.LastName
	case r.LastName == "":
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}

// PaymentEntry is one row of the payment ledger. Locked is derived on load and
// never persisted.
type PaymentEntry struct {
	Date                  string `json:"date,omitempty"`
	ClientNameOrReference string `json:"clientNameOrReference,omitempty"`
	Days                  string `json:"days,omitempty"`
	Amount                string `json:"amount,omitempty"`
	BalanceAmount         string `json:"balanceAmount,omitempty"`
	TypeOfPayment         string `json:"typeOfPayment,omitempty"`
	Purpose               string `json:"purpose,omitempty"`
	ReceiptNo             string `json:"receiptNo,omitempty"`
	BookNo                string `json:"bookNo,omitempty"`
	Remarks               string `json:"remarks,omitempty"`
	Locked                bool   `json:"locked,omitempty"`
}

// WorkEntry is one work assignment row; same lock rules as PaymentEntry.
type WorkEntry struct {
	ClientID              string `json:"clientId,omitempty"`
	ClientNameOrReference string `json:"clientNameOrReference,omitempty"`
	Location              string `json:"location,omitempty"`
	Days                  string `json:"days,omitempty"`
	FromDate              string `json:"fromDate,omitempty"`
	ToDate                string `json:"toDate,omitempty"`
	ServiceType           string `json:"serviceType,omitempty"`
	Remarks               string `json:"remarks,omitempty"`
	Locked                bool   `json:"locked,omitempty"`
}

type EventType string

const (
	EventRemoval EventType = "Removal"
	EventReturn  EventType = "Return"
)

// ParseEventType matches raw case-insensitively.
func ParseEventType(raw string) (EventType, bool) {
	for _, t := range []EventType{EventRemoval, EventReturn} {
		if strings.EqualFold(string(t), strings.TrimSpace(raw)) {
			return t, true
		}
	}
	return "", false
}

type ActorRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Role        string `json:"role,omitempty"`
}

// LifecycleEvent is appended once per transition and never rewritten.
type LifecycleEvent struct {
	Type       EventType `json:"type"`
	ReasonType string    `json:"reasonType"`
	Comment    string    `json:"comment"`
	Actor      ActorRef  `json:"actor"`
	Timestamp  string    `json:"timestamp"`
}

// KeyedEvent is a LifecycleEvent together with its push key.
type KeyedEvent struct {
	Key string `json:"key"`
	LifecycleEvent
}

// TransitionInfo is the denormalised copy of the latest removal or return.
type TransitionInfo struct {
	EventKey   string `json:"eventKey"`
	ReasonType string `json:"reasonType"`
	Comment    string `json:"comment"`
	By         string `json:"by"`
	At         string `json:"at"`
}

// Summary is the list view of a record.
type Summary struct {
	ID          string          `json:"id"`
	Location    Location        `json:"location"`
	EmployeeID  string          `json:"employeeId,omitempty"`
	IDNo        string          `json:"idNo,omitempty"`
	Name        string          `json:"name"`
	Status      Status          `json:"status,omitempty"`
	Designation string          `json:"designation,omitempty"`
	MobileNo    string          `json:"mobileNo,omitempty"`
	LastReturn  *TransitionInfo `json:"lastReturn,omitempty"`
	LastRemoval *TransitionInfo `json:"lastRemoval,omitempty"`
}

// View is a record opened for editing.
type View struct {
	Record          Record   `json:"record"`
	Location        Location `json:"location"`
	SensitiveMasked bool     `json:"sensitiveMasked"`
}

type SaveResult struct {
	View
	Violations []LockViolation `json:"violations,omitempty"`
}

// Transition describes a committed removal or return.
type Transition struct {
	StaffID  string         `json:"staffId"`
	EventKey string         `json:"eventKey"`
	Event    LifecycleEvent `json:"event"`
	From     Location       `json:"from"`
	To       Location       `json:"to"`
	Record   Record         `json:"-"`
}
