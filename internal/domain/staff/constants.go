package staff

import "staffdesk/internal/platform/recordstore"

type Status string

const (
	StatusOnDuty     Status = "OnDuty"
	StatusOffDuty    Status = "OffDuty"
	StatusResigned   Status = "Resigned"
	StatusAbsconder  Status = "Absconder"
	StatusTerminated Status = "Terminated"
)

var Statuses = []string{
	string(StatusOnDuty),
	string(StatusOffDuty),
	string(StatusResigned),
	string(StatusAbsconder),
	string(StatusTerminated),
}

// Location is the store subtree a record lives in. A record is in exactly one.
type Location string

const (
	LocationActive Location = "active"
	LocationExited Location = "exited"
)

const recordsRoot = "staff"

func (l Location) Valid() bool {
	return l == LocationActive || l == LocationExited
}

func (l Location) Other() Location {
	if l == LocationActive {
		return LocationExited
	}
	return LocationActive
}

func (l Location) Root() string {
	return recordstore.Join(recordsRoot, string(l))
}

func (l Location) Path(id string) string {
	return recordstore.Join(recordsRoot, string(l), id)
}

func ParseLocation(raw string) (Location, bool) {
	switch Location(raw) {
	case LocationActive, LocationExited:
		return Location(raw), true
	case "":
		return LocationActive, true
	}
	return "", false
}

// Section is one tab of the record editor and the unit of validation.
type Section string

const (
	SectionBasic    Section = "basic"
	SectionAddress  Section = "address"
	SectionPersonal Section = "personal"
	SectionPayment  Section = "payment"
	SectionWorking  Section = "working"
)

// Sections lists the editor tabs in display order.
var Sections = []Section{SectionBasic, SectionAddress, SectionPersonal, SectionPayment, SectionWorking}

func ParseSection(raw string) (Section, bool) {
	for _, s := range Sections {
		if string(s) == raw {
			return s, true
		}
	}
	return "", false
}

var (
	PaymentTypes    = []string{"cash", "online", "cheque"}
	PaymentPurposes = []string{"salary", "advance", "commission", "bonus"}
)

const (
	CollectionPayments    = "payments"
	CollectionWorkDetails = "workDetails"
)

const MaritalStatusMarried = "Married"
