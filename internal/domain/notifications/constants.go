package notifications

const (
	TypeStaffRemoved       = "staff_removed"
	TypeStaffReturned      = "staff_returned"
	TypeDuplicatesDetected = "duplicates_detected"
)

// FeedPath holds operator-facing notifications keyed by push key.
const FeedPath = "notifications"
