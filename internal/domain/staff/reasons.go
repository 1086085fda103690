package staff

import "strings"

var (
	RemovalReasons = []string{"Resign", "Termination", "Absconder"}
	ReturnReasons  = []string{"Re-Join", "Return", "Good attitude", "One more chance", "Recommendation"}
)

// legacyReasons maps misspellings found in older audit data to the canonical form.
var legacyReasons = map[string]string{
	"good attutude": "Good attitude",
}

func reasonsFor(kind EventType) []string {
	if kind == EventRemoval {
		return RemovalReasons
	}
	return ReturnReasons
}

// CanonicalReason matches raw against the taxonomy for kind, ignoring case and
// surrounding space, and returns the canonical spelling.
func CanonicalReason(kind EventType, raw string) (string, bool) {
	needle := strings.TrimSpace(raw)
	if needle == "" {
		return "", false
	}
	for _, reason := range reasonsFor(kind) {
		if strings.EqualFold(reason, needle) {
			return reason, true
		}
	}
	return "", false
}

// NormalizeStoredReason repairs reasons read back from the store.
func NormalizeStoredReason(raw string) string {
	if fixed, ok := legacyReasons[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return fixed
	}
	return raw
}
