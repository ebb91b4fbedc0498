package domain

import "strings"

// Intent is the two-class routing decision made at pipeline entry.
type Intent string

const (
	IntentInformation    Intent = "information"
	IntentLocationSearch Intent = "location_search"
)

// ParseIntent maps a raw classifier label onto an Intent. The second
// return value reports whether the label was recognized; callers default
// to IntentInformation when it was not.
func ParseIntent(label string) (Intent, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case string(IntentInformation):
		return IntentInformation, true
	case "location", string(IntentLocationSearch):
		return IntentLocationSearch, true
	default:
		return IntentInformation, false
	}
}
