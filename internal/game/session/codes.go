package session

// Result codes surfaced to the presentation layer. Rejections are values,
// never faults, so the caller can always render a coherent message.
const (
	// Request validation.
	ErrBadRequest = "E_BAD_REQUEST"

	// Rule layer.
	ErrIneligible = "E_INELIGIBLE"
	ErrNoResource = "E_NO_RESOURCE"
	ErrNoActivity = "E_NO_ACTIVITY"

	// Durable state diverged from memory; retry policy belongs to the
	// gateway, not the core.
	ErrPersistence = "E_PERSISTENCE"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:  {},
	ErrIneligible:  {},
	ErrNoResource:  {},
	ErrNoActivity:  {},
	ErrPersistence: {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
