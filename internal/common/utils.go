package common

// IsDigits returns true if s is non-empty and consists only of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
