package workflow

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MinReasonLength is the shortest cancel reason accepted, in characters.
const MinReasonLength = 3

// NormalizeReason returns reason in NFC form with surrounding space removed.
// Reasons shorter than MinReasonLength characters are rejected with
// CodeReasonRequired.
func NormalizeReason(reason string) (string, error) {
	normalized := strings.TrimSpace(norm.NFC.String(reason))
	if utf8.RuneCountInString(normalized) < MinReasonLength {
		return "", validation(CodeReasonRequired, "a cancel reason of at least 3 characters is required")
	}
	return normalized, nil
}
