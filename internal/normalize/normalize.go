// Package normalize canonicalizes contact identifiers used for deduplication.
package normalize

import (
	"strings"
	"unicode"
)

// Phone reduces a phone number to its canonical digit string.
// Formatting is stripped; Russian numbers are brought to the 7XXXXXXXXXX form
// (trunk prefix 8 replaced, bare 10-digit mobile numbers prefixed). An empty
// result means the input carried no usable phone.
func Phone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 11 && digits[0] == '8':
		return "7" + digits[1:]
	case len(digits) == 10 && digits[0] == '9':
		return "7" + digits
	}
	return digits
}

// Email lowercases and trims an address. Strings that cannot be an address
// normalize to "".
func Email(s string) string {
	e := strings.ToLower(strings.TrimSpace(s))
	at := strings.LastIndex(e, "@")
	if at <= 0 || at == len(e)-1 || strings.ContainsAny(e, " \t") {
		return ""
	}
	return e
}

// Text trims a free-form value; blank strings become nil.
func Text(s string) *string {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	return &t
}

// Ptr returns nil for "" so optional identifiers are stored as NULL.
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
