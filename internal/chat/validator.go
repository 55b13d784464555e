package chat

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is counted in characters (code points), not bytes.
const MaxMessageLength = 4000

// ValidateMessage rejects blank input and input over MaxMessageLength. There
// is deliberately no content filtering.
func ValidateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}
