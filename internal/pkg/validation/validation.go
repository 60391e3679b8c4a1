package validation

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxMessageLength caps a market update body.
const MaxMessageLength = 5000

// ParseID parses a path or query identifier. Empty and malformed ids are rejected.
func ParseID(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// MissingField returns the first field whose trimmed value is empty, in order.
func MissingField(fields [][2]string) string {
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			return f[0]
		}
	}
	return ""
}

func IsValidMessage(message string) bool {
	message = strings.TrimSpace(message)
	return message != "" && utf8.RuneCountInString(message) <= MaxMessageLength
}
