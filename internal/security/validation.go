package security

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Input limits for inbound requests.
const (
	DefaultMaxMessageSize = 1 << 20
	DefaultMaxJSONDepth   = 32
	DefaultMaxChatRunes   = 4000
	MaxIdentifierLength   = 128
)

// Validation errors.
var (
	ErrMessageTooLarge   = errors.New("message exceeds maximum size")
	ErrJSONTooDeep       = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON       = errors.New("invalid JSON")
	ErrChatTooLong       = errors.New("chat message too long")
	ErrControlCharacters = errors.New("text contains control characters")
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// ValidateMessageSize rejects data longer than limit bytes
// (DefaultMaxMessageSize when limit <= 0).
func ValidateMessageSize(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxMessageSize
	}
	if n := len(data); n > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, n, limit)
	}
	return nil
}

// ValidateJSONDepth rejects documents whose object/array nesting exceeds
// limit (DefaultMaxJSONDepth when limit <= 0). It only scans brackets
// outside string literals; syntax errors are left to the decoder, except
// for unbalanced closing brackets.
func ValidateJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	depth := 0
	inString, escaped := false, false
	for _, b := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		case '}', ']':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unbalanced %q", ErrInvalidJSON, b)
			}
		}
	}
	return nil
}

// ValidateChatText checks a customer message: valid UTF-8, at most
// maxRunes runes (DefaultMaxChatRunes when maxRunes <= 0) and no control
// characters other than tab and line breaks.
func ValidateChatText(s string, maxRunes int) error {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxChatRunes
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: not valid UTF-8", ErrControlCharacters)
	}
	if n := utf8.RuneCountInString(s); n > maxRunes {
		return fmt.Errorf("%w: %d characters (max %d)", ErrChatTooLong, n, maxRunes)
	}
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' {
			continue
		}
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %U", ErrControlCharacters, r)
		}
	}
	return nil
}

// ValidateIdentifier checks a caller-supplied session, user or agent ID.
// Allowed: ASCII letters, digits and . _ : - up to MaxIdentifierLength.
func ValidateIdentifier(s string) error {
	if s == "" || len(s) > MaxIdentifierLength {
		return fmt.Errorf("%w: length must be 1..%d", ErrInvalidIdentifier, MaxIdentifierLength)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == ':', c == '-':
		default:
			return fmt.Errorf("%w: unexpected %q", ErrInvalidIdentifier, c)
		}
	}
	return nil
}
