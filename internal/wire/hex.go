package wire

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// ParseHex decodes a hex telegram, tolerating whitespace, '|' and '_'
// separators and an optional 0x prefix.
func ParseHex(input string) ([]byte, error) {
	clean := StripSeparators(input)
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		clean = clean[2:]
	}
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("hex telegram must contain an even number of digits, got %d", len(clean))
	}
	decoded := make([]byte, len(clean)/2)
	if _, err := hex.Decode(decoded, []byte(clean)); err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return decoded, nil
}

// Hex renders b as upper-case hex without separators.
func Hex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// StripSeparators drops whitespace and the '|' / '_' group separators.
func StripSeparators(s string) string {
	builder := strings.Builder{}
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || r == '|' || r == '_' {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
