package options

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/d21d3q/wmbusd/internal/crypto"
)

type contextKey struct{}

// WithKeyStore attaches the key store used to decrypt telegrams.
func WithKeyStore(ctx context.Context, ks crypto.KeyStore) context.Context {
	if ks == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, ks)
}

// KeyStore retrieves the key store from context if present.
func KeyStore(ctx context.Context) crypto.KeyStore {
	if v := ctx.Value(contextKey{}); v != nil {
		if ks, ok := v.(crypto.KeyStore); ok {
			return ks
		}
	}
	return nil
}

// ParseKeyHex validates and decodes a 32-hex-digit AES key string. An empty
// input yields a nil key.
func ParseKeyHex(input string) ([]byte, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	clean := stripWhitespace(input)
	if len(clean) != 2*crypto.KeySize {
		return nil, fmt.Errorf("AES key must be 32 hex digits (16 bytes), got %d", len(clean))
	}
	dst := make([]byte, crypto.KeySize)
	if _, err := hex.Decode(dst, []byte(clean)); err != nil {
		return nil, fmt.Errorf("invalid AES key hex: %w", err)
	}
	return dst, nil
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
