package frame

import (
	"fmt"

	"github.com/d21d3q/wmbusd/internal/address"
)

const (
	wiredStart = 0x68
	wiredStop  = 0x16
)

// WiredFrame is a wired M-Bus long frame (68 L L 68 C A CI ... CS 16).
type WiredFrame struct {
	Control        byte
	PrimaryAddress byte
	CI             byte
	// Payload is the application layer, starting at the CI field.
	Payload []byte
}

// ParseWiredFrame validates framing and checksum of a long frame.
func ParseWiredFrame(raw []byte) (WiredFrame, error) {
	if len(raw) < 9 {
		return WiredFrame{}, fmt.Errorf("%w: wired frame too short: %d bytes", ErrMalformedFrame, len(raw))
	}
	if raw[0] != wiredStart || raw[3] != wiredStart || raw[1] != raw[2] {
		return WiredFrame{}, fmt.Errorf("%w: bad long frame header % X", ErrMalformedFrame, raw[:4])
	}
	l := int(raw[1])
	if l < 3 || len(raw) != l+6 {
		return WiredFrame{}, fmt.Errorf("%w: declared length %d does not match actual length %d", ErrMalformedFrame, l, len(raw))
	}
	if raw[len(raw)-1] != wiredStop {
		return WiredFrame{}, fmt.Errorf("%w: missing stop octet", ErrMalformedFrame)
	}
	var sum byte
	for _, b := range raw[4 : 4+l] {
		sum += b
	}
	if cs := raw[4+l]; cs != sum {
		return WiredFrame{}, fmt.Errorf("%w: checksum %02X, computed %02X", ErrMalformedFrame, cs, sum)
	}
	return WiredFrame{
		Control:        raw[4],
		PrimaryAddress: raw[5],
		CI:             raw[6],
		Payload:        raw[6 : 4+l],
	}, nil
}

// VariableDataStructure wraps the payload; wired frames carry no
// link-layer secondary address.
func (w WiredFrame) VariableDataStructure() *VariableDataStructure {
	return newVariableDataStructure(w.Payload, address.SecondaryAddress{}, false)
}
