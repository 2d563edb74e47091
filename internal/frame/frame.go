package frame

import (
	"fmt"

	"github.com/d21d3q/wmbusd/internal/address"
)

// minLinkLayer is L, C, the 8 address octets and the CI field.
const minLinkLayer = 11

// Telegram is a wireless link-layer frame with its block CRCs removed.
type Telegram struct {
	Raw     []byte
	Length  byte
	Control byte
	Address address.SecondaryAddress
	CI      byte
	// Payload is the application layer, starting at the CI field.
	Payload []byte
}

// ParseLinkLayer splits a frame into link-layer header and application
// payload. The L field must match the buffer length.
func ParseLinkLayer(raw []byte) (Telegram, error) {
	if len(raw) < minLinkLayer {
		return Telegram{}, fmt.Errorf("%w: telegram too short: %d bytes", ErrMalformedFrame, len(raw))
	}
	length := raw[0]
	if int(length)+1 != len(raw) {
		return Telegram{}, fmt.Errorf("%w: declared length %d does not match actual length %d", ErrMalformedFrame, length, len(raw))
	}
	addr, err := address.Decode(raw, 2, address.LinkLayer)
	if err != nil {
		return Telegram{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return Telegram{
		Raw:     raw,
		Length:  length,
		Control: raw[1],
		Address: addr,
		CI:      raw[10],
		Payload: raw[10:],
	}, nil
}

// MeterIDString returns the EN 13757 display format (MSB first).
func (t Telegram) MeterIDString() string {
	return t.Address.DeviceID()
}

// VariableDataStructure wraps the application payload for decoding.
func (t Telegram) VariableDataStructure() *VariableDataStructure {
	return newVariableDataStructure(t.Payload, t.Address, true)
}

var statusFlagDefs = []struct {
	mask  byte
	value byte
	key   string
}{
	{0x03, 0x01, "status_busy"},
	{0x03, 0x02, "status_error"},
	{0x03, 0x03, "status_alarm"},
	{0x04, 0x04, "status_power_low"},
	{0x08, 0x08, "status_permanent_error"},
	{0x10, 0x10, "status_temporary_error"},
	{0x20, 0x20, "status_manufacturer_1"},
	{0x40, 0x40, "status_manufacturer_2"},
	{0x80, 0x80, "status_manufacturer_3"},
}

// StatusFlags names the bits set in a transport layer status octet.
func StatusFlags(status byte) map[string]bool {
	flags := make(map[string]bool)
	for _, def := range statusFlagDefs {
		if status&def.mask == def.value {
			flags[def.key] = true
		}
	}
	return flags
}
