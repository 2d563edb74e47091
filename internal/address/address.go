// Package address implements the 8-octet M-Bus secondary address: the
// manufacturer, device id, version and device type that identify a meter.
package address

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Length is the size of an encoded secondary address.
const Length = 8

// ErrMalformedAddress is returned when fewer than Length octets are available
// or an address component cannot be encoded.
var ErrMalformedAddress = errors.New("malformed secondary address")

// Order is the physical octet order an address was parsed from.
type Order uint8

const (
	// LinkLayer order: manufacturer (2), id (4), version, device type.
	LinkLayer Order = iota
	// LongHeader order: id (4), manufacturer (2), version, device type.
	LongHeader
)

func (o Order) String() string {
	if o == LongHeader {
		return "long-header"
	}
	return "link-layer"
}

// Key is the canonical (link-layer ordered) encoding, usable as a map key.
type Key [Length]byte

func (k Key) String() string { return strings.ToUpper(hex.EncodeToString(k[:])) }

// ParseKey decodes a 16 hex digit canonical address.
func ParseKey(s string) (Key, error) {
	var k Key
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return k, fmt.Errorf("%w: %v", ErrMalformedAddress, err)
	}
	if len(raw) != Length {
		return k, fmt.Errorf("%w: key has %d octets", ErrMalformedAddress, len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

// SecondaryAddress is an immutable device identity.
type SecondaryAddress struct {
	manufacturer uint16
	id           [4]byte
	version      byte
	deviceType   DeviceType
	order        Order
}

// Decode reads an address from b at offset using the given octet order.
func Decode(b []byte, offset int, order Order) (SecondaryAddress, error) {
	if offset < 0 || len(b)-offset < Length {
		return SecondaryAddress{}, fmt.Errorf("%w: need %d octets at offset %d, have %d", ErrMalformedAddress, Length, offset, len(b)-offset)
	}
	p := b[offset : offset+Length]
	a := SecondaryAddress{order: order, version: p[6], deviceType: DeviceType(p[7])}
	switch order {
	case LongHeader:
		copy(a.id[:], p[0:4])
		a.manufacturer = binary.LittleEndian.Uint16(p[4:6])
	default:
		a.manufacturer = binary.LittleEndian.Uint16(p[0:2])
		copy(a.id[:], p[2:6])
	}
	return a, nil
}

// New builds an address from its parts. deviceID is the decimal number
// printed on the meter and must fit into 8 BCD digits.
func New(manufacturerID string, deviceID uint32, version byte, deviceType DeviceType, order Order) (SecondaryAddress, error) {
	code, err := EncodeManufacturerID(manufacturerID)
	if err != nil {
		return SecondaryAddress{}, err
	}
	if deviceID > 99999999 {
		return SecondaryAddress{}, fmt.Errorf("%w: device id %d exceeds 8 digits", ErrMalformedAddress, deviceID)
	}
	a := SecondaryAddress{manufacturer: code, version: version, deviceType: deviceType, order: order}
	for i := 0; i < 4; i++ {
		lo := deviceID % 10
		deviceID /= 10
		hi := deviceID % 10
		deviceID /= 10
		a.id[i] = byte(hi<<4 | lo)
	}
	return a, nil
}

// Bytes re-encodes the address in the order it was parsed with.
func (a SecondaryAddress) Bytes() []byte {
	out := make([]byte, Length)
	switch a.order {
	case LongHeader:
		copy(out[0:4], a.id[:])
		binary.LittleEndian.PutUint16(out[4:6], a.manufacturer)
	default:
		binary.LittleEndian.PutUint16(out[0:2], a.manufacturer)
		copy(out[2:6], a.id[:])
	}
	out[6] = a.version
	out[7] = byte(a.deviceType)
	return out
}

// Key returns the canonical link-layer encoding.
func (a SecondaryAddress) Key() Key {
	var k Key
	binary.LittleEndian.PutUint16(k[0:2], a.manufacturer)
	copy(k[2:6], a.id[:])
	k[6] = a.version
	k[7] = byte(a.deviceType)
	return k
}

// Equal compares canonical encodings; the parse order is ignored.
func (a SecondaryAddress) Equal(b SecondaryAddress) bool { return a.Key() == b.Key() }

// Compare orders addresses by canonical encoding.
func (a SecondaryAddress) Compare(b SecondaryAddress) int {
	ka, kb := a.Key(), b.Key()
	return bytes.Compare(ka[:], kb[:])
}

// WithOrder returns a copy that encodes with order o.
func (a SecondaryAddress) WithOrder(o Order) SecondaryAddress {
	a.order = o
	return a
}

func (a SecondaryAddress) Order() Order             { return a.order }
func (a SecondaryAddress) ManufacturerCode() uint16 { return a.manufacturer }
func (a SecondaryAddress) ManufacturerID() string   { return DecodeManufacturerID(a.manufacturer) }
func (a SecondaryAddress) Version() byte            { return a.version }
func (a SecondaryAddress) DeviceType() DeviceType   { return a.deviceType }

// IDBytes returns the raw little-endian BCD id octets.
func (a SecondaryAddress) IDBytes() [4]byte { return a.id }

// DeviceID returns the EN 13757 display format (MSB first). Non-BCD ids are
// shown as hex, which is what the nibbles look like anyway.
func (a SecondaryAddress) DeviceID() string {
	return fmt.Sprintf("%02X%02X%02X%02X", a.id[3], a.id[2], a.id[1], a.id[0])
}

func (a SecondaryAddress) String() string {
	return fmt.Sprintf("%s-%s-%02X-%02X", a.ManufacturerID(), a.DeviceID(), a.version, byte(a.deviceType))
}

// DecodeManufacturerID unpacks three 5-bit letters from the little-endian
// manufacturer word, most significant letter first.
func DecodeManufacturerID(code uint16) string {
	c0 := byte(code>>10&0x1F) + 64
	c1 := byte(code>>5&0x1F) + 64
	c2 := byte(code&0x1F) + 64
	return string([]byte{c0, c1, c2})
}

// EncodeManufacturerID packs a three letter manufacturer id.
func EncodeManufacturerID(id string) (uint16, error) {
	id = strings.ToUpper(id)
	if len(id) != 3 {
		return 0, fmt.Errorf("%w: manufacturer id %q must have 3 letters", ErrMalformedAddress, id)
	}
	var code uint16
	for i := 0; i < 3; i++ {
		c := id[i]
		if c < 64 || c > 95 {
			return 0, fmt.Errorf("%w: manufacturer id %q has invalid letter %q", ErrMalformedAddress, id, c)
		}
		code = code<<5 | uint16(c-64)
	}
	return code, nil
}
