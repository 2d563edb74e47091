package records

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/d21d3q/wmbusd/internal/wire"
)

// ValueKind tells which value field of a DataRecord is populated.
type ValueKind uint8

const (
	KindNone ValueKind = iota
	KindInteger
	KindFloat
	KindDate
	KindString
	KindBCD
)

func (k ValueKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindDate:
		return "date"
	case KindString:
		return "string"
	case KindBCD:
		return "bcd"
	default:
		return "none"
	}
}

// fixedLength is the data length of each non-variable data field code.
var fixedLength = [16]int{0, 1, 2, 3, 4, 4, 6, 8, 0, 1, 2, 3, 4, -1, 6, 0}

// decodeValue reads the data field at b[i] and stores it in r.
func (r *DataRecord) decodeValue(b []byte, i int) (int, error) {
	if r.DataField == 0x0D {
		return r.decodeLVAR(b, i)
	}
	n := fixedLength[r.DataField&0x0F]
	if i+n > len(b) {
		return i, truncated(fmt.Sprintf("data field 0x%X needs %d octets", r.DataField, n))
	}
	p := b[i : i+n]
	r.Data = append([]byte(nil), p...)
	i += n

	switch r.DataField {
	case 0x00, 0x08:
		r.Kind = KindNone
	case 0x02:
		if r.date == dateTypeG {
			return i, r.setDate(p, wire.DecodeTypeG)
		}
		r.setInt(p)
	case 0x04:
		if r.date == dateTypeF {
			return i, r.setDate(p, wire.DecodeTypeF)
		}
		r.setInt(p)
	case 0x06:
		if r.date == dateTypeF {
			return i, r.setDate(p, wire.DecodeTypeI)
		}
		r.setInt(p)
	case 0x01, 0x03, 0x07:
		r.setInt(p)
	case 0x05:
		r.Kind = KindFloat
		r.Float = float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
	case 0x09, 0x0A, 0x0B, 0x0C, 0x0E:
		v, err := wire.DecodeBCD(p)
		if err != nil {
			return i, err
		}
		r.Kind = KindBCD
		r.BCD = v
	default:
		return i, fmt.Errorf("unsupported data field 0x%X", r.DataField)
	}
	return i, nil
}

func (r *DataRecord) setInt(p []byte) {
	r.Kind = KindInteger
	r.Int = signedLE(p)
}

// setDate decodes a calendar value. An all-zero field means "not set".
func (r *DataRecord) setDate(p []byte, decode func([]byte) (time.Time, error)) error {
	if allZero(p) {
		r.Kind = KindNone
		return nil
	}
	t, err := decode(p)
	if err != nil {
		return err
	}
	r.Kind = KindDate
	r.Time = t
	return nil
}

// decodeLVAR handles data field 0xD whose first octet selects both the
// length and the coding of the value.
func (r *DataRecord) decodeLVAR(b []byte, i int) (int, error) {
	if i >= len(b) {
		return i, truncated("LVAR")
	}
	lvar := b[i]
	i++
	var n int
	switch {
	case lvar < 0xC0:
		n = int(lvar)
	case lvar <= 0xC9:
		n = int(lvar - 0xC0)
	case lvar >= 0xD0 && lvar <= 0xD9:
		n = int(lvar - 0xD0)
	case lvar >= 0xE0 && lvar <= 0xEF:
		n = int(lvar - 0xE0)
	case lvar >= 0xF0 && lvar <= 0xFA:
		n = int(lvar - 0xF0)
	default:
		return i, fmt.Errorf("unsupported LVAR 0x%02X", lvar)
	}
	if i+n > len(b) {
		return i, truncated(fmt.Sprintf("LVAR 0x%02X needs %d octets", lvar, n))
	}
	p := b[i : i+n]
	r.Data = append([]byte{lvar}, p...)
	i += n

	switch {
	case lvar < 0xC0:
		r.Kind = KindString
		r.Text = reversedText(p)
	case lvar <= 0xD9:
		if n == 0 {
			r.Kind = KindNone
			return i, nil
		}
		v, err := wire.DecodeBCD(p)
		if err != nil {
			return i, err
		}
		if lvar >= 0xD0 && v.Value > 0 {
			v.Value = -v.Value
		}
		r.Kind = KindBCD
		r.BCD = v
	case lvar <= 0xEF:
		if n <= 8 {
			r.setInt(p)
			return i, nil
		}
		r.Kind = KindString
		r.Text = hex.EncodeToString(reversed(p))
	default:
		switch n {
		case 4:
			r.Kind = KindFloat
			r.Float = float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
		case 8:
			r.Kind = KindFloat
			r.Float = math.Float64frombits(binary.LittleEndian.Uint64(p))
		default:
			return i, fmt.Errorf("LVAR float of %d octets", n)
		}
	}
	return i, nil
}

// signedLE decodes a little-endian two's complement integer of up to 8 octets.
func signedLE(p []byte) int64 {
	if len(p) == 0 {
		return 0
	}
	var v uint64
	for k := len(p) - 1; k >= 0; k-- {
		v = v<<8 | uint64(p[k])
	}
	shift := 64 - 8*uint(len(p))
	return int64(v<<shift) >> shift
}

func allZero(p []byte) bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}

func reversed(p []byte) []byte {
	out := make([]byte, len(p))
	for k := range p {
		out[len(p)-1-k] = p[k]
	}
	return out
}
