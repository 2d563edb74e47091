package wire

import (
	"fmt"
	"strconv"
)

// BCD is a decoded packed binary-coded decimal number.
type BCD struct {
	Value  int64
	Digits int
}

// DecodeBCD converts a BCD payload (little endian nibble order) to a number.
// A 0xF in the most significant nibble marks a negative value, as EN 13757-3
// prescribes for data field types 9..E.
func DecodeBCD(b []byte) (BCD, error) {
	if len(b) == 0 {
		return BCD{}, fmt.Errorf("empty BCD payload")
	}
	if len(b) > 9 {
		return BCD{}, fmt.Errorf("BCD payload of %d bytes overflows int64", len(b))
	}
	var value int64
	multiplier := int64(1)
	negative := false
	for i, by := range b {
		low := int64(by & 0x0F)
		high := int64((by >> 4) & 0x0F)
		if i == len(b)-1 && high == 0x0F {
			negative = true
			high = 0
		}
		if low > 9 || high > 9 {
			return BCD{}, fmt.Errorf("invalid BCD byte: 0x%02X", by)
		}
		value += low * multiplier
		multiplier *= 10
		value += high * multiplier
		multiplier *= 10
	}
	if negative {
		value = -value
	}
	return BCD{Value: value, Digits: len(b) * 2}, nil
}

// String renders the number zero-padded to its digit count.
func (b BCD) String() string {
	if b.Value < 0 {
		return "-" + pad(strconv.FormatInt(-b.Value, 10), b.Digits-1)
	}
	return pad(strconv.FormatInt(b.Value, 10), b.Digits)
}

func pad(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}
