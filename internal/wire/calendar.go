package wire

import (
	"fmt"
	"time"
)

// DecodeTypeG decodes the two-byte compact date (EN 13757-3 type G).
func DecodeTypeG(b []byte) (time.Time, error) {
	if len(b) != 2 {
		return time.Time{}, fmt.Errorf("type G date requires 2 bytes, got %d", len(b))
	}
	day := int(b[0] & 0x1F)
	month := int(b[1] & 0x0F)
	year := 2000 + splitYear(b[0], b[1])
	if day == 0 || day > 31 || month == 0 || month > 12 {
		return time.Time{}, fmt.Errorf("invalid type G date encoding: %02X%02X", b[0], b[1])
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}

// DecodeTypeF decodes the four-byte Type F timestamp used by many
// Wireless M-Bus meters.
func DecodeTypeF(b []byte) (time.Time, error) {
	if len(b) != 4 {
		return time.Time{}, fmt.Errorf("type F datetime requires 4 bytes, got %d", len(b))
	}
	minute := int(b[0] & 0x3F)
	hour := int(b[1] & 0x1F)
	day := int(b[2] & 0x1F)
	month := int(b[3] & 0x0F)
	year := 2000 + splitYear(b[2], b[3])
	if minute > 59 || hour > 23 || day == 0 || day > 31 || month == 0 || month > 12 {
		return time.Time{}, fmt.Errorf("invalid type F datetime encoding: %02X%02X%02X%02X", b[0], b[1], b[2], b[3])
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC), nil
}

// DecodeTypeI decodes the six-byte date and time with seconds (type I).
func DecodeTypeI(b []byte) (time.Time, error) {
	if len(b) != 6 {
		return time.Time{}, fmt.Errorf("type I datetime requires 6 bytes, got %d", len(b))
	}
	second := int(b[0] & 0x3F)
	minute := int(b[1] & 0x3F)
	hour := int(b[2] & 0x1F)
	day := int(b[3] & 0x1F)
	month := int(b[4] & 0x0F)
	year := 2000 + splitYear(b[3], b[4])
	if second > 59 || minute > 59 || hour > 23 || day == 0 || day > 31 || month == 0 || month > 12 {
		return time.Time{}, fmt.Errorf("invalid type I datetime encoding: %X", b)
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}

// splitYear joins the year bits spread over the day octet (bits 5-7, low
// part) and the month octet (bits 4-7, high part).
func splitYear(dayOctet, monthOctet byte) int {
	return int((dayOctet&0xE0)>>5) | int((monthOctet&0xF0)>>1)
}

// EncodeTypeG is the inverse of DecodeTypeG for years 2000..2127.
func EncodeTypeG(t time.Time) [2]byte {
	y := t.Year() - 2000
	return [2]byte{
		byte(t.Day()&0x1F) | byte((y&0x07)<<5),
		byte(int(t.Month())&0x0F) | byte((y&0x78)<<1),
	}
}
