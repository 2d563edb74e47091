package records

import (
	"errors"
	"fmt"
)

// ErrTruncated reports a record that runs past the end of the buffer.
var ErrTruncated = errors.New("data record truncated")

// ErrSpecialFunction is returned when Decode is handed a special function
// DIF (xF); the caller owns fill octets and manufacturer data.
var ErrSpecialFunction = errors.New("special function DIF is not a data record")

// maxDIFE bounds the DIF extension chain (EN 13757-3 allows ten).
const maxDIFE = 10

// Function is the DIF function field.
type Function uint8

const (
	FunctionInstantaneous Function = iota
	FunctionMaximum
	FunctionMinimum
	FunctionError
)

func (f Function) String() string {
	switch f {
	case FunctionInstantaneous:
		return "inst"
	case FunctionMaximum:
		return "max"
	case FunctionMinimum:
		return "min"
	default:
		return "err"
	}
}

type dataInfo struct {
	dataField byte
	function  Function
	storage   uint64
	tariff    uint32
	subunit   uint32
}

// decodeDIB decodes the data information block at b[i] and returns the
// index of the VIF.
func decodeDIB(b []byte, i int) (dataInfo, int, error) {
	if i >= len(b) {
		return dataInfo{}, i, truncated("DIF")
	}
	dif := b[i]
	i++
	if dif&0x0F == 0x0F {
		return dataInfo{}, i, fmt.Errorf("%w: 0x%02X", ErrSpecialFunction, dif)
	}
	info := dataInfo{
		dataField: dif & 0x0F,
		function:  Function((dif >> 4) & 0x03),
		storage:   uint64(dif>>6) & 0x01,
	}
	ext := dif&0x80 != 0
	for n := 0; ext; n++ {
		if n == maxDIFE {
			return dataInfo{}, i, fmt.Errorf("DIFE chain exceeds %d octets", maxDIFE)
		}
		if i >= len(b) {
			return dataInfo{}, i, truncated("DIFE")
		}
		dife := b[i]
		i++
		info.storage |= uint64(dife&0x0F) << (1 + 4*n)
		info.tariff |= uint32((dife>>4)&0x03) << (2 * n)
		info.subunit |= uint32((dife>>6)&0x01) << n
		ext = dife&0x80 != 0
	}
	return info, i, nil
}

func truncated(what string) error {
	return fmt.Errorf("%w: %s", ErrTruncated, what)
}
