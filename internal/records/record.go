package records

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/d21d3q/wmbusd/internal/wire"
)

// ErrNotNumeric is returned by ScaledValue for dates, text and empty values.
var ErrNotNumeric = errors.New("record value is not numeric")

// DataRecord is one decoded DIB/VIB/data triple of an application payload.
type DataRecord struct {
	DIB  []byte
	VIB  []byte
	Data []byte

	DataField     byte
	Function      Function
	StorageNumber uint64
	Tariff        uint32
	Subunit       uint32

	Description Description
	UserDefined string
	Unit        Unit
	Exponent    int

	Kind  ValueKind
	Int   int64
	Float float64
	Time  time.Time
	Text  string
	BCD   wire.BCD

	date dateCoding
}

// Decode reads one data record starting at b[i] and returns the index
// following it. Special function DIFs are left to the caller.
func Decode(b []byte, i int) (DataRecord, int, error) {
	start := i
	di, i, err := decodeDIB(b, i)
	if err != nil {
		return DataRecord{}, i, err
	}
	vibStart := i
	vinfo, i, err := decodeVIB(b, i)
	if err != nil {
		return DataRecord{}, i, err
	}
	rec := DataRecord{
		DIB:           append([]byte(nil), b[start:vibStart]...),
		VIB:           append([]byte(nil), b[vibStart:i]...),
		DataField:     di.dataField,
		Function:      di.function,
		StorageNumber: di.storage,
		Tariff:        di.tariff,
		Subunit:       di.subunit,
		Description:   vinfo.Description,
		UserDefined:   vinfo.UserDefined,
		Unit:          vinfo.Unit,
		Exponent:      vinfo.Exponent,
		date:          vinfo.date,
	}
	i, err = rec.decodeValue(b, i)
	if err != nil {
		return DataRecord{}, i, fmt.Errorf("record %X%X: %w", rec.DIB, rec.VIB, err)
	}
	return rec, i, nil
}

// DecodeValue decodes a fresh value at b[i] using r as the template for
// everything but the data, as compact frames require.
func (r DataRecord) DecodeValue(b []byte, i int) (DataRecord, int, error) {
	out := r
	out.Data = nil
	out.Kind = KindNone
	out.Int, out.Float, out.Time, out.Text, out.BCD = 0, 0, time.Time{}, "", wire.BCD{}
	i, err := out.decodeValue(b, i)
	if err != nil {
		return DataRecord{}, i, err
	}
	return out, i, nil
}

// Bytes returns the record as transmitted.
func (r DataRecord) Bytes() []byte {
	out := make([]byte, 0, len(r.DIB)+len(r.VIB)+len(r.Data))
	out = append(out, r.DIB...)
	out = append(out, r.VIB...)
	return append(out, r.Data...)
}

// ScaledValue applies the exponent to numeric values.
func (r DataRecord) ScaledValue() (float64, error) {
	var v float64
	switch r.Kind {
	case KindInteger:
		v = float64(r.Int)
	case KindFloat:
		v = r.Float
	case KindBCD:
		v = float64(r.BCD.Value)
	default:
		return 0, fmt.Errorf("%w: %s %s", ErrNotNumeric, r.Description, r.Kind)
	}
	// dividing keeps decimal fractions such as 3866e-3 exact
	if r.Exponent < 0 {
		return v / math.Pow10(-r.Exponent), nil
	}
	return v * math.Pow10(r.Exponent), nil
}

// Value returns the populated value field, or nil.
func (r DataRecord) Value() any {
	switch r.Kind {
	case KindInteger:
		return r.Int
	case KindFloat:
		return r.Float
	case KindDate:
		return r.Time
	case KindString:
		return r.Text
	case KindBCD:
		return r.BCD.Value
	default:
		return nil
	}
}

// FormatValue renders the value with its scale applied.
func (r DataRecord) FormatValue() string {
	switch r.Kind {
	case KindDate:
		if r.date == dateTypeG {
			return r.Time.Format("2006-01-02")
		}
		return r.Time.Format("2006-01-02T15:04:05")
	case KindString:
		return r.Text
	case KindNone:
		return ""
	}
	v, _ := r.ScaledValue()
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Name is a stable identifier such as "volume" or "energy_storage1_tariff2".
func (r DataRecord) Name() string {
	var sb strings.Builder
	if r.Description == DescUserDefined && r.UserDefined != "" {
		sb.WriteString(strings.ToLower(r.UserDefined))
	} else {
		sb.WriteString(r.Description.String())
	}
	if r.Function != FunctionInstantaneous {
		sb.WriteString("_" + r.Function.String())
	}
	if r.StorageNumber != 0 {
		fmt.Fprintf(&sb, "_storage%d", r.StorageNumber)
	}
	if r.Tariff != 0 {
		fmt.Fprintf(&sb, "_tariff%d", r.Tariff)
	}
	if r.Subunit != 0 {
		fmt.Fprintf(&sb, "_subunit%d", r.Subunit)
	}
	return sb.String()
}

func (r DataRecord) String() string {
	v := r.FormatValue()
	if u := r.Unit.Symbol(); u != "" && r.Kind != KindDate && r.Kind != KindString {
		v += " " + u
	}
	return fmt.Sprintf("%s=%s", r.Name(), v)
}
