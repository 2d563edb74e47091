package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/d21d3q/wmbusd/internal/address"
	"github.com/d21d3q/wmbusd/internal/crypto"
	"github.com/d21d3q/wmbusd/internal/records"
	"github.com/d21d3q/wmbusd/internal/wire"
)

const (
	ciLongHeader  = 0x72
	ciNoHeader    = 0x78
	ciCompact     = 0x79
	ciShortHeader = 0x7A
	ciELLShort    = 0x8C
	ciELLLong     = 0x8D

	fillOctet = 0x2F
)

// IsManufacturerSpecificCI reports CI values reserved for vendor protocols.
func IsManufacturerSpecificCI(ci byte) bool {
	return ci >= 0xA0 && ci <= 0xB7
}

// DecodeState tracks the at-most-once decode of a VariableDataStructure.
type DecodeState uint8

const (
	StateUndecoded DecodeState = iota
	StateDecoding
	StateDecoded
	StateFailed
)

func (s DecodeState) String() string {
	switch s {
	case StateDecoding:
		return "decoding"
	case StateDecoded:
		return "decoded"
	case StateFailed:
		return "failed"
	default:
		return "undecoded"
	}
}

// ELL holds the extended link layer fields (CI 0x8C / 0x8D).
type ELL struct {
	CommunicationControl byte
	AccessNumber         byte
	SessionNumber        uint32
	Long                 bool
}

// Decoder carries everything decoding needs beyond the frame itself.
type Decoder struct {
	Keys    crypto.KeyStore
	Compact *CompactCache
	// TrustELLPlainCRC treats a long ELL payload whose CRC verifies in the
	// clear as plaintext even when the session number announces encryption.
	TrustELLPlainCRC bool
	Log              logrus.FieldLogger
}

func NewDecoder(keys crypto.KeyStore) *Decoder {
	return &Decoder{
		Keys:             keys,
		Compact:          NewCompactCache(DefaultCompactCacheSize),
		TrustELLPlainCRC: true,
		Log:              logrus.StandardLogger(),
	}
}

// VariableDataStructure is the application layer of a telegram. Decode
// fills the exported fields once; later calls return the stored outcome.
type VariableDataStructure struct {
	mu      sync.Mutex
	raw     []byte
	link    address.SecondaryAddress
	hasLink bool
	state   DecodeState
	err     error

	CI              byte
	AccessNumber    byte
	Status          byte
	Config          uint16
	EncryptionMode  EncryptionMode
	EncryptedBlocks int
	LongHeader      *address.SecondaryAddress
	ELL             *ELL
	Compact         bool

	Records           []records.DataRecord
	ManufacturerData  []byte
	MoreRecordsFollow bool
}

func newVariableDataStructure(payload []byte, link address.SecondaryAddress, hasLink bool) *VariableDataStructure {
	return &VariableDataStructure{raw: payload, link: link, hasLink: hasLink}
}

// NewVariableDataStructure wraps an application payload starting at the CI
// field, received from the given link-layer address.
func NewVariableDataStructure(payload []byte, link address.SecondaryAddress) *VariableDataStructure {
	return newVariableDataStructure(payload, link, true)
}

func (v *VariableDataStructure) State() DecodeState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Address is the meter identity: the long header address when present,
// otherwise the link-layer address.
func (v *VariableDataStructure) Address() address.SecondaryAddress {
	if v.LongHeader != nil {
		return *v.LongHeader
	}
	return v.link
}

// Decode decodes the structure. It either succeeds completely or leaves no
// records behind.
func (v *VariableDataStructure) Decode(d *Decoder) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch v.state {
	case StateDecoded:
		return nil
	case StateFailed:
		return v.err
	}
	if d == nil {
		d = &Decoder{}
	}
	v.state = StateDecoding
	if err := v.decode(d); err != nil {
		v.Records, v.ManufacturerData, v.MoreRecordsFollow = nil, nil, false
		v.state, v.err = StateFailed, err
		if errors.Is(err, crypto.ErrDecryptionFailed) && d.Log != nil {
			d.Log.WithError(err).WithFields(logrus.Fields{
				"device_id":    v.Address().DeviceID(),
				"manufacturer": v.Address().ManufacturerID(),
				"ci":           fmt.Sprintf("0x%02X", v.CI),
			}).Warn("telegram decryption failed")
		}
		return err
	}
	v.state = StateDecoded
	if !v.Compact {
		d.Compact.Put(v.cacheKey(), v.Records)
	}
	return nil
}

func (v *VariableDataStructure) decode(d *Decoder) error {
	if len(v.raw) == 0 {
		return fmt.Errorf("%w: empty application payload", ErrMalformedFrame)
	}
	v.CI = v.raw[0]
	return v.decodeCI(d, v.raw[0], v.raw[1:], false)
}

func (v *VariableDataStructure) decodeCI(d *Decoder, ci byte, b []byte, inner bool) error {
	switch {
	case ci == ciLongHeader:
		return v.decodeLongHeader(d, b)
	case ci == ciNoHeader:
		v.EncryptionMode = EncryptionNone
		return v.decodeRecords(b)
	case ci == ciShortHeader:
		return v.decodeShortHeader(d, b)
	case ci == ciCompact:
		return v.decodeCompact(d, b)
	case (ci == ciELLShort || ci == ciELLLong) && inner:
		return fmt.Errorf("%w: nested extended link layer", ErrMalformedFrame)
	case ci == ciELLShort:
		return v.decodeELLShort(d, b)
	case ci == ciELLLong:
		return v.decodeELLLong(d, b)
	case IsManufacturerSpecificCI(ci):
		return fmt.Errorf("%w: 0x%02X", ErrManufacturerSpecific, ci)
	default:
		return fmt.Errorf("%w: 0x%02X", ErrUnsupportedCI, ci)
	}
}

// decodeLongHeader handles CI 0x72: address (long header order), access
// number, status and configuration.
func (v *VariableDataStructure) decodeLongHeader(d *Decoder, b []byte) error {
	if len(b) < 12 {
		return fmt.Errorf("%w: long header truncated", ErrMalformedFrame)
	}
	addr, err := address.Decode(b, 0, address.LongHeader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	v.LongHeader = &addr
	v.readTPL(b[8:12])
	body, err := v.decryptTPL(d, b[12:])
	if err != nil {
		return err
	}
	return v.decodeRecords(body)
}

// decodeShortHeader handles CI 0x7A: access number, status, configuration.
func (v *VariableDataStructure) decodeShortHeader(d *Decoder, b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("%w: short header truncated", ErrMalformedFrame)
	}
	v.readTPL(b[0:4])
	body, err := v.decryptTPL(d, b[4:])
	if err != nil {
		return err
	}
	return v.decodeRecords(body)
}

func (v *VariableDataStructure) readTPL(h []byte) {
	v.AccessNumber = h[0]
	v.Status = h[1]
	v.Config = binary.LittleEndian.Uint16(h[2:4])
	v.EncryptedBlocks = int(h[2] >> 4)
	v.EncryptionMode = EncryptionMode(h[3] & 0x0F)
}

func (v *VariableDataStructure) decryptTPL(d *Decoder, body []byte) ([]byte, error) {
	switch v.EncryptionMode {
	case EncryptionNone:
		return body, nil
	case EncryptionAESCBCIV:
		if v.EncryptedBlocks == 0 {
			return body, nil
		}
		if v.EncryptedBlocks*16 > len(body) {
			return nil, fmt.Errorf("%w: %d encrypted blocks exceed %d octets", ErrMalformedFrame, v.EncryptedBlocks, len(body))
		}
		addr := v.Address()
		key, err := crypto.Lookup(d.Keys, addr)
		if err != nil {
			return nil, err
		}
		return crypto.DecryptCBC(key, addr, v.AccessNumber, body, v.EncryptedBlocks)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncryptionMode, v.EncryptionMode)
	}
}

// decodeRecords walks the data records, skipping fill octets, until the
// end of the buffer or a manufacturer data marker.
func (v *VariableDataStructure) decodeRecords(b []byte) error {
	var recs []records.DataRecord
	i := 0
	for i < len(b) {
		dif := b[i]
		if dif == fillOctet {
			i++
			continue
		}
		if dif&0xEF == 0x0F {
			v.MoreRecordsFollow = dif == 0x1F
			v.ManufacturerData = append([]byte(nil), b[i+1:]...)
			break
		}
		rec, next, err := records.Decode(b, i)
		if err != nil {
			return fmt.Errorf("%w: record at offset %d: %w", ErrMalformedFrame, i, err)
		}
		recs = append(recs, rec)
		i = next
	}
	v.Records = recs
	return nil
}

// decodeCompact handles CI 0x79: format signature and full frame CRC
// followed by bare values laid out like the cached full frame.
func (v *VariableDataStructure) decodeCompact(d *Decoder, b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("%w: compact header truncated", ErrMalformedFrame)
	}
	v.Compact = true
	signature := binary.LittleEndian.Uint16(b[0:2])
	crc := binary.LittleEndian.Uint16(b[2:4])
	tmpl, ok := d.Compact.Get(v.cacheKey())
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoCompactTemplate, v.cacheKey())
	}
	if got := FormatSignature(tmpl); got != signature {
		return fmt.Errorf("%w: format signature %04X, cached %04X", ErrNoCompactTemplate, signature, got)
	}
	recs := make([]records.DataRecord, 0, len(tmpl))
	i := 4
	for _, t := range tmpl {
		rec, next, err := t.DecodeValue(b, i)
		if err != nil {
			return fmt.Errorf("%w: compact value at offset %d: %w", ErrMalformedFrame, i, err)
		}
		recs = append(recs, rec)
		i = next
	}
	if got := FullFrameCRC(recs); got != crc {
		return fmt.Errorf("%w: full frame CRC %04X, expected %04X", ErrMalformedFrame, got, crc)
	}
	for i < len(b) && b[i] == fillOctet {
		i++
	}
	if i < len(b) {
		v.ManufacturerData = append([]byte(nil), b[i:]...)
	}
	v.Records = recs
	return nil
}

// decodeELLShort handles CI 0x8C: communication control and access number.
func (v *VariableDataStructure) decodeELLShort(d *Decoder, b []byte) error {
	if len(b) < 3 {
		return fmt.Errorf("%w: short ELL truncated", ErrMalformedFrame)
	}
	v.ELL = &ELL{CommunicationControl: b[0], AccessNumber: b[1]}
	v.AccessNumber = b[1]
	return v.decodeCI(d, b[2], b[3:], true)
}

// decodeELLLong handles CI 0x8D: communication control, access number,
// session number and a CRC protected, possibly AES-CTR encrypted payload.
func (v *VariableDataStructure) decodeELLLong(d *Decoder, b []byte) error {
	if len(b) < 9 {
		return fmt.Errorf("%w: long ELL truncated", ErrMalformedFrame)
	}
	ell := &ELL{
		CommunicationControl: b[0],
		AccessNumber:         b[1],
		SessionNumber:        binary.LittleEndian.Uint32(b[2:6]),
		Long:                 true,
	}
	v.ELL = ell
	v.AccessNumber = ell.AccessNumber
	body := b[6:]
	plainCRC := wire.CRC16(body[2:]) == binary.LittleEndian.Uint16(body[0:2])

	var payload []byte
	switch enc := ell.SessionNumber >> 29; {
	case d.TrustELLPlainCRC && plainCRC:
		payload = body[2:]
	case enc == 0:
		if !plainCRC {
			return fmt.Errorf("%w: ELL payload CRC mismatch", ErrMalformedFrame)
		}
		payload = body[2:]
	case enc == 1:
		v.EncryptionMode = EncryptionAESCTR
		key, err := crypto.Lookup(d.Keys, v.link)
		if err != nil {
			return err
		}
		plain, err := crypto.DecryptCTR(key, v.link, ell.CommunicationControl, ell.SessionNumber, body)
		if err != nil {
			return err
		}
		payload = plain[2:]
	default:
		return fmt.Errorf("%w: ELL encryption %d", ErrUnsupportedEncryptionMode, enc)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty ELL payload", ErrMalformedFrame)
	}
	mode := v.EncryptionMode
	if err := v.decodeCI(d, payload[0], payload[1:], true); err != nil {
		return err
	}
	if mode == EncryptionAESCTR {
		v.EncryptionMode = mode
	}
	return nil
}

// cacheKey is the identity compact frames are matched by: the link-layer
// address, or the long header address for wired frames.
func (v *VariableDataStructure) cacheKey() address.SecondaryAddress {
	if v.hasLink {
		return v.link
	}
	return v.Address()
}
