package frame

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/d21d3q/wmbusd/internal/address"
	"github.com/d21d3q/wmbusd/internal/crypto"
	"github.com/d21d3q/wmbusd/internal/records"
	"github.com/d21d3q/wmbusd/internal/wire"
)

const bmtFrame = "4E44B4098686868613077AF00040052F2F0C1366380000046D27287E2A0F150E00000000C10000D10000E60000FD00000C01002F0100410100540100680100890000A00000B30000002F2F2F2F2F2F"

var testKey = []byte{
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
	0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
}

type keyMap map[address.Key][]byte

func (m keyMap) Key(a address.SecondaryAddress) ([]byte, bool) {
	k, ok := m[a.Key()]
	return k, ok
}

func decodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := wire.ParseHex(s)
	require.NoError(t, err)
	return b
}

func mustAddress(t *testing.T, man string, id uint32, dt address.DeviceType, order address.Order) address.SecondaryAddress {
	t.Helper()
	a, err := address.New(man, id, 0x1B, dt, order)
	require.NoError(t, err)
	return a
}

// linkFrame prepends L, C and the link-layer address to an application payload.
func linkFrame(addr address.SecondaryAddress, payload []byte) []byte {
	b := []byte{0, 0x44}
	b = append(b, addr.WithOrder(address.LinkLayer).Bytes()...)
	b = append(b, payload...)
	b[0] = byte(len(b) - 1)
	return b
}

func join(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func le16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// recordBody holds a BCD volume of 3.866 m³ and a type F timestamp.
func recordBody(t *testing.T) []byte {
	return decodeHex(t, "0C1366380000046D27287E2A")
}

func decode(t *testing.T, d *Decoder, raw []byte) (*VariableDataStructure, error) {
	t.Helper()
	tg, err := ParseLinkLayer(raw)
	require.NoError(t, err)
	vds := tg.VariableDataStructure()
	return vds, vds.Decode(d)
}

func requireBody(t *testing.T, vds *VariableDataStructure) {
	t.Helper()
	require.Len(t, vds.Records, 2)
	require.Equal(t, records.DescVolume, vds.Records[0].Description)
	require.Equal(t, int64(3866), vds.Records[0].BCD.Value)
	require.Equal(t, time.Date(2019, time.October, 30, 8, 39, 0, 0, time.UTC), vds.Records[1].Time)
}

func TestParseLinkLayer(t *testing.T) {
	tg, err := ParseLinkLayer(decodeHex(t, bmtFrame))
	require.NoError(t, err)
	require.Equal(t, uint16(0x09B4), tg.Address.ManufacturerCode())
	require.Equal(t, "BMT", tg.Address.ManufacturerID())
	require.Equal(t, "86868686", tg.MeterIDString())
	require.Equal(t, byte(0x7A), tg.CI)
	require.Equal(t, byte(0x7A), tg.Payload[0])

	_, err = ParseLinkLayer(decodeHex(t, bmtFrame)[:40])
	require.ErrorIs(t, err, ErrMalformedFrame)
	_, err = ParseLinkLayer([]byte{0x03, 0x44, 0x00, 0x00})
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestEncryptedFrameWithoutKey(t *testing.T) {
	vds, err := decode(t, NewDecoder(nil), decodeHex(t, bmtFrame))
	require.ErrorIs(t, err, crypto.ErrKeyNotFound)
	require.NotErrorIs(t, err, crypto.ErrDecryptionFailed)
	require.Equal(t, EncryptionAESCBCIV, vds.EncryptionMode)
	require.Equal(t, 4, vds.EncryptedBlocks)
	require.Equal(t, byte(0xF0), vds.AccessNumber)
	require.Nil(t, vds.Records)
}

func TestPlainShortHeader(t *testing.T) {
	raw := decodeHex(t, bmtFrame)
	raw[14] = 0x00
	vds, err := decode(t, NewDecoder(nil), raw)
	require.NoError(t, err)
	require.Equal(t, EncryptionNone, vds.EncryptionMode)
	requireBody(t, vds)
	require.False(t, vds.MoreRecordsFollow)
	require.Equal(t, byte(0x15), vds.ManufacturerData[0])
}

func TestShortHeaderAESCBC(t *testing.T) {
	link := mustAddress(t, "KAM", 12345678, address.DeviceTypeWater, address.LinkLayer)
	plain := join([]byte{0x2F, 0x2F}, recordBody(t))
	for len(plain) < 32 {
		plain = append(plain, 0x2F)
	}
	enc, err := crypto.EncryptCBC(testKey, link, 0x42, plain)
	require.NoError(t, err)
	raw := linkFrame(link, join([]byte{0x7A, 0x42, 0x00, 0x20, 0x05}, enc))

	vds, err := decode(t, NewDecoder(keyMap{link.Key(): testKey}), raw)
	require.NoError(t, err)
	require.Equal(t, EncryptionAESCBCIV, vds.EncryptionMode)
	require.Equal(t, 2, vds.EncryptedBlocks)
	requireBody(t, vds)

	wrong := append([]byte(nil), testKey...)
	wrong[0] ^= 0x55
	_, err = decode(t, NewDecoder(keyMap{link.Key(): wrong}), raw)
	require.ErrorIs(t, err, crypto.ErrDecryptionFailed)
	var de *crypto.DecryptError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "12345678", de.DeviceID)

	_, err = decode(t, NewDecoder(keyMap{}), raw)
	require.ErrorIs(t, err, crypto.ErrKeyNotFound)
}

func TestLongHeaderUsesHeaderAddressForKey(t *testing.T) {
	link := mustAddress(t, "ELS", 99999999, address.DeviceTypeUnidirectionalRepeater, address.LinkLayer)
	meter := mustAddress(t, "ELS", 11223344, address.DeviceTypeGas, address.LongHeader)
	plain := join([]byte{0x2F, 0x2F}, recordBody(t), []byte{0x2F, 0x2F})
	enc, err := crypto.EncryptCBC(testKey, meter, 0x07, plain)
	require.NoError(t, err)
	raw := linkFrame(link, join([]byte{0x72}, meter.Bytes(), []byte{0x07, 0x00, 0x10, 0x05}, enc))

	vds, err := decode(t, NewDecoder(keyMap{meter.Key(): testKey}), raw)
	require.NoError(t, err)
	require.NotNil(t, vds.LongHeader)
	require.True(t, meter.Equal(*vds.LongHeader))
	require.Equal(t, address.LongHeader, vds.LongHeader.Order())
	require.True(t, meter.Equal(vds.Address()))
	requireBody(t, vds)
}

func TestNoHeader(t *testing.T) {
	link := mustAddress(t, "KAM", 1, address.DeviceTypeWater, address.LinkLayer)
	raw := linkFrame(link, join([]byte{0x78}, recordBody(t), []byte{0x1F, 0xAA, 0xBB}))
	vds, err := decode(t, nil, raw)
	require.NoError(t, err)
	requireBody(t, vds)
	require.True(t, vds.MoreRecordsFollow)
	require.Equal(t, []byte{0xAA, 0xBB}, vds.ManufacturerData)
}

func TestUnsupportedEncryptionModes(t *testing.T) {
	link := mustAddress(t, "KAM", 1, address.DeviceTypeWater, address.LinkLayer)
	for _, mode := range []byte{0x01, 0x02, 0x03, 0x04, 0x07, 0x08, 0x0D} {
		raw := linkFrame(link, join([]byte{0x7A, 0x01, 0x00, 0x10, mode}, make([]byte, 16)))
		_, err := decode(t, NewDecoder(keyMap{link.Key(): testKey}), raw)
		require.ErrorIs(t, err, ErrUnsupportedEncryptionMode, "mode %d", mode)
	}
}

func TestCIDispatchErrors(t *testing.T) {
	link := mustAddress(t, "TCH", 1, address.DeviceTypeWater, address.LinkLayer)
	vds, err := decode(t, nil, linkFrame(link, []byte{0xA2, 0x01, 0x02}))
	require.ErrorIs(t, err, ErrManufacturerSpecific)
	require.Equal(t, StateFailed, vds.State())
	require.ErrorIs(t, vds.Decode(nil), ErrManufacturerSpecific)

	_, err = decode(t, nil, linkFrame(link, []byte{0x51, 0x01}))
	require.ErrorIs(t, err, ErrUnsupportedCI)

	_, err = decode(t, nil, linkFrame(link, []byte{0x7A, 0x01}))
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeIsAtMostOnce(t *testing.T) {
	link := mustAddress(t, "KAM", 1, address.DeviceTypeWater, address.LinkLayer)
	tg, err := ParseLinkLayer(linkFrame(link, join([]byte{0x78}, recordBody(t))))
	require.NoError(t, err)
	vds := tg.VariableDataStructure()
	require.Equal(t, StateUndecoded, vds.State())
	require.NoError(t, vds.Decode(nil))
	first := vds.Records
	require.NoError(t, vds.Decode(nil))
	require.Equal(t, StateDecoded, vds.State())
	require.Same(t, &first[0], &vds.Records[0])
}

func TestFailedDecodeLeavesNoRecords(t *testing.T) {
	link := mustAddress(t, "KAM", 1, address.DeviceTypeWater, address.LinkLayer)
	raw := linkFrame(link, join([]byte{0x78}, recordBody(t), []byte{0x0C, 0x13, 0x01}))
	vds, err := decode(t, nil, raw)
	require.ErrorIs(t, err, ErrMalformedFrame)
	require.ErrorIs(t, err, records.ErrTruncated)
	require.Nil(t, vds.Records)
}

func ellLong(cc, acc byte, sn uint32, body []byte) []byte {
	return join([]byte{0x8D, cc, acc}, le32(sn), body)
}

func TestELLLongPlain(t *testing.T) {
	link := mustAddress(t, "ESY", 1, address.DeviceTypeElectricity, address.LinkLayer)
	inner := join([]byte{0x7A, 0x09, 0x00, 0x00, 0x00}, recordBody(t))
	raw := linkFrame(link, ellLong(0x20, 0x09, 0, join(le16(wire.CRC16(inner)), inner)))

	vds, err := decode(t, NewDecoder(nil), raw)
	require.NoError(t, err)
	require.NotNil(t, vds.ELL)
	require.True(t, vds.ELL.Long)
	require.Equal(t, byte(0x20), vds.ELL.CommunicationControl)
	requireBody(t, vds)
}

func TestELLLongCRCMismatch(t *testing.T) {
	link := mustAddress(t, "ESY", 1, address.DeviceTypeElectricity, address.LinkLayer)
	inner := join([]byte{0x78}, recordBody(t))
	crc := wire.CRC16(inner) ^ 0x0001
	raw := linkFrame(link, ellLong(0x20, 0x09, 0, join(le16(crc), inner)))

	vds, err := decode(t, NewDecoder(nil), raw)
	require.ErrorIs(t, err, ErrMalformedFrame)
	require.Nil(t, vds.Records)
}

func TestELLLongAESCTR(t *testing.T) {
	link := mustAddress(t, "ESY", 11223344, address.DeviceTypeElectricity, address.LinkLayer)
	inner := join([]byte{0x7A, 0x09, 0x00, 0x00, 0x00}, recordBody(t))
	plain := join(le16(wire.CRC16(inner)), inner)
	sn := uint32(1)<<29 | 0x0123
	enc, err := crypto.XORCTR(testKey, link, 0x20, sn, plain)
	require.NoError(t, err)
	raw := linkFrame(link, ellLong(0x20, 0x09, sn, enc))

	vds, err := decode(t, NewDecoder(keyMap{link.Key(): testKey}), raw)
	require.NoError(t, err)
	require.Equal(t, EncryptionAESCTR, vds.EncryptionMode)
	requireBody(t, vds)

	wrong := append([]byte(nil), testKey...)
	wrong[3] ^= 0x01
	_, err = decode(t, NewDecoder(keyMap{link.Key(): wrong}), raw)
	require.ErrorIs(t, err, crypto.ErrDecryptionFailed)
	var de *crypto.DecryptError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "11223344", de.DeviceID)
	require.Equal(t, "ESY", de.Manufacturer)

	_, err = decode(t, NewDecoder(nil), raw)
	require.ErrorIs(t, err, crypto.ErrKeyNotFound)
}

func TestELLPlainCRCTrust(t *testing.T) {
	link := mustAddress(t, "ESY", 1, address.DeviceTypeElectricity, address.LinkLayer)
	inner := join([]byte{0x78}, recordBody(t))
	sn := uint32(1) << 29
	raw := linkFrame(link, ellLong(0x20, 0x09, sn, join(le16(wire.CRC16(inner)), inner)))

	d := NewDecoder(keyMap{link.Key(): testKey})
	vds, err := decode(t, d, raw)
	require.NoError(t, err)
	requireBody(t, vds)

	d = NewDecoder(keyMap{link.Key(): testKey})
	d.TrustELLPlainCRC = false
	_, err = decode(t, d, raw)
	require.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

func TestELLShort(t *testing.T) {
	link := mustAddress(t, "ESY", 1, address.DeviceTypeElectricity, address.LinkLayer)
	raw := linkFrame(link, join([]byte{0x8C, 0x20, 0x33, 0x78}, recordBody(t)))
	vds, err := decode(t, nil, raw)
	require.NoError(t, err)
	require.False(t, vds.ELL.Long)
	require.Equal(t, byte(0x33), vds.AccessNumber)
	requireBody(t, vds)

	_, err = decode(t, nil, linkFrame(link, []byte{0x8C, 0x20, 0x33, 0x8C, 0x00, 0x00, 0x78}))
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestCompactFrame(t *testing.T) {
	link := mustAddress(t, "KAM", 77, address.DeviceTypeWater, address.LinkLayer)
	d := NewDecoder(nil)

	values := decodeHex(t, "1122000027287E2A")
	compactFor := func(sig, crc uint16) []byte {
		return linkFrame(link, join([]byte{0x79}, le16(sig), le16(crc), values))
	}

	_, err := decode(t, d, compactFor(0, 0))
	require.ErrorIs(t, err, ErrNoCompactTemplate)

	full, err := decode(t, d, linkFrame(link, join([]byte{0x7A, 0x01, 0x00, 0x00, 0x00}, recordBody(t))))
	require.NoError(t, err)
	require.Equal(t, 1, d.Compact.Len())
	sig := FormatSignature(full.Records)
	require.Equal(t, wire.CRC16(decodeHex(t, "0C13046D")), sig)
	crc := wire.CRC16(decodeHex(t, "0C1311220000046D27287E2A"))

	vds, err := decode(t, d, compactFor(sig, crc))
	require.NoError(t, err)
	require.True(t, vds.Compact)
	require.Len(t, vds.Records, 2)
	require.Equal(t, int64(2211), vds.Records[0].BCD.Value)
	require.Equal(t, full.Records[1].Time, vds.Records[1].Time)

	_, err = decode(t, d, compactFor(sig, crc^0xFFFF))
	require.ErrorIs(t, err, ErrMalformedFrame)

	_, err = decode(t, d, compactFor(sig^0x0101, crc))
	require.ErrorIs(t, err, ErrNoCompactTemplate)
}

func TestCompactCacheEviction(t *testing.T) {
	c := NewCompactCache(2)
	recs := []records.DataRecord{{DIB: []byte{0x0C}, VIB: []byte{0x13}}}
	a := mustAddress(t, "KAM", 1, address.DeviceTypeWater, address.LinkLayer)
	b := mustAddress(t, "KAM", 2, address.DeviceTypeWater, address.LinkLayer)
	e := mustAddress(t, "KAM", 3, address.DeviceTypeWater, address.LinkLayer)

	c.Put(a, recs)
	c.Put(b, recs)
	_, ok := c.Get(a)
	require.True(t, ok)
	c.Put(e, recs)
	require.Equal(t, 2, c.Len())
	_, ok = c.Get(b)
	require.False(t, ok)
	_, ok = c.Get(a)
	require.True(t, ok)

	c.Put(a, nil)
	got, _ := c.Get(a)
	require.Len(t, got, 1)

	var nilCache *CompactCache
	nilCache.Put(a, recs)
	_, ok = nilCache.Get(a)
	require.False(t, ok)
	require.Zero(t, nilCache.Len())
}

func TestCompactCacheDefaultsAndCopies(t *testing.T) {
	c := NewCompactCache(0)
	for i := uint32(1); i <= DefaultCompactCacheSize+1; i++ {
		c.Put(mustAddress(t, "KAM", i, address.DeviceTypeWater, address.LinkLayer), []records.DataRecord{{DIB: []byte{0x0C}}})
	}
	require.Equal(t, DefaultCompactCacheSize, c.Len())
	_, ok := c.Get(mustAddress(t, "KAM", 1, address.DeviceTypeWater, address.LinkLayer))
	require.False(t, ok)

	a := mustAddress(t, "KAM", 99999999, address.DeviceTypeWater, address.LinkLayer)
	recs := []records.DataRecord{{DIB: []byte{0x0C}, VIB: []byte{0x13}}}
	c.Put(a, recs)
	recs[0] = records.DataRecord{DIB: []byte{0x04}}
	got, ok := c.Get(a)
	require.True(t, ok)
	require.Equal(t, []byte{0x0C}, got[0].DIB)
}

func TestParseWiredFrame(t *testing.T) {
	meter := mustAddress(t, "ELS", 11223344, address.DeviceTypeGas, address.LongHeader)
	body := join([]byte{0x08, 0x05, 0x72}, meter.Bytes(), []byte{0x01, 0x00, 0x00, 0x00}, recordBody(t))
	var cs byte
	for _, b := range body {
		cs += b
	}
	raw := join([]byte{0x68, byte(len(body)), byte(len(body)), 0x68}, body, []byte{cs, 0x16})

	w, err := ParseWiredFrame(raw)
	require.NoError(t, err)
	require.Equal(t, byte(0x05), w.PrimaryAddress)
	require.Equal(t, byte(0x72), w.CI)

	vds := w.VariableDataStructure()
	require.NoError(t, vds.Decode(NewDecoder(nil)))
	require.True(t, meter.Equal(vds.Address()))
	requireBody(t, vds)

	raw[len(raw)-2]++
	_, err = ParseWiredFrame(raw)
	require.ErrorIs(t, err, ErrMalformedFrame)

	_, err = ParseWiredFrame([]byte{0x68, 0x03, 0x04, 0x68, 0x08, 0x05, 0x72, 0x7F, 0x16})
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestEncryptionModeString(t *testing.T) {
	require.Equal(t, "AES-CBC-IV", EncryptionAESCBCIV.String())
	require.Equal(t, "AES-CTR", EncryptionAESCTR.String())
	require.Equal(t, "reserved(9)", EncryptionReserved9.String())
	require.True(t, EncryptionReserved6.Reserved())
	require.False(t, EncryptionTLS.Reserved())
}

func TestStatusFlags(t *testing.T) {
	flags := StatusFlags(0x07)
	require.True(t, flags["status_alarm"])
	require.True(t, flags["status_power_low"])
	require.False(t, flags["status_error"])
	require.Empty(t, StatusFlags(0x00))
}
