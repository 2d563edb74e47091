package crypto

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/d21d3q/wmbusd/internal/address"
	"github.com/d21d3q/wmbusd/internal/wire"
)

type mapStore map[address.Key][]byte

func (m mapStore) Key(a address.SecondaryAddress) ([]byte, bool) {
	k, ok := m[a.Key()]
	return k, ok
}

var testKey = []byte{
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
	0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
}

func testAddress(t *testing.T, order address.Order) address.SecondaryAddress {
	t.Helper()
	a, err := address.New("ELS", 12345678, 0x33, address.DeviceTypeGas, order)
	require.NoError(t, err)
	return a
}

func TestCBCIVUsesLinkLayerOrder(t *testing.T) {
	long := testAddress(t, address.LongHeader)
	link := long.WithOrder(address.LinkLayer)
	iv := CBCIV(long, 0x2A)
	require.Equal(t, link.Bytes(), iv[:8])
	require.Equal(t, CBCIV(link, 0x2A), iv)
	for _, b := range iv[8:] {
		require.Equal(t, byte(0x2A), b)
	}
}

func TestDecryptCBCRoundTrip(t *testing.T) {
	addr := testAddress(t, address.LinkLayer)
	plain := append([]byte{0x2F, 0x2F}, []byte("0C1366380000..")...)
	plain = append(plain, make([]byte, 32-len(plain))...)
	enc, err := EncryptCBC(testKey, addr, 0x51, plain)
	require.NoError(t, err)

	payload := append(enc, 0x0C, 0x13)
	out, err := DecryptCBC(testKey, addr, 0x51, payload, 2)
	require.NoError(t, err)
	require.Equal(t, append(plain, 0x0C, 0x13), out)
}

func TestDecryptCBCWrongKey(t *testing.T) {
	addr := testAddress(t, address.LinkLayer)
	plain := make([]byte, 16)
	plain[0], plain[1] = 0x2F, 0x2F
	enc, err := EncryptCBC(testKey, addr, 0x01, plain)
	require.NoError(t, err)

	wrong := append([]byte(nil), testKey...)
	wrong[15] ^= 0xFF
	_, err = DecryptCBC(wrong, addr, 0x01, enc, 1)
	require.ErrorIs(t, err, ErrDecryptionFailed)
	require.NotErrorIs(t, err, ErrKeyNotFound)

	var de *DecryptError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "12345678", de.DeviceID)
	require.Equal(t, "ELS", de.Manufacturer)
}

func TestDecryptCBCBlockCount(t *testing.T) {
	addr := testAddress(t, address.LinkLayer)
	_, err := DecryptCBC(testKey, addr, 0, make([]byte, 16), 2)
	require.ErrorIs(t, err, ErrDecryptionFailed)
	_, err = DecryptCBC(testKey[:8], addr, 0, make([]byte, 16), 1)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestCTRIV(t *testing.T) {
	addr := testAddress(t, address.LinkLayer)
	iv := CTRIV(addr, 0xFF, 0x04030201)
	require.Equal(t, addr.Bytes(), iv[:8])
	require.Equal(t, byte(0xE0), iv[8])
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x00, 0x00, 0x00}, iv[9:])
}

func TestDecryptCTR(t *testing.T) {
	addr := testAddress(t, address.LinkLayer)
	body := []byte{0x7A, 0x11, 0x00, 0x00, 0x00, 0x0C, 0x13, 0x66, 0x38, 0x00, 0x00}
	plain := make([]byte, 2, 2+len(body))
	binary.LittleEndian.PutUint16(plain, wire.CRC16(body))
	plain = append(plain, body...)

	enc, err := XORCTR(testKey, addr, 0x20, 0x20000011, plain)
	require.NoError(t, err)
	require.NotEqual(t, plain, enc)

	out, err := DecryptCTR(testKey, addr, 0x20, 0x20000011, enc)
	require.NoError(t, err)
	require.Equal(t, plain, out)

	enc[len(enc)-1] ^= 0x01
	_, err = DecryptCTR(testKey, addr, 0x20, 0x20000011, enc)
	require.ErrorIs(t, err, ErrDecryptionFailed)
	var de *DecryptError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "ELS", de.Manufacturer)
}

func TestLookup(t *testing.T) {
	addr := testAddress(t, address.LongHeader)
	_, err := Lookup(nil, addr)
	require.ErrorIs(t, err, ErrKeyNotFound)

	store := mapStore{addr.Key(): testKey}
	key, err := Lookup(store, addr.WithOrder(address.LinkLayer))
	require.NoError(t, err)
	require.Equal(t, testKey, key)

	other, err := address.New("ELS", 87654321, 0x33, address.DeviceTypeGas, address.LinkLayer)
	require.NoError(t, err)
	_, err = Lookup(store, other)
	require.ErrorIs(t, err, ErrKeyNotFound)
	require.NotErrorIs(t, err, ErrDecryptionFailed)
}
