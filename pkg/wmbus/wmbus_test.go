package wmbus

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/d21d3q/wmbusd/internal/address"
	"github.com/d21d3q/wmbusd/internal/crypto"
	"github.com/d21d3q/wmbusd/internal/keystore"
	"github.com/d21d3q/wmbusd/internal/testutil"
	"github.com/d21d3q/wmbusd/internal/wire"
)

const bmtFrame = "4E44B4098686868613077AF00040052F2F0C1366380000046D27287E2A0F150E00000000C10000D10000E60000FD00000C01002F0100410100540100680100890000A00000B30000002F2F2F2F2F2F"

var testKey = []byte{
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
	0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
}

func encryptedFrame(t *testing.T, addr address.SecondaryAddress) []byte {
	t.Helper()
	plain := append([]byte{0x2F, 0x2F}, testutil.MustHex(t, testutil.PlainRecords)...)
	for len(plain) < 32 {
		plain = append(plain, 0x2F)
	}
	enc, err := crypto.EncryptCBC(testKey, addr, 0x42, plain)
	require.NoError(t, err)
	return testutil.LinkFrame(addr, append([]byte{0x7A, 0x42, 0x00, 0x20, 0x05}, enc...))
}

func TestAnalyzePlain(t *testing.T) {
	result, err := Analyze(context.Background(), testutil.LoadHex(t, "telegrams/kamstrup_plain.hex"))
	require.NoError(t, err)
	require.Equal(t, DecoderGeneric, result.Decoder)
	require.NotNil(t, result.Telegram)
	require.Equal(t, 23, result.ByteCount)

	fields := result.Fields()
	id, err := fields.String("meter_id")
	require.NoError(t, err)
	require.Equal(t, "12345678", id)
	volume, err := fields.Float("volume")
	require.NoError(t, err)
	require.InDelta(t, 3.866, volume, 1e-9)
	unit, _ := fields.String("volume_unit")
	require.Equal(t, "m³", unit)
	ts, err := fields.Time("date_time")
	require.NoError(t, err)
	require.Equal(t, time.Date(2019, 10, 30, 8, 39, 0, 0, time.UTC), ts)
	mode, _ := fields.String("encryption_mode")
	require.Equal(t, "none", mode)
	require.Contains(t, result.String(), `"decoder": "generic"`)
}

func TestAnalyzeHexSeparators(t *testing.T) {
	result, err := AnalyzeHex(context.Background(), " |16442D2C_78563412 1B07 78 0C1366380000046D27287E2A| ")
	require.NoError(t, err)
	require.Equal(t, "16442D2C785634121B07780C1366380000046D27287E2A", result.RawHex)

	_, err = AnalyzeHex(context.Background(), "ABC")
	require.Error(t, err)
	_, err = AnalyzeHex(context.Background(), "0544B409")
	require.Error(t, err)
}

func TestAnalyzeEncryptedWithoutKey(t *testing.T) {
	result, err := AnalyzeHex(context.Background(), bmtFrame)
	require.NoError(t, err)
	require.Equal(t, DecoderUnknown, result.Decoder)
	fields := result.Fields()
	require.True(t, fields.Has("encryption"))
	mode, _ := fields.String("encryption_mode")
	require.Equal(t, "AES-CBC-IV", mode)
	id, _ := fields.String("meter_id")
	require.Equal(t, "86868686", id)
	require.False(t, fields.Has("volume"))
}

func TestAnalyzeWithKey(t *testing.T) {
	addr := testutil.Address(t, "KAM", 12345678, 0x1B, address.DeviceTypeWater)
	raw := wire.Hex(encryptedFrame(t, addr))

	result, err := AnalyzeHexWithOptions(context.Background(), raw, AnalyzeOptions{KeyHex: wire.Hex(testKey)})
	require.NoError(t, err)
	require.Equal(t, DecoderGeneric, result.Decoder)
	volume, err := result.Fields().Float("volume")
	require.NoError(t, err)
	require.InDelta(t, 3.866, volume, 1e-9)

	_, err = AnalyzeHexWithOptions(context.Background(), raw, AnalyzeOptions{KeyHex: strings.Repeat("1", 32)})
	require.ErrorIs(t, err, crypto.ErrDecryptionFailed)

	_, err = AnalyzeHexWithOptions(context.Background(), raw, AnalyzeOptions{KeyHex: "0011"})
	require.Error(t, err)
}

func TestAnalyzeWithContextKeyStore(t *testing.T) {
	addr := testutil.Address(t, "KAM", 12345678, 0x1B, address.DeviceTypeWater)
	ks := keystore.NewMemory()
	require.NoError(t, ks.Add(addr, testKey))
	ctx := WithKeyStore(context.Background(), ks)

	result, err := Analyze(ctx, encryptedFrame(t, addr))
	require.NoError(t, err)
	require.Equal(t, DecoderGeneric, result.Decoder)
	require.Len(t, result.Data.Records, 2)
}

func TestAnalyzeVendorGolden(t *testing.T) {
	opts := AnalyzeOptions{Received: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	result, err := AnalyzeWithOptions(context.Background(), testutil.LoadHex(t, "telegrams/techem_hca69.hex"), opts)
	require.NoError(t, err)
	require.Equal(t, "techem-hca-temperature", result.Decoder)

	var expected map[string]any
	testutil.LoadJSON(t, "golden/techem_hca69.json", &expected)
	require.Equal(t, "", diffMaps(expected, result.Fields().Map()))
}

func TestAnalyzeUnknownDialect(t *testing.T) {
	addr := testutil.Address(t, "TCH", 1, 0x99, 0x80)
	result, err := Analyze(context.Background(), testutil.LinkFrame(addr, []byte{0xA0, 0x00}))
	require.NoError(t, err)
	require.Equal(t, DecoderUnknown, result.Decoder)
	ci, _ := result.Fields().String("ci")
	require.Equal(t, "0xA0", ci)
}

// wiredFrame wraps a long header response: 68 L L 68 C A CI ... CS 16.
func wiredFrame(t *testing.T, addr address.SecondaryAddress) []byte {
	t.Helper()
	body := []byte{0x08, 0x05, 0x72}
	body = append(body, addr.WithOrder(address.LongHeader).Bytes()...)
	body = append(body, 0x01, 0x00, 0x00, 0x00)
	body = append(body, testutil.MustHex(t, testutil.PlainRecords)...)
	var sum byte
	for _, b := range body {
		sum += b
	}
	out := []byte{0x68, byte(len(body)), byte(len(body)), 0x68}
	out = append(out, body...)
	return append(out, sum, 0x16)
}

func TestAnalyzeWired(t *testing.T) {
	addr := testutil.Address(t, "ELS", 87654321, 0x02, address.DeviceTypeGas)
	result, err := Analyze(context.Background(), wiredFrame(t, addr))
	require.NoError(t, err)
	require.Equal(t, DecoderGeneric, result.Decoder)
	require.NotNil(t, result.Wired)
	require.Nil(t, result.Telegram)

	fields := result.Fields()
	pa, err := fields.Int("primary_address")
	require.NoError(t, err)
	require.Equal(t, int64(5), pa)
	id, _ := fields.String("meter_id")
	require.Equal(t, "87654321", id)
	man, _ := fields.String("manufacturer")
	require.Equal(t, "ELS", man)

	raw := wiredFrame(t, addr)
	raw[len(raw)-2]++
	_, err = Analyze(context.Background(), raw)
	require.Error(t, err)
}

func diffMaps(expected, actual map[string]any) string {
	if len(expected) != len(actual) {
		return fmt.Sprintf("len mismatch expected %d actual %d", len(expected), len(actual))
	}
	for k, v := range expected {
		av, ok := actual[k]
		if !ok {
			return fmt.Sprintf("missing key %s", k)
		}
		switch ev := v.(type) {
		case float64:
			f, err := (FieldSet{data: actual}).Float(k)
			if err != nil || math.Abs(ev-f) > 1e-6 {
				return fmt.Sprintf("key %s mismatch expected %v got %v", k, v, av)
			}
		default:
			if fmt.Sprintf("%v", v) != fmt.Sprintf("%v", av) {
				return fmt.Sprintf("key %s mismatch expected %v got %v", k, v, av)
			}
		}
	}
	return ""
}
