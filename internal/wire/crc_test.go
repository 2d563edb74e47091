package wire

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC16CheckValue(t *testing.T) {
	require.Equal(t, uint16(0xC2B7), CRC16([]byte("123456789")))
}

func TestCRC16Empty(t *testing.T) {
	require.Equal(t, uint16(0xFFFF), CRC16(nil))
	require.Equal(t, uint16(0xFFFF), CRC16([]byte{}))
}

func TestCRC16SingleBitFlip(t *testing.T) {
	frame, err := ParseHex("2E4493157856341233037A2A0020255923C95AAA26D1B2E7493BC2AD013EC4A6F6D3529B520EDFF0EA6DEFC955B29D6D69EBF3EC8A")
	require.NoError(t, err)
	want := CRC16(frame)
	for i := range frame {
		for bit := 0; bit < 8; bit++ {
			frame[i] ^= 1 << bit
			require.NotEqual(t, want, CRC16(frame), "flip byte %d bit %d", i, bit)
			frame[i] ^= 1 << bit
		}
	}
}

func TestCheckBlockCRCIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 256; trial++ {
		length := rng.Intn(30) + 3
		buf := make([]byte, length)
		rng.Read(buf[:length-2])
		binary.BigEndian.PutUint16(buf[length-2:], CRC16(buf[:length-2]))
		require.True(t, CheckBlockCRC(buf), "trial %d: %X", trial, buf)
		buf[0] ^= 0x01
		require.False(t, CheckBlockCRC(buf))
	}
}

func TestCheckBlockCRCShort(t *testing.T) {
	require.False(t, CheckBlockCRC([]byte{0x01}))
}

func TestCRC16GenibusCheckValue(t *testing.T) {
	require.Equal(t, uint16(0xD64E), CRC16Genibus([]byte("123456789")))
}
