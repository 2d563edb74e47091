package wire

import "github.com/sigurn/crc16"

var (
	en13757Table = crc16.MakeTable(crc16.CRC16_EN_13757)
	genibusTable = crc16.MakeTable(crc16.CRC16_GENIBUS)
)

// CRC16 returns the EN 13757 checksum of data: polynomial 0x3D65, init
// 0x0000, no reflection, final XOR 0xFFFF. It covers link-layer blocks,
// ELL payloads and compact-frame signatures.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, en13757Table)
}

// CRC16Genibus is the CCITT variant (init 0xFFFF, inverted output) used by
// the iM871A host controller interface.
func CRC16Genibus(data []byte) uint16 {
	return crc16.Checksum(data, genibusTable)
}

// CheckBlockCRC reports whether the two octets following data[:n] hold the
// big-endian EN 13757 CRC of data[:n], as transmitted in link-layer blocks.
func CheckBlockCRC(block []byte) bool {
	if len(block) < 2 {
		return false
	}
	n := len(block) - 2
	want := uint16(block[n])<<8 | uint16(block[n+1])
	return CRC16(block[:n]) == want
}
