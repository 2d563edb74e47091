package frame

import "fmt"

// EncryptionMode is the security mode of the transport layer configuration
// field.
type EncryptionMode uint8

const (
	EncryptionNone EncryptionMode = iota
	EncryptionReserved1
	EncryptionDESCBC
	EncryptionDESCBCIV
	EncryptionAESCBC
	EncryptionAESCBCIV
	EncryptionReserved6
	EncryptionAESCBCKDF
	EncryptionAESCTR
	EncryptionReserved9
	EncryptionReserved10
	EncryptionReserved11
	EncryptionReserved12
	EncryptionTLS
	EncryptionReserved14
	EncryptionReserved15
)

var encryptionNames = map[EncryptionMode]string{
	EncryptionNone:      "none",
	EncryptionDESCBC:    "DES-CBC",
	EncryptionDESCBCIV:  "DES-CBC-IV",
	EncryptionAESCBC:    "AES-CBC",
	EncryptionAESCBCIV:  "AES-CBC-IV",
	EncryptionAESCBCKDF: "AES-CBC-KDF",
	EncryptionAESCTR:    "AES-CTR",
	EncryptionTLS:       "TLS",
}

func (m EncryptionMode) String() string {
	if s, ok := encryptionNames[m]; ok {
		return s
	}
	return fmt.Sprintf("reserved(%d)", uint8(m))
}

func (m EncryptionMode) Reserved() bool {
	_, ok := encryptionNames[m]
	return !ok && m <= EncryptionReserved15
}
