package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/d21d3q/wmbusd/internal/address"
	"github.com/d21d3q/wmbusd/internal/wire"
)

var (
	ErrKeyNotFound      = errors.New("encrypted telegram: no key for device")
	ErrDecryptionFailed = errors.New("encrypted telegram: decryption failed")
)

// KeySize is the AES-128 key length used by every supported mode.
const KeySize = 16

// KeyStore resolves the AES key of a device.
type KeyStore interface {
	Key(addr address.SecondaryAddress) ([]byte, bool)
}

// DecryptError identifies the device whose telegram could not be decrypted.
type DecryptError struct {
	DeviceID     string
	Manufacturer string
	Err          error
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("device %s (%s): %v", e.DeviceID, e.Manufacturer, e.Err)
}

func (e *DecryptError) Unwrap() error { return e.Err }

func decryptError(addr address.SecondaryAddress, format string, args ...any) error {
	return &DecryptError{
		DeviceID:     addr.DeviceID(),
		Manufacturer: addr.ManufacturerID(),
		Err:          fmt.Errorf("%w: "+format, append([]any{ErrDecryptionFailed}, args...)...),
	}
}

// Lookup fetches the key for addr, failing with ErrKeyNotFound when the
// store is nil or has no entry.
func Lookup(ks KeyStore, addr address.SecondaryAddress) ([]byte, error) {
	if ks == nil {
		return nil, fmt.Errorf("%w %s", ErrKeyNotFound, addr)
	}
	key, ok := ks.Key(addr)
	if !ok || len(key) == 0 {
		return nil, fmt.Errorf("%w %s", ErrKeyNotFound, addr)
	}
	return key, nil
}

// CBCIV builds the mode 5 initialisation vector: the address in link-layer
// order followed by the access number repeated eight times.
func CBCIV(addr address.SecondaryAddress, access byte) []byte {
	iv := make([]byte, aes.BlockSize)
	copy(iv, addr.WithOrder(address.LinkLayer).Bytes())
	for i := 8; i < aes.BlockSize; i++ {
		iv[i] = access
	}
	return iv
}

// DecryptCBC decrypts the first blocks*16 octets of payload with AES-CBC and
// returns them followed by the unencrypted remainder. The plaintext must
// start with the 2F 2F verification filler.
func DecryptCBC(key []byte, addr address.SecondaryAddress, access byte, payload []byte, blocks int) ([]byte, error) {
	n := blocks * aes.BlockSize
	if blocks <= 0 || n > len(payload) {
		return nil, decryptError(addr, "%d encrypted blocks do not fit %d octets", blocks, len(payload))
	}
	block, err := newCipher(key)
	if err != nil {
		return nil, decryptError(addr, "%v", err)
	}
	out := make([]byte, len(payload))
	cipher.NewCBCDecrypter(block, CBCIV(addr, access)).CryptBlocks(out[:n], payload[:n])
	copy(out[n:], payload[n:])
	if out[0] != 0x2F || out[1] != 0x2F {
		return nil, decryptError(addr, "plaintext does not start with 2F2F")
	}
	return out, nil
}

// EncryptCBC is the inverse of DecryptCBC; plaintext must be block aligned.
func EncryptCBC(key []byte, addr address.SecondaryAddress, access byte, plaintext []byte) ([]byte, error) {
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("plaintext of %d octets is not block aligned", len(plaintext))
	}
	block, err := newCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, CBCIV(addr, access)).CryptBlocks(out, plaintext)
	return out, nil
}

// CTRIV builds the ELL initial counter block: link-layer address, the
// communication control masked to its high bits, the session number (LE)
// and three zero octets for frame number and block counter.
func CTRIV(addr address.SecondaryAddress, cc byte, sn uint32) []byte {
	iv := make([]byte, aes.BlockSize)
	copy(iv, addr.WithOrder(address.LinkLayer).Bytes())
	iv[8] = cc & 0xE0
	binary.LittleEndian.PutUint32(iv[9:13], sn)
	return iv
}

// DecryptCTR decrypts an ELL payload with AES-128-CTR and verifies the
// leading payload CRC. The returned slice still carries the two CRC octets.
func DecryptCTR(key []byte, addr address.SecondaryAddress, cc byte, sn uint32, payload []byte) ([]byte, error) {
	if len(payload) < 2 {
		return nil, decryptError(addr, "payload of %d octets has no CRC", len(payload))
	}
	out, err := XORCTR(key, addr, cc, sn, payload)
	if err != nil {
		return nil, decryptError(addr, "%v", err)
	}
	if got, want := wire.CRC16(out[2:]), binary.LittleEndian.Uint16(out[:2]); got != want {
		return nil, decryptError(addr, "payload CRC %04X, expected %04X", got, want)
	}
	return out, nil
}

// XORCTR applies the AES-CTR key stream; encryption and decryption are the
// same operation.
func XORCTR(key []byte, addr address.SecondaryAddress, cc byte, sn uint32, data []byte) ([]byte, error) {
	block, err := newCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCTR(block, CTRIV(addr, cc, sn)).XORKeyStream(out, data)
	return out, nil
}

func newCipher(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid AES key: %d octets, want %d", len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid AES key: %w", err)
	}
	return block, nil
}
