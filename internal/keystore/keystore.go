// Package keystore provides the crypto.KeyStore implementations: an
// in-memory table, a single key for every device, a Redis backed store and
// a YAML key file loader.
package keystore

import (
	"fmt"
	"sync"

	"github.com/d21d3q/wmbusd/internal/address"
	"github.com/d21d3q/wmbusd/internal/crypto"
)

// Memory is a mutex guarded address to key table.
type Memory struct {
	mu   sync.RWMutex
	keys map[address.Key][]byte
}

func NewMemory() *Memory {
	return &Memory{keys: make(map[address.Key][]byte)}
}

// Add registers key for addr, replacing any previous key.
func (m *Memory) Add(addr address.SecondaryAddress, key []byte) error {
	return m.AddKey(addr.Key(), key)
}

// AddKey registers key under a canonical address key.
func (m *Memory) AddKey(k address.Key, key []byte) error {
	if len(key) != crypto.KeySize {
		return fmt.Errorf("key for %s: %d octets, want %d", k, len(key), crypto.KeySize)
	}
	m.mu.Lock()
	m.keys[k] = append([]byte(nil), key...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(addr address.SecondaryAddress) {
	m.mu.Lock()
	delete(m.keys, addr.Key())
	m.mu.Unlock()
}

func (m *Memory) Key(addr address.SecondaryAddress) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keys[addr.Key()]
	return k, ok
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// Static answers every lookup with the same key, as the --key flag does.
type Static []byte

func (s Static) Key(address.SecondaryAddress) ([]byte, bool) {
	return s, len(s) > 0
}

// Chain consults each store in order and returns the first hit.
type Chain []crypto.KeyStore

func (c Chain) Key(addr address.SecondaryAddress) ([]byte, bool) {
	for _, ks := range c {
		if ks == nil {
			continue
		}
		if k, ok := ks.Key(addr); ok {
			return k, true
		}
	}
	return nil, false
}
