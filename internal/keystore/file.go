package keystore

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/d21d3q/wmbusd/internal/address"
	"github.com/d21d3q/wmbusd/internal/options"
)

// keyFile is the on-disk layout:
//
//	keys:
//	  "B409868686861307": "000102030405060708090A0B0C0D0E0F"
type keyFile struct {
	Keys map[string]string `yaml:"keys"`
}

// LoadYAML reads a key file into a Memory store.
func LoadYAML(path string) (*Memory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseYAML(b)
}

func ParseYAML(b []byte) (*Memory, error) {
	var kf keyFile
	if err := yaml.Unmarshal(b, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	return FromMap(kf.Keys)
}

// FromMap builds a Memory store from address hex to key hex entries.
func FromMap(keys map[string]string) (*Memory, error) {
	m := NewMemory()
	for addrHex, keyHex := range keys {
		k, err := address.ParseKey(addrHex)
		if err != nil {
			return nil, fmt.Errorf("key entry %q: %w", addrHex, err)
		}
		key, err := options.ParseKeyHex(keyHex)
		if err != nil {
			return nil, fmt.Errorf("key entry %q: %w", addrHex, err)
		}
		if err := m.AddKey(k, key); err != nil {
			return nil, err
		}
	}
	return m, nil
}
