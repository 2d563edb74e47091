// Package testutil holds fixture helpers shared by package tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/d21d3q/wmbusd/internal/address"
	"github.com/d21d3q/wmbusd/internal/wire"
)

// PlainRecords is a record block with a BCD volume of 3.866 m³ and a type F
// timestamp of 2019-10-30 08:39.
const PlainRecords = "0C1366380000046D27287E2A"

// LoadJSON loads a JSON fixture from testdata relative to the repo root.
func LoadJSON(t *testing.T, rel string, v any) {
	t.Helper()
	data := readTestdata(t, rel)
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", rel, err)
	}
}

// LoadHex returns the octets of a hex fixture from testdata.
func LoadHex(t *testing.T, rel string) []byte {
	t.Helper()
	return MustHex(t, strings.TrimSpace(string(readTestdata(t, rel))))
}

// MustHex parses hex, tolerating separators.
func MustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := wire.ParseHex(s)
	if err != nil {
		t.Fatalf("parse hex %q: %v", s, err)
	}
	return b
}

// Address builds a link-layer address or fails the test.
func Address(t *testing.T, man string, id uint32, version byte, dt address.DeviceType) address.SecondaryAddress {
	t.Helper()
	a, err := address.New(man, id, version, dt, address.LinkLayer)
	if err != nil {
		t.Fatalf("address %s %d: %v", man, id, err)
	}
	return a
}

// LinkFrame prepends L, C = 0x44 and the link-layer address to an
// application payload starting at the CI field.
func LinkFrame(addr address.SecondaryAddress, payload []byte) []byte {
	b := []byte{0, 0x44}
	b = append(b, addr.WithOrder(address.LinkLayer).Bytes()...)
	b = append(b, payload...)
	b[0] = byte(len(b) - 1)
	return b
}

// PlainFrame is a CI 0x78 telegram from addr carrying PlainRecords.
func PlainFrame(t *testing.T, addr address.SecondaryAddress) []byte {
	t.Helper()
	return LinkFrame(addr, append([]byte{0x78}, MustHex(t, PlainRecords)...))
}

func readTestdata(t *testing.T, rel string) []byte {
	t.Helper()
	candidates := []string{
		filepath.Join("testdata", rel),
		filepath.Join("..", "testdata", rel),
		filepath.Join("..", "..", "testdata", rel),
	}
	for _, path := range candidates {
		if data, err := os.ReadFile(path); err == nil {
			return data
		}
	}
	t.Fatalf("unable to locate testdata file %s", rel)
	return nil
}
