package frame

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/d21d3q/wmbusd/internal/address"
	"github.com/d21d3q/wmbusd/internal/records"
	"github.com/d21d3q/wmbusd/internal/wire"
)

// DefaultCompactCacheSize bounds the number of devices remembered.
const DefaultCompactCacheSize = 1024

// CompactCache keeps the last full record list per device so later compact
// frames (CI 0x79) can be expanded. Least recently used devices are evicted.
type CompactCache struct {
	entries *lru.Cache[address.Key, []records.DataRecord]
}

func NewCompactCache(capacity int) *CompactCache {
	if capacity <= 0 {
		capacity = DefaultCompactCacheSize
	}
	entries, err := lru.New[address.Key, []records.DataRecord](capacity)
	if err != nil {
		panic(err)
	}
	return &CompactCache{entries: entries}
}

// Put stores recs for addr, replacing the previous list.
func (c *CompactCache) Put(addr address.SecondaryAddress, recs []records.DataRecord) {
	if c == nil || len(recs) == 0 {
		return
	}
	c.entries.Add(addr.Key(), append([]records.DataRecord(nil), recs...))
}

func (c *CompactCache) Get(addr address.SecondaryAddress) ([]records.DataRecord, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(addr.Key())
}

func (c *CompactCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// FormatSignature is the CRC over the concatenated DIB and VIB octets.
func FormatSignature(recs []records.DataRecord) uint16 {
	var buf []byte
	for _, r := range recs {
		buf = append(buf, r.DIB...)
		buf = append(buf, r.VIB...)
	}
	return wire.CRC16(buf)
}

// FullFrameCRC is the CRC over the records as a full frame would carry them.
func FullFrameCRC(recs []records.DataRecord) uint16 {
	var buf []byte
	for _, r := range recs {
		buf = append(buf, r.Bytes()...)
	}
	return wire.CRC16(buf)
}
