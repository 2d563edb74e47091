package wmbus

import (
	"context"
	"time"

	"github.com/d21d3q/wmbusd/internal/address"
	"github.com/d21d3q/wmbusd/internal/crypto"
	"github.com/d21d3q/wmbusd/internal/frame"
	"github.com/d21d3q/wmbusd/internal/keystore"
	internalopts "github.com/d21d3q/wmbusd/internal/options"
	"github.com/d21d3q/wmbusd/internal/vendor"
)

// AnalyzeOptions configures parsing.
type AnalyzeOptions struct {
	// KeyHex is tried for every telegram, before KeyStore and any key store
	// attached to the context.
	KeyHex   string
	KeyStore crypto.KeyStore
	// Compact resolves compact frames against earlier full frames.
	Compact *frame.CompactCache
	// Vendors decodes manufacturer dialects; nil selects vendor.Default().
	Vendors *vendor.Chain
	// Received dates vendor readings whose dates carry no year.
	Received time.Time
}

func (opts AnalyzeOptions) decoder(ctx context.Context) (*frame.Decoder, error) {
	key, err := internalopts.ParseKeyHex(opts.KeyHex)
	if err != nil {
		return nil, err
	}
	var keys keystore.Chain
	if key != nil {
		keys = append(keys, keystore.Static(key))
	}
	if opts.KeyStore != nil {
		keys = append(keys, opts.KeyStore)
	}
	if ks := internalopts.KeyStore(ctx); ks != nil {
		keys = append(keys, ks)
	}
	d := frame.NewDecoder(keys)
	d.Compact = opts.Compact
	return d, nil
}

func (opts AnalyzeOptions) chain() *vendor.Chain {
	if opts.Vendors == nil {
		return vendor.Default()
	}
	return opts.Vendors
}

func (opts AnalyzeOptions) now() time.Time {
	if opts.Received.IsZero() {
		return time.Now()
	}
	return opts.Received
}

// WithKeyStore attaches a key store that Analyze consults for every
// telegram analysed with ctx.
func WithKeyStore(ctx context.Context, ks crypto.KeyStore) context.Context {
	return internalopts.WithKeyStore(ctx, ks)
}

func addAddressFields(fields map[string]any, a address.SecondaryAddress) {
	fields["meter_id"] = a.DeviceID()
	fields["manufacturer"] = a.ManufacturerID()
	fields["version"] = int64(a.Version())
	fields["device_type"] = a.DeviceType().String()
}
