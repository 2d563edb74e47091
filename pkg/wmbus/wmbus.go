// Package wmbus decodes single wireless or wired M-Bus telegrams.
package wmbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/d21d3q/wmbusd/internal/crypto"
	"github.com/d21d3q/wmbusd/internal/frame"
	"github.com/d21d3q/wmbusd/internal/vendor"
	"github.com/d21d3q/wmbusd/internal/wire"
)

const (
	// DecoderGeneric marks telegrams decoded as a variable data structure.
	DecoderGeneric = "generic"
	DecoderUnknown = "unknown"

	wiredStart = 0x68
)

// Result captures the outcome of an analysis.
type Result struct {
	Decoder   string
	RawHex    string
	ByteCount int
	// Telegram is set for wireless frames, Wired for wired long frames.
	Telegram *frame.Telegram
	Wired    *frame.WiredFrame
	// Data is the decoded structure; on failure it still carries the
	// header fields read before the error.
	Data          *frame.VariableDataStructure
	VendorRecords []vendor.Record

	fields map[string]any
}

// Fields returns typed accessors over the flat field map.
func (r Result) Fields() FieldSet {
	return FieldSet{data: r.fields}
}

// String renders a human-readable representation of the result.
func (r Result) String() string {
	summary := map[string]any{
		"decoder":    r.Decoder,
		"byte_count": r.ByteCount,
		"raw_hex":    r.RawHex,
	}
	if len(r.fields) > 0 {
		summary["fields"] = r.fields
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Sprintf("decoder: %s bytes:%d raw:%s (marshal error: %v)", r.Decoder, r.ByteCount, r.RawHex, err)
	}
	return string(data)
}

// AnalyzeHex parses a hex telegram and returns decoded data.
func AnalyzeHex(ctx context.Context, raw string) (Result, error) {
	return AnalyzeHexWithOptions(ctx, raw, AnalyzeOptions{})
}

// AnalyzeHexWithOptions parses the telegram with custom options.
func AnalyzeHexWithOptions(ctx context.Context, raw string, opts AnalyzeOptions) (Result, error) {
	data, err := wire.ParseHex(raw)
	if err != nil {
		return Result{}, err
	}
	return AnalyzeWithOptions(ctx, data, opts)
}

// Analyze decodes a telegram. Frames starting with 0x68 are taken as wired
// long frames, anything else as a wireless frame starting at its L field.
func Analyze(ctx context.Context, data []byte) (Result, error) {
	return AnalyzeWithOptions(ctx, data, AnalyzeOptions{})
}

func AnalyzeWithOptions(ctx context.Context, data []byte, opts AnalyzeOptions) (Result, error) {
	decoder, err := opts.decoder(ctx)
	if err != nil {
		return Result{}, err
	}
	result := Result{
		Decoder:   DecoderUnknown,
		RawHex:    wire.Hex(data),
		ByteCount: len(data),
		fields:    map[string]any{},
	}
	if len(data) > 0 && data[0] == wiredStart {
		return analyzeWired(decoder, data, result)
	}

	telegram, err := frame.ParseLinkLayer(data)
	if err != nil {
		return Result{}, err
	}
	result.Telegram = &telegram
	addAddressFields(result.fields, telegram.Address)
	result.fields["ci"] = fmt.Sprintf("0x%02X", telegram.CI)

	vds := telegram.VariableDataStructure()
	result.Data = vds
	err = vds.Decode(decoder)
	switch {
	case err == nil:
		result.Decoder = DecoderGeneric
		addAddressFields(result.fields, vds.Address())
		addStructureFields(result.fields, vds)
		return result, nil
	case errors.Is(err, frame.ErrUnsupportedCI), errors.Is(err, frame.ErrManufacturerSpecific):
		name, recs, ok := opts.chain().Decode(vendor.Frame{Telegram: telegram, Received: opts.now()})
		if !ok {
			// unknown dialects are reported, not failed
			return result, nil
		}
		result.Decoder = name
		result.VendorRecords = recs
		addVendorFields(result.fields, recs)
		return result, nil
	case errors.Is(err, crypto.ErrKeyNotFound):
		addHeaderFields(result.fields, vds)
		result.fields["encryption"] = err.Error()
		return result, nil
	default:
		addHeaderFields(result.fields, vds)
		return result, err
	}
}

func analyzeWired(decoder *frame.Decoder, data []byte, result Result) (Result, error) {
	wired, err := frame.ParseWiredFrame(data)
	if err != nil {
		return Result{}, err
	}
	result.Wired = &wired
	result.fields["primary_address"] = int64(wired.PrimaryAddress)
	result.fields["ci"] = fmt.Sprintf("0x%02X", wired.CI)
	vds := wired.VariableDataStructure()
	result.Data = vds
	if err := vds.Decode(decoder); err != nil {
		return result, err
	}
	result.Decoder = DecoderGeneric
	if vds.LongHeader != nil {
		addAddressFields(result.fields, *vds.LongHeader)
	}
	addStructureFields(result.fields, vds)
	return result, nil
}

func addHeaderFields(fields map[string]any, vds *frame.VariableDataStructure) {
	fields["access_number"] = int64(vds.AccessNumber)
	fields["status"] = int64(vds.Status)
	fields["encryption_mode"] = vds.EncryptionMode.String()
}

func addStructureFields(fields map[string]any, vds *frame.VariableDataStructure) {
	addHeaderFields(fields, vds)
	for k, v := range frame.StatusFlags(vds.Status) {
		fields[k] = v
	}
	for _, rec := range vds.Records {
		name := uniqueName(fields, rec.Name())
		if v, err := rec.ScaledValue(); err == nil {
			fields[name] = v
		} else {
			fields[name] = rec.FormatValue()
		}
		if u := rec.Unit.Symbol(); u != "" {
			fields[name+"_unit"] = u
		}
	}
	if len(vds.ManufacturerData) > 0 {
		fields["manufacturer_data"] = wire.Hex(vds.ManufacturerData)
	}
	if vds.MoreRecordsFollow {
		fields["more_records_follow"] = true
	}
}

func addVendorFields(fields map[string]any, recs []vendor.Record) {
	for _, rec := range recs {
		name := uniqueName(fields, rec.Kind.String())
		switch v := rec.Value.(type) {
		case time.Time:
			fields[name] = strings.TrimSuffix(v.Format("2006-01-02T15:04:05"), "T00:00:00")
		default:
			fields[name] = v
		}
	}
}

// uniqueName suffixes repeated names with _2, _3 and so on.
func uniqueName(fields map[string]any, name string) string {
	if _, taken := fields[name]; !taken {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if _, taken := fields[candidate]; !taken {
			return candidate
		}
	}
}
