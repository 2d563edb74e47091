// Package gateway joins dongle connections, the telegram decoder, the vendor
// decoder chain and the reading sinks.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/d21d3q/wmbusd/internal/address"
	"github.com/d21d3q/wmbusd/internal/crypto"
	"github.com/d21d3q/wmbusd/internal/dongle"
	"github.com/d21d3q/wmbusd/internal/frame"
	"github.com/d21d3q/wmbusd/internal/metrics"
	"github.com/d21d3q/wmbusd/internal/vendor"
)

// Outcome labels of the decode outcome counter.
const (
	OutcomeDecoded               = "decoded"
	OutcomeVendor                = "vendor"
	OutcomeMalformed             = "malformed"
	OutcomeUnsupported           = "unsupported"
	OutcomeKeyNotFound           = "key_not_found"
	OutcomeDecryptionFailed      = "decryption_failed"
	OutcomeUnsupportedEncryption = "unsupported_encryption"
	OutcomeFailed                = "failed"
)

// Reading is one received telegram after decoding. Exactly one of Data and
// VendorRecords is set unless Err reports that the telegram stayed
// encrypted.
type Reading struct {
	Dongle   string
	Address  address.SecondaryAddress
	Received time.Time
	RSSI     int
	HasRSSI  bool
	Raw      []byte

	Data          *frame.VariableDataStructure
	Vendor        string
	VendorRecords []vendor.Record

	// Err is crypto.ErrKeyNotFound or crypto.ErrDecryptionFailed for
	// telegrams published undecrypted.
	Err error
}

// Undecrypted reports whether the reading carries no values because its key
// was missing or wrong.
func (r Reading) Undecrypted() bool { return r.Err != nil }

// Sink receives readings. Publish is called from the delivery goroutine of
// one dongle at a time per Gateway.
type Sink interface {
	Name() string
	Publish(ctx context.Context, r Reading) error
}

// Gateway decodes frames and fans readings out to sinks.
type Gateway struct {
	decoder *frame.Decoder
	chain   *vendor.Chain
	sinks   []Sink
	log     logrus.FieldLogger
}

func New(decoder *frame.Decoder, chain *vendor.Chain, log logrus.FieldLogger, sinks ...Sink) *Gateway {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if decoder == nil {
		decoder = frame.NewDecoder(nil)
	}
	if chain == nil {
		chain = vendor.Default()
	}
	return &Gateway{decoder: decoder, chain: chain, sinks: sinks, log: log}
}

// Listener adapts the gateway to a dongle connection named name.
func (g *Gateway) Listener(ctx context.Context, name string) dongle.Listener {
	log := g.log.WithField("dongle", name)
	return dongle.ListenerFuncs{
		OnFrame: func(f dongle.RawFrame) {
			_, _ = g.HandleFrame(ctx, name, f)
		},
		OnDiscarded: func(b []byte) {
			log.WithField("octets", len(b)).Debug("discarded octets")
		},
		OnClosed: func(err error) {
			log.WithError(err).Warn("dongle stream closed")
		},
	}
}

// HandleFrame decodes one frame and publishes the reading. The returned
// outcome is one of the Outcome labels.
func (g *Gateway) HandleFrame(ctx context.Context, name string, f dongle.RawFrame) (string, error) {
	start := time.Now()
	r, outcome, err := g.decode(name, f)
	metrics.ObserveDecodeLatency(start)
	metrics.DecodeOutcomes.WithLabelValues(outcome).Inc()

	log := g.log.WithFields(logrus.Fields{"dongle": name, "outcome": outcome})
	if r != nil {
		log = log.WithFields(logrus.Fields{
			"device_id":    r.Address.DeviceID(),
			"manufacturer": r.Address.ManufacturerID(),
		})
	}
	if err != nil && r == nil {
		log.WithError(err).Debug("frame not decoded")
		return outcome, err
	}
	if err != nil {
		log.WithError(err).Info("publishing undecrypted reading")
	}
	g.publish(ctx, *r)
	return outcome, err
}

func (g *Gateway) decode(name string, f dongle.RawFrame) (*Reading, string, error) {
	tel, err := frame.ParseLinkLayer(f.Payload)
	if err != nil {
		return nil, OutcomeMalformed, err
	}
	received := f.Received
	if received.IsZero() {
		received = time.Now()
	}
	r := &Reading{
		Dongle:   name,
		Address:  tel.Address,
		Received: received,
		RSSI:     f.RSSI,
		HasRSSI:  f.HasRSSI,
		Raw:      f.Payload,
	}

	vds := tel.VariableDataStructure()
	err = vds.Decode(g.decoder)
	switch {
	case err == nil:
		r.Address = vds.Address()
		r.Data = vds
		return r, OutcomeDecoded, nil
	case errors.Is(err, frame.ErrUnsupportedCI), errors.Is(err, frame.ErrManufacturerSpecific):
		vf := vendor.Frame{Telegram: tel, RSSI: f.RSSI, HasRSSI: f.HasRSSI, Received: received}
		dec, recs, ok := g.chain.Decode(vf)
		if !ok {
			return nil, OutcomeUnsupported, err
		}
		r.Vendor, r.VendorRecords = dec, recs
		return r, OutcomeVendor, nil
	case errors.Is(err, crypto.ErrKeyNotFound):
		r.Address, r.Err = vds.Address(), err
		return r, OutcomeKeyNotFound, err
	case errors.Is(err, crypto.ErrDecryptionFailed):
		r.Address, r.Err = vds.Address(), err
		return r, OutcomeDecryptionFailed, err
	case errors.Is(err, frame.ErrUnsupportedEncryptionMode):
		return nil, OutcomeUnsupportedEncryption, err
	case errors.Is(err, frame.ErrMalformedFrame):
		return nil, OutcomeMalformed, err
	default:
		return nil, OutcomeFailed, err
	}
}

func (g *Gateway) publish(ctx context.Context, r Reading) {
	for _, s := range g.sinks {
		if err := s.Publish(ctx, r); err != nil {
			metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
			g.log.WithError(err).WithField("sink", s.Name()).Error("publish reading")
		}
	}
}
