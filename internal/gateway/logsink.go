package gateway

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogSink writes each reading as one log line.
type LogSink struct {
	Log logrus.FieldLogger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Publish(_ context.Context, r Reading) error {
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	fields := logrus.Fields{
		"dongle":       r.Dongle,
		"address":      r.Address.String(),
		"device_id":    r.Address.DeviceID(),
		"manufacturer": r.Address.ManufacturerID(),
	}
	if r.HasRSSI {
		fields["rssi"] = r.RSSI
	}
	entry := log.WithFields(fields)
	switch {
	case r.Undecrypted():
		entry.WithError(r.Err).Warn("undecrypted reading")
	case r.Data != nil:
		values := make([]string, 0, len(r.Data.Records))
		for _, rec := range r.Data.Records {
			values = append(values, rec.String())
		}
		entry.WithField("records", len(values)).Info(strings.Join(values, ", "))
	default:
		values := make([]string, 0, len(r.VendorRecords))
		for _, rec := range r.VendorRecords {
			values = append(values, rec.String())
		}
		entry.WithField("vendor", r.Vendor).Info(strings.Join(values, ", "))
	}
	return nil
}
