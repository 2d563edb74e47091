package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/d21d3q/wmbusd/internal/config"
	"github.com/d21d3q/wmbusd/internal/dongle"
	"github.com/d21d3q/wmbusd/internal/frame"
	"github.com/d21d3q/wmbusd/internal/gateway"
	"github.com/d21d3q/wmbusd/internal/metrics"
	"github.com/d21d3q/wmbusd/internal/sink/sqlite"
	"github.com/d21d3q/wmbusd/internal/vendor"
)

const reconnectDelay = 5 * time.Second

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Receive telegrams from the configured dongles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runListen(cmd.Context(), loaded, logrus.StandardLogger())
	},
}

func runListen(ctx context.Context, cfg config.Config, log logrus.FieldLogger) error {
	if len(cfg.Dongles) == 0 {
		return errors.New("no dongles configured")
	}
	ks, closeKeys, err := openKeyStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeKeys()

	decoder := frame.NewDecoder(ks)
	decoder.Compact = frame.NewCompactCache(cfg.CompactCacheSize)
	decoder.TrustELLPlainCRC = cfg.TrustELLPlainCRC
	decoder.Log = log

	sinks := []gateway.Sink{gateway.LogSink{Log: log}}
	if cfg.Database != "" {
		db, err := sqlite.Open(cfg.Database, log)
		if err != nil {
			return err
		}
		defer db.Close()
		sinks = append(sinks, db)
	}
	gw := gateway.New(decoder, vendor.Default(), log, sinks...)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, log); err != nil {
				log.WithError(err).Error("metrics server failed")
			}
		}()
	}

	var wg sync.WaitGroup
	for _, d := range cfg.Dongles {
		wg.Add(1)
		go func(d config.DongleConfig) {
			defer wg.Done()
			superviseDongle(ctx, d, gw, log.WithField("dongle", d.Name))
		}(d)
	}
	wg.Wait()
	return nil
}

// superviseDongle keeps a dongle connection open until ctx is done,
// reopening it after the stream closes.
func superviseDongle(ctx context.Context, d config.DongleConfig, gw *gateway.Gateway, log logrus.FieldLogger) {
	for {
		conn, err := openDongle(ctx, d, gw, log)
		if err != nil {
			log.WithError(err).Error("open dongle")
		} else {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-conn.Done():
				_ = conn.Close()
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func openDongle(ctx context.Context, d config.DongleConfig, gw *gateway.Gateway, log logrus.FieldLogger) (*dongle.Conn, error) {
	rx, err := dongle.New(d.Type, d.ReceiverOptions())
	if err != nil {
		return nil, err
	}
	var tr dongle.Transport
	switch d.Transport {
	case config.TransportTCP:
		tr, err = dongle.DialTCP(ctx, d.Address, d.DialTimeout)
	case config.TransportSerial:
		tr, err = dongle.OpenSerial(d.SerialParams())
	default:
		err = fmt.Errorf("unknown transport %q", d.Transport)
	}
	if err != nil {
		return nil, err
	}
	return dongle.Open(d.Name, tr, rx, gw.Listener(ctx, d.Name), log)
}
