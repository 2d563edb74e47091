package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/d21d3q/wmbusd/internal/config"
	"github.com/d21d3q/wmbusd/internal/crypto"
	"github.com/d21d3q/wmbusd/internal/keystore"
)

// openKeyStore chains inline keys, the key file and Redis, in that order.
// The returned func releases the Redis client.
func openKeyStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (crypto.KeyStore, func(), error) {
	var chain keystore.Chain
	closeFn := func() {}
	if len(cfg.Keys) > 0 {
		m, err := keystore.FromMap(cfg.Keys)
		if err != nil {
			return nil, closeFn, err
		}
		chain = append(chain, m)
	}
	if cfg.KeysFile != "" {
		m, err := keystore.LoadYAML(cfg.KeysFile)
		if err != nil {
			return nil, closeFn, err
		}
		log.WithFields(logrus.Fields{"path": cfg.KeysFile, "keys": m.Len()}).Info("loaded key file")
		chain = append(chain, m)
	}
	if cfg.Redis.Enabled() {
		ks, client, err := keystore.DialRedis(ctx, cfg.Redis.Options(), log)
		if err != nil {
			return nil, closeFn, err
		}
		closeFn = func() { _ = client.Close() }
		log.WithField("addr", cfg.Redis.Addr).Info("using redis key store")
		chain = append(chain, ks)
	}
	if len(chain) == 0 {
		return nil, closeFn, nil
	}
	return chain, closeFn, nil
}
