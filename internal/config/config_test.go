package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/d21d3q/wmbusd/internal/frame"
	"github.com/d21d3q/wmbusd/internal/keystore"
)

const sample = `
log_level: debug
metrics_addr: ":9108"
keys_file: /etc/wmbus/keys.yaml
keys:
  "B409868686861307": "000102030405060708090A0B0C0D0E0F"
redis:
  addr: localhost:6379
  db: 2
database: /var/lib/wmbus/readings.sqlite
compact_cache_size: 64
trust_ell_plain_crc: false
dongles:
  - name: attic
    type: amber
    transport: serial
    address: /dev/ttyUSB0
    baud_rate: 9600
    reset_threshold: 3
    fragment_timeout: 250ms
  - type: cul
    transport: tcp
    address: 192.168.1.20:2323
    mode: C
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wmbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(New(), writeConfig(t, sample))
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, cfg.Level())
	require.Equal(t, ":9108", cfg.MetricsAddr)
	require.Equal(t, "/etc/wmbus/keys.yaml", cfg.KeysFile)
	require.Equal(t, "000102030405060708090A0B0C0D0E0F", cfg.Keys["b409868686861307"])
	require.Equal(t, 64, cfg.CompactCacheSize)
	require.False(t, cfg.TrustELLPlainCRC)

	require.True(t, cfg.Redis.Enabled())
	opts := cfg.Redis.Options()
	require.Equal(t, 2, opts.DB)
	require.Equal(t, keystore.DefaultRedisPrefix, opts.Prefix)
	require.Equal(t, 500*time.Millisecond, opts.Timeout)

	require.Len(t, cfg.Dongles, 2)
	attic := cfg.Dongles[0]
	require.Equal(t, "attic", attic.Name)
	require.Equal(t, 250*time.Millisecond, attic.ReceiverOptions().FragmentTimeout)
	require.Equal(t, 3, attic.ReceiverOptions().ResetThreshold)
	require.Equal(t, 9600, attic.SerialParams().BaudRate)

	cul := cfg.Dongles[1]
	require.Equal(t, "cul1", cul.Name)
	require.Equal(t, TransportTCP, cul.Transport)
	require.Equal(t, "C", cul.ReceiverOptions().Mode)
	require.Equal(t, 5*time.Second, cul.DialTimeout)
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)
	require.Equal(t, logrus.InfoLevel, cfg.Level())
	require.Equal(t, frame.DefaultCompactCacheSize, cfg.CompactCacheSize)
	require.True(t, cfg.TrustELLPlainCRC)
	require.False(t, cfg.Redis.Enabled())
	require.Empty(t, cfg.Dongles)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("WMBUS_LOG_LEVEL", "warn")
	t.Setenv("WMBUS_REDIS_ADDR", "redis:6379")
	cfg, err := Load(New(), writeConfig(t, "log_level: debug\n"))
	require.NoError(t, err)
	require.Equal(t, logrus.WarnLevel, cfg.Level())
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestValidate(t *testing.T) {
	_, err := Load(New(), writeConfig(t, `
log_level: loud
dongles:
  - name: a
    type: zigbee
    address: /dev/ttyUSB0
  - name: a
    type: amber
    transport: carrier-pigeon
  - name: b
    type: cul
    mode: X
    address: /dev/ttyACM0
`))
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, "not a valid logrus Level")
	require.Contains(t, msg, `unknown dongle type "zigbee"`)
	require.Contains(t, msg, `dongle "a" configured twice`)
	require.Contains(t, msg, `unknown transport "carrier-pigeon"`)
	require.Contains(t, msg, `dongle "a": address is required`)
	require.Contains(t, msg, `unsupported CUL mode "X"`)

	_, err = Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
