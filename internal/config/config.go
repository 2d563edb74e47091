// Package config loads the wmbus daemon configuration from a YAML file,
// WMBUS_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/d21d3q/wmbusd/internal/dongle"
	"github.com/d21d3q/wmbusd/internal/frame"
	"github.com/d21d3q/wmbusd/internal/keystore"
)

const EnvPrefix = "WMBUS"

const (
	TransportTCP    = "tcp"
	TransportSerial = "serial"
)

type Config struct {
	LogLevel         string            `mapstructure:"log_level"`
	MetricsAddr      string            `mapstructure:"metrics_addr"`
	KeysFile         string            `mapstructure:"keys_file"`
	Keys             map[string]string `mapstructure:"keys"`
	Redis            RedisConfig       `mapstructure:"redis"`
	Database         string            `mapstructure:"database"`
	CompactCacheSize int               `mapstructure:"compact_cache_size"`
	TrustELLPlainCRC bool              `mapstructure:"trust_ell_plain_crc"`
	Dongles          []DongleConfig    `mapstructure:"dongles"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type DongleConfig struct {
	Name            string        `mapstructure:"name"`
	Type            string        `mapstructure:"type"`      // amber | imst | radiocrafts | cul
	Transport       string        `mapstructure:"transport"` // tcp | serial
	Address         string        `mapstructure:"address"`
	BaudRate        int           `mapstructure:"baud_rate"`
	Mode            string        `mapstructure:"mode"`
	NoRSSI          bool          `mapstructure:"no_rssi"`
	ResetThreshold  int           `mapstructure:"reset_threshold"`
	FragmentTimeout time.Duration `mapstructure:"fragment_timeout"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
}

// New returns a viper instance with defaults and environment binding. Only
// keys with a default or a file value are picked up from the environment.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("keys_file", "")
	v.SetDefault("database", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("compact_cache_size", frame.DefaultCompactCacheSize)
	v.SetDefault("trust_ell_plain_crc", true)
	v.SetDefault("redis.prefix", keystore.DefaultRedisPrefix)
	v.SetDefault("redis.timeout", 500*time.Millisecond)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, when given, into v and decodes the result.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	for i := range cfg.Dongles {
		cfg.Dongles[i].applyDefaults(i)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (d *DongleConfig) applyDefaults(i int) {
	if d.Name == "" {
		d.Name = fmt.Sprintf("%s%d", strings.ToLower(d.Type), i)
	}
	if d.Transport == "" {
		d.Transport = TransportSerial
	}
	if d.DialTimeout <= 0 {
		d.DialTimeout = 5 * time.Second
	}
}

func (c Config) Validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.CompactCacheSize < 0 {
		errs = append(errs, fmt.Errorf("compact_cache_size must not be negative"))
	}
	names := make(map[string]bool, len(c.Dongles))
	for _, d := range c.Dongles {
		if names[d.Name] {
			errs = append(errs, fmt.Errorf("dongle %q configured twice", d.Name))
		}
		names[d.Name] = true
		if _, err := dongle.New(d.Type, d.ReceiverOptions()); err != nil {
			errs = append(errs, fmt.Errorf("dongle %q: %w", d.Name, err))
		}
		switch d.Transport {
		case TransportTCP, TransportSerial:
		default:
			errs = append(errs, fmt.Errorf("dongle %q: unknown transport %q", d.Name, d.Transport))
		}
		if d.Address == "" {
			errs = append(errs, fmt.Errorf("dongle %q: address is required", d.Name))
		}
	}
	return errors.Join(errs...)
}

// Level is the parsed log level; Validate has checked it.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func (d DongleConfig) ReceiverOptions() dongle.Options {
	return dongle.Options{
		FragmentTimeout: d.FragmentTimeout,
		ResetThreshold:  d.ResetThreshold,
		Mode:            d.Mode,
		NoRSSI:          d.NoRSSI,
	}
}

func (d DongleConfig) SerialParams() dongle.SerialParams {
	return dongle.SerialParams{Address: d.Address, BaudRate: d.BaudRate}
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

func (r RedisConfig) Options() keystore.RedisOptions {
	return keystore.RedisOptions{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
		Prefix:   r.Prefix,
		Timeout:  r.Timeout,
	}
}
