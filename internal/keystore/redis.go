package keystore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/d21d3q/wmbusd/internal/address"
	"github.com/d21d3q/wmbusd/internal/options"
)

// DefaultRedisPrefix namespaces key entries, e.g. "wmbus:key:B409868686861307".
const DefaultRedisPrefix = "wmbus:key:"

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Redis looks keys up in Redis, stored as hex strings under prefix plus the
// canonical address.
type Redis struct {
	client  redisClient
	prefix  string
	timeout time.Duration
	log     logrus.FieldLogger
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Timeout  time.Duration
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, opts RedisOptions, log logrus.FieldLogger) (*Redis, *redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedis(rdb, opts.Prefix, opts.Timeout, log), rdb, nil
}

func NewRedis(client redisClient, prefix string, timeout time.Duration, log logrus.FieldLogger) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Redis{client: client, prefix: prefix, timeout: timeout, log: log}
}

func (r *Redis) redisKey(addr address.SecondaryAddress) string {
	return r.prefix + addr.Key().String()
}

// Key fetches the key; lookup errors are logged and reported as a miss.
func (r *Redis) Key(addr address.SecondaryAddress) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	val, err := r.client.Get(ctx, r.redisKey(addr)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.log.WithError(err).WithField("address", addr.String()).Warn("redis key lookup failed")
		return nil, false
	}
	key, err := options.ParseKeyHex(val)
	if err != nil || key == nil {
		r.log.WithField("address", addr.String()).Warn("redis holds a malformed key")
		return nil, false
	}
	return key, true
}

// Put stores key for addr without expiry.
func (r *Redis) Put(ctx context.Context, addr address.SecondaryAddress, key []byte) error {
	if err := r.client.Set(ctx, r.redisKey(addr), hex.EncodeToString(key), 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", r.redisKey(addr), err)
	}
	return nil
}
