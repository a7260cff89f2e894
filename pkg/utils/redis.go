package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig tunes the client. Zero fields take defaults.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	PingTimeout  time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 3 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 2 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Second
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 2 * time.Second
	}
	return c
}

// OpenRedis builds a client and checks it with PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	cfg = cfg.withDefaults()

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Leases live in a sorted set: member = lease token, score = expiry in unix ms.
// Expired members are dropped before every count, so a crashed holder frees
// its lease after ttl without any cleanup job.
var leaseAcquireScript = redis.NewScript(`
-- KEYS[1] = lease set
-- ARGV[1] = limit, ARGV[2] = now_ms, ARGV[3] = ttl_ms, ARGV[4] = token
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
if redis.call('ZSCORE', KEYS[1], ARGV[4]) then
  redis.call('ZADD', KEYS[1], tonumber(ARGV[2]) + tonumber(ARGV[3]), ARGV[4])
  return 1
end
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('ZADD', KEYS[1], tonumber(ARGV[2]) + tonumber(ARGV[3]), ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

var leaseRenewScript = redis.NewScript(`
-- KEYS[1] = lease set
-- ARGV[1] = now_ms, ARGV[2] = ttl_ms, ARGV[3] = token
if not redis.call('ZSCORE', KEYS[1], ARGV[3]) then
  return 0
end
redis.call('ZADD', KEYS[1], tonumber(ARGV[1]) + tonumber(ARGV[2]), ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

var leaseCountScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
return redis.call('ZCARD', KEYS[1])
`)

func checkLeaseArgs(rdb *redis.Client, key, token string) error {
	if rdb == nil {
		return errors.New("redis client is nil")
	}
	if key == "" {
		return errors.New("lease key is required")
	}
	if token == "" {
		return errors.New("lease token is required")
	}
	return nil
}

// AcquireLease takes one of limit leases under key for token. Acquiring a
// token that already holds a lease extends it and succeeds.
func AcquireLease(ctx context.Context, rdb *redis.Client, key, token string, limit int, ttl time.Duration, now time.Time) (bool, error) {
	if err := checkLeaseArgs(rdb, key, token); err != nil {
		return false, err
	}
	if limit <= 0 {
		return false, errors.New("lease limit must be > 0")
	}
	if ttl <= 0 {
		return false, errors.New("lease ttl must be > 0")
	}
	res, err := leaseAcquireScript.Run(ctx, rdb, []string{key}, limit, now.UnixMilli(), ttl.Milliseconds(), token).Int()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return res == 1, nil
}

// RenewLease pushes the expiry of a held lease; false means it already expired.
func RenewLease(ctx context.Context, rdb *redis.Client, key, token string, ttl time.Duration, now time.Time) (bool, error) {
	if err := checkLeaseArgs(rdb, key, token); err != nil {
		return false, err
	}
	res, err := leaseRenewScript.Run(ctx, rdb, []string{key}, now.UnixMilli(), ttl.Milliseconds(), token).Int()
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return res == 1, nil
}

// ReleaseLease drops token's lease. Releasing an unknown token is not an error.
func ReleaseLease(ctx context.Context, rdb *redis.Client, key, token string) error {
	if err := checkLeaseArgs(rdb, key, token); err != nil {
		return err
	}
	if err := rdb.ZRem(ctx, key, token).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// CountLeases returns the number of unexpired leases under key.
func CountLeases(ctx context.Context, rdb *redis.Client, key string, now time.Time) (int, error) {
	if rdb == nil {
		return 0, errors.New("redis client is nil")
	}
	n, err := leaseCountScript.Run(ctx, rdb, []string{key}, now.UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("count leases: %w", err)
	}
	return n, nil
}
