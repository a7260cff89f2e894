package dialer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"voiceagents/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Slots caps the number of calls in flight across all campaigns.
// A token is acquired before dispatch and released once the outcome is
// recorded.
type Slots interface {
	Acquire(ctx context.Context, token string) error
	Release(token string)
}

// LocalSlots is an in-process semaphore for single-instance deployments.
type LocalSlots struct {
	sem  chan struct{}
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalSlots(n int) *LocalSlots {
	if n <= 0 {
		n = 1
	}
	return &LocalSlots{sem: make(chan struct{}, n), held: map[string]struct{}{}}
}

func (s *LocalSlots) Acquire(ctx context.Context, token string) error {
	s.mu.Lock()
	if _, ok := s.held[token]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	s.held[token] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Release frees token's slot. Unknown tokens are ignored.
func (s *LocalSlots) Release(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.held[token]; !ok {
		return
	}
	delete(s.held, token)
	<-s.sem
}

// InUse reports the number of held slots.
func (s *LocalSlots) InUse() int { return len(s.sem) }

// RedisSlots shares the cap between instances through a Redis lease set.
// Leases are renewed while held and expire on their own if the holder dies.
type RedisSlots struct {
	rdb      *redis.Client
	key      string
	limit    int
	ttl      time.Duration
	poll     time.Duration
	instance string
	log      *slog.Logger
	clock    func() time.Time

	mu      sync.Mutex
	renewal map[string]context.CancelFunc
}

type RedisSlotsConfig struct {
	Key      string
	Limit    int
	TTL      time.Duration
	Poll     time.Duration
	Instance string
}

func NewRedisSlots(rdb *redis.Client, cfg RedisSlotsConfig, log *slog.Logger) (*RedisSlots, error) {
	if rdb == nil {
		return nil, errors.New("dialer: redis client required for redis slots")
	}
	if cfg.Limit <= 0 {
		return nil, errors.New("dialer: slot limit must be > 0")
	}
	if cfg.Key == "" {
		cfg.Key = "dialer:inflight"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 500 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisSlots{
		rdb: rdb, key: cfg.Key, limit: cfg.Limit, ttl: cfg.TTL, poll: cfg.Poll,
		instance: cfg.Instance, log: log, clock: time.Now,
		renewal: map[string]context.CancelFunc{},
	}, nil
}

func (s *RedisSlots) lease(token string) string {
	if s.instance == "" {
		return token
	}
	return s.instance + ":" + token
}

// Acquire polls until a lease is free or ctx is done.
func (s *RedisSlots) Acquire(ctx context.Context, token string) error {
	lease := s.lease(token)
	for {
		ok, err := utils.AcquireLease(ctx, s.rdb, s.key, lease, s.limit, s.ttl, s.clock())
		if err != nil {
			s.log.Warn("slot acquire failed", "token", token, "err", err)
		}
		if ok {
			s.startRenewal(token, lease)
			return nil
		}
		t := time.NewTimer(s.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *RedisSlots) startRenewal(token, lease string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if prev, ok := s.renewal[token]; ok {
		prev()
	}
	s.renewal[token] = cancel
	s.mu.Unlock()

	go func() {
		tick := time.NewTicker(s.ttl / 3)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				ok, err := utils.RenewLease(ctx, s.rdb, s.key, lease, s.ttl, s.clock())
				if err != nil && ctx.Err() == nil {
					s.log.Warn("slot renew failed", "token", token, "err", err)
				} else if !ok && ctx.Err() == nil {
					s.log.Warn("slot lease lost", "token", token)
				}
			}
		}
	}()
}

func (s *RedisSlots) Release(token string) {
	s.mu.Lock()
	if cancel, ok := s.renewal[token]; ok {
		cancel()
		delete(s.renewal, token)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := utils.ReleaseLease(ctx, s.rdb, s.key, s.lease(token)); err != nil {
		s.log.Warn("slot release failed", "token", token, "err", err)
	}
}
