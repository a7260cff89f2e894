package dialer

import (
	"context"
	"testing"
	"time"

	"voiceagents/pkg/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalSlots_BlocksAtLimit(t *testing.T) {
	s := NewLocalSlots(1)
	ctx := context.Background()
	if err := s.Acquire(ctx, "a"); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	if err := s.Acquire(ctx, "a"); err != nil {
		t.Fatalf("reacquire a: %v", err)
	}
	if s.InUse() != 1 {
		t.Fatalf("in use = %d, want 1", s.InUse())
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := s.Acquire(short, "b"); err == nil {
		t.Fatalf("expected b to wait for a free slot")
	}

	s.Release("a")
	s.Release("unknown")
	if err := s.Acquire(ctx, "b"); err != nil {
		t.Fatalf("acquire b after release: %v", err)
	}
}

func newRedisSlots(t *testing.T, limit int) (*RedisSlots, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s, err := NewRedisSlots(rdb, RedisSlotsConfig{Key: "test:inflight", Limit: limit, TTL: time.Minute, Poll: 5 * time.Millisecond, Instance: "node1"}, nil)
	if err != nil {
		t.Fatalf("new redis slots: %v", err)
	}
	return s, rdb
}

func TestRedisSlots_SharedLimit(t *testing.T) {
	s, rdb := newRedisSlots(t, 2)
	ctx := context.Background()

	for _, tok := range []string{"a", "b"} {
		if err := s.Acquire(ctx, tok); err != nil {
			t.Fatalf("acquire %s: %v", tok, err)
		}
	}
	n, err := utils.CountLeases(ctx, rdb, "test:inflight", time.Now())
	if err != nil || n != 2 {
		t.Fatalf("leases = %d err=%v, want 2", n, err)
	}

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if err := s.Acquire(short, "c"); err == nil {
		t.Fatalf("expected c to be refused while both slots are held")
	}

	done := make(chan error, 1)
	go func() { done <- s.Acquire(ctx, "c") }()
	s.Release("a")
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("acquire c after release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("c never acquired a freed slot")
	}
	s.Release("b")
	s.Release("c")

	n, err = utils.CountLeases(ctx, rdb, "test:inflight", time.Now())
	if err != nil || n != 0 {
		t.Fatalf("leases after release = %d err=%v, want 0", n, err)
	}
}

func TestNewRedisSlots_Validates(t *testing.T) {
	if _, err := NewRedisSlots(nil, RedisSlotsConfig{Limit: 1}, nil); err == nil {
		t.Fatalf("expected error for nil client")
	}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	if _, err := NewRedisSlots(rdb, RedisSlotsConfig{}, nil); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
