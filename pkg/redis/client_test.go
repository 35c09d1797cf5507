package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/biddart/biddart-backend/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "bids:tenant-1:staff-1", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 1 {
		t.Fatalf("expected first request allowed, got allowed=%v count=%d", allowed, count)
	}
	if len(mock.expireCalls) != 1 || mock.expireCalls[0].key != "bd:rate_limit:bids:tenant-1:staff-1" || mock.expireCalls[0].ttl != time.Second {
		t.Fatalf("expected window expiry on the first hit, got %+v", mock.expireCalls)
	}

	allowed, count, err = client.FixedWindowAllow(ctx, "bids:tenant-1:staff-1", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 2 {
		t.Fatalf("unexpected second call state allowed=%v count=%d", allowed, count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expire should not be set again")
	}

	allowed, _, err = client.FixedWindowAllow(ctx, "bids:tenant-1:staff-1", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("expected limit reached")
	}
}

func TestSetNXRejectsExistingKey(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.IdempotencyKey("webhook:square", "evt-1")

	set, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || !set {
		t.Fatalf("expected first setnx to succeed, got set=%v err=%v", set, err)
	}
	set, err = client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || set {
		t.Fatalf("expected second setnx to be rejected, got set=%v err=%v", set, err)
	}
	if got, err := client.Get(ctx, key); err != nil || got != "1" {
		t.Fatalf("expected stored value, got %q err=%v", got, err)
	}
	if _, err := client.Get(ctx, client.IdempotencyKey("webhook:square", "evt-2")); err != redis.Nil {
		t.Fatalf("expected redis.Nil for a missing key, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "bd:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("scope"); got != "bd:rate_limit:scope" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.LockKey("cron-worker"); got != "bd:lock:cron-worker" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.IdempotencyKey("scope", ""); got != "bd:idempotency:scope" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
	if _, _, err := client.FixedWindowAllow(context.Background(), "x", 1, time.Second); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
	if _, err := client.CompareAndDelete(context.Background(), "k", "v"); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on uninitialized client should be a no-op, got %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options db=%d pool=%d dial=%v", opts.DB, opts.PoolSize, opts.DialTimeout)
	}
	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", Password: "pw", DB: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.Password != "pw" || opts.DB != 3 {
		t.Fatalf("unexpected address options %+v", opts)
	}
}

func TestCompareAndDeleteRespectsOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("cron-worker:prod")

	if _, err := client.SetNX(ctx, key, "owner-a", time.Minute); err != nil {
		t.Fatalf("setnx: %v", err)
	}
	deleted, err := client.CompareAndDelete(ctx, key, "owner-b")
	if err != nil || deleted {
		t.Fatalf("expected foreign owner to be ignored, got deleted=%v err=%v", deleted, err)
	}
	extended, err := client.CompareAndExpire(ctx, key, "owner-a", 2*time.Minute)
	if err != nil || !extended {
		t.Fatalf("expected owner to extend, got %v %v", extended, err)
	}
	if last := mock.expireCalls[len(mock.expireCalls)-1]; last.ttl != 2*time.Minute {
		t.Fatalf("unexpected ttl %v", last.ttl)
	}
	deleted, err = client.CompareAndDelete(ctx, key, "owner-a")
	if err != nil || !deleted {
		t.Fatalf("expected owner delete, got deleted=%v err=%v", deleted, err)
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected key removed, got %v", err)
	}
}

type mockCmdable struct {
	data        map[string]string
	counts      map[string]int64
	expireCalls []expireCall
	// loaded maps script SHAs to their source, like SCRIPT LOAD
	loaded map[string]string
	evals  int
}

type expireCall struct {
	key string
	ttl time.Duration
}

type noScriptError string

func (e noScriptError) Error() string { return string(e) }
func (noScriptError) RedisError()     {}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:   make(map[string]string),
		counts: make(map[string]int64),
		loaded: make(map[string]string),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) EvalSha(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	src, ok := m.loaded[sha]
	if !ok {
		return redis.NewCmdResult(nil, noScriptError("NOSCRIPT No matching script. Please use EVAL."))
	}
	return m.run(src, keys, args)
}

func (m *mockCmdable) Eval(ctx context.Context, src string, keys []string, args ...any) *redis.Cmd {
	m.evals++
	m.loaded[redis.NewScript(src).Hash()] = src
	return m.run(src, keys, args)
}

func (m *mockCmdable) EvalRO(ctx context.Context, src string, keys []string, args ...any) *redis.Cmd {
	return m.Eval(ctx, src, keys, args...)
}

func (m *mockCmdable) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *mockCmdable) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	out := make([]bool, len(hashes))
	for i, h := range hashes {
		_, out[i] = m.loaded[h]
	}
	return redis.NewBoolSliceResult(out, nil)
}

func (m *mockCmdable) ScriptLoad(_ context.Context, src string) *redis.StringCmd {
	sha := redis.NewScript(src).Hash()
	m.loaded[sha] = src
	return redis.NewStringResult(sha, nil)
}

// run emulates the scripts the client sends.
func (m *mockCmdable) run(src string, keys []string, args []any) *redis.Cmd {
	key := keys[0]
	millis := func(v any) time.Duration {
		ms, _ := v.(int64)
		return time.Duration(ms) * time.Millisecond
	}
	if src == fixedWindowSrc {
		m.counts[key]++
		if m.counts[key] == 1 {
			m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: millis(args[0])})
		}
		return redis.NewCmdResult(m.counts[key], nil)
	}
	if m.data[key] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch src {
	case compareAndDeleteSrc:
		delete(m.data, key)
	case compareAndExpireSrc:
		m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: millis(args[1])})
	case compareAndSwapSrc:
		m.data[key] = fmt.Sprint(args[1])
		m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: millis(args[2])})
	default:
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
	}
	return redis.NewCmdResult(int64(1), nil)
}

func TestScriptsLoadOnceThenRunBySHA(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	mock.data["k"] = "owner"

	for i := 0; i < 3; i++ {
		if _, err := client.CompareAndExpire(ctx, "k", "owner", time.Minute); err != nil {
			t.Fatalf("compare and expire: %v", err)
		}
	}
	if mock.evals != 1 {
		t.Fatalf("expected one EVAL after NOSCRIPT then EVALSHA, got %d", mock.evals)
	}
}

func TestCompareAndSwapRequiresOwnership(t *testing.T) {
	mock := newMockCmdable()
	client := &Client{store: mock}
	ctx := context.Background()
	mock.data["k"] = "pending"

	swapped, err := client.CompareAndSwap(ctx, "k", "other", "done", time.Hour)
	if err != nil || swapped {
		t.Fatalf("expected no swap for foreign value, got %v %v", swapped, err)
	}
	swapped, err = client.CompareAndSwap(ctx, "k", "pending", "done", time.Hour)
	if err != nil || !swapped {
		t.Fatalf("expected swap, got %v %v", swapped, err)
	}
	if mock.data["k"] != "done" {
		t.Fatalf("expected new value, got %q", mock.data["k"])
	}
	last := mock.expireCalls[len(mock.expireCalls)-1]
	if last.ttl != time.Hour {
		t.Fatalf("expected ttl reset to 1h, got %v", last.ttl)
	}
}
