package internal

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

var errTransient = errors.New("i/o timeout")

// fakeConn 记录每个命令的调用次数，可让指定命令的前N次调用失败
type fakeConn struct {
	Conn // 未实现的命令会panic

	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int
	data     map[string]string
	ttls     map[string]time.Duration
	expires  []*time.Duration
	closeErr error
	closed   int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		calls:    make(map[string]int),
		failures: make(map[string]int),
		data:     make(map[string]string),
		ttls:     make(map[string]time.Duration),
	}
}

func (f *fakeConn) failNext(command string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[command] = times
}

func (f *fakeConn) count(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[command]
}

// record 调用方需持有锁
func (f *fakeConn) record(command string) error {
	f.calls[command]++
	if f.failures[command] > 0 {
		f.failures[command]--
		return errTransient
	}
	return nil
}

func (f *fakeConn) Ping(ctx context.Context) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return redis.NewStatusResult("PONG", f.record("ping"))
}

func (f *fakeConn) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get"); err != nil {
		return redis.NewStringResult("", err)
	}
	value, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeConn) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("set"); err != nil {
		return redis.NewStatusResult("", err)
	}
	f.data[key] = value.(string)
	delete(f.ttls, key)
	if expiration > 0 {
		f.ttls[key] = expiration
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeConn) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("del"); err != nil {
		return redis.NewIntResult(0, err)
	}
	var deleted int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			delete(f.ttls, key)
			deleted++
		}
	}
	return redis.NewIntResult(deleted, nil)
}

func (f *fakeConn) Append(ctx context.Context, key, value string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("append"); err != nil {
		return redis.NewIntResult(0, err)
	}
	f.data[key] += value
	return redis.NewIntResult(int64(len(f.data[key])), nil)
}

func (f *fakeConn) IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.incr("incrby", key, value)
}

func (f *fakeConn) DecrBy(ctx context.Context, key string, decrement int64) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.incr("decrby", key, -decrement)
}

func (f *fakeConn) incr(command, key string, delta int64) *redis.IntCmd {
	if err := f.record(command); err != nil {
		return redis.NewIntResult(0, err)
	}
	current, _ := strconv.ParseInt(f.data[key], 10, 64)
	current += delta
	f.data[key] = strconv.FormatInt(current, 10)
	return redis.NewIntResult(current, nil)
}

func (f *fakeConn) IncrByFloat(ctx context.Context, key string, value float64) *redis.FloatCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("incrbyfloat"); err != nil {
		return redis.NewFloatResult(0, err)
	}
	current, _ := strconv.ParseFloat(f.data[key], 64)
	current += value
	f.data[key] = strconv.FormatFloat(current, 'g', -1, 64)
	return redis.NewFloatResult(current, nil)
}

func (f *fakeConn) GetSet(ctx context.Context, key string, value interface{}) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("getset"); err != nil {
		return redis.NewStringResult("", err)
	}
	previous, ok := f.data[key]
	f.data[key] = value.(string)
	delete(f.ttls, key)
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(previous, nil)
}

func (f *fakeConn) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("exists"); err != nil {
		return redis.NewIntResult(0, err)
	}
	var n int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeConn) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("expire"); err != nil {
		return redis.NewBoolResult(false, err)
	}
	f.expires = append(f.expires, &expiration)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

// Persist 对应expiry为nil的更新
func (f *fakeConn) Persist(ctx context.Context, key string) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("persist"); err != nil {
		return redis.NewBoolResult(false, err)
	}
	f.expires = append(f.expires, nil)
	_, had := f.ttls[key]
	delete(f.ttls, key)
	return redis.NewBoolResult(had, nil)
}

func (f *fakeConn) TTL(ctx context.Context, key string) *redis.DurationCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ttl"); err != nil {
		return redis.NewDurationResult(0, err)
	}
	if _, ok := f.data[key]; !ok {
		return redis.NewDurationResult(-2, nil)
	}
	ttl, ok := f.ttls[key]
	if !ok {
		return redis.NewDurationResult(-1, nil)
	}
	return redis.NewDurationResult(ttl, nil)
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

// newFakeStore 使用fakeConn作为连接池中的连接，重试间隔缩短为毫秒级
func newFakeStore(t *testing.T, namespace string, retries int, conns ...*fakeConn) *Store {
	t.Helper()
	next := 0
	dial := func(ctx context.Context, options *Options) (Conn, error) {
		conn := conns[next]
		next++
		return conn, nil
	}
	store, err := newStore(context.Background(), &Property{
		Namespace:  namespace,
		RetryCount: retries,
		PoolSize:   len(conns),
	}, dial)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}
	store.retry = &RetryExecutor{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	t.Cleanup(store.Close)
	return store
}
