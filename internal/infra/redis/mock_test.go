package redis

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// fakeRedis is an in-memory RedisClient; expirations are recorded, not enforced.
type fakeRedis struct {
	mu       sync.Mutex
	values   map[string]string
	expires  map[string]time.Duration
	subs     map[string][]chan *redis.Message
	failIncr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values:  map[string]string{},
		expires: map[string]time.Duration{},
		subs:    map[string][]chan *redis.Message{},
	}
}

var _ RedisClient = (*fakeRedis)(nil)

func (f *fakeRedis) Ping(ctx context.Context) error { return nil }

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = toString(value)
	f.expires[key] = expiration
	return nil
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = toString(value)
	f.expires[key] = expiration
	return true, nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeRedis) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIncr != nil {
		return 0, f.failIncr
	}
	n, _ := strconv.ParseInt(f.values[key], 10, 64)
	n++
	f.values[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (f *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[key] = expiration
	return nil
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
		delete(f.expires, k)
	}
	return nil
}

// Eval only understands the unlock and extend scripts.
func (f *fakeRedis) Eval(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[keys[0]]
	if !ok || v != toString(args[0]) {
		return int64(0), nil
	}
	if script == luaExtend {
		f.expires[keys[0]] = time.Duration(args[1].(int64)) * time.Millisecond
		return int64(1), nil
	}
	delete(f.values, keys[0])
	return int64(1), nil
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs[channel] {
		ch <- &redis.Message{Channel: channel, Payload: toString(message)}
	}
	return nil
}

func (f *fakeRedis) Subscribe(ctx context.Context, channel string) (<-chan *redis.Message, func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan *redis.Message, 8)
	f.subs[channel] = append(f.subs[channel], ch)
	return ch, func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		list := f.subs[channel]
		for i, c := range list {
			if c == ch {
				f.subs[channel] = append(list[:i], list[i+1:]...)
				close(ch)
				break
			}
		}
		return nil
	}, nil
}

func (f *fakeRedis) Close() error { return nil }

func toString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return ""
	}
}
