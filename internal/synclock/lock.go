// Package synclock serializes syncs of the same ad account across processes.
package synclock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// ErrHeld is returned when another holder owns the lock.
var ErrHeld = eris.New("synclock: lock already held")

// Release frees a lock. Releasing a lock that expired or was taken over is a
// no-op.
type Release func(ctx context.Context) error

// Locker acquires named, non-blocking locks.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

const keyPrefix = "ads-insights:sync-lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX. The TTL bounds how long a
// crashed holder can block other processes.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker creates a locker. A non-positive ttl defaults to 10 minutes.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and checks connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "synclock: parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "synclock: ping redis")
	}
	return client, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	token := uuid.New().String()
	k := keyPrefix + key

	ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "synclock: acquire %s", key)
	}
	if !ok {
		return nil, eris.Wrapf(ErrHeld, "synclock: %s", key)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{k}, token).Err(); err != nil {
			return eris.Wrapf(err, "synclock: release %s", key)
		}
		return nil
	}, nil
}

// LocalLocker implements Locker within a single process. It is used when no
// Redis URL is configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(_ context.Context, key string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, eris.Wrapf(ErrHeld, "synclock: %s", key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
