package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another runner holds the job lock
var ErrLocked = errors.New("job lock held elsewhere")

// Locker grants exclusive runs of a named job
type Locker interface {
	// Acquire returns a release func, or ErrLocked when the job is already running
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error)
}

// RedisLocker shares job locks between replicas through Redis
type RedisLocker struct {
	client *redislock.Client
	prefix string
}

// NewRedisLocker creates a locker on a connected Redis client
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: redislock.New(client), prefix: "cultivation:job:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	lock, err := l.client.Obtain(ctx, l.prefix+name, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, err
	}
	return func() {
		// release with a fresh context, the job context may be done already
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lock.Release(ctx)
	}, nil
}

// LocalLocker serializes jobs within one process
type LocalLocker struct {
	mu      sync.Mutex
	running map[string]bool
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{running: make(map[string]bool)}
}

func (l *LocalLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running[name] {
		return nil, ErrLocked
	}
	l.running[name] = true
	return func() {
		l.mu.Lock()
		delete(l.running, name)
		l.mu.Unlock()
	}, nil
}
