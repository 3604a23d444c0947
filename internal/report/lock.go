package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker grants one holder at a time per report, so two devices cannot both
// consume the same first view.
type Locker interface {
	Acquire(ctx context.Context, resultID string, ttl time.Duration) (unlock func(), acquired bool, err error)
}

// Lua script ensures we only delete our own lock
var unlockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker holds first-view locks in Redis and works across API instances.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, resultID string, ttl time.Duration) (func(), bool, error) {
	key := fmt.Sprintf("report:view:lock:%s", resultID)
	lockValue := uuid.New().String()

	acquired, err := l.client.SetNX(ctx, key, lockValue, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}

	unlock := func() {
		_ = unlockScript.Run(context.Background(), l.client, []string{key}, lockValue).Err()
	}
	return unlock, true, nil
}

// LocalLocker is the single-instance fallback when Redis is not configured.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]lease
	clock func() time.Time
}

type lease struct {
	token   uint64
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]lease), clock: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, resultID string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if cur, ok := l.held[resultID]; ok && now.Before(cur.expires) {
		return nil, false, nil
	}
	token := uint64(now.UnixNano())
	l.held[resultID] = lease{token: token, expires: now.Add(ttl)}

	unlock := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[resultID]; ok && cur.token == token {
			delete(l.held, resultID)
		}
	}
	return unlock, true, nil
}
