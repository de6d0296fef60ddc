package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("slot lock not acquired")

// releaseScript deletes the lock only while it still holds the caller's token,
// so an expired lock taken over by another request is never released early.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Options struct {
	Addr       string
	Password   string
	DB         int
	TTL        time.Duration
	Attempts   int
	RetryDelay time.Duration
}

type SlotLocker struct {
	client     *redis.Client
	ttl        time.Duration
	attempts   int
	retryDelay time.Duration
}

func NewSlotLocker(opts Options) *SlotLocker {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 5
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 50 * time.Millisecond
	}
	return &SlotLocker{
		client: redis.NewClient(&redis.Options{
			Addr:        opts.Addr,
			Password:    opts.Password,
			DB:          opts.DB,
			DialTimeout: 2 * time.Second,
		}),
		ttl:        opts.TTL,
		attempts:   opts.Attempts,
		retryDelay: opts.RetryDelay,
	}
}

func (l *SlotLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *SlotLocker) Close() error {
	return l.client.Close()
}

// AcquireSlotLock tries SETNX up to the configured number of attempts and
// returns the token needed to release the lock.
func (l *SlotLocker) AcquireSlotLock(ctx context.Context, facilityID, slotID string) (string, error) {
	key := slotLockKey(facilityID, slotID)
	token := uuid.NewString()
	for attempt := 1; attempt <= l.attempts; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if attempt == l.attempts {
			break
		}
		timer := time.NewTimer(time.Duration(attempt) * l.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", ErrLockNotAcquired
}

func (l *SlotLocker) ReleaseSlotLock(ctx context.Context, facilityID, slotID, token string) error {
	return releaseScript.Run(ctx, l.client, []string{slotLockKey(facilityID, slotID)}, token).Err()
}

func slotLockKey(facilityID, slotID string) string {
	return fmt.Sprintf("lock:facility:%s:slot:%s", facilityID, slotID)
}
