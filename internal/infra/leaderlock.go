package infra

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LeaderLock enforces the single-active-dispatcher assumption across worker
// instances via a redis key claimed with SET NX and a TTL. The holder
// refreshes the TTL while alive; a crashed holder's claim expires on its own.
type LeaderLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

func NewLeaderLock(client *redis.Client, key string, ttl time.Duration) *LeaderLock {
	return &LeaderLock{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire attempts to claim leadership. Returns false when another instance
// holds the lock.
func (l *LeaderLock) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// Refresh extends the TTL of a claim this instance still holds.
func (l *LeaderLock) Refresh(ctx context.Context) error {
	return refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Err()
}

// Release drops the claim if this instance still holds it.
func (l *LeaderLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// TTL returns the configured claim lifetime.
func (l *LeaderLock) TTL() time.Duration {
	return l.ttl
}
