// Package runguard provides a time-bounded lease that serializes ingestion
// runs across process instances. A lease has a minimum hold (blocks an
// immediate re-trigger after completion) and a maximum hold (a stuck holder
// cannot block future runs forever).
package runguard

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/yourorg/auction-ingest/internal/redisx"
)

type Guard interface {
	// TryAcquire returns false when another run holds the lease or its
	// minimum hold has not yet elapsed. Contention is expected, not an error.
	// On success the returned token identifies this acquisition and must be
	// passed back to Release.
	TryAcquire(ctx context.Context, name string, minHold, maxHold time.Duration) (string, bool, error)
	// Release ends the acquisition identified by token. A release with a
	// token that no longer owns the lease (the lease expired and someone
	// else acquired it) is a no-op.
	Release(ctx context.Context, name, token string) error
}

// RedisGuard backs the lease with a redis key: SET NX with TTL=maxHold on
// acquire; on release the TTL is shrunk to the remainder of minHold, or the
// key deleted once minHold has passed. Only the acquiring token may release.
type RedisGuard struct {
	Redis  *redisx.Client
	Prefix string

	mu    sync.Mutex
	holds map[string]redisHold
}

type redisHold struct {
	acquiredAt time.Time
	minHold    time.Duration
}

// releaseScript deletes or re-expires the key only while we still own it.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  local ttl = tonumber(ARGV[2])
  if ttl > 0 then
    return redis.call("PEXPIRE", KEYS[1], ttl)
  end
  return redis.call("DEL", KEYS[1])
end
return 0`

func NewRedisGuard(rdb *redisx.Client) *RedisGuard {
	return &RedisGuard{Redis: rdb, Prefix: "runguard:", holds: make(map[string]redisHold)}
}

func (g *RedisGuard) TryAcquire(ctx context.Context, name string, minHold, maxHold time.Duration) (string, bool, error) {
	token := newToken()
	ok, err := g.Redis.SetNX(ctx, g.Prefix+name, token, maxHold)
	if err != nil || !ok {
		return "", false, err
	}
	g.mu.Lock()
	g.holds[token] = redisHold{acquiredAt: time.Now(), minHold: minHold}
	g.mu.Unlock()
	return token, true, nil
}

func (g *RedisGuard) Release(ctx context.Context, name, token string) error {
	g.mu.Lock()
	hold, ok := g.holds[token]
	delete(g.holds, token)
	g.mu.Unlock()
	if !ok {
		return nil
	}

	remaining := hold.minHold - time.Since(hold.acquiredAt)
	if remaining < 0 {
		remaining = 0
	}
	// The script compares the key against our token, so a release from an
	// expired acquisition cannot touch a newer holder's lease.
	_, err := g.Redis.Eval(ctx, releaseScript, []string{g.Prefix + name}, token, remaining.Milliseconds())
	return err
}

func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// MemoryGuard serializes runs within a single process, for deployments
// without redis and for tests. Semantics mirror RedisGuard: an entry blocks
// acquisition until holdUntil.
type MemoryGuard struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

type memoryLease struct {
	token      string
	acquiredAt time.Time
	holdUntil  time.Time
	minHold    time.Duration
	released   bool
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{leases: make(map[string]memoryLease), now: time.Now}
}

func (g *MemoryGuard) TryAcquire(_ context.Context, name string, minHold, maxHold time.Duration) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if lease, ok := g.leases[name]; ok && now.Before(lease.holdUntil) {
		return "", false, nil
	}
	token := newToken()
	g.leases[name] = memoryLease{
		token:      token,
		acquiredAt: now,
		holdUntil:  now.Add(maxHold),
		minHold:    minHold,
	}
	return token, true, nil
}

func (g *MemoryGuard) Release(_ context.Context, name, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// A release from an acquisition that already lost the lease (maxHold
	// expired and another run acquired it) must not touch the new holder.
	lease, ok := g.leases[name]
	if !ok || lease.released || lease.token != token {
		return nil
	}
	floor := lease.acquiredAt.Add(lease.minHold)
	now := g.now()
	if now.Before(floor) {
		lease.holdUntil = floor
		lease.released = true
		g.leases[name] = lease
		return nil
	}
	delete(g.leases, name)
	return nil
}
