package registration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SaveGuard admits one save at a time per key. Acquire fails with
// ErrSaveInProgress while another holder has the key.
type SaveGuard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// MemorySaveGuard serializes saves within a single process.
type MemorySaveGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemorySaveGuard() *MemorySaveGuard {
	return &MemorySaveGuard{held: make(map[string]struct{})}
}

func (g *MemorySaveGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[key]; ok {
		return nil, ErrSaveInProgress
	}
	g.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}

const saveLockKeyPrefix = "registration:save-lock:"

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock re-acquired by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSaveGuard serializes saves across instances with SET NX locks that
// expire after ttl.
type RedisSaveGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisSaveGuard builds a guard whose locks expire after ttl. Failed
// releases are logged to logger; the lock then lapses at its TTL.
func NewRedisSaveGuard(client redis.UniversalClient, ttl time.Duration, logger zerolog.Logger) *RedisSaveGuard {
	return &RedisSaveGuard{client: client, ttl: ttl, logger: logger}
}

func (g *RedisSaveGuard) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	lockKey := saveLockKeyPrefix + key
	ok, err := g.client.SetNX(ctx, lockKey, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire save lock: %w", err)
	}
	if !ok {
		return nil, ErrSaveInProgress
	}
	return func() {
		// The request context may already be cancelled when the save returns.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := releaseScript.Run(ctx, g.client, []string{lockKey}, token).Int()
		switch {
		case err != nil:
			g.logger.Error().Err(err).Str("lock", lockKey).Dur("ttl", g.ttl).Msg("failed to release save lock")
		case n == 0:
			g.logger.Warn().Str("lock", lockKey).Dur("ttl", g.ttl).Msg("save lock expired before release")
		}
	}, nil
}
