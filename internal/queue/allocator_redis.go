package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenKeyTTL = 48 * time.Hour

// RedisAllocator keeps each partition's counter in Redis so several API
// instances can allocate concurrently.
type RedisAllocator struct {
	redis  *redis.Client
	seeder Seeder
}

// NewRedisAllocator creates a Redis-backed allocator.
func NewRedisAllocator(client *redis.Client, seeder Seeder) *RedisAllocator {
	if client == nil {
		panic("queue: redis client required")
	}
	return &RedisAllocator{redis: client, seeder: seeder}
}

func tokenKey(key PartitionKey) string {
	return fmt.Sprintf("token:%s:%s:%s", key.DoctorID, key.Date, key.Class)
}

// allocateScript increments the partition counter and refreshes its TTL in
// one step. When the counter is missing it is created from ARGV[2]; with an
// empty seed the script returns -1 so the caller can load one.
var allocateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	if ARGV[2] == '' then
		return -1
	end
	redis.call('SET', KEYS[1], ARGV[2])
end
local n = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[1])
return n
`)

const needsSeed = -1

// Allocate implements Allocator. The first allocation of a partition seeds
// the counter with the stored maximum.
func (a *RedisAllocator) Allocate(ctx context.Context, key PartitionKey) (int, error) {
	rkey := []string{tokenKey(key)}
	ttl := int(tokenKeyTTL / time.Second)

	n, err := allocateScript.Run(ctx, a.redis, rkey, ttl, "").Int()
	if err != nil {
		return 0, fmt.Errorf("queue: increment token counter: %w", err)
	}
	if n != needsSeed {
		return n, nil
	}

	seed := 0
	if a.seeder != nil {
		if seed, err = a.seeder.MaxTokenNumber(ctx, key); err != nil {
			return 0, fmt.Errorf("queue: seed token counter: %w", err)
		}
	}
	// A concurrent caller may have seeded the key meanwhile; the script then
	// ignores this seed and just increments.
	n, err = allocateScript.Run(ctx, a.redis, rkey, ttl, strconv.Itoa(seed)).Int()
	if err != nil {
		return 0, fmt.Errorf("queue: increment token counter: %w", err)
	}
	return n, nil
}
