package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DistributedLock 定义分布式锁接口
type DistributedLock interface {
	// Acquire 尝试获取锁，返回是否成功
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release 释放锁；只会删除自己持有的锁
	Release(ctx context.Context, key string) error
}

// releaseScript 值匹配才删除，避免锁过期后误删别人的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLock 基于 Redis SET NX 的实现，value 为实例唯一标识
type RedisLock struct {
	client *redis.Client
	owner  string
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client, owner: uuid.NewString()}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, "lock:"+key, l.owner, ttl).Result()
}

func (l *RedisLock) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, l.client, []string{"lock:" + key}, l.owner).Err()
}

// LocalLock 单实例部署时使用，不依赖 Redis
type LocalLock struct {
	held map[string]time.Time
	mu   chan struct{}
}

func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]time.Time), mu: make(chan struct{}, 1)}
}

func (l *LocalLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	select {
	case l.mu <- struct{}{}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	defer func() { <-l.mu }()

	if expiry, ok := l.held[key]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	l.held[key] = time.Now().Add(ttl)
	return true, nil
}

func (l *LocalLock) Release(ctx context.Context, key string) error {
	l.mu <- struct{}{}
	delete(l.held, key)
	<-l.mu
	return nil
}
