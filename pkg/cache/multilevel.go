package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"multisig-core/pkg/logger"
)

// MultiLevelCache 实现多级缓存 (L1: Memory, L2: Redis)
type MultiLevelCache struct {
	local       Cache
	remote      Cache
	backfillTTL time.Duration
}

// NewMultiLevelCache backfillTTL 是 L2 命中后回写 L1 的有效期，不应超过写入方 TTL 的一半；
// <= 0 时不回写
func NewMultiLevelCache(local, remote Cache, backfillTTL time.Duration) *MultiLevelCache {
	return &MultiLevelCache{
		local:       local,
		remote:      remote,
		backfillTTL: backfillTTL,
	}
}

// Set L1 的 TTL 取 L2 的一半，减少多实例间的脏读窗口
func (m *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := m.local.Set(ctx, key, value, ttl/2); err != nil {
		logger.Warn("写入本地缓存失败", zap.String("key", key), zap.Error(err))
	}
	return m.remote.Set(ctx, key, value, ttl)
}

func (m *MultiLevelCache) Get(ctx context.Context, key string, target interface{}) error {
	// 1. 查 L1
	if err := m.local.Get(ctx, key, target); err == nil {
		return nil
	}

	// 2. 查 L2，命中后回写 L1
	err := m.remote.Get(ctx, key, target)
	if err == nil {
		if m.backfillTTL > 0 {
			_ = m.local.Set(ctx, key, target, m.backfillTTL)
		}
		return nil
	}
	if !errors.Is(err, ErrMiss) {
		logger.Warn("读取远程缓存失败", zap.String("key", key), zap.Error(err))
	}
	return ErrMiss
}

func (m *MultiLevelCache) Delete(ctx context.Context, key string) error {
	_ = m.local.Delete(ctx, key)
	return m.remote.Delete(ctx, key)
}
