package service

import (
	"context"
	"fmt"
	"lsrw_console/internal/model"
	"lsrw_console/pkg/logger"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CountCache 标签页计数缓存，只做展示用
type CountCache interface {
	Get(ctx context.Context, key string) (int64, bool)
	Set(ctx context.Context, key string, value int64, ttl time.Duration)
}

type RedisCountCache struct {
	rdb *redis.Client
}

func NewRedisCountCache(rdb *redis.Client) *RedisCountCache {
	return &RedisCountCache{rdb: rdb}
}

func (c *RedisCountCache) Get(ctx context.Context, key string) (int64, bool) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Log.Debug("count cache get failed", zap.String("key", key), zap.Error(err))
		}
		return 0, false
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (c *RedisCountCache) Set(ctx context.Context, key string, value int64, ttl time.Duration) {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		logger.Log.Debug("count cache set failed", zap.String("key", key), zap.Error(err))
	}
}

type memoryEntry struct {
	value     int64
	expiresAt time.Time
}

// MemoryCountCache 未启用 Redis 时的进程内缓存
type MemoryCountCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCountCache() *MemoryCountCache {
	return &MemoryCountCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCountCache) Get(ctx context.Context, key string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return 0, false
	}
	return e.value, true
}

func (c *MemoryCountCache) Set(ctx context.Context, key string, value int64, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
}

// TabCounter 四个技能标签页上的课程数量角标
type TabCounter struct {
	backend Backend
	cache   CountCache
	ttl     atomic.Int64
}

func NewTabCounter(backend Backend, cache CountCache, ttl time.Duration) *TabCounter {
	if cache == nil {
		cache = NewMemoryCountCache()
	}
	t := &TabCounter{backend: backend, cache: cache}
	t.SetTTL(ttl)
	return t
}

// SetTTL 配置热加载时调整缓存时长
func (t *TabCounter) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	t.ttl.Store(int64(ttl))
}

func (t *TabCounter) TTL() time.Duration {
	return time.Duration(t.ttl.Load())
}

func countKey(batchID uint, module model.SkillModule) string {
	return fmt.Sprintf("lsrw:tab_count:%d:%s", batchID, module)
}

// Counts 并发获取四个模块的数量
// 某个模块失败时其余结果照常返回，错误只用于提示
func (t *TabCounter) Counts(ctx context.Context, batchID uint) (map[model.SkillModule]int64, error) {
	var (
		mu     sync.Mutex
		counts = make(map[model.SkillModule]int64, len(model.SkillModules))
		g      errgroup.Group
	)

	for _, module := range model.SkillModules {
		module := module
		g.Go(func() error {
			key := countKey(batchID, module)
			n, ok := t.cache.Get(ctx, key)
			if !ok {
				var err error
				n, err = t.backend.CountMappings(ctx, batchID, module)
				if err != nil {
					logger.Log.Warn("tab count failed",
						zap.Uint("batchId", batchID),
						zap.String("module", string(module)),
						zap.Error(err))
					return fmt.Errorf("count %s: %w", module, err)
				}
				t.cache.Set(ctx, key, n, t.TTL())
			}
			mu.Lock()
			counts[module] = n
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	return counts, err
}
