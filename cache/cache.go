// Package cache 实现推荐结果缓存：共享层（Redis 等 core.Store）加
// 本地进程内兜底层的两级结构，读写穿透、共享层故障时 fail-open。
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/rushteam/budrec/core"
	"github.com/rushteam/budrec/metrics"
)

// DefaultTTL 是缓存条目的默认存活时间（秒）。
const DefaultTTL = 3600

// RecommendationCache 按 (user, content_type, n) 记忆化推荐列表。
//
// 两级结构：
//   - 共享层：外部 core.Store（通常 Redis），多实例共享；未配置则跳过
//   - 本地层：进程内 map，共享层 miss 或出错时的兜底
//
// 写同时落两层；读先查共享层，失败或未命中再查本地层。
// 共享层的任何错误都 fail-open：跳过缓存、现算结果，绝不让请求失败。
type RecommendationCache struct {
	shared core.Store // 可为 nil
	ttl    int        // 秒
	log    *zap.Logger
	m      *metrics.Metrics

	mu    sync.RWMutex
	local map[string]localEntry
}

type localEntry struct {
	items   []*core.Item
	expires time.Time
}

func New(shared core.Store, ttlSeconds int, logger *zap.Logger, m *metrics.Metrics) *RecommendationCache {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecommendationCache{
		shared: shared,
		ttl:    ttlSeconds,
		log:    logger.Named("cache"),
		m:      m,
		local:  make(map[string]localEntry),
	}
}

// Key 构造缓存 key：rec:{content_type}:{user_id}:{md5(user:type:n)}。
// user_id 原样嵌入 key，Invalidate 的子串匹配依赖这一点。
func Key(userID string, contentType core.ContentType, n int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%s:%d", userID, contentType, n)))
	return fmt.Sprintf("rec:%s:%s:%s", contentType, userID, hex.EncodeToString(sum[:]))
}

// Get 查询缓存。命中返回 (items, true)；两层都未命中返回 (nil, false)。
func (c *RecommendationCache) Get(ctx context.Context, userID string, contentType core.ContentType, n int) ([]*core.Item, bool) {
	key := Key(userID, contentType, n)

	if c.shared != nil {
		data, err := c.shared.Get(ctx, key)
		switch {
		case err == nil:
			var items []*core.Item
			if jsonErr := json.Unmarshal(data, &items); jsonErr == nil {
				c.m.CacheOp("shared", "hit")
				return items, true
			}
			c.log.Warn("shared cache entry corrupt, dropping", zap.String("key", key))
			_ = c.shared.Delete(ctx, key)
		case core.IsStoreNotFound(err):
			c.m.CacheOp("shared", "miss")
		default:
			// fail-open：共享层故障不影响请求
			c.m.CacheOp("shared", "error")
			c.log.Warn("shared cache get failed", zap.Error(err), zap.String("key", key))
		}
	}

	c.mu.RLock()
	e, ok := c.local[key]
	c.mu.RUnlock()
	if !ok {
		c.m.CacheOp("local", "miss")
		return nil, false
	}
	if time.Now().After(e.expires) {
		c.mu.Lock()
		delete(c.local, key)
		c.mu.Unlock()
		c.m.CacheOp("local", "miss")
		return nil, false
	}
	c.m.CacheOp("local", "hit")
	return e.items, true
}

// Set 写入缓存（两层同时写）。ttl 可选覆盖默认值（秒）。
func (c *RecommendationCache) Set(ctx context.Context, userID string, contentType core.ContentType, n int, items []*core.Item, ttl ...int) {
	key := Key(userID, contentType, n)
	seconds := c.ttl
	if len(ttl) > 0 && ttl[0] > 0 {
		seconds = ttl[0]
	}

	if c.shared != nil {
		data, err := json.Marshal(items)
		if err == nil {
			err = c.shared.Set(ctx, key, data, seconds)
		}
		if err != nil {
			c.m.CacheOp("shared", "error")
			c.log.Warn("shared cache set failed", zap.Error(err), zap.String("key", key))
		}
	}

	c.mu.Lock()
	c.local[key] = localEntry{
		items:   items,
		expires: time.Now().Add(time.Duration(seconds) * time.Second),
	}
	c.mu.Unlock()
}

// Invalidate 删除某用户的缓存条目；给定 contentType 时只清该类型。
// 返回本地层删除的条目数。
//
// 本地层按 key 中原样嵌入的 user_id 做子串匹配；共享层若实现了
// KeyValueStore 则按前缀 Scan 后逐 key 删除，否则接受 TTL 內的陈旧读
// （简单 KV 缓存做不了模式删除，这是已知限制）。
func (c *RecommendationCache) Invalidate(ctx context.Context, userID string, contentTypes ...core.ContentType) int {
	types := contentTypes
	if len(types) == 0 {
		types = core.AllContentTypes()
	}

	if kv, ok := c.shared.(core.KeyValueStore); ok {
		for _, ct := range types {
			prefix := fmt.Sprintf("rec:%s:%s:", ct, userID)
			keys, err := kv.Scan(ctx, prefix)
			if err != nil {
				c.log.Warn("shared cache scan failed", zap.Error(err), zap.String("prefix", prefix))
				continue
			}
			for _, key := range keys {
				if err := kv.Delete(ctx, key); err != nil {
					c.log.Warn("shared cache delete failed", zap.Error(err), zap.String("key", key))
				}
			}
		}
	}

	removed := 0
	c.mu.Lock()
	for key := range c.local {
		if !strings.Contains(key, userID) {
			continue
		}
		if len(contentTypes) > 0 && !matchesAny(key, userID, contentTypes) {
			continue
		}
		delete(c.local, key)
		removed++
	}
	c.mu.Unlock()

	c.log.Info("invalidated cache entries",
		zap.String("user_id", userID), zap.Int("removed", removed))
	return removed
}

func matchesAny(key, userID string, types []core.ContentType) bool {
	for _, ct := range types {
		if strings.HasPrefix(key, fmt.Sprintf("rec:%s:%s:", ct, userID)) {
			return true
		}
	}
	return false
}

// ClearAll 清空本地层。共享层的全量清理依赖后端能力，这里不做。
func (c *RecommendationCache) ClearAll() int {
	c.mu.Lock()
	count := len(c.local)
	c.local = make(map[string]localEntry)
	c.mu.Unlock()
	c.log.Info("cleared local cache", zap.Int("entries", count))
	return count
}
