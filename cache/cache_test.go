package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rushteam/budrec/core"
	"github.com/rushteam/budrec/store"
)

func testItems(ids ...string) []*core.Item {
	items := make([]*core.Item, 0, len(ids))
	for i, id := range ids {
		it := core.NewItem(id)
		it.SetScore(float64(len(ids) - i))
		items = append(items, it)
	}
	return items
}

func TestKeyFormat(t *testing.T) {
	key := Key("u1", core.ContentTypeMovie, 10)
	if !strings.HasPrefix(key, "rec:movie:u1:") {
		t.Errorf("key 前缀错误: %s", key)
	}
	// 同输入同 key，n 不同则 key 不同
	if key != Key("u1", core.ContentTypeMovie, 10) {
		t.Error("同输入应产生同 key")
	}
	if key == Key("u1", core.ContentTypeMovie, 20) {
		t.Error("不同 n 应产生不同 key")
	}
}

func TestCacheSetGet(t *testing.T) {
	ctx := context.Background()
	shared := store.NewMemoryStore()
	defer shared.Close()
	c := New(shared, 60, nil, nil)

	if _, ok := c.Get(ctx, "u1", core.ContentTypeMovie, 10); ok {
		t.Fatal("空缓存不应命中")
	}

	want := testItems("i1", "i2")
	c.Set(ctx, "u1", core.ContentTypeMovie, 10, want)

	got, ok := c.Get(ctx, "u1", core.ContentTypeMovie, 10)
	if !ok {
		t.Fatal("写入后应命中")
	}
	if len(got) != 2 || got[0].ID != "i1" || got[1].ID != "i2" {
		t.Errorf("命中内容错误: %v", got)
	}
	if got[0].Meta[core.ScoreMetaKey] == nil {
		t.Error("分数元数据应随缓存往返保留")
	}
}

func TestCacheLocalOnly(t *testing.T) {
	// 未配置共享层也能工作
	ctx := context.Background()
	c := New(nil, 60, nil, nil)

	c.Set(ctx, "u1", core.ContentTypeManga, 5, testItems("m1"))
	got, ok := c.Get(ctx, "u1", core.ContentTypeManga, 5)
	if !ok || len(got) != 1 || got[0].ID != "m1" {
		t.Errorf("本地层读写失败: ok=%v items=%v", ok, got)
	}
}

func TestCacheLocalExpiry(t *testing.T) {
	ctx := context.Background()
	c := New(nil, 60, nil, nil)

	c.Set(ctx, "u1", core.ContentTypeMovie, 10, testItems("i1"), 1)
	c.mu.Lock()
	for key, e := range c.local {
		e.expires = time.Now().Add(-time.Second)
		c.local[key] = e
	}
	c.mu.Unlock()

	if _, ok := c.Get(ctx, "u1", core.ContentTypeMovie, 10); ok {
		t.Error("过期条目不应命中")
	}
}

func TestCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	shared := store.NewMemoryStore()
	defer shared.Close()
	c := New(shared, 60, nil, nil)

	c.Set(ctx, "u1", core.ContentTypeMovie, 10, testItems("i1"))
	c.Set(ctx, "u1", core.ContentTypeManga, 10, testItems("m1"))
	c.Set(ctx, "u2", core.ContentTypeMovie, 10, testItems("i2"))

	removed := c.Invalidate(ctx, "u1")
	if removed != 2 {
		t.Errorf("期望删除 2 条，实际 %d", removed)
	}
	if _, ok := c.Get(ctx, "u1", core.ContentTypeMovie, 10); ok {
		t.Error("u1 的条目应已失效")
	}
	if _, ok := c.Get(ctx, "u2", core.ContentTypeMovie, 10); !ok {
		t.Error("u2 的条目不应受影响")
	}
}

func TestCacheInvalidateByType(t *testing.T) {
	ctx := context.Background()
	c := New(nil, 60, nil, nil)

	c.Set(ctx, "u1", core.ContentTypeMovie, 10, testItems("i1"))
	c.Set(ctx, "u1", core.ContentTypeManga, 10, testItems("m1"))

	removed := c.Invalidate(ctx, "u1", core.ContentTypeMovie)
	if removed != 1 {
		t.Errorf("期望只删 movie 的 1 条，实际 %d", removed)
	}
	if _, ok := c.Get(ctx, "u1", core.ContentTypeManga, 10); !ok {
		t.Error("manga 的条目不应受影响")
	}
}

// failStore 的所有操作都报错，验证 fail-open 行为
type failStore struct{}

func (f *failStore) Name() string                                       { return "fail" }
func (f *failStore) Get(context.Context, string) ([]byte, error)        { return nil, errors.New("down") }
func (f *failStore) Set(context.Context, string, []byte, ...int) error  { return errors.New("down") }
func (f *failStore) Delete(context.Context, string) error               { return errors.New("down") }
func (f *failStore) BatchGet(context.Context, []string) (map[string][]byte, error) {
	return nil, errors.New("down")
}
func (f *failStore) BatchSet(context.Context, map[string][]byte, ...int) error {
	return errors.New("down")
}
func (f *failStore) Close() error { return nil }

func TestCacheSharedFailOpen(t *testing.T) {
	ctx := context.Background()
	c := New(&failStore{}, 60, nil, nil)

	// 共享层故障时写只落本地，读退回本地，请求不受影响
	c.Set(ctx, "u1", core.ContentTypeMovie, 10, testItems("i1"))
	got, ok := c.Get(ctx, "u1", core.ContentTypeMovie, 10)
	if !ok || len(got) != 1 {
		t.Errorf("共享层故障时本地层应兜底: ok=%v items=%v", ok, got)
	}
}

func TestCacheCorruptSharedEntry(t *testing.T) {
	ctx := context.Background()
	shared := store.NewMemoryStore()
	defer shared.Close()
	c := New(shared, 60, nil, nil)

	key := Key("u1", core.ContentTypeMovie, 10)
	if err := shared.Set(ctx, key, []byte("not json"), 60); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get(ctx, "u1", core.ContentTypeMovie, 10); ok {
		t.Error("损坏条目不应命中")
	}
	// 损坏条目应被删除
	if _, err := shared.Get(ctx, key); !core.IsStoreNotFound(err) {
		t.Errorf("损坏条目应被清除，实际 err=%v", err)
	}
}

func TestCacheClearAll(t *testing.T) {
	ctx := context.Background()
	c := New(nil, 60, nil, nil)

	c.Set(ctx, "u1", core.ContentTypeMovie, 10, testItems("i1"))
	c.Set(ctx, "u2", core.ContentTypeAnime, 5, testItems("a1"))

	if n := c.ClearAll(); n != 2 {
		t.Errorf("期望清空 2 条，实际 %d", n)
	}
	if _, ok := c.Get(ctx, "u1", core.ContentTypeMovie, 10); ok {
		t.Error("清空后不应命中")
	}
}
