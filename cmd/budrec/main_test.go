package main

import (
	"testing"

	"github.com/rushteam/budrec/config"
)

func TestSharedStores(t *testing.T) {
	// 未配置 Redis：引擎有进程内共享层，缓存的共享层置空（只用本地层）
	shared, cacheShared, err := sharedStores(config.Default())
	if err != nil {
		t.Fatalf("装配失败: %v", err)
	}
	if shared == nil || shared.Name() != "memory" {
		t.Errorf("引擎共享层应为进程内存储: %v", shared)
	}
	if cacheShared != nil {
		t.Errorf("未配置 Redis 时缓存不应有共享层: %v", cacheShared)
	}
}
