// Package engine 实现推荐引擎：交互矩阵构建、WARP 矩阵分解训练、
// 个性化打分、相似物品与热门兜底，以及快照的原子发布与持久化。
package engine

import (
	"go.uber.org/zap"

	"github.com/rushteam/budrec/core"
	"github.com/rushteam/budrec/metrics"
)

// 引擎能力模式。启动时选定其一，而不是在每次调用里做可用性探测。
const (
	ModeFull       = "full"       // 完整能力：矩阵分解 + 热门兜底
	ModePopularity = "popularity" // 降级能力：只按热度出结果
)

// New 按配置的能力模式构造引擎。
// 未知模式按 full 处理并记录日志（宁可多给能力，也不无声降级）。
func New(mode string, artifacts core.Store, shared core.KeyValueStore, logger *zap.Logger, m *metrics.Metrics) core.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch mode {
	case ModePopularity:
		logger.Info("engine running in popularity-only mode")
		return NewPopularityOnlyEngine(shared, logger)
	case ModeFull, "":
		return NewFullEngine(artifacts, logger, m)
	default:
		logger.Warn("unknown engine mode, falling back to full", zap.String("mode", mode))
		return NewFullEngine(artifacts, logger, m)
	}
}
