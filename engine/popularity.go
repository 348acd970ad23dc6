package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rushteam/budrec/core"
)

// PopularityOnlyEngine 是降级能力的引擎：不训练模型，只存原始三元组，
// 所有服务调用都走热门路径。启动时按能力选择（engine.New），不做逐调用判断。
//
// 可选地把热门榜镜像到 KeyValueStore 的有序集合，
// 多实例部署时共享同一份热度，并在进程重启后保留。
type PopularityOnlyEngine struct {
	shared core.KeyValueStore // 可为 nil，则只用内存
	log    *zap.Logger

	mu      sync.RWMutex
	triples map[core.ContentType][]core.Interaction
}

func NewPopularityOnlyEngine(shared core.KeyValueStore, logger *zap.Logger) *PopularityOnlyEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PopularityOnlyEngine{
		shared:  shared,
		log:     logger.Named("engine"),
		triples: make(map[core.ContentType][]core.Interaction),
	}
}

func (e *PopularityOnlyEngine) Name() string { return "popularity" }

func popularKey(ct core.ContentType) string { return fmt.Sprintf("popular:%s", ct) }

// TrainModel 在降级模式下就是整体替换存储的原始三元组。
func (e *PopularityOnlyEngine) TrainModel(ctx context.Context, interactions []core.Interaction, contentType core.ContentType, _ core.TrainOptions) error {
	if !contentType.Valid() {
		return core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput,
			fmt.Sprintf("engine: invalid content type %q", contentType))
	}
	if len(interactions) == 0 {
		e.log.Warn("no interactions, nothing to store",
			zap.String("content_type", contentType.String()))
		return core.ErrEngineEmptyTrainingSet
	}

	e.mu.Lock()
	e.triples[contentType] = append([]core.Interaction(nil), interactions...)
	e.mu.Unlock()

	if e.shared != nil {
		// 重建热门榜：先清空再按权重累计，避免跨次重训叠加
		key := popularKey(contentType)
		if err := e.shared.Delete(ctx, key); err != nil {
			e.log.Warn("popular zset reset failed", zap.Error(err))
		}
		for _, in := range interactions {
			if err := e.shared.ZIncrBy(ctx, key, in.Weight, in.ItemID); err != nil {
				e.log.Warn("popular zset update failed", zap.Error(err))
				break
			}
		}
	}
	e.log.Info("stored interactions for popularity serving",
		zap.String("content_type", contentType.String()),
		zap.Int("interactions", len(interactions)))
	return nil
}

// GetRecommendations 降级模式下没有个性化，直接返回热门。
func (e *PopularityOnlyEngine) GetRecommendations(ctx context.Context, _ string, contentType core.ContentType, n int, _ bool) ([]core.ScoredItem, error) {
	return e.GetPopularItems(ctx, contentType, n)
}

func (e *PopularityOnlyEngine) GetPopularItems(ctx context.Context, contentType core.ContentType, n int) ([]core.ScoredItem, error) {
	if n <= 0 {
		n = DefaultTopN
	}

	e.mu.RLock()
	triples := e.triples[contentType]
	e.mu.RUnlock()
	if len(triples) > 0 {
		return rankTriples(triples, n), nil
	}

	// 本进程还没存过三元组：尝试共享热门榜（其他实例可能已写入）
	if e.shared != nil {
		key := popularKey(contentType)
		members, err := e.shared.ZRange(ctx, key, 0, int64(n)-1)
		if err != nil {
			e.log.Warn("popular zset read failed", zap.Error(err))
			return nil, nil
		}
		out := make([]core.ScoredItem, 0, len(members))
		for _, member := range members {
			score, err := e.shared.ZScore(ctx, key, member)
			if err != nil {
				continue
			}
			out = append(out, core.ScoredItem{ItemID: member, Score: score})
		}
		return out, nil
	}
	return nil, nil
}

// GetSimilarItems 降级模式下没有隐向量，始终返回空结果。
func (e *PopularityOnlyEngine) GetSimilarItems(_ context.Context, _ string, _ core.ContentType, _ int) ([]core.ScoredItem, error) {
	return nil, nil
}

// rankTriples 在原始三元组上按累计权重降序取 TopN。
// 首次出现顺序决定平分时的先后，和矩阵模式的语义一致。
func rankTriples(triples []core.Interaction, n int) []core.ScoredItem {
	if len(triples) == 0 {
		return nil
	}
	sums := make(map[string]float64, len(triples))
	var order []string
	for _, in := range triples {
		if _, seen := sums[in.ItemID]; !seen {
			order = append(order, in.ItemID)
		}
		sums[in.ItemID] += in.Weight
	}
	scored := make([]core.ScoredItem, 0, len(order))
	for _, id := range order {
		scored = append(scored, core.ScoredItem{ItemID: id, Score: sums[id]})
	}
	return topN(scored, n)
}

var _ core.Engine = (*PopularityOnlyEngine)(nil)
