package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rushteam/budrec/core"
	"github.com/rushteam/budrec/metrics"
)

// DefaultTopN 是未指定返回数量时的默认 TopN。
const DefaultTopN = 10

// FullEngine 是完整能力的推荐引擎：矩阵分解训练 + 个性化打分 + 热门兜底。
//
// 并发模型：
//   - 每个内容类型一个 atomic.Pointer[Snapshot]，读者无锁读取已发布的一代
//   - 重训整体产出新快照后原子替换指针，读者看到的永远是同一次训练的
//     模型/矩阵/映射组合，不会出现跨代混合
//   - singleflight 按内容类型收敛并发重训：同类型同时只有一个训练在跑
type FullEngine struct {
	artifacts core.Store // 模型制品存储，nil 表示不持久化
	log       *zap.Logger
	metrics   *metrics.Metrics

	snapshots map[core.ContentType]*atomic.Pointer[Snapshot]
	loadOnce  map[core.ContentType]*sync.Once

	rawMu      sync.RWMutex
	rawTriples map[core.ContentType][]core.Interaction

	train singleflight.Group
	gen   atomic.Uint64
}

func NewFullEngine(artifacts core.Store, logger *zap.Logger, m *metrics.Metrics) *FullEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &FullEngine{
		artifacts:  artifacts,
		log:        logger.Named("engine"),
		metrics:    m,
		snapshots:  make(map[core.ContentType]*atomic.Pointer[Snapshot]),
		loadOnce:   make(map[core.ContentType]*sync.Once),
		rawTriples: make(map[core.ContentType][]core.Interaction),
	}
	for _, ct := range core.AllContentTypes() {
		e.snapshots[ct] = &atomic.Pointer[Snapshot]{}
		e.loadOnce[ct] = &sync.Once{}
	}
	return e
}

func (e *FullEngine) Name() string { return "full" }

// TrainModel 全量重训。同内容类型的并发调用被 singleflight 收敛为一次训练。
func (e *FullEngine) TrainModel(ctx context.Context, interactions []core.Interaction, contentType core.ContentType, opts core.TrainOptions) error {
	if !contentType.Valid() {
		return core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput,
			fmt.Sprintf("engine: invalid content type %q", contentType))
	}
	_, err, _ := e.train.Do(string(contentType), func() (any, error) {
		return nil, e.retrain(ctx, interactions, contentType, opts)
	})
	return err
}

func (e *FullEngine) retrain(ctx context.Context, interactions []core.Interaction, contentType core.ContentType, opts core.TrainOptions) error {
	start := time.Now()
	log := e.log.With(zap.String("content_type", contentType.String()))
	log.Info("training model", zap.Int("interactions", len(interactions)))

	// 先留存原始三元组：首训完成前热门兜底还能用
	e.rawMu.Lock()
	e.rawTriples[contentType] = append([]core.Interaction(nil), interactions...)
	e.rawMu.Unlock()

	m, userMap, itemMap := BuildMatrix(interactions)
	if m.NNZ() == 0 {
		log.Warn("no interactions, skipping model training")
		e.metrics.TrainRun(contentType.String(), false, 0)
		return core.ErrEngineEmptyTrainingSet
	}

	model, err := fitModel(ctx, m, opts)
	if err != nil {
		log.Error("model fit failed", zap.Error(err))
		e.metrics.TrainRun(contentType.String(), false, 0)
		return err
	}

	snap := newSnapshot(model, m, userMap, itemMap, e.gen.Add(1), SnapshotStats{
		Users:        m.Rows,
		Items:        m.Cols,
		Interactions: m.NNZ(),
		Epochs:       opts.Epochs,
		Duration:     time.Since(start),
	})
	e.snapshots[contentType].Store(snap)
	log.Info("published snapshot",
		zap.Uint64("generation", snap.Generation),
		zap.Int("users", m.Rows),
		zap.Int("items", m.Cols),
		zap.Int("nnz", m.NNZ()),
		zap.Duration("duration", snap.Stats.Duration))

	// 持久化失败只记录，不作废刚训练好的内存快照
	if e.artifacts != nil && !e.saveSnapshot(ctx, contentType, snap) {
		log.Warn("snapshot persistence failed, serving from memory only")
	}
	e.metrics.TrainRun(contentType.String(), true, snap.Stats.Duration)
	return nil
}

// GetRecommendations 为用户打分并返回 TopN。
// 无快照或用户冷启动时退回热门路径，不作为错误返回。
func (e *FullEngine) GetRecommendations(ctx context.Context, userID string, contentType core.ContentType, n int, filterKnown bool) ([]core.ScoredItem, error) {
	if n <= 0 {
		n = DefaultTopN
	}
	snap := e.snapshot(ctx, contentType)
	if snap == nil {
		e.metrics.Fallback(contentType.String(), "untrained")
		return e.GetPopularItems(ctx, contentType, n)
	}

	row, ok := snap.UserMap[userID]
	if !ok {
		e.log.Debug("cold-start user, serving popular items",
			zap.String("user_id", userID),
			zap.String("content_type", contentType.String()))
		e.metrics.Fallback(contentType.String(), "cold_start")
		return e.GetPopularItems(ctx, contentType, n)
	}

	// 已知物品掩码：filterKnown 时直接跳过，等价于把分数压到 −∞ 再剔除
	var known map[int]struct{}
	if filterKnown {
		cols, _ := snap.Matrix.Row(row)
		known = make(map[int]struct{}, len(cols))
		for _, c := range cols {
			known[c] = struct{}{}
		}
	}

	scored := make([]core.ScoredItem, 0, len(snap.ItemIDs))
	for col, itemID := range snap.ItemIDs {
		if _, skip := known[col]; skip {
			continue
		}
		scored = append(scored, core.ScoredItem{ItemID: itemID, Score: snap.Model.Predict(row, col)})
	}
	return topN(scored, n), nil
}

// GetPopularItems 两种模式：
//   - 有快照：按交互矩阵的列权重和排序
//   - 无快照（未训练/降级）：直接在原始三元组上按累计权重排序
//
// 两种模式排序语义一致；模式二让冷系统在首训前也能给出合理结果。
func (e *FullEngine) GetPopularItems(ctx context.Context, contentType core.ContentType, n int) ([]core.ScoredItem, error) {
	if n <= 0 {
		n = DefaultTopN
	}
	if snap := e.snapshot(ctx, contentType); snap != nil {
		return snap.popularItems(n), nil
	}

	e.rawMu.RLock()
	triples := e.rawTriples[contentType]
	e.rawMu.RUnlock()
	return rankTriples(triples, n), nil
}

// GetSimilarItems 返回与目标物品余弦相似度最高的 TopN，不含目标自身。
// 无快照或物品未知时返回空结果。
func (e *FullEngine) GetSimilarItems(ctx context.Context, itemID string, contentType core.ContentType, n int) ([]core.ScoredItem, error) {
	if n <= 0 {
		n = DefaultTopN
	}
	snap := e.snapshot(ctx, contentType)
	if snap == nil {
		return nil, nil
	}
	target, ok := snap.ItemMap[itemID]
	if !ok {
		e.log.Debug("item not in training set",
			zap.String("item_id", itemID),
			zap.String("content_type", contentType.String()))
		return nil, nil
	}

	scored := make([]core.ScoredItem, 0, len(snap.ItemIDs)-1)
	for col, id := range snap.ItemIDs {
		if col == target {
			continue
		}
		scored = append(scored, core.ScoredItem{ItemID: id, Score: snap.Model.ItemSimilarity(target, col)})
	}
	return topN(scored, n), nil
}

// Snapshot 返回某内容类型当前已发布的一代（没有则为 nil）。只读。
func (e *FullEngine) Snapshot(contentType core.ContentType) *Snapshot {
	p, ok := e.snapshots[contentType]
	if !ok {
		return nil
	}
	return p.Load()
}

// snapshot 读取当前快照；内存没有时尝试从制品存储懒加载一次。
func (e *FullEngine) snapshot(ctx context.Context, contentType core.ContentType) *Snapshot {
	p, ok := e.snapshots[contentType]
	if !ok {
		return nil
	}
	if snap := p.Load(); snap != nil {
		return snap
	}
	if e.artifacts != nil {
		e.loadOnce[contentType].Do(func() {
			e.LoadSnapshot(ctx, contentType)
		})
	}
	return p.Load()
}

var _ core.Engine = (*FullEngine)(nil)
