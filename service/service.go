// Package service 编排推荐链路：缓存查询、引擎打分、元数据富化、
// 在线特征附加、结果过滤与训练入口。
//
// 这是唯一面向请求方与批量训练方的门面，边界语义：任何内部失败都被
// 捕获、带上下文记录日志，并降级为空列表或热门列表——绝不向调用方
// 抛出原始内部错误。
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/budrec/cache"
	"github.com/rushteam/budrec/core"
	"github.com/rushteam/budrec/feature"
	"github.com/rushteam/budrec/metrics"
	"github.com/rushteam/budrec/pkg/dsl"
)

type Service struct {
	engine    core.Engine
	cache     *cache.RecommendationCache
	repo      core.ContentRepository
	extractor core.InteractionExtractor

	features     feature.Provider // 可选
	filter       *dsl.Filter      // 可选
	trainOpts    core.TrainOptions
	trainTimeout time.Duration // 0 表示不限制
	log          *zap.Logger
	m            *metrics.Metrics
}

type Option func(*Service)

// WithLogger 注入 logger（默认 no-op）。
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.log = logger.Named("service")
		}
	}
}

// WithMetrics 注入指标采集。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.m = m }
}

// WithFeatureProvider 启用在线特征富化。
func WithFeatureProvider(p feature.Provider) Option {
	return func(s *Service) { s.features = p }
}

// WithFilter 启用结果过滤表达式。
func WithFilter(f *dsl.Filter) Option {
	return func(s *Service) { s.filter = f }
}

// WithTrainOptions 覆盖默认训练超参。
func WithTrainOptions(opts core.TrainOptions) Option {
	return func(s *Service) { s.trainOpts = opts }
}

// WithTrainTimeout 设置单次训练的取消预算。
func WithTrainTimeout(d time.Duration) Option {
	return func(s *Service) { s.trainTimeout = d }
}

func New(engine core.Engine, c *cache.RecommendationCache, repo core.ContentRepository, extractor core.InteractionExtractor, opts ...Option) *Service {
	s := &Service{
		engine:    engine,
		cache:     c,
		repo:      repo,
		extractor: extractor,
		trainOpts: core.DefaultTrainOptions(),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetRecommendations 返回某用户的 TopN 富化推荐列表。
//
// 路径：缓存命中直接返回（零引擎/元数据调用）；未命中走引擎打分，
// 逐条补全元数据（缺失的静默剔除）、附加在线特征、过滤、写缓存。
// 引擎本身失败时绕过引擎，退回抽取层的热门列表。永不返回错误。
func (s *Service) GetRecommendations(ctx context.Context, userID string, contentType core.ContentType, n int) []*core.Item {
	if !contentType.Valid() {
		s.log.Error("invalid content type",
			zap.String("content_type", contentType.String()),
			zap.String("user_id", userID),
			zap.String("op", "get_recommendations"))
		return []*core.Item{}
	}
	if n <= 0 {
		n = 10
	}

	if items, ok := s.cache.Get(ctx, userID, contentType, n); ok {
		s.log.Debug("cache hit",
			zap.String("user_id", userID),
			zap.String("content_type", contentType.String()),
			zap.Int("n", n))
		return items
	}

	scored, err := s.engine.GetRecommendations(ctx, userID, contentType, n, true)
	if err != nil {
		s.log.Error("engine failed, falling back to popular listing",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("content_type", contentType.String()),
			zap.String("op", "get_recommendations"))
		s.m.Fallback(contentType.String(), "engine_error")
		items := s.popularFallback(ctx, contentType, n)
		s.cache.Set(ctx, userID, contentType, n, items)
		return items
	}

	items := s.enrich(ctx, userID, contentType, scored, s.engine.Name())
	s.cache.Set(ctx, userID, contentType, n, items)
	return items
}

// GetMovieRecommendations 返回电影推荐。
func (s *Service) GetMovieRecommendations(ctx context.Context, userID string, n int) []*core.Item {
	return s.GetRecommendations(ctx, userID, core.ContentTypeMovie, n)
}

// GetMangaRecommendations 返回漫画推荐。
func (s *Service) GetMangaRecommendations(ctx context.Context, userID string, n int) []*core.Item {
	return s.GetRecommendations(ctx, userID, core.ContentTypeManga, n)
}

// GetAnimeRecommendations 返回动画推荐。
func (s *Service) GetAnimeRecommendations(ctx context.Context, userID string, n int) []*core.Item {
	return s.GetRecommendations(ctx, userID, core.ContentTypeAnime, n)
}

// GetPopularItems 返回富化后的热门列表（不走缓存，引擎失败退回抽取层）。
func (s *Service) GetPopularItems(ctx context.Context, contentType core.ContentType, n int) []*core.Item {
	if !contentType.Valid() {
		return []*core.Item{}
	}
	scored, err := s.engine.GetPopularItems(ctx, contentType, n)
	if err != nil || len(scored) == 0 {
		if err != nil {
			s.log.Error("popular items failed",
				zap.Error(err),
				zap.String("content_type", contentType.String()),
				zap.String("op", "get_popular_items"))
		}
		return s.popularFallback(ctx, contentType, n)
	}
	return s.enrich(ctx, "", contentType, scored, "popularity")
}

// GetSimilarItems 返回与目标物品最相似的富化列表。
// 无快照或物品未知时为空列表，不是错误。
func (s *Service) GetSimilarItems(ctx context.Context, itemID string, contentType core.ContentType, n int) []*core.Item {
	if !contentType.Valid() {
		return []*core.Item{}
	}
	scored, err := s.engine.GetSimilarItems(ctx, itemID, contentType, n)
	if err != nil {
		s.log.Error("similar items failed",
			zap.Error(err),
			zap.String("item_id", itemID),
			zap.String("content_type", contentType.String()),
			zap.String("op", "get_similar_items"))
		return []*core.Item{}
	}
	return s.enrich(ctx, "", contentType, scored, "similarity")
}

// TrainModel 全量重训某内容类型。交互为空时不调引擎直接返回 false；
// 一切异常都被捕获、记录并转成 false，绝不上抛。
func (s *Service) TrainModel(ctx context.Context, contentType core.ContentType) bool {
	if !contentType.Valid() {
		s.log.Error("invalid content type", zap.String("content_type", contentType.String()), zap.String("op", "train_model"))
		return false
	}
	log := s.log.With(zap.String("content_type", contentType.String()), zap.String("op", "train_model"))
	log.Info("training model")

	interactions, err := s.extractor.GetInteractions(ctx, contentType)
	if err != nil {
		log.Error("interaction extraction failed", zap.Error(err))
		return false
	}
	if len(interactions) == 0 {
		log.Warn("no interactions found, skipping training")
		return false
	}

	trainCtx := ctx
	if s.trainTimeout > 0 {
		var cancel context.CancelFunc
		trainCtx, cancel = context.WithTimeout(ctx, s.trainTimeout)
		defer cancel()
	}
	if err := s.engine.TrainModel(trainCtx, interactions, contentType, s.trainOpts); err != nil {
		log.Error("training failed", zap.Error(err))
		return false
	}
	log.Info("training completed", zap.Int("interactions", len(interactions)))
	return true
}

// TrainAllModels 顺序训练全部内容类型，互不依赖，单个失败不阻断其余。
func (s *Service) TrainAllModels(ctx context.Context) map[core.ContentType]bool {
	results := make(map[core.ContentType]bool, len(core.AllContentTypes()))
	for _, ct := range core.AllContentTypes() {
		results[ct] = s.TrainModel(ctx, ct)
	}
	s.log.Info("model training finished",
		zap.Bool("movie", results[core.ContentTypeMovie]),
		zap.Bool("manga", results[core.ContentTypeManga]),
		zap.Bool("anime", results[core.ContentTypeAnime]))
	return results
}

// RefreshUser 在用户交互变化后失效其全部缓存条目，下次请求重新计算。
// 返回本地层删除的条目数。
func (s *Service) RefreshUser(ctx context.Context, userID string) int {
	removed := s.cache.Invalidate(ctx, userID)
	s.log.Info("user recommendations invalidated",
		zap.String("user_id", userID), zap.Int("removed", removed))
	return removed
}

// InvalidateUser 失效某用户指定内容类型的缓存条目。
func (s *Service) InvalidateUser(ctx context.Context, userID string, contentTypes ...core.ContentType) int {
	return s.cache.Invalidate(ctx, userID, contentTypes...)
}

// enrich 把 (item_id, score) 列表补全成对外返回的富化物品列表。
// 元数据缺失的物品静默剔除；在线特征与过滤都按 fail-open 处理。
func (s *Service) enrich(ctx context.Context, userID string, contentType core.ContentType, scored []core.ScoredItem, source string) []*core.Item {
	items := make([]*core.Item, 0, len(scored))
	for _, sc := range scored {
		meta, err := s.repo.GetByID(ctx, contentType, sc.ItemID)
		if err != nil {
			if !core.IsNotFound(err) {
				s.log.Warn("metadata lookup failed",
					zap.Error(err),
					zap.String("item_id", sc.ItemID),
					zap.String("content_type", contentType.String()))
			}
			continue
		}
		if meta == nil {
			continue
		}
		it := &core.Item{ID: sc.ItemID, Meta: meta, Source: source}
		it.SetScore(sc.Score)
		items = append(items, it)
	}

	s.attachFeatures(ctx, contentType, items)
	return s.applyFilter(items, userID, contentType)
}

// attachFeatures 附加在线特征到物品元数据。拿不到特征不是错误。
func (s *Service) attachFeatures(ctx context.Context, contentType core.ContentType, items []*core.Item) {
	if s.features == nil || len(items) == 0 {
		return
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	values, err := s.features.ItemFeatures(ctx, contentType, ids)
	if err != nil {
		s.log.Warn("feature enrichment failed",
			zap.Error(err),
			zap.String("provider", s.features.Name()),
			zap.String("content_type", contentType.String()))
		return
	}
	for _, it := range items {
		for name, v := range values[it.ID] {
			it.Meta[name] = v
		}
	}
}

// applyFilter 应用结果过滤表达式。求值出错的物品保留并记录。
func (s *Service) applyFilter(items []*core.Item, userID string, contentType core.ContentType) []*core.Item {
	if s.filter == nil {
		return items
	}
	kept := items[:0]
	for _, it := range items {
		keep, err := s.filter.Keep(it, userID, contentType)
		if err != nil {
			s.log.Warn("filter eval failed, keeping item",
				zap.Error(err),
				zap.String("item_id", it.ID),
				zap.String("expr", s.filter.Expr()))
		}
		if keep {
			kept = append(kept, it)
		}
	}
	return kept
}

// popularFallback 是最后的兜底：引擎完全不可用时直接用抽取层的热门列表。
func (s *Service) popularFallback(ctx context.Context, contentType core.ContentType, n int) []*core.Item {
	items, err := s.extractor.GetPopular(ctx, contentType, n)
	if err != nil {
		s.log.Error("popular fallback failed",
			zap.Error(err),
			zap.String("content_type", contentType.String()),
			zap.String("op", "popular_fallback"))
		return []*core.Item{}
	}
	for _, it := range items {
		if it.Source == "" {
			it.Source = "fallback"
		}
	}
	return items
}
