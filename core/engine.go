package core

import "context"

// TrainOptions 是矩阵分解训练的超参数。
type TrainOptions struct {
	// Components 隐向量维度
	Components int

	// Loss 损失函数（目前仅支持 "warp"：implicit-feedback 的成对排序损失）
	Loss string

	// Epochs 训练轮数
	Epochs int

	// LearningRate SGD 学习率
	LearningRate float64

	// Regularization L2 正则系数
	Regularization float64

	// NJobs 每轮训练的并行分片数
	NJobs int

	// Seed 随机种子；固定种子下训练结果确定
	Seed int64
}

// DefaultTrainOptions 返回默认超参数（与原系统批量训练入口一致）。
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Components:     30,
		Loss:           "warp",
		Epochs:         30,
		LearningRate:   0.05,
		Regularization: 1e-5,
		NJobs:          4,
		Seed:           42,
	}
}

// Engine 是推荐引擎的领域接口。
//
// 两个实现，启动时按能力选择其一：
//   - engine.FullEngine：矩阵分解训练 + 个性化打分 + 热门兜底
//   - engine.PopularityOnlyEngine：降级能力，只存原始三元组、只按热度出结果
//
// 失败语义：
//   - 请求的内容类型没有模型从不致命，统一退回热门路径
//   - 持久化读写失败返回 bool，加载失败不破坏内存态
type Engine interface {
	// Name 返回引擎能力名称（用于日志/监控）
	Name() string

	// TrainModel 全量重训某内容类型：建矩阵、训练、原子发布新快照并持久化。
	// 交互为空时记录日志并跳过（旧快照不受影响），返回 ErrEngineEmptyTrainingSet。
	TrainModel(ctx context.Context, interactions []Interaction, contentType ContentType, opts TrainOptions) error

	// GetRecommendations 为用户打分并返回 TopN。
	// 无快照或用户冷启动时退回 GetPopularItems，不返回错误。
	GetRecommendations(ctx context.Context, userID string, contentType ContentType, n int, filterKnown bool) ([]ScoredItem, error)

	// GetPopularItems 按累计交互权重降序返回 TopN 热门物品。
	GetPopularItems(ctx context.Context, contentType ContentType, n int) ([]ScoredItem, error)

	// GetSimilarItems 返回与目标物品隐向量余弦相似度最高的 TopN（不含自身）。
	// 无快照或物品未知时返回空结果。
	GetSimilarItems(ctx context.Context, itemID string, contentType ContentType, n int) ([]ScoredItem, error)
}
