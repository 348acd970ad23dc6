package core

import "context"

// 隐式反馈权重：行为越强，权重越高。
// 与图存储中的关系类型一一对应（LIKES / WATCHED / WATCHLIST）。
const (
	WeightLiked     = 5.0 // 点赞 / 置顶（强正反馈）
	WeightWatched   = 3.0 // 已观看（中等反馈）
	WeightWatchlist = 2.0 // 加入待看列表（弱正反馈）
)

// Interaction 是一条用户-物品隐式反馈三元组。
// 同一 (user, item) 出现多条是正常情况（例如既点赞又观看），
// 构建交互矩阵时会按坐标求和，而不是拒绝或覆盖。
type Interaction struct {
	UserID string  `json:"user_id"`
	ItemID string  `json:"item_id"`
	Weight float64 `json:"weight"`
}

// InteractionExtractor 是交互数据的领域接口，由外部的图存储查询层实现。
//
// 设计原则：
//   - 领域层只定义需要什么数据，不关心 Cypher / 图模型细节
//   - 全量抽取用于批量重训（每次训练都重新生成三元组，非增量）
//   - 单用户抽取用于用户行为变化后的缓存刷新
//   - GetPopular 直接返回带元数据的热门列表，作为引擎完全不可用时的兜底
type InteractionExtractor interface {
	// GetInteractions 返回某内容类型下所有用户的交互三元组（稳定顺序）
	GetInteractions(ctx context.Context, contentType ContentType) ([]Interaction, error)

	// GetUserInteractions 返回单个用户的交互三元组
	GetUserInteractions(ctx context.Context, userID string, contentType ContentType) ([]Interaction, error)

	// GetPopular 返回热门内容的完整元数据（最后兜底，绕过引擎）
	GetPopular(ctx context.Context, contentType ContentType, limit int) ([]*Item, error)
}
