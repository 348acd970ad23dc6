package core

// ScoreMetaKey 是富化后物品元数据中推荐分数的字段名。
const ScoreMetaKey = "recommendation_score"

// ScoredItem 是引擎输出的最小单元：物品 ID 加预测分数。
// 元数据富化发生在 service 层，引擎只关心 ID 与分数。
type ScoredItem struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// Item 是推荐链路中对外返回的承载结构：元数据、分数、来源。
// Source 标记结果产生路径（model / popularity / fallback），用于观测与排查。
type Item struct {
	ID     string         `json:"id"`
	Score  float64        `json:"score"`
	Meta   map[string]any `json:"meta,omitempty"`
	Source string         `json:"source,omitempty"`
}

// NewItem 创建一个带空元数据的 Item。
func NewItem(id string) *Item {
	return &Item{
		ID:   id,
		Meta: make(map[string]any),
	}
}

// SetScore 写入分数，并同步到元数据的 recommendation_score 字段，
// 保证序列化后的对外结构始终携带该字段。
func (it *Item) SetScore(score float64) {
	it.Score = score
	if it.Meta == nil {
		it.Meta = make(map[string]any)
	}
	it.Meta[ScoreMetaKey] = score
}
