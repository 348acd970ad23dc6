// Package feature 提供推荐结果的在线特征富化。
// 可选能力：配置了 Feature Store 时给物品元数据附加实时特征
// （例如 realtime_ctr、trending_score），没配置则整个环节跳过。
package feature

import (
	"context"

	"github.com/rushteam/budrec/core"
)

// Provider 是物品在线特征的领域接口。
//
// 约定：返回 map[itemID]map[featureName]value；
// 取不到特征（部分或全部）不是错误，调用方按 fail-open 处理。
type Provider interface {
	// Name 返回特征来源名称（用于日志/监控）
	Name() string

	// ItemFeatures 批量获取物品的在线特征
	ItemFeatures(ctx context.Context, contentType core.ContentType, itemIDs []string) (map[string]map[string]any, error)
}
