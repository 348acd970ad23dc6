package core

import "context"

// ContentRepository 是内容元数据的领域接口，由外部的内容库实现。
// 引擎只产出 (item_id, score)，对外返回前由 service 层用它补全元数据。
//
// 约定：元数据缺失返回 (nil, ErrStoreNotFound) 或 (nil, nil)，
// 该物品会被静默剔除，不作为部分错误上抛。
type ContentRepository interface {
	// GetByID 按内容类型与 ID 查询元数据
	GetByID(ctx context.Context, contentType ContentType, id string) (map[string]any, error)
}
