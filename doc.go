// Package budrec 是内容推荐子系统（电影 / 漫画 / 动画）。
//
// 设计要点：
// - 按内容类型独立建模：movie / manga / anime 各自训练、各自发布快照
// - 冷启动兜底：未训练或未知用户一律退回热门列表，请求永不因引擎失败而报错
// - 两级缓存：共享存储（Redis）+ 进程本地，任一层故障按未命中处理
// - 能力模式启动时选定：full（矩阵分解）或 popularity（纯热度）
package budrec

import "github.com/rushteam/budrec/core"

// 轻量 facade：便于用户直接 import "budrec" 使用核心抽象。
type Engine = core.Engine
type Item = core.Item
type ScoredItem = core.ScoredItem
type Interaction = core.Interaction
type ContentType = core.ContentType
type TrainOptions = core.TrainOptions

const (
	ContentTypeMovie = core.ContentTypeMovie
	ContentTypeManga = core.ContentTypeManga
	ContentTypeAnime = core.ContentTypeAnime
)
