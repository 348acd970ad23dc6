package engine

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/rushteam/budrec/core"
)

// 每个内容类型的快照固定持久化为四个 blob，整体读写。
// 命名延续原系统的制品布局：{content_type}_{model|user_map|item_map|matrix}。
func artifactKeys(ct core.ContentType) (model, userMap, itemMap, matrix string) {
	return fmt.Sprintf("%s_model", ct),
		fmt.Sprintf("%s_user_map", ct),
		fmt.Sprintf("%s_item_map", ct),
		fmt.Sprintf("%s_matrix", ct)
}

// persistedModel 是 model blob 的磁盘结构（模型本体 + 本代元信息）。
type persistedModel struct {
	Model      *Model        `json:"model"`
	Generation uint64        `json:"generation"`
	TrainedAt  time.Time     `json:"trained_at"`
	Stats      SnapshotStats `json:"stats"`
}

// SaveSnapshot 将当前已发布的快照持久化，返回是否成功。
// 失败只记录日志，不影响内存中的快照。
func (e *FullEngine) SaveSnapshot(ctx context.Context, contentType core.ContentType) bool {
	snap := e.Snapshot(contentType)
	if snap == nil {
		e.log.Warn("no snapshot to save", zap.String("content_type", contentType.String()))
		return false
	}
	return e.saveSnapshot(ctx, contentType, snap)
}

func (e *FullEngine) saveSnapshot(ctx context.Context, contentType core.ContentType, snap *Snapshot) bool {
	if e.artifacts == nil {
		return false
	}
	log := e.log.With(zap.String("content_type", contentType.String()))

	modelKey, userKey, itemKey, matrixKey := artifactKeys(contentType)
	blobs := make(map[string][]byte, 4)

	var err error
	if blobs[modelKey], err = json.Marshal(persistedModel{
		Model:      snap.Model,
		Generation: snap.Generation,
		TrainedAt:  snap.TrainedAt,
		Stats:      snap.Stats,
	}); err == nil {
		// 映射以下标顺序的 id 列表落盘，加载时重建 map，保序
		if blobs[userKey], err = json.Marshal(snap.UserIDs); err == nil {
			if blobs[itemKey], err = json.Marshal(snap.ItemIDs); err == nil {
				blobs[matrixKey], err = json.Marshal(snap.Matrix)
			}
		}
	}
	if err != nil {
		log.Error("snapshot encode failed", zap.Error(err))
		return false
	}

	if err := e.artifacts.BatchSet(ctx, blobs); err != nil {
		log.Error("snapshot save failed", zap.Error(err), zap.String("store", e.artifacts.Name()))
		return false
	}
	log.Info("snapshot saved", zap.Uint64("generation", snap.Generation))
	return true
}

// LoadSnapshot 从制品存储加载并发布快照，返回是否成功。
// 四个 blob 必须齐全且互相一致；任何失败都不触碰内存中已有的状态。
func (e *FullEngine) LoadSnapshot(ctx context.Context, contentType core.ContentType) bool {
	if e.artifacts == nil || !contentType.Valid() {
		return false
	}
	log := e.log.With(zap.String("content_type", contentType.String()))

	modelKey, userKey, itemKey, matrixKey := artifactKeys(contentType)
	blobs, err := e.artifacts.BatchGet(ctx, []string{modelKey, userKey, itemKey, matrixKey})
	if err != nil {
		log.Error("snapshot load failed", zap.Error(err))
		return false
	}
	if len(blobs) != 4 {
		log.Warn("snapshot artifacts incomplete", zap.Int("blobs", len(blobs)))
		return false
	}

	var pm persistedModel
	var userIDs, itemIDs []string
	var m Matrix
	if err := json.Unmarshal(blobs[modelKey], &pm); err != nil {
		log.Error("model blob decode failed", zap.Error(err))
		return false
	}
	if err := json.Unmarshal(blobs[userKey], &userIDs); err != nil {
		log.Error("user map blob decode failed", zap.Error(err))
		return false
	}
	if err := json.Unmarshal(blobs[itemKey], &itemIDs); err != nil {
		log.Error("item map blob decode failed", zap.Error(err))
		return false
	}
	if err := json.Unmarshal(blobs[matrixKey], &m); err != nil {
		log.Error("matrix blob decode failed", zap.Error(err))
		return false
	}

	// 不变式：矩阵形状必须等于映射大小
	if pm.Model == nil || m.Rows != len(userIDs) || m.Cols != len(itemIDs) {
		log.Error("snapshot artifacts inconsistent",
			zap.Int("rows", m.Rows), zap.Int("users", len(userIDs)),
			zap.Int("cols", m.Cols), zap.Int("items", len(itemIDs)))
		return false
	}

	userMap := make(map[string]int, len(userIDs))
	for idx, id := range userIDs {
		userMap[id] = idx
	}
	itemMap := make(map[string]int, len(itemIDs))
	for idx, id := range itemIDs {
		itemMap[id] = idx
	}

	snap := &Snapshot{
		Model:      pm.Model,
		Matrix:     &m,
		UserMap:    userMap,
		ItemMap:    itemMap,
		UserIDs:    userIDs,
		ItemIDs:    itemIDs,
		Generation: e.gen.Add(1),
		TrainedAt:  pm.TrainedAt,
		Stats:      pm.Stats,
	}
	e.snapshots[contentType].Store(snap)
	log.Info("snapshot loaded", zap.Uint64("generation", snap.Generation),
		zap.Int("users", m.Rows), zap.Int("items", m.Cols))
	return true
}
