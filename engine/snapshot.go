package engine

import (
	"sort"
	"time"

	"github.com/rushteam/budrec/core"
)

// Snapshot 是单个内容类型的一代完整训练状态：
// 模型、交互矩阵、双向 id 映射，来自同一次训练，作为整体原子发布。
// 发布后不可变：重训只产生新的一代并整体替换指针，绝不原地修改。
type Snapshot struct {
	Model  *Model
	Matrix *Matrix

	// UserMap / ItemMap：id → 下标
	UserMap map[string]int
	ItemMap map[string]int

	// UserIDs / ItemIDs：下标 → id（首次出现顺序）
	UserIDs []string
	ItemIDs []string

	Generation uint64
	TrainedAt  time.Time
	Stats      SnapshotStats
}

// SnapshotStats 记录一次训练的规模与耗时，随快照一起发布。
type SnapshotStats struct {
	Users        int           `json:"users"`
	Items        int           `json:"items"`
	Interactions int           `json:"interactions"` // 矩阵非零元素数
	Epochs       int           `json:"epochs"`
	Duration     time.Duration `json:"duration"`
}

// newSnapshot 由训练产物组装快照，反向映射按下标顺序展开。
func newSnapshot(model *Model, m *Matrix, userMap, itemMap map[string]int, gen uint64, stats SnapshotStats) *Snapshot {
	return &Snapshot{
		Model:      model,
		Matrix:     m,
		UserMap:    userMap,
		ItemMap:    itemMap,
		UserIDs:    reverseMap(userMap),
		ItemIDs:    reverseMap(itemMap),
		Generation: gen,
		TrainedAt:  time.Now(),
		Stats:      stats,
	}
}

// popularItems 按列权重和降序返回 TopN，平分按首次出现下标稳定排序。
func (s *Snapshot) popularItems(n int) []core.ScoredItem {
	sums := s.Matrix.ColSums()
	scored := make([]core.ScoredItem, 0, len(sums))
	for col, sum := range sums {
		if col >= len(s.ItemIDs) {
			break
		}
		scored = append(scored, core.ScoredItem{ItemID: s.ItemIDs[col], Score: sum})
	}
	return topN(scored, n)
}

func reverseMap(m map[string]int) []string {
	out := make([]string, len(m))
	for id, idx := range m {
		out[idx] = id
	}
	return out
}

// topN 按分数降序取前 n 个；输入按首次出现下标有序，
// 稳定排序保证平分时保持该顺序。
func topN(scored []core.ScoredItem, n int) []core.ScoredItem {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if n > 0 && len(scored) > n {
		scored = scored[:n]
	}
	return scored
}
