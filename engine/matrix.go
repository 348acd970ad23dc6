package engine

import (
	"sort"

	"github.com/rushteam/budrec/core"
)

// Matrix 是用户×物品的稀疏交互矩阵（CSR 格式）。
// 行对应用户、列对应物品，值为累计交互权重。
// 只包含训练集中出现过的 id；不在映射中的 id 在服务端走冷启动路径，
// 绝不允许拿未知 id 去索引矩阵。
type Matrix struct {
	Rows   int       `json:"rows"`
	Cols   int       `json:"cols"`
	RowPtr []int     `json:"row_ptr"`
	ColIdx []int     `json:"col_idx"`
	Data   []float64 `json:"data"`
}

// NNZ 返回非零元素个数。
func (m *Matrix) NNZ() int { return len(m.Data) }

// Row 返回某一行的列下标与权重（CSR 中列下标升序）。
func (m *Matrix) Row(row int) (cols []int, vals []float64) {
	if row < 0 || row >= m.Rows {
		return nil, nil
	}
	start, end := m.RowPtr[row], m.RowPtr[row+1]
	return m.ColIdx[start:end], m.Data[start:end]
}

// ColSums 返回每列的权重和（热门度 = 物品收到的累计交互权重）。
func (m *Matrix) ColSums() []float64 {
	sums := make([]float64, m.Cols)
	for row := 0; row < m.Rows; row++ {
		start, end := m.RowPtr[row], m.RowPtr[row+1]
		for i := start; i < end; i++ {
			sums[m.ColIdx[i]] += m.Data[i]
		}
	}
	return sums
}

// BuildMatrix 从交互三元组构建稀疏矩阵与双向 id 映射。
//
// 语义：
//   - 行/列下标按首次出现顺序分配（确定性，平分 tie-break 依赖这个顺序）
//   - 重复 (user, item) 坐标在物化时求和：这是 COO→CSR 合并的结构性质，
//     同一物品"点赞 5.0 + 已看 3.0"累计为 8.0
//   - 空输入返回 1×1 全零矩阵与空映射
func BuildMatrix(interactions []core.Interaction) (*Matrix, map[string]int, map[string]int) {
	userMap := make(map[string]int)
	itemMap := make(map[string]int)

	if len(interactions) == 0 {
		return &Matrix{Rows: 1, Cols: 1, RowPtr: []int{0, 0}}, userMap, itemMap
	}

	// 首次出现顺序分配下标
	for _, in := range interactions {
		if _, ok := userMap[in.UserID]; !ok {
			userMap[in.UserID] = len(userMap)
		}
		if _, ok := itemMap[in.ItemID]; !ok {
			itemMap[in.ItemID] = len(itemMap)
		}
	}

	// 按行聚合，重复坐标求和
	rows := make([]map[int]float64, len(userMap))
	for i := range rows {
		rows[i] = make(map[int]float64)
	}
	for _, in := range interactions {
		rows[userMap[in.UserID]][itemMap[in.ItemID]] += in.Weight
	}

	m := &Matrix{
		Rows:   len(userMap),
		Cols:   len(itemMap),
		RowPtr: make([]int, 1, len(userMap)+1),
	}
	for _, row := range rows {
		cols := make([]int, 0, len(row))
		for col := range row {
			cols = append(cols, col)
		}
		sort.Ints(cols)
		for _, col := range cols {
			m.ColIdx = append(m.ColIdx, col)
			m.Data = append(m.Data, row[col])
		}
		m.RowPtr = append(m.RowPtr, len(m.ColIdx))
	}
	return m, userMap, itemMap
}
