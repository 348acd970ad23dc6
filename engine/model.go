package engine

import "math"

// Model 是矩阵分解模型：用户/物品隐向量与偏置。
// 预测分数 = 用户隐向量 · 物品隐向量 + 物品偏置。
type Model struct {
	Components  int         `json:"components"`
	UserFactors [][]float64 `json:"user_factors"`
	ItemFactors [][]float64 `json:"item_factors"`
	UserBiases  []float64   `json:"user_biases"`
	ItemBiases  []float64   `json:"item_biases"`
}

// Predict 返回用户 row 对物品 col 的预测分数。
// 用户偏置对同一用户的排序没有影响，不参与打分。
func (m *Model) Predict(row, col int) float64 {
	return dot(m.UserFactors[row], m.ItemFactors[col]) + m.ItemBiases[col]
}

// ItemSimilarity 返回两个物品隐向量的余弦相似度。
// ε 防止零向量除零。
func (m *Model) ItemSimilarity(a, b int) float64 {
	const eps = 1e-10
	va, vb := m.ItemFactors[a], m.ItemFactors[b]
	return dot(va, vb) / (norm(va)*norm(vb) + eps)
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}
