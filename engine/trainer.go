package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/budrec/core"
)

// warpMaxSamples 是每个正样本寻找违反样本的最大负采样次数。
const warpMaxSamples = 32

// itemLockStripes 是物品向量锁的分片数。
const itemLockStripes = 64

// fitModel 在交互矩阵上训练矩阵分解模型。
//
// 损失为 WARP（Weighted Approximate-Rank Pairwise）：对每个 (user, 正样本)，
// 反复采负样本直到命中"负样本分数 + margin > 正样本分数"的违反对，
// 按估计排名 rank ≈ (nItems-1)/采样次数 的 log 加权做一次 SGD 更新。
// 参考 Weston et al., WSABIE (2011)；LightFM 的 warp loss 同一族。
//
// 并行：每轮把用户均分为 NJobs 个分片并发更新。用户向量按分片天然独占；
// 物品向量与偏置跨分片共享，读写都走按列分片的互斥锁（itemLockStripes 条），
// 保证并发训练没有数据竞争。严格确定性仅在 NJobs=1 时成立；固定 Seed 下
// 单分片训练结果完全可复现，测试依赖这一点。
//
// 取消：每轮开始检查 ctx，训练可以在轮边界被超时/取消预算收走。
func fitModel(ctx context.Context, m *Matrix, opts core.TrainOptions) (*Model, error) {
	if opts.Loss != "" && opts.Loss != "warp" {
		return nil, core.NewDomainError(core.ModuleEngine, core.ErrorCodeNotSupported,
			fmt.Sprintf("engine: unsupported loss %q", opts.Loss))
	}
	if opts.Components <= 0 {
		opts.Components = core.DefaultTrainOptions().Components
	}
	if opts.Epochs <= 0 {
		opts.Epochs = core.DefaultTrainOptions().Epochs
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = core.DefaultTrainOptions().LearningRate
	}
	if opts.NJobs <= 0 {
		opts.NJobs = 1
	}

	model := newModel(m.Rows, m.Cols, opts.Components, opts.Seed)

	// 每行的正样本集合，负采样时用来排除已知物品
	positives := make([]map[int]struct{}, m.Rows)
	for row := 0; row < m.Rows; row++ {
		cols, _ := m.Row(row)
		set := make(map[int]struct{}, len(cols))
		for _, c := range cols {
			set[c] = struct{}{}
		}
		positives[row] = set
	}

	jobs := opts.NJobs
	if jobs > m.Rows {
		jobs = m.Rows
	}

	locks := make([]sync.Mutex, itemLockStripes)

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		eg, _ := errgroup.WithContext(ctx)
		chunk := (m.Rows + jobs - 1) / jobs
		for shard := 0; shard < jobs; shard++ {
			lo := shard * chunk
			hi := lo + chunk
			if hi > m.Rows {
				hi = m.Rows
			}
			if lo >= hi {
				continue
			}
			// 每个分片独立的 rng，种子由 (seed, epoch, shard) 确定
			rng := rand.New(rand.NewSource(opts.Seed + int64(epoch)*1000 + int64(shard)))
			eg.Go(func() error {
				trainShard(model, m, positives, lo, hi, rng, opts, locks)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}
	return model, nil
}

// trainShard 对 [lo, hi) 范围内的用户各做一轮 WARP 更新。
//
// 用户向量只被本分片触碰，免锁；物品向量与偏置被所有分片共享，
// 任何读（打分）和写（梯度更新）都必须持有该列所在的分片锁。
func trainShard(model *Model, m *Matrix, positives []map[int]struct{}, lo, hi int, rng *rand.Rand, opts core.TrainOptions, locks []sync.Mutex) {
	nItems := m.Cols
	stripe := func(col int) *sync.Mutex { return &locks[col%len(locks)] }
	score := func(row, col int) float64 {
		mu := stripe(col)
		mu.Lock()
		s := model.Predict(row, col)
		mu.Unlock()
		return s
	}

	for row := lo; row < hi; row++ {
		cols, _ := m.Row(row)
		for _, pos := range cols {
			posScore := score(row, pos)

			// 负采样直到找到违反对
			var (
				neg      = -1
				negScore float64
				sampled  int
			)
			for sampled < warpMaxSamples && sampled < nItems {
				cand := rng.Intn(nItems)
				sampled++
				if _, known := positives[row][cand]; known {
					continue
				}
				s := score(row, cand)
				if s+1.0 > posScore {
					neg, negScore = cand, s
					break
				}
			}
			if neg < 0 {
				continue // 没找到违反对，正样本已排得足够靠前
			}

			// rank 估计越小（越快找到违反对）说明排名越差，权重越大
			rank := float64(nItems-1) / float64(sampled)
			weight := math.Log(rank + 1.0)
			loss := weight * (1.0 - posScore + negScore)
			if loss <= 0 {
				continue
			}

			lr := opts.LearningRate
			reg := opts.Regularization
			grad := weight * lr

			// 按分片下标顺序锁住 pos 与 neg 两列（同片只锁一次），避免死锁
			a := pos % len(locks)
			b := neg % len(locks)
			if a > b {
				a, b = b, a
			}
			locks[a].Lock()
			if b != a {
				locks[b].Lock()
			}

			uf := model.UserFactors[row]
			pf := model.ItemFactors[pos]
			nf := model.ItemFactors[neg]
			for k := 0; k < model.Components; k++ {
				du := pf[k] - nf[k]
				uf[k] += grad * (du - reg*uf[k])
				pf[k] += grad * (uf[k] - reg*pf[k])
				nf[k] += grad * (-uf[k] - reg*nf[k])
			}
			model.ItemBiases[pos] += grad * (1 - reg*model.ItemBiases[pos])
			model.ItemBiases[neg] -= grad * (1 + reg*model.ItemBiases[neg])
			model.UserBiases[row] += grad * (1 - reg*model.UserBiases[row])

			if b != a {
				locks[b].Unlock()
			}
			locks[a].Unlock()
		}
	}
}

// newModel 按固定种子初始化隐向量（小随机数，幅度 1/Components）。
func newModel(rows, cols, components int, seed int64) *Model {
	rng := rand.New(rand.NewSource(seed))
	scale := 1.0 / float64(components)

	model := &Model{
		Components:  components,
		UserFactors: make([][]float64, rows),
		ItemFactors: make([][]float64, cols),
		UserBiases:  make([]float64, rows),
		ItemBiases:  make([]float64, cols),
	}
	for i := range model.UserFactors {
		v := make([]float64, components)
		for k := range v {
			v[k] = (rng.Float64() - 0.5) * scale
		}
		model.UserFactors[i] = v
	}
	for i := range model.ItemFactors {
		v := make([]float64, components)
		for k := range v {
			v[k] = (rng.Float64() - 0.5) * scale
		}
		model.ItemFactors[i] = v
	}
	return model
}
