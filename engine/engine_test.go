package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/rushteam/budrec/core"
	"github.com/rushteam/budrec/store"
)

// testOpts 返回可复现的训练超参（单协程 + 固定种子）
func testOpts() core.TrainOptions {
	return core.TrainOptions{
		Components:     8,
		Loss:           "warp",
		Epochs:         10,
		LearningRate:   0.05,
		Regularization: 1e-5,
		NJobs:          1,
		Seed:           42,
	}
}

func testInteractions() []core.Interaction {
	return []core.Interaction{
		{UserID: "u1", ItemID: "i1", Weight: 5},
		{UserID: "u1", ItemID: "i2", Weight: 3},
		{UserID: "u2", ItemID: "i1", Weight: 5},
		{UserID: "u2", ItemID: "i3", Weight: 3},
		{UserID: "u3", ItemID: "i2", Weight: 5},
		{UserID: "u3", ItemID: "i3", Weight: 2},
		{UserID: "u3", ItemID: "i4", Weight: 3},
	}
}

func TestFullEngineTrainAndRecommend(t *testing.T) {
	ctx := context.Background()
	e := NewFullEngine(nil, zap.NewNop(), nil)

	if err := e.TrainModel(ctx, testInteractions(), core.ContentTypeMovie, testOpts()); err != nil {
		t.Fatalf("训练失败: %v", err)
	}

	snap := e.Snapshot(core.ContentTypeMovie)
	if snap == nil {
		t.Fatal("训练后应发布快照")
	}
	if snap.Stats.Users != 3 || snap.Stats.Items != 4 {
		t.Errorf("快照统计错误: %+v", snap.Stats)
	}

	recs, err := e.GetRecommendations(ctx, "u1", core.ContentTypeMovie, 10, true)
	if err != nil {
		t.Fatalf("推荐失败: %v", err)
	}
	// filterKnown: u1 已交互过 i1、i2，不应再出现
	for _, r := range recs {
		if r.ItemID == "i1" || r.ItemID == "i2" {
			t.Errorf("已交互物品 %s 不应出现在推荐中", r.ItemID)
		}
	}
	if len(recs) != 2 {
		t.Errorf("期望 2 个候选（i3、i4），实际 %d", len(recs))
	}
}

func TestFullEngineDeterminism(t *testing.T) {
	ctx := context.Background()

	run := func() []core.ScoredItem {
		e := NewFullEngine(nil, zap.NewNop(), nil)
		if err := e.TrainModel(ctx, testInteractions(), core.ContentTypeMovie, testOpts()); err != nil {
			t.Fatalf("训练失败: %v", err)
		}
		recs, err := e.GetRecommendations(ctx, "u2", core.ContentTypeMovie, 10, true)
		if err != nil {
			t.Fatalf("推荐失败: %v", err)
		}
		return recs
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("两次训练结果长度不同: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ItemID != b[i].ItemID || a[i].Score != b[i].Score {
			t.Errorf("位置 %d 不一致: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestFullEngineColdStartUser(t *testing.T) {
	ctx := context.Background()
	e := NewFullEngine(nil, zap.NewNop(), nil)
	if err := e.TrainModel(ctx, testInteractions(), core.ContentTypeAnime, testOpts()); err != nil {
		t.Fatalf("训练失败: %v", err)
	}

	recs, err := e.GetRecommendations(ctx, "stranger", core.ContentTypeAnime, 3, true)
	if err != nil {
		t.Fatalf("冷启动用户不应报错: %v", err)
	}
	popular, _ := e.GetPopularItems(ctx, core.ContentTypeAnime, 3)
	if len(recs) != len(popular) {
		t.Fatalf("冷启动结果应等于热门列表: %d vs %d", len(recs), len(popular))
	}
	for i := range recs {
		if recs[i].ItemID != popular[i].ItemID {
			t.Errorf("位置 %d：冷启动 %s != 热门 %s", i, recs[i].ItemID, popular[i].ItemID)
		}
	}
}

func TestFullEngineUntrained(t *testing.T) {
	ctx := context.Background()
	e := NewFullEngine(nil, zap.NewNop(), nil)

	recs, err := e.GetRecommendations(ctx, "u1", core.ContentTypeManga, 5, true)
	if err != nil {
		t.Fatalf("未训练不是错误: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("无任何数据时应返回空列表，实际 %v", recs)
	}

	sims, err := e.GetSimilarItems(ctx, "i1", core.ContentTypeManga, 5)
	if err != nil || len(sims) != 0 {
		t.Errorf("未训练的相似查询应返回空: items=%v err=%v", sims, err)
	}
}

func TestFullEngineTrainCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewFullEngine(nil, zap.NewNop(), nil)
	err := e.TrainModel(ctx, testInteractions(), core.ContentTypeMovie, testOpts())
	if err == nil {
		t.Fatal("已取消的 ctx 应中止训练")
	}
	if e.Snapshot(core.ContentTypeMovie) != nil {
		t.Error("中止的训练不应发布快照")
	}

	// 已有快照时，中止的重训不得覆盖上一代
	if err := e.TrainModel(context.Background(), testInteractions(), core.ContentTypeMovie, testOpts()); err != nil {
		t.Fatalf("训练失败: %v", err)
	}
	gen := e.Snapshot(core.ContentTypeMovie).Generation

	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	if err := e.TrainModel(ctx2, testInteractions(), core.ContentTypeMovie, testOpts()); err == nil {
		t.Fatal("已取消的重训应报错")
	}
	snap := e.Snapshot(core.ContentTypeMovie)
	if snap == nil || snap.Generation != gen {
		t.Errorf("中止的重训不应触碰已发布的快照: %+v", snap)
	}
}

func TestFullEngineEmptyTrainingSet(t *testing.T) {
	ctx := context.Background()
	e := NewFullEngine(nil, zap.NewNop(), nil)

	err := e.TrainModel(ctx, nil, core.ContentTypeMovie, testOpts())
	if err != core.ErrEngineEmptyTrainingSet {
		t.Fatalf("期望 ErrEngineEmptyTrainingSet，实际 %v", err)
	}
	if e.Snapshot(core.ContentTypeMovie) != nil {
		t.Error("空训练集不应发布快照")
	}
}

func TestFullEngineInvalidContentType(t *testing.T) {
	ctx := context.Background()
	e := NewFullEngine(nil, zap.NewNop(), nil)

	err := e.TrainModel(ctx, testInteractions(), core.ContentType("book"), testOpts())
	if de := core.GetDomainError(err); de == nil || de.Code != core.ErrorCodeInvalidInput {
		t.Errorf("期望 INVALID_INPUT，实际 %v", err)
	}
}

func TestFullEnginePopularOrdering(t *testing.T) {
	ctx := context.Background()
	e := NewFullEngine(nil, zap.NewNop(), nil)
	if err := e.TrainModel(ctx, testInteractions(), core.ContentTypeMovie, testOpts()); err != nil {
		t.Fatalf("训练失败: %v", err)
	}

	// 权重和: i1=10, i2=8, i3=5, i4=3
	popular, err := e.GetPopularItems(ctx, core.ContentTypeMovie, 10)
	if err != nil {
		t.Fatalf("热门查询失败: %v", err)
	}
	want := []string{"i1", "i2", "i3", "i4"}
	if len(popular) != len(want) {
		t.Fatalf("期望 %d 个物品，实际 %d", len(want), len(popular))
	}
	for i, id := range want {
		if popular[i].ItemID != id {
			t.Errorf("位置 %d：期望 %s，实际 %s", i, id, popular[i].ItemID)
		}
	}
}

func TestFullEnginePopularTieBreak(t *testing.T) {
	ctx := context.Background()
	e := NewFullEngine(nil, zap.NewNop(), nil)

	// ia 与 ib 同分，ia 先出现，应排前
	interactions := []core.Interaction{
		{UserID: "u1", ItemID: "ia", Weight: 3},
		{UserID: "u1", ItemID: "ib", Weight: 3},
		{UserID: "u2", ItemID: "ia", Weight: 2},
		{UserID: "u2", ItemID: "ib", Weight: 2},
	}
	if err := e.TrainModel(ctx, interactions, core.ContentTypeMovie, testOpts()); err != nil {
		t.Fatalf("训练失败: %v", err)
	}
	popular, _ := e.GetPopularItems(ctx, core.ContentTypeMovie, 2)
	if popular[0].ItemID != "ia" || popular[1].ItemID != "ib" {
		t.Errorf("同分物品应按首次出现顺序: %v", popular)
	}
}

func TestFullEngineSimilarItems(t *testing.T) {
	ctx := context.Background()
	e := NewFullEngine(nil, zap.NewNop(), nil)
	if err := e.TrainModel(ctx, testInteractions(), core.ContentTypeMovie, testOpts()); err != nil {
		t.Fatalf("训练失败: %v", err)
	}

	sims, err := e.GetSimilarItems(ctx, "i1", core.ContentTypeMovie, 10)
	if err != nil {
		t.Fatalf("相似查询失败: %v", err)
	}
	if len(sims) != 3 {
		t.Fatalf("期望 3 个相似物品，实际 %d", len(sims))
	}
	for _, s := range sims {
		if s.ItemID == "i1" {
			t.Error("相似列表不应包含目标自身")
		}
	}

	// 未知物品返回空，不是错误
	sims, err = e.GetSimilarItems(ctx, "nope", core.ContentTypeMovie, 10)
	if err != nil || len(sims) != 0 {
		t.Errorf("未知物品应返回空: items=%v err=%v", sims, err)
	}
}

func TestFullEngineParallelTrain(t *testing.T) {
	// 多分片并行训练（默认 NJobs=4），物品向量为跨分片共享状态，
	// race 检测下必须干净
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))
	var interactions []core.Interaction
	for u := 0; u < 400; u++ {
		for j := 0; j < 5; j++ {
			interactions = append(interactions, core.Interaction{
				UserID: fmt.Sprintf("u%d", u),
				ItemID: fmt.Sprintf("i%d", rng.Intn(60)),
				Weight: core.WeightWatched,
			})
		}
	}

	e := NewFullEngine(nil, zap.NewNop(), nil)
	if err := e.TrainModel(ctx, interactions, core.ContentTypeMovie, core.DefaultTrainOptions()); err != nil {
		t.Fatalf("并行训练失败: %v", err)
	}

	snap := e.Snapshot(core.ContentTypeMovie)
	if snap == nil {
		t.Fatal("并行训练后应发布快照")
	}
	if snap.Stats.Users != 400 {
		t.Errorf("期望 400 个用户，实际 %d", snap.Stats.Users)
	}
	if recs, err := e.GetRecommendations(ctx, "u0", core.ContentTypeMovie, 10, true); err != nil || len(recs) == 0 {
		t.Errorf("并行训练后推荐失败: recs=%d err=%v", len(recs), err)
	}
}

func TestFullEngineConcurrentRetrainAndRead(t *testing.T) {
	ctx := context.Background()
	e := NewFullEngine(nil, zap.NewNop(), nil)
	if err := e.TrainModel(ctx, testInteractions(), core.ContentTypeMovie, testOpts()); err != nil {
		t.Fatalf("首训失败: %v", err)
	}

	// 边重训边读：读者看到的快照必须内部一致（模型/矩阵/映射同代）
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			_ = e.TrainModel(ctx, testInteractions(), core.ContentTypeMovie, testOpts())
		}
	}()

	var wg sync.WaitGroup
	for r := 0; r < 50; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				snap := e.Snapshot(core.ContentTypeMovie)
				if snap == nil {
					continue
				}
				if len(snap.Model.UserFactors) != snap.Matrix.Rows ||
					len(snap.Model.ItemFactors) != snap.Matrix.Cols ||
					len(snap.UserIDs) != snap.Matrix.Rows ||
					len(snap.ItemIDs) != snap.Matrix.Cols {
					t.Errorf("快照内部不一致: gen=%d", snap.Generation)
					return
				}
				if _, err := e.GetRecommendations(ctx, "u1", core.ContentTypeMovie, 5, true); err != nil {
					t.Errorf("并发读推荐失败: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	<-done
}

func TestSnapshotPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	artifacts := store.NewMemoryStore()
	defer artifacts.Close()

	e1 := NewFullEngine(artifacts, zap.NewNop(), nil)
	if err := e1.TrainModel(ctx, testInteractions(), core.ContentTypeMovie, testOpts()); err != nil {
		t.Fatalf("训练失败: %v", err)
	}
	want, _ := e1.GetRecommendations(ctx, "u1", core.ContentTypeMovie, 10, true)

	// 新进程：从制品存储懒加载
	e2 := NewFullEngine(artifacts, zap.NewNop(), nil)
	got, err := e2.GetRecommendations(ctx, "u1", core.ContentTypeMovie, 10, true)
	if err != nil {
		t.Fatalf("加载后推荐失败: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("加载后结果长度不同: %d vs %d", len(got), len(want))
	}
	for i := range got {
		if got[i].ItemID != want[i].ItemID {
			t.Errorf("位置 %d：期望 %s，实际 %s", i, want[i].ItemID, got[i].ItemID)
		}
	}

	snap := e2.Snapshot(core.ContentTypeMovie)
	if snap == nil {
		t.Fatal("加载后应持有快照")
	}
	if snap.Stats.Users != 3 || snap.Stats.Items != 4 {
		t.Errorf("加载后的快照统计错误: %+v", snap.Stats)
	}
}

func TestLoadSnapshotMissingArtifacts(t *testing.T) {
	ctx := context.Background()
	artifacts := store.NewMemoryStore()
	defer artifacts.Close()

	e := NewFullEngine(artifacts, zap.NewNop(), nil)
	if e.LoadSnapshot(ctx, core.ContentTypeMovie) {
		t.Error("缺少制品时加载应返回 false")
	}
	if e.Snapshot(core.ContentTypeMovie) != nil {
		t.Error("加载失败不应发布快照")
	}
}

func TestPopularityOnlyEngine(t *testing.T) {
	ctx := context.Background()
	shared := store.NewMemoryStore()
	defer shared.Close()
	e := NewPopularityOnlyEngine(shared, zap.NewNop())

	if err := e.TrainModel(ctx, testInteractions(), core.ContentTypeMovie, core.TrainOptions{}); err != nil {
		t.Fatalf("训练失败: %v", err)
	}

	recs, err := e.GetRecommendations(ctx, "anyone", core.ContentTypeMovie, 3, true)
	if err != nil {
		t.Fatalf("推荐失败: %v", err)
	}
	if len(recs) != 3 || recs[0].ItemID != "i1" || recs[1].ItemID != "i2" || recs[2].ItemID != "i3" {
		t.Errorf("热度模式应返回热门前缀: %v", recs)
	}

	sims, err := e.GetSimilarItems(ctx, "i1", core.ContentTypeMovie, 5)
	if err != nil || sims != nil {
		t.Errorf("热度模式不支持相似查询，应返回空: %v, %v", sims, err)
	}

	if err := e.TrainModel(ctx, nil, core.ContentTypeManga, core.TrainOptions{}); err != core.ErrEngineEmptyTrainingSet {
		t.Errorf("期望 ErrEngineEmptyTrainingSet，实际 %v", err)
	}
}

func TestNewEngineModes(t *testing.T) {
	shared := store.NewMemoryStore()
	defer shared.Close()

	tests := []struct {
		mode string
		want string
	}{
		{ModeFull, "full"},
		{ModePopularity, "popularity"},
		{"", "full"},
		{"bogus", "full"},
	}
	for _, tt := range tests {
		e := New(tt.mode, nil, shared, zap.NewNop(), nil)
		if e.Name() != tt.want {
			t.Errorf("mode=%q: 期望引擎 %q，实际 %q", tt.mode, tt.want, e.Name())
		}
	}
}
