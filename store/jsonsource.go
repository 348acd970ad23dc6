package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/rushteam/budrec/core"
)

// JSONSource 是基于本地 JSON 文件的数据源，同时实现交互抽取与
// 元数据仓库，供批量训练与命令行调试使用。
//
// 目录布局（按内容类型分文件）：
//
//	<dir>/movie_interactions.json  [{"user_id":"u1","item_id":"m1","weight":5}, ...]
//	<dir>/movie_items.json         {"m1": {"title": "..."}, ...}
//
// manga/anime 同理。缺失的文件按空数据处理，不是错误。
type JSONSource struct {
	dir string
}

var (
	_ core.InteractionExtractor = (*JSONSource)(nil)
	_ core.ContentRepository    = (*JSONSource)(nil)
)

func NewJSONSource(dir string) *JSONSource {
	return &JSONSource{dir: dir}
}

type jsonInteraction struct {
	UserID string  `json:"user_id"`
	ItemID string  `json:"item_id"`
	Weight float64 `json:"weight"`
}

// GetInteractions 读取某内容类型的全部交互三元组。
func (s *JSONSource) GetInteractions(ctx context.Context, contentType core.ContentType) ([]core.Interaction, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%s_interactions.json", contentType))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read interactions: %w", err)
	}
	var rows []jsonInteraction
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode interactions %s: %w", path, err)
	}
	out := make([]core.Interaction, 0, len(rows))
	for _, r := range rows {
		if r.UserID == "" || r.ItemID == "" {
			continue
		}
		w := r.Weight
		if w <= 0 {
			w = core.WeightWatched
		}
		out = append(out, core.Interaction{UserID: r.UserID, ItemID: r.ItemID, Weight: w})
	}
	return out, nil
}

// GetUserInteractions 过滤出某用户的交互。
func (s *JSONSource) GetUserInteractions(ctx context.Context, userID string, contentType core.ContentType) ([]core.Interaction, error) {
	all, err := s.GetInteractions(ctx, contentType)
	if err != nil {
		return nil, err
	}
	var out []core.Interaction
	for _, it := range all {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	return out, nil
}

// GetPopular 按权重和排序返回热门物品，同分按首次出现先后。
func (s *JSONSource) GetPopular(ctx context.Context, contentType core.ContentType, limit int) ([]*core.Item, error) {
	all, err := s.GetInteractions(ctx, contentType)
	if err != nil {
		return nil, err
	}
	sums := make(map[string]float64)
	var order []string
	for _, it := range all {
		if _, ok := sums[it.ItemID]; !ok {
			order = append(order, it.ItemID)
		}
		sums[it.ItemID] += it.Weight
	}
	sort.SliceStable(order, func(i, j int) bool {
		return sums[order[i]] > sums[order[j]]
	})
	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}
	items := make([]*core.Item, 0, len(order))
	for _, id := range order {
		meta, err := s.GetByID(ctx, contentType, id)
		if err != nil {
			if core.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		it := &core.Item{ID: id, Meta: meta, Source: "popular"}
		it.SetScore(sums[id])
		items = append(items, it)
	}
	return items, nil
}

// GetByID 返回某物品的元数据，未登记的物品返回 NOT_FOUND。
func (s *JSONSource) GetByID(ctx context.Context, contentType core.ContentType, itemID string) (map[string]any, error) {
	catalog, err := s.loadCatalog(contentType)
	if err != nil {
		return nil, err
	}
	meta, ok := catalog[itemID]
	if !ok {
		return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeNotFound, fmt.Sprintf("item %q not found", itemID))
	}
	return meta, nil
}

func (s *JSONSource) loadCatalog(contentType core.ContentType) (map[string]map[string]any, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%s_items.json", contentType))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]map[string]any{}, nil
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var catalog map[string]map[string]any
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return catalog, nil
}
