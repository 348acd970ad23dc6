package feature

import (
	"context"
	"fmt"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	"github.com/feast-dev/feast/sdk/go/protos/feast/types"

	"github.com/rushteam/budrec/core"
)

// FeastProvider 是基于官方 Feast Go SDK 的特征提供者。
//
// Feast 是开源 Feature Store，在线存储面向实时预测。
// 这里只用在线特征接口：按 item_id 实体批量拉取配置的特征，
// 附加到推荐物品的元数据上（写入缓存前）。
type FeastProvider struct {
	client *feastsdk.GrpcClient

	// Project Feast 项目名称
	Project string

	// Features 要拉取的特征名称列表，例如 ["item_stats:realtime_ctr"]
	Features []string

	// EntityKey 实体键名，默认 "item_id"
	EntityKey string
}

// NewFeastProvider 连接 Feast Feature Server（gRPC，默认端口 6565）。
func NewFeastProvider(host string, port int, project string, features []string) (*FeastProvider, error) {
	if port == 0 {
		port = 6565
	}
	client, err := feastsdk.NewGrpcClient(host, port)
	if err != nil {
		return nil, fmt.Errorf("feast grpc client: %w", err)
	}
	return &FeastProvider{
		client:   client,
		Project:  project,
		Features: features,
	}, nil
}

func (p *FeastProvider) Name() string { return "feast" }

func (p *FeastProvider) ItemFeatures(ctx context.Context, _ core.ContentType, itemIDs []string) (map[string]map[string]any, error) {
	if len(itemIDs) == 0 || len(p.Features) == 0 {
		return nil, nil
	}
	entityKey := p.EntityKey
	if entityKey == "" {
		entityKey = "item_id"
	}

	entityRows := make([]feastsdk.Row, len(itemIDs))
	for i, id := range itemIDs {
		entityRows[i] = feastsdk.Row{entityKey: feastsdk.StrVal(id)}
	}

	resp, err := p.client.GetOnlineFeatures(ctx, &feastsdk.OnlineFeaturesRequest{
		Features: p.Features,
		Entities: entityRows,
		Project:  p.Project,
	})
	if err != nil {
		return nil, fmt.Errorf("feast get online features: %w", err)
	}

	rows := resp.Rows()
	out := make(map[string]map[string]any, len(itemIDs))
	for i, row := range rows {
		if i >= len(itemIDs) {
			break
		}
		values := make(map[string]any, len(p.Features))
		for _, name := range p.Features {
			if v, ok := row[name]; ok {
				if converted := fromValue(v); converted != nil {
					values[name] = converted
				}
			}
		}
		if len(values) > 0 {
			out[itemIDs[i]] = values
		}
	}
	return out, nil
}

// fromValue 将 Feast 的 proto Value 转为普通 Go 值。
func fromValue(v *types.Value) any {
	switch val := v.GetVal().(type) {
	case *types.Value_StringVal:
		return val.StringVal
	case *types.Value_Int32Val:
		return int64(val.Int32Val)
	case *types.Value_Int64Val:
		return val.Int64Val
	case *types.Value_FloatVal:
		return float64(val.FloatVal)
	case *types.Value_DoubleVal:
		return val.DoubleVal
	case *types.Value_BoolVal:
		return val.BoolVal
	case *types.Value_BytesVal:
		return val.BytesVal
	default:
		return nil
	}
}

var _ Provider = (*FeastProvider)(nil)
