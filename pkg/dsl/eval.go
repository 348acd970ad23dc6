// Package dsl 提供基于 CEL (Common Expression Language) 的推荐结果过滤表达式。
// CEL 是 Google 开发的表达式语言，类型安全、高性能、线程安全。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/budrec/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvOnce sync.Once
	celEnvErr  error
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("meta", cel.DynType),
			cel.Variable("user", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Filter 是编译好的结果过滤器：表达式返回 true 表示保留该物品。
//
// 表达式语法（CEL 标准语法）：
//   - 分数：item.score > 0.5
//   - 元数据：meta.genre != "hentai" / meta.year >= 2000
//   - 来源：item.source == "model"
//   - 逻辑：meta.nsfw != true && item.score > 0.0
//
// 注意：CEL 访问不存在的 key 会报错，用 meta.key != null 检查存在性。
// 求值出错按"保留"处理：过滤规则坏了不应该清空推荐结果。
type Filter struct {
	expr string
	prg  cel.Program
}

// NewFilter 编译过滤表达式。空表达式返回 (nil, nil)，表示不过滤。
func NewFilter(expr string) (*Filter, error) {
	if expr == "" {
		return nil, nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %v", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

// Expr 返回原始表达式（用于日志）。
func (f *Filter) Expr() string { return f.expr }

// Keep 判断富化后的物品是否保留。nil Filter 保留一切。
func (f *Filter) Keep(item *core.Item, userID string, contentType core.ContentType) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, _, err := f.prg.Eval(map[string]any{
		"item": map[string]any{
			"id":     item.ID,
			"score":  item.Score,
			"source": item.Source,
		},
		"meta": item.Meta,
		"user": map[string]any{
			"user_id":      userID,
			"content_type": contentType.String(),
		},
	})
	if err != nil {
		return true, fmt.Errorf("eval error: %w", err)
	}
	keep, ok := out.Value().(bool)
	if !ok {
		return true, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return keep, nil
}
