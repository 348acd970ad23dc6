// Package config 提供推荐子系统的 YAML 配置。
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/budrec/core"
)

// Config 是子系统完整配置结构。
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Engine  EngineConfig  `yaml:"engine"`
	Redis   RedisConfig   `yaml:"redis"`
	Cache   CacheConfig   `yaml:"cache"`
	Train   TrainConfig   `yaml:"train"`
	Filter  FilterConfig  `yaml:"filter"`
	Feast   FeastConfig   `yaml:"feast"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type EngineConfig struct {
	// Mode 能力模式：full / popularity（启动时一次性选定）
	Mode string `yaml:"mode"`

	// ModelDir 模型制品目录（快照四个 blob 的落盘位置）
	ModelDir string `yaml:"model_dir"`
}

type RedisConfig struct {
	// Addr 为空表示不配置共享缓存层，只用本地缓存
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

type CacheConfig struct {
	// TTL 缓存条目存活秒数
	TTL int `yaml:"ttl"`
}

type TrainConfig struct {
	Components     int     `yaml:"components"`
	Epochs         int     `yaml:"epochs"`
	NJobs          int     `yaml:"n_jobs"`
	LearningRate   float64 `yaml:"learning_rate"`
	Regularization float64 `yaml:"regularization"`
	Seed           int64   `yaml:"seed"`

	// TimeoutSeconds 单次训练的取消预算（0 表示不限制）
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type FilterConfig struct {
	// Expr 对富化结果的 CEL 过滤表达式，空表示不过滤
	Expr string `yaml:"expr"`
}

type FeastConfig struct {
	// Host 为空表示不启用在线特征富化
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Project  string   `yaml:"project"`
	Features []string `yaml:"features"`
}

// Default 返回默认配置（与批量训练入口的固定超参一致）。
func Default() *Config {
	opts := core.DefaultTrainOptions()
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Engine:  EngineConfig{Mode: "full", ModelDir: "models"},
		Cache:   CacheConfig{TTL: 3600},
		Train: TrainConfig{
			Components:     opts.Components,
			Epochs:         opts.Epochs,
			NJobs:          opts.NJobs,
			LearningRate:   opts.LearningRate,
			Regularization: opts.Regularization,
			Seed:           opts.Seed,
		},
	}
}

// Load 从 YAML 文件加载配置，未出现的字段保持默认值。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// TrainOptions 把训练配置转换为引擎超参。
func (c *Config) TrainOptions() core.TrainOptions {
	opts := core.DefaultTrainOptions()
	if c.Train.Components > 0 {
		opts.Components = c.Train.Components
	}
	if c.Train.Epochs > 0 {
		opts.Epochs = c.Train.Epochs
	}
	if c.Train.NJobs > 0 {
		opts.NJobs = c.Train.NJobs
	}
	if c.Train.LearningRate > 0 {
		opts.LearningRate = c.Train.LearningRate
	}
	if c.Train.Regularization > 0 {
		opts.Regularization = c.Train.Regularization
	}
	if c.Train.Seed != 0 {
		opts.Seed = c.Train.Seed
	}
	return opts
}
