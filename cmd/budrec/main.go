package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rushteam/budrec/cache"
	"github.com/rushteam/budrec/config"
	"github.com/rushteam/budrec/core"
	"github.com/rushteam/budrec/engine"
	"github.com/rushteam/budrec/feature"
	"github.com/rushteam/budrec/metrics"
	"github.com/rushteam/budrec/pkg/dsl"
	"github.com/rushteam/budrec/pkg/logging"
	"github.com/rushteam/budrec/service"
	"github.com/rushteam/budrec/store"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "budrec",
		Short: "Content recommendation engine",
		Long: `budrec trains per-content-type recommendation models from user
interactions and serves personalized, popularity and similarity listings.

Interactions and item catalogs are read from JSON files under --data:

  <data>/movie_interactions.json  [{"user_id":"u1","item_id":"m1","weight":5}, ...]
  <data>/movie_items.json         {"m1": {"title": "..."}, ...}`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("data", "data", "Directory with interaction and catalog JSON files")

	rootCmd.AddCommand(
		newVersionCmd(),
		newTrainCmd(),
		newRecommendCmd(),
		newPopularCmd(),
		newSimilarCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("budrec %s\n", version)
		},
	}
}

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train recommendation models from interaction data",
		Long: `Train rebuilds the model for every content type, or a single one
when --type is given. Training for one type never blocks or breaks the
others; the exit code is non-zero when every requested type failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := signalContext()
			svc, log, err := buildService(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			typeFlag, _ := cmd.Flags().GetString("type")
			results := make(map[core.ContentType]bool)
			if typeFlag != "" {
				ct, err := core.ParseContentType(typeFlag)
				if err != nil {
					return err
				}
				results[ct] = svc.TrainModel(ctx, ct)
			} else {
				results = svc.TrainAllModels(ctx)
			}

			failed := 0
			for ct, ok := range results {
				status := "ok"
				if !ok {
					status = "skipped/failed"
					failed++
				}
				fmt.Printf("%-8s %s\n", ct, status)
			}
			if failed == len(results) {
				return fmt.Errorf("no model trained")
			}
			return nil
		},
	}
	cmd.Flags().String("type", "", "Train a single content type (movie, manga, anime)")
	return cmd
}

func newRecommendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recommend <user-id>",
		Short: "Print personalized recommendations for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := signalContext()
			svc, log, err := buildService(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			ct, n, err := listingFlags(cmd)
			if err != nil {
				return err
			}
			return printItems(svc.GetRecommendations(ctx, args[0], ct, n))
		},
	}
	addListingFlags(cmd)
	return cmd
}

func newPopularCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "popular",
		Short: "Print the popularity listing for a content type",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := signalContext()
			svc, log, err := buildService(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			ct, n, err := listingFlags(cmd)
			if err != nil {
				return err
			}
			return printItems(svc.GetPopularItems(ctx, ct, n))
		},
	}
	addListingFlags(cmd)
	return cmd
}

func newSimilarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "similar <item-id>",
		Short: "Print items similar to the given item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := signalContext()
			svc, log, err := buildService(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			ct, n, err := listingFlags(cmd)
			if err != nil {
				return err
			}
			return printItems(svc.GetSimilarItems(ctx, args[0], ct, n))
		},
	}
	addListingFlags(cmd)
	return cmd
}

func addListingFlags(cmd *cobra.Command) {
	cmd.Flags().String("type", "movie", "Content type (movie, manga, anime)")
	cmd.Flags().Int("n", 10, "Number of items to return")
}

// buildService 按配置装配整条推荐链路。
func buildService(cmd *cobra.Command) (*service.Service, *zap.Logger, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data")

	cfg := config.Default()
	if cfgPath != "" {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("init logging: %w", err)
	}

	shared, cacheShared, err := sharedStores(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	artifacts, err := store.NewFileStore(cfg.Engine.ModelDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open model dir: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	eng := engine.New(cfg.Engine.Mode, artifacts, shared, log, m)
	recCache := cache.New(cacheShared, cfg.Cache.TTL, log, m)
	source := store.NewJSONSource(dataDir)

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithTrainOptions(cfg.TrainOptions()),
	}
	if cfg.Train.TimeoutSeconds > 0 {
		opts = append(opts, service.WithTrainTimeout(time.Duration(cfg.Train.TimeoutSeconds)*time.Second))
	}
	if cfg.Filter.Expr != "" {
		f, err := dsl.NewFilter(cfg.Filter.Expr)
		if err != nil {
			return nil, nil, fmt.Errorf("compile filter: %w", err)
		}
		opts = append(opts, service.WithFilter(f))
	}
	if cfg.Feast.Host != "" {
		fp, err := feature.NewFeastProvider(cfg.Feast.Host, cfg.Feast.Port, cfg.Feast.Project, cfg.Feast.Features)
		if err != nil {
			return nil, nil, fmt.Errorf("connect feast: %w", err)
		}
		opts = append(opts, service.WithFeatureProvider(fp))
	}

	return service.New(eng, recCache, source, source, opts...), log, nil
}

// sharedStores 返回引擎共享层与缓存共享层。
// 配了 Redis 时两者共用同一个连接；未配置时引擎退回进程内存储
// （降级模式的热门榜还能用），缓存的共享层则置空——进程内再开一个
// "共享层"只是多一份本地 map 加一次序列化，缓存包的本地层已覆盖该场景。
func sharedStores(cfg *config.Config) (core.KeyValueStore, core.Store, error) {
	if cfg.Redis.Addr != "" {
		rs, err := store.NewRedisStore(cfg.Redis.Addr, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return rs, rs, nil
	}
	return store.NewMemoryStore(), nil, nil
}

func listingFlags(cmd *cobra.Command) (core.ContentType, int, error) {
	typeFlag, _ := cmd.Flags().GetString("type")
	n, _ := cmd.Flags().GetInt("n")
	ct, err := core.ParseContentType(typeFlag)
	if err != nil {
		return "", 0, err
	}
	return ct, n, nil
}

func printItems(items []*core.Item) error {
	out, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx
}
