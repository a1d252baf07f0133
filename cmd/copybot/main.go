package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/copystrategy"
	"github.com/betbot/copybot/internal/executor"
	"github.com/betbot/copybot/internal/health"
	"github.com/betbot/copybot/internal/metrics"
	"github.com/betbot/copybot/internal/statusapi"
	"github.com/betbot/copybot/pkg/config"
	"github.com/betbot/copybot/pkg/logger"
	"github.com/betbot/copybot/pkg/shutdown"
)

// snapshotID 快照 key 的实例标识
const snapshotID = "copybot"

func main() {
	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json），为空则只用环境变量")
	envFile := flag.String("env", ".env", "dotenv 文件路径，已存在的环境变量不会被覆盖")
	healthOnly := flag.Bool("health", false, "只运行一次健康检查后退出")
	recommend := flag.String("recommend", "", "按给定余额（USD）输出推荐策略配置后退出")
	dryRun := flag.Bool("dry-run", false, "模拟下单，不发送真实订单")
	flag.Parse()

	if *recommend != "" {
		if err := printRecommended(*recommend); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		return
	}

	if *dryRun {
		_ = os.Setenv("DRY_RUN", "true")
	}
	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(2)
	}
	if *dryRun {
		cfg.DryRun = true
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *healthOnly); err != nil {
		logrus.Errorf("❌ %v", err)
		os.Exit(1)
	}
}

func printRecommended(balance string) error {
	b, err := decimal.NewFromString(balance)
	if err != nil || !b.IsPositive() {
		return fmt.Errorf("无效的余额: %q", balance)
	}
	out, err := config.MarshalStrategy(copystrategy.Recommended(b))
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func run(ctx context.Context, cfg *config.Config, healthOnly bool) error {
	strategy, err := cfg.StrategyConfig()
	if err != nil {
		return err
	}

	app, err := wire(ctx, cfg, strategy)
	if err != nil {
		return err
	}
	sm := shutdown.NewManager()
	sm.OnShutdown("store", func(context.Context) error { return app.store.Close() })
	if app.chain != nil {
		sm.OnShutdown("rpc", func(context.Context) error { app.chain.Close(); return nil })
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sm.Shutdown(sctx); err != nil {
			logrus.Warnf("关闭过程中出错: %v", err)
		}
	}()

	checker := app.healthChecker(cfg)
	result := checker.Run(ctx)
	health.Log(result)
	if healthOnly {
		if !result.Healthy {
			return fmt.Errorf("健康检查未通过")
		}
		return nil
	}
	if !result.Healthy && !cfg.DryRun {
		return fmt.Errorf("健康检查未通过，拒绝启动")
	}

	exec, err := executor.New(executor.Config{
		Wallet:       app.wallet,
		Traders:      cfg.Traders,
		PollInterval: cfg.FetchInterval,
		Machine:      machineConfig(cfg),
		AggregationEnabled: cfg.Aggregation.Enabled,
		AggregationWindow:  cfg.Aggregation.Window,
		AggregationMin:     cfg.Aggregation.MinTotalUSD,
	}, executor.Deps{
		Store:           app.store,
		Transport:       app.transport,
		Balances:        app.balances,
		MyPositions:     app.myPositions,
		TraderPositions: app.dataAPI,
		Notifier:        app.notifier,
		Strategy:        strategy,
	})
	if err != nil {
		return err
	}

	snapshots, closeSnapshots, err := openSnapshots(cfg.Snapshot)
	if err != nil {
		return err
	}
	sm.OnShutdown("snapshot-backend", func(context.Context) error { return closeSnapshots() })
	if err := exec.RestoreSnapshot(ctx, snapshots, snapshotID); err != nil {
		logrus.Warnf("恢复快照失败，从空状态启动: %v", err)
	}
	sm.OnShutdown("snapshot", func(context.Context) error {
		return exec.SaveSnapshot(snapshots, snapshotID)
	})

	// 两个 HTTP 服务都在 ctx 结束时自行关闭
	if cfg.MetricsAddr != "" {
		if _, err := metrics.StartAsync(ctx, cfg.MetricsAddr); err != nil {
			return err
		}
	}
	if cfg.StatusAddr != "" {
		if _, err := statusapi.New(exec, checker).Serve(ctx, cfg.StatusAddr); err != nil {
			return err
		}
	}

	if cfg.DryRun {
		logrus.Warnf("🧪 DRY RUN：订单在本地纸面撮合，起始余额 $%s", cfg.PaperBalanceUSD.StringFixed(2))
	}
	return exec.Run(ctx)
}
