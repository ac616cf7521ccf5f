package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ProofChain/internal/api"
	"ProofChain/internal/config"
	"ProofChain/internal/host"
	"ProofChain/internal/observability/alerting"
	"ProofChain/internal/observability/metrics"
	"ProofChain/internal/proofs"
	"ProofChain/pkg/logger"
)

// main 是 proofd 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("proofd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logger.Init(loggerConfig(cfg.Log)); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	l := logger.Named("proofd")

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	sink, closeSink, err := openSink(ctx, cfg.Events)
	if err != nil {
		return err
	}
	defer closeSink()

	receipts, err := openReceipts(ctx, cfg.Receipts)
	if err != nil {
		return err
	}
	defer receipts.Close()

	authSvc, err := newAuthService(cfg.Auth)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Metrics.MetricsEnabled() {
		m = metrics.New()
	}

	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerting.WebhookURL})
	}

	h := host.New(store,
		host.WithClock(proofs.NewMonotonicClock(proofs.SystemClock{})),
		host.WithSink(sink),
		host.WithReceipts(receipts),
		host.WithMetrics(m),
		host.WithAlerter(alerting.NewFanout(notifiers...)),
		host.WithMaxProofIDLength(maxProofIDLength(cfg.Storage.Driver)),
	)
	if total, err := h.Views().TotalProofs(ctx); err == nil {
		m.SetProofsTotal(total)
		l.Info("注册表已加载", slog.Uint64("total_proofs", total), slog.String("storage", cfg.Storage.Driver))
	}

	server := api.NewServer(cfg.Server.Address, h, api.Options{
		Auth:              authSvc,
		Metrics:           m,
		ExposeMetrics:     m != nil,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSeconds) * time.Second,
		ShutdownTimeout:   time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second,
	})

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	l.Info("proofd 已退出")
	return nil
}

// loadConfig 优先读取 PROOFD_CONFIG，其次是 configs/proofd.yaml，都不存在时使用默认配置。
func loadConfig() (*config.Config, error) {
	path := os.Getenv(config.EnvConfigPath)
	if path != "" {
		return config.Load(path)
	}
	path = filepath.Join("configs", "proofd.yaml")
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}
	cfg := config.Default(".")
	return cfg, cfg.Validate()
}
