// Command papertrader wires the order lifecycle core against the simulated
// venue: SQLite order store, Redis event stream, Prometheus metrics, and an
// optional WebSocket mark-price feed.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-core/config"
	"trading-core/internal/domain"
	"trading-core/internal/events"
	"trading-core/internal/execution"
	"trading-core/internal/logger"
	"trading-core/internal/marketdata"
	"trading-core/internal/metrics"
	"trading-core/internal/portfolio"
	sqlitestore "trading-core/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "path", *configPath, "error", err)
		os.Exit(1)
	}

	log := logger.Init("papertrader", parseLevel(cfg.LogLevel))
	log.Info("starting", "account", cfg.AccountID, "initial_balance", cfg.InitialBalance)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Portfolio ----
	pf, err := portfolio.New(cfg.AccountID, cfg.BaseCurrency, cfg.InitialBalance, cfg.Risk)
	if err != nil {
		log.Error("portfolio init failed", "error", err)
		os.Exit(1)
	}

	// ---- Order store ----
	repo, err := sqlitestore.NewOrderRepo(cfg.SQLitePath)
	if err != nil {
		log.Error("order store init failed", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	// ---- Event sink: Redis stream, in-memory fallback ----
	var sink execution.EventSink
	redisSink, err := events.NewRedisSink(events.RedisSinkConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.EventStream,
	})
	if err != nil {
		log.Warn("redis unavailable, events stay in memory", "addr", cfg.RedisAddr, "error", err)
		sink = events.NewMemorySink()
		health.StartLivenessChecker(ctx, nil, repo.DB(), 15*time.Second)
	} else {
		defer redisSink.Close()
		sink = redisSink
		health.StartLivenessChecker(ctx, redisSink.Client(), repo.DB(), 15*time.Second)
	}

	// ---- Venue & coordinator ----
	venue := execution.NewPaperVenue(1024, cfg.SlippageBps)
	coord := execution.NewCoordinator(repo, venue, sink, pf, execution.CoordinatorConfig{
		DefaultTIF: domain.TimeInForce(cfg.DefaultTimeInForce),
		Metrics:    prom,
		Logger:     log,
	})

	go coord.ConsumeFills(ctx, venue.Fills())

	// ---- Mark price feed (optional) ----
	if cfg.FeedURL != "" {
		ing := marketdata.New(marketdata.IngestConfig{URL: cfg.FeedURL}, log)
		ing.OnReconnect = func() {
			prom.FeedReconnects.Inc()
			health.SetFeedConnected(false)
		}
		ing.OnFlush = func(int) {
			prom.MarksApplied.Inc()
			health.SetFeedConnected(true)
		}
		go ing.Run(ctx, pf)
	}

	// ---- Housekeeping: expiry sweep, stop-loss watch, metrics log ----
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if expired, err := coord.ExpireStale(ctx); err == nil && len(expired) > 0 {
					log.Info("expired stale orders", "count", len(expired))
				}
				for _, p := range pf.CheckStopLoss() {
					log.Warn("stop loss breached", "symbol", p.Symbol,
						"avg_open", p.AvgOpenPrice, "mark", p.MarkPrice)
				}
				m := pf.CalculateMetrics()
				log.Info("portfolio", "total_value", m.TotalValue, "cash", m.CashBalance,
					"unrealized_pnl", m.UnrealizedPnL, "realized_pnl", m.RealizedPnL,
					"leverage", m.Leverage, "open_positions", m.OpenPositions)
			}
		}
	}()

	// ---- Wait for shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
