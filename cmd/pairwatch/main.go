package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"pairwatch/config"
	"pairwatch/internal/alert"
	"pairwatch/internal/ingest"
	"pairwatch/internal/logger"
	"pairwatch/internal/metrics"
	"pairwatch/internal/model"
	"pairwatch/internal/notification"
	"pairwatch/internal/pipeline"
	signalengine "pairwatch/internal/signal"
	redisstore "pairwatch/internal/store/redis"
	sqlitestore "pairwatch/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[pairwatch] starting...")

	// ---- Load config from env ----
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[pairwatch] config load failed: %v", err)
	}
	logger.Init("pairwatch", parseLogLevel(cfg.LogLevel))

	pairKey := model.PairKey(cfg.SymbolA, cfg.SymbolB)
	log.Printf("[pairwatch] pair=%s cadence=%s window=%d threshold=%.2f recompute=%s",
		pairKey, cfg.Cadence, cfg.Window, cfg.ZThreshold, cfg.RecomputeInterval)

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Open SQLite (single writer) ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[pairwatch] sqlite init failed: %v", err)
	}
	defer store.Close()
	health.SetSQLiteOK(true)
	log.Println("[pairwatch] sqlite store ready")

	// ---- Connect Redis (optional) ----
	var pub *redisstore.Publisher
	pub, err = redisstore.New(redisstore.PublisherConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Printf("[pairwatch] WARNING: redis init failed: %v (continuing without snapshots)", err)
		health.SetRedisConnected(false)
		pub = nil
	} else {
		health.SetRedisConnected(true)
		defer pub.Close()
	}

	// ---- Periodic liveness checks ----
	if pub != nil {
		health.StartLivenessChecker(ctx, pub.Client(), store.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	}

	// ---- Alert delivery ----
	notifiers := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
		log.Println("[pairwatch] webhook notifier enabled")
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
		log.Println("[pairwatch] telegram notifier enabled")
	}
	detector := alert.New(store, cfg.ZThreshold, notifiers...)

	// ---- Recompute pipeline ----
	pipe := pipeline.New(pipeline.Config{
		SymbolA:  cfg.SymbolA,
		SymbolB:  cfg.SymbolB,
		Cadence:  cfg.Cadence,
		Lookback: cfg.Lookback,
		Interval: cfg.RecomputeInterval,
		Hedge:    cfg.HedgeRatio,
	}, store, signalengine.NewEngine(cfg.Window), detector, snapshotSink(pub), prom, health)
	go pipe.Run(ctx)

	// ---- Tick source: replay file or live websocket ----
	if cfg.ReplayFile != "" {
		log.Printf("[pairwatch] replaying captured feed from %s", cfg.ReplayFile)
		health.SetIngestState("replay")

		rep := ingest.NewReplayer(cfg.ReplayFile, store)
		rep.OnTick = func() {
			prom.TicksTotal.Inc()
			health.SetLastTickTime(time.Now())
		}
		rep.OnDecodeError = func() { prom.DecodeErrors.Inc() }
		rep.OnWriteError = func() { prom.DroppedWrites.Inc() }

		go func() {
			if err := rep.Run(ctx); err != nil {
				log.Printf("[pairwatch] replay error: %v", err)
			}
			health.SetIngestState("replay done")
		}()
	} else {
		ing := ingest.New(ingest.Config{
			BaseURL: cfg.FeedURL,
			Symbols: cfg.Symbols(),
		}, store)
		ing.OnTick = func() {
			prom.TicksTotal.Inc()
			health.SetLastTickTime(time.Now())
		}
		ing.OnDecodeError = func() { prom.DecodeErrors.Inc() }
		ing.OnWriteError = func() { prom.DroppedWrites.Inc() }
		ing.OnReconnect = func() { prom.WSReconnects.Inc() }
		ing.Start()
		defer ing.Stop()

		// Mirror ingestor state into /healthz.
		go func() {
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					health.SetIngestState(ing.State().String())
				}
			}
		}()
		log.Printf("[pairwatch] live feed: %s (%s)", cfg.FeedURL, strings.Join(cfg.Symbols(), ", "))
	}

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[pairwatch] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[pairwatch] shutdown complete.")
}

// snapshotSink adapts the optional Redis publisher to the pipeline interface
// without handing it a typed nil.
func snapshotSink(pub *redisstore.Publisher) pipeline.Publisher {
	if pub == nil {
		return nil
	}
	return pub
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
