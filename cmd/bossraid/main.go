package main

import (
	"BossRaid/internal/core"
	"BossRaid/internal/event"
	"BossRaid/internal/holders"
	"BossRaid/internal/ingestion"
	"BossRaid/internal/observability"
	"BossRaid/internal/persistence"
	"BossRaid/internal/query"
	"BossRaid/internal/server"
	"BossRaid/internal/state"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds all application configuration, loaded from environment
// variables.
type Config struct {
	// Storage: Postgres when a DSN is set, flat file otherwise.
	PostgresDSN   string
	DataFile      string
	MigrationsDir string

	// Owner wallets by boss slug; a trade from a boss's own wallet is an
	// instant kill.
	OwnerWallets map[string]string

	// Trade feed
	FeedURL          string
	Mint             string
	FeedStaleAfter   time.Duration
	FeedMaxAttempts  int
	FeedRetryBackoff time.Duration

	// Ingestion filter
	RateWindow    time.Duration
	RatePerWindow int

	// Engine
	AdvanceDelay time.Duration
	DedupCap     int
	DedupRetain  int

	// Persistence worker
	PersistConcurrency int

	// Outbound NATS (optional)
	NATSURL string

	// Solana RPC for holder lookups
	RPCURL string

	// HTTP
	HTTPAddr       string
	MetricsAddr    string
	APIKey         string
	AllowedOrigins []string

	// Channels
	FrameChanSize     int
	TradeChanSize     int
	PersistChanSize   int
	BroadcastChanSize int
	PublishChanSize   int
}

func DefaultConfig() Config {
	return Config{
		PostgresDSN:   os.Getenv("BOSSRAID_POSTGRES_DSN"),
		DataFile:      envOrDefault("BOSSRAID_DATA_FILE", "data/game-data.json"),
		MigrationsDir: envOrDefault("BOSSRAID_MIGRATIONS_DIR", "migrations"),

		OwnerWallets: parseOwnerWallets(os.Getenv("BOSSRAID_OWNER_WALLETS")),

		FeedURL:          envOrDefault("BOSSRAID_FEED_URL", "wss://pumpportal.fun/api/data"),
		Mint:             os.Getenv("BOSSRAID_TOKEN_MINT"),
		FeedStaleAfter:   envDurationOrDefault("BOSSRAID_FEED_STALE_AFTER", 30*time.Second),
		FeedMaxAttempts:  envIntOrDefault("BOSSRAID_FEED_MAX_ATTEMPTS", 5),
		FeedRetryBackoff: envDurationOrDefault("BOSSRAID_FEED_RETRY_BACKOFF", time.Second),

		RateWindow:    time.Second,
		RatePerWindow: envIntOrDefault("BOSSRAID_RATE_PER_WINDOW", 10),

		AdvanceDelay: envDurationOrDefault("BOSSRAID_ADVANCE_DELAY", 4*time.Second),
		DedupCap:     envIntOrDefault("BOSSRAID_DEDUP_CAP", 1000),
		DedupRetain:  envIntOrDefault("BOSSRAID_DEDUP_RETAIN", 500),

		PersistConcurrency: envIntOrDefault("BOSSRAID_PERSIST_CONCURRENCY", 3),

		NATSURL: os.Getenv("BOSSRAID_NATS_URL"),
		RPCURL:  envOrDefault("BOSSRAID_RPC_URL", "https://api.mainnet-beta.solana.com"),

		HTTPAddr:       envOrDefault("BOSSRAID_HTTP_ADDR", ":8080"),
		MetricsAddr:    envOrDefault("BOSSRAID_METRICS_ADDR", ":9091"),
		APIKey:         os.Getenv("BOSSRAID_API_KEY"),
		AllowedOrigins: splitNonEmpty(os.Getenv("BOSSRAID_ALLOWED_ORIGINS")),

		FrameChanSize:     envIntOrDefault("BOSSRAID_FRAME_CHAN_SIZE", 1024),
		TradeChanSize:     envIntOrDefault("BOSSRAID_TRADE_CHAN_SIZE", 1024),
		PersistChanSize:   envIntOrDefault("BOSSRAID_PERSIST_CHAN_SIZE", 1024),
		BroadcastChanSize: envIntOrDefault("BOSSRAID_BROADCAST_CHAN_SIZE", 256),
		PublishChanSize:   envIntOrDefault("BOSSRAID_PUBLISH_CHAN_SIZE", 1024),
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("INFO: BossRaid starting...")

	cfg := DefaultConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Store ---
	var store persistence.Store
	if cfg.PostgresDSN != "" {
		pg, err := persistence.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("FATAL: postgres open: %v", err)
		}
		log.Println("INFO: Postgres connected")

		migrator := persistence.NewMigrator(pg.DB(), cfg.MigrationsDir)
		if err := migrator.Up(ctx); err != nil {
			log.Fatalf("FATAL: run migrations: %v", err)
		}
		log.Println("INFO: migrations applied")
		store = pg
	} else {
		fs, err := persistence.OpenFileStore(cfg.DataFile)
		if err != nil {
			log.Fatalf("FATAL: open file store %s: %v", cfg.DataFile, err)
		}
		log.Printf("INFO: using file store at %s", cfg.DataFile)
		store = fs
	}
	defer store.Close()

	// --- Seed roster & load state ---
	seeds := state.DefaultRoster()
	state.ApplyOwnerWallets(seeds, cfg.OwnerWallets)
	for _, seed := range seeds {
		if _, err := store.RegisterBoss(ctx, seed); err != nil {
			log.Fatalf("FATAL: register boss %s: %v", seed.BossID, err)
		}
	}

	bosses, err := store.GetAllBosses(ctx)
	if err != nil {
		log.Fatalf("FATAL: load bosses: %v", err)
	}
	session, err := store.GetOrCreateSession(ctx)
	if err != nil {
		log.Fatalf("FATAL: load session: %v", err)
	}
	log.Printf("INFO: loaded %d bosses, session %d (current boss %d)",
		len(bosses), session.ID, session.CurrentBossID)

	// --- Channels ---
	// Persist sends block (backpressure), broadcast and publish drop.
	frameChan := make(chan ingestion.RawFrame, cfg.FrameChanSize)
	tradeChan := make(chan *event.TradeEvent, cfg.TradeChanSize)
	persistChan := make(chan core.Output, cfg.PersistChanSize)
	broadcastChan := make(chan core.BroadcastEvent, cfg.BroadcastChanSize)
	hubChan := make(chan core.BroadcastEvent, cfg.BroadcastChanSize)

	// --- Engine ---
	engine := core.NewEngine(core.EngineConfig{
		AdvanceDelay: cfg.AdvanceDelay,
		DedupCap:     cfg.DedupCap,
		DedupRetain:  cfg.DedupRetain,
	}, bosses, session, tradeChan, persistChan, broadcastChan, metrics, observability.NewLogger("engine"))

	// --- Persistence worker ---
	worker := persistence.NewWorker(store, persistChan, int64(cfg.PersistConcurrency), metrics)

	// --- Websocket hub ---
	hub := server.NewHub(hubChan, metrics, observability.NewLogger("hub"))

	// --- Outbound NATS publisher (optional) ---
	var publishChan chan ingestion.PublishableEvent
	var outboundPublisher *ingestion.OutboundPublisher
	if cfg.NATSURL != "" {
		nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("FATAL: nats connect: %v", err)
		}
		defer nc.Close()
		if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
			log.Fatalf("FATAL: ensure outbound stream: %v", err)
		}
		publishChan = make(chan ingestion.PublishableEvent, cfg.PublishChanSize)
		outboundPublisher = ingestion.NewOutboundPublisher(js, publishChan)
		log.Println("INFO: NATS connected, outbound publishing enabled")
	}

	// --- Holder lookups ---
	holdersClient := holders.NewClient(cfg.RPCURL, observability.NewLogger("holders"))

	// --- HTTP API ---
	queries := query.NewService(store)
	apiServer := server.New(engine, queries, store, holdersClient, hub, server.AuthConfig{
		APIKey:         cfg.APIKey,
		AllowedOrigins: cfg.AllowedOrigins,
	}, metrics, observability.NewLogger("http"))

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      apiServer.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// --- Start goroutines ---
	errChan := make(chan error, 10)

	// 1. Engine
	go func() {
		errChan <- engine.Run(ctx)
	}()

	// 2. Persistence worker
	go func() {
		errChan <- worker.Run(ctx)
	}()

	// 3. Websocket hub
	go func() {
		errChan <- hub.Run(ctx)
	}()

	// 4. Broadcast fan-out: engine → hub + optional NATS
	go func() {
		runBroadcastFanout(ctx, broadcastChan, hubChan, publishChan, metrics)
	}()

	// 5. Outbound publisher
	if outboundPublisher != nil {
		go func() {
			errChan <- outboundPublisher.Run(ctx)
		}()
	}

	// 6. Feed client + ingestion pump
	if cfg.Mint == "" {
		log.Println("WARN: BOSSRAID_TOKEN_MINT not set, trade feed disabled (HTTP-only mode)")
	} else {
		feedClient := ingestion.NewFeedClient(ingestion.FeedConfig{
			URL:          cfg.FeedURL,
			Mint:         cfg.Mint,
			StaleAfter:   cfg.FeedStaleAfter,
			MaxAttempts:  cfg.FeedMaxAttempts,
			RetryBackoff: cfg.FeedRetryBackoff,
			OnReconnect:  metrics.FeedReconnects.Inc,
		}, frameChan)
		go func() {
			errChan <- feedClient.Run(ctx)
		}()
	}
	go func() {
		runIngestionPump(ctx, cfg, frameChan, tradeChan, metrics)
	}()

	// 7. API server
	go func() {
		log.Printf("INFO: API server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	// 8. Metrics + health server
	go func() {
		opsMux := http.NewServeMux()
		opsMux.Handle("/metrics", promhttp.Handler())
		opsMux.HandleFunc("/healthz", healthChecker.LivenessHandler)
		opsMux.HandleFunc("/readyz", healthChecker.ReadinessHandler)
		opsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: opsMux}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			opsServer.Shutdown(shutCtx)
		}()
		log.Printf("INFO: metrics server listening on %s/metrics", cfg.MetricsAddr)
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	// 9. Channel utilization sampler
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.SetChannelMetrics("frame", len(frameChan), cap(frameChan))
				metrics.SetChannelMetrics("trade", len(tradeChan), cap(tradeChan))
				metrics.SetChannelMetrics("persist", len(persistChan), cap(persistChan))
				metrics.SetChannelMetrics("broadcast", len(broadcastChan), cap(broadcastChan))
			}
		}
	}()

	healthChecker.SetReady(true)
	log.Printf("INFO: BossRaid ready (http=%s, metrics=%s, mint=%s)",
		cfg.HTTPAddr, cfg.MetricsAddr, cfg.Mint)

	// --- Wait for shutdown ---
	select {
	case sig := <-sigChan:
		log.Printf("INFO: received signal %s, shutting down...", sig)
	case err := <-errChan:
		log.Printf("ERROR: goroutine failed: %v, shutting down...", err)
	}

	healthChecker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARN: http shutdown: %v", err)
	}

	// Cancelling ctx stops the engine; the worker drains whatever the
	// engine already emitted before returning.
	cancel()
	time.Sleep(500 * time.Millisecond)

	log.Println("INFO: BossRaid shutdown complete")
}

// runIngestionPump parses raw feed frames, applies validation and rate
// limiting, and forwards admitted trades to the engine. This is the only
// goroutine touching the filter, so its window state needs no lock.
func runIngestionPump(
	ctx context.Context,
	cfg Config,
	frameChan <-chan ingestion.RawFrame,
	tradeChan chan<- *event.TradeEvent,
	metrics *observability.Metrics,
) {
	filter := ingestion.NewFilter(cfg.Mint, cfg.RateWindow, cfg.RatePerWindow)

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frameChan:
			if !ok {
				return
			}
			metrics.FeedFrames.Inc()

			evt, err := ingestion.ParseTradeMessage(frame.Data, frame.ReceivedAt)
			if err != nil {
				if !errors.Is(err, ingestion.ErrNotATrade) {
					log.Printf("WARN: drop unparseable frame: %v", err)
					metrics.IngestRejected.WithLabelValues("parse_error").Inc()
				}
				continue
			}

			if err := filter.Check(evt, frame.ReceivedAt); err != nil {
				var fe *ingestion.FilterError
				reason := "filtered"
				if errors.As(err, &fe) {
					reason = fe.Reason
				}
				metrics.IngestRejected.WithLabelValues(reason).Inc()
				continue
			}

			// Blocking send: backpressure reaches the feed reader, which
			// is fine — the filter already caps admission rate.
			select {
			case tradeChan <- evt:
			case <-ctx.Done():
				return
			}
		}
	}
}

// runBroadcastFanout forwards engine broadcasts to the websocket hub
// and, when NATS is configured, mirrors applied trades to the outbound
// publisher. Both sends are non-blocking; spectators resync over HTTP
// and NATS subscribers can query the trade log.
func runBroadcastFanout(
	ctx context.Context,
	in <-chan core.BroadcastEvent,
	hubOut chan<- core.BroadcastEvent,
	publishOut chan<- ingestion.PublishableEvent,
	metrics *observability.Metrics,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-in:
			if !ok {
				return
			}

			select {
			case hubOut <- evt:
			default:
				metrics.BroadcastDrops.Inc()
			}

			if publishOut == nil || evt.Trade == nil || evt.Boss == nil {
				continue
			}
			pub := ingestion.PublishableEvent{
				Signature:   evt.Trade.Signature,
				Mint:        evt.Trade.Mint,
				TxType:      evt.Trade.TxType,
				SolAmount:   evt.Trade.SolAmount,
				DamageDealt: evt.Trade.DamageDealt,
				HealApplied: evt.Trade.HealApplied,
				BossID:      evt.Boss.ID,
				BossHealth:  evt.Boss.CurrentHealth,
				Defeated:    evt.Boss.IsDefeated,
				Timestamp:   evt.Trade.Timestamp,
			}
			select {
			case publishOut <- pub:
			default:
				metrics.PublishDrops.Inc()
			}
		}
	}
}

// --- Helpers ---

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return defaultVal
	}
	return i
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// parseOwnerWallets parses "slug=wallet" pairs separated by commas.
func parseOwnerWallets(s string) map[string]string {
	out := make(map[string]string)
	for _, part := range splitNonEmpty(s) {
		slug, wallet, ok := strings.Cut(part, "=")
		if !ok || slug == "" || wallet == "" {
			log.Printf("WARN: ignoring malformed owner wallet mapping %q", part)
			continue
		}
		out[slug] = wallet
	}
	return out
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
