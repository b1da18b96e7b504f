// Command bgpview-replicator runs a producer or consumer side of the
// routing-table differential replication protocol (spec.md), or manages
// the optional members registry's schema.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/route-beacon/bgpview-replicator/internal/broker"
	"github.com/route-beacon/bgpview-replicator/internal/config"
	"github.com/route-beacon/bgpview-replicator/internal/httpapi"
	"github.com/route-beacon/bgpview-replicator/internal/ingest"
	"github.com/route-beacon/bgpview-replicator/internal/metrics"
	"github.com/route-beacon/bgpview-replicator/internal/publisher"
	"github.com/route-beacon/bgpview-replicator/internal/receiver"
	"github.com/route-beacon/bgpview-replicator/internal/registry"
	"github.com/route-beacon/bgpview-replicator/internal/view"
	"github.com/route-beacon/bgpview-replicator/internal/viewstore"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "produce":
		runProduce()
	case "consume":
		runConsume()
	case "migrate":
		runMigrate()
	case "maintenance":
		runMaintenance()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: bgpview-replicator <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  produce       Run the producer publisher against a live view")
	fmt.Println("  consume       Run the consumer receiver, replaying frames into a view")
	fmt.Println("  migrate       Run members registry database migrations")
	fmt.Println("  maintenance   Sweep stale members registrations")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func migrationsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

func newBroker(cfg *config.Config) (*broker.KafkaBroker, error) {
	tlsCfg, err := cfg.Kafka.BuildTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("building TLS config: %w", err)
	}
	saslMech := cfg.Kafka.BuildSASLMechanism()
	return broker.NewKafkaBroker(cfg.Kafka.Brokers, cfg.Kafka.ClientID, cfg.Kafka.Partition, tlsCfg, saslMech, cfg.Kafka.CompressionZstd)
}

func openRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*registry.Registry, error) {
	if !cfg.Registry.Enabled {
		return nil, nil
	}
	pool, err := registry.NewPool(ctx, cfg.Registry.DSN, cfg.Registry.MaxConns, cfg.Registry.MinConns)
	if err != nil {
		return nil, fmt.Errorf("connecting to registry database: %w", err)
	}
	return registry.New(pool, time.Duration(cfg.Registry.RetentionSeconds)*time.Second, logger.Named("registry")), nil
}

func runProduce() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting bgpview-replicator producer",
		zap.String("identity", cfg.Service.Identity),
		zap.String("http_listen", cfg.Service.HTTPListen),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	br, err := newBroker(cfg)
	if err != nil {
		logger.Fatal("failed to connect to broker", zap.Error(err))
	}
	defer br.Close()

	reg, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open members registry", zap.Error(err))
	}

	topics := publisher.Topics{
		Meta:    cfg.Kafka.MetaTopic,
		Peers:   cfg.Kafka.PeersTopic,
		Pfxs:    cfg.Kafka.PfxsTopic,
		Members: cfg.Kafka.MembersTopic,
	}
	pub := publisher.New(br, cfg.Service.Identity, topics, cfg.Cadence.OutboundBufferBytes, cfg.Cadence.MaxDiffs, logger.Named("publisher"))

	httpServer := httpapi.NewServer(cfg.Service.HTTPListen, registryAdapter{reg}, pub, logger.Named("http"))
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start HTTP server", zap.Error(err))
	}

	heartbeat := time.NewTicker(time.Duration(cfg.Cadence.HeartbeatIntervalSec) * time.Second)
	defer heartbeat.Stop()

	// The view itself is an external collaborator (spec.md §1); this
	// command drives the reference viewstore.Store so the binary is
	// immediately runnable without a separate view process.
	var cur, parent view.View
	store := viewstore.New()
	cur = store

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	if cfg.BMP.Enabled {
		if err := runBMPIngest(ctx, br, cfg, store, logger); err != nil {
			logger.Fatal("failed to start BMP ingest", zap.Error(err))
		}
	}

	sendTick := time.NewTicker(time.Second)
	defer sendTick.Stop()

loop:
	for {
		select {
		case <-sendTick.C:
			st, err := pub.Send(ctx, cur, parent, nil)
			if err != nil {
				logger.Error("send failed", zap.Error(err))
				continue
			}
			logger.Debug("frame sent", zap.Int("pfx_cnt", st.PfxCnt))
			parent = cur
		case <-heartbeat.C:
			if err := pub.Heartbeat(ctx, time.Now()); err != nil {
				logger.Warn("heartbeat failed", zap.Error(err))
			}
		case sig := <-sigCh:
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			break loop
		}
	}

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
}

// runBMPIngest tails kafka.raw_topic for OpenBMP-framed BMP messages (the
// way goBMP's Kafka producer feeds the teacher's ingestion pipeline) and
// feeds each one to an internal/ingest.Adapter driving store's Mutator, so
// the producer's view reflects a live collector feed rather than only
// synthetic or externally-populated state.
func runBMPIngest(ctx context.Context, br *broker.KafkaBroker, cfg *config.Config, store *viewstore.Store, logger *zap.Logger) error {
	cons, err := br.ConsumeFrom(ctx, cfg.Kafka.RawTopic, 0)
	if err != nil {
		return fmt.Errorf("opening raw BMP consumer on %s: %w", cfg.Kafka.RawTopic, err)
	}

	adapter := ingest.NewAdapter(cfg.BMP.Collector, store.Mutator(), logger.Named("ingest"))

	go func() {
		defer cons.Close()
		for {
			frame, _, err := cons.Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("raw BMP consume failed", zap.Error(err))
				continue
			}
			if err := adapter.FeedOpenBMP(frame, cfg.BMP.MaxPayloadBytes); err != nil {
				logger.Warn("dropping unparseable BMP frame", zap.Error(err))
			}
		}
	}()

	return nil
}

func runConsume() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting bgpview-replicator consumer", zap.String("identity", cfg.Service.Identity))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	br, err := newBroker(cfg)
	if err != nil {
		logger.Fatal("failed to connect to broker", zap.Error(err))
	}
	defer br.Close()

	topics := receiver.Topics{
		Meta:    cfg.Kafka.MetaTopic,
		Peers:   cfg.Kafka.PeersTopic,
		Pfxs:    cfg.Kafka.PfxsTopic,
		Members: cfg.Kafka.MembersTopic,
	}
	rcv := receiver.New(br, cfg.Service.Identity, topics, receiver.Config{}, logger.Named("receiver"))
	dst := viewstore.New()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	for {
		meta, err := rcv.Deliver(ctx, dst)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("deliver failed", zap.Error(err))
			continue
		}
		logger.Info("frame delivered", zap.String("type", string(meta.Type)), zap.Uint32("view_time", meta.ViewTime))
	}

	logger.Info("bgpview-replicator consumer stopped")
}

func runMigrate() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running registry migrations", zap.String("dsn", redactDSN(cfg.Registry.DSN)))

	ctx := context.Background()
	pool, err := registry.NewPool(ctx, cfg.Registry.DSN, cfg.Registry.MaxConns, cfg.Registry.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to registry database", zap.Error(err))
	}
	defer pool.Close()

	if err := registry.RunMigrations(ctx, pool, migrationsDir(), logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	logger.Info("migrations complete")
}

func runMaintenance() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	ctx := context.Background()
	reg, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open members registry", zap.Error(err))
	}
	if reg == nil {
		logger.Info("members registry disabled, nothing to sweep")
		return
	}

	n, err := reg.Sweep(ctx)
	if err != nil {
		logger.Fatal("sweep failed", zap.Error(err))
	}
	logger.Info("swept stale members", zap.Int64("count", n))
}

func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		re := regexp.MustCompile(`password\s*=\s*\S+`)
		return re.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// registryAdapter adapts *registry.Registry (or nil) to httpapi.Registry.
type registryAdapter struct{ r *registry.Registry }

func (a registryAdapter) ListActive(ctx context.Context) ([]httpapi.Member, error) {
	if a.r == nil {
		return nil, fmt.Errorf("registry disabled")
	}
	members, err := a.r.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]httpapi.Member, len(members))
	for i, m := range members {
		out[i] = httpapi.Member{Identity: m.Identity, LastSeen: m.LastSeen}
	}
	return out, nil
}

func (a registryAdapter) Ping(ctx context.Context) error {
	if a.r == nil {
		return fmt.Errorf("registry disabled")
	}
	return a.r.Ping(ctx)
}
