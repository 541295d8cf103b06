package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"raydium-swap-ingest/internal/config"
	"raydium-swap-ingest/internal/ingestion"
	"raydium-swap-ingest/internal/logging"
	"raydium-swap-ingest/internal/observability"
	"raydium-swap-ingest/internal/raydium"
	"raydium-swap-ingest/internal/reconcile"
	"raydium-swap-ingest/internal/solana"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	mode := flag.String("mode", "", "Ingestion mode: range, follow or signatures (overrides config)")
	startSlot := flag.Uint64("start-slot", 0, "First slot to ingest (overrides config)")
	endSlot := flag.Uint64("end-slot", 0, "Last slot to ingest, inclusive (overrides config)")
	sink := flag.String("sink", "", "Sink backend: clickhouse, postgres, duckdb or memory (overrides config)")
	printConfig := flag.Bool("print-config", false, "Print the effective config with secrets redacted and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath, func(c *config.Config) {
		if *mode != "" {
			c.Ingest.Mode = *mode
		}
		if *startSlot != 0 {
			c.Ingest.StartSlot = *startSlot
		}
		if *endSlot != 0 {
			c.Ingest.EndSlot = *endSlot
		}
		if *sink != "" {
			c.Storage.Sink = *sink
		}
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *printConfig {
		printRedacted(cfg)
		return
	}

	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(2)
	}
	defer closer.Close()

	metrics := observability.ForNamespace(cfg.Metrics.Namespace)

	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Info("starting metrics server", zap.String("addr", cfg.Metrics.Addr))
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
		cancel()

		// The pipeline bounds in-flight work by its own shutdown timeout;
		// allow the final flush on top of that before forcing exit.
		grace := cfg.Ingest.ShutdownTimeout + 30*time.Second
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing immediate shutdown", zap.Stringer("signal", sig))
			os.Exit(1)
		case <-time.After(grace):
			logger.Error("graceful shutdown timed out, forcing exit", zap.Duration("after", grace))
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, metrics, logger)

	done <- err
	cancel()

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info("shutdown complete")
	case errors.Is(err, ingestion.ErrSinkExhausted):
		logger.Error("sink rejected writes after all retries; check the sink backend and restart, ingestion resumes from the stored watermark", zap.Error(err))
		closer.Close()
		os.Exit(1)
	default:
		logger.Error("ingestion failed", zap.Error(err))
		closer.Close()
		os.Exit(1)
	}
}

// loadConfig reads the config, applies flag overrides and validates again
// so overrides go through the same checks as the file.
func loadConfig(path string, override func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	override(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) error {
	logger.Info("starting ingestion",
		zap.String("mode", cfg.Ingest.Mode),
		zap.String("program", cfg.Program.ID),
		zap.String("rpc", cfg.Redacted().RPC.URL),
		zap.String("sink", cfg.Storage.Sink),
		zap.String("watermark", cfg.Storage.Watermark),
	)

	rpc := solana.NewHTTPClient(cfg.RPC.URL,
		solana.WithTimeout(cfg.RPC.Timeout),
		solana.WithCommitment(cfg.RPC.Commitment),
		solana.WithLatencyHook(metrics.ObserveRPC),
	)

	decoder, err := raydium.NewDecoder(cfg.Program.ID)
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}

	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	var tip ingestion.TipSource
	if cfg.Ingest.Mode == config.ModeFollow && cfg.RPC.WSURL != "" {
		tip, err = openWSTip(ctx, cfg, rpc, logger)
		if err != nil {
			return err
		}
	}

	p, err := ingestion.New(ingestion.Options{
		RPC:             rpc,
		Reconciler:      reconcile.New(decoder),
		Sink:            stores.sink,
		Watermarks:      stores.watermarks,
		Stream:          cfg.Ingest.Stream,
		Tip:             tip,
		Concurrency:     cfg.Ingest.Concurrency,
		BatchSize:       cfg.Ingest.BatchSize,
		FlushInterval:   cfg.Ingest.FlushInterval,
		FetchRetry:      retryPolicy(cfg.Ingest.FetchRetry),
		SinkRetry:       retryPolicy(cfg.Ingest.SinkRetry),
		MaxPasses:       cfg.Ingest.MaxPasses,
		ConfirmationLag: cfg.Ingest.ConfirmationLag,
		PollInterval:    cfg.Ingest.PollInterval,
		ShutdownTimeout: cfg.Ingest.ShutdownTimeout,
		SignatureLimit:  cfg.Ingest.SignatureLimit,
		Metrics:         metrics,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	var summary ingestion.Summary
	switch cfg.Ingest.Mode {
	case config.ModeRange:
		summary, err = p.Run(ctx, ingestion.Range{Start: cfg.Ingest.StartSlot, End: cfg.Ingest.EndSlot})
	case config.ModeFollow:
		summary, err = p.Run(ctx, ingestion.Range{Start: cfg.Ingest.StartSlot, Follow: true})
	case config.ModeSignatures:
		summary, err = p.RunSignatures(ctx)
	default:
		return fmt.Errorf("unknown mode %q", cfg.Ingest.Mode)
	}

	logSummary(logger, summary)
	return err
}

// openWSTip tracks the chain tip over slotSubscribe, polling getSlot while
// the subscription has nothing to say.
func openWSTip(ctx context.Context, cfg *config.Config, rpc solana.RPCClient, logger *zap.Logger) (ingestion.TipSource, error) {
	wsCfg := solana.DefaultWSConfig()
	wsCfg.Logger = logger.With(zap.String("component", "ws"))

	ws, err := solana.NewWSClient(ctx, cfg.RPC.WSURL, &wsCfg)
	if err != nil {
		return nil, fmt.Errorf("connect websocket: %w", err)
	}
	context.AfterFunc(ctx, func() { ws.Close() })

	slots, err := ws.SubscribeSlots(ctx)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("subscribe slots: %w", err)
	}
	return ingestion.NewWSTip(ctx, slots, ingestion.PollTip{RPC: rpc}, logger), nil
}

func retryPolicy(rc config.RetryConfig) ingestion.RetryPolicy {
	p := ingestion.DefaultRetryPolicy()
	if rc.MaxAttempts > 0 {
		p.MaxAttempts = rc.MaxAttempts
	}
	if rc.BaseDelay > 0 {
		p.BaseDelay = rc.BaseDelay
	}
	if rc.MaxDelay > 0 {
		p.MaxDelay = rc.MaxDelay
	}
	p.Jitter = rc.Jitter
	return p
}

func logSummary(logger *zap.Logger, s ingestion.Summary) {
	fields := []zap.Field{
		zap.Uint64("start", s.Start),
		zap.Int("slots_done", s.SlotsDone),
		zap.Int("slots_skipped", s.SlotsSkipped),
		zap.Int("slots_deferred", s.SlotsDeferred),
		zap.Int("records_written", s.RecordsWritten),
		zap.Int("duplicates_dropped", s.DuplicatesDropped),
		zap.Int("warnings", s.Warnings),
		zap.Int("failed_txs", s.FailedTxs),
		zap.Int("batches", s.Batches),
		zap.Int("fetch_attempts", s.FetchAttempts),
		zap.Duration("duration", s.Duration),
	}
	if s.Signatures > 0 {
		fields = append(fields, zap.Int("signatures", s.Signatures))
	}
	if s.HasWatermark {
		fields = append(fields, zap.Uint64("watermark", s.Watermark))
	}
	if len(s.Unresolved) > 0 {
		fields = append(fields, zap.Uint64s("unresolved", s.Unresolved))
		logger.Warn("ingestion finished with unresolved slots", fields...)
		return
	}
	logger.Info("ingestion finished", fields...)
}
