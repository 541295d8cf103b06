package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"raydium-swap-ingest/internal/config"
	"raydium-swap-ingest/internal/storage"
	chstore "raydium-swap-ingest/internal/storage/clickhouse"
	"raydium-swap-ingest/internal/storage/duckdb"
	"raydium-swap-ingest/internal/storage/memory"
	"raydium-swap-ingest/internal/storage/migrations"
	pgstore "raydium-swap-ingest/internal/storage/postgres"
	redisstore "raydium-swap-ingest/internal/storage/redis"
)

// stores holds the opened backends and what must be closed on exit.
type stores struct {
	sink       storage.SwapSink
	watermarks storage.WatermarkStore
	closers    []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *stores, err error) {
	s := &stores{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	var pool *pgstore.Pool
	postgresPool := func() (*pgstore.Pool, error) {
		if pool != nil {
			return pool, nil
		}
		p, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		s.closers = append(s.closers, p.Close)
		if cfg.Storage.Migrate {
			applied, err := migrations.RunPostgres(ctx, p)
			if err != nil {
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied", zap.Strings("files", applied))
		}
		pool = p
		return p, nil
	}

	switch cfg.Storage.Sink {
	case config.BackendClickHouse:
		var conn *chstore.Conn
		if cfg.Storage.Migrate {
			var applied []string
			conn, applied, err = migrations.RunClickhouse(ctx, cfg.Storage.ClickHouseDSN)
			if err != nil {
				return nil, fmt.Errorf("clickhouse migrations: %w", err)
			}
			logger.Info("clickhouse migrations applied", zap.Strings("files", applied))
		} else {
			conn, err = chstore.NewConn(ctx, cfg.Storage.ClickHouseDSN)
			if err != nil {
				return nil, fmt.Errorf("connect to clickhouse: %w", err)
			}
		}
		s.closers = append(s.closers, func() { conn.Close() })
		s.sink = chstore.NewSwapSink(conn)
	case config.BackendPostgres:
		p, err := postgresPool()
		if err != nil {
			return nil, err
		}
		s.sink = pgstore.NewSwapSink(p)
	case config.BackendDuckDB:
		sink, err := duckdb.Open(ctx, cfg.Storage.DuckDBPath)
		if err != nil {
			return nil, fmt.Errorf("open duckdb: %w", err)
		}
		s.closers = append(s.closers, func() { sink.Close() })
		s.sink = sink
	case config.BackendMemory:
		logger.Warn("memory sink selected; records are discarded on exit")
		s.sink = memory.NewSwapSink()
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Storage.Sink)
	}

	switch cfg.Storage.Watermark {
	case config.BackendPostgres:
		p, err := postgresPool()
		if err != nil {
			return nil, err
		}
		s.watermarks = pgstore.NewWatermarkStore(p)
	case config.BackendRedis:
		rc := cfg.Storage.Redis
		rdb, err := redisstore.NewClient(ctx, rc.Addr, rc.Password, rc.DB)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { rdb.Close() })
		s.watermarks = redisstore.NewWatermarkStore(rdb, rc.KeyPrefix)
	case config.BackendMemory:
		s.watermarks = memory.NewWatermarkStore()
	case config.BackendNone:
		logger.Warn("no watermark store; every run starts at the configured slot")
	default:
		return nil, fmt.Errorf("unknown watermark store %q", cfg.Storage.Watermark)
	}

	return s, nil
}

func printRedacted(cfg *config.Config) {
	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal config: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(out)
}
