package ingestion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"raydium-swap-ingest/internal/domain"
	"raydium-swap-ingest/internal/observability"
	"raydium-swap-ingest/internal/raydium"
	"raydium-swap-ingest/internal/raydium/raydiumtest"
	"raydium-swap-ingest/internal/reconcile"
	"raydium-swap-ingest/internal/solana"
	"raydium-swap-ingest/internal/solana/stub"
	"raydium-swap-ingest/internal/storage"
	"raydium-swap-ingest/internal/storage/memory"
)

const blockTime = 1700000000

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

type harness struct {
	rpc        *stub.RPCClient
	sink       *memory.SwapSink
	watermarks *memory.WatermarkStore
	metrics    *observability.Metrics
	opts       Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dec, err := raydium.NewDecoder("")
	require.NoError(t, err)

	h := &harness{
		rpc:        stub.NewRPCClient(),
		sink:       memory.NewSwapSink(),
		watermarks: memory.NewWatermarkStore(),
		metrics:    observability.NewMetrics("test", prometheus.NewRegistry()),
	}
	h.opts = Options{
		RPC:           h.rpc,
		Reconciler:    reconcile.New(dec),
		Sink:          h.sink,
		Watermarks:    h.watermarks,
		Concurrency:   4,
		BatchSize:     100,
		FlushInterval: time.Hour,
		FetchRetry:    RetryPolicy{MaxAttempts: 5, Sleep: noSleep},
		SinkRetry:     RetryPolicy{MaxAttempts: 3, Sleep: noSleep},
		PollInterval:  5 * time.Millisecond,
		Metrics:       h.metrics,
		Logger:        zaptest.NewLogger(t),
	}
	return h
}

func (h *harness) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(h.opts)
	require.NoError(t, err)
	return p
}

// swapBlock adds a block at slot holding one swap-base-in signed by owner.
func (h *harness) swapBlock(slot uint64, signature, owner string) *solana.Transaction {
	tx := raydiumtest.Transaction(slot, blockTime, signature, raydiumtest.BaseIn(owner))
	h.rpc.AddBlock(raydiumtest.Block(slot, blockTime, tx))
	return tx
}

func (h *harness) storedWatermark(t *testing.T) uint64 {
	t.Helper()
	w, err := h.watermarks.Get(context.Background(), DefaultStream)
	require.NoError(t, err)
	return w.Slot
}

// seedScenario lays out slots 1000-1002: a swap, a slot without program
// transactions, and a swap whose first two fetches are rate limited.
func (h *harness) seedScenario() {
	h.swapBlock(1000, "sig-1000", "alice")
	h.rpc.AddBlock(raydiumtest.Block(1001, blockTime, raydiumtest.Unrelated(1001, blockTime, "sig-1001")))
	h.swapBlock(1002, "sig-1002", "bob")
	h.rpc.FailBlock(1002, solana.ErrRateLimited, solana.ErrRateLimited)
}

func TestRun_Scenario(t *testing.T) {
	h := newHarness(t)
	h.seedScenario()
	ctx := context.Background()

	sum, err := h.pipeline(t).Run(ctx, Range{Start: 1000, End: 1002})
	require.NoError(t, err)

	rec, err := h.sink.GetByKey(ctx, domain.DedupKey{Signature: "sig-1000"})
	require.NoError(t, err)
	assert.Equal(t, domain.SwapRecord{
		Signature:  "sig-1000",
		Slot:       1000,
		BlockTime:  time.Unix(blockTime, 0).UTC(),
		Signer:     "alice",
		InputMint:  raydiumtest.MintUSDC,
		OutputMint: raydiumtest.MintWSOL,
		Input:      domain.Amount{Raw: 500000, Decimals: 6},
		Output:     domain.Amount{Raw: 300000, Decimals: 9},
		Pool:       "pool-usdc-sol",
	}, *rec)

	// Slot 1001 is skipped and slot 1002 lands after two rate limits.
	assert.Equal(t, 1, h.rpc.BlockCalls(1000))
	assert.Equal(t, 1, h.rpc.BlockCalls(1001))
	assert.Equal(t, 3, h.rpc.BlockCalls(1002))

	assert.Equal(t, 2, sum.SlotsDone)
	assert.Equal(t, 1, sum.SlotsSkipped)
	assert.Zero(t, sum.SlotsDeferred)
	assert.Empty(t, sum.Unresolved)
	assert.Equal(t, 2, sum.RecordsWritten)
	assert.Equal(t, 5, sum.FetchAttempts)
	assert.Equal(t, uint64(1002), sum.Watermark)
	assert.True(t, sum.HasWatermark)
	assert.Equal(t, uint64(1002), h.storedWatermark(t))

	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.FetchAttempts.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SlotsProcessed.WithLabelValues("skipped_empty")))
	assert.Equal(t, 1002.0, testutil.ToFloat64(h.metrics.Watermark))
}

func TestRun_RateLimitedSlotMatchesDirectFetch(t *testing.T) {
	h := newHarness(t)
	h.seedScenario()
	ctx := context.Background()

	_, err := h.pipeline(t).Run(ctx, Range{Start: 1002, End: 1002})
	require.NoError(t, err)

	direct := newHarness(t)
	direct.swapBlock(1002, "sig-1002", "bob")
	_, err = direct.pipeline(t).Run(ctx, Range{Start: 1002, End: 1002})
	require.NoError(t, err)

	assert.Equal(t, 1, direct.rpc.BlockCalls(1002))
	assert.Equal(t, direct.sink.Records(), h.sink.Records())
}

func TestRun_SkippedEmptyAdvancesWatermark(t *testing.T) {
	for name, seed := range map[string]func(h *harness){
		"no program transactions": func(h *harness) {
			h.rpc.AddBlock(raydiumtest.Block(1001, blockTime, raydiumtest.Unrelated(1001, blockTime, "sig-1001")))
		},
		"empty block": func(h *harness) {
			h.rpc.AddBlock(raydiumtest.Block(1001, blockTime))
		},
		"slot skipped by the chain": func(*harness) {},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			seed(h)

			sum, err := h.pipeline(t).Run(context.Background(), Range{Start: 1001, End: 1001})
			require.NoError(t, err)

			assert.Equal(t, 1, sum.SlotsSkipped)
			assert.Zero(t, sum.RecordsWritten)
			assert.Zero(t, h.sink.Batches())
			assert.Equal(t, uint64(1001), sum.Watermark)
			assert.Equal(t, uint64(1001), h.storedWatermark(t))
		})
	}
}

func TestRun_ResumesAfterWatermark(t *testing.T) {
	h := newHarness(t)
	h.seedScenario()
	ctx := context.Background()
	require.NoError(t, h.watermarks.Set(ctx, DefaultStream, &storage.Watermark{Slot: 1001}))

	sum, err := h.pipeline(t).Run(ctx, Range{Start: 1000, End: 1002})
	require.NoError(t, err)

	assert.Equal(t, uint64(1002), sum.Start)
	assert.Zero(t, h.rpc.BlockCalls(1000))
	assert.Zero(t, h.rpc.BlockCalls(1001))
	assert.Equal(t, 3, h.rpc.BlockCalls(1002))
	assert.Equal(t, 1, sum.RecordsWritten)
	assert.Equal(t, uint64(1002), h.storedWatermark(t))
}

func TestRun_RangeAlreadyIngested(t *testing.T) {
	h := newHarness(t)
	h.seedScenario()
	ctx := context.Background()
	require.NoError(t, h.watermarks.Set(ctx, DefaultStream, &storage.Watermark{Slot: 1005}))

	sum, err := h.pipeline(t).Run(ctx, Range{Start: 1000, End: 1002})
	require.NoError(t, err)
	assert.Zero(t, h.rpc.TotalBlockCalls())
	assert.Equal(t, uint64(1005), sum.Watermark)
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.seedScenario()
	h.opts.Watermarks = nil
	ctx := context.Background()

	_, err := h.pipeline(t).Run(ctx, Range{Start: 1000, End: 1002})
	require.NoError(t, err)
	first := h.sink.Records()

	h.seedScenario()
	_, err = h.pipeline(t).Run(ctx, Range{Start: 1000, End: 1002})
	require.NoError(t, err)

	count, err := h.sink.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, first, h.sink.Records())
	assert.Equal(t, 2, h.sink.Batches())
}

func TestRun_DuplicateKeysDropped(t *testing.T) {
	for name, mod := range map[string]func(o *Options){
		"same batch":      func(*Options) {},
		"earlier batch":   func(o *Options) { o.BatchSize = 1; o.Concurrency = 1 },
		"flushed by time": func(o *Options) { o.Concurrency = 1; o.FlushInterval = time.Nanosecond },
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			mod(&h.opts)
			tx := h.swapBlock(1000, "sig-dup", "alice")
			h.rpc.AddBlock(raydiumtest.Block(1001, blockTime, tx))

			sum, err := h.pipeline(t).Run(context.Background(), Range{Start: 1000, End: 1001})
			require.NoError(t, err)

			count, err := h.sink.Count(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, count)
			assert.Equal(t, 1, sum.DuplicatesDropped)
			assert.Equal(t, 1, sum.RecordsWritten)
			assert.Equal(t, 2, sum.SlotsDone)
			assert.Equal(t, uint64(1001), sum.Watermark)
		})
	}
}

func TestRun_FlushesOnBatchSize(t *testing.T) {
	h := newHarness(t)
	h.opts.BatchSize = 1
	for slot := uint64(1000); slot < 1003; slot++ {
		h.swapBlock(slot, fmt.Sprintf("sig-%d", slot), "alice")
	}

	sum, err := h.pipeline(t).Run(context.Background(), Range{Start: 1000, End: 1002})
	require.NoError(t, err)
	assert.Equal(t, 3, h.sink.Batches())
	assert.Equal(t, 3, sum.Batches)
	assert.Equal(t, 3, sum.RecordsWritten)
}

func TestRun_WarningsAndFailedTransactions(t *testing.T) {
	h := newHarness(t)
	missing := raydiumtest.BaseIn("alice")
	missing.DestPost = nil
	failed := raydiumtest.Transaction(1000, blockTime, "sig-failed", raydiumtest.BaseIn("bob"))
	failed.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	h.rpc.AddBlock(raydiumtest.Block(1000, blockTime,
		raydiumtest.Transaction(1000, blockTime, "sig-missing", missing),
		failed,
	))

	sum, err := h.pipeline(t).Run(context.Background(), Range{Start: 1000, End: 1000})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Warnings)
	assert.Equal(t, 1, sum.FailedTxs)
	assert.Zero(t, sum.RecordsWritten)
	assert.Equal(t, 1, sum.SlotsDone)
	assert.Equal(t, uint64(1000), sum.Watermark)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		h.metrics.ReconcileWarnings.WithLabelValues(string(reconcile.ReasonMissingOutputBalance))))
}

func TestRun_RetryExhaustionDefersSlot(t *testing.T) {
	h := newHarness(t)
	h.opts.FetchRetry.MaxAttempts = 3
	h.swapBlock(1000, "sig-1000", "alice")
	h.rpc.FailBlock(1000, solana.ErrTransient, solana.ErrTransient, solana.ErrTransient)
	h.rpc.AddBlock(raydiumtest.Block(1001, blockTime))

	sum, err := h.pipeline(t).Run(context.Background(), Range{Start: 1000, End: 1001})
	require.NoError(t, err)

	assert.Equal(t, 4, h.rpc.BlockCalls(1000))
	assert.Equal(t, 1, sum.SlotsDeferred)
	assert.Empty(t, sum.Unresolved)
	assert.Equal(t, 1, sum.RecordsWritten)
	assert.Equal(t, uint64(1001), sum.Watermark)
}

func TestRun_UnresolvedSlotHoldsWatermark(t *testing.T) {
	h := newHarness(t)
	h.opts.FetchRetry.MaxAttempts = 2
	h.opts.MaxPasses = 2
	h.swapBlock(1000, "sig-1000", "alice")
	h.swapBlock(1001, "sig-1001", "bob")
	h.swapBlock(1002, "sig-1002", "carol")
	fails := make([]error, 10)
	for i := range fails {
		fails[i] = solana.ErrRateLimited
	}
	h.rpc.FailBlock(1001, fails...)

	sum, err := h.pipeline(t).Run(context.Background(), Range{Start: 1000, End: 1002})
	require.NoError(t, err)

	assert.Equal(t, 4, h.rpc.BlockCalls(1001))
	assert.Equal(t, []uint64{1001}, sum.Unresolved)
	assert.Equal(t, 1, sum.SlotsDeferred)
	assert.Equal(t, 2, sum.RecordsWritten)
	assert.Equal(t, uint64(1000), sum.Watermark)
	assert.Equal(t, uint64(1000), h.storedWatermark(t))
}

func TestRun_BlockNotAvailableIsNotSkipped(t *testing.T) {
	h := newHarness(t)
	h.swapBlock(1000, "sig-1000", "alice")
	h.swapBlock(1001, "sig-1001", "bob")
	notYet := &solana.RPCError{Code: -32004, Message: "Block not available for slot 1001"}
	h.rpc.FailBlock(1001, notYet, notYet)

	sum, err := h.pipeline(t).Run(context.Background(), Range{Start: 1000, End: 1001})
	require.NoError(t, err)

	assert.Equal(t, 3, h.rpc.BlockCalls(1001))
	assert.Zero(t, sum.SlotsSkipped)
	assert.Equal(t, 2, sum.RecordsWritten)
	assert.Equal(t, uint64(1001), h.storedWatermark(t))
}

func TestRun_PermanentErrorIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.swapBlock(1000, "sig-1000", "alice")
	h.rpc.FailBlock(1000, &solana.RPCError{Code: -32602, Message: "invalid params"})

	sum, err := h.pipeline(t).Run(context.Background(), Range{Start: 1000, End: 1000})
	require.NoError(t, err)

	assert.Equal(t, 1, h.rpc.BlockCalls(1000))
	assert.Equal(t, []uint64{1000}, sum.Unresolved)
	assert.False(t, sum.HasWatermark)
}

func TestRun_SinkExhaustionStopsRun(t *testing.T) {
	h := newHarness(t)
	h.swapBlock(1000, "sig-1000", "alice")
	boom := errors.New("connection reset")
	h.sink.Fail(boom, boom, boom)

	_, err := h.pipeline(t).Run(context.Background(), Range{Start: 1000, End: 1000})
	require.ErrorIs(t, err, ErrSinkExhausted)
	assert.ErrorIs(t, err, boom)
	var sinkErr *storage.SinkError
	assert.ErrorAs(t, err, &sinkErr)
	assert.Contains(t, err.Error(), "slots 1000-1000")

	_, err = h.watermarks.Get(context.Background(), DefaultStream)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.SinkErrors.WithLabelValues("memory")))
}

// slowFailingSink rejects every batch after a delay, letting fetch workers
// run ahead of the coordinator.
type slowFailingSink struct {
	delay time.Duration
	err   error
}

func (s *slowFailingSink) Name() string { return "slow" }

func (s *slowFailingSink) InsertBatch(_ context.Context, records []domain.SwapRecord) error {
	time.Sleep(s.delay)
	return &storage.SinkError{Sink: s.Name(), Records: len(records), Err: s.err}
}

func TestRun_SinkExhaustionWithBusyWorkers(t *testing.T) {
	for i := 0; i < 5; i++ {
		h := newHarness(t)
		for slot := uint64(2000); slot < 2200; slot++ {
			h.swapBlock(slot, fmt.Sprintf("sig-%d", slot), "alice")
		}
		h.opts.Sink = &slowFailingSink{delay: 20 * time.Millisecond, err: errors.New("disk full")}
		h.opts.Concurrency = 4
		h.opts.BatchSize = 1
		h.opts.SinkRetry = RetryPolicy{MaxAttempts: 1, Sleep: noSleep}

		done := make(chan error, 1)
		go func() {
			_, err := h.pipeline(t).Run(context.Background(), Range{Start: 2000, End: 2199})
			done <- err
		}()

		select {
		case err := <-done:
			require.ErrorIs(t, err, ErrSinkExhausted)
		case <-time.After(5 * time.Second):
			t.Fatalf("run %d did not return after the sink gave up", i)
		}
	}
}

func TestRun_SinkRetrySucceeds(t *testing.T) {
	h := newHarness(t)
	h.swapBlock(1000, "sig-1000", "alice")
	h.sink.Fail(errors.New("timeout"))

	sum, err := h.pipeline(t).Run(context.Background(), Range{Start: 1000, End: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.RecordsWritten)
	assert.Equal(t, uint64(1000), h.storedWatermark(t))
}

func TestRun_FollowFlushesOnInterval(t *testing.T) {
	h := newHarness(t)
	h.opts.FlushInterval = 10 * time.Millisecond
	h.swapBlock(1000, "sig-1000", "alice")
	h.rpc.SetTip(1000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := h.pipeline(t).Run(ctx, Range{Start: 1000, Follow: true})
		done <- err
	}()

	require.Eventually(t, func() bool {
		n, _ := h.sink.Count(context.Background())
		return n == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, uint64(1000), h.storedWatermark(t))
}

func TestRun_StopFlushesPendingBatch(t *testing.T) {
	h := newHarness(t)
	h.swapBlock(1000, "sig-1000", "alice")
	h.rpc.SetTip(1000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := h.pipeline(t).Run(ctx, Range{Start: 1000, Follow: true})
		done <- err
	}()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.SwapsDecoded) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, h.sink.Batches())

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1, h.sink.Batches())
	assert.Equal(t, uint64(1000), h.storedWatermark(t))
}

func TestRun_FollowStartsBehindTip(t *testing.T) {
	h := newHarness(t)
	h.opts.ConfirmationLag = 10
	h.swapBlock(1990, "sig-1990", "alice")
	h.rpc.SetTip(2000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan Summary, 1)
	go func() {
		sum, _ := h.pipeline(t).Run(ctx, Range{Follow: true})
		done <- sum
	}()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.SwapsDecoded) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The tip moves; the next slots become eligible.
	h.rpc.AddBlock(raydiumtest.Block(1991, blockTime))
	h.rpc.SetTip(2001)
	require.Eventually(t, func() bool {
		return h.rpc.BlockCalls(1991) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	sum := <-done
	assert.Equal(t, uint64(1990), sum.Start)
	assert.Zero(t, h.rpc.BlockCalls(1989))
	assert.Zero(t, h.rpc.BlockCalls(1992))
	assert.Equal(t, uint64(1991), sum.Watermark)
	assert.Equal(t, 1, sum.RecordsWritten)
}

// blockingRPC holds GetBlock until its context ends.
type blockingRPC struct {
	*stub.RPCClient
	started chan uint64
}

func (b *blockingRPC) GetBlock(ctx context.Context, slot uint64) (*solana.Block, error) {
	b.started <- slot
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRun_ShutdownTimeoutAbandonsFetch(t *testing.T) {
	h := newHarness(t)
	rpc := &blockingRPC{RPCClient: h.rpc, started: make(chan uint64, 1)}
	h.rpc.SetTip(1000)
	h.opts.RPC = rpc
	h.opts.Concurrency = 1
	h.opts.ShutdownTimeout = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan Summary, 1)
	go func() {
		sum, _ := h.pipeline(t).Run(ctx, Range{Start: 1000, Follow: true})
		done <- sum
	}()

	assert.Equal(t, uint64(1000), <-rpc.started)
	cancel()

	select {
	case sum := <-done:
		assert.Equal(t, []uint64{1000}, sum.Unresolved)
		assert.False(t, sum.HasWatermark)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after shutdown timeout")
	}
}

func TestRun_InvalidRange(t *testing.T) {
	h := newHarness(t)
	_, err := h.pipeline(t).Run(context.Background(), Range{Start: 10, End: 9})
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	h := newHarness(t)

	for name, mod := range map[string]func(o *Options){
		"rpc":        func(o *Options) { o.RPC = nil },
		"reconciler": func(o *Options) { o.Reconciler = nil },
		"sink":       func(o *Options) { o.Sink = nil },
	} {
		t.Run(name, func(t *testing.T) {
			opts := h.opts
			mod(&opts)
			_, err := New(opts)
			assert.Error(t, err)
		})
	}
}

func TestFetchOutcome(t *testing.T) {
	assert.Equal(t, "ok", fetchOutcome(nil))
	assert.Equal(t, "not_found", fetchOutcome(solana.ErrNotFound))
	assert.Equal(t, "rate_limited", fetchOutcome(&solana.HTTPStatusError{StatusCode: 429}))
	assert.Equal(t, "transient", fetchOutcome(&solana.RPCError{Code: -32005}))
	assert.Equal(t, "canceled", fetchOutcome(context.Canceled))
	assert.Equal(t, "permanent", fetchOutcome(&solana.RPCError{Code: -32602}))
}

func TestRun_BlockSummaryLogged(t *testing.T) {
	h := newHarness(t)
	core, logs := observer.New(zap.DebugLevel)
	h.opts.Logger = zap.New(core)

	swap := raydiumtest.Transaction(3000, blockTime, "swap", raydiumtest.BaseIn("alice"))
	failed := raydiumtest.Transaction(3000, blockTime, "failed", raydiumtest.BaseIn("bob"))
	failed.Meta.Err = map[string]interface{}{"InstructionError": 0}
	failed.Meta.Fee = 7000
	h.rpc.AddBlock(raydiumtest.Block(3000, blockTime, swap, failed))

	_, err := h.pipeline(t).Run(context.Background(), Range{Start: 3000, End: 3000})
	require.NoError(t, err)

	entries := logs.FilterMessage("block fetched").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, uint64(3000), fields["slot"])
	assert.Equal(t, int64(2), fields["transactions"])
	assert.Equal(t, int64(1), fields["failed"])
	assert.Equal(t, uint64(12000), fields["fees"])
	assert.Equal(t, int64(2), fields["matched"])
	assert.Equal(t, int64(1), fields["records"])
}
