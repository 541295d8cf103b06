// Package ingestion fetches blocks, reconciles Raydium swaps and writes them
// to a sink with resumable slot watermarks.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"raydium-swap-ingest/internal/domain"
	"raydium-swap-ingest/internal/observability"
	"raydium-swap-ingest/internal/reconcile"
	"raydium-swap-ingest/internal/solana"
	"raydium-swap-ingest/internal/storage"
)

// Pipeline defaults.
const (
	DefaultStream          = "raydium-amm-v4"
	DefaultConcurrency     = 8
	DefaultBatchSize       = 500
	DefaultFlushInterval   = 2 * time.Second
	DefaultMaxPasses       = 3
	DefaultPollInterval    = 400 * time.Millisecond
	DefaultShutdownTimeout = 30 * time.Second
	DefaultSignatureLimit  = 10_000
)

// ErrInvalidRange is returned for a bounded range that ends before it starts.
var ErrInvalidRange = errors.New("invalid slot range")

// Range selects the slots to ingest. End is inclusive and ignored in follow
// mode. A zero Start in follow mode without a stored watermark starts at the
// confirmed tip.
type Range struct {
	Start  uint64
	End    uint64
	Follow bool
}

// Options contains configuration for creating a Pipeline.
type Options struct {
	RPC        solana.RPCClient
	Reconciler *reconcile.Reconciler
	Sink       storage.SwapSink
	Watermarks storage.WatermarkStore // optional; nil disables resume
	Stream     string                 // watermark stream id; default DefaultStream
	Tip        TipSource              // follow mode; default polls RPC.GetSlot

	Concurrency     int           // fetch workers
	BatchSize       int           // flush when this many records are pending
	FlushInterval   time.Duration // flush when the oldest pending record is this old
	FetchRetry      RetryPolicy
	SinkRetry       RetryPolicy
	MaxPasses       int           // fetch passes per slot in bounded mode
	ConfirmationLag uint64        // follow mode stays this many slots behind the tip
	PollInterval    time.Duration // follow mode tip refresh
	ShutdownTimeout time.Duration // bound on in-flight fetches after stop
	DedupWindow     uint64        // slots below the watermark whose keys stay in the dedup set
	SignatureLimit  int           // signatures listed on a first signature-mode run

	Metrics *observability.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

// Pipeline moves swaps from the RPC source to the sink.
type Pipeline struct {
	rpc        solana.RPCClient
	reconciler *reconcile.Reconciler
	programID  string
	sink       storage.SwapSink
	watermarks storage.WatermarkStore
	stream     string
	tip        TipSource

	concurrency     int
	batchSize       int
	flushInterval   time.Duration
	fetchRetry      RetryPolicy
	sinkRetry       RetryPolicy
	maxPasses       int
	lag             uint64
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	dedupWindow     uint64
	signatureLimit  int

	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a pipeline. RPC, Reconciler and Sink are required.
func New(opts Options) (*Pipeline, error) {
	if opts.RPC == nil {
		return nil, errors.New("ingestion: RPC client is required")
	}
	if opts.Reconciler == nil {
		return nil, errors.New("ingestion: reconciler is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("ingestion: sink is required")
	}

	p := &Pipeline{
		rpc:             opts.RPC,
		reconciler:      opts.Reconciler,
		programID:       opts.Reconciler.ProgramID(),
		sink:            opts.Sink,
		watermarks:      opts.Watermarks,
		stream:          opts.Stream,
		tip:             opts.Tip,
		concurrency:     opts.Concurrency,
		batchSize:       opts.BatchSize,
		flushInterval:   opts.FlushInterval,
		fetchRetry:      opts.FetchRetry,
		sinkRetry:       opts.SinkRetry,
		maxPasses:       opts.MaxPasses,
		lag:             opts.ConfirmationLag,
		pollInterval:    opts.PollInterval,
		shutdownTimeout: opts.ShutdownTimeout,
		dedupWindow:     opts.DedupWindow,
		signatureLimit:  opts.SignatureLimit,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		now:             opts.Now,
	}

	if p.stream == "" {
		p.stream = DefaultStream
	}
	if p.tip == nil {
		p.tip = PollTip{RPC: opts.RPC}
	}
	if p.concurrency <= 0 {
		p.concurrency = DefaultConcurrency
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}
	if p.flushInterval <= 0 {
		p.flushInterval = DefaultFlushInterval
	}
	if p.sinkRetry.Retryable == nil {
		p.sinkRetry.Retryable = sinkRetryable
	}
	if p.maxPasses <= 0 {
		p.maxPasses = DefaultMaxPasses
	}
	if p.pollInterval <= 0 {
		p.pollInterval = DefaultPollInterval
	}
	if p.shutdownTimeout <= 0 {
		p.shutdownTimeout = DefaultShutdownTimeout
	}
	if p.signatureLimit <= 0 {
		p.signatureLimit = DefaultSignatureLimit
	}
	if p.metrics == nil {
		p.metrics = observability.DefaultMetrics
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.logger = p.logger.With(zap.String("component", "pipeline"))
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// sinkRetryable retries every sink error except cancellation and rejected input.
func sinkRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, storage.ErrInvalidInput)
}

// Summary reports what a run did.
type Summary struct {
	Start             uint64 // first slot of the run after resume
	SlotsDone         int
	SlotsSkipped      int
	SlotsDeferred     int      // deferrals, counting each pass
	Unresolved        []uint64 // slots left below any future watermark
	Signatures        int      // signatures processed in signature mode
	RecordsWritten    int
	DuplicatesDropped int
	Warnings          int
	FailedTxs         int
	Batches           int
	FetchAttempts     int
	Watermark         uint64
	HasWatermark      bool
	Duration          time.Duration
}

// Run ingests the slots of r. It returns when a bounded range is finished,
// when ctx is done or when the sink gives up. On ctx cancellation in-flight
// fetches finish within the shutdown timeout, the pending batch is flushed
// and ctx.Err() is returned with the summary.
func (p *Pipeline) Run(ctx context.Context, r Range) (Summary, error) {
	started := p.now()
	var sum Summary
	if !r.Follow && r.End < r.Start {
		return sum, fmt.Errorf("%w: end %d before start %d", ErrInvalidRange, r.End, r.Start)
	}

	stored, err := p.loadWatermark(ctx, p.stream)
	if err != nil {
		return sum, err
	}
	start := r.Start
	if stored != nil {
		sum.Watermark, sum.HasWatermark = stored.Slot, true
		start = max(start, stored.Slot+1)
	}

	var limit uint64
	if r.Follow {
		tip, err := p.tip.Latest(ctx)
		if err != nil {
			return sum, fmt.Errorf("get tip: %w", err)
		}
		limit = p.confirmed(tip)
		if r.Start == 0 && stored == nil {
			start = limit
		}
	} else {
		limit = r.End
		if start > r.End {
			p.logger.Info("range already ingested",
				zap.Uint64("end", r.End),
				zap.Uint64("watermark", sum.Watermark),
			)
			return sum, nil
		}
	}
	sum.Start = start

	p.logger.Info("starting slot ingestion",
		zap.Uint64("start", start),
		zap.Uint64("end", r.End),
		zap.Bool("follow", r.Follow),
		zap.Int("concurrency", p.concurrency),
		zap.String("sink", p.sink.Name()),
	)

	rc := NewRunContext(start, p.dedupWindow, 0)
	run := &slotRun{
		p:      p,
		rc:     rc,
		follow: r.Follow,
		next:   start,
		limit:  limit,
		passes: make(map[uint64]int),
		col:    p.newCollector(rc),
		sum:    &sum,
	}
	err = run.loop(ctx)

	if wm, ok := rc.Watermark(); ok {
		sum.Watermark, sum.HasWatermark = wm, true
	}
	sum.Duration = p.now().Sub(started)
	p.logger.Info("slot ingestion finished",
		zap.Int("done", sum.SlotsDone),
		zap.Int("skipped", sum.SlotsSkipped),
		zap.Int("deferred", sum.SlotsDeferred),
		zap.Uint64s("unresolved", sum.Unresolved),
		zap.Int("records", sum.RecordsWritten),
		zap.Int("duplicates", sum.DuplicatesDropped),
		zap.Int("warnings", sum.Warnings),
		zap.Uint64("watermark", sum.Watermark),
		zap.Duration("duration", sum.Duration),
	)
	return sum, err
}

func (p *Pipeline) confirmed(tip uint64) uint64 {
	if tip < p.lag {
		return 0
	}
	return tip - p.lag
}

func (p *Pipeline) loadWatermark(ctx context.Context, stream string) (*storage.Watermark, error) {
	if p.watermarks == nil {
		return nil, nil
	}
	w, err := p.watermarks.Get(ctx, stream)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load watermark %s: %w", stream, err)
	}
	p.logger.Info("resuming from watermark",
		zap.String("stream", stream),
		zap.Uint64("slot", w.Slot),
		zap.String("signature", w.Signature),
	)
	return w, nil
}

func (p *Pipeline) newCollector(rc *RunContext) *collector {
	return &collector{
		sink:    p.sink,
		retry:   p.sinkRetry,
		rc:      rc,
		metrics: p.metrics,
		logger:  p.logger.With(zap.String("sink", p.sink.Name())),
		now:     p.now,
		maxSize: p.batchSize,
	}
}

// slotResult is what a fetch worker hands back to the coordinator.
type slotResult struct {
	slot     uint64
	attempts int
	empty    bool // no block, or no transaction touching the program
	records  []domain.SwapRecord
	stats    txStats
	err      error
}

type txStats struct {
	swaps    int
	warnings int
	failed   int
}

// fetchSlot runs in a worker. Retry waits follow ctx so a stop ends them,
// while an attempt already on the wire runs under fetchCtx.
func (p *Pipeline) fetchSlot(ctx, fetchCtx context.Context, rc *RunContext, slot uint64) slotResult {
	res := slotResult{slot: slot}
	if res.err = rc.Transition(slot, SlotFetching); res.err != nil {
		return res
	}

	var block *solana.Block
	res.attempts, res.err = p.fetchRetry.Do(ctx, func(context.Context) error {
		b, err := p.rpc.GetBlock(fetchCtx, slot)
		p.metrics.FetchAttempts.WithLabelValues(fetchOutcome(err)).Inc()
		block = b
		return err
	})
	if errors.Is(res.err, solana.ErrNotFound) {
		res.err = nil
		res.empty = true
		return res
	}
	if res.err != nil {
		return res
	}
	if res.err = rc.Transition(slot, SlotFetched); res.err != nil {
		return res
	}

	matched := 0
	for i := range block.Transactions {
		tx := block.Transactions[i]
		if !tx.Mentions(p.programID) {
			continue
		}
		if matched == 0 {
			if res.err = rc.Transition(slot, SlotReconciling); res.err != nil {
				return res
			}
		}
		matched++

		if tx.Slot == 0 {
			tx.Slot = block.Slot
		}
		if tx.BlockTime == 0 && block.BlockTime != nil {
			tx.BlockTime = *block.BlockTime
		}
		res.records = append(res.records, p.reconcileTx(&tx, &res.stats)...)
	}
	res.empty = matched == 0
	if p.logger.Core().Enabled(zap.DebugLevel) {
		bs := summarizeBlock(block)
		p.logger.Debug("block fetched",
			zap.Uint64("slot", slot),
			zap.Int("transactions", bs.transactions),
			zap.Int("failed", bs.failed),
			zap.Uint64("fees", bs.fees),
			zap.Int("matched", matched),
			zap.Int("records", len(res.records)),
		)
	}
	return res
}

type blockSummary struct {
	transactions int
	failed       int
	fees         uint64 // lamports
}

func summarizeBlock(b *solana.Block) blockSummary {
	bs := blockSummary{transactions: len(b.Transactions)}
	for i := range b.Transactions {
		tx := &b.Transactions[i]
		if tx.Failed() {
			bs.failed++
		}
		if tx.Meta != nil {
			bs.fees += tx.Meta.Fee
		}
	}
	return bs
}

// reconcileTx reconciles one transaction and reports its warnings.
func (p *Pipeline) reconcileTx(tx *solana.Transaction, st *txStats) []domain.SwapRecord {
	r := p.reconciler.Reconcile(tx)
	p.metrics.SwapsDecoded.Add(float64(r.Swaps))
	st.swaps += r.Swaps
	if r.Failed {
		p.metrics.FailedTransactions.Inc()
		st.failed++
	}
	for _, w := range r.Warnings {
		p.metrics.ReconcileWarnings.WithLabelValues(string(w.Reason)).Inc()
		fields := []zap.Field{
			zap.String("signature", w.Signature),
			zap.Uint32("instruction_index", w.InstructionIndex),
			zap.Uint64("slot", w.Slot),
			zap.String("reason", string(w.Reason)),
		}
		if w.Reason == reconcile.ReasonDecodeError {
			p.logger.Warn("swap instruction decode failed", append(fields, zap.Error(w.Err))...)
			continue
		}
		p.logger.Info("swap instruction skipped", append(fields, zap.String("detail", w.Detail))...)
	}
	st.warnings += len(r.Warnings)
	if len(r.Records) > 0 && tx.Meta != nil && p.logger.Core().Enabled(zap.DebugLevel) {
		fields := []zap.Field{
			zap.String("signature", tx.Signature),
			zap.Uint64("slot", tx.Slot),
			zap.Int("records", len(r.Records)),
			zap.Uint64("fee", tx.Meta.Fee),
		}
		if cu := tx.Meta.ComputeUnitsConsumed; cu != nil {
			fields = append(fields, zap.Uint64("compute_units", *cu))
		}
		p.logger.Debug("swap transaction reconciled", fields...)
	}
	return r.Records
}

func fetchOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, solana.ErrNotFound):
		return "not_found"
	case errors.Is(err, solana.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, solana.ErrTransient):
		return "transient"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "permanent"
	}
}

// slotRun is the coordinator state of one Run. Only the coordinator
// goroutine touches it.
type slotRun struct {
	p      *Pipeline
	rc     *RunContext
	col    *collector
	sum    *Summary
	follow bool

	next  uint64   // next slot in sequence
	limit uint64   // highest slot that may be dispatched
	ready []uint64 // deferred slots due for another pass
	later []uint64 // deferred slots waiting for the next pass
	// passes counts fetch passes of deferred slots.
	passes   map[uint64]int
	inflight int
	highest  uint64

	persisted   uint64
	hasPersist  bool
	lastPersist time.Time
}

func (s *slotRun) loop(ctx context.Context) error {
	p := s.p
	flushCtx := context.WithoutCancel(ctx)

	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	g, gctx := errgroup.WithContext(workCtx)

	work := make(chan uint64)
	// More than concurrency results can be outstanding, so a send may block
	// until the coordinator reads again. abandoned is closed when it never
	// will.
	results := make(chan slotResult, p.concurrency)
	abandoned := make(chan struct{})
	for i := 0; i < p.concurrency; i++ {
		g.Go(func() error {
			for slot := range work {
				res := p.fetchSlot(ctx, gctx, s.rc, slot)
				select {
				case results <- res:
				case <-abandoned:
					return nil
				}
			}
			return nil
		})
	}

	var (
		flushTimer *time.Timer
		flushC     <-chan time.Time
		tickC      <-chan time.Time
		stopC      = ctx.Done()
		stopping   bool
		runErr     error
	)
	stopFlushTimer := func() {
		if flushTimer != nil {
			flushTimer.Stop()
			flushTimer, flushC = nil, nil
		}
	}
	defer stopFlushTimer()

	if s.follow {
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

loop:
	for {
		var (
			workC  chan<- uint64
			slot   uint64
			queued bool
		)
		if !stopping {
			s.schedule()
			slot, queued = s.peek()
			if queued {
				workC = work
			}
		}
		if s.inflight == 0 && workC == nil && (stopping || s.finished()) {
			break
		}

		select {
		case workC <- slot:
			s.take(slot)

		case res := <-results:
			s.inflight--
			wasEmpty := s.col.empty()
			s.handle(flushCtx, res)
			switch {
			case s.col.full():
				stopFlushTimer()
				if runErr = s.flush(flushCtx); runErr != nil {
					break loop
				}
			case wasEmpty && !s.col.empty():
				flushTimer = time.NewTimer(p.flushInterval)
				flushC = flushTimer.C
			}

		case <-flushC:
			flushTimer, flushC = nil, nil
			if runErr = s.flush(flushCtx); runErr != nil {
				break loop
			}

		case <-tickC:
			if stopping {
				continue
			}
			if tip, err := p.tip.Latest(ctx); err != nil {
				p.logger.Warn("tip refresh failed", zap.Error(err))
			} else {
				s.limit = p.confirmed(tip)
			}
			s.ready = append(s.ready, s.later...)
			s.later = nil
			s.persist(flushCtx, false)

		case <-stopC:
			stopping, stopC = true, nil
			p.logger.Info("stop requested, draining in-flight fetches",
				zap.Int("in_flight", s.inflight),
				zap.Duration("timeout", p.shutdownTimeout),
			)
			t := time.AfterFunc(p.shutdownTimeout, cancelWork)
			defer t.Stop()
		}
	}

	close(work)
	if runErr != nil {
		close(abandoned)
		cancelWork()
	}
	_ = g.Wait()

	if runErr == nil {
		stopFlushTimer()
		runErr = s.flush(flushCtx)
	}

	s.sum.Unresolved = append(s.sum.Unresolved, s.ready...)
	s.sum.Unresolved = append(s.sum.Unresolved, s.later...)
	s.persist(flushCtx, true)

	if runErr != nil {
		return runErr
	}
	return ctx.Err()
}

// schedule starts the next pass over deferred slots once a bounded range
// has been dispatched in full.
func (s *slotRun) schedule() {
	if s.follow || s.next <= s.limit || len(s.ready) > 0 || len(s.later) == 0 {
		return
	}
	s.ready, s.later = s.later, nil
}

func (s *slotRun) peek() (uint64, bool) {
	if len(s.ready) > 0 {
		return s.ready[0], true
	}
	if s.next <= s.limit {
		return s.next, true
	}
	return 0, false
}

func (s *slotRun) take(slot uint64) {
	if len(s.ready) > 0 && s.ready[0] == slot {
		s.ready = s.ready[1:]
	} else {
		s.next++
	}
	if err := s.rc.Track(slot); err != nil {
		s.p.logger.Error("slot tracking failed", zap.Uint64("slot", slot), zap.Error(err))
	}
	s.inflight++
	if slot > s.highest {
		s.highest = slot
		s.p.metrics.HighestSlot.Set(float64(slot))
	}
}

func (s *slotRun) finished() bool {
	return !s.follow && s.next > s.limit && len(s.ready) == 0 && len(s.later) == 0
}

func (s *slotRun) handle(ctx context.Context, res slotResult) {
	s.sum.FetchAttempts += res.attempts
	s.sum.Warnings += res.stats.warnings
	s.sum.FailedTxs += res.stats.failed

	switch {
	case res.err != nil:
		s.deferSlot(res)
	case res.empty:
		s.complete(ctx, res.slot, SlotSkippedEmpty)
		s.sum.SlotsSkipped++
	case len(res.records) == 0:
		s.complete(ctx, res.slot, SlotDone)
		s.sum.SlotsDone++
	default:
		if err := s.rc.Transition(res.slot, SlotSinking); err != nil {
			s.p.logger.Error("slot state", zap.Uint64("slot", res.slot), zap.Error(err))
		}
		s.col.add(res.slot, res.records)
	}
}

// deferSlot puts a slot whose fetch failed back to Pending. Retry
// exhaustion and interrupted fetches get another pass; anything else, and
// bounded slots out of passes, are unresolved.
func (s *slotRun) deferSlot(res slotResult) {
	p := s.p
	if err := s.rc.Transition(res.slot, SlotPending); err != nil {
		p.logger.Error("slot state", zap.Uint64("slot", res.slot), zap.Error(err))
	}
	s.passes[res.slot]++

	retryable := errors.Is(res.err, ErrRetriesExhausted) ||
		errors.Is(res.err, context.Canceled) ||
		errors.Is(res.err, context.DeadlineExceeded)
	if !retryable || (!s.follow && s.passes[res.slot] >= p.maxPasses) {
		s.sum.Unresolved = append(s.sum.Unresolved, res.slot)
		p.metrics.SlotsProcessed.WithLabelValues("unresolved").Inc()
		p.logger.Error("slot unresolved",
			zap.Uint64("slot", res.slot),
			zap.Int("passes", s.passes[res.slot]),
			zap.Error(res.err),
		)
		return
	}

	s.later = append(s.later, res.slot)
	s.sum.SlotsDeferred++
	p.metrics.SlotsProcessed.WithLabelValues("deferred").Inc()
	p.logger.Warn("slot deferred",
		zap.Uint64("slot", res.slot),
		zap.Int("attempts", res.attempts),
		zap.Int("passes", s.passes[res.slot]),
		zap.Error(res.err),
	)
}

func (s *slotRun) complete(ctx context.Context, slot uint64, to SlotState) {
	advanced, err := s.rc.Complete(slot, to)
	if err != nil {
		s.p.logger.Error("slot completion", zap.Uint64("slot", slot), zap.Error(err))
		return
	}
	s.p.metrics.SlotsProcessed.WithLabelValues(to.String()).Inc()
	if advanced {
		if wm, ok := s.rc.Watermark(); ok {
			s.p.metrics.Watermark.Set(float64(wm))
		}
		s.persist(ctx, false)
	}
}

func (s *slotRun) flush(ctx context.Context) error {
	res, err := s.col.flush(ctx)
	if err != nil {
		return err
	}
	s.sum.RecordsWritten += res.Written
	s.sum.DuplicatesDropped += res.Duplicates
	if res.Written > 0 {
		s.sum.Batches++
	}
	for _, slot := range res.Slots {
		s.complete(ctx, slot, SlotDone)
		s.sum.SlotsDone++
	}
	if len(res.Slots) > 0 {
		s.persist(ctx, true)
	}
	return nil
}

// persist stores the watermark. Unforced calls are throttled to the flush
// interval. Failures are logged; the next call retries.
func (s *slotRun) persist(ctx context.Context, force bool) {
	p := s.p
	if p.watermarks == nil {
		return
	}
	wm, ok := s.rc.Watermark()
	if !ok || (s.hasPersist && wm == s.persisted) {
		return
	}
	now := p.now()
	if !force && now.Sub(s.lastPersist) < p.flushInterval {
		return
	}
	err := p.watermarks.Set(ctx, p.stream, &storage.Watermark{Slot: wm, UpdatedAt: now})
	if err != nil {
		p.logger.Warn("watermark persist failed", zap.Uint64("slot", wm), zap.Error(err))
		return
	}
	s.persisted, s.hasPersist, s.lastPersist = wm, true, now
}
