package ingestion

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"raydium-swap-ingest/internal/solana"
	"raydium-swap-ingest/internal/storage"
)

// signaturePageLimit is the largest page getSignaturesForAddress returns.
const signaturePageLimit = 1000

// SignatureStream returns the watermark stream id used by RunSignatures.
func (p *Pipeline) SignatureStream() string {
	return p.stream + ":signatures"
}

// RunSignatures ingests the program's transactions newer than the stored
// signature cursor. It first scans the signature list newest first, keeping
// only page boundaries, then works through the pages oldest first: each
// page is fetched with the retry policy, reconciled, flushed, and the cursor
// moves to its newest signature before the next page is touched. A fetch
// that fails for good stops the run with the cursor on the last signature
// before the gap.
//
// Without a stored cursor only the newest SignatureLimit signatures are
// ingested.
func (p *Pipeline) RunSignatures(ctx context.Context) (Summary, error) {
	started := p.now()
	var sum Summary
	stream := p.SignatureStream()

	cursor, err := p.loadWatermark(ctx, stream)
	if err != nil {
		return sum, err
	}
	until := ""
	if cursor != nil {
		until = cursor.Signature
		sum.Watermark, sum.HasWatermark = cursor.Slot, true
	}

	pages, total, err := p.scanSignatures(ctx, until)
	if err != nil {
		return sum, err
	}
	if total == 0 {
		p.logger.Info("no new signatures", zap.String("until", until))
		return sum, nil
	}
	p.logger.Info("starting signature ingestion",
		zap.Int("signatures", total),
		zap.Int("pages", len(pages)),
		zap.String("until", until),
	)

	run := &signatureRun{
		p:        p,
		sum:      &sum,
		stream:   stream,
		col:      p.newCollector(NewRunContext(0, p.dedupWindow, 0)),
		flushCtx: context.WithoutCancel(ctx),
	}
	for i := len(pages) - 1; i >= 0 && ctx.Err() == nil; i-- {
		sigs, err := p.pageSignatures(ctx, pages[i], until)
		if err != nil {
			return run.finish(started, err)
		}
		gap, err := run.page(ctx, sigs)
		if err != nil || gap {
			return run.finish(started, err)
		}
	}
	return run.finish(started, ctx.Err())
}

// signaturePage is one page of the scan. Older pages are listed again from
// their before boundary, which stays stable as new signatures arrive; the
// newest page keeps its scanned listing.
type signaturePage struct {
	before string
	keep   int                    // newest entries of the page to ingest
	sigs   []solana.SignatureInfo // newest page only
}

// scanSignatures pages newest to oldest down to until, exclusive, and
// returns the page boundaries with the number of signatures to ingest.
func (p *Pipeline) scanSignatures(ctx context.Context, until string) ([]signaturePage, int, error) {
	var (
		pages  []signaturePage
		total  int
		before string
	)
	for {
		page, err := p.listSignatures(ctx, before, until)
		if err != nil {
			return nil, 0, err
		}
		if len(page) == 0 {
			return pages, total, nil
		}

		sp := signaturePage{before: before, keep: len(page)}
		if until == "" && total+len(page) > p.signatureLimit {
			sp.keep = p.signatureLimit - total
		}
		if len(pages) == 0 {
			sp.sigs = page
		}
		pages = append(pages, sp)
		total += sp.keep

		if sp.keep < len(page) || len(page) < signaturePageLimit ||
			(until == "" && total == p.signatureLimit) {
			return pages, total, nil
		}
		before = page[len(page)-1].Signature
	}
}

// pageSignatures returns the page's signatures oldest first.
func (p *Pipeline) pageSignatures(ctx context.Context, sp signaturePage, until string) ([]solana.SignatureInfo, error) {
	sigs := sp.sigs
	if sigs == nil {
		var err error
		if sigs, err = p.listSignatures(ctx, sp.before, until); err != nil {
			return nil, err
		}
	}
	sigs = slices.Clone(sigs[:min(sp.keep, len(sigs))])
	slices.Reverse(sigs)
	return sigs, nil
}

func (p *Pipeline) listSignatures(ctx context.Context, before, until string) ([]solana.SignatureInfo, error) {
	var page []solana.SignatureInfo
	_, err := p.fetchRetry.Do(ctx, func(ctx context.Context) error {
		var err error
		page, err = p.rpc.GetSignaturesForAddress(ctx, p.programID, &solana.SignaturesOpts{
			Before: before,
			Until:  until,
			Limit:  signaturePageLimit,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list signatures before %q: %w", before, err)
	}
	return page, nil
}

// signatureRun carries the state of one RunSignatures call across pages.
type signatureRun struct {
	p        *Pipeline
	sum      *Summary
	stream   string
	col      *collector
	flushCtx context.Context
}

// page ingests one page of signatures, oldest first. It reports a gap when
// a fetch failed for good; everything before the gap is flushed and the
// cursor persisted either way.
func (r *signatureRun) page(ctx context.Context, sigs []solana.SignatureInfo) (bool, error) {
	p, sum := r.p, r.sum
	txs := make([]*solana.Transaction, len(sigs))
	errs := make([]error, len(sigs))
	attempts := make([]int, len(sigs))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i := range sigs {
		if sigs[i].Err != nil {
			continue
		}
		g.Go(func() error {
			attempts[i], errs[i] = p.fetchRetry.Do(ctx, func(ctx context.Context) error {
				tx, err := p.rpc.GetTransaction(ctx, sigs[i].Signature)
				p.metrics.FetchAttempts.WithLabelValues(fetchOutcome(err)).Inc()
				txs[i] = tx
				return err
			})
			return nil
		})
	}
	_ = g.Wait()

	contiguous, gap := -1, false
	for i, sig := range sigs {
		sum.FetchAttempts += attempts[i]
		if err := errs[i]; err != nil && !errors.Is(err, solana.ErrNotFound) {
			sum.Unresolved = append(sum.Unresolved, sig.Slot)
			p.logger.Warn("signature fetch failed, cursor held",
				zap.String("signature", sig.Signature),
				zap.Uint64("slot", sig.Slot),
				zap.Int("remaining_in_page", len(sigs)-i),
				zap.Error(err),
			)
			gap = true
			break
		}
		contiguous = i
		sum.Signatures++

		switch {
		case sig.Err != nil:
			p.metrics.FailedTransactions.Inc()
			sum.FailedTxs++
		case txs[i] == nil:
			p.logger.Warn("listed signature not found", zap.String("signature", sig.Signature))
		default:
			var st txStats
			records := p.reconcileTx(txs[i], &st)
			sum.Warnings += st.warnings
			sum.FailedTxs += st.failed
			r.col.add(txs[i].Slot, records)
			if r.col.full() {
				if err := r.flush(); err != nil {
					return gap, err
				}
			}
		}
	}
	if err := r.flush(); err != nil {
		return gap, err
	}
	if contiguous >= 0 {
		r.persist(sigs[contiguous])
	}
	return gap, nil
}

func (r *signatureRun) flush() error {
	res, err := r.col.flush(r.flushCtx)
	r.sum.RecordsWritten += res.Written
	r.sum.DuplicatesDropped += res.Duplicates
	if res.Written > 0 {
		r.sum.Batches++
	}
	return err
}

func (r *signatureRun) persist(newest solana.SignatureInfo) {
	p := r.p
	r.sum.Watermark, r.sum.HasWatermark = newest.Slot, true
	if p.watermarks == nil {
		return
	}
	w := &storage.Watermark{Slot: newest.Slot, Signature: newest.Signature, UpdatedAt: p.now()}
	if err := p.watermarks.Set(r.flushCtx, r.stream, w); err != nil {
		p.logger.Warn("signature cursor persist failed",
			zap.String("signature", newest.Signature),
			zap.Error(err),
		)
	}
}

func (r *signatureRun) finish(started time.Time, err error) (Summary, error) {
	sum := r.sum
	sum.Duration = r.p.now().Sub(started)
	r.p.logger.Info("signature ingestion finished",
		zap.Int("signatures", sum.Signatures),
		zap.Int("records", sum.RecordsWritten),
		zap.Int("warnings", sum.Warnings),
		zap.Int("failed_txs", sum.FailedTxs),
		zap.Duration("duration", sum.Duration),
	)
	return *sum, err
}
