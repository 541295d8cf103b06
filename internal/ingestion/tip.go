package ingestion

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"raydium-swap-ingest/internal/solana"
)

// TipSource reports the newest slot available for fetching.
type TipSource interface {
	Latest(ctx context.Context) (uint64, error)
}

// PollTip asks the RPC node for its current slot on every call.
type PollTip struct {
	RPC solana.RPCClient
}

// Latest implements TipSource.
func (t PollTip) Latest(ctx context.Context) (uint64, error) {
	return t.RPC.GetSlot(ctx)
}

// WSTip follows slotSubscribe notifications and falls back to another
// source until the first notification arrives.
type WSTip struct {
	fallback TipSource
	latest   atomic.Uint64
	done     chan struct{}
}

// NewWSTip starts consuming notifications. The goroutine exits when the
// channel closes or ctx is done.
func NewWSTip(ctx context.Context, slots <-chan solana.SlotNotification, fallback TipSource, logger *zap.Logger) *WSTip {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &WSTip{fallback: fallback, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-slots:
				if !ok {
					logger.Warn("slot subscription closed, using fallback tip")
					return
				}
				for {
					cur := t.latest.Load()
					if n.Slot <= cur || t.latest.CompareAndSwap(cur, n.Slot) {
						break
					}
				}
			}
		}
	}()
	return t
}

// Latest implements TipSource. Once the stream has ended every call goes to
// the fallback.
func (t *WSTip) Latest(ctx context.Context) (uint64, error) {
	select {
	case <-t.done:
		return t.fallback.Latest(ctx)
	default:
	}
	if slot := t.latest.Load(); slot > 0 {
		return slot, nil
	}
	return t.fallback.Latest(ctx)
}

// Done is closed when the notification stream ends.
func (t *WSTip) Done() <-chan struct{} {
	return t.done
}
