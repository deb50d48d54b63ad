// Package reconcile re-checks unsettled payments against the provider in
// the background: a ticker sweep feeds a bounded channel queue drained by
// a fixed worker pool.
package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"khqrgw/internal/domain"
)

type Options struct {
	Interval time.Duration
	Lookback time.Duration
	Workers  int
	Queue    int
}

type Reconciler struct {
	ledger domain.Ledger
	client domain.SettlementClient
	log    *zap.Logger
	opts   Options
	queue  chan domain.Payment
}

func New(ledger domain.Ledger, client domain.SettlementClient, log *zap.Logger, opts Options) *Reconciler {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Queue <= 0 {
		opts.Queue = 1024
	}
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 30 * time.Minute
	}
	return &Reconciler{
		ledger: ledger,
		client: client,
		log:    log,
		opts:   opts,
		queue:  make(chan domain.Payment, opts.Queue),
	}
}

// Start launches the workers and the sweep loop. Both stop when ctx is
// cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	for i := 0; i < r.opts.Workers; i++ {
		go r.worker(ctx)
	}
	go r.sweepLoop(ctx)
}

func (r *Reconciler) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep enqueues every unsettled payment still inside the lookback
// window. A full queue drops the rest; the next sweep retries them.
func (r *Reconciler) Sweep(ctx context.Context) {
	pending, err := r.ledger.Pending(ctx)
	if err != nil {
		r.log.Error("sweep failed to list pending payments", zap.Error(err))
		return
	}
	cutoff := time.Now().Add(-r.opts.Lookback)
	for _, p := range pending {
		if p.CreatedAt.Before(cutoff) {
			continue
		}
		select {
		case r.queue <- p:
		default:
			r.log.Warn("reconcile queue full, deferring to next sweep",
				zap.Int("queued", len(r.queue)))
			return
		}
	}
}

func (r *Reconciler) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-r.queue:
			if _, err := r.Check(ctx, p); err != nil {
				r.log.Warn("settlement check failed",
					zap.String("md5", p.MD5), zap.Error(err))
			}
		}
	}
}

// Check runs one settlement lookup for a payment and applies the result
// to the ledger. Primary strategy is the MD5 lookup; when the provider
// still reports not-found for a record older than one sweep interval,
// the short-hash lookup covers QRs re-encoded by the payer's app. The
// updated record is returned. Also used by the on-demand status route.
func (r *Reconciler) Check(ctx context.Context, p domain.Payment) (domain.Payment, error) {
	s, err := r.client.CheckByMD5(ctx, p.MD5)
	if err != nil {
		_ = r.ledger.SetStatus(ctx, p.MD5, domain.StatusError)
		p.Status = domain.StatusError
		return p, err
	}

	if s.Status == domain.StatusPending && time.Since(p.CreatedAt) > r.opts.Interval {
		fallback, err := r.client.CheckByShortHash(ctx, p.ShortHash, p.Amount, p.Currency)
		if err == nil && fallback.Status != domain.StatusPending {
			s = fallback
		}
	}

	switch s.Status {
	case domain.StatusCompleted:
		if err := r.ledger.MarkCompleted(ctx, p.MD5, s); err != nil {
			return p, err
		}
		r.log.Info("payment settled",
			zap.String("md5", p.MD5),
			zap.String("hash", s.TransactionHash),
			zap.String("from", s.FromAccount))
	case domain.StatusFailed:
		if err := r.ledger.SetStatus(ctx, p.MD5, domain.StatusFailed); err != nil {
			return p, err
		}
	case domain.StatusPending:
		// A previously errored record recovered: the provider answered.
		if p.Status == domain.StatusError {
			if err := r.ledger.SetStatus(ctx, p.MD5, domain.StatusPending); err != nil {
				return p, err
			}
		}
	}
	return r.ledger.Get(ctx, p.MD5)
}
