// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package subscription

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"codeberg.org/oliverandrich/newsletter/internal/apperr"
)

// Redeliverer periodically resends confirmation emails whose first send
// failed.
type Redeliverer struct {
	svc       *Service
	logger    *slog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
	interval  time.Duration
	batchSize int
	mu        sync.Mutex
}

// NewRedeliverer creates a worker that runs every interval and resends at
// most batchSize emails per run. Only tokens older than one interval are
// picked up so in-flight sign-ups are left alone.
func NewRedeliverer(svc *Service, interval time.Duration, batchSize int, logger *slog.Logger) *Redeliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redeliverer{
		svc:       svc,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start launches the worker. It stops when ctx is cancelled or Stop is called.
func (r *Redeliverer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.interval <= 0 {
		return errors.New("redelivery interval must be positive")
	}
	if r.cancel != nil {
		return errors.New("redeliverer already started")
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.worker(ctx, r.done)
	return nil
}

// Stop cancels the worker and waits for the current run to finish.
func (r *Redeliverer) Stop() error {
	r.mu.Lock()
	if r.cancel == nil {
		r.mu.Unlock()
		return errors.New("redeliverer already stopped or not started")
	}
	r.cancel()
	r.cancel = nil
	done := r.done
	r.mu.Unlock()

	<-done
	return nil
}

func (r *Redeliverer) worker(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.run(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Redeliverer) run(ctx context.Context) {
	sent, err := r.svc.RedeliverPending(ctx, time.Now().Add(-r.interval), r.batchSize)
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.ErrorContext(ctx, "can't redeliver confirmation emails", "error", apperr.Chain(err))
		return
	}
	if sent > 0 {
		r.logger.InfoContext(ctx, "redelivered confirmation emails", "count", sent)
	}
}
