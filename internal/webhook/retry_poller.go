package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/purrpawboutique/purr-paw-boutique/internal/metrics"
)

// RetryPoller re-drives inbox events whose processing failed.
type RetryPoller struct {
	receiver  *Receiver
	inbox     Inbox
	metrics   *metrics.Metrics
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewRetryPoller(receiver *Receiver, interval time.Duration) *RetryPoller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &RetryPoller{
		receiver:  receiver,
		inbox:     receiver.inbox,
		metrics:   receiver.metrics,
		logger:    receiver.logger.With("component", "webhook_retry"),
		interval:  interval,
		batchSize: 100,
	}
}

func (p *RetryPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *RetryPoller) processPending(ctx context.Context) {
	events, err := p.inbox.Pending(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("failed to fetch pending webhook events", "error", err)
		return
	}
	p.metrics.SetInboxPending(len(events))

	for _, ie := range events {
		if ctx.Err() != nil {
			return
		}
		ev := ie.Event
		if err := p.receiver.Process(ctx, &ev); err != nil {
			p.logger.Warn("webhook retry failed", "event_id", ev.ID, "attempt", ie.Attempts+1, "error", err)
			continue
		}
		p.logger.Info("webhook event recovered", "event_id", ev.ID, "kind", ev.Kind)
	}
}
