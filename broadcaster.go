package main

import (
	"context"
	"encoding/json"
	"time"
)

// BlockEvent is the payload of an events.block notification.
type BlockEvent struct {
	Number uint64 `json:"number"`
}

// BlockBroadcaster polls the chain head and pushes events.block
// notifications to every subscribed connection. Query failures are logged
// and retried on the next tick; the broadcaster itself never dies until its
// context is cancelled.
type BlockBroadcaster struct {
	client   Ethereum
	hub      *SubscriberHub
	metrics  *Metrics
	interval time.Duration
	logger   Logger

	lastSeen     uint64
	haveBaseline bool
}

func NewBlockBroadcaster(client Ethereum, hub *SubscriberHub, metrics *Metrics, interval time.Duration, logger Logger) *BlockBroadcaster {
	return &BlockBroadcaster{
		client:   client,
		hub:      hub,
		metrics:  metrics,
		interval: interval,
		logger:   logger.NewSystem("block-broadcaster"),
	}
}

// Start runs the poll loop until ctx is cancelled. The gateway server runs
// it in a goroutine and waits for it to return during shutdown, so no
// notification send can race connection teardown.
func (b *BlockBroadcaster) Start(ctx context.Context) {
	b.logger.Info("block broadcaster started", "interval", b.interval)

	// Baseline from the current head so only new blocks are announced.
	b.poll(ctx)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("block broadcaster stopped")
			return
		case <-ticker.C:
			b.poll(ctx)
		}
	}
}

// poll performs one tick: query the head and announce every block in the
// range (lastSeen, head], ascending. On query failure lastSeen does not
// advance, so missed blocks are announced on a later tick.
func (b *BlockBroadcaster) poll(ctx context.Context) {
	head, err := b.client.BlockNumber(ctx)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Warn("block poll failed", "error", err)
		}
		return
	}

	if !b.haveBaseline {
		b.lastSeen = head
		b.haveBaseline = true
		b.logger.Debug("block baseline established", "head", head)
		return
	}

	if head <= b.lastSeen {
		return
	}

	for number := b.lastSeen + 1; number <= head; number++ {
		payload, err := json.Marshal(newNotification("events.block", BlockEvent{Number: number}))
		if err != nil {
			b.logger.Error("failed to marshal block notification", "error", err)
			continue
		}

		pruned := b.hub.Broadcast(payload)
		if pruned > 0 {
			b.logger.Info("pruned dead subscribers", "count", pruned)
			b.metrics.SubscribersPruned.Add(float64(pruned))
		}
		b.metrics.BlocksBroadcast.Inc()
		b.metrics.Subscribers.Set(float64(b.hub.Len()))
	}
	b.lastSeen = head
}
