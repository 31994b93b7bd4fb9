package main

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// ErrReceiptTimeout is returned when a receipt does not appear within the
// caller-supplied window. The caller may retry with the same hash.
var ErrReceiptTimeout = errors.New("timeout waiting for transaction receipt")

const (
	defaultReceiptTimeout      = 180 * time.Second
	defaultReceiptPollInterval = 2 * time.Second
)

// TxTracker follows submitted transactions through receipt and confirmation.
type TxTracker struct {
	client Ethereum
	logger Logger
}

func NewTxTracker(client Ethereum, logger Logger) *TxTracker {
	return &TxTracker{
		client: client,
		logger: logger.NewSystem("tx-tracker"),
	}
}

// AwaitReceipt polls for the receipt of txHash at pollInterval cadence and
// returns it as soon as it appears. Transient query errors are swallowed and
// retried until the timeout elapses, at which point ErrReceiptTimeout is
// returned.
func (t *TxTracker) AwaitReceipt(ctx context.Context, txHash common.Hash, timeout, pollInterval time.Duration) (*types.Receipt, error) {
	if timeout <= 0 {
		timeout = defaultReceiptTimeout
	}
	if pollInterval <= 0 {
		pollInterval = defaultReceiptPollInterval
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		receipt, err := t.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && ctx.Err() == nil {
			// Not found yet or transient upstream failure. Keep polling.
			t.logger.Debug("receipt not available yet", "txHash", txHash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ErrReceiptTimeout, "tx %s", txHash.Hex())
		case <-time.After(pollInterval):
		}
	}
}

// AwaitConfirmations blocks until the chain head is at least
// confirmations-1 blocks past the receipt's inclusion block, then returns the
// receipt unchanged. A receipt without a block number is returned as-is.
//
// There is no built-in timeout; callers bound the wait through ctx.
func (t *TxTracker) AwaitConfirmations(ctx context.Context, receipt *types.Receipt, confirmations uint64, pollInterval time.Duration) (*types.Receipt, error) {
	if receipt == nil || receipt.BlockNumber == nil {
		return receipt, nil
	}
	if pollInterval <= 0 {
		pollInterval = defaultReceiptPollInterval
	}

	target := receipt.BlockNumber.Uint64()
	for {
		head, err := t.client.BlockNumber(ctx)
		if err == nil && head+1 >= target+confirmations {
			return receipt, nil
		}
		if err != nil {
			t.logger.Debug("head query failed while awaiting confirmations", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
