package main

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
)

// Ethereum is the narrow upstream-node contract the gateway core depends on.
// *ethclient.Client satisfies it; tests substitute a mock.
type Ethereum interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

var _ Ethereum = (*ethclient.Client)(nil)

const (
	// probeAttempts bounds the readiness probe retries at startup.
	probeAttempts = 3
	// probeBackoffBase is the initial backoff between probe attempts.
	probeBackoffBase = time.Second
	// probeBackoffCap caps the exponential backoff.
	probeBackoffCap = 5 * time.Second
)

// ErrChainIDMismatch is returned when the upstream node reports a chain ID
// different from the configured one. It is fatal at startup.
var ErrChainIDMismatch = errors.New("upstream chain ID mismatch")

// DialChain connects to the upstream node and probes it for readiness with
// bounded exponential backoff. Each probe is limited by requestTimeout.
func DialChain(ctx context.Context, rawURL string, requestTimeout time.Duration, logger Logger) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial upstream RPC")
	}

	backoff := retry.WithMaxRetries(probeAttempts-1, retry.NewExponential(probeBackoffBase))
	backoff = retry.WithCappedDuration(probeBackoffCap, backoff)

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		probeCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()

		head, err := client.BlockNumber(probeCtx)
		if err != nil {
			logger.Warn("upstream readiness probe failed, retrying", "error", err)
			return retry.RetryableError(err)
		}
		logger.Debug("upstream node is ready", "head", head)
		return nil
	})
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "upstream node is not ready")
	}
	return client, nil
}

// AssertChainID verifies the upstream node serves the configured chain.
func AssertChainID(ctx context.Context, client Ethereum, expected uint64) error {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to query upstream chain ID")
	}
	if chainID.Uint64() != expected {
		return errors.Wrapf(ErrChainIDMismatch, "expected %d, got %s", expected, chainID)
	}
	return nil
}
