package main

import (
	"context"
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var gweiInWei = decimal.New(1, 9)

// FeeParams carries the fee fields for a pending transaction. Exactly one of
// the two shapes is populated: GasPrice (legacy) or MaxFeePerGas plus
// MaxPriorityFeePerGas (EIP-1559).
type FeeParams struct {
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// IsLegacy reports whether the params describe a legacy-priced transaction.
func (f FeeParams) IsLegacy() bool {
	return f.GasPrice != nil
}

// GasStrategy computes fee parameters for outgoing transactions.
// With LegacyGasPrice set it always returns a fixed legacy price; otherwise
// it derives EIP-1559 fees from the current network gas price.
type GasStrategy struct {
	client Ethereum

	// LegacyGasPrice is the fixed legacy price in gwei, or nil for EIP-1559.
	LegacyGasPrice *decimal.Decimal
	// PriorityFee is the max priority fee in gwei.
	PriorityFee decimal.Decimal
	// MaxFeeMultiplier scales the network gas price into the max fee.
	MaxFeeMultiplier decimal.Decimal
}

// NewGasStrategy builds a strategy from the configured gwei-denominated
// parameters. Empty legacyGwei selects EIP-1559 pricing.
func NewGasStrategy(client Ethereum, legacyGwei, priorityGwei, maxFeeMultiplier string) (*GasStrategy, error) {
	s := &GasStrategy{client: client}

	if legacyGwei != "" {
		d, err := decimal.NewFromString(legacyGwei)
		if err != nil {
			return nil, errors.Wrap(err, "invalid legacy gas price")
		}
		s.LegacyGasPrice = &d
	}

	var err error
	if s.PriorityFee, err = decimal.NewFromString(priorityGwei); err != nil {
		return nil, errors.Wrap(err, "invalid priority fee")
	}
	if s.MaxFeeMultiplier, err = decimal.NewFromString(maxFeeMultiplier); err != nil {
		return nil, errors.Wrap(err, "invalid max fee multiplier")
	}
	return s, nil
}

// ComputeFees returns fee parameters for the next transaction. It is a pure
// function of the configuration and at most one chain query.
func (s *GasStrategy) ComputeFees(ctx context.Context) (FeeParams, error) {
	if s.LegacyGasPrice != nil {
		return FeeParams{GasPrice: gweiToWei(*s.LegacyGasPrice)}, nil
	}

	networkPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return FeeParams{}, errors.Wrap(err, "failed to query network gas price")
	}

	maxFee := decimal.NewFromBigInt(networkPrice, 0).Mul(s.MaxFeeMultiplier).Floor()
	return FeeParams{
		MaxFeePerGas:         maxFee.BigInt(),
		MaxPriorityFeePerGas: gweiToWei(s.PriorityFee),
	}, nil
}

func gweiToWei(gwei decimal.Decimal) *big.Int {
	return gwei.Mul(gweiInWei).Floor().BigInt()
}
