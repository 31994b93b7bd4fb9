package main

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/evmgate/evmgate/pkg/sign"
)

// TxSender builds, signs and submits contract transactions. It composes the
// nonce allocator and the gas strategy so every write path shares the same
// nonce and fee discipline.
type TxSender struct {
	client  Ethereum
	signer  *sign.EthereumSigner
	nonces  *NonceAllocator
	gas     *GasStrategy
	chainID *big.Int
	logger  Logger
}

func NewTxSender(client Ethereum, signer *sign.EthereumSigner, nonces *NonceAllocator, gas *GasStrategy, chainID uint64, logger Logger) *TxSender {
	return &TxSender{
		client:  client,
		signer:  signer,
		nonces:  nonces,
		gas:     gas,
		chainID: new(big.Int).SetUint64(chainID),
		logger:  logger.NewSystem("tx-sender"),
	}
}

// From returns the signing address used for outgoing transactions.
func (s *TxSender) From() common.Address {
	return s.signer.Address()
}

// Send submits calldata to a contract and returns the transaction hash.
// Gas is estimated upstream, the nonce comes from the allocator and fees from
// the configured strategy.
func (s *TxSender) Send(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	from := s.signer.Address()
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := s.nonces.Allocate(ctx, from)
	if err != nil {
		return common.Hash{}, err
	}

	fees, err := s.gas.ComputeFees(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Data:  data,
		Value: value,
	})
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "gas estimation failed")
	}

	var txData types.TxData
	if fees.IsLegacy() {
		txData = &types.LegacyTx{
			Nonce:    nonce,
			To:       &to,
			Value:    value,
			Gas:      gasLimit,
			GasPrice: fees.GasPrice,
			Data:     data,
		}
	} else {
		txData = &types.DynamicFeeTx{
			ChainID:   s.chainID,
			Nonce:     nonce,
			To:        &to,
			Value:     value,
			Gas:       gasLimit,
			GasFeeCap: fees.MaxFeePerGas,
			GasTipCap: fees.MaxPriorityFeePerGas,
			Data:      data,
		}
	}

	signedTx, err := types.SignNewTx(s.signer.PrivateKey(), types.LatestSignerForChainID(s.chainID), txData)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to sign transaction")
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to submit transaction")
	}

	txHash := signedTx.Hash()
	s.logger.Info("transaction submitted", "txHash", txHash.Hex(), "to", to.Hex(), "nonce", nonce)
	return txHash, nil
}
