package main

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const multicall2ABIJSON = `[
	{"inputs":[{"components":[{"name":"target","type":"address"},{"name":"callData","type":"bytes"}],"name":"calls","type":"tuple[]"}],"name":"aggregate","outputs":[{"name":"blockNumber","type":"uint256"},{"name":"returnData","type":"bytes[]"}],"stateMutability":"nonpayable","type":"function"}
]`

var multicall2ABI = mustParseABI(multicall2ABIJSON)

// MulticallCall is one target/calldata pair for aggregate batching.
type MulticallCall struct {
	Target   common.Address
	CallData []byte
}

// Multicall2 wraps a Multicall2 contract for read batching.
type Multicall2 struct {
	boundContract
}

func NewMulticall2(client Ethereum, address common.Address) *Multicall2 {
	return &Multicall2{newBoundContract(client, address, multicall2ABI)}
}

// Aggregate executes the batch through eth_call and returns the block number
// it was evaluated at together with each call's raw return data.
func (m *Multicall2) Aggregate(ctx context.Context, calls []MulticallCall) (*big.Int, [][]byte, error) {
	out, err := m.call(ctx, "aggregate", calls)
	if err != nil {
		return nil, nil, err
	}
	return out[0].(*big.Int), out[1].([][]byte), nil
}
