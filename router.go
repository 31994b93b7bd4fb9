package main

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const uniV2RouterABIJSON = `[
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

var uniV2RouterABI = mustParseABI(uniV2RouterABIJSON)

// UniV2Router wraps a Uniswap-V2 compatible router contract.
type UniV2Router struct {
	boundContract
}

func NewUniV2Router(client Ethereum, address common.Address) *UniV2Router {
	return &UniV2Router{newBoundContract(client, address, uniV2RouterABI)}
}

// GetAmountsOut quotes the output amounts for swapping amountIn along path.
func (r *UniV2Router) GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	out, err := r.call(ctx, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	return out[0].([]*big.Int), nil
}

// SwapData encodes a swapExactTokensForTokens call for submission.
func (r *UniV2Router) SwapData(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return r.packInput("swapExactTokensForTokens", amountIn, amountOutMin, path, to, deadline)
}
