package main

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const erc721ABIJSON = `[
	{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"ownerOf","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const erc1155ABIJSON = `[
	{"inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var (
	erc721ABI  = mustParseABI(erc721ABIJSON)
	erc1155ABI = mustParseABI(erc1155ABIJSON)
)

// ERC721 wraps a non-fungible token contract for ownership reads.
type ERC721 struct {
	boundContract
}

func NewERC721(client Ethereum, address common.Address) *ERC721 {
	return &ERC721{newBoundContract(client, address, erc721ABI)}
}

func (t *ERC721) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	out, err := t.call(ctx, "ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (t *ERC721) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := t.call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// ERC1155 wraps a multi-token contract for balance reads.
type ERC1155 struct {
	boundContract
}

func NewERC1155(client Ethereum, address common.Address) *ERC1155 {
	return &ERC1155{newBoundContract(client, address, erc1155ABI)}
}

func (t *ERC1155) BalanceOf(ctx context.Context, account common.Address, id *big.Int) (*big.Int, error) {
	out, err := t.call(ctx, "balanceOf", account, id)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}
