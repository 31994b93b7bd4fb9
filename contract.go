package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// mustParseABI parses a compile-time ABI definition. Panics on malformed
// JSON, which can only happen from a programming error.
func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI definition: %v", err))
	}
	return parsed
}

// boundContract pairs a deployed contract address with its ABI and the chain
// client used to reach it. All gateway contract wrappers embed it.
type boundContract struct {
	client  Ethereum
	address common.Address
	abi     abi.ABI
}

func newBoundContract(client Ethereum, address common.Address, parsed abi.ABI) boundContract {
	return boundContract{client: client, address: address, abi: parsed}
}

// call executes a read-only contract method against the latest block and
// returns the unpacked outputs.
func (c *boundContract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s call", method)
	}

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "%s call failed", method)
	}

	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s result", method)
	}
	return values, nil
}

// packInput encodes calldata for a state-changing method.
func (c *boundContract) packInput(method string, args ...any) ([]byte, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s call", method)
	}
	return data, nil
}
