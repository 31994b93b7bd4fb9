package main

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// RawRPC forwards allow-listed upstream JSON-RPC calls verbatim. The
// allow-list check happens in the rpc.call handler; this client only speaks
// the wire.
type RawRPC struct {
	client *rpc.Client
}

func NewRawRPC(ctx context.Context, rawURL string) (*RawRPC, error) {
	client, err := rpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial upstream for raw RPC")
	}
	return &RawRPC{client: client}, nil
}

// Call invokes an upstream method with positional params and returns the raw
// JSON result.
func (r *RawRPC) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	var result json.RawMessage
	if err := r.client.CallContext(ctx, &result, method, params...); err != nil {
		return nil, errors.Wrapf(err, "upstream %s call failed", method)
	}
	return result, nil
}

func (r *RawRPC) Close() {
	r.client.Close()
}
