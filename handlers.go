package main

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/evmgate/evmgate/pkg/sign"
)

// defaultSwapDeadline is how far in the future a swap deadline is set when
// the caller does not provide one.
const defaultSwapDeadline = 20 * time.Minute

// bigIntParam accepts a JSON number or a decimal string as a big integer,
// so callers are not forced to stringify amounts that fit in a double.
type bigIntParam struct {
	*big.Int
}

func (b *bigIntParam) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return rpcErrorf("invalid integer value: %s", string(data))
	}
	b.Int = n
	return nil
}

// HandlerDeps bundles the collaborators the RPC handlers compose.
type HandlerDeps struct {
	Config  Config
	Client  Ethereum
	Signer  *sign.EthereumSigner // nil when no private key is configured
	Sender  *TxSender            // nil when no private key is configured
	Nonces  *NonceAllocator
	Tracker *TxTracker
	Raw     *RawRPC
	Prices  *PriceClient
	Metrics *Metrics
	Logger  Logger
}

// RegisterHandlers binds every gateway method to the registry.
func RegisterHandlers(reg *MethodRegistry, d *HandlerDeps) {
	reg.Register("health", d.handleHealth)
	reg.Register("erc20.balance", d.handleERC20Balance)
	reg.Register("erc20.allowance", d.handleERC20Allowance)
	reg.Register("erc20.transfer", d.handleERC20Transfer)
	reg.Register("erc20.approve", d.handleERC20Approve)
	reg.Register("erc20.permitSign", d.handlePermitSign)
	reg.Register("defi.quote", d.handleDefiQuote)
	reg.Register("defi.swapExactTokensForTokens", d.handleDefiSwap)
	reg.Register("multicall.aggregate", d.handleMulticallAggregate)
	reg.Register("rpc.call", d.handleRawRPCCall)
	reg.Register("price.usd", d.handlePriceUSD)
	reg.Register("price.dex", d.handlePriceDex)
	reg.Register("nft.ownerOf", d.handleNFTOwnerOf)
	reg.Register("nft.balance", d.handleNFTBalance)
	reg.Register("erc1155.balance", d.handleERC1155Balance)
	reg.Register("wallet.signMessage", d.handleWalletSignMessage)
	reg.Register("tx.wait", d.handleTxWait)
	reg.Register("nonce.reset", d.handleNonceReset)
}

// requireSender guards write handlers: submitting a transaction without a
// configured signing key is a configuration error on that specific call.
func (d *HandlerDeps) requireSender() (*TxSender, error) {
	if d.Sender == nil {
		return nil, rpcErrorf("no private key configured for signing")
	}
	return d.Sender, nil
}

func (d *HandlerDeps) handleHealth(ctx context.Context, _ json.RawMessage) (any, error) {
	block, err := d.Client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok", "block": block}, nil
}

func (d *HandlerDeps) handleERC20Balance(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		TokenAddress   string `json:"token_address" validate:"required,eth_addr_hex"`
		AccountAddress string `json:"account_address" validate:"required,eth_addr_hex"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	token := NewERC20(d.Client, common.HexToAddress(p.TokenAddress))
	balance, err := token.BalanceOf(ctx, common.HexToAddress(p.AccountAddress))
	if err != nil {
		return nil, err
	}
	return map[string]any{"balance": balance.String()}, nil
}

func (d *HandlerDeps) handleERC20Allowance(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		TokenAddress string `json:"token_address" validate:"required,eth_addr_hex"`
		Owner        string `json:"owner" validate:"required,eth_addr_hex"`
		Spender      string `json:"spender" validate:"required,eth_addr_hex"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	token := NewERC20(d.Client, common.HexToAddress(p.TokenAddress))
	allowance, err := token.Allowance(ctx, common.HexToAddress(p.Owner), common.HexToAddress(p.Spender))
	if err != nil {
		return nil, err
	}
	return map[string]any{"allowance": allowance.String()}, nil
}

func (d *HandlerDeps) handleERC20Transfer(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		TokenAddress string      `json:"token_address" validate:"required,eth_addr_hex"`
		To           string      `json:"to" validate:"required,eth_addr_hex"`
		AmountWei    bigIntParam `json:"amount_wei" validate:"required"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	sender, err := d.requireSender()
	if err != nil {
		return nil, err
	}

	tokenAddr := common.HexToAddress(p.TokenAddress)
	data, err := NewERC20(d.Client, tokenAddr).TransferData(common.HexToAddress(p.To), p.AmountWei.Int)
	if err != nil {
		return nil, err
	}

	txHash, err := sender.Send(ctx, tokenAddr, data, nil)
	if err != nil {
		return nil, err
	}
	d.Metrics.TxSubmitted.Inc()
	return map[string]any{"tx_hash": txHash.Hex()}, nil
}

func (d *HandlerDeps) handleERC20Approve(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		TokenAddress string      `json:"token_address" validate:"required,eth_addr_hex"`
		Spender      string      `json:"spender" validate:"required,eth_addr_hex"`
		AmountWei    bigIntParam `json:"amount_wei" validate:"required"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	sender, err := d.requireSender()
	if err != nil {
		return nil, err
	}

	tokenAddr := common.HexToAddress(p.TokenAddress)
	data, err := NewERC20(d.Client, tokenAddr).ApproveData(common.HexToAddress(p.Spender), p.AmountWei.Int)
	if err != nil {
		return nil, err
	}

	txHash, err := sender.Send(ctx, tokenAddr, data, nil)
	if err != nil {
		return nil, err
	}
	d.Metrics.TxSubmitted.Inc()
	return map[string]any{"tx_hash": txHash.Hex()}, nil
}

func (d *HandlerDeps) handlePermitSign(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		TokenName    string      `json:"token_name" validate:"required"`
		TokenVersion string      `json:"token_version"`
		TokenAddress string      `json:"token_address" validate:"required,eth_addr_hex"`
		Owner        string      `json:"owner" validate:"required,eth_addr_hex"`
		Spender      string      `json:"spender" validate:"required,eth_addr_hex"`
		Value        bigIntParam `json:"value" validate:"required"`
		Nonce        bigIntParam `json:"nonce"`
		Deadline     bigIntParam `json:"deadline" validate:"required"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.TokenVersion == "" {
		p.TokenVersion = "1"
	}
	if p.Nonce.Int == nil {
		p.Nonce.Int = new(big.Int)
	}

	if d.Signer == nil {
		return nil, rpcErrorf("no private key configured for signing")
	}

	signature, err := SignPermit(d.Signer, p.TokenName, p.TokenVersion, d.Config.ChainID, common.HexToAddress(p.TokenAddress), PermitData{
		Owner:    common.HexToAddress(p.Owner),
		Spender:  common.HexToAddress(p.Spender),
		Value:    p.Value.Int,
		Nonce:    p.Nonce.Int,
		Deadline: p.Deadline.Int,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"v": signature.V(),
		"r": signature.R(),
		"s": signature.S(),
	}, nil
}

func (d *HandlerDeps) handleDefiQuote(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		RouterAddress string      `json:"router_address" validate:"required,eth_addr_hex"`
		TokenIn       string      `json:"token_in" validate:"required,eth_addr_hex"`
		TokenOut      string      `json:"token_out" validate:"required,eth_addr_hex"`
		AmountInWei   bigIntParam `json:"amount_in_wei" validate:"required"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	router := NewUniV2Router(d.Client, common.HexToAddress(p.RouterAddress))
	path := []common.Address{common.HexToAddress(p.TokenIn), common.HexToAddress(p.TokenOut)}
	amounts, err := router.GetAmountsOut(ctx, p.AmountInWei.Int, path)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(amounts))
	for i, a := range amounts {
		out[i] = a.String()
	}
	return map[string]any{"amounts": out}, nil
}

func (d *HandlerDeps) handleDefiSwap(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		RouterAddress   string      `json:"router_address" validate:"required,eth_addr_hex"`
		TokenIn         string      `json:"token_in" validate:"required,eth_addr_hex"`
		TokenOut        string      `json:"token_out" validate:"required,eth_addr_hex"`
		AmountInWei     bigIntParam `json:"amount_in_wei" validate:"required"`
		AmountOutMinWei bigIntParam `json:"amount_out_min_wei" validate:"required"`
		To              string      `json:"to" validate:"required,eth_addr_hex"`
		Deadline        bigIntParam `json:"deadline"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	sender, err := d.requireSender()
	if err != nil {
		return nil, err
	}

	deadline := p.Deadline.Int
	if deadline == nil || deadline.Sign() == 0 {
		deadline = big.NewInt(time.Now().Add(defaultSwapDeadline).Unix())
	}

	routerAddr := common.HexToAddress(p.RouterAddress)
	path := []common.Address{common.HexToAddress(p.TokenIn), common.HexToAddress(p.TokenOut)}
	data, err := NewUniV2Router(d.Client, routerAddr).SwapData(
		p.AmountInWei.Int, p.AmountOutMinWei.Int, path, common.HexToAddress(p.To), deadline)
	if err != nil {
		return nil, err
	}

	txHash, err := sender.Send(ctx, routerAddr, data, nil)
	if err != nil {
		return nil, err
	}
	d.Metrics.TxSubmitted.Inc()
	return map[string]any{"tx_hash": txHash.Hex()}, nil
}

func (d *HandlerDeps) handleMulticallAggregate(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		MulticallAddress string `json:"multicall_address" validate:"required,eth_addr_hex"`
		Calls            []struct {
			Target string `json:"target" validate:"required,eth_addr_hex"`
			Data   string `json:"data" validate:"required"`
		} `json:"calls" validate:"required,min=1,dive"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	calls := make([]MulticallCall, len(p.Calls))
	for i, c := range p.Calls {
		data, err := hexutil.Decode(c.Data)
		if err != nil {
			return nil, rpcErrorf("call data must be a 0x-prefixed hex string")
		}
		calls[i] = MulticallCall{Target: common.HexToAddress(c.Target), CallData: data}
	}

	mc := NewMulticall2(d.Client, common.HexToAddress(p.MulticallAddress))
	block, results, err := mc.Aggregate(ctx, calls)
	if err != nil {
		return nil, err
	}

	encoded := make([]string, len(results))
	for i, r := range results {
		encoded[i] = hexutil.Encode(r)
	}
	return map[string]any{"blockNumber": block.Uint64(), "returnData": encoded}, nil
}

func (d *HandlerDeps) handleRawRPCCall(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Method string `json:"method" validate:"required"`
		Params []any  `json:"params"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	if !d.Config.RPCMethodAllowed(p.Method) {
		return nil, rpcErrorf("RPC method not allowed: %s", p.Method)
	}

	result, err := d.Raw.Call(ctx, p.Method, p.Params)
	if err != nil {
		return nil, err
	}
	return map[string]any{"method": p.Method, "result": result}, nil
}

func (d *HandlerDeps) handlePriceUSD(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		CoingeckoID string `json:"coingecko_id" validate:"required"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	price, err := d.Prices.USDPrice(ctx, p.CoingeckoID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"coingecko_id": p.CoingeckoID, "usd": price}, nil
}

func (d *HandlerDeps) handlePriceDex(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Query string `json:"query" validate:"required"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	pairs, err := d.Prices.SearchPairs(ctx, p.Query)
	if err != nil {
		return nil, err
	}
	return map[string]any{"pairs": pairs}, nil
}

func (d *HandlerDeps) handleNFTOwnerOf(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		TokenAddress string      `json:"token_address" validate:"required,eth_addr_hex"`
		TokenID      bigIntParam `json:"token_id" validate:"required"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	nft := NewERC721(d.Client, common.HexToAddress(p.TokenAddress))
	owner, err := nft.OwnerOf(ctx, p.TokenID.Int)
	if err != nil {
		return nil, err
	}
	return map[string]any{"owner": owner.Hex()}, nil
}

func (d *HandlerDeps) handleNFTBalance(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		TokenAddress string `json:"token_address" validate:"required,eth_addr_hex"`
		Owner        string `json:"owner" validate:"required,eth_addr_hex"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	nft := NewERC721(d.Client, common.HexToAddress(p.TokenAddress))
	balance, err := nft.BalanceOf(ctx, common.HexToAddress(p.Owner))
	if err != nil {
		return nil, err
	}
	return map[string]any{"balance": balance.String()}, nil
}

func (d *HandlerDeps) handleERC1155Balance(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		TokenAddress string      `json:"token_address" validate:"required,eth_addr_hex"`
		Account      string      `json:"account" validate:"required,eth_addr_hex"`
		ID           bigIntParam `json:"id" validate:"required"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	token := NewERC1155(d.Client, common.HexToAddress(p.TokenAddress))
	balance, err := token.BalanceOf(ctx, common.HexToAddress(p.Account), p.ID.Int)
	if err != nil {
		return nil, err
	}
	return map[string]any{"balance": balance.String()}, nil
}

func (d *HandlerDeps) handleWalletSignMessage(_ context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Message string `json:"message" validate:"required"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	if d.Signer == nil {
		return nil, rpcErrorf("no private key configured for signing")
	}

	signature, err := d.Signer.SignText([]byte(p.Message))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"address":   d.Signer.Address().Hex(),
		"signature": signature.String(),
	}, nil
}

func (d *HandlerDeps) handleTxWait(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		TxHash          string `json:"tx_hash" validate:"required"`
		TimeoutSec      uint   `json:"timeout_sec"`
		PollIntervalSec uint   `json:"poll_interval_sec"`
		Confirmations   uint64 `json:"confirmations"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	txHash := common.HexToHash(p.TxHash)
	receipt, err := d.Tracker.AwaitReceipt(ctx, txHash,
		time.Duration(p.TimeoutSec)*time.Second,
		time.Duration(p.PollIntervalSec)*time.Second)
	if err != nil {
		return nil, err
	}

	if p.Confirmations > 1 {
		// Bounded by the request context; the tracker itself has no
		// timeout on confirmation waits.
		receipt, err = d.Tracker.AwaitConfirmations(ctx, receipt, p.Confirmations, time.Duration(p.PollIntervalSec)*time.Second)
		if err != nil {
			return nil, err
		}
	}

	return map[string]any{
		"tx_hash":     txHash.Hex(),
		"status":      receipt.Status,
		"blockNumber": receipt.BlockNumber.Uint64(),
	}, nil
}

func (d *HandlerDeps) handleNonceReset(_ context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Address string `json:"address" validate:"required,eth_addr_hex"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	d.Nonces.Reset(common.HexToAddress(p.Address))
	return map[string]any{"ok": true}, nil
}
