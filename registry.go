package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

// JSON-RPC 2.0 error codes used on the wire.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeHandlerError   = -32000
)

const jsonrpcVersion = "2.0"

// rpcRequest is one inbound JSON-RPC 2.0 request.
type rpcRequest struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// rpcResponse is one outbound JSON-RPC 2.0 response or notification.
type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  any             `json:"result,omitempty"`
	Params  any             `json:"params,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is the wire error object. It satisfies the error interface so
// handlers can return it directly when they want a specific code or message
// exposed; any other error is mapped to a generic handler error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return e.Message
}

// rpcErrorf builds a handler-level (-32000) error with a client-safe message.
func rpcErrorf(format string, args ...any) *rpcError {
	return &rpcError{Code: codeHandlerError, Message: fmt.Sprintf(format, args...)}
}

func errParseError() *rpcError {
	return &rpcError{Code: codeParseError, Message: "Parse error"}
}

func errMethodNotFound(method string) *rpcError {
	return &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("Method not found: %s", method)}
}

func errMethodDisabled() *rpcError {
	return &rpcError{Code: codeMethodNotFound, Message: "Method disabled"}
}

func newSuccessResponse(id json.RawMessage, result any) rpcResponse {
	return rpcResponse{Jsonrpc: jsonrpcVersion, ID: id, Result: result}
}

func newErrorResponse(id json.RawMessage, rpcErr *rpcError) rpcResponse {
	return rpcResponse{Jsonrpc: jsonrpcVersion, ID: id, Error: rpcErr}
}

func newNotification(method string, params any) rpcResponse {
	return rpcResponse{Jsonrpc: jsonrpcVersion, Method: method, Params: params}
}

// MethodHandler processes the params of one RPC request and returns a result
// value to be serialized into the response.
type MethodHandler func(ctx context.Context, params json.RawMessage) (any, error)

// MethodRegistry maps method names to handlers. Registration happens once at
// startup; dispatch is read-only after that, so no locking is needed.
type MethodRegistry struct {
	handlers map[string]MethodHandler
	logger   Logger
}

func NewMethodRegistry(logger Logger) *MethodRegistry {
	return &MethodRegistry{
		handlers: make(map[string]MethodHandler),
		logger:   logger.NewSystem("rpc-registry"),
	}
}

// Register binds a handler to a method name.
func (r *MethodRegistry) Register(method string, handler MethodHandler) {
	if method == "" {
		panic("RPC method name cannot be empty")
	}
	if handler == nil {
		panic(fmt.Sprintf("RPC handler cannot be nil for method %s", method))
	}
	r.handlers[method] = handler
}

// Has reports whether a handler is registered for the method.
func (r *MethodRegistry) Has(method string) bool {
	_, ok := r.handlers[method]
	return ok
}

// Dispatch invokes the handler registered for the method. Handler failures
// come back as *rpcError: an *rpcError returned by the handler passes through
// unchanged, anything else is wrapped into a generic handler error carrying
// the diagnostic text.
func (r *MethodRegistry) Dispatch(ctx context.Context, method string, params json.RawMessage) (any, *rpcError) {
	handler, ok := r.handlers[method]
	if !ok {
		return nil, errMethodNotFound(method)
	}

	result, err := handler(ctx, params)
	if err != nil {
		if rpcErr, ok := err.(*rpcError); ok {
			return nil, rpcErr
		}
		r.logger.Debug("handler failed", "method", method, "error", err)
		return nil, rpcErrorf("%s", err.Error())
	}
	return result, nil
}

// getValidator builds the param validator with gateway-specific rules.
func getValidator() *validator.Validate {
	validate := validator.New()

	if err := validate.RegisterValidation("bigint", func(fl validator.FieldLevel) bool {
		n := new(big.Int)
		_, ok := n.SetString(fmt.Sprint(fl.Field()), 10)
		return ok
	}); err != nil {
		panic(fmt.Sprintf("failed to register bigint validation: %v", err))
	}

	if err := validate.RegisterValidation("eth_addr_hex", func(fl validator.FieldLevel) bool {
		return common.IsHexAddress(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("failed to register eth_addr_hex validation: %v", err))
	}
	return validate
}

// decodeParams unmarshals and validates a handler's param struct.
func decodeParams(params json.RawMessage, dst any) error {
	if len(params) == 0 {
		params = []byte("{}")
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return rpcErrorf("invalid params: %s", err.Error())
	}
	if err := getValidator().Struct(dst); err != nil {
		return rpcErrorf("invalid params: %s", err.Error())
	}
	return nil
}
