package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayFixture struct {
	server      *httptest.Server
	gateway     *GatewayServer
	broadcaster *BlockBroadcaster
	cancel      context.CancelFunc
}

func newGatewayFixture(t *testing.T, cfg Config, client Ethereum) *gatewayFixture {
	t.Helper()
	logger := NewLoggerIPFS("test")
	metrics := NewMetricsWithRegistry(prometheus.NewRegistry())
	hub := NewSubscriberHub()
	broadcaster := NewBlockBroadcaster(client, hub, metrics, time.Hour, logger)
	auth := NewAuthenticator(cfg.APIToken, cfg.AuthJWTSecret)

	registry := NewMethodRegistry(logger)
	RegisterHandlers(registry, &HandlerDeps{
		Config:  cfg,
		Client:  client,
		Tracker: NewTxTracker(client, logger),
		Nonces:  NewNonceAllocator(client),
		Metrics: metrics,
		Logger:  logger,
	})

	gw := NewGatewayServer(cfg, registry, hub, auth, broadcaster, metrics, logger)

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gw.handleConnection(ctx, w, r)
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &gatewayFixture{server: srv, gateway: gw, broadcaster: broadcaster, cancel: cancel}
}

func (f *gatewayFixture) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, request string) rpcResponse {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(request)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func testConfig() Config {
	return Config{
		ChainID:           1,
		RequestTimeoutSec: 5,
		EnabledMethods:    []string{"*"},
	}
}

func TestGatewayHealth(t *testing.T) {
	client := &MockEthereum{
		BlockNumberFunc: func(_ context.Context) (uint64, error) {
			return 777, nil
		},
	}
	fixture := newGatewayFixture(t, testConfig(), client)
	conn := fixture.dial(t, nil)

	resp := roundTrip(t, conn, `{"jsonrpc":"2.0","id":1,"method":"health"}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, "2.0", resp.Jsonrpc)
	assert.Equal(t, json.RawMessage("1"), resp.ID)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", result["status"])
	assert.Equal(t, float64(777), result["block"])
}

func TestGatewayMethodNotFound(t *testing.T) {
	fixture := newGatewayFixture(t, testConfig(), &MockEthereum{})
	conn := fixture.dial(t, nil)

	resp := roundTrip(t, conn, `{"jsonrpc":"2.0","id":2,"method":"no.such.method"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "no.such.method")
}

func TestGatewayMethodDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.EnabledMethods = []string{"health"}
	fixture := newGatewayFixture(t, cfg, &MockEthereum{})
	conn := fixture.dial(t, nil)

	resp := roundTrip(t, conn, `{"jsonrpc":"2.0","id":3,"method":"erc20.balance","params":{}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "Method disabled", resp.Error.Message)

	resp = roundTrip(t, conn, `{"jsonrpc":"2.0","id":4,"method":"health"}`)
	assert.Nil(t, resp.Error)
}

func TestGatewayParseError(t *testing.T) {
	fixture := newGatewayFixture(t, testConfig(), &MockEthereum{})
	conn := fixture.dial(t, nil)

	// A frame with an ID but no method gets a parse error back.
	resp := roundTrip(t, conn, `{"id":5,"bogus":true}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeParseError, resp.Error.Code)
	assert.Equal(t, json.RawMessage("5"), resp.ID)
}

func TestGatewayAuthRejection(t *testing.T) {
	cfg := testConfig()
	cfg.APIToken = "secret"
	fixture := newGatewayFixture(t, cfg, &MockEthereum{})

	t.Run("wrong token closed with 4401", func(t *testing.T) {
		header := http.Header{"Authorization": []string{"Bearer wrong"}}
		conn := fixture.dial(t, header)

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := conn.ReadMessage()
		require.Error(t, err)
		closeErr, ok := err.(*websocket.CloseError)
		require.True(t, ok, "expected a close frame, got %v", err)
		assert.Equal(t, closeCodeUnauthorized, closeErr.Code)
		assert.Equal(t, "Unauthorized", closeErr.Text)
	})

	t.Run("correct token serves requests", func(t *testing.T) {
		header := http.Header{"Authorization": []string{"Bearer secret"}}
		conn := fixture.dial(t, header)
		resp := roundTrip(t, conn, `{"jsonrpc":"2.0","id":1,"method":"health"}`)
		assert.Nil(t, resp.Error)
	})
}

func TestGatewaySubscription(t *testing.T) {
	head := uint64(200)
	client := &MockEthereum{
		BlockNumberFunc: func(_ context.Context) (uint64, error) {
			return head, nil
		},
	}
	fixture := newGatewayFixture(t, testConfig(), client)
	conn := fixture.dial(t, nil)

	resp := roundTrip(t, conn, `{"jsonrpc":"2.0","id":1,"method":"events.subscribe"}`)
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, result["ok"])

	fixture.broadcaster.poll(context.Background()) // baseline
	head = 201
	fixture.broadcaster.poll(context.Background())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var notif struct {
		Method string     `json:"method"`
		Params BlockEvent `json:"params"`
	}
	require.NoError(t, json.Unmarshal(data, &notif))
	assert.Equal(t, "events.block", notif.Method)
	assert.Equal(t, uint64(201), notif.Params.Number)

	// After unsubscribing no further events arrive.
	resp = roundTrip(t, conn, `{"jsonrpc":"2.0","id":2,"method":"events.unsubscribe"}`)
	require.Nil(t, resp.Error)

	head = 202
	fixture.broadcaster.poll(context.Background())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestGatewayWriteMethodWithoutKey(t *testing.T) {
	fixture := newGatewayFixture(t, testConfig(), &MockEthereum{})
	conn := fixture.dial(t, nil)

	req := `{"jsonrpc":"2.0","id":1,"method":"erc20.transfer","params":{` +
		`"token_address":"0x1111111111111111111111111111111111111111",` +
		`"to":"0x2222222222222222222222222222222222222222",` +
		`"amount_wei":"1000"}}`
	resp := roundTrip(t, conn, req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeHandlerError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "no private key configured")
}
