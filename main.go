package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/evmgate/evmgate/pkg/sign"
)

func main() {
	logger := NewLoggerIPFS("root")

	config, err := LoadConfig()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}
	if config.LogFormat == "logfmt" {
		logger = NewLoggerLogfmt("root", zapcore.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	client, err := DialChain(dialCtx, config.RPCHTTPURL, config.RequestTimeout(), logger)
	cancel()
	if err != nil {
		logger.Fatal("failed to connect to upstream RPC", "error", err)
	}
	defer client.Close()

	if err := AssertChainID(ctx, client, config.ChainID); err != nil {
		logger.Fatal("chain verification failed", "error", err)
	}
	logger.Info("connected to chain", "chainID", config.ChainID, "rpcURL", config.RPCHTTPURL)

	var signer *sign.EthereumSigner
	var sender *TxSender
	nonces := NewNonceAllocator(client)
	gas, err := NewGasStrategy(client, config.LegacyGasPriceGwei, config.PriorityFeeGwei, config.MaxFeeMultiplier)
	if err != nil {
		logger.Fatal("failed to initialize gas strategy", "error", err)
	}

	if config.PrivateKey != "" {
		signer, err = sign.NewEthereumSigner(config.PrivateKey)
		if err != nil {
			logger.Fatal("failed to initialize signer", "error", err)
		}
		sender = NewTxSender(client, signer, nonces, gas, config.ChainID, logger)
		logger.Info("gateway signer initialized", "address", signer.Address().Hex())
	} else {
		logger.Warn("no private key configured, write methods disabled")
	}

	raw, err := NewRawRPC(ctx, config.RPCHTTPURL)
	if err != nil {
		logger.Fatal("failed to initialize raw RPC client", "error", err)
	}
	defer raw.Close()

	metrics := NewMetrics()
	tracker := NewTxTracker(client, logger)
	prices := NewPriceClient(config.CoingeckoBaseURL, config.DexscreenerBaseURL, config.RequestTimeout())

	registry := NewMethodRegistry(logger)
	RegisterHandlers(registry, &HandlerDeps{
		Config:  config,
		Client:  client,
		Signer:  signer,
		Sender:  sender,
		Nonces:  nonces,
		Tracker: tracker,
		Raw:     raw,
		Prices:  prices,
		Metrics: metrics,
		Logger:  logger,
	})

	hub := NewSubscriberHub()
	broadcaster := NewBlockBroadcaster(client, hub, metrics, config.BlockPollInterval(), logger)
	auth := NewAuthenticator(config.APIToken, config.AuthJWTSecret)

	server := NewGatewayServer(config, registry, hub, auth, broadcaster, metrics, logger)
	if err := server.Run(ctx); err != nil {
		logger.Fatal("gateway server failure", "error", err)
	}
	logger.Info("shutdown complete")
}
