package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds the full environment-sourced configuration of the gateway.
type Config struct {
	RPCHTTPURL        string `env:"EVMGATE_RPC_HTTP_URL" env-required:"true"`
	ChainID           uint64 `env:"EVMGATE_CHAIN_ID" env-required:"true"`
	RequestTimeoutSec uint   `env:"EVMGATE_REQUEST_TIMEOUT_SEC" env-default:"30"`

	ServerHost    string `env:"EVMGATE_SERVER_HOST" env-default:"127.0.0.1"`
	ServerPort    uint16 `env:"EVMGATE_SERVER_PORT" env-default:"8765"`
	APIToken      string `env:"EVMGATE_SERVER_API_TOKEN"`
	AuthJWTSecret string `env:"EVMGATE_AUTH_JWT_SECRET"`

	// EnabledMethods gates which RPC methods the gateway serves ("*" = all).
	EnabledMethods []string `env:"EVMGATE_SERVER_ENABLE_METHODS" env-default:"*"`
	// RPCAllowMethods gates which upstream methods rpc.call may pass through.
	RPCAllowMethods []string `env:"EVMGATE_SERVER_RPC_ALLOW" env-default:"eth_blockNumber,eth_getTransactionByHash,eth_getBalance,eth_getBlockByNumber,eth_getBlockByHash,eth_call"`

	PrivateKey string `env:"EVMGATE_PRIVATE_KEY"`

	LegacyGasPriceGwei string `env:"EVMGATE_GAS_PRICE_GWEI"`
	PriorityFeeGwei    string `env:"EVMGATE_PRIORITY_FEE_GWEI" env-default:"1.0"`
	MaxFeeMultiplier   string `env:"EVMGATE_MAX_FEE_MULTIPLIER" env-default:"1.2"`

	BlockPollSec uint `env:"EVMGATE_BLOCK_POLL_SEC" env-default:"5"`

	CoingeckoBaseURL   string `env:"EVMGATE_COINGECKO_BASE_URL" env-default:"https://api.coingecko.com/api/v3"`
	DexscreenerBaseURL string `env:"EVMGATE_DEXSCREENER_BASE_URL" env-default:"https://api.dexscreener.com/latest/dex"`

	MetricsEnabled bool   `env:"EVMGATE_METRICS_ENABLED" env-default:"true"`
	LogFormat      string `env:"EVMGATE_LOG_FORMAT" env-default:"console"`
}

// LoadConfig reads the configuration from the environment.
// A .env file in the working directory is loaded first if present.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate performs the startup checks that must fail fast.
func (c Config) Validate() error {
	if c.RPCHTTPURL == "" {
		return fmt.Errorf("upstream RPC URL is required")
	}
	if c.ChainID == 0 {
		return fmt.Errorf("chain ID is required")
	}
	if c.PrivateKey != "" {
		if _, err := crypto.HexToECDSA(strings.TrimPrefix(c.PrivateKey, "0x")); err != nil {
			return fmt.Errorf("invalid private key: %w", err)
		}
	}
	return nil
}

// RequestTimeout returns the per-request upstream timeout as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// BlockPollInterval returns the broadcaster tick interval.
func (c Config) BlockPollInterval() time.Duration {
	return time.Duration(c.BlockPollSec) * time.Second
}

// ListenAddr returns the host:port pair the gateway binds to.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// MethodEnabled reports whether a gateway method passes the allow-list.
func (c Config) MethodEnabled(method string) bool {
	if len(c.EnabledMethods) == 0 {
		return true
	}
	for _, m := range c.EnabledMethods {
		m = strings.TrimSpace(m)
		if m == "*" || m == method {
			return true
		}
	}
	return false
}

// RPCMethodAllowed reports whether an upstream method may be passed through
// by the rpc.call handler.
func (c Config) RPCMethodAllowed(method string) bool {
	for _, m := range c.RPCAllowMethods {
		if strings.TrimSpace(m) == method {
			return true
		}
	}
	return false
}
