package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

const (
	priceFetchAttempts    = 3
	priceFetchBackoffBase = time.Second
	priceFetchBackoffCap  = 5 * time.Second
)

// PriceClient fetches USD quotes from the public CoinGecko and Dexscreener
// APIs. Transient failures are retried with bounded exponential backoff.
type PriceClient struct {
	coingeckoBase   string
	dexscreenerBase string
	httpClient      *http.Client
}

func NewPriceClient(coingeckoBase, dexscreenerBase string, timeout time.Duration) *PriceClient {
	return &PriceClient{
		coingeckoBase:   strings.TrimRight(coingeckoBase, "/"),
		dexscreenerBase: strings.TrimRight(dexscreenerBase, "/"),
		httpClient:      &http.Client{Timeout: timeout},
	}
}

// USDPrice returns the CoinGecko simple-price USD quote for a coin ID.
func (p *PriceClient) USDPrice(ctx context.Context, coingeckoID string) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("ids", coingeckoID)
	query.Set("vs_currencies", "usd")

	body, err := p.getJSON(ctx, p.coingeckoBase+"/simple/price?"+query.Encode())
	if err != nil {
		return decimal.Zero, err
	}

	var result map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to decode price response")
	}

	quote, ok := result[coingeckoID]["usd"]
	if !ok {
		return decimal.Zero, errors.Errorf("no USD price for %q", coingeckoID)
	}
	return quote, nil
}

// DexPair is one trading pair from a Dexscreener search.
type DexPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	PriceUSD    string `json:"priceUsd"`
	BaseToken   struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
}

// SearchPairs queries Dexscreener for trading pairs matching the query.
func (p *PriceClient) SearchPairs(ctx context.Context, q string) ([]DexPair, error) {
	query := url.Values{}
	query.Set("q", q)

	body, err := p.getJSON(ctx, p.dexscreenerBase+"/search?"+query.Encode())
	if err != nil {
		return nil, err
	}

	var result struct {
		Pairs []DexPair `json:"pairs"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrap(err, "failed to decode pair search response")
	}
	return result.Pairs, nil
}

func (p *PriceClient) getJSON(ctx context.Context, fullURL string) ([]byte, error) {
	backoff := retry.WithMaxRetries(priceFetchAttempts-1, retry.NewExponential(priceFetchBackoffBase))
	backoff = retry.WithCappedDuration(priceFetchBackoffCap, backoff)

	var body []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return err
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return retry.RetryableError(fmt.Errorf("price feed returned status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("price feed returned status %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "price feed request failed")
	}
	return body, nil
}
