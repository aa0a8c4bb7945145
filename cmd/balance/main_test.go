package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rovshanmuradov/tokenbalance/internal/balance"
	"github.com/rovshanmuradov/tokenbalance/internal/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestReportInvalidWalletsSkipNetwork(t *testing.T) {
	cfg := reportConfig()
	stack, err := balance.NewFromConfig(cfg, zaptest.NewLogger(t), prometheus.NewRegistry())
	require.NoError(t, err)
	defer stack.Close()

	var out bytes.Buffer
	require.NoError(t, report(context.Background(), stack.Service, cfg, []string{"nope", "also-not-a-wallet"}, &out))

	assert.Contains(t, out.String(), "WALLET")
	assert.Contains(t, out.String(), "0.00 COIN")
	assert.Contains(t, out.String(), "invalid address")
}

func TestReportMarksUnavailableBalance(t *testing.T) {
	cfg := reportConfig()
	stack, err := balance.NewFromConfig(cfg, zaptest.NewLogger(t), prometheus.NewRegistry())
	require.NoError(t, err)
	defer stack.Close()

	// the only endpoint refuses connections, so the lookup falls back to zero
	var out bytes.Buffer
	require.NoError(t, report(context.Background(), stack.Service, cfg,
		[]string{"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"}, &out))

	assert.Contains(t, out.String(), "0.00 COIN")
	assert.Contains(t, out.String(), "unavailable")
	assert.NotContains(t, out.String(), "rpc")
}

func TestSource(t *testing.T) {
	wallet := "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

	assert.Equal(t, "invalid address", source("x", balance.Result{}))
	assert.Equal(t, "rpc", source(wallet, balance.Result{Balance: decimal.NewFromInt(1)}))
	assert.Equal(t, "cache", source(wallet, balance.Result{FromCache: true}))
	assert.Equal(t, "stale cache", source(wallet, balance.Result{FromCache: true, Stale: true}))
	assert.Equal(t, "unavailable", source(wallet, balance.Result{Fallback: true}))
}

func reportConfig() *config.Config {
	return &config.Config{
		RPCList:                   []string{"http://127.0.0.1:1"},
		TokenMints:                []string{"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
		TokenDecimals:             2,
		TokenSymbol:               "COIN",
		RequestTimeoutMs:          100,
		BalanceRetries:            1,
		LookupRetries:             1,
		BackoffInitialMs:          1,
		BackoffMaxMs:              1,
		RateLimitBackoffInitialMs: 1,
		RateLimitBackoffMaxMs:     1,
		CacheTTLSec:               60,
		CacheMaxEntries:           10,
		StaleRetentionSec:         60,
		EndpointResetSec:          60,
	}
}
