// internal/balance/bootstrap.go
package balance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rovshanmuradov/tokenbalance/internal/blockchain/solbc"
	"github.com/rovshanmuradov/tokenbalance/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/tokenbalance/internal/config"
	"github.com/rovshanmuradov/tokenbalance/internal/utils/clock"
	"github.com/rovshanmuradov/tokenbalance/internal/utils/metrics"
	"go.uber.org/zap"
)

// Stack is a fully wired balance service and the parts it owns.
type Stack struct {
	Service   *Service
	Pool      *rpc.Pool
	Cache     *Cache
	Transport *rpc.HTTPTransport
	Metrics   *metrics.Collector
}

// Close releases idle RPC connections.
func (s *Stack) Close() {
	s.Transport.Close()
}

// NewFromConfig builds pool, transport, client, resolver, cache and service from cfg.
// Metrics are registered in reg; a nil reg gets a private registry.
func NewFromConfig(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*Stack, error) {
	mints, err := cfg.Mints()
	if err != nil {
		return nil, err
	}

	clk := clock.Real()
	collector := metrics.NewCollector(reg)

	pool, err := rpc.NewPool(cfg.RPCList, clk, logger,
		rpc.WithResetWindow(cfg.EndpointResetWindow()),
		rpc.WithPoolMetrics(collector))
	if err != nil {
		return nil, err
	}

	transport := rpc.NewHTTPTransport(logger,
		rpc.WithTimeout(cfg.RequestTimeout()),
		rpc.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	client := rpc.NewClient(pool, transport, clk, logger, rpc.WithClientMetrics(collector))

	balancePolicy, lookupPolicy := retryPolicies(cfg)
	resolver := solbc.NewTokenAccountResolver(client, logger,
		solbc.WithBalancePolicy(balancePolicy),
		solbc.WithLookupPolicy(lookupPolicy))

	cache, err := NewCache(cfg.CacheMaxEntries, cfg.CacheTTL(), clk, logger, collector)
	if err != nil {
		return nil, err
	}

	service := NewService(resolver, cache, ServiceConfig{
		Mints:          mints,
		StaleRetention: cfg.StaleRetention(),
	}, clk, logger, collector)

	logger.Info("Balance service initialized",
		zap.Int("endpoints", pool.Len()),
		zap.Int("mints", len(mints)),
		zap.Duration("cache_ttl", cfg.CacheTTL()),
		zap.Float64("rate_limit_rps", cfg.RateLimitRPS))

	return &Stack{
		Service:   service,
		Pool:      pool,
		Cache:     cache,
		Transport: transport,
		Metrics:   collector,
	}, nil
}

func retryPolicies(cfg *config.Config) (balance, lookup rpc.RetryPolicy) {
	base := rpc.RetryPolicy{
		InitialInterval:          time.Duration(cfg.BackoffInitialMs) * time.Millisecond,
		MaxInterval:              time.Duration(cfg.BackoffMaxMs) * time.Millisecond,
		RateLimitInitialInterval: time.Duration(cfg.RateLimitBackoffInitialMs) * time.Millisecond,
		RateLimitMaxInterval:     time.Duration(cfg.RateLimitBackoffMaxMs) * time.Millisecond,
	}
	return base.WithAttempts(cfg.BalanceRetries), base.WithAttempts(cfg.LookupRetries)
}
