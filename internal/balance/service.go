// internal/balance/service.go
package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/rovshanmuradov/tokenbalance/internal/utils/clock"
	"github.com/rovshanmuradov/tokenbalance/internal/utils/logger"
	"github.com/rovshanmuradov/tokenbalance/internal/utils/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	minAddressLen = 32
	maxAddressLen = 55

	DefaultPurgeInterval = time.Minute
)

var (
	// ErrInvalidAddress is returned by ValidateAddress for malformed wallets.
	ErrInvalidAddress = errors.New("invalid wallet address")

	errNegativeBalance = errors.New("resolver returned a negative balance")
)

// Resolver sums a wallet's balance across token mints.
type Resolver interface {
	BalanceAcross(ctx context.Context, wallet string, mints []solana.PublicKey) (decimal.Decimal, error)
}

// Result is the answer to a balance lookup. Balance is never negative.
// Fallback marks a zero reported because no balance could be obtained.
type Result struct {
	Balance   decimal.Decimal
	FromCache bool
	Stale     bool
	Fallback  bool
	AsOf      time.Time
}

// ServiceConfig holds the lookup parameters of a Service.
type ServiceConfig struct {
	// Mints lists the canonical mint first, legacy alternates after.
	Mints          []solana.PublicKey
	StaleRetention time.Duration
	PurgeInterval  time.Duration
}

// Service answers "how many tokens does this wallet hold" and never fails the caller.
type Service struct {
	resolver Resolver
	cache    *Cache
	config   ServiceConfig
	clock    clock.Clock
	group    singleflight.Group
	logger   *logger.Logger
	metrics  *metrics.Collector
}

// NewService wires a resolver and a cache into a Service.
func NewService(resolver Resolver, cache *Cache, cfg ServiceConfig, clk clock.Clock, log *zap.Logger, m *metrics.Collector) *Service {
	if cfg.StaleRetention <= 0 {
		cfg.StaleRetention = DefaultStaleRetention
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = DefaultPurgeInterval
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		resolver: resolver,
		cache:    cache,
		config:   cfg,
		clock:    clk,
		logger:   logger.Wrap(log.Named("balance-service")),
		metrics:  m,
	}
}

// ValidateAddress checks the wallet looks like a base58 Solana address.
func ValidateAddress(wallet string) error {
	if len(wallet) < minAddressLen || len(wallet) > maxAddressLen {
		return fmt.Errorf("%w: length %d", ErrInvalidAddress, len(wallet))
	}
	if _, err := base58.Decode(wallet); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return nil
}

// GetTokenBalance returns the wallet's balance in whole tokens.
func (s *Service) GetTokenBalance(ctx context.Context, wallet string) float64 {
	f, _ := s.Lookup(ctx, wallet).Balance.Float64()
	return f
}

// Lookup resolves the wallet's balance: fresh cache, then RPC, then the last
// known value, then zero.
func (s *Service) Lookup(ctx context.Context, wallet string) Result {
	if err := ValidateAddress(wallet); err != nil {
		s.metrics.RecordBalanceLookup(metrics.SourceInvalid)
		s.logger.Debug("Rejected wallet address", zap.String("wallet", wallet), zap.Error(err))
		return Result{Balance: decimal.Zero, AsOf: s.clock.Now()}
	}

	if entry, ok := s.cache.fresh(wallet); ok {
		s.metrics.RecordBalanceLookup(metrics.SourceCache)
		return Result{Balance: entry.Balance, FromCache: true, AsOf: entry.CapturedAt}
	}

	balance, err := s.refresh(ctx, wallet)
	if err == nil {
		s.metrics.RecordBalanceLookup(metrics.SourceRPC)
		return Result{Balance: balance, AsOf: s.clock.Now()}
	}

	return s.fallback(wallet, err)
}

// refresh fetches the balance once per wallet no matter how many callers are waiting.
func (s *Service) refresh(ctx context.Context, wallet string) (decimal.Decimal, error) {
	ch := s.group.DoChan(wallet, func() (interface{}, error) {
		// the shared fetch outlives any single waiter
		balance, err := s.resolver.BalanceAcross(context.WithoutCancel(ctx), wallet, s.config.Mints)
		if err != nil {
			return nil, err
		}
		if balance.IsNegative() {
			return nil, fmt.Errorf("%w: %s", errNegativeBalance, balance)
		}
		s.cache.Set(wallet, balance)
		return balance, nil
	})

	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return decimal.Zero, res.Err
		}
		return res.Val.(decimal.Decimal), nil
	}
}

func (s *Service) fallback(wallet string, cause error) Result {
	log := s.logger.WithWallet(wallet)

	if entry, ok := s.cache.GetStale(wallet); ok {
		s.metrics.RecordBalanceLookup(metrics.SourceStale)
		log.Warn("Serving stale balance",
			zap.String("balance", entry.Balance.String()),
			zap.Time("captured_at", entry.CapturedAt),
			zap.Error(cause))
		return Result{Balance: entry.Balance, FromCache: true, Stale: true, AsOf: entry.CapturedAt}
	}

	s.metrics.RecordBalanceLookup(metrics.SourceZero)
	s.logger.LogError("Balance unavailable, reporting zero", cause, zap.String("wallet", wallet))
	return Result{Balance: decimal.Zero, Fallback: true, AsOf: s.clock.Now()}
}

// Run purges entries past the stale retention window until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Purge()
		}
	}
}

// Purge drops entries older than the stale retention window.
func (s *Service) Purge() int {
	removed := s.cache.PurgeOlderThan(s.config.StaleRetention)
	if removed > 0 {
		s.logger.Info("Purged expired balances",
			zap.Int("removed", removed),
			zap.Int("remaining", s.cache.Len()))
	}
	return removed
}

// Cache exposes the underlying cache for reporting.
func (s *Service) Cache() *Cache {
	return s.cache
}
