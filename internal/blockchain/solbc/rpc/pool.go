// internal/blockchain/solbc/rpc/pool.go
package rpc

import (
	"errors"
	"sync"
	"time"

	"github.com/rovshanmuradov/tokenbalance/internal/utils/clock"
	"github.com/rovshanmuradov/tokenbalance/internal/utils/metrics"
	"go.uber.org/zap"
)

// ErrNoEndpoints возникает при создании пула без узлов
var ErrNoEndpoints = errors.New("no RPC endpoints configured")

type endpointState struct {
	Endpoint
	failed      bool
	failedSince time.Time
}

// Pool представляет пул RPC узлов с пометкой неисправных и периодическим сбросом
type Pool struct {
	endpoints   []*endpointState
	clock       clock.Clock
	resetWindow time.Duration
	lastReset   time.Time
	cursor      int
	logger      *zap.Logger
	metrics     *metrics.Collector
	mu          sync.Mutex
}

// PoolOption настраивает Pool
type PoolOption func(*Pool)

// WithResetWindow задает период безусловного сброса пометок
func WithResetWindow(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.resetWindow = d
		}
	}
}

// WithPoolMetrics подключает сборщик метрик
func WithPoolMetrics(m *metrics.Collector) PoolOption {
	return func(p *Pool) {
		p.metrics = m
	}
}

// NewPool создает новый пул узлов в порядке конфигурации (первый основной)
func NewPool(urls []string, clk clock.Clock, logger *zap.Logger, opts ...PoolOption) (*Pool, error) {
	if len(urls) == 0 {
		return nil, ErrNoEndpoints
	}
	if clk == nil {
		clk = clock.Real()
	}

	p := &Pool{
		endpoints:   make([]*endpointState, 0, len(urls)),
		clock:       clk,
		resetWindow: DefaultResetWindow,
		lastReset:   clk.Now(),
		logger:      logger.Named("rpc-pool"),
	}
	for _, url := range urls {
		p.endpoints = append(p.endpoints, &endpointState{Endpoint: Endpoint{URL: url}})
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Next возвращает следующий исправный узел (round-robin по отфильтрованному списку).
// Если неисправны все узлы, пометки сбрасываются и возвращается первый узел.
func (p *Pool) Next() Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.maybeResetLocked()

	healthy := make([]*endpointState, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		if !ep.failed {
			healthy = append(healthy, ep)
		}
	}

	if len(healthy) == 0 {
		p.logger.Warn("All RPC endpoints marked failed, resetting pool",
			zap.Int("endpoints", len(p.endpoints)))
		p.resetLocked()
		p.cursor = 1
		return p.endpoints[0].Endpoint
	}

	idx := p.cursor % len(healthy)
	p.cursor++
	return healthy[idx].Endpoint
}

// MarkFailed помечает узел как неисправный, не удаляя его из пула
func (p *Pool) MarkFailed(endpoint Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.maybeResetLocked()

	for _, ep := range p.endpoints {
		if ep.URL != endpoint.URL {
			continue
		}
		if !ep.failed {
			ep.failed = true
			ep.failedSince = p.clock.Now()
			p.metrics.RecordEndpointFailure(ep.URL)
			p.logger.Debug("Endpoint marked as failed", zap.String("url", ep.URL))
		}
		return
	}
}

// Reset снимает все пометки о неисправности
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}

// Status возвращает снимок состояния всех узлов
func (p *Pool) Status() []EndpointStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.maybeResetLocked()

	out := make([]EndpointStatus, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		out = append(out, EndpointStatus{
			URL:         ep.URL,
			Failed:      ep.failed,
			FailedSince: ep.failedSince,
		})
	}
	return out
}

// Len возвращает число узлов в пуле
func (p *Pool) Len() int {
	return len(p.endpoints)
}

// maybeResetLocked сбрасывает пометки, если с последнего сброса прошло окно
func (p *Pool) maybeResetLocked() {
	now := p.clock.Now()
	if now.Sub(p.lastReset) < p.resetWindow {
		return
	}
	p.resetLocked()
}

func (p *Pool) resetLocked() {
	for _, ep := range p.endpoints {
		ep.failed = false
		ep.failedSince = time.Time{}
	}
	p.lastReset = p.clock.Now()
}
