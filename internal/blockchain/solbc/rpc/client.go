// internal/blockchain/solbc/rpc/client.go
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rovshanmuradov/tokenbalance/internal/utils/clock"
	"github.com/rovshanmuradov/tokenbalance/internal/utils/metrics"
	"go.uber.org/zap"
)

// Client выполняет JSON-RPC вызовы через пул узлов с повторными попытками
type Client struct {
	pool      *Pool
	transport Transport
	clock     clock.Clock
	logger    *zap.Logger
	metrics   *metrics.Collector
}

// ClientOption настраивает Client
type ClientOption func(*Client)

// WithClientMetrics подключает сборщик метрик
func WithClientMetrics(m *metrics.Collector) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient создает клиент поверх пула и транспорта
func NewClient(pool *Pool, transport Transport, clk clock.Clock, logger *zap.Logger, opts ...ClientOption) *Client {
	if clk == nil {
		clk = clock.Real()
	}
	c := &Client{
		pool:      pool,
		transport: transport,
		clock:     clk,
		logger:    logger.Named("rpc-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call выполняет метод, переключая узлы и выжидая между попытками.
// Постоянная ошибка JSON-RPC возвращается сразу как *RPCError.
func (c *Client) Call(ctx context.Context, policy RetryPolicy, method string, params ...interface{}) (json.RawMessage, error) {
	attempts := policy.attempts()
	fast := newSchedule(policy.InitialInterval, policy.MaxInterval)
	slow := newSchedule(policy.RateLimitInitialInterval, policy.RateLimitMaxInterval)
	req := Request{Method: method, Params: params}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		endpoint := c.pool.Next()
		start := c.clock.Now()
		outcome := c.transport.Call(ctx, endpoint, req)
		c.metrics.RecordRPCCall(method, endpoint.URL, outcome.Kind.String(), c.clock.Now().Sub(start))

		// отмена вызывающим не говорит ничего о здоровье узла
		if outcome.Kind != OutcomeOK && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		fastDelay, slowDelay := fast.NextBackOff(), slow.NextBackOff()

		var delay time.Duration
		switch outcome.Kind {
		case OutcomeOK:
			return outcome.Result, nil
		case OutcomeRPCError:
			return nil, outcome.Err(endpoint, method)
		case OutcomeRateLimited:
			delay = slowDelay
		default:
			delay = fastDelay
		}

		lastErr = outcome.Err(endpoint, method)
		c.pool.MarkFailed(endpoint)

		if attempt == attempts-1 {
			break
		}

		c.logger.Debug("Retrying RPC call",
			zap.String("method", method),
			zap.String("url", endpoint.URL),
			zap.Stringer("outcome", outcome.Kind),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay))

		if err := c.clock.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	c.metrics.RecordExhausted(method)
	c.logger.Warn("RPC call exhausted all attempts",
		zap.String("method", method),
		zap.Int("attempts", attempts),
		zap.Error(lastErr))

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrAllEndpointsFailed, attempts, lastErr)
}

// CallInto выполняет Call и декодирует результат в out
func (c *Client) CallInto(ctx context.Context, policy RetryPolicy, out interface{}, method string, params ...interface{}) error {
	raw, err := c.Call(ctx, policy, method, params...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return NewError(fmt.Errorf("%w: %w", ErrInvalidResponse, err), "", method)
	}
	return nil
}

// newSchedule возвращает экспоненциальное расписание без случайного разброса:
// initial, initial*2, initial*4 ... не больше max.
func newSchedule(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         max,
	}
	b.Reset()
	return b
}
