// internal/blockchain/solbc/rpc/transport.go
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const jsonrpcVersion = "2.0"

// Коды ошибок узла, которые говорят о состоянии узла, а не о запросе
const codeNodeUnhealthy = -32005

// Transport выполняет ровно один JSON-RPC вызов к ровно одному узлу
type Transport interface {
	Call(ctx context.Context, endpoint Endpoint, req Request) Outcome
}

// HTTPTransport реализует Transport поверх JSON-RPC клиента solana-go,
// держа по одному клиенту на узел.
type HTTPTransport struct {
	timeout   time.Duration
	base      http.RoundTripper
	rps       rate.Limit
	burst     int
	requestID atomic.Uint64
	clients   map[string]*nodeClient
	mu        sync.Mutex
	logger    *zap.Logger
}

type nodeClient struct {
	rpc jsonrpc.RPCClient
}

// TransportOption настраивает HTTPTransport
type TransportOption func(*HTTPTransport)

// WithTimeout задает жесткий срок одного вызова
func WithTimeout(d time.Duration) TransportOption {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithRoundTripper задает базовый http.RoundTripper (прокси, TLS, тесты)
func WithRoundTripper(rt http.RoundTripper) TransportOption {
	return func(t *HTTPTransport) {
		if rt != nil {
			t.base = rt
		}
	}
}

// WithRateLimit включает клиентское ограничение частоты запросов к каждому узлу
func WithRateLimit(rps float64, burst int) TransportOption {
	return func(t *HTTPTransport) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		t.rps = rate.Limit(rps)
		t.burst = burst
	}
}

// NewHTTPTransport создает транспорт с таймаутом по умолчанию 8 секунд
func NewHTTPTransport(logger *zap.Logger, opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		timeout: DefaultTimeout,
		base:    http.DefaultTransport,
		clients: make(map[string]*nodeClient),
		logger:  logger.Named("rpc-transport"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Call выполняет вызов с жестким сроком и классифицирует результат
func (t *HTTPTransport) Call(ctx context.Context, endpoint Endpoint, req Request) Outcome {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	request := &jsonrpc.RPCRequest{
		Method:  req.Method,
		ID:      t.requestID.Add(1),
		JSONRPC: jsonrpcVersion,
	}
	if len(req.Params) > 0 {
		request.Params = req.Params
	}

	resp, err := t.client(endpoint.URL).rpc.CallRaw(callCtx, request)
	outcome := classify(callCtx, resp, err)

	if outcome.Kind != OutcomeOK {
		t.logger.Debug("RPC call failed",
			zap.String("url", endpoint.URL),
			zap.String("method", req.Method),
			zap.Stringer("outcome", outcome.Kind),
			zap.Error(outcome.Err(endpoint, req.Method)))
	}
	return outcome
}

// Close закрывает простаивающие соединения всех узлов
func (t *HTTPTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.clients {
		_ = c.rpc.Close()
	}
}

func (t *HTTPTransport) client(url string) *nodeClient {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[url]; ok {
		return c
	}

	roundTripper := t.base
	if t.rps > 0 {
		roundTripper = &limitedRoundTripper{
			limiter: rate.NewLimiter(t.rps, t.burst),
			base:    roundTripper,
		}
	}
	c := &nodeClient{
		rpc: jsonrpc.NewClientWithOpts(url, &jsonrpc.RPCClientOpts{
			HTTPClient: &http.Client{Transport: roundTripper},
		}),
	}
	t.clients[url] = c
	return c
}

func classify(ctx context.Context, resp *jsonrpc.RPCResponse, err error) Outcome {
	if err != nil {
		if errors.Is(err, ErrRateLimit) {
			return RateLimited(err)
		}
		var httpErr *jsonrpc.HTTPError
		if errors.As(err, &httpErr) {
			if httpErr.Code == http.StatusTooManyRequests {
				return RateLimited(err)
			}
			return NetworkFailure(fmt.Errorf("%w: http status %d: %w", ErrConnectionFailed, httpErr.Code, err))
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return NetworkFailure(fmt.Errorf("%w: %w", ErrTimeout, err))
		}
		return NetworkFailure(err)
	}

	if resp == nil {
		return NetworkFailure(ErrInvalidResponse)
	}

	if resp.Error != nil {
		code, message := resp.Error.Code, resp.Error.Message
		if isRateLimitMessage(code, message) {
			return RateLimited(fmt.Errorf("code %d: %s", code, message))
		}
		if isNodeUnhealthy(code, message) {
			return NetworkFailure(fmt.Errorf("node unhealthy: code %d: %s", code, message))
		}
		return RPCFailure(code, message)
	}

	return Ok(resp.Result)
}

func isNodeUnhealthy(code int, message string) bool {
	if code == codeNodeUnhealthy {
		return true
	}
	msg := strings.ToLower(message)
	return strings.Contains(msg, "node is behind") || strings.Contains(msg, "node is unhealthy")
}
