package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rovshanmuradov/tokenbalance/internal/utils/clock"
	"github.com/rovshanmuradov/tokenbalance/internal/utils/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeTransport отвечает заранее заданным результатом для каждого узла
type fakeTransport struct {
	mu        sync.Mutex
	responses map[string][]Outcome
	fallback  Outcome
	calls     []string
}

func newFakeTransport(fallback Outcome) *fakeTransport {
	return &fakeTransport{responses: make(map[string][]Outcome), fallback: fallback}
}

func (f *fakeTransport) on(url string, outcomes ...Outcome) *fakeTransport {
	f.responses[url] = append(f.responses[url], outcomes...)
	return f
}

func (f *fakeTransport) Call(_ context.Context, endpoint Endpoint, _ Request) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpoint.URL)
	queue := f.responses[endpoint.URL]
	if len(queue) == 0 {
		return f.fallback
	}
	out := queue[0]
	if len(queue) > 1 {
		f.responses[endpoint.URL] = queue[1:]
	}
	return out
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestClient(t *testing.T, tr Transport, clk *clock.Fake, urls ...string) (*Client, *Pool) {
	t.Helper()
	if len(urls) == 0 {
		urls = testURLs
	}
	log := zaptest.NewLogger(t)
	m := metrics.NewCollector(prometheus.NewRegistry())
	pool, err := NewPool(urls, clk, log, WithPoolMetrics(m))
	require.NoError(t, err)
	return NewClient(pool, tr, clk, log, WithClientMetrics(m)), pool
}

func TestClientReturnsFirstSuccess(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tr := newFakeTransport(Ok(json.RawMessage(`"ok"`)))
	c, _ := newTestClient(t, tr, clk)

	raw, err := c.Call(context.Background(), BalancePolicy, "getTokenAccountBalance", "acc")
	require.NoError(t, err)
	assert.JSONEq(t, `"ok"`, string(raw))
	assert.Equal(t, []string{"https://a.example"}, tr.Calls())
	assert.Zero(t, clk.Slept())
}

func TestClientRotatesPastFailingEndpoints(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tr := newFakeTransport(NetworkFailure(errors.New("connection reset"))).
		on("https://b.example", Ok(json.RawMessage(`{"value":1}`)))
	c, pool := newTestClient(t, tr, clk)

	// N-1 неисправных узлов и один рабочий: успех не позже N-й попытки
	raw, err := c.Call(context.Background(), BalancePolicy, "getTokenAccountBalance", "acc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":1}`, string(raw))
	assert.Equal(t, []string{"https://a.example", "https://c.example", "https://b.example"}, tr.Calls())
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}, clk.Naps())

	status := pool.Status()
	assert.True(t, status[0].Failed)
	assert.False(t, status[1].Failed)
	assert.True(t, status[2].Failed)
}

func TestClientRateLimitBackoffBound(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tr := newFakeTransport(RateLimited(nil))
	c, _ := newTestClient(t, tr, clk)

	_, err := c.Call(context.Background(), BalancePolicy, "getTokenAccountBalance", "acc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllEndpointsFailed)
	assert.True(t, IsRateLimitError(err))

	assert.Len(t, tr.Calls(), 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clk.Naps())
	assert.Equal(t, 3*time.Second, clk.Slept())
}

func TestClientBackoffIsCapped(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tr := newFakeTransport(RateLimited(nil))
	c, _ := newTestClient(t, tr, clk)

	_, err := c.Call(context.Background(), BalancePolicy.WithAttempts(6), "getTokenAccountBalance")
	require.Error(t, err)
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second,
	}, clk.Naps())
}

func TestClientMixedOutcomesUseMatchingSchedule(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tr := newFakeTransport(Ok(json.RawMessage(`1`))).
		on("https://a.example", NetworkFailure(ErrTimeout)).
		on("https://c.example", RateLimited(nil))
	c, _ := newTestClient(t, tr, clk)

	_, err := c.Call(context.Background(), BalancePolicy, "getTokenAccountBalance")
	require.NoError(t, err)
	// попытка 0: сетевая ошибка, попытка 1: лимит
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 2 * time.Second}, clk.Naps())
}

func TestClientRPCErrorIsTerminal(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tr := newFakeTransport(RPCFailure(-32602, "Invalid param: could not find account"))
	c, pool := newTestClient(t, tr, clk)

	_, err := c.Call(context.Background(), BalancePolicy, "getTokenAccountBalance", "acc")
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)
	assert.True(t, IsAccountNotFoundError(err))
	assert.NotErrorIs(t, err, ErrAllEndpointsFailed)

	assert.Len(t, tr.Calls(), 1)
	assert.Zero(t, clk.Slept())
	assert.False(t, pool.Status()[0].Failed)
}

func TestClientLookupPolicyAttempts(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tr := newFakeTransport(NetworkFailure(nil))
	c, _ := newTestClient(t, tr, clk)

	_, err := c.Call(context.Background(), LookupPolicy, "getTokenAccountsByOwner")
	assert.ErrorIs(t, err, ErrAllEndpointsFailed)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Len(t, tr.Calls(), 2)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, clk.Naps())
}

func TestClientHonoursCancelledContext(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tr := newFakeTransport(Ok(json.RawMessage(`1`)))
	c, _ := newTestClient(t, tr, clk)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Call(ctx, BalancePolicy, "getTokenAccountBalance")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tr.Calls())
}

func TestClientCallInto(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tr := newFakeTransport(Ok(json.RawMessage(`{"value":7}`)))
	c, _ := newTestClient(t, tr, clk)

	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, c.CallInto(context.Background(), LookupPolicy, &out, "getSomething"))
	assert.Equal(t, 7, out.Value)

	tr.fallback = Ok(json.RawMessage(`"not an object"`))
	err := c.CallInto(context.Background(), LookupPolicy, &out, "getSomething")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}
