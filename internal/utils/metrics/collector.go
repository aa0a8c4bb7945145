// internal/utils/metrics/collector.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "token_balance"

// Результаты одного RPC вызова (метка outcome)
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeRPCError    = "rpc_error"
	OutcomeNetwork     = "network_failure"
)

// Источник ответа BalanceService (метка source)
const (
	SourceCache   = "cache"
	SourceRPC     = "rpc"
	SourceStale   = "stale"
	SourceZero    = "zero"
	SourceInvalid = "invalid"
)

// Collector управляет набором метрик слоя запросов балансов.
// Все методы безопасны для nil-получателя, чтобы компоненты работали без метрик.
type Collector struct {
	rpcLatency       *prometheus.HistogramVec
	rpcCalls         *prometheus.CounterVec
	endpointFailures *prometheus.CounterVec
	rpcExhausted     *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	balanceLookups   *prometheus.CounterVec
	cacheEntries     prometheus.Gauge
}

// NewCollector регистрирует метрики в reg. При reg == nil используется
// собственный реестр, что удобно в тестах.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Collector{
		rpcLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_latency_seconds",
				Help:      "RPC request latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"method", "endpoint"},
		),
		rpcCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_calls_total",
				Help:      "RPC calls by method and classified outcome",
			},
			[]string{"method", "outcome"},
		),
		endpointFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "endpoint_failures_total",
				Help:      "Times an endpoint was marked failed",
			},
			[]string{"endpoint"},
		),
		rpcExhausted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_exhausted_total",
				Help:      "Logical RPC calls that ran out of attempts",
			},
			[]string{"method"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Balance cache lookups by result",
			},
			[]string{"result"},
		),
		balanceLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "balance_lookups_total",
				Help:      "Balance lookups by answer source",
			},
			[]string{"source"},
		),
		cacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Entries currently held by the balance cache",
			},
		),
	}
}
