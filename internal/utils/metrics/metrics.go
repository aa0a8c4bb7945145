// internal/utils/metrics/metrics.go
package metrics

import (
	"time"
)

// RecordRPCCall записывает метрики одного RPC-запроса к конкретному узлу
func (c *Collector) RecordRPCCall(method, endpoint, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.rpcLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	c.rpcCalls.WithLabelValues(method, outcome).Inc()
}

// RecordEndpointFailure учитывает пометку узла как неисправного
func (c *Collector) RecordEndpointFailure(endpoint string) {
	if c == nil {
		return
	}
	c.endpointFailures.WithLabelValues(endpoint).Inc()
}

// RecordExhausted учитывает логический вызов, исчерпавший все попытки
func (c *Collector) RecordExhausted(method string) {
	if c == nil {
		return
	}
	c.rpcExhausted.WithLabelValues(method).Inc()
}

// RecordCacheLookup учитывает обращение к кэшу: hit, miss или stale
func (c *Collector) RecordCacheLookup(result string) {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// RecordBalanceLookup учитывает источник ответа сервиса балансов
func (c *Collector) RecordBalanceLookup(source string) {
	if c == nil {
		return
	}
	c.balanceLookups.WithLabelValues(source).Inc()
}

// SetCacheEntries обновляет текущий размер кэша
func (c *Collector) SetCacheEntries(n int) {
	if c == nil {
		return
	}
	c.cacheEntries.Set(float64(n))
}
