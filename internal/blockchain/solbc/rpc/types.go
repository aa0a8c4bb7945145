// internal/blockchain/solbc/rpc/types.go
package rpc

import (
	"time"
)

const (
	DefaultTimeout     = 8 * time.Second
	DefaultResetWindow = 5 * time.Minute
)

// Endpoint представляет отдельный RPC узел. URL является его идентичностью.
type Endpoint struct {
	URL string
}

// EndpointStatus содержит снимок состояния узла для логов и диагностики
type EndpointStatus struct {
	URL         string
	Failed      bool
	FailedSince time.Time
}

// Request описывает один JSON-RPC 2.0 вызов: метод и упорядоченные параметры
type Request struct {
	Method string
	Params []interface{}
}

// RetryPolicy задает число попыток и два расписания задержек:
// быстрое для сетевых ошибок и медленное для ограничения частоты запросов.
type RetryPolicy struct {
	MaxAttempts              int
	InitialInterval          time.Duration
	MaxInterval              time.Duration
	RateLimitInitialInterval time.Duration
	RateLimitMaxInterval     time.Duration
}

var (
	// BalancePolicy используется для чтения балансов
	BalancePolicy = RetryPolicy{
		MaxAttempts:              3,
		InitialInterval:          200 * time.Millisecond,
		MaxInterval:              2 * time.Second,
		RateLimitInitialInterval: 1 * time.Second,
		RateLimitMaxInterval:     10 * time.Second,
	}

	// LookupPolicy используется для вспомогательных вызовов (поиск токен-аккаунта)
	LookupPolicy = RetryPolicy{
		MaxAttempts:              2,
		InitialInterval:          200 * time.Millisecond,
		MaxInterval:              2 * time.Second,
		RateLimitInitialInterval: 1 * time.Second,
		RateLimitMaxInterval:     10 * time.Second,
	}
)

// WithAttempts возвращает копию политики с другим числом попыток
func (p RetryPolicy) WithAttempts(n int) RetryPolicy {
	p.MaxAttempts = n
	return p
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
