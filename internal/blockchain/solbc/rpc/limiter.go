// internal/blockchain/solbc/rpc/limiter.go
package rpc

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// limitedRoundTripper ждет токен лимитера перед каждым HTTP-запросом к узлу.
// Если токен не успевает освободиться до срока вызова, ошибка оборачивает ErrRateLimit.
type limitedRoundTripper struct {
	limiter *rate.Limiter
	base    http.RoundTripper
}

func (l *limitedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := l.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("%w: client-side limiter: %w", ErrRateLimit, err)
	}
	return l.base.RoundTrip(req)
}
