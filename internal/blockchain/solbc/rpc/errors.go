// internal/blockchain/solbc/rpc/errors.go
package rpc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRateLimit возникает при превышении лимита запросов
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrTimeout возникает при превышении времени ожидания
	ErrTimeout = errors.New("request timeout")

	// ErrInvalidResponse возникает при получении некорректного ответа
	ErrInvalidResponse = errors.New("invalid RPC response")

	// ErrConnectionFailed возникает при ошибке подключения или HTTP-ошибке узла
	ErrConnectionFailed = errors.New("connection failed")

	// ErrAllEndpointsFailed возникает, когда исчерпаны все попытки
	ErrAllEndpointsFailed = errors.New("all RPC endpoints failed")
)

// Error представляет транспортную ошибку RPC с дополнительным контекстом
type Error struct {
	Err     error
	NodeURL string
	Method  string
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	return fmt.Sprintf("RPC error [%s] at %s: %v", e.Method, e.NodeURL, e.Err)
}

// Unwrap возвращает оригинальную ошибку
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError создает новую ошибку RPC
func NewError(err error, nodeURL, method string) error {
	return &Error{
		Err:     err,
		NodeURL: nodeURL,
		Method:  method,
	}
}

// RPCError описывает ошибку уровня JSON-RPC (error.code/error.message), не связанную
// с ограничением частоты. Считается постоянной для данного запроса.
type RPCError struct {
	Code    int
	Message string
	NodeURL string
	Method  string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error [%s] at %s: code %d: %s", e.Method, e.NodeURL, e.Code, e.Message)
}

// IsRetryableError определяет, можно ли повторить операцию при данной ошибке
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrConnectionFailed)
}

// IsRateLimitError проверяет, вызвана ли ошибка ограничением частоты запросов
func IsRateLimitError(err error) bool {
	return errors.Is(err, ErrRateLimit)
}

// IsAccountNotFoundError проверяет, является ли ошибка постоянной ошибкой RPC
// вида "could not find account"
func IsAccountNotFoundError(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "could not find account") ||
		strings.Contains(msg, "account not found")
}

var rateLimitPhrases = []string{
	"rate limit",
	"too many requests",
	"rate-limit",
}

func isRateLimitMessage(code int, message string) bool {
	if code == 429 {
		return true
	}
	msg := strings.ToLower(message)
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
