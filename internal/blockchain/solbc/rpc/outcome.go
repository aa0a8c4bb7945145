// internal/blockchain/solbc/rpc/outcome.go
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rovshanmuradov/tokenbalance/internal/utils/metrics"
)

// OutcomeKind классифицирует результат одного вызова к одному узлу
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeRateLimited
	OutcomeRPCError
	OutcomeNetworkFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return metrics.OutcomeOK
	case OutcomeRateLimited:
		return metrics.OutcomeRateLimited
	case OutcomeRPCError:
		return metrics.OutcomeRPCError
	case OutcomeNetworkFailure:
		return metrics.OutcomeNetwork
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome является размеченным объединением Ok | RateLimited | RPCError | NetworkFailure.
// Заполнены только поля, относящиеся к Kind.
type Outcome struct {
	Kind OutcomeKind

	// OutcomeOK
	Result json.RawMessage

	// OutcomeRPCError
	Code    int
	Message string

	// OutcomeRateLimited, OutcomeNetworkFailure
	Cause error
}

// Ok создает успешный результат
func Ok(result json.RawMessage) Outcome {
	return Outcome{Kind: OutcomeOK, Result: result}
}

// RateLimited создает результат "узел ограничил частоту запросов"
func RateLimited(detail error) Outcome {
	cause := ErrRateLimit
	if detail != nil && !errors.Is(detail, ErrRateLimit) {
		cause = fmt.Errorf("%w: %w", ErrRateLimit, detail)
	}
	return Outcome{Kind: OutcomeRateLimited, Cause: cause}
}

// RPCFailure создает результат с постоянной ошибкой JSON-RPC
func RPCFailure(code int, message string) Outcome {
	return Outcome{Kind: OutcomeRPCError, Code: code, Message: message}
}

// NetworkFailure создает результат сетевой ошибки или таймаута
func NetworkFailure(cause error) Outcome {
	switch {
	case cause == nil:
		cause = ErrConnectionFailed
	case errors.Is(cause, ErrTimeout), errors.Is(cause, ErrConnectionFailed):
	default:
		cause = fmt.Errorf("%w: %w", ErrConnectionFailed, cause)
	}
	return Outcome{Kind: OutcomeNetworkFailure, Cause: cause}
}

// Err превращает неуспешный результат в типизированную ошибку
func (o Outcome) Err(endpoint Endpoint, method string) error {
	switch o.Kind {
	case OutcomeOK:
		return nil
	case OutcomeRPCError:
		return &RPCError{
			Code:    o.Code,
			Message: o.Message,
			NodeURL: endpoint.URL,
			Method:  method,
		}
	default:
		return NewError(o.Cause, endpoint.URL, method)
	}
}
