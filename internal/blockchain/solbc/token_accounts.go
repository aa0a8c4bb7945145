// internal/blockchain/solbc/token_accounts.go
package solbc

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rovshanmuradov/tokenbalance/internal/blockchain/solbc/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	methodTokenAccountsByOwner = "getTokenAccountsByOwner"
	methodTokenAccountBalance  = "getTokenAccountBalance"
)

// ErrNegativeBalance возникает, если узел вернул отрицательное количество токенов
var ErrNegativeBalance = errors.New("negative token amount")

// RPCCaller описывает часть rpc.Client, нужную резолверу
type RPCCaller interface {
	CallInto(ctx context.Context, policy rpc.RetryPolicy, out interface{}, method string, params ...interface{}) error
}

// TokenAccountResolver находит токен-аккаунты кошелька и читает их балансы
type TokenAccountResolver struct {
	rpc           RPCCaller
	lookupPolicy  rpc.RetryPolicy
	balancePolicy rpc.RetryPolicy
	logger        *zap.Logger
}

// ResolverOption настраивает TokenAccountResolver
type ResolverOption func(*TokenAccountResolver)

// WithLookupPolicy задает политику повторов для поиска токен-аккаунта
func WithLookupPolicy(p rpc.RetryPolicy) ResolverOption {
	return func(r *TokenAccountResolver) {
		r.lookupPolicy = p
	}
}

// WithBalancePolicy задает политику повторов для чтения баланса
func WithBalancePolicy(p rpc.RetryPolicy) ResolverOption {
	return func(r *TokenAccountResolver) {
		r.balancePolicy = p
	}
}

// NewTokenAccountResolver создает резолвер поверх RPC клиента
func NewTokenAccountResolver(caller RPCCaller, logger *zap.Logger, opts ...ResolverOption) *TokenAccountResolver {
	r := &TokenAccountResolver{
		rpc:           caller,
		lookupPolicy:  rpc.LookupPolicy,
		balancePolicy: rpc.BalancePolicy,
		logger:        logger.Named("token-resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindAssociatedAccount возвращает первый токен-аккаунт кошелька для минта.
// Пустой список аккаунтов не ошибка: found == false.
func (r *TokenAccountResolver) FindAssociatedAccount(ctx context.Context, wallet string, mint solana.PublicKey) (solana.PublicKey, bool, error) {
	var out solanarpc.GetTokenAccountsResult
	err := r.rpc.CallInto(ctx, r.lookupPolicy, &out, methodTokenAccountsByOwner,
		wallet,
		solanarpc.M{"mint": mint},
		solanarpc.M{"encoding": solana.EncodingJSONParsed},
	)
	if err != nil {
		return solana.PublicKey{}, false, fmt.Errorf("find token account for mint %s: %w", mint, err)
	}

	for _, acc := range out.Value {
		if acc != nil && !acc.Pubkey.IsZero() {
			return acc.Pubkey, true, nil
		}
	}
	return solana.PublicKey{}, false, nil
}

// ReadAccountBalance читает баланс токен-аккаунта: amount / 10^decimals без потери точности
func (r *TokenAccountResolver) ReadAccountBalance(ctx context.Context, account solana.PublicKey) (decimal.Decimal, error) {
	var out solanarpc.GetTokenAccountBalanceResult
	if err := r.rpc.CallInto(ctx, r.balancePolicy, &out, methodTokenAccountBalance, account); err != nil {
		return decimal.Zero, fmt.Errorf("read balance of %s: %w", account, err)
	}
	if out.Value == nil {
		return decimal.Zero, fmt.Errorf("read balance of %s: %w: empty value", account, rpc.ErrInvalidResponse)
	}

	return uiAmount(out.Value)
}

// MintBalance возвращает баланс кошелька по одному минту.
// Отсутствующий аккаунт дает ноль, а не ошибку.
func (r *TokenAccountResolver) MintBalance(ctx context.Context, wallet string, mint solana.PublicKey) (decimal.Decimal, error) {
	account, found, err := r.FindAssociatedAccount(ctx, wallet, mint)
	if err != nil {
		if rpc.IsAccountNotFoundError(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	if !found {
		r.logger.Debug("No token account for mint",
			zap.String("wallet", wallet),
			zap.String("mint", mint.String()))
		return decimal.Zero, nil
	}

	balance, err := r.ReadAccountBalance(ctx, account)
	if err != nil {
		if rpc.IsAccountNotFoundError(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return balance, nil
}

// BalanceAcross суммирует балансы по всем минтам параллельно.
// Минты с ошибкой исключаются из суммы; если ошибку дали все минты, она возвращается.
func (r *TokenAccountResolver) BalanceAcross(ctx context.Context, wallet string, mints []solana.PublicKey) (decimal.Decimal, error) {
	if len(mints) == 0 {
		return decimal.Zero, nil
	}

	balances := make([]decimal.Decimal, len(mints))
	errs := make([]error, len(mints))

	var g errgroup.Group
	for i, mint := range mints {
		g.Go(func() error {
			balances[i], errs[i] = r.MintBalance(ctx, wallet, mint)
			return nil
		})
	}
	_ = g.Wait()

	total := decimal.Zero
	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			r.logger.Warn("Mint balance excluded",
				zap.String("wallet", wallet),
				zap.String("mint", mints[i].String()),
				zap.Bool("retryable", rpc.IsRetryableError(err)),
				zap.Error(err))
			continue
		}
		total = total.Add(balances[i])
	}

	if failed == len(mints) {
		return decimal.Zero, errors.Join(errs...)
	}
	return total, nil
}

func uiAmount(v *solanarpc.UiTokenAmount) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(v.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q: %w", rpc.ErrInvalidResponse, v.Amount, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %w: %s", rpc.ErrInvalidResponse, ErrNegativeBalance, v.Amount)
	}
	return amount.Shift(-int32(v.Decimals)), nil
}
