package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kjannette/cryptovest-backend/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("enter a valid amount")
	ErrInsufficientBalance = errors.New("cannot withdraw more than your balance")
)

// EntryLister abstracts the ledger reads the guard needs so it can be
// tested without a database.
type EntryLister interface {
	ListByUser(ctx context.Context, kind models.LedgerKind, userID uuid.UUID) ([]models.LedgerEntry, error)
}

type GuardOptions struct {
	// RequireConfirmed limits the withdrawable balance to approved
	// investments. When false, pending deposits count too.
	RequireConfirmed bool
}

type WithdrawalGuard struct {
	entries EntryLister
	opts    GuardOptions
}

func NewWithdrawalGuard(entries EntryLister, opts GuardOptions) *WithdrawalGuard {
	return &WithdrawalGuard{entries: entries, opts: opts}
}

// ValidateAmount rejects zero, negative and missing amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Check returns nil if the user may request a withdrawal of amount coin.
// It never writes.
func (g *WithdrawalGuard) Check(ctx context.Context, userID uuid.UUID, coin models.Symbol, amount decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}

	balances, err := g.Balances(ctx, userID)
	if err != nil {
		return fmt.Errorf("load balances: %w", err)
	}
	return CheckBound(balances, coin, amount)
}

// Balances returns the balance set the guard checks against.
func (g *WithdrawalGuard) Balances(ctx context.Context, userID uuid.UUID) (Balances, error) {
	investments, err := g.entries.ListByUser(ctx, models.KindInvestment, userID)
	if err != nil {
		return nil, err
	}
	withdrawals, err := g.entries.ListByUser(ctx, models.KindWithdrawal, userID)
	if err != nil {
		return nil, err
	}
	return g.BalancesFrom(investments, withdrawals), nil
}

// BalancesFrom is Balances over rows the caller already listed.
func (g *WithdrawalGuard) BalancesFrom(investments, withdrawals []models.LedgerEntry) Balances {
	if g.opts.RequireConfirmed {
		return ConfirmedAggregate(investments, withdrawals)
	}
	return Aggregate(investments, withdrawals)
}

// CheckBound is the pure part of Check: amount must not exceed the coin's
// balance. A coin absent from balances has nothing to withdraw.
func CheckBound(balances Balances, coin models.Symbol, amount decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	bal, ok := balances.Get(coin)
	if !ok || amount.GreaterThan(bal) {
		return fmt.Errorf("%w: requested %s %s, available %s",
			ErrInsufficientBalance, amount.String(), coin.Upper(), bal.String())
	}
	return nil
}
