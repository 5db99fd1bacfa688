package ledger

import (
	"sort"

	"github.com/kjannette/cryptovest-backend/internal/models"
	"github.com/shopspring/decimal"
)

// Balances maps a coin to its net amount. A coin with no entries is absent,
// not zero.
type Balances map[models.Symbol]decimal.Decimal

// Get returns the balance for coin and whether the coin has any entries.
func (b Balances) Get(coin models.Symbol) (decimal.Decimal, bool) {
	v, ok := b[coin]
	return v, ok
}

// Coins returns the coins present in b, sorted.
func (b Balances) Coins() []models.Symbol {
	out := make([]models.Symbol, 0, len(b))
	for c := range b {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Positive returns only the coins with a balance above zero.
func (b Balances) Positive() Balances {
	out := Balances{}
	for c, v := range b {
		if v.IsPositive() {
			out[c] = v
		}
	}
	return out
}

// Aggregate computes per-coin net balances. Every investment counts
// regardless of status; a withdrawal only counts once it is approved.
func Aggregate(investments, withdrawals []models.LedgerEntry) Balances {
	return aggregate(investments, withdrawals, false)
}

// ConfirmedAggregate is Aggregate restricted to approved investments.
func ConfirmedAggregate(investments, withdrawals []models.LedgerEntry) Balances {
	return aggregate(investments, withdrawals, true)
}

func aggregate(investments, withdrawals []models.LedgerEntry, confirmedOnly bool) Balances {
	balances := Balances{}
	for _, inv := range investments {
		if confirmedOnly && !inv.IsSuccess() {
			continue
		}
		balances[inv.Coin] = balances[inv.Coin].Add(inv.Amount)
	}
	for _, wd := range withdrawals {
		if !wd.IsSuccess() {
			continue
		}
		balances[wd.Coin] = balances[wd.Coin].Sub(wd.Amount)
	}
	return balances
}

// Sum totals the amount of every entry, across coins and statuses.
func Sum(entries []models.LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}

// CountStatus counts entries in the given status.
func CountStatus(entries []models.LedgerEntry, status models.Status) int {
	n := 0
	for _, e := range entries {
		if e.Status == status {
			n++
		}
	}
	return n
}

// FilterStatus returns the entries in the given status, preserving order.
func FilterStatus(entries []models.LedgerEntry, status models.Status) []models.LedgerEntry {
	var out []models.LedgerEntry
	for _, e := range entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

// History merges investments and withdrawals into one list, newest first.
func History(investments, withdrawals []models.LedgerEntry) []models.Transaction {
	out := make([]models.Transaction, 0, len(investments)+len(withdrawals))
	for _, inv := range investments {
		out = append(out, models.Transaction{LedgerEntry: inv, Type: "Deposit"})
	}
	for _, wd := range withdrawals {
		out = append(out, models.Transaction{LedgerEntry: wd, Type: "Withdrawal"})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
