package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Symbol is a lower-case coin identifier ("btc", "eth", ...).
type Symbol string

const (
	BTC  Symbol = "btc"
	ETH  Symbol = "eth"
	USDT Symbol = "usdt"
	SOL  Symbol = "sol"
)

// Symbols lists the coins the platform accepts, in display order.
var Symbols = []Symbol{BTC, ETH, USDT, SOL}

func ParseSymbol(s string) (Symbol, error) {
	sym := Symbol(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Symbols {
		if sym == known {
			return sym, nil
		}
	}
	return "", fmt.Errorf("unsupported coin %q", s)
}

func (s Symbol) Upper() string {
	return strings.ToUpper(string(s))
}

// Network is the chain a deposit address or withdrawal lives on.
type Network string

const (
	Mainnet Network = "mainnet"
	ERC20   Network = "ERC20"
	BEP20   Network = "BEP20"
	TRC20   Network = "TRC20"
)

func ParseNetwork(s string) (Network, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MAINNET":
		return Mainnet, nil
	case "ERC20":
		return ERC20, nil
	case "BEP20":
		return BEP20, nil
	case "TRC20":
		return TRC20, nil
	}
	return "", fmt.Errorf("unsupported network %q", s)
}

// IsEVM reports whether addresses on this network are 20-byte hex accounts.
func (n Network) IsEVM() bool {
	return n == ERC20 || n == BEP20
}

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
)

// LedgerKind names the table a ledger entry belongs to.
type LedgerKind string

const (
	KindInvestment LedgerKind = "investments"
	KindWithdrawal LedgerKind = "withdrawals"
)

// LedgerEntry is one investment or withdrawal row.
type LedgerEntry struct {
	ID        int64           `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Coin      Symbol          `json:"coin"`
	Network   *Network        `json:"network,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

func (e LedgerEntry) Key() int64 {
	return e.ID
}

func (e LedgerEntry) Timestamp() time.Time {
	return e.CreatedAt
}

func (e LedgerEntry) IsSuccess() bool {
	return e.Status == StatusSuccess
}

// Transaction is a ledger entry tagged with its kind, used for the merged
// deposit/withdrawal history.
type Transaction struct {
	LedgerEntry
	Type string `json:"type"` // "Deposit" or "Withdrawal"
}
