package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CoinPrice is a USD spot quote for one coin.
type CoinPrice struct {
	Coin       Symbol          `json:"coin"`
	USD        decimal.Decimal `json:"usd"`
	Source     string          `json:"source"`
	RecordedAt time.Time       `json:"recorded_at"`
}
