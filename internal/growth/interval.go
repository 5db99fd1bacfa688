package growth

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Interval is a compounding period and the rate applied once per period.
type Interval struct {
	Name   string
	Period time.Duration
	Rate   decimal.Decimal
}

var (
	Daily   = Interval{Name: "Daily", Period: 24 * time.Hour, Rate: decimal.RequireFromString("0.05")}
	Weekly  = Interval{Name: "Weekly", Period: 7 * 24 * time.Hour, Rate: decimal.RequireFromString("0.20")}
	Monthly = Interval{Name: "Monthly", Period: 30 * 24 * time.Hour, Rate: decimal.RequireFromString("0.50")}
)

// ParseInterval accepts the interval name in any case. Empty means Daily.
func ParseInterval(s string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "daily":
		return Daily, nil
	case "weekly":
		return Weekly, nil
	case "monthly":
		return Monthly, nil
	}
	return Interval{}, fmt.Errorf("unknown interval %q (want daily, weekly or monthly)", s)
}

// Step applies one period of growth to v, rounded to cents.
func (iv Interval) Step(v decimal.Decimal) decimal.Decimal {
	return v.Mul(decimal.NewFromInt(1).Add(iv.Rate)).Round(2)
}

func (iv Interval) String() string { return iv.Name }
