package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjannette/cryptovest-backend/internal/models"
	"github.com/shopspring/decimal"
)

type mockSource struct {
	calls  atomic.Int32
	quotes []models.CoinPrice
	err    error
}

func (m *mockSource) GetPrices(_ context.Context) ([]models.CoinPrice, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.quotes, nil
}

type mockStore struct {
	mu       sync.Mutex
	recorded [][]models.CoinPrice
	latest   []models.CoinPrice
}

func (m *mockStore) Record(_ context.Context, q []models.CoinPrice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, q)
	return nil
}

func (m *mockStore) Latest(_ context.Context) ([]models.CoinPrice, error) {
	return m.latest, nil
}

func (m *mockStore) Prune(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func quote(coin models.Symbol, usd string) models.CoinPrice {
	return models.CoinPrice{Coin: coin, USD: decimal.RequireFromString(usd), Source: "test"}
}

func priceOf(quotes []models.CoinPrice, coin models.Symbol) string {
	for _, q := range quotes {
		if q.Coin == coin {
			return q.USD.String()
		}
	}
	return ""
}

func TestPriceRefresher_FetchNowRecordsAndCaches(t *testing.T) {
	src := &mockSource{quotes: []models.CoinPrice{quote(models.BTC, "65000"), quote(models.ETH, "3200")}}
	store := &mockStore{}
	var updated atomic.Bool
	r := NewPriceRefresher(src, store, PriceRefresherConfig{OnUpdate: func([]models.CoinPrice) { updated.Store(true) }})

	if err := r.FetchNow(context.Background()); err != nil {
		t.Fatalf("FetchNow: %v", err)
	}
	if len(store.recorded) != 1 {
		t.Fatalf("expected one recorded snapshot, got %d", len(store.recorded))
	}
	if !updated.Load() {
		t.Fatal("OnUpdate was not called")
	}
	if got := priceOf(r.Prices(context.Background()), models.BTC); got != "65000" {
		t.Fatalf("expected cached BTC 65000, got %s", got)
	}
}

func TestPriceRefresher_FailureKeepsSnapshot(t *testing.T) {
	src := &mockSource{quotes: []models.CoinPrice{quote(models.BTC, "65000")}}
	r := NewPriceRefresher(src, nil, PriceRefresherConfig{})
	if err := r.FetchNow(context.Background()); err != nil {
		t.Fatalf("FetchNow: %v", err)
	}

	src.err = fmt.Errorf("rate limited")
	if err := r.FetchNow(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	if got := priceOf(r.Prices(context.Background()), models.BTC); got != "65000" {
		t.Fatalf("failed fetch should keep the last snapshot, got %s", got)
	}
}

func TestPriceRefresher_FallsBackToRecordedThenStatic(t *testing.T) {
	src := &mockSource{err: fmt.Errorf("down")}
	store := &mockStore{latest: []models.CoinPrice{quote(models.ETH, "2999")}}
	r := NewPriceRefresher(src, store, PriceRefresherConfig{})

	prices := r.Prices(context.Background())
	if got := priceOf(prices, models.ETH); got != "2999" {
		t.Fatalf("expected recorded ETH 2999, got %s", got)
	}
	if got := priceOf(prices, models.BTC); got != "30000" {
		t.Fatalf("expected fallback BTC 30000, got %s", got)
	}

	bare := NewPriceRefresher(src, nil, PriceRefresherConfig{})
	if got := priceOf(bare.Prices(context.Background()), models.SOL); got != "30" {
		t.Fatalf("expected fallback SOL 30, got %s", got)
	}
}

func TestPriceRefresher_StartStop(t *testing.T) {
	src := &mockSource{quotes: []models.CoinPrice{quote(models.BTC, "1")}}
	r := NewPriceRefresher(src, nil, PriceRefresherConfig{Interval: 10 * time.Millisecond})
	r.Start()
	r.Start()
	if !r.Running() {
		t.Fatal("expected running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for src.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()
	if src.calls.Load() < 3 {
		t.Fatalf("expected repeated fetches, got %d", src.calls.Load())
	}
	if r.Running() {
		t.Fatal("expected stopped")
	}
}
