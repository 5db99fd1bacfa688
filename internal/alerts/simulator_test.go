package alerts

import (
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type recordingNotifier struct {
	mu      sync.Mutex
	enabled bool
	msgs    []string
}

func (r *recordingNotifier) SendAsync(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recordingNotifier) Enabled() bool { return r.enabled }

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func newTestSimulator(n Notifier) *Simulator {
	return NewSimulator(n, Config{
		Rand: rand.New(rand.NewPCG(1, 2)),
		Keep: 3,
		Now:  func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
}

// --- Amounts ---

func TestRandomAmount_Bounds(t *testing.T) {
	cases := []struct {
		coin       string
		lo, hi     float64
		wantPlaces int
	}{
		{"BTC", 1, 11, 2},
		{"ETH", 1, 101, 2},
		{"USDT", 100, 10100, 0},
		{"SOL", 50, 5050, 0},
	}
	for _, c := range cases {
		for _, r := range []float64{0, 0.5, 0.999999} {
			s := randomAmount(c.coin, r)
			d, err := decimal.NewFromString(s)
			if err != nil {
				t.Fatalf("%s: bad amount %q", c.coin, s)
			}
			f := d.InexactFloat64()
			if f < c.lo || f > c.hi {
				t.Errorf("%s r=%v: %s outside [%v, %v]", c.coin, r, s, c.lo, c.hi)
			}
			places := 0
			if i := strings.IndexByte(s, '.'); i >= 0 {
				places = len(s) - i - 1
			}
			if places != c.wantPlaces {
				t.Errorf("%s: %q has %d decimals, want %d", c.coin, s, places, c.wantPlaces)
			}
		}
	}
	if got := randomAmount("BTC", 0.5); got != "6.00" {
		t.Errorf("BTC midpoint = %s, want 6.00", got)
	}
}

// --- Messages ---

func TestGenerate_MessageFormats(t *testing.T) {
	s := newTestSimulator(nil)

	dep := s.Generate(Deposit)
	wantDep := "Someone from " + dep.Country + " just deposited " + dep.Amount + " " + dep.Coin
	if dep.Message != wantDep || dep.Level != "info" {
		t.Errorf("deposit = %+v, want message %q", dep, wantDep)
	}

	wd := s.Generate(Withdraw)
	wantWd := "Someone in " + wd.Country + " just withdrew " + wd.Amount + " " + wd.Coin
	if wd.Message != wantWd || wd.Level != "warning" {
		t.Errorf("withdraw = %+v, want message %q", wd, wantWd)
	}

	if !slices.Contains(Countries, dep.Country) || !slices.Contains(Coins, dep.Coin) {
		t.Errorf("unexpected country/coin: %s/%s", dep.Country, dep.Coin)
	}
}

// --- Emit ---

func TestEmit_NotifiesAndKeepsRecent(t *testing.T) {
	n := &recordingNotifier{enabled: true}
	s := newTestSimulator(n)

	var last Alert
	for range 5 {
		last = s.Emit()
	}
	if n.count() != 5 {
		t.Errorf("notifier got %d messages, want 5", n.count())
	}
	recent := s.Recent()
	if len(recent) != 3 {
		t.Fatalf("Recent kept %d, want 3", len(recent))
	}
	if recent[0] != last {
		t.Errorf("Recent()[0] = %+v, want latest %+v", recent[0], last)
	}
}

func TestEmit_DisabledNotifierSkipped(t *testing.T) {
	n := &recordingNotifier{enabled: false}
	s := newTestSimulator(n)
	s.Emit()
	if n.count() != 0 {
		t.Errorf("disabled notifier should not receive messages, got %d", n.count())
	}
}

func TestEmit_BothKindsOccur(t *testing.T) {
	s := newTestSimulator(nil)
	seen := map[Kind]bool{}
	for range 50 {
		seen[s.Emit().Kind] = true
	}
	if !seen[Deposit] || !seen[Withdraw] {
		t.Errorf("expected both kinds in 50 draws, got %v", seen)
	}
}

// --- Lifecycle ---

func TestStartStop(t *testing.T) {
	n := &recordingNotifier{enabled: true}
	s := NewSimulator(n, Config{Interval: 10 * time.Millisecond, Rand: rand.New(rand.NewPCG(3, 4))})

	s.Start()
	s.Start()
	if !s.Running() {
		t.Fatal("expected running")
	}
	deadline := time.Now().Add(2 * time.Second)
	for n.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	s.Stop()
	if s.Running() {
		t.Error("expected stopped")
	}
	if n.count() == 0 {
		t.Error("expected at least one alert while running")
	}
	t.Logf("emitted %d alerts", n.count())
}
