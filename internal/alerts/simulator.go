package alerts

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/kjannette/cryptovest-backend/internal/logging"
	"github.com/kjannette/cryptovest-backend/internal/metrics"
	"github.com/shopspring/decimal"
)

var log = logging.For("alerts")

var Countries = []string{
	"Japan", "Canada", "Nigeria", "USA", "Brazil", "Germany", "India", "South Africa",
	"Italy", "France", "Russia", "Australia", "Mexico", "Turkey", "China", "UK",
}

var Coins = []string{"BTC", "ETH", "USDT", "SOL"}

type Kind string

const (
	Deposit  Kind = "deposit"
	Withdraw Kind = "withdraw"
)

// Alert is one simulated social-proof notice.
type Alert struct {
	Kind      Kind      `json:"kind"`
	Level     string    `json:"level"` // "info" for deposits, "warning" for withdrawals
	Country   string    `json:"country"`
	Coin      string    `json:"coin"`
	Amount    string    `json:"amount"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier delivers alert text somewhere outside the process.
type Notifier interface {
	SendAsync(msg string)
	Enabled() bool
}

type Config struct {
	Interval time.Duration
	// Keep is how many recent alerts Recent returns.
	Keep int
	// Rand drives every choice; nil uses a time-seeded source.
	Rand *rand.Rand
	Now  func() time.Time
}

type Simulator struct {
	notifier Notifier
	cfg      Config

	rngMu sync.Mutex

	recentMu sync.RWMutex
	recent   []Alert

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewSimulator(notifier Notifier, cfg Config) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 20
	}
	if cfg.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		cfg.Rand = rand.New(rand.NewPCG(seed, seed>>1))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Simulator{notifier: notifier, cfg: cfg}
}

// Generate builds one alert of the given kind without emitting it.
func (s *Simulator) Generate(kind Kind) Alert {
	s.rngMu.Lock()
	country := Countries[s.cfg.Rand.IntN(len(Countries))]
	coin := Coins[s.cfg.Rand.IntN(len(Coins))]
	amount := randomAmount(coin, s.cfg.Rand.Float64())
	s.rngMu.Unlock()

	a := Alert{
		Kind:      kind,
		Country:   country,
		Coin:      coin,
		Amount:    amount,
		CreatedAt: s.cfg.Now(),
	}
	if kind == Deposit {
		a.Level = "info"
		a.Message = "Someone from " + country + " just deposited " + amount + " " + coin
	} else {
		a.Level = "warning"
		a.Message = "Someone in " + country + " just withdrew " + amount + " " + coin
	}
	return a
}

// randomAmount maps r in [0,1) onto the coin's display range.
func randomAmount(coin string, r float64) string {
	f := decimal.NewFromFloat(r)
	switch coin {
	case "BTC":
		return f.Mul(decimal.NewFromInt(10)).Add(decimal.NewFromInt(1)).StringFixed(2)
	case "ETH":
		return f.Mul(decimal.NewFromInt(100)).Add(decimal.NewFromInt(1)).StringFixed(2)
	case "USDT":
		return f.Mul(decimal.NewFromInt(10000)).Add(decimal.NewFromInt(100)).StringFixed(0)
	default:
		return f.Mul(decimal.NewFromInt(5000)).Add(decimal.NewFromInt(50)).StringFixed(0)
	}
}

// Emit picks deposit or withdraw at even odds, records the alert and
// forwards it to the notifier.
func (s *Simulator) Emit() Alert {
	s.rngMu.Lock()
	kind := Withdraw
	if s.cfg.Rand.Float64() > 0.5 {
		kind = Deposit
	}
	s.rngMu.Unlock()

	a := s.Generate(kind)

	s.recentMu.Lock()
	s.recent = append(s.recent, a)
	if len(s.recent) > s.cfg.Keep {
		s.recent = s.recent[len(s.recent)-s.cfg.Keep:]
	}
	s.recentMu.Unlock()

	metrics.RecordAlert(string(a.Kind), a.Coin)
	if s.notifier != nil && s.notifier.Enabled() {
		s.notifier.SendAsync(a.Message)
	}
	log.WithField("kind", a.Kind).Debug(a.Message)
	return a
}

// Recent returns the latest alerts, newest first.
func (s *Simulator) Recent() []Alert {
	s.recentMu.RLock()
	defer s.recentMu.RUnlock()
	out := make([]Alert, len(s.recent))
	for i, a := range s.recent {
		out[len(s.recent)-1-i] = a
	}
	return out
}

func (s *Simulator) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Warn("alert simulator already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				s.Emit()
			}
		}
	}()

	log.Infof("alert simulator started (every %s)", s.cfg.Interval)
}

func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
	log.Info("alert simulator stopped")
}

func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
