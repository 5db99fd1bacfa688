package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kjannette/cryptovest-backend/internal/external"
	"github.com/kjannette/cryptovest-backend/internal/logging"
	"github.com/kjannette/cryptovest-backend/internal/models"
)

var log = logging.For("scheduler")

// PriceSource fetches live quotes.
type PriceSource interface {
	GetPrices(ctx context.Context) ([]models.CoinPrice, error)
}

// PriceStore persists quotes and serves the last recorded set.
type PriceStore interface {
	Record(ctx context.Context, quotes []models.CoinPrice) error
	Latest(ctx context.Context) ([]models.CoinPrice, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type PriceRefresherConfig struct {
	Interval  time.Duration // e.g. 30*time.Second
	Retention time.Duration // snapshots older than this are pruned
	OnUpdate  func([]models.CoinPrice)
}

// PriceRefresher keeps an in-memory price snapshot fresh. Reads never block
// on the network: they see the last good snapshot, then the last recorded
// one, then the static fallback.
type PriceRefresher struct {
	source PriceSource
	store  PriceStore
	cfg    PriceRefresherConfig

	snapMu   sync.RWMutex
	snapshot []models.CoinPrice

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewPriceRefresher(source PriceSource, store PriceStore, cfg PriceRefresherConfig) *PriceRefresher {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	return &PriceRefresher{source: source, store: store, cfg: cfg}
}

func (s *PriceRefresher) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Warn("price refresher already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	// Initial fetch on startup
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.FetchNow(ctx); err != nil {
			log.WithError(err).Warn("initial price fetch failed")
		}
	}()

	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := s.FetchNow(ctx); err != nil {
					log.WithError(err).Warn("price fetch failed")
				}
				cancel()
			}
		}
	}()

	log.Infof("price refresher started (every %s)", s.cfg.Interval)
}

func (s *PriceRefresher) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
	log.Info("price refresher stopped")
}

func (s *PriceRefresher) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// FetchNow fetches live quotes, stores them and swaps the snapshot. On
// failure the snapshot is left as is.
func (s *PriceRefresher) FetchNow(ctx context.Context) error {
	quotes, err := s.source.GetPrices(ctx)
	if err != nil {
		return fmt.Errorf("fetch prices: %w", err)
	}

	s.snapMu.Lock()
	s.snapshot = quotes
	s.snapMu.Unlock()

	if s.store != nil {
		if err := s.store.Record(ctx, quotes); err != nil {
			log.WithError(err).Warn("could not record prices")
		}
		if n, err := s.store.Prune(ctx, time.Now().Add(-s.cfg.Retention)); err == nil && n > 0 {
			log.Debugf("pruned %d old price snapshots", n)
		}
	}

	if s.cfg.OnUpdate != nil {
		s.cfg.OnUpdate(quotes)
	}
	return nil
}

// Prices returns the freshest quotes available without a network call.
func (s *PriceRefresher) Prices(ctx context.Context) []models.CoinPrice {
	s.snapMu.RLock()
	snap := s.snapshot
	s.snapMu.RUnlock()
	if len(snap) > 0 {
		return append([]models.CoinPrice(nil), snap...)
	}

	if s.store != nil {
		recorded, err := s.store.Latest(ctx)
		if err != nil {
			log.WithError(err).Warn("could not load recorded prices")
		} else if len(recorded) > 0 {
			return fillMissing(recorded)
		}
	}
	return external.Fallback()
}

// fillMissing tops up a partial recorded set with fallback quotes.
func fillMissing(quotes []models.CoinPrice) []models.CoinPrice {
	have := make(map[models.Symbol]models.CoinPrice, len(quotes))
	for _, q := range quotes {
		have[q.Coin] = q
	}
	out := make([]models.CoinPrice, 0, len(models.Symbols))
	for _, fb := range external.Fallback() {
		if q, ok := have[fb.Coin]; ok {
			out = append(out, q)
			continue
		}
		out = append(out, fb)
	}
	return out
}
