package growth

import (
	"sync"
	"time"

	"github.com/kjannette/cryptovest-backend/internal/logging"
	"github.com/kjannette/cryptovest-backend/internal/models"
	"github.com/shopspring/decimal"
)

var log = logging.For("growth")

// EmptyMessage is reported when there is nothing to project.
const EmptyMessage = "No successful investments yet to show growth."

// Tracked is one approved investment the projector compounds.
type Tracked struct {
	InvestmentID int64           `json:"investment_id"`
	Coin         models.Symbol   `json:"coin"`
	Principal    decimal.Decimal `json:"principal"`
}

// Point holds one value per tracked investment, in Tracked order.
type Point struct {
	Time   time.Time         `json:"time"`
	Values []decimal.Decimal `json:"values"`
}

type Snapshot struct {
	Interval string    `json:"interval"`
	Tracked  []Tracked `json:"tracked"`
	Points   []Point   `json:"points"`
	Empty    bool      `json:"empty"`
	Message  string    `json:"message,omitempty"`
}

type ProjectorOptions struct {
	Now    func() time.Time
	OnTick func(Snapshot)
}

// Projector simulates compounding for a fixed set of investments. The
// series is illustrative and never persisted.
type Projector struct {
	opts ProjectorOptions

	mu       sync.Mutex
	interval Interval
	tracked  []Tracked
	points   []Point
	running  bool
	stopCh   chan struct{}
	done     chan struct{}
}

func NewProjector(opts ProjectorOptions) *Projector {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Projector{opts: opts, interval: Daily}
}

// Seed stops any running timer and resets the series to a single point
// holding each approved investment's principal. Pending investments are
// ignored.
func (p *Projector) Seed(investments []models.LedgerEntry, interval Interval) {
	p.Stop()

	tracked := make([]Tracked, 0, len(investments))
	values := make([]decimal.Decimal, 0, len(investments))
	for _, inv := range investments {
		if !inv.IsSuccess() {
			continue
		}
		tracked = append(tracked, Tracked{InvestmentID: inv.ID, Coin: inv.Coin, Principal: inv.Amount})
		values = append(values, inv.Amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = interval
	p.tracked = tracked
	p.points = nil
	if len(tracked) > 0 {
		p.points = []Point{{Time: p.opts.Now(), Values: values}}
	}
}

// Tick compounds every value once and appends the new point. It is a
// no-op when nothing is tracked.
func (p *Projector) Tick() {
	p.mu.Lock()
	if len(p.points) == 0 {
		p.mu.Unlock()
		return
	}
	last := p.points[len(p.points)-1]
	next := make([]decimal.Decimal, len(last.Values))
	for i, v := range last.Values {
		next[i] = p.interval.Step(v)
	}
	p.points = append(p.points, Point{Time: p.opts.Now(), Values: next})
	onTick := p.opts.OnTick
	p.mu.Unlock()

	if onTick != nil {
		onTick(p.Snapshot())
	}
}

// Start runs Tick once per interval period until Stop. With nothing
// tracked no timer is started.
func (p *Projector) Start() {
	p.mu.Lock()
	if p.running || len(p.tracked) == 0 {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	stopCh, done, period := p.stopCh, p.done, p.interval.Period
	name, n := p.interval.Name, len(p.tracked)
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				p.Tick()
			}
		}
	}()

	log.WithField("interval", name).Debugf("projector started for %d investments", n)
}

// Stop halts the timer and waits for the ticking goroutine to exit.
func (p *Projector) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.running = false
	done := p.done
	p.mu.Unlock()
	<-done
}

func (p *Projector) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Snapshot returns a copy of the current series.
func (p *Projector) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		Interval: p.interval.Name,
		Tracked:  append([]Tracked(nil), p.tracked...),
		Points:   make([]Point, len(p.points)),
	}
	for i, pt := range p.points {
		s.Points[i] = Point{Time: pt.Time, Values: append([]decimal.Decimal(nil), pt.Values...)}
	}
	if len(p.tracked) == 0 {
		s.Empty = true
		s.Message = EmptyMessage
	}
	return s
}
