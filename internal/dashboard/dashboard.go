package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kjannette/cryptovest-backend/internal/ethereum"
	"github.com/kjannette/cryptovest-backend/internal/ledger"
	"github.com/kjannette/cryptovest-backend/internal/logging"
	"github.com/kjannette/cryptovest-backend/internal/metrics"
	"github.com/kjannette/cryptovest-backend/internal/models"
	"github.com/kjannette/cryptovest-backend/internal/realtime"
	"github.com/shopspring/decimal"
)

var log = logging.For("dashboard")

// ActivityWindow is how many recent activity rows the admin view keeps.
const ActivityWindow = 200

type ProfileLister interface {
	List(ctx context.Context) ([]models.Profile, error)
}

type LedgerLister interface {
	ListAll(ctx context.Context, kind models.LedgerKind) ([]models.LedgerEntry, error)
}

type WalletLister interface {
	List(ctx context.Context) ([]models.WalletAddress, error)
}

type ActivityFeed interface {
	Latest(ctx context.Context, limit int) ([]models.UserActivity, error)
}

// ChainReader reports on-chain balances for deposit addresses.
type ChainReader interface {
	DepositBalances(ctx context.Context, addrs []models.WalletAddress) []ethereum.OnChainBalance
}

type Sources struct {
	Profiles ProfileLister
	Ledger   LedgerLister
	Wallets  WalletLister
	Activity ActivityFeed
	// Chain is optional.
	Chain ChainReader
}

// Dashboard is the admin's live view: every book is seeded by Load and
// then kept current by Apply.
type Dashboard struct {
	src Sources

	Users       *ledger.Book[uuid.UUID, models.Profile]
	Investments *ledger.Book[int64, models.LedgerEntry]
	Withdrawals *ledger.Book[int64, models.LedgerEntry]
	Activity    *ledger.Book[int64, models.UserActivity]

	mu       sync.RWMutex
	wallets  []models.WalletAddress
	loadedAt time.Time
}

func New(src Sources) *Dashboard {
	return &Dashboard{
		src: src,
		Users: ledger.NewBookFunc[uuid.UUID, models.Profile](func(a, b uuid.UUID) bool {
			return a.String() < b.String()
		}),
		Investments: ledger.NewBook[int64, models.LedgerEntry](),
		Withdrawals: ledger.NewBook[int64, models.LedgerEntry](),
		Activity:    ledger.NewBook[int64, models.UserActivity](),
	}
}

// Load refetches everything. Books are only replaced once every read
// succeeded, so a failed reload leaves the previous view intact.
func (d *Dashboard) Load(ctx context.Context) error {
	profiles, err := d.src.Profiles.List(ctx)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	investments, err := d.src.Ledger.ListAll(ctx, models.KindInvestment)
	if err != nil {
		return fmt.Errorf("load investments: %w", err)
	}
	withdrawals, err := d.src.Ledger.ListAll(ctx, models.KindWithdrawal)
	if err != nil {
		return fmt.Errorf("load withdrawals: %w", err)
	}
	wallets, err := d.src.Wallets.List(ctx)
	if err != nil {
		return fmt.Errorf("load wallet addresses: %w", err)
	}
	activity, err := d.src.Activity.Latest(ctx, ActivityWindow)
	if err != nil {
		return fmt.Errorf("load activity: %w", err)
	}

	d.Users.Replace(profiles)
	d.Investments.Replace(investments)
	d.Withdrawals.Replace(withdrawals)
	d.Activity.Replace(activity)

	d.mu.Lock()
	d.wallets = wallets
	d.loadedAt = time.Now()
	d.mu.Unlock()

	log.WithField("users", len(profiles)).
		WithField("investments", len(investments)).
		WithField("withdrawals", len(withdrawals)).
		WithField("activity", len(activity)).
		Info("Dashboard loaded")
	return nil
}

// Apply merges one realtime change. Replaying the same change is a no-op.
func (d *Dashboard) Apply(ch realtime.Change) error {
	metrics.RecordRealtimeChange(ch.Table, string(ch.Type))

	switch ch.Table {
	case "investments":
		return applyTo(d.Investments, ch, oldInt64)
	case "withdrawals":
		return applyTo(d.Withdrawals, ch, oldInt64)
	case "user_activity":
		if err := applyTo(d.Activity, ch, oldInt64); err != nil {
			return err
		}
		d.trimActivity()
		return nil
	case "profiles":
		return applyTo(d.Users, ch, oldUUID)
	}
	log.WithField("table", ch.Table).Debug("Ignoring change for unknown table")
	return nil
}

func applyTo[K comparable, R ledger.Row[K]](b *ledger.Book[K, R], ch realtime.Change, oldKey func(realtime.Change) (K, bool)) error {
	if ch.Type == realtime.Delete {
		key, ok := oldKey(ch)
		if !ok {
			return fmt.Errorf("%s delete without id", ch.Table)
		}
		b.Remove(key)
		return nil
	}
	var row R
	if err := ch.Decode(&row); err != nil {
		return fmt.Errorf("decode %s %s: %w", ch.Type, ch.Table, err)
	}
	b.Merge(row)
	return nil
}

func oldInt64(ch realtime.Change) (int64, bool) {
	id := ch.OldID()
	if !id.Exists() {
		return 0, false
	}
	return id.Int(), true
}

func oldUUID(ch realtime.Change) (uuid.UUID, bool) {
	id, err := uuid.Parse(ch.OldID().String())
	return id, err == nil
}

func (d *Dashboard) trimActivity() {
	if d.Activity.Len() <= ActivityWindow {
		return
	}
	rows := d.Activity.Sorted()
	for _, r := range rows[ActivityWindow:] {
		d.Activity.Remove(r.Key())
	}
}

// RecordActivity merges a row this process just wrote, keeping the window
// current when the realtime feed is off or lagging.
func (d *Dashboard) RecordActivity(a models.UserActivity) {
	d.Activity.Merge(a)
	d.trimActivity()
}

// RecordEntry merges a ledger row this process just created or approved
// so the view does not wait for the realtime echo.
func (d *Dashboard) RecordEntry(kind models.LedgerKind, e models.LedgerEntry) {
	switch kind {
	case models.KindInvestment:
		d.Investments.Merge(e)
	case models.KindWithdrawal:
		d.Withdrawals.Merge(e)
	}
}

func (d *Dashboard) RecordProfile(p models.Profile) {
	d.Users.Merge(p)
}

// RemoveUser drops a deleted account along with the rows the database
// cascade-deleted with it.
func (d *Dashboard) RemoveUser(id uuid.UUID) {
	d.Users.Remove(id)
	ownedEntry := func(e models.LedgerEntry) bool { return e.UserID == id }
	inv := d.Investments.RemoveFunc(ownedEntry)
	wd := d.Withdrawals.RemoveFunc(ownedEntry)
	act := d.Activity.RemoveFunc(func(a models.UserActivity) bool { return a.UserID == id })
	log.WithField("user_id", id).Debugf("removed user with %d investments, %d withdrawals, %d activity rows", inv, wd, act)
}

// Resync reloads after the realtime feed reconnects, since changes made
// while it was down were never pushed.
func (d *Dashboard) Resync(ctx context.Context) {
	if err := d.Load(ctx); err != nil {
		log.WithError(err).Warn("Dashboard resync failed")
	}
}

func (d *Dashboard) SetWallets(addrs []models.WalletAddress) {
	d.mu.Lock()
	d.wallets = addrs
	d.mu.Unlock()
}

func (d *Dashboard) Wallets() []models.WalletAddress {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.WalletAddress(nil), d.wallets...)
}

type Overview struct {
	TotalUsers          int                       `json:"totalUsers"`
	PendingInvestments  int                       `json:"pendingInv"`
	PendingWithdrawals  int                       `json:"pendingWd"`
	TotalInvestmentsSum decimal.Decimal           `json:"totalInvestmentsSum"`
	Balances            ledger.Balances           `json:"balances"`
	OnChain             []ethereum.OnChainBalance `json:"onChain,omitempty"`
	LoadedAt            time.Time                 `json:"loadedAt"`
}

// Overview computes the admin summary from the current books. The
// investment sum spans every coin and status.
func (d *Dashboard) Overview(ctx context.Context) Overview {
	investments := d.Investments.Sorted()
	withdrawals := d.Withdrawals.Sorted()

	d.mu.RLock()
	loadedAt := d.loadedAt
	d.mu.RUnlock()

	ov := Overview{
		TotalUsers:          d.Users.Len(),
		PendingInvestments:  ledger.CountStatus(investments, models.StatusPending),
		PendingWithdrawals:  ledger.CountStatus(withdrawals, models.StatusPending),
		TotalInvestmentsSum: ledger.Sum(investments),
		Balances:            ledger.Aggregate(investments, withdrawals),
		LoadedAt:            loadedAt,
	}
	if d.src.Chain != nil {
		ov.OnChain = d.src.Chain.DepositBalances(ctx, d.Wallets())
	}
	return ov
}
