package api

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kjannette/cryptovest-backend/internal/activity"
	"github.com/kjannette/cryptovest-backend/internal/alerts"
	"github.com/kjannette/cryptovest-backend/internal/dashboard"
	"github.com/kjannette/cryptovest-backend/internal/growth"
	"github.com/kjannette/cryptovest-backend/internal/models"
	"github.com/kjannette/cryptovest-backend/internal/repository"
	"github.com/kjannette/cryptovest-backend/internal/session"
)

var (
	userID  = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	adminID = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")
)

const (
	userToken  = "user-token"
	adminToken = "admin-token"
)

// --- sessions ---

type fakeSessions struct {
	signInErr error
	signUpErr error
	signedOut []uuid.UUID
	resets    []string
	passwords map[uuid.UUID]string
}

func (f *fakeSessions) Authenticate(_ context.Context, token string) (*session.Session, error) {
	switch token {
	case userToken:
		return &session.Session{UserID: userID, Email: "user@example.com", AccessToken: token}, nil
	case adminToken:
		return &session.Session{UserID: adminID, Email: "admin@example.com", IsAdmin: true, AccessToken: token}, nil
	}
	return nil, session.ErrUnauthenticated
}

func (f *fakeSessions) SignUp(_ context.Context, in session.SignUpInput, _ string) (*session.SignUpResult, error) {
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	if err := session.ValidateSignUp(in); err != nil {
		return nil, err
	}
	return &session.SignUpResult{Profile: &models.Profile{ID: uuid.New(), Name: in.Name, Email: in.Email}, ConfirmationRequired: true}, nil
}

func (f *fakeSessions) SignIn(_ context.Context, email, _ string, _ string) (*session.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return &session.Session{UserID: userID, Email: email, AccessToken: userToken}, nil
}

func (f *fakeSessions) SignOut(_ context.Context, s *session.Session) error {
	f.signedOut = append(f.signedOut, s.UserID)
	return nil
}

func (f *fakeSessions) RequestPasswordReset(_ context.Context, email string) error {
	if !strings.Contains(email, "@") {
		return &session.ValidationError{Field: "email", Message: "Enter a valid email."}
	}
	f.resets = append(f.resets, email)
	return nil
}

func (f *fakeSessions) UpdatePassword(_ context.Context, s *session.Session, password, _ string) error {
	if len(password) < 6 {
		return &session.ValidationError{Field: "password", Message: "Password must be at least 6 characters."}
	}
	if f.passwords == nil {
		f.passwords = map[uuid.UUID]string{}
	}
	f.passwords[s.UserID] = password
	return nil
}

// --- profiles ---

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*models.Profile
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: map[uuid.UUID]*models.Profile{
		userID:  {ID: userID, Name: "User", Email: "user@example.com"},
		adminID: {ID: adminID, Name: "Admin", Email: "admin@example.com", IsAdmin: true},
	}}
}

func (f *fakeProfiles) Get(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) Update(_ context.Context, id uuid.UUID, name, pic *string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, nil
	}
	if name != nil {
		p.Name = *name
	}
	if pic != nil {
		p.ProfilePic = pic
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.profiles, id)
	return nil
}

func (f *fakeProfiles) List(context.Context) ([]models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Profile, 0, len(f.profiles))
	for _, p := range f.profiles {
		out = append(out, *p)
	}
	return out, nil
}

// --- ledger ---

type fakeLedger struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[models.LedgerKind][]models.LedgerEntry
	creates int
	lists   int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: map[models.LedgerKind][]models.LedgerEntry{}}
}

func (f *fakeLedger) seed(kind models.LedgerKind, e models.LedgerEntry) models.LedgerEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	e.ID = f.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(e.ID) * time.Hour)
	}
	f.rows[kind] = append(f.rows[kind], e)
	return e
}

func (f *fakeLedger) Create(_ context.Context, kind models.LedgerKind, e *models.LedgerEntry) (*models.LedgerEntry, error) {
	f.mu.Lock()
	f.creates++
	f.mu.Unlock()
	row := *e
	row.Status = models.StatusPending
	row.CreatedAt = time.Now()
	out := f.seed(kind, row)
	return &out, nil
}

func (f *fakeLedger) ListByUser(_ context.Context, kind models.LedgerKind, uid uuid.UUID) ([]models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	out := []models.LedgerEntry{}
	for _, e := range f.rows[kind] {
		if e.UserID == uid {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeLedger) ListAll(_ context.Context, kind models.LedgerKind) ([]models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.LedgerEntry(nil), f.rows[kind]...), nil
}

func (f *fakeLedger) Approve(_ context.Context, kind models.LedgerKind, id int64) (*models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.rows[kind] {
		if e.ID == id {
			f.rows[kind][i].Status = models.StatusSuccess
			out := f.rows[kind][i]
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

// --- wallets ---

type fakeWallets struct {
	mu    sync.Mutex
	addrs []models.WalletAddress
}

func (f *fakeWallets) List(context.Context) ([]models.WalletAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.WalletAddress{}, f.addrs...), nil
}

func (f *fakeWallets) Upsert(_ context.Context, addrs []models.WalletAddress, by uuid.UUID) ([]models.WalletAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range addrs {
		a.UpdatedBy = &by
		replaced := false
		for i, cur := range f.addrs {
			if cur.Coin == a.Coin && cur.Network == a.Network {
				f.addrs[i] = a
				replaced = true
			}
		}
		if !replaced {
			f.addrs = append(f.addrs, a)
		}
	}
	return addrs, nil
}

// --- activity ---

type fakeActivity struct {
	mu        sync.Mutex
	events    []string
	lastUser  *uuid.UUID
	truncated bool
}

func (f *fakeActivity) Log(_ context.Context, _ uuid.UUID, event, _, _ string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fakeActivity) Latest(context.Context, int) ([]models.UserActivity, error) {
	return []models.UserActivity{}, nil
}

func (f *fakeActivity) Page(_ context.Context, uid *uuid.UUID, p activity.Pagination) (*models.ActivityPage, error) {
	f.mu.Lock()
	f.lastUser = uid
	f.mu.Unlock()
	return &models.ActivityPage{Activities: []models.UserActivity{}, TotalPages: 1, CurrentPage: p.Page}, nil
}

func (f *fakeActivity) Truncate(context.Context) error {
	f.truncated = true
	return nil
}

// --- misc ---

type fakePrices struct{}

func (fakePrices) Prices(context.Context) []models.CoinPrice {
	return []models.CoinPrice{{Coin: models.BTC, Source: "fallback"}}
}

type fakeAlerts struct{ alerts []alerts.Alert }

func (f fakeAlerts) Recent() []alerts.Alert { return f.alerts }

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeNotifier) SendAsync(msg string) {
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type testEnv struct {
	srv      *Server
	sessions *fakeSessions
	profiles *fakeProfiles
	ledger   *fakeLedger
	wallets  *fakeWallets
	activity *fakeActivity
	notifier *fakeNotifier
}

func newTestEnv(opts Options) *testEnv {
	env := &testEnv{
		sessions: &fakeSessions{},
		profiles: newFakeProfiles(),
		ledger:   newFakeLedger(),
		wallets:  &fakeWallets{},
		activity: &fakeActivity{},
		notifier: &fakeNotifier{},
	}
	dash := dashboard.New(dashboard.Sources{
		Profiles: env.profiles,
		Ledger:   env.ledger,
		Wallets:  env.wallets,
		Activity: env.activity,
	})
	env.srv = NewServer(Deps{
		DB:        fakePinger{},
		Sessions:  env.sessions,
		Profiles:  env.profiles,
		Ledger:    env.ledger,
		Wallets:   env.wallets,
		Activity:  env.activity,
		Prices:    fakePrices{},
		Growth:    growth.NewRegistry(growth.ProjectorOptions{}),
		Dashboard: dash,
		Alerts:    fakeAlerts{},
		Notifier:  env.notifier,
	}, opts)
	return env
}
