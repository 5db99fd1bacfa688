package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kjannette/cryptovest-backend/internal/activity"
	"github.com/kjannette/cryptovest-backend/internal/alerts"
	"github.com/kjannette/cryptovest-backend/internal/dashboard"
	"github.com/kjannette/cryptovest-backend/internal/growth"
	"github.com/kjannette/cryptovest-backend/internal/ledger"
	"github.com/kjannette/cryptovest-backend/internal/logging"
	"github.com/kjannette/cryptovest-backend/internal/metrics"
	"github.com/kjannette/cryptovest-backend/internal/models"
	"github.com/kjannette/cryptovest-backend/internal/session"
)

var log = logging.For("api")

const (
	maxQueryLimit = 1000
	maxBodyBytes  = 1 << 20
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type SessionService interface {
	Authenticate(ctx context.Context, token string) (*session.Session, error)
	SignUp(ctx context.Context, in session.SignUpInput, ip string) (*session.SignUpResult, error)
	SignIn(ctx context.Context, email, password, ip string) (*session.Session, error)
	SignOut(ctx context.Context, s *session.Session) error
	RequestPasswordReset(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, s *session.Session, password, ip string) error
}

type ProfileStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	Update(ctx context.Context, id uuid.UUID, name, profilePic *string) (*models.Profile, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type LedgerStore interface {
	Create(ctx context.Context, kind models.LedgerKind, e *models.LedgerEntry) (*models.LedgerEntry, error)
	ListByUser(ctx context.Context, kind models.LedgerKind, userID uuid.UUID) ([]models.LedgerEntry, error)
	Approve(ctx context.Context, kind models.LedgerKind, id int64) (*models.LedgerEntry, error)
}

type WalletStore interface {
	List(ctx context.Context) ([]models.WalletAddress, error)
	Upsert(ctx context.Context, addrs []models.WalletAddress, updatedBy uuid.UUID) ([]models.WalletAddress, error)
}

type ActivityService interface {
	Log(ctx context.Context, userID uuid.UUID, event, description, ip string)
	Page(ctx context.Context, userID *uuid.UUID, p activity.Pagination) (*models.ActivityPage, error)
	Truncate(ctx context.Context) error
}

type PriceProvider interface {
	Prices(ctx context.Context) []models.CoinPrice
}

type AlertFeed interface {
	Recent() []alerts.Alert
}

type Notifier interface {
	SendAsync(msg string)
}

// AccountDeleter removes the auth user behind a profile.
type AccountDeleter interface {
	DeleteUser(ctx context.Context, userID string) error
}

// Deps are the services the API serves from. Alerts, Notifier and
// Accounts may be nil.
type Deps struct {
	DB        Pinger
	Sessions  SessionService
	Profiles  ProfileStore
	Ledger    LedgerStore
	Wallets   WalletStore
	Activity  ActivityService
	Prices    PriceProvider
	Growth    *growth.Registry
	Dashboard *dashboard.Dashboard
	Alerts    AlertFeed
	Notifier  Notifier
	Accounts  AccountDeleter
}

type Options struct {
	Port              int
	CORSAllowOrigin   string
	AuthRatePerMinute int
	// RequireConfirmed bounds withdrawals by approved deposits only.
	RequireConfirmed bool
}

type Server struct {
	Deps
	guard      *ledger.WithdrawalGuard
	authLimit  *ipLimiter
	handler    http.Handler
	httpServer *http.Server
}

func NewServer(deps Deps, opts Options) *Server {
	s := &Server{
		Deps:      deps,
		guard:     ledger.NewWithdrawalGuard(deps.Ledger, ledger.GuardOptions{RequireConfirmed: opts.RequireConfirmed}),
		authLimit: newIPLimiter(opts.AuthRatePerMinute),
	}

	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /v1/wallet-addresses", s.handleWalletAddresses)
	mux.HandleFunc("GET /v1/prices", s.handlePrices)
	mux.HandleFunc("GET /v1/alerts", s.handleAlerts)

	// Auth
	mux.Handle("POST /v1/auth/signup", s.rateLimit(http.HandlerFunc(s.handleSignUp)))
	mux.Handle("POST /v1/auth/login", s.rateLimit(http.HandlerFunc(s.handleLogin)))
	mux.Handle("GET /v1/auth/session", s.requireUser(s.handleGetSession))
	mux.Handle("DELETE /v1/auth/session", s.requireUser(s.handleSignOut))
	mux.Handle("POST /v1/auth/recover", s.rateLimit(http.HandlerFunc(s.handleRecover)))
	mux.Handle("PUT /v1/auth/password", s.requireUser(s.handleUpdatePassword))

	// Current user
	mux.Handle("GET /v1/me", s.requireUser(s.handleGetMe))
	mux.Handle("PATCH /v1/me", s.requireUser(s.handleUpdateMe))
	mux.Handle("DELETE /v1/me", s.requireUser(s.handleDeleteMe))
	mux.Handle("GET /v1/me/balances", s.requireUser(s.handleBalances))
	mux.Handle("GET /v1/me/investments", s.requireUser(s.handleListLedger(models.KindInvestment)))
	mux.Handle("POST /v1/me/investments", s.requireUser(s.handleCreateInvestment))
	mux.Handle("GET /v1/me/withdrawals", s.requireUser(s.handleListLedger(models.KindWithdrawal)))
	mux.Handle("POST /v1/me/withdrawals", s.requireUser(s.handleCreateWithdrawal))
	mux.Handle("GET /v1/me/transactions", s.requireUser(s.handleTransactions))
	mux.Handle("GET /v1/me/growth", s.requireUser(s.handleGrowth))
	mux.Handle("GET /v1/me/activity", s.requireUser(s.handleMyActivity))

	// Admin
	mux.Handle("GET /v1/admin/overview", s.requireAdmin(s.handleAdminOverview))
	mux.Handle("GET /v1/admin/users", s.requireAdmin(s.handleAdminUsers))
	mux.Handle("GET /v1/admin/investments", s.requireAdmin(s.handleAdminLedger(models.KindInvestment)))
	mux.Handle("GET /v1/admin/withdrawals", s.requireAdmin(s.handleAdminLedger(models.KindWithdrawal)))
	mux.Handle("GET /v1/admin/activity", s.requireAdmin(s.handleAdminActivity))
	mux.Handle("POST /v1/admin/investments/{id}/approve", s.requireAdmin(s.handleApprove(models.KindInvestment)))
	mux.Handle("POST /v1/admin/withdrawals/{id}/approve", s.requireAdmin(s.handleApprove(models.KindWithdrawal)))
	mux.Handle("DELETE /v1/admin/users/{id}", s.requireAdmin(s.handleAdminDeleteUser))
	mux.Handle("PUT /v1/admin/wallet-addresses", s.requireAdmin(s.handleUpsertWalletAddresses))
	mux.Handle("DELETE /v1/admin/activity", s.requireAdmin(s.handleTruncateActivity))
	mux.Handle("POST /v1/admin/reload", s.requireAdmin(s.handleAdminReload))

	s.handler = metrics.InstrumentHandler(corsMiddleware(mux, opts.CORSAllowOrigin))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return s
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	log.Infof("REST API server started on http://localhost%s", s.httpServer.Addr)
	log.Infof("Health check: http://localhost%s/health", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- request helpers ---

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	return nil
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
