package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kjannette/cryptovest-backend/internal/activity"
	"github.com/kjannette/cryptovest-backend/internal/alerts"
	"github.com/kjannette/cryptovest-backend/internal/api"
	"github.com/kjannette/cryptovest-backend/internal/config"
	"github.com/kjannette/cryptovest-backend/internal/dashboard"
	"github.com/kjannette/cryptovest-backend/internal/db"
	"github.com/kjannette/cryptovest-backend/internal/ethereum"
	"github.com/kjannette/cryptovest-backend/internal/external"
	"github.com/kjannette/cryptovest-backend/internal/growth"
	"github.com/kjannette/cryptovest-backend/internal/logging"
	"github.com/kjannette/cryptovest-backend/internal/metrics"
	"github.com/kjannette/cryptovest-backend/internal/models"
	"github.com/kjannette/cryptovest-backend/internal/notifications"
	"github.com/kjannette/cryptovest-backend/internal/realtime"
	"github.com/kjannette/cryptovest-backend/internal/repository"
	"github.com/kjannette/cryptovest-backend/internal/scheduler"
	"github.com/kjannette/cryptovest-backend/internal/session"
	"github.com/kjannette/cryptovest-backend/internal/supabase"
)

const banner = `
╔══════════════════════════════════════╗
║      CryptoVest Backend v0.1         ║
║                                      ║
╚══════════════════════════════════════╝
`

var log = logging.For("main")

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	log.Infof("Connecting to %s:%d/%s ...", cfg.DBHost, cfg.DBPort, cfg.DBName)
	pool, err := db.Connect(cfg.DSN())
	if err != nil {
		log.WithError(err).Fatal("Database connection failed")
	}
	defer func() {
		pool.Close()
		log.Info("Connection pool closed")
	}()

	if err := db.TestConnection(pool); err != nil {
		log.WithError(err).Fatal("Database test query failed")
	}
	if cfg.DBMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			log.WithError(err).Fatal("Schema migration failed")
		}
	}

	// Repos
	profileRepo := repository.NewProfileRepo(pool)
	ledgerRepo := repository.NewLedgerRepo(pool)
	walletRepo := repository.NewWalletAddressRepo(pool)
	activityRepo := repository.NewActivityRepo(pool)
	priceRepo := repository.NewPriceRepo(pool)

	// Supabase auth and notifications
	auth := supabase.New(supabase.Config{
		URL:        cfg.SupabaseURL,
		AnonKey:    cfg.SupabaseAnonKey,
		ServiceKey: cfg.SupabaseServiceKey,
	})
	notify := notifications.NewSender(cfg.WebhookURL, cfg.BotName)

	// Dashboard, optionally with on-chain balances
	sources := dashboard.Sources{
		Profiles: profileRepo,
		Ledger:   ledgerRepo,
		Wallets:  walletRepo,
		Activity: activityRepo,
	}
	var eth *ethereum.Client
	if cfg.EthereumAPIEndpoint != "" {
		eth, err = ethereum.NewClient(cfg.EthereumAPIEndpoint)
		if err != nil {
			log.WithError(err).Warn("Ethereum client unavailable, on-chain balances disabled")
		} else {
			sources.Chain = eth
			defer eth.Close()
		}
	}
	dash := dashboard.New(sources)
	loadCtx, cancelLoad := context.WithTimeout(ctx, 15*time.Second)
	if err := dash.Load(loadCtx); err != nil {
		log.WithError(err).Warn("Initial dashboard load failed")
	}
	cancelLoad()

	// Activity log
	activityLog := activity.NewLogger(activityRepo, external.NewGeoClient(""))
	activityLog.OnLog(dash.RecordActivity)

	// Sessions and growth projections
	projections := growth.NewRegistry(growth.ProjectorOptions{})
	sessions := session.NewManager(auth, profileRepo, activityLog, session.Options{
		JWTSecret:        cfg.SupabaseJWTSecret,
		ResetRedirectURL: cfg.PasswordResetURL,
		OnSignOut: func(userID uuid.UUID) {
			projections.Drop(userID)
			metrics.SetActiveProjections(projections.Len())
		},
	})

	// Prices
	refresher := scheduler.NewPriceRefresher(
		external.NewCoinGeckoClient(external.CoinGeckoOptions{}),
		priceRepo,
		scheduler.PriceRefresherConfig{
			Interval: time.Duration(cfg.PriceRefreshSeconds) * time.Second,
			OnUpdate: func(prices []models.CoinPrice) {
				log.WithField("coins", len(prices)).Debug("Prices refreshed")
			},
		},
	)
	refresher.Start()

	deps := api.Deps{
		DB:        pool,
		Sessions:  sessions,
		Profiles:  profileRepo,
		Ledger:    ledgerRepo,
		Wallets:   walletRepo,
		Activity:  activityLog,
		Prices:    refresher,
		Growth:    projections,
		Dashboard: dash,
		Notifier:  notify,
	}
	if cfg.SupabaseServiceKey != "" {
		deps.Accounts = auth
	}

	// Simulated alerts
	var sim *alerts.Simulator
	if cfg.AlertsEnabled {
		sim = alerts.NewSimulator(notify, alerts.Config{
			Interval: time.Duration(cfg.AlertIntervalSeconds) * time.Second,
		})
		sim.Start()
		deps.Alerts = sim
	}

	// Realtime feed into the dashboard
	rtDone := make(chan struct{})
	if cfg.RealtimeEnabled {
		key := cfg.SupabaseServiceKey
		if key == "" {
			key = cfg.SupabaseAnonKey
		}
		rt := realtime.NewClient(cfg.SupabaseURL, key, realtime.Options{
			OnReconnect: func() {
				resyncCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
				defer cancel()
				dash.Resync(resyncCtx)
			},
		})
		for _, table := range []string{"investments", "withdrawals", "user_activity", "profiles"} {
			rt.On(table, func(ch realtime.Change) {
				if err := dash.Apply(ch); err != nil {
					log.WithError(err).WithField("table", ch.Table).Warn("Failed to apply realtime change")
				}
			})
		}
		go func() {
			defer close(rtDone)
			if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("Realtime feed stopped")
			}
		}()
	} else {
		close(rtDone)
		log.Info("Realtime feed disabled")
	}

	// API server
	srv := api.NewServer(deps, api.Options{
		Port:              cfg.APIPort,
		CORSAllowOrigin:   cfg.CORSAllowOrigin,
		AuthRatePerMinute: cfg.AuthRatePerMinute,
		RequireConfirmed:  cfg.WithdrawRequireConfirmed,
	})
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("API server error")
		}
	}()

	log.Info("All services started successfully")

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("API shutdown error")
	}
	log.Info("API server closed")

	if sim != nil {
		sim.Stop()
	}
	refresher.Stop()
	projections.StopAll()
	<-rtDone

	log.Info("Shutdown complete")
}
