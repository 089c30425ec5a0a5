package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "ixora-billpay/internal/api/http"
	"ixora-billpay/internal/audit"
	"ixora-billpay/internal/auth"
	billingapp "ixora-billpay/internal/billing/application"
	billingmemory "ixora-billpay/internal/billing/infrastructure/memory"
	billingpostgres "ixora-billpay/internal/billing/infrastructure/postgres"
	billingsqlite "ixora-billpay/internal/billing/infrastructure/sqlite"
	"ixora-billpay/internal/config"
	"ixora-billpay/internal/eventhub"
	"ixora-billpay/internal/logging"
	"ixora-billpay/internal/observability/metrics"
	paymentapp "ixora-billpay/internal/payment/application"
	payment "ixora-billpay/internal/payment/domain"
	"ixora-billpay/internal/portalapi"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshots, db, table, err := openSnapshots(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("snapshot storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	}
	metrics.Init(db, table, logger)

	hub := eventhub.New()

	store := billingapp.NewStore(snapshots,
		billingapp.WithStorageKey(cfg.Storage.Key),
		billingapp.WithPublisher(hub),
		billingapp.WithStoreLogger(logger.Named("selection")))
	store.Hydrate(ctx)

	client, err := portalapi.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token,
		portalapi.WithTimeout(cfg.Backend.Timeout),
		portalapi.WithRateLimit(cfg.Backend.RatePerSecond, cfg.Backend.Burst),
		portalapi.WithLanguage(cfg.Backend.Language),
		portalapi.WithLogger(logger.Named("portalapi")))
	if err != nil {
		logger.Fatal("portal client", zap.Error(err))
	}

	search, err := billingapp.NewSearchService(client,
		billingapp.WithCacheTTL(cfg.Search.CacheTTL),
		billingapp.WithSearchLogger(logger.Named("search")))
	if err != nil {
		logger.Fatal("search service", zap.Error(err))
	}

	reconciler, err := paymentapp.NewReconciler(client,
		paymentapp.WithInterval(cfg.Payment.PollInterval),
		paymentapp.WithMaxAttempts(cfg.Payment.MaxAttempts),
		paymentapp.WithLogger(logger.Named("reconciler")))
	if err != nil {
		logger.Fatal("payment reconciler", zap.Error(err))
	}
	tracker, err := paymentapp.NewTracker(reconciler,
		paymentapp.WithTrackerPublisher(hub),
		paymentapp.WithTrackerLogger(logger.Named("tracker")))
	if err != nil {
		logger.Fatal("payment tracker", zap.Error(err))
	}
	defer tracker.Wait()
	defer tracker.Stop()

	references, err := payment.NewReferenceGenerator(cfg.Payment.ReferencePrefix, nil)
	if err != nil {
		logger.Fatal("reference generator", zap.Error(err))
	}

	eventhub.Subscribe(hub, func(_ context.Context, evt eventhub.PullToRefresh) error {
		search.Invalidate()
		logger.Debug("bill cache flushed", zap.String("scope", evt.Scope))
		return nil
	})
	eventhub.Subscribe(hub, func(_ context.Context, evt eventhub.LanguageChanged) error {
		client.SetLanguage(evt.Language)
		search.Invalidate()
		return nil
	})
	checkouts := billingapp.NewCheckoutLedger(billingapp.DefaultCheckoutTTL)
	eventhub.Subscribe(hub, func(_ context.Context, evt eventhub.PaymentResolved) error {
		logger.Info("payment outcome",
			zap.String("reference", evt.Reference),
			zap.String("phase", evt.Phase),
			zap.String("status", evt.Status),
			zap.Int("attempts", evt.Attempts))
		return nil
	})
	eventhub.Subscribe(hub, billingapp.SettlePaidBills(store, checkouts, logger.Named("settle")))

	auditLogger := audit.NewZapLogger(logger)
	billsHandler, err := apihttp.NewBillsHandler(search, store)
	if err != nil {
		logger.Fatal("bills handler", zap.Error(err))
	}
	selectionHandler, err := apihttp.NewSelectionHandler(store)
	if err != nil {
		logger.Fatal("selection handler", zap.Error(err))
	}
	checkoutHandler, err := apihttp.NewCheckoutHandler(store, references, checkouts, auditLogger)
	if err != nil {
		logger.Fatal("checkout handler", zap.Error(err))
	}
	paymentsHandler, err := apihttp.NewPaymentsHandler(tracker, auditLogger)
	if err != nil {
		logger.Fatal("payments handler", zap.Error(err))
	}
	eventsHandler, err := apihttp.NewEventsHandler(hub)
	if err != nil {
		logger.Fatal("events handler", zap.Error(err))
	}

	proxies, err := audit.NewProxyPolicy(cfg.TrustedProxies)
	if err != nil {
		logger.Fatal("trusted proxies", zap.Error(err))
	}
	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/bills", billsHandler)
	mux.Handle("/api/v1/selection", selectionHandler)
	mux.Handle("/api/v1/selection/remove", selectionHandler)
	mux.Handle("/api/v1/checkout", checkoutHandler)
	mux.Handle("/api/v1/payments/", paymentsHandler)
	mux.Handle("/api/v1/events/", eventsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !store.Hydrated() {
			http.Error(w, "hydrating", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           proxies.Wrap(loggingMiddleware(authMiddleware.Wrap(mux), logger.Named("http"))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("http listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("auth", authMiddleware != nil))
	// In-flight handlers finish before the deferred tracker and database
	// shutdown runs.
	if err := runServer(ctx, server, logger); err != nil {
		logger.Error("http server", zap.Error(err))
	}
}

// runServer serves until ctx is done or the listener fails, and returns
// only after graceful shutdown has completed.
func runServer(ctx context.Context, server *http.Server, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	cancel()
	<-shutdownDone
	return err
}

// openSnapshots selects the selection persistence adapter. db is nil for
// the memory driver.
func openSnapshots(ctx context.Context, cfg config.Storage) (billingapp.SnapshotStore, *sql.DB, string, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return billingmemory.NewSnapshotStore(), nil, "", nil
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, "", err
			}
		}
		store, err := billingsqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, "", err
		}
		return store, store.DB(), store.Table(), nil
	case config.DriverPostgres:
		db, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, nil, "", err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, "", err
		}
		store := billingpostgres.NewSnapshotStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, "", err
		}
		return store, db, store.Table(), nil
	}
	return nil, nil, "", errors.New("unknown storage driver " + cfg.Driver)
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
