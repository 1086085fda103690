package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"staffdesk/internal/domain/audit"
	"staffdesk/internal/domain/auth"
	"staffdesk/internal/domain/notifications"
	"staffdesk/internal/domain/reports"
	"staffdesk/internal/domain/staff"
	"staffdesk/internal/platform/blob"
	blobmemory "staffdesk/internal/platform/blob/memory"
	blobs3 "staffdesk/internal/platform/blob/s3"
	"staffdesk/internal/platform/config"
	"staffdesk/internal/platform/crypto"
	"staffdesk/internal/platform/db"
	"staffdesk/internal/platform/email"
	"staffdesk/internal/platform/inflight"
	"staffdesk/internal/platform/jobs"
	"staffdesk/internal/platform/metrics"
	"staffdesk/internal/platform/recordstore"
	"staffdesk/internal/platform/recordstore/memory"
	"staffdesk/internal/platform/recordstore/postgres"
	"staffdesk/internal/platform/recordstore/sqlite"
	audithandler "staffdesk/internal/transport/http/handlers/audit"
	authhandler "staffdesk/internal/transport/http/handlers/auth"
	jobshandler "staffdesk/internal/transport/http/handlers/jobs"
	notificationshandler "staffdesk/internal/transport/http/handlers/notifications"
	staffhandler "staffdesk/internal/transport/http/handlers/staff"
	"staffdesk/internal/transport/http/middleware"
)

type App struct {
	Config   config.Config
	Records  recordstore.Store
	Staff    *staff.Service
	Jobs     *jobs.Service
	Metrics  *metrics.Collector
	Router   http.Handler
	stopJobs context.CancelFunc
	closers  []func() error
}

// New wires every component from cfg. Background jobs start immediately;
// Close stops them and releases the store.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = randomSecret()
		slog.Warn("JWT_SECRET not set; using a random secret, tokens will not survive a restart")
	}

	app := &App{Config: cfg}
	records, err := app.openRecordStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Records = records

	guard, err := app.openGuard(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	cipher, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("data encryption key: %w", err)
	}

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Metrics = metrics.New()
	opts := []staff.Option{
		staff.WithGuard(guard),
		staff.WithObserver(app.Metrics),
		staff.WithTransitionTimeout(cfg.TransitionTimeout),
	}
	if cipher.Configured() {
		opts = append(opts, staff.WithCipher(cipher))
	} else {
		slog.Warn("DATA_ENCRYPTION_KEY not set; sensitive fields are stored in plain text")
	}
	app.Staff = staff.NewService(records, opts...)

	notifier := notifications.New(notifications.NewStore(records, nil), email.New(cfg))
	notifier.DefaultFrom = cfg.EmailFrom
	notifier.NotifyTo = cfg.NotifyEmail

	archiver := reports.NewArchiver(blobs)
	app.Jobs = jobs.New(records, app.Metrics)
	app.Staff.AddHook(app.Jobs.TransitionHook(archiver, notifier))
	reconcile := jobs.ReconcileScan(app.Staff, notifier, app.Metrics.SetDuplicates)
	app.Jobs.Schedule(jobs.JobReconcile, cfg.ReconcileInterval, reconcile)
	jobsCtx, stop := context.WithCancel(context.Background())
	app.stopJobs = stop
	app.Jobs.Start(jobsCtx)

	operators := auth.NewService(auth.NewStore(records))
	if cfg.RunSeed {
		if err := db.Seed(ctx, operators, cfg); err != nil {
			app.Close()
			return nil, err
		}
	}

	auditSvc := audit.New(records)
	auditSvc.Normalize = func(e audit.Entry) audit.Entry {
		e.ReasonType = staff.NormalizeStoredReason(e.ReasonType)
		return e
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(app.Metrics))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if _, err := records.Read(ctx, staff.LocationActive.Root()); err != nil {
			http.Error(w, "record store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Handle("/metrics", app.Metrics.Handler())
	}

	staffHandler := staffhandler.NewHandler(app.Staff, middleware.NewIdempotencyStore(records, 24*time.Hour))
	staffHandler.AllowedOrigins = cfg.CORSAllowedOrigins
	staffHandler.Archives = archiver

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

		authhandler.NewHandler(operators, cfg.JWTSecret).RegisterRoutes(r)
		staffHandler.RegisterRoutes(r)
		audithandler.NewHandler(auditSvc).RegisterRoutes(r)
		notificationshandler.NewHandler(notifier).RegisterRoutes(r)
		jobshandler.NewHandler(app.Jobs, reconcile).RegisterRoutes(r)
	})

	router.Mount("/", spaHandler{staticPath: cfg.FrontendDir, indexPath: "index.html"})
	app.Router = router
	return app, nil
}

func (a *App) openRecordStore(ctx context.Context) (recordstore.Store, error) {
	switch a.Config.RecordStoreDriver {
	case config.StoreMemory:
		store := memory.New()
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, a.Config.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite record store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.StorePostgres:
		pool, err := db.Connect(ctx, a.Config.DatabaseURL, int32(a.Config.DBMaxConns))
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if a.Config.RunMigrations {
			if _, err := db.Migrate(ctx, pool); err != nil {
				return nil, fmt.Errorf("migrations: %w", err)
			}
		}
		store, err := postgres.Open(ctx, pool)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	}
	return nil, fmt.Errorf("unknown record store driver %q", a.Config.RecordStoreDriver)
}

func (a *App) openGuard(ctx context.Context) (inflight.Guard, error) {
	if a.Config.RedisURL == "" {
		return inflight.NewMemory(), nil
	}
	client, err := inflight.Connect(ctx, a.Config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return inflight.NewRedis(client, a.Config.InflightTTL), nil
}

func openBlobStore(ctx context.Context, cfg config.Config) (blob.Store, error) {
	if cfg.BlobDriver != config.BlobS3 {
		return blobmemory.New(), nil
	}
	store, err := blobs3.New(ctx, blobs3.Config{
		Bucket:    cfg.BlobS3Bucket,
		Region:    cfg.BlobS3Region,
		Endpoint:  cfg.BlobS3Endpoint,
		PathStyle: cfg.BlobS3PathStyle,

		AccessKeyID:     cfg.BlobS3AccessKeyID,
		SecretAccessKey: cfg.BlobS3SecretKey,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 blob store: %w", err)
	}
	return store, nil
}

// Close stops background jobs and releases connections in reverse order.
func (a *App) Close() {
	if a.stopJobs != nil {
		a.stopJobs()
		a.Jobs.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && !errors.Is(err, recordstore.ErrClosed) {
			slog.Warn("shutdown close failed", "err", err)
		}
	}
	a.closers = nil
}

func Run() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown failed", "err", err)
		}
	}()

	slog.Info("staffdesk server listening", "addr", cfg.Addr, "recordStore", cfg.RecordStoreDriver, "transactional", recordstore.IsTransactional(app.Records))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(h.staticPath, filepath.Clean("/"+r.URL.Path))
	_, err := os.Stat(path)
	if err == nil {
		http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
		return
	}

	if os.IsNotExist(err) {
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	}

	http.NotFound(w, r)
}
