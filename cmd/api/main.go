package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // campaign time zones must resolve on minimal images

	"voiceagents/internal/audit"
	"voiceagents/internal/auth"
	"voiceagents/internal/config"
	"voiceagents/internal/contacts"
	"voiceagents/internal/dialer"
	"voiceagents/internal/reporting"
	"voiceagents/internal/store"
	"voiceagents/internal/store/postgres"
	"voiceagents/internal/telephony"
	"voiceagents/pkg/logger"
	"voiceagents/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log, logCloser := logger.NewWithOptions(logger.Options{
		Env:        cfg.App.Env,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	defer logCloser.Close()
	slog.SetDefault(log)

	if err := run(rootCtx, stop, cfg, log); err != nil {
		log.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run(rootCtx context.Context, stop context.CancelFunc, cfg config.Config, log *slog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth init: %w", err)
	}

	st, err := openStores(rootCtx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close(log)

	slots, closeSlots, err := newSlots(rootCtx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSlots()

	outcomes := telephony.NewOutcomes()
	gateway, err := newGateway(cfg, outcomes)
	if err != nil {
		return err
	}

	manager, err := dialer.NewManager(st.repo, st.contacts, gateway, outcomes, slots, dialer.Options{
		ResetZone:             cfg.Dialer.ResetZone,
		StopCompletesCampaign: cfg.Dialer.StopCompletesCampaign,
		PhoneRegion:           cfg.Dialer.DefaultPhoneRegion,
		Logger:                log.With("component", "dialer"),
		Audit:                 audit.NewService(st.audit, log),
	})
	if err != nil {
		return fmt.Errorf("dialer init: %w", err)
	}

	restored, err := manager.Restore(rootCtx)
	if err != nil {
		return fmt.Errorf("restore running campaigns: %w", err)
	}
	log.Info("running campaigns restored", "count", restored)

	webhooks := &telephony.WebhookHandler{
		Outcomes:           outcomes,
		Calls:              st.repo,
		PublicBaseURL:      cfg.App.PublicBaseURL,
		AssistantStreamURL: cfg.Telephony.AssistantStreamURL,
		OutcomeSecret:      cfg.Telephony.OutcomeWebhookSecret,
	}
	if cfg.Telephony.Gateway == "twilio" {
		webhooks.TwilioAuthToken = cfg.Telephony.TwilioAuthToken
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/healthz", "/metrics"))
	registerRoutes(r, routeDeps{
		verifier: verifier,
		manager:  manager,
		reports:  reporting.NewService(st.repo),
		webhooks: webhooks,
		ready:    st.ready,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "gateway", cfg.Telephony.Gateway, "store", cfg.DB.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// Dispatchers stop without touching persisted status; Restore resumes them.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Dialer.ShutdownGrace)
	defer cancelDrain()
	if err := manager.Shutdown(drainCtx); err != nil {
		log.Warn("in-flight calls abandoned at shutdown", "err", err)
	}
	return nil
}

// stores bundles the persistence backends selected by STORE_BACKEND.
type stores struct {
	repo     store.Repository
	contacts contacts.Source
	audit    audit.Repository
	ready    func(ctx context.Context) error
	close    func(log *slog.Logger)
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (stores, error) {
	if cfg.DB.Backend == "memory" {
		return openMemory(cfg, log)
	}

	db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PoolConfig{
		MaxOpenConns: cfg.DB.MaxOpenConns,
		MaxIdleConns: cfg.DB.MaxIdleConns,
	})
	if err != nil {
		return stores{}, fmt.Errorf("postgres init: %w", err)
	}
	if err := postgres.Migrate(db); err != nil {
		_ = db.Close()
		return stores{}, fmt.Errorf("postgres migrate: %w", err)
	}
	pg := postgres.New(db)
	return stores{
		repo:     pg,
		contacts: pg,
		audit:    pg,
		ready:    func(ctx context.Context) error { return utils.Ping(ctx, db, 2*time.Second) },
		close: func(log *slog.Logger) {
			if err := pg.Close(); err != nil {
				log.Error("postgres close failed", "err", err)
			}
		},
	}, nil
}

func openMemory(cfg config.Config, log *slog.Logger) (stores, error) {
	repo := store.NewMemoryRepo()
	if cfg.DB.SnapshotFile != "" {
		data, err := os.ReadFile(cfg.DB.SnapshotFile)
		switch {
		case err == nil:
			if repo, err = store.LoadSnapshot(data); err != nil {
				return stores{}, err
			}
		case !errors.Is(err, os.ErrNotExist):
			return stores{}, fmt.Errorf("read snapshot: %w", err)
		}
	}

	source := contacts.NewStaticSource()
	if cfg.DB.ContactsFile != "" {
		f, err := os.Open(cfg.DB.ContactsFile)
		if err != nil {
			return stores{}, fmt.Errorf("open contacts: %w", err)
		}
		source, err = contacts.LoadStaticSource(f)
		_ = f.Close()
		if err != nil {
			return stores{}, err
		}
	}

	return stores{
		repo:     repo,
		contacts: source,
		audit:    audit.NewMemoryRepo(),
		ready:    func(context.Context) error { return nil },
		close: func(log *slog.Logger) {
			if cfg.DB.SnapshotFile == "" {
				return
			}
			data, err := repo.Snapshot()
			if err == nil {
				err = os.WriteFile(cfg.DB.SnapshotFile, data, 0o600)
			}
			if err != nil {
				log.Error("write snapshot failed", "err", err)
			}
		},
	}, nil
}

func newSlots(ctx context.Context, cfg config.Config, log *slog.Logger) (dialer.Slots, func(), error) {
	if cfg.Dialer.SlotsBackend != "redis" {
		return dialer.NewLocalSlots(cfg.Dialer.MaxInFlight), func() {}, nil
	}
	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("redis init: %w", err)
	}
	host, _ := os.Hostname()
	slots, err := dialer.NewRedisSlots(rdb, dialer.RedisSlotsConfig{
		Limit:    cfg.Dialer.MaxInFlight,
		TTL:      cfg.Dialer.SlotTTL,
		Instance: host + "-" + uuid.NewString()[:8],
	}, log.With("component", "slots"))
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return slots, func() { _ = rdb.Close() }, nil
}

func newGateway(cfg config.Config, outcomes *telephony.Outcomes) (telephony.Gateway, error) {
	if cfg.Telephony.Gateway == "simulated" {
		return telephony.NewSimulatedGateway(outcomes, cfg.Telephony.SimulatedDelay, nil), nil
	}
	gw, err := telephony.NewTwilioGateway(telephony.TwilioConfig{
		AccountSID:        cfg.Telephony.TwilioAccountSID,
		AuthToken:         cfg.Telephony.TwilioAuthToken,
		FromNumber:        cfg.Telephony.TwilioFromNumber,
		BaseURL:           cfg.Telephony.TwilioAPIBaseURL,
		PublicBaseURL:     cfg.App.PublicBaseURL,
		RequestsPerSecond: cfg.Telephony.TwilioRequestsPerSecond,
		MachineDetection:  cfg.Telephony.MachineDetection,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("twilio init: %w", err)
	}
	return gw, nil
}
