package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"velora/internal/api"
	"velora/internal/audit"
	"velora/internal/availability"
	"velora/internal/booking"
	"velora/internal/calendar"
	"velora/internal/config"
	"velora/internal/limiter"
	"velora/internal/metrics"
	"velora/internal/model"
	"velora/internal/notify"
	"velora/internal/reminders"
	"velora/internal/schedule"
	"velora/internal/sheets"
	"velora/internal/store"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("VELORA_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Str("timezone", cfg.Timezone).Msg("invalid timezone")
	}
	cal := calendar.New(loc, cfg.Booking.SlotMinutes)

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedServices(ctx, db, cfg.Services); err != nil {
		logger.Fatal().Err(err).Msg("failed to sync service catalog")
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	memLimiter := limiter.NewMemoryLimiter(0)
	var lim limiter.Limiter = memLimiter
	if rdb != nil {
		lim = limiter.NewFailover(limiter.NewRedisLimiter(rdb), memLimiter, &logger)
	}

	var channel notify.Channel
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramChannel(cfg.Telegram.BotToken)
		if err != nil {
			logger.Fatal().Err(err).Msg("create telegram channel error")
		}
		channel = tg
	} else {
		channel = &notify.LogChannel{Logger: logger}
	}
	dispatcher := notify.NewDispatcher(channel, notify.DefaultDispatcherConfig(), logger)
	dispatcher.OnFailure(metrics.IncNotificationFailure)

	bookingSvc := booking.NewService(db, cal, dispatcher, booking.Options{
		HorizonMonths:         cfg.Booking.HorizonMonths,
		RelocationHorizonDays: cfg.Booking.RelocationHorizonDays,
		PenaltyWindow:         cfg.PenaltyWindow(),
	}, logger)
	scheduleSvc := schedule.NewService(db, bookingSvc, cal, 0, logger)
	resolver := availability.NewResolver(cal)
	exporter := audit.NewExporter(db)

	if cfg.Reminders.Enabled {
		remSvc := reminders.New(reminders.Config{
			CheckInterval: cfg.ReminderInterval(),
			HoursBefore:   cfg.Reminders.HoursBefore,
		}, db, dispatcher, cal, logger)
		remSvc.Start()
		defer remSvc.Stop()
	}

	if cfg.Sheets.Enabled {
		mirror, err := sheets.NewService(ctx, cfg.Sheets.CredentialsPath, cfg.Sheets.SpreadsheetID, db, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create sheets mirror error")
		}
		go mirror.MirrorLoop(ctx, cfg.SheetsInterval(), 62, loc)
	}

	if cfg.Backup.Enabled {
		go db.BackupLoop(ctx, cfg.Backup.Path, cfg.BackupInterval(), cfg.BackupRetention(), logger)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	srv := api.NewServer(api.Config{
		Port:               cfg.HTTP.Port,
		JWTSecret:          cfg.HTTP.JWTSecret,
		RateLimitPerMinute: cfg.Booking.RateLimitPerMinute,
	}, bookingSvc, scheduleSvc, resolver, cal, db, exporter, lim, logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown error")
		}
	}()

	logger.Info().Msg("velora started")
	if err := srv.Run(); err != nil {
		logger.Fatal().Err(err).Msg("http server error")
	}
}

func seedServices(ctx context.Context, db *store.Store, seeds []config.ServiceSeed) error {
	if len(seeds) == 0 {
		return nil
	}
	services := make([]model.Service, 0, len(seeds))
	for _, s := range seeds {
		services = append(services, model.Service{
			Name:     s.Name,
			Duration: s.Duration,
			Active:   true,
		})
	}
	return db.SyncServices(ctx, services)
}

func startHealthServer(ctx context.Context, port int, db *store.Store, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.Ping(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
