package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	attendancehandler "vigil/internal/attendance/handler"
	attendancemetrics "vigil/internal/attendance/metrics"
	attendanceservice "vigil/internal/attendance/service"
	attendancestore "vigil/internal/attendance/store"
	"vigil/internal/identity"
	"vigil/internal/jwtoken"
	"vigil/internal/kpi"
	kpihandler "vigil/internal/kpi/handler"
	"vigil/internal/notify"
	patrolhandler "vigil/internal/patrol/handler"
	patrolmetrics "vigil/internal/patrol/metrics"
	patrolservice "vigil/internal/patrol/service"
	patrolstore "vigil/internal/patrol/store"
	"vigil/internal/platform/cache"
	"vigil/internal/platform/config"
	"vigil/internal/platform/httpserver"
	"vigil/internal/platform/logger"
	"vigil/internal/platform/metrics"
	"vigil/internal/platform/redis"
	"vigil/internal/ratelimit"
	httptransport "vigil/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: postgres when configured, in-memory otherwise. The memory
	// stores back local development and the field-client demo loop.
	var (
		guards        identity.GuardDirectory
		installations identity.InstallationDirectory
		schedule      identity.ScheduleDirectory
		attStore      attendancestore.Store
		patStore      patrolstore.Store
		kpiAttendance kpi.AttendanceSource
		kpiPatrols    kpi.PatrolSource
		health        []httptransport.HealthCheck
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("pgx", cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			return err
		}

		dir := identity.NewPostgresDirectory(db)
		guards, installations, schedule = dir, dir, dir
		att := attendancestore.NewPostgresStore(db)
		pat := patrolstore.NewPostgresStore(db)
		attStore, patStore = att, pat
		kpiAttendance, kpiPatrols = att, pat
		health = append(health, httptransport.HealthCheck{Name: "postgres", Check: db.PingContext})
		log.Info("storage backend", "driver", "postgres")
	} else {
		dir := identity.NewMemoryDirectory()
		guards, installations, schedule = dir, dir, dir
		att := attendancestore.NewMemoryStore()
		pat := patrolstore.NewMemoryStore()
		attStore, patStore = att, pat
		kpiAttendance, kpiPatrols = att, pat
		log.Warn("storage backend", "driver", "memory")
	}

	// Site-code lookups are the hottest read; cache them in Redis when
	// available, in process memory otherwise.
	siteCache := cache.Cache(cache.NewMemory())
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		siteCache = cache.NewRedis(redisClient.Client, "vigil")
		health = append(health, httptransport.HealthCheck{Name: "redis", Check: redisClient.Health})
		log.Info("site cache backend", "driver", "redis")
	}
	installations = identity.NewCachedInstallations(installations, siteCache, cfg.SiteCacheTTL, log)

	// Notifications: Kafka when brokers are configured, the log otherwise.
	var publisher notify.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := notify.NewKafkaPublisher(ctx, cfg.Kafka)
		if err != nil {
			return err
		}
		defer kafka.Close()
		publisher = kafka
		log.Info("notification backend", "driver", "kafka", "topic", cfg.Kafka.Topic)
	} else {
		publisher = notify.NewLogPublisher(log)
	}
	worker := notify.NewWorker(publisher, 256, log)

	httpMetrics := metrics.New()
	lockout := ratelimit.NewLockout(siteCache, ratelimit.DefaultLockoutConfig(), log)

	attendanceSvc := attendanceservice.NewService(installations, guards, schedule, attStore, log,
		attendanceservice.WithDispatcher(worker),
		attendanceservice.WithMetrics(attendancemetrics.New()),
		attendanceservice.WithLockout(lockout),
	)
	patrolSvc := patrolservice.NewService(installations, guards, patStore, cfg.Trust, log,
		patrolservice.WithDispatcher(worker),
		patrolservice.WithMetrics(patrolmetrics.New()),
		patrolservice.WithLockout(lockout),
	)
	kpiSvc := kpi.NewService(kpiAttendance, kpiPatrols, log)

	jwtService := jwtoken.NewJWTService(cfg.JWTSigningKey, "vigil", "vigil-api")

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:  log,
		Metrics: httpMetrics,
		JWT:     jwtoken.NewJWTServiceAdapter(jwtService),
		Field: []httptransport.Registrar{
			attendancehandler.New(attendanceSvc, log),
			patrolhandler.New(patrolSvc, log),
		},
		Reporting: []httptransport.Registrar{
			kpihandler.New(kpiSvc, log),
		},
		Health: health,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		log.Info("starting server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}
