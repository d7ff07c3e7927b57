// Command server runs the link-token service: it issues emailed auth links,
// exchanges them for sessions, and backs the mobile app's /auth-callback
// universal link.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"linkgate/internal/jwttoken"
	"linkgate/internal/linktoken/handler"
	ltmetrics "linkgate/internal/linktoken/metrics"
	"linkgate/internal/linktoken/service"
	"linkgate/internal/linktoken/store/usedjti"
	"linkgate/internal/platform/config"
	"linkgate/internal/platform/httpserver"
	"linkgate/internal/platform/logger"
	"linkgate/internal/platform/metrics"
	"linkgate/internal/platform/postgres"
	"linkgate/internal/platform/redis"
	httptransport "linkgate/internal/transport/http"
	userstore "linkgate/internal/user/store"
	"linkgate/pkg/email"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	var users userstore.Store = userstore.NewMemory()
	if db != nil {
		users = userstore.NewPostgres(db)
	}

	var usedJTIs usedjti.Store = usedjti.NewMemory()
	if redisClient != nil {
		usedJTIs = usedjti.NewRedis(redisClient.Client)
	}

	tokens := jwttoken.New(cfg.JWTSigningKey, cfg.JWTIssuer)

	svc, err := service.New(users, usedJTIs, tokens, service.Config{
		PublicBaseURL:   cfg.PublicBaseURL,
		RecoveryLinkTTL: cfg.RecoveryLinkTTL,
		VerifyLinkTTL:   cfg.VerifyLinkTTL,
		AccessTokenTTL:  cfg.AccessTokenTTL,
	},
		service.WithLogger(log),
		service.WithMetrics(ltmetrics.New()),
		service.WithEmailSender(&email.LogSender{Logger: log}),
	)
	if err != nil {
		return err
	}

	h := handler.New(svc, tokens, cfg.AppScheme, log)

	var checks []httptransport.HealthCheck
	if redisClient != nil {
		checks = append(checks, httptransport.HealthCheck{Name: "redis", Check: redisClient.Health})
	}
	if db != nil {
		checks = append(checks, httptransport.HealthCheck{Name: "postgres", Check: db.PingContext})
	}

	router := httptransport.NewRouter(h, log, metrics.New(), checks...)
	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting linkgate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
