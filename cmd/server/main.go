package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"lifekey/internal/assignment"
	"lifekey/internal/audit"
	"lifekey/internal/claim"
	"lifekey/internal/envelope"
	"lifekey/internal/owner"
	"lifekey/internal/platform/config"
	"lifekey/internal/platform/httpserver"
	"lifekey/internal/platform/logger"
	"lifekey/internal/platform/metrics"
	"lifekey/internal/platform/middleware"
	"lifekey/internal/platform/postgres"
	platformredis "lifekey/internal/platform/redis"
	"lifekey/internal/platform/token"
	"lifekey/internal/policy"
	"lifekey/internal/recipient"
	"lifekey/internal/release"
	httptransport "lifekey/internal/transport/http"
	"lifekey/internal/vault"
	"lifekey/pkg/platform/tx"
)

const tokenLifetime = 24 * time.Hour

// stores groups one backend's implementations so wiring stays in one place.
type stores struct {
	owners      owner.Store
	policies    policy.Store
	recipients  recipient.Store
	items       vault.Store
	assignments assignment.Store
	claims      claim.Store
	releases    release.Store
	audits      audit.Store
	runner      tx.Runner
}

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		st stores
		db *sql.DB
	)
	if cfg.Storage.DatabaseURL != "" {
		var err error
		db, err = postgres.Open(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
		st = stores{
			owners:      owner.NewPostgresStore(db),
			policies:    policy.NewPostgresStore(db),
			recipients:  recipient.NewPostgresStore(db),
			items:       vault.NewPostgresStore(db),
			assignments: assignment.NewPostgresStore(db),
			claims:      claim.NewPostgresStore(db),
			releases:    release.NewPostgresStore(db),
			audits:      audit.NewPostgresStore(db),
			runner:      tx.NewSQLRunner(db),
		}
		log.Info("storage backend", "kind", "postgres")
	} else {
		st = stores{
			owners:      owner.NewInMemoryStore(),
			policies:    policy.NewInMemoryStore(),
			recipients:  recipient.NewInMemoryStore(),
			items:       vault.NewInMemoryStore(),
			assignments: assignment.NewInMemoryStore(),
			claims:      claim.NewInMemoryStore(),
			releases:    release.NewInMemoryStore(),
			audits:      audit.NewInMemoryStore(),
			runner:      tx.NewMemoryRunner(),
		}
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	recorderOpts := []audit.Option{audit.WithLogger(log)}
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("kafka sink init failed", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		recorderOpts = append(recorderOpts, audit.WithSink(sink))
	}
	recorder := audit.NewRecorder(st.audits, recorderOpts...)

	env := envelope.NewManager([]byte(cfg.Envelope.Passphrase), []byte(cfg.Envelope.Salt))
	m := metrics.New()

	owners := owner.NewService(st.owners, log)
	policies := policy.NewService(st.policies, recorder, st.runner, log)
	recipients := recipient.NewService(st.recipients, recorder, st.runner, log)
	items := vault.NewService(st.items, env, recorder, st.runner, log)
	claims := claim.NewService(st.claims, policies, recipients, recorder, st.runner, log, claim.WithMetrics(m))
	assignments := assignment.NewService(st.assignments, policies, items, recipients, claims, env, recorder, st.runner, log)

	releaseOpts := []release.Option{
		release.WithValidity(cfg.Release.Validity),
		release.WithMetrics(m),
	}
	redisClient, err := platformredis.New(ctx, cfg.Storage.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		releaseOpts = append(releaseOpts, release.WithGuard(release.NewRedisGuard(redisClient.Client)))
	}
	releases := release.NewService(st.releases, claims, policies, assignments, st.items, st.recipients, recorder, st.runner, log, releaseOpts...)

	var sweeper *release.Sweeper
	if cfg.Release.SweepInterval > 0 {
		sweeper = release.NewSweeper(releases, cfg.Release.SweepInterval, log)
	}

	tokens := token.NewService(cfg.Server.JWTSigningKey, "lifekey", tokenLifetime)
	var validator middleware.TokenValidator = tokens

	router := httptransport.NewRouter(httptransport.Handlers{
		Owner:      owner.NewHandler(owners, tokens, log, owner.WithAdminKey(cfg.Server.AdminAPIKey)),
		Policy:     policy.NewHandler(policies, log),
		Recipient:  recipient.NewHandler(recipients, log),
		Vault:      vault.NewHandler(items, log),
		Assignment: assignment.NewHandler(assignments, log),
		Claim:      claim.NewHandler(claims, log),
		Release:    release.NewHandler(releases, sweeper, log),
		Audit:      audit.NewHandler(st.audits, log),
	}, validator, log)

	srv := httpserver.New(cfg.Server.Addr, router)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting lifekey", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if sweeper != nil {
		g.Go(func() error {
			err := sweeper.Run(gCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
