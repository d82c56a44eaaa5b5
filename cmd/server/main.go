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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"annogate/internal/account"
	"annogate/internal/annotation"
	"annogate/internal/annotatorstore"
	"annogate/internal/authz"
	"annogate/internal/binder"
	"annogate/internal/consumer"
	"annogate/internal/events"
	"annogate/internal/gateway"
	"annogate/internal/platform/config"
	"annogate/internal/platform/httpserver"
	"annogate/internal/platform/logger"
	"annogate/internal/platform/metrics"
	"annogate/internal/platform/postgres"
	platformredis "annogate/internal/platform/redis"
	"annogate/internal/ratelimit"
	"annogate/internal/session"
	"annogate/internal/token"
	httptransport "annogate/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires the process: configuration, stores, the event bus and the HTTP
// server, then blocks until a signal or a server error.
func run() error {
	configPath := pflag.String("config", "", "path to an INI configuration file")
	dropAll := pflag.Bool("drop-all", false, "drop the annotation and account schema at startup")
	createAll := pflag.Bool("create-all", false, "create the annotation and account schema at startup")
	pflag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dropAll {
		cfg.BaseModel.ShouldDropAll = true
	}
	if *createAll {
		cfg.BaseModel.ShouldCreateAll = true
	}

	log := logger.New(cfg.Server.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	health := map[string]httptransport.HealthCheck{}

	sessions, closeSessions, err := buildSessions(ctx, cfg, health)
	if err != nil {
		return err
	}
	defer closeSessions()

	accountStore, closeAccounts, err := buildAccountStore(ctx, cfg, health)
	if err != nil {
		return err
	}
	defer closeAccounts()

	bus := events.NewBus(log)
	bus.Subscribe(events.NewLogListener(log))
	bus.Subscribe(events.NewMetricsListener(m))
	if len(cfg.Kafka.Brokers) > 0 {
		client, err := events.NewKafkaClient(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer client.Close()
		bus.Subscribe(events.NewKafkaPublisher(client, cfg.Kafka.Topic, log))
		log.Info("publishing events to kafka", "topic", cfg.Kafka.Topic)
	}

	authn := consumer.NewAuthenticator(cfg.API.Key, cfg.API.Secret, cfg.TokenTTL())
	codec := token.NewCodec(authn.Consumer())
	authorizer := authz.New(authz.WithDefaultOpen(cfg.Auth.DefaultOpen))
	issuer := token.NewIssuer(token.NewBackendApplicationServer(token.NewConsumerValidator(authn), codec), log, m)

	accounts := account.NewService(accountStore, sessions, log, account.WithMetrics(m))

	deps := httptransport.Deps{
		Config:   cfg,
		Logger:   log,
		Gatherer: reg,
		Sessions: sessions,
		Tokens:   codec,
		Issuer:   issuer,
		Limiter: ratelimit.New(
			ratelimit.NewIPLimiter(float64(cfg.Auth.TokenRate), cfg.Auth.TokenBurst),
			log,
			ratelimit.WithDisabled(cfg.Auth.TokenRate <= 0),
		),
		Accounts:       account.NewHandler(accounts, bus, log, cfg.TokenTTL()),
		GatewayOptions: []gateway.Option{gateway.WithMetrics(m), gateway.WithLogger(log)},
		Health:         health,
	}

	if cfg.EmbeddedStore() {
		backend, closeBackend, err := buildBackend(ctx, cfg, health)
		if err != nil {
			return err
		}
		defer closeBackend()

		deps.Store = annotatorstore.New(backend, log,
			annotatorstore.WithMetrics(m),
			annotatorstore.WithBaseURL(cfg.API.URL),
			annotatorstore.WithCompatibility(cfg.Store.Compatibility),
		)
		deps.Binder = binder.New(annotation.New, authn, authorizer, bus, log)
	}

	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(deps))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting annogate", "addr", cfg.Server.Addr, "endpoint", cfg.API.Endpoint)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildSessions(ctx context.Context, cfg config.Config, health map[string]httptransport.HealthCheck) (session.Store, func(), error) {
	ttl := cfg.TokenTTL()
	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return session.NewInMemoryStore(ttl), func() {}, nil
	}
	health["redis"] = client.Health
	return session.NewRedis(client.Client, ttl), func() { _ = client.Close() }, nil
}

func buildAccountStore(ctx context.Context, cfg config.Config, health map[string]httptransport.HealthCheck) (account.Store, func(), error) {
	if cfg.Database.URL == "" {
		return account.NewMemoryStore(), func() {}, nil
	}
	db, err := postgres.OpenDB(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	store := account.NewSQLStore(db)
	if err := applySchemaFlags(ctx, cfg, store); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	health["accounts"] = db.PingContext
	return store, func() { _ = db.Close() }, nil
}

func buildBackend(ctx context.Context, cfg config.Config, health map[string]httptransport.HealthCheck) (annotatorstore.Backend, func(), error) {
	var (
		backend annotatorstore.Backend
		closer  = func() {}
	)
	if cfg.Store.Host == "" {
		backend = annotatorstore.NewMemoryBackend()
	} else {
		pool, err := postgres.NewPool(ctx, cfg.Store.Host)
		if err != nil {
			return nil, nil, err
		}
		backend = annotatorstore.NewPostgres(pool, cfg.Store.Index)
		closer = pool.Close
		health["store"] = pool.Ping
	}
	if err := applySchemaFlags(ctx, cfg, backend); err != nil {
		closer()
		return nil, nil, err
	}
	return backend, closer, nil
}

type schema interface {
	CreateAll(ctx context.Context) error
	DropAll(ctx context.Context) error
}

func applySchemaFlags(ctx context.Context, cfg config.Config, s schema) error {
	if cfg.BaseModel.ShouldDropAll {
		if err := s.DropAll(ctx); err != nil {
			return err
		}
	}
	if cfg.BaseModel.ShouldCreateAll {
		if err := s.CreateAll(ctx); err != nil {
			return err
		}
	}
	return nil
}
