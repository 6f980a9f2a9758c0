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

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"fleetledger/internal/agency"
	"fleetledger/internal/authz"
	"fleetledger/internal/cqrs/aggregate"
	"fleetledger/internal/cqrs/aggregate/cache"
	"fleetledger/internal/cqrs/audit"
	"fleetledger/internal/cqrs/audit/export"
	"fleetledger/internal/cqrs/bus"
	"fleetledger/internal/cqrs/command"
	"fleetledger/internal/cqrs/event"
	"fleetledger/internal/cqrs/projector"
	"fleetledger/internal/cqrs/query"
	"fleetledger/internal/operator"
	"fleetledger/internal/platform/config"
	"fleetledger/internal/platform/httpserver"
	"fleetledger/internal/platform/logger"
	redisclient "fleetledger/internal/platform/redis"
	httptransport "fleetledger/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.New()
	registry := event.NewRegistry()
	if err := registry.RegisterAggregate(agency.Tag, agency.ContactTag); err != nil {
		return err
	}
	if err := registry.RegisterAggregate(operator.Tag, operator.DriverTag, operator.VehicleTag); err != nil {
		return err
	}

	var (
		events        event.Store
		auditStore    audit.Store
		agencyStore   agency.Store
		operatorStore operator.Store
	)
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()

		events = event.NewPostgresStore(pool)
		auditStore = audit.NewPostgresStore(db)
		agencyStore = agency.NewPostgresStore(pool)
		operatorStore = operator.NewPostgresStore(pool)
	} else {
		log.Warn("no POSTGRES_URL configured, using in-memory stores")
		events = event.NewMemoryStore()
		auditStore = audit.NewMemoryStore()
		agencyStore = agency.NewMemoryStore()
		operatorStore = operator.NewMemoryStore()
	}

	agencySnapshots := aggregate.SnapshotStore[*agency.Agency](agencyStore)
	operatorSnapshots := aggregate.SnapshotStore[*operator.Operator](operatorStore)

	rdb, err := redisclient.New(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		agencySnapshots = cache.New(agencySnapshots, rdb.Client,
			func() *agency.Agency { return &agency.Agency{} }, "agency", cfg.SnapshotCacheTTL, log)
		operatorSnapshots = cache.New(operatorSnapshots, rdb.Client,
			func() *operator.Operator { return &operator.Operator{} }, "operator", cfg.SnapshotCacheTTL, log)
		// Single lookups on the query side read through the same cache.
		agencyStore = agency.WithSnapshots(agencyStore, agencySnapshots)
		operatorStore = operator.WithSnapshots(operatorStore, operatorSnapshots)
		log.Info("snapshot cache enabled", slog.Duration("ttl", cfg.SnapshotCacheTTL))
	}

	g, ctx := errgroup.WithContext(ctx)

	var relay *export.Relay
	if len(cfg.Kafka.Brokers) > 0 {
		relay, err = export.NewRelay(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, log)
		if err != nil {
			return err
		}
		defer relay.Close()
		if err := relay.EnsureTopic(ctx, 3, 1); err != nil {
			return err
		}
		auditStore = audit.NewTeeStore(auditStore, relay)
		g.Go(func() error { return relay.Run(ctx) })
		log.Info("audit export relay started", slog.String("topic", cfg.Kafka.AuditTopic))
	}

	audit.NewRecorder(auditStore, log).Register(b)

	checker := authz.NewChecker()

	agencySvc := agency.NewService(checker, agencyStore)
	if err := registerAggregate(b, registry, log, agencySvc, agencySvc, agency.Applier{}, events, agencySnapshots); err != nil {
		return err
	}

	operatorSvc := operator.NewService(checker, operatorStore)
	if err := registerAggregate(b, registry, log, operatorSvc, operatorSvc, operator.Applier{}, events, operatorSnapshots); err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Config{
		JWTSigningKey: []byte(cfg.JWTSigningKey),
		APIKeyHash:    cfg.APIKeyHash,
	}, b, log)

	srv := httpserver.New(cfg.Addr, router)

	g.Go(func() error {
		log.Info("starting fleetledger", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// registerAggregate wires one aggregate's command processor, query processor,
// and projector onto the bus.
func registerAggregate[T aggregate.Root](
	b *bus.Bus,
	registry *event.Registry,
	log *slog.Logger,
	cmdSpec command.Spec[T],
	querySpec query.Spec[T],
	applier projector.Applier[T],
	events event.Store,
	snapshots aggregate.SnapshotStore[T],
) error {
	cp, err := command.NewProcessor(cmdSpec, events, snapshots, b, registry, log)
	if err != nil {
		return err
	}
	if err := cp.Register(b); err != nil {
		return err
	}

	qp, err := query.NewProcessor(querySpec, b, registry, log)
	if err != nil {
		return err
	}
	if err := qp.Register(b); err != nil {
		return err
	}

	projector.New(applier, events, snapshots, log).Register(b)
	return nil
}
