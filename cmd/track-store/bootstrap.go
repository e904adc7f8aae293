package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/TrackLedger/config"
	"github.com/BearBump/TrackLedger/internal/broker/kafka"
	"github.com/BearBump/TrackLedger/internal/cache/rediscache"
	"github.com/BearBump/TrackLedger/internal/integrations/remote"
	"github.com/BearBump/TrackLedger/internal/integrations/remote/fake"
	"github.com/BearBump/TrackLedger/internal/integrations/remote/httpapi"
	"github.com/BearBump/TrackLedger/internal/services/refresher"
	"github.com/BearBump/TrackLedger/internal/services/shipments"
	"github.com/BearBump/TrackLedger/internal/storage/leveldbkv"
	"github.com/BearBump/TrackLedger/internal/storage/pgsnapshot"
	"github.com/BearBump/TrackLedger/internal/storage/sqlitekv"
	"github.com/BearBump/TrackLedger/internal/store"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPrefix = "trackledger:"

// factories are swapped in tests; the defaults talk to real infrastructure.
type factories struct {
	newBackend      func(ctx context.Context, cfg *config.Config, rc *redis.Client) (b store.Backend, closeFn func(), err error)
	newRemoteClient func(cfg *config.Config, log *zap.Logger) remote.Client
}

func defaultFactories() factories {
	return factories{
		newBackend:      openBackend,
		newRemoteClient: newRemoteClient,
	}
}

func openBackend(ctx context.Context, cfg *config.Config, rc *redis.Client) (store.Backend, func(), error) {
	switch cfg.Store.Backend {
	case "", "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "data/trackledger.db"
		}
		st, err := sqlitekv.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case "leveldb":
		path := cfg.Store.Path
		if path == "" {
			path = "data/trackledger.ldb"
		}
		st, err := leveldbkv.Open(path, false)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case "postgres":
		dsn := cfg.Database.DSN()
		if dsn == "" {
			return nil, nil, errors.New("store backend postgres needs database.host")
		}
		st, err := openPostgresWithRetry(ctx, dsn, 60*time.Second)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case "redis":
		if rc == nil {
			return nil, nil, errors.New("store backend redis needs redis.host")
		}
		return rediscache.NewSnapshotBackend(rc, redisPrefix+"snapshot:"), nil, nil
	case "memory":
		return nil, nil, nil
	default:
		return nil, nil, errors.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

var _ snapshotClock = (*pgsnapshot.Storage)(nil)

func openPostgresWithRetry(ctx context.Context, connString string, wait time.Duration) (*pgsnapshot.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgsnapshot.New(ctx, connString)
		if err == nil {
			return st, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, errors.Wrapf(lastErr, "postgres is not ready after %s", wait)
}

func newRemoteClient(cfg *config.Config, log *zap.Logger) remote.Client {
	tc := cfg.TrackStore
	switch tc.RemoteMode {
	case "http":
		if tc.RemoteBaseURL == "" {
			return nil
		}
		timeout := time.Duration(tc.RemoteTimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		return httpapi.New(tc.RemoteBaseURL, tc.RemoteAPIKey, timeout).WithLogger(log.Named("remote"))
	case "fake":
		return fake.New()
	default:
		// без remote обновления только из админки и кафки
		return nil
	}
}

func plannerConfig(tc config.TrackStoreConfig) refresher.PlannerConfig {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return refresher.PlannerConfig{
		InTransitMinDelay: sec(tc.NextCheckInTransitMinSeconds),
		InTransitMaxDelay: sec(tc.NextCheckInTransitMaxSeconds),
		WarehouseDelay:    sec(tc.NextCheckWarehouseSeconds),
		PendingDelay:      sec(tc.NextCheckPendingSeconds),
		Backoff1:          sec(tc.Backoff1Seconds),
		Backoff2:          sec(tc.Backoff2Seconds),
		Backoff3:          sec(tc.Backoff3Seconds),
		Backoff4:          sec(tc.Backoff4Seconds),
	}
}

type trackStoreApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
	opts   trackStoreOpts
	deps   trackStoreDeps

	closers []func()
}

func mustBootstrapTrackStore() *trackStoreApp {
	log, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("zap init: %v", err))
	}

	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		log.Fatal("configPath env var is required")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatal("ошибка парсинга конфига", zap.Error(err))
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		swaggerPath = cfg.TrackStore.SwaggerPath
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app, err := bootstrap(ctx, cfg, defaultFactories(), log)
	if err != nil {
		cancel()
		log.Fatal("bootstrap track-store", zap.Error(err))
	}
	app.ctx = ctx
	app.cancel = cancel
	app.opts.swaggerPath = swaggerPath
	return app
}

func bootstrap(ctx context.Context, cfg *config.Config, f factories, log *zap.Logger) (*trackStoreApp, error) {
	app := &trackStoreApp{log: log}

	httpAddr := cfg.TrackStore.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.TrackStore.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "track-store"
	}
	adminTopic := cfg.Kafka.AdminStatusTopicName
	if adminTopic == "" {
		adminTopic = "admin.status"
	}
	eventsTopic := cfg.Kafka.ShipmentEventsTopicName
	if eventsTopic == "" {
		eventsTopic = "shipment.events"
	}
	cacheTTL := time.Duration(cfg.TrackStore.RemoteCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	var rc *redis.Client
	if cfg.Redis.Host != "" {
		rc = rediscache.NewClient(fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port), cfg.Redis.Password, cfg.Redis.DB)
		app.closers = append(app.closers, func() { _ = rc.Close() })
	}

	backend, closeBackend, err := f.newBackend(ctx, cfg, rc)
	if err != nil {
		app.Close()
		return nil, errors.Wrap(err, "open store backend")
	}
	if closeBackend != nil {
		app.closers = append(app.closers, closeBackend)
	}

	st := store.New(backend,
		store.WithKey(cfg.Store.Key),
		store.WithDefaultUser(cfg.Store.DefaultUserID),
		store.WithLogger(log.Named("store")))
	if err := st.Load(ctx); err != nil {
		app.Close()
		return nil, err
	}

	remoteClient := f.newRemoteClient(cfg, log)
	if remoteClient != nil && rc != nil {
		remoteClient = remote.NewCached(remoteClient, rediscache.New(rc, redisPrefix+"cache:"), cacheTTL)
	}

	svc := shipments.New(st, remoteClient, log.Named("shipments"))

	var consumer kafkaConsumer
	if cfg.Kafka.Host != "" {
		brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
		producer := kafka.NewProducer(brokers)
		app.closers = append(app.closers, func() { _ = producer.Close() })
		svc.WithPublisher(producer, eventsTopic)

		c := kafka.NewConsumer(brokers, adminTopic, consumerGroup, log.Named("kafka"))
		app.closers = append(app.closers, func() { _ = c.Close() })
		consumer = c
	}

	var ref *refresher.Refresher
	if remoteClient != nil {
		var rl refresher.RateLimiter
		if rc != nil {
			rl = rediscache.NewRateLimiter(rc, redisPrefix)
		}
		tc := cfg.TrackStore
		ref = refresher.New(svc, rl, log.Named("refresher")).
			WithSettings(time.Duration(tc.RefreshIntervalSeconds)*time.Second, tc.RefreshBatchSize, tc.RefreshConcurrency, int64(tc.RefreshRateLimitPerMinute)).
			WithPlanner(refresher.NewPlanner(plannerConfig(tc), nil))
	}

	app.opts = trackStoreOpts{
		httpAddr:      httpAddr,
		swaggerPath:   cfg.TrackStore.SwaggerPath,
		topic:         adminTopic,
		consumerGroup: consumerGroup,
	}
	app.deps = trackStoreDeps{
		svc:       svc,
		refresher: ref,
		consumer:  consumer,
		storeKey:  st.Key(),
		log:       log,
	}
	if sc, ok := backend.(snapshotClock); ok {
		app.deps.snapshots = sc
	}
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *trackStoreApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func (a *trackStoreApp) Run() error {
	return runTrackStore(a.ctx, a.opts, a.deps)
}
