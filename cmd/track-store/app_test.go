package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/TrackLedger/config"
	"github.com/BearBump/TrackLedger/internal/integrations/remote"
	"github.com/BearBump/TrackLedger/internal/integrations/remote/fake"
	"github.com/BearBump/TrackLedger/internal/integrations/remote/httpapi"
	"github.com/BearBump/TrackLedger/internal/models"
	"github.com/BearBump/TrackLedger/internal/services/refresher"
	"github.com/BearBump/TrackLedger/internal/services/shipments"
	"github.com/BearBump/TrackLedger/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeConsumer hands out its messages once, then blocks until ctx is done.
type fakeConsumer struct {
	msgs [][]byte
	errs chan error
}

func (c *fakeConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for _, m := range c.msgs {
		if err := handler(nil, m); err != nil {
			if c.errs != nil {
				c.errs <- err
			}
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

// stampedBackend keeps nothing but reports a fixed write time.
type stampedBackend struct {
	at  time.Time
	ok  bool
	err error
	key string
}

func (b *stampedBackend) Load(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (b *stampedBackend) Save(context.Context, string, []byte) error { return nil }
func (b *stampedBackend) UpdatedAt(_ context.Context, key string) (time.Time, bool, error) {
	b.key = key
	return b.at, b.ok, b.err
}

type brokenBackend struct{}

func (brokenBackend) Load(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (brokenBackend) Save(context.Context, string, []byte) error { return errors.New("disk full") }

func writeSwagger(t *testing.T) string {
	t.Helper()
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))
	return sw
}

func startTrackStore(t *testing.T, opts trackStoreOpts, deps trackStoreDeps) (string, func() error) {
	t.Helper()
	addrCh := make(chan string, 1)
	opts.httpAddr = "127.0.0.1:0"
	opts.onListen = func(addr string) { addrCh <- addr }

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- runTrackStore(ctx, opts, deps) }()

	select {
	case addr := <-addrCh:
		return "http://" + addr, func() error {
			cancel()
			select {
			case err := <-errCh:
				return err
			case <-time.After(3 * time.Second):
				return errors.New("track-store did not stop")
			}
		}
	case err := <-errCh:
		cancel()
		t.Fatalf("track-store failed to start: %v", err)
	case <-time.After(3 * time.Second):
		cancel()
		t.Fatal("track-store did not start listening")
	}
	return "", nil
}

func TestRunTrackStore_ServesAPIAndSwagger(t *testing.T) {
	svc := shipments.New(store.New(nil), nil, nil)
	base, stop := startTrackStore(t, trackStoreOpts{swaggerPath: writeSwagger(t)}, trackStoreDeps{svc: svc})

	resp, err := http.Get(base + "/swagger.json")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(b), "swagger")

	resp, err = http.Get(base + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(base+"/api/v1/users/u1/shipments", "application/json",
		strings.NewReader(`{"trackingNumber":"abc1","quantity":2}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, svc.List("u1"), 1)

	resp, err = http.Get(base + "/stats")
	require.NoError(t, err)
	b, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Contains(t, string(b), "refresher not wired")

	require.ErrorIs(t, stop(), context.Canceled)
}

func TestRunTrackStore_TriggerAndStats(t *testing.T) {
	svc := shipments.New(store.New(nil), fake.New(), nil)
	ref := refresher.New(svc, nil, nil)
	base, stop := startTrackStore(t, trackStoreOpts{swaggerPath: writeSwagger(t)}, trackStoreDeps{svc: svc, refresher: ref})

	resp, err := http.Post(base+"/trigger", "application/json", nil)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.JSONEq(t, `{"triggered":true}`, string(b))

	resp, err = http.Get(base + "/stats")
	require.NoError(t, err)
	b, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Contains(t, string(b), "totalChecked")

	require.ErrorIs(t, stop(), context.Canceled)
}

func TestRunTrackStore_SnapshotAge(t *testing.T) {
	svc := shipments.New(store.New(nil), nil, nil)
	getSnapshot := func(t *testing.T, deps trackStoreDeps) (int, map[string]any) {
		t.Helper()
		base, stop := startTrackStore(t, trackStoreOpts{swaggerPath: writeSwagger(t)}, deps)
		defer func() { require.ErrorIs(t, stop(), context.Canceled) }()

		resp, err := http.Get(base + "/snapshot")
		require.NoError(t, err)
		defer resp.Body.Close()
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return resp.StatusCode, body
	}

	t.Run("recorded", func(t *testing.T) {
		at := time.Now().Add(-90 * time.Second).UTC().Truncate(time.Second)
		b := &stampedBackend{at: at, ok: true}
		code, body := getSnapshot(t, trackStoreDeps{svc: svc, snapshots: b, storeKey: "trackingStore"})

		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "trackingStore", b.key)
		require.Equal(t, "trackingStore", body["key"])
		require.Equal(t, at.Format(time.RFC3339), body["updated_at"])
		require.GreaterOrEqual(t, body["age_seconds"].(float64), float64(89))
	})

	t.Run("never saved", func(t *testing.T) {
		code, body := getSnapshot(t, trackStoreDeps{svc: svc, snapshots: &stampedBackend{}, storeKey: "k"})
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, map[string]any{"key": "k"}, body)
	})

	t.Run("backend without clock", func(t *testing.T) {
		code, body := getSnapshot(t, trackStoreDeps{svc: svc, storeKey: "k"})
		require.Equal(t, http.StatusOK, code)
		require.NotContains(t, body, "updated_at")
	})

	t.Run("backend error", func(t *testing.T) {
		code, body := getSnapshot(t, trackStoreDeps{svc: svc, snapshots: &stampedBackend{err: errors.New("conn refused")}, storeKey: "k"})
		require.Equal(t, http.StatusInternalServerError, code)
		require.Equal(t, "snapshot backend unavailable", body["error"])
	})
}

func TestRunTrackStore_ConsumerRegistersAdminEvents(t *testing.T) {
	svc := shipments.New(store.New(nil), nil, nil)
	consumer := &fakeConsumer{msgs: [][]byte{
		[]byte(`not json`),
		[]byte(`{"tracking_number":"","status":"In Transit"}`),
		[]byte(`{"tracking_number":"zz9","status":"In Transit","operator":"ops"}`),
	}}
	_, stop := startTrackStore(t, trackStoreOpts{swaggerPath: writeSwagger(t), topic: "admin.status"},
		trackStoreDeps{svc: svc, consumer: consumer})

	require.Eventually(t, func() bool {
		_, ok := svc.Lookup("ZZ9")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	rec, _ := svc.Lookup("ZZ9")
	require.Equal(t, models.StatusInTransit, rec.Status)

	require.ErrorIs(t, stop(), context.Canceled)
}

func TestRunTrackStore_MissingSwagger(t *testing.T) {
	svc := shipments.New(store.New(nil), nil, nil)
	err := runTrackStore(context.Background(), trackStoreOpts{httpAddr: "127.0.0.1:0"}, trackStoreDeps{svc: svc})
	require.Error(t, err)

	err = runTrackStore(context.Background(), trackStoreOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: filepath.Join(t.TempDir(), "nope.json"),
	}, trackStoreDeps{svc: svc})
	require.ErrorContains(t, err, "swagger file not found")
}

func TestRunTrackStore_ConsumerStopsOnStoreFailure(t *testing.T) {
	svc := shipments.New(store.New(brokenBackend{}), nil, nil)
	consumer := &fakeConsumer{
		msgs: [][]byte{[]byte(`{"tracking_number":"abc1","status":"Delivered"}`)},
		errs: make(chan error, 1),
	}
	_, stop := startTrackStore(t, trackStoreOpts{swaggerPath: writeSwagger(t)}, trackStoreDeps{svc: svc, consumer: consumer})

	select {
	case err := <-consumer.errs:
		require.ErrorContains(t, err, "disk full")
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	_, ok := svc.Lookup("ABC1")
	require.False(t, ok)
	require.ErrorIs(t, stop(), context.Canceled)
}

func TestInvalidAdminEvent(t *testing.T) {
	require.True(t, invalidAdminEvent(errors.Join(errors.New("ctx"), shipments.ErrInvalidArgument)))
	require.False(t, invalidAdminEvent(errors.New("disk full")))
	require.False(t, invalidAdminEvent(nil))
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		cfg := &config.Config{Store: config.StoreConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "s.db")}}
		b, closeFn, err := openBackend(ctx, cfg, nil)
		require.NoError(t, err)
		require.NotNil(t, b)
		closeFn()
	})

	t.Run("leveldb", func(t *testing.T) {
		cfg := &config.Config{Store: config.StoreConfig{Backend: "leveldb", Path: filepath.Join(t.TempDir(), "ldb")}}
		b, closeFn, err := openBackend(ctx, cfg, nil)
		require.NoError(t, err)
		require.NotNil(t, b)
		closeFn()
	})

	t.Run("memory", func(t *testing.T) {
		b, closeFn, err := openBackend(ctx, &config.Config{Store: config.StoreConfig{Backend: "memory"}}, nil)
		require.NoError(t, err)
		require.Nil(t, b)
		require.Nil(t, closeFn)
	})

	t.Run("redis without client", func(t *testing.T) {
		_, _, err := openBackend(ctx, &config.Config{Store: config.StoreConfig{Backend: "redis"}}, nil)
		require.Error(t, err)
	})

	t.Run("postgres without host", func(t *testing.T) {
		_, _, err := openBackend(ctx, &config.Config{Store: config.StoreConfig{Backend: "postgres"}}, nil)
		require.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := openBackend(ctx, &config.Config{Store: config.StoreConfig{Backend: "tape"}}, nil)
		require.ErrorContains(t, err, "tape")
	})
}

func TestNewRemoteClient(t *testing.T) {
	c := newRemoteClient(&config.Config{TrackStore: config.TrackStoreConfig{RemoteMode: "http", RemoteBaseURL: "http://remote"}}, zap.NewNop())
	_, ok := c.(*httpapi.Client)
	require.True(t, ok)

	c = newRemoteClient(&config.Config{TrackStore: config.TrackStoreConfig{RemoteMode: "fake"}}, zap.NewNop())
	_, ok = c.(*fake.Client)
	require.True(t, ok)

	require.Nil(t, newRemoteClient(&config.Config{TrackStore: config.TrackStoreConfig{RemoteMode: "http"}}, zap.NewNop()))
	require.Nil(t, newRemoteClient(&config.Config{}, zap.NewNop()))
}

func TestPlannerConfig(t *testing.T) {
	pc := plannerConfig(config.TrackStoreConfig{
		NextCheckInTransitMinSeconds: 60,
		NextCheckInTransitMaxSeconds: 120,
		NextCheckWarehouseSeconds:    3600,
		Backoff1Seconds:              5,
	})
	require.Equal(t, time.Minute, pc.InTransitMinDelay)
	require.Equal(t, 2*time.Minute, pc.InTransitMaxDelay)
	require.Equal(t, time.Hour, pc.WarehouseDelay)
	require.Equal(t, 5*time.Second, pc.Backoff1)
	require.Zero(t, pc.PendingDelay)
}

func TestBootstrap_MemoryBackend(t *testing.T) {
	cfg := &config.Config{
		Store:      config.StoreConfig{Backend: "memory"},
		TrackStore: config.TrackStoreConfig{RemoteMode: "fake", RefreshIntervalSeconds: 5},
	}
	app, err := bootstrap(context.Background(), cfg, defaultFactories(), zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.deps.svc)
	require.NotNil(t, app.deps.refresher)
	require.Nil(t, app.deps.consumer)
	require.Equal(t, ":8080", app.opts.httpAddr)
	require.Equal(t, "admin.status", app.opts.topic)
	require.Equal(t, "track-store", app.opts.consumerGroup)
	require.Equal(t, store.DefaultKey, app.deps.storeKey)
	require.Nil(t, app.deps.snapshots)
}

func TestBootstrap_SnapshotClockFromBackend(t *testing.T) {
	b := &stampedBackend{}
	f := factories{
		newBackend: func(context.Context, *config.Config, *redis.Client) (store.Backend, func(), error) {
			return b, nil, nil
		},
		newRemoteClient: func(*config.Config, *zap.Logger) remote.Client { return nil },
	}
	app, err := bootstrap(context.Background(), &config.Config{Store: config.StoreConfig{Key: "alt"}}, f, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	require.Equal(t, "alt", app.deps.storeKey)
	require.Same(t, b, app.deps.snapshots)
}

func TestBootstrap_LoadsExistingSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.db")
	cfg := &config.Config{Store: config.StoreConfig{Backend: "sqlite", Path: path}}

	first, err := bootstrap(context.Background(), cfg, defaultFactories(), zap.NewNop())
	require.NoError(t, err)
	_, err = first.deps.svc.Register(context.Background(), "abc1", models.StatusInTransit)
	require.NoError(t, err)
	first.Close()

	second, err := bootstrap(context.Background(), cfg, defaultFactories(), zap.NewNop())
	require.NoError(t, err)
	defer second.Close()
	rec, ok := second.deps.svc.Lookup("ABC1")
	require.True(t, ok)
	require.Equal(t, models.StatusInTransit, rec.Status)
	require.Nil(t, second.deps.refresher)
}

func TestBootstrap_BackendError(t *testing.T) {
	f := factories{
		newBackend: func(context.Context, *config.Config, *redis.Client) (store.Backend, func(), error) {
			return nil, nil, errors.New("no disk")
		},
		newRemoteClient: func(*config.Config, *zap.Logger) remote.Client { return nil },
	}
	_, err := bootstrap(context.Background(), &config.Config{}, f, zap.NewNop())
	require.ErrorContains(t, err, "no disk")
}
