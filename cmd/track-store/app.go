package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/TrackLedger/internal/broker/kafka"
	"github.com/BearBump/TrackLedger/internal/services/refresher"
	"github.com/BearBump/TrackLedger/internal/services/shipments"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type trackStoreOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

// snapshotClock is implemented by backends that record write times (postgres).
type snapshotClock interface {
	UpdatedAt(ctx context.Context, key string) (time.Time, bool, error)
}

type trackStoreDeps struct {
	svc       *shipments.Service
	refresher *refresher.Refresher // nil when no remote client is configured
	consumer  kafkaConsumer        // nil when kafka is not configured
	snapshots snapshotClock        // nil when the backend does not record write times
	storeKey  string
	log       *zap.Logger
}

func runTrackStore(ctx context.Context, opts trackStoreOpts, deps trackStoreDeps) error {
	if deps.log == nil {
		deps.log = zap.NewNop()
	}
	if opts.httpAddr == "" {
		opts.httpAddr = ":8080"
	}

	handler, err := newRouter(opts.swaggerPath, deps)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- serveHTTP(ctx, lis, handler, deps.log)
	}()

	if deps.consumer != nil {
		go func() {
			deps.log.Info("kafka consumer started",
				zap.String("topic", opts.topic), zap.String("group", opts.consumerGroup))
			handler := kafka.AdminStatusHandler(ctx, deps.log.Named("admin-events"), deps.svc.ApplyAdminEvent, invalidAdminEvent)
			err := deps.consumer.Consume(ctx, handler)
			if err != nil && ctx.Err() == nil {
				deps.log.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	}

	if deps.refresher != nil {
		go func() {
			if err := deps.refresher.Run(ctx); err != nil && ctx.Err() == nil {
				deps.log.Error("refresher stopped", zap.Error(err))
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

// invalidAdminEvent reports errors that redelivery cannot fix.
func invalidAdminEvent(err error) bool {
	return errors.Is(err, shipments.ErrInvalidArgument)
}

func serveHTTP(ctx context.Context, lis net.Listener, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	log.Info("HTTP server listening", zap.String("addr", lis.Addr().String()))
	err := srv.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}
