// Command capsule-server starts the time capsule gRPC server, the due-capsule
// sweeper and the notification dispatcher.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/time-capsule/internal/config"
	"github.com/and161185/time-capsule/internal/events"
	pb "github.com/and161185/time-capsule/internal/rpc/capsulev1"
	grpcserver "github.com/and161185/time-capsule/internal/server/grpc"
	"github.com/and161185/time-capsule/internal/service"
	"github.com/and161185/time-capsule/internal/sweep"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// maxRecvMsgSize fits a base64-encoded 50 MiB video plus envelope.
const maxRecvMsgSize = 96 << 20

func main() {
	cfgPath := flag.String("config", "", "path to YAML config (default $CAPSULE_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.GRPCAddr),
		zap.String("db", cfg.Database.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	bus, err := events.NewBus(events.Config{
		Buffer:          cfg.Events.Buffer,
		MaxRetries:      cfg.Events.MaxRetries,
		InitialInterval: cfg.Events.RetryInterval,
	}, logger)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	dispatcher := newDispatcher(cfg.Notify, store, logger)
	bus.OnOpened("notify", dispatcher.Handle)

	busCtx, cancelBus := context.WithCancel(context.Background())
	defer cancelBus()
	busDone := make(chan error, 1)
	go func() { busDone <- bus.Run(busCtx) }()
	select {
	case <-bus.Running():
	case err := <-busDone:
		return fmt.Errorf("event bus: %w", err)
	}

	capsules := service.NewCapsuleService(store.capsules, bus, store.quota, service.CapsuleConfig{
		MinLead:       cfg.Capsule.MinLead,
		MaxRecipients: cfg.Capsule.MaxRecipients,
		Media:         mediaLimits(cfg.Media),
	}, logger)
	owners := service.NewOwnerService(store.owners)

	mediaStore, err := newMediaStore(ctx, cfg.Media)
	if err != nil {
		return err
	}
	if mediaStore == nil {
		logger.Info("media uploads disabled, no bucket configured")
	}

	var sweeper *sweep.Sweeper
	if cfg.Sweep.Enabled {
		sweeper = sweep.New(store.capsules, capsules, sweep.Config{
			Interval:    cfg.Sweep.Interval,
			BatchSize:   cfg.Sweep.BatchSize,
			Parallelism: cfg.Sweep.Parallelism,
		}, logger)
		if err := sweeper.Start(busCtx); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxRecvMsgSize),
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.MetricsUnary(),
			grpcserver.LoggingUnary(logger),
			grpcserver.NewAuthenticator([]byte(cfg.Auth.JWTKey), cfg.Auth.Leeway).Unary(),
		),
	}
	if cfg.Server.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			return fmt.Errorf("load TLS cert/key: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("TLS disabled, serving plaintext gRPC")
	}
	s := grpc.NewServer(opts...)
	pb.RegisterCapsuleServiceServer(s, grpcserver.New(capsules, owners, mediaStore, logger))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(pb.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.Server.Reflection {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.GRPCAddr), zap.Bool("tls", cfg.Server.TLSCert != ""))
		errCh <- s.Serve(lis)
	}()

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	case err := <-busDone:
		runErr = fmt.Errorf("event bus stopped: %w", err)
	}

	hs.Shutdown()
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.Server.ShutdownTimeout):
		s.Stop()
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		_ = metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if sweeper != nil {
		sweeper.Stop()
	}
	if err := bus.Close(); err != nil {
		logger.Warn("close event bus", zap.Error(err))
	}
	return runErr
}
